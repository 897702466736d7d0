package auth

import (
	"acbridge/internal/core"
	"context"

	"golang.org/x/oauth2"
)

// TokenSourceAdapter adapts a core.TokenProvider to oauth2.TokenSource so the
// vendor client can use oauth2.Transport for bearer attachment.
type TokenSourceAdapter struct {
	provider core.TokenProvider
	ctx      context.Context
}

// NewTokenSource binds provider to the context of one outbound request.
// The returned token has no expiry set; the provider owns refresh decisions.
func NewTokenSource(ctx context.Context, provider core.TokenProvider) oauth2.TokenSource {
	return &TokenSourceAdapter{
		provider: provider,
		ctx:      ctx,
	}
}

// Token implements oauth2.TokenSource.
func (t *TokenSourceAdapter) Token() (*oauth2.Token, error) {
	tokens, err := t.provider.EnsureValid(t.ctx)
	if err != nil {
		return nil, err
	}

	return &oauth2.Token{
		AccessToken: tokens.AccessToken,
		TokenType:   "Bearer",
	}, nil
}
