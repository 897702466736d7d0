package core

import "context"

// TokenStore persists the TokenSet across restarts.
// Load returns (nil, nil) when nothing has been stored yet.
type TokenStore interface {
	Load(ctx context.Context) (*TokenSet, error)
	Save(ctx context.Context, tokens *TokenSet) error
	Clear(ctx context.Context) error
}

// TokenRefresher exchanges a refresh token at the vendor's token endpoint.
type TokenRefresher interface {
	RefreshTokens(ctx context.Context, accessToken, refreshToken string) (*RefreshResult, error)
}

// TokenProvider hands out a currently valid TokenSet.
type TokenProvider interface {
	EnsureValid(ctx context.Context) (TokenSet, error)
}

// TokenObserver is notified after every successful refresh, e.g. to write the
// rotated credentials back to the environment file.
type TokenObserver interface {
	TokensRefreshed(ctx context.Context, tokens TokenSet)
}

// RefreshFailureObserver is notified when a refresh fails.
type RefreshFailureObserver interface {
	RefreshFailed(ctx context.Context, err error)
}
