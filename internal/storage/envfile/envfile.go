// Package envfile mirrors rotated credentials into the process environment
// and the .env file so a restart picks up the latest tokens.
package envfile

import (
	"acbridge/internal/core"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"

	"github.com/subosito/gotenv"
)

const (
	AccessTokenKey  = "ELECTROLUX_TOKEN"
	RefreshTokenKey = "ELECTROLUX_REFRESH_TOKEN"
)

// Syncer is a core.TokenObserver that writes tokens back to a .env file.
// Other keys in the file are preserved; comments and ordering are not.
type Syncer struct {
	path   string
	logger *slog.Logger
	mu     sync.Mutex
}

// NewSyncer creates a syncer for the given .env path
func NewSyncer(path string, logger *slog.Logger) *Syncer {
	return &Syncer{
		path:   path,
		logger: logger.With("component", "storage.envfile", "path", path),
	}
}

// TokensRefreshed implements core.TokenObserver
func (s *Syncer) TokensRefreshed(ctx context.Context, tokens core.TokenSet) {
	if err := s.Write(tokens); err != nil {
		s.logger.Error("failed to sync tokens to env file", "error", err)
		return
	}
	s.logger.Debug("tokens synced to env file")
}

// Write sets the token variables in the environment and in the file.
func (s *Syncer) Write(tokens core.TokenSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Setenv(AccessTokenKey, tokens.AccessToken); err != nil {
		return fmt.Errorf("failed to set %s: %w", AccessTokenKey, err)
	}
	if tokens.RefreshToken != "" {
		if err := os.Setenv(RefreshTokenKey, tokens.RefreshToken); err != nil {
			return fmt.Errorf("failed to set %s: %w", RefreshTokenKey, err)
		}
	}

	env, err := gotenv.Read(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		env = gotenv.Env{}
	} else if err != nil {
		return fmt.Errorf("failed to read env file: %w", err)
	}

	env[AccessTokenKey] = tokens.AccessToken
	if tokens.RefreshToken != "" {
		env[RefreshTokenKey] = tokens.RefreshToken
	}

	if err := gotenv.Write(env, s.path); err != nil {
		return fmt.Errorf("failed to write env file: %w", err)
	}
	return os.Chmod(s.path, 0o600)
}

var _ core.TokenObserver = (*Syncer)(nil)
