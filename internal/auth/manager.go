// Package auth owns the vendor credentials: expiry tracking, single-flight
// refresh, persistence and change notification.
package auth

import (
	"acbridge/internal/clock"
	"acbridge/internal/core"
	"acbridge/internal/logging"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	DefaultRefreshBuffer = 5 * time.Minute
	DefaultRefreshWait   = 10 * time.Second

	refreshKey = "refresh"
)

// Config controls refresh timing and the credentials used when the store is empty.
type Config struct {
	RefreshBuffer time.Duration
	RefreshWait   time.Duration

	InitialAccessToken  string
	InitialRefreshToken string
}

// Manager is the single owner of the process's TokenSet.
type Manager struct {
	store     core.TokenStore
	refresher core.TokenRefresher
	clock     clock.Clock
	logger    *slog.Logger
	config    Config

	mu     sync.RWMutex
	tokens core.TokenSet
	ready  bool
	// generation changes whenever the credentials are replaced from outside
	// a refresh (Install, Wipe, Reload).
	generation uint64
	// refreshDead is set once the refresh token is known to be expired.
	refreshDead bool
	warnedNoExp string

	refreshing atomic.Bool
	group      singleflight.Group
	// persistMu orders store writes so a late refresh cannot overwrite
	// credentials installed or wiped while it was in flight.
	persistMu sync.Mutex

	obsMu            sync.RWMutex
	observers        []core.TokenObserver
	failureObservers []core.RefreshFailureObserver
}

// NewManager creates a token manager. Init must be called before use.
func NewManager(store core.TokenStore, refresher core.TokenRefresher, clk clock.Clock, config Config, logger *slog.Logger) *Manager {
	if config.RefreshBuffer <= 0 {
		config.RefreshBuffer = DefaultRefreshBuffer
	}
	if config.RefreshWait <= 0 {
		config.RefreshWait = DefaultRefreshWait
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Manager{
		store:     store,
		refresher: refresher,
		clock:     clk,
		logger:    logger.With("component", "auth"),
		config:    config,
	}
}

// Subscribe registers an observer for successful refreshes and installs.
func (m *Manager) Subscribe(observer core.TokenObserver) {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()
	m.observers = append(m.observers, observer)
}

// SubscribeFailures registers an observer for failed refreshes.
func (m *Manager) SubscribeFailures(observer core.RefreshFailureObserver) {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()
	m.failureObservers = append(m.failureObservers, observer)
}

// Init loads tokens from the store, bootstrapping from the configured
// credentials when the store is empty. Fails with core.ErrNoAccessToken when
// no access token is available anywhere.
func (m *Manager) Init(ctx context.Context) error {
	stored, err := m.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load tokens: %w", err)
	}

	var tokens core.TokenSet
	source := "store"
	if stored != nil && stored.HasAccessToken() {
		tokens = stored.Clone()
	} else {
		if m.config.InitialAccessToken == "" {
			return core.ErrNoAccessToken
		}
		source = "config"
		tokens = m.fromCredentials(m.config.InitialAccessToken, m.config.InitialRefreshToken)
		if err := m.store.Save(ctx, &tokens); err != nil {
			return fmt.Errorf("failed to persist bootstrap tokens: %w", err)
		}
	}

	m.mu.Lock()
	m.tokens = tokens
	m.ready = true
	m.refreshDead = false
	m.mu.Unlock()

	status := m.Status()
	m.logger.Info("tokens loaded",
		"source", source,
		"access_token", logging.Redact(tokens.AccessToken),
		"has_refresh_token", tokens.HasRefreshToken(),
		"state", status.State,
		"expires_in_minutes", derefInt(status.ExpiresInMinutes))

	return nil
}

// Ready reports whether Init has completed with usable credentials.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ready
}

// Tokens returns a copy of the current TokenSet without refreshing.
func (m *Manager) Tokens() core.TokenSet {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tokens.Clone()
}

// EnsureValid returns a TokenSet that is usable for a vendor call, refreshing
// first when the access token is expired or inside the refresh buffer.
func (m *Manager) EnsureValid(ctx context.Context) (core.TokenSet, error) {
	current := m.Tokens()
	if !current.HasAccessToken() {
		return core.TokenSet{}, core.ErrNoAccessToken
	}
	if !m.needsRefresh(current) {
		return current, nil
	}

	tokens, err := m.refreshShared(ctx, false)
	if err == nil {
		return tokens, nil
	}

	// Still inside the buffer: the old token works for a while longer.
	if !errors.Is(err, core.ErrRefreshTimeout) && !m.IsExpired() {
		m.logger.Warn("refresh failed, using current access token until it expires", "error", err)
		return m.Tokens(), nil
	}
	return core.TokenSet{}, err
}

// Refresh forces a refresh through the shared single-flight path.
func (m *Manager) Refresh(ctx context.Context) (core.TokenSet, error) {
	return m.refreshShared(ctx, true)
}

// refreshShared joins or starts the single in-flight refresh. The refresh
// itself runs detached from ctx so a caller giving up does not cancel it.
func (m *Manager) refreshShared(ctx context.Context, force bool) (core.TokenSet, error) {
	ch := m.group.DoChan(refreshKey, func() (any, error) {
		// Another flight may have refreshed between the caller's check and now.
		if !force {
			if current := m.Tokens(); !m.needsRefresh(current) {
				return current, nil
			}
		}
		return m.doRefresh(context.WithoutCancel(ctx))
	})

	timer := m.clock.NewTimer(m.config.RefreshWait)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.Err != nil {
			return core.TokenSet{}, res.Err
		}
		return res.Val.(core.TokenSet), nil
	case <-timer.C:
		m.logger.Warn("gave up waiting for token refresh", "wait", m.config.RefreshWait)
		return core.TokenSet{}, core.ErrRefreshTimeout
	case <-ctx.Done():
		return core.TokenSet{}, ctx.Err()
	}
}

func (m *Manager) doRefresh(ctx context.Context) (core.TokenSet, error) {
	current, generation := m.snapshot()

	if !current.HasRefreshToken() {
		return core.TokenSet{}, m.refreshFailed(ctx, core.ErrNoRefreshToken)
	}
	if m.refreshTokenExpired(current) {
		m.mu.Lock()
		m.refreshDead = true
		m.mu.Unlock()
		return core.TokenSet{}, m.refreshFailed(ctx, core.ErrRefreshTokenExpired)
	}

	m.refreshing.Store(true)
	defer m.refreshing.Store(false)

	m.logger.Info("refreshing access token", "access_token", logging.Redact(current.AccessToken))
	start := m.clock.Now()

	result, err := m.refresher.RefreshTokens(ctx, current.AccessToken, current.RefreshToken)
	if err != nil {
		if !errors.Is(err, core.ErrRateLimited) && !errors.Is(err, core.ErrRefreshFailed) {
			err = fmt.Errorf("%w: %w", core.ErrRefreshFailed, err)
		}
		return core.TokenSet{}, m.refreshFailed(ctx, err)
	}
	if result == nil || result.AccessToken == "" {
		return core.TokenSet{}, m.refreshFailed(ctx, fmt.Errorf("%w: response carried no access token", core.ErrRefreshFailed))
	}

	next := m.applyRefresh(current, result)

	m.persistMu.Lock()
	if m.replacedSince(generation) {
		m.persistMu.Unlock()
		m.logger.Warn("credentials replaced during refresh, discarding refreshed tokens",
			"access_token", logging.Redact(next.AccessToken))
		return m.currentOrNoToken()
	}
	if err := m.store.Save(ctx, &next); err != nil {
		// The vendor may already have rotated the refresh token, so the
		// in-memory set is kept either way.
		m.logger.Error("failed to persist refreshed tokens", "error", err)
	}
	m.mu.Lock()
	m.tokens = next
	m.refreshDead = false
	m.mu.Unlock()
	m.persistMu.Unlock()

	m.logger.Info("access token refreshed",
		"access_token", logging.Redact(next.AccessToken),
		"refresh_token_rotated", result.RefreshToken != "" && result.RefreshToken != current.RefreshToken,
		"expires_at", next.AccessExpiresAt,
		"duration", m.clock.Now().Sub(start))

	m.notifyRefreshed(ctx, next)
	return next.Clone(), nil
}

func (m *Manager) snapshot() (core.TokenSet, uint64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tokens.Clone(), m.generation
}

func (m *Manager) replacedSince(generation uint64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.generation != generation
}

func (m *Manager) currentOrNoToken() (core.TokenSet, error) {
	tokens := m.Tokens()
	if !tokens.HasAccessToken() {
		return core.TokenSet{}, core.ErrNoAccessToken
	}
	return tokens, nil
}

// applyRefresh builds the next TokenSet. A known expiry never moves
// backwards; an unknown one is cleared rather than inherited from the
// previous token.
func (m *Manager) applyRefresh(current core.TokenSet, result *core.RefreshResult) core.TokenSet {
	now := m.clock.Now()
	next := current.Clone()
	next.AccessToken = result.AccessToken
	next.AccessExpiresAt = m.monotonic("access", current.AccessExpiresAt,
		issuedExpiry(result.AccessToken, result.ExpiresIn, now))

	if result.RefreshToken != "" {
		next.RefreshToken = result.RefreshToken
		next.RefreshExpiresAt = m.monotonic("refresh", current.RefreshExpiresAt,
			issuedExpiry(result.RefreshToken, result.RefreshExpiresIn, now))
	}

	next.UpdatedAt = now
	return next
}

func (m *Manager) monotonic(kind string, previous, issued *time.Time) *time.Time {
	if issued == nil {
		return nil
	}
	if previous != nil && issued.Before(*previous) {
		m.logger.Warn("refresh returned an earlier expiry, keeping previous",
			"token", kind,
			"previous", *previous,
			"issued", *issued)
		return previous
	}
	return issued
}

func (m *Manager) refreshFailed(ctx context.Context, err error) error {
	m.logger.Error("token refresh failed", "error", err)

	m.obsMu.RLock()
	observers := append([]core.RefreshFailureObserver(nil), m.failureObservers...)
	m.obsMu.RUnlock()

	for _, o := range observers {
		o.RefreshFailed(ctx, err)
	}
	return err
}

func (m *Manager) notifyRefreshed(ctx context.Context, tokens core.TokenSet) {
	m.obsMu.RLock()
	observers := append([]core.TokenObserver(nil), m.observers...)
	m.obsMu.RUnlock()

	for _, o := range observers {
		o.TokensRefreshed(ctx, tokens.Clone())
	}
}

// IsExpired reports whether the current access token is unusable.
// A missing or malformed token is expired; a token without exp is not.
func (m *Manager) IsExpired() bool {
	return m.isExpired(m.Tokens(), m.clock.Now())
}

func (m *Manager) isExpired(tokens core.TokenSet, now time.Time) bool {
	if !tokens.HasAccessToken() {
		return true
	}
	exp, ok := m.expiry(tokens)
	if !ok {
		return true
	}
	if exp == nil {
		return false
	}
	return !now.Before(*exp)
}

// expiry resolves the access token's expiry. ok is false when the token is
// malformed and no recorded expiry exists; a nil expiry with ok means "never".
func (m *Manager) expiry(tokens core.TokenSet) (*time.Time, bool) {
	exp, err := decodeExpiry(tokens.AccessToken)
	switch {
	case err != nil && tokens.AccessExpiresAt != nil:
		// Opaque token: fall back to the expiresIn the vendor sent with it.
		return tokens.AccessExpiresAt, true
	case err != nil:
		return nil, false
	case exp != nil:
		return exp, true
	case tokens.AccessExpiresAt != nil:
		return tokens.AccessExpiresAt, true
	}

	m.warnNoExpiry(tokens.AccessToken)
	return nil, true
}

func (m *Manager) warnNoExpiry(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.warnedNoExp == token {
		return
	}
	m.warnedNoExp = token
	m.logger.Warn("access token has no exp claim, treating it as valid", "access_token", logging.Redact(token))
}

func (m *Manager) needsRefresh(tokens core.TokenSet) bool {
	now := m.clock.Now()
	if m.isExpired(tokens, now) {
		return true
	}
	exp, _ := m.expiry(tokens)
	return exp != nil && exp.Sub(now) < m.config.RefreshBuffer
}

func (m *Manager) refreshTokenExpired(tokens core.TokenSet) bool {
	exp := refreshExpiry(tokens)
	return exp != nil && !m.clock.Now().Before(*exp)
}

// refreshExpiry is the recorded refresh expiry, else the refresh token's own
// exp claim when it is a JWT. Nil means it never expires.
func refreshExpiry(tokens core.TokenSet) *time.Time {
	if tokens.RefreshExpiresAt != nil {
		return tokens.RefreshExpiresAt
	}
	if tokens.RefreshToken == "" {
		return nil
	}
	if exp, err := decodeExpiry(tokens.RefreshToken); err == nil {
		return exp
	}
	return nil
}

// State returns the lifecycle state of the access token.
func (m *Manager) State() core.TokenState {
	if m.refreshing.Load() {
		return core.TokenStateRefreshing
	}

	m.mu.RLock()
	dead := m.refreshDead
	m.mu.RUnlock()

	tokens := m.Tokens()
	now := m.clock.Now()
	switch {
	case dead, m.isExpired(tokens, now):
		return core.TokenStateExpired
	case m.needsRefresh(tokens):
		return core.TokenStateNearExpiry
	}
	return core.TokenStateValid
}

// Status returns the observability snapshot of the token lifecycle.
func (m *Manager) Status() core.TokenStatus {
	tokens := m.Tokens()
	now := m.clock.Now()

	status := core.TokenStatus{
		HasAccessToken:        tokens.HasAccessToken(),
		HasRefreshToken:       tokens.HasRefreshToken(),
		IsExpired:             m.isExpired(tokens, now),
		IsRefreshTokenExpired: m.refreshTokenExpired(tokens),
		State:                 m.State(),
		APIInitialized:        m.Ready(),
	}

	if tokens.HasAccessToken() {
		if exp, ok := m.expiry(tokens); ok && exp != nil {
			t := *exp
			remaining := max(t.Sub(now), 0)
			seconds := int64(remaining / time.Second)
			minutes := int64(remaining / time.Minute)
			status.ExpiryTime = &t
			status.ExpiresInSeconds = &seconds
			status.ExpiresInMinutes = &minutes
		}
	}
	if exp := refreshExpiry(tokens); exp != nil {
		t := *exp
		minutes := int64(max(t.Sub(now), 0) / time.Minute)
		status.RefreshTokenExpiryTime = &t
		status.RefreshTokenExpiresInMinutes = &minutes
	}
	if !tokens.UpdatedAt.IsZero() {
		t := tokens.UpdatedAt
		status.LastUpdated = &t
	}

	return status
}

// Reload re-reads the store, e.g. after an operator edited the token file.
// An empty store leaves the in-memory tokens untouched.
func (m *Manager) Reload(ctx context.Context) error {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	stored, err := m.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to reload tokens: %w", err)
	}
	if stored == nil || !stored.HasAccessToken() {
		m.logger.Warn("token store has no access token, keeping current tokens")
		return nil
	}

	m.mu.Lock()
	changed := m.tokens.AccessToken != stored.AccessToken || m.tokens.RefreshToken != stored.RefreshToken
	if changed {
		m.generation++
	}
	m.tokens = stored.Clone()
	m.ready = true
	m.refreshDead = false
	m.mu.Unlock()

	if changed {
		m.logger.Info("tokens reloaded from store", "access_token", logging.Redact(stored.AccessToken))
	}
	return nil
}

// Install replaces the credentials with operator-supplied ones. An empty
// refresh token keeps the current one.
func (m *Manager) Install(ctx context.Context, accessToken, refreshToken string) (core.TokenSet, error) {
	if accessToken == "" {
		return core.TokenSet{}, core.ErrNoAccessToken
	}
	if refreshToken == "" {
		refreshToken = m.Tokens().RefreshToken
	}

	tokens := m.fromCredentials(accessToken, refreshToken)

	m.persistMu.Lock()
	if err := m.store.Save(ctx, &tokens); err != nil {
		m.persistMu.Unlock()
		return core.TokenSet{}, fmt.Errorf("failed to persist installed tokens: %w", err)
	}
	m.mu.Lock()
	m.tokens = tokens
	m.ready = true
	m.refreshDead = false
	m.generation++
	m.mu.Unlock()
	m.persistMu.Unlock()

	m.logger.Info("tokens installed", "access_token", logging.Redact(accessToken))
	m.notifyRefreshed(ctx, tokens)
	return tokens.Clone(), nil
}

// Wipe clears every credential from memory and the store. The manager is not
// ready again until Install or Reload succeeds.
func (m *Manager) Wipe(ctx context.Context) error {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	if err := m.store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear token store: %w", err)
	}

	m.mu.Lock()
	m.tokens = core.TokenSet{}
	m.ready = false
	m.refreshDead = false
	m.generation++
	m.mu.Unlock()

	m.logger.Warn("tokens wiped")
	return nil
}

func (m *Manager) fromCredentials(accessToken, refreshToken string) core.TokenSet {
	now := m.clock.Now()
	tokens := core.TokenSet{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		UpdatedAt:    now,
	}
	if exp, err := decodeExpiry(accessToken); err == nil {
		tokens.AccessExpiresAt = exp
	}
	if refreshToken != "" {
		if exp, err := decodeExpiry(refreshToken); err == nil {
			tokens.RefreshExpiresAt = exp
		}
	}
	return tokens
}

func derefInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

var _ core.TokenProvider = (*Manager)(nil)
