// Package notify alerts an operator when token renewal needs attention.
package notify

import (
	"acbridge/internal/clock"
	"acbridge/internal/core"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// DefaultCooldown limits how often the same kind of failure is reported
const DefaultCooldown = time.Hour

// Sender is the part of the Telegram bot API the notifier uses
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram sends refresh failures to a chat. It implements
// core.RefreshFailureObserver.
type Telegram struct {
	sender   Sender
	chatID   int64
	cooldown time.Duration
	clock    clock.Clock
	logger   *slog.Logger

	mu   sync.Mutex
	sent map[string]time.Time
}

// NewTelegram creates a notifier backed by a real bot
func NewTelegram(token string, chatID int64, logger *slog.Logger) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}
	return NewTelegramWithSender(api, chatID, nil, logger), nil
}

// NewTelegramWithSender creates a notifier with a custom sender
func NewTelegramWithSender(sender Sender, chatID int64, clk clock.Clock, logger *slog.Logger) *Telegram {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Telegram{
		sender:   sender,
		chatID:   chatID,
		cooldown: DefaultCooldown,
		clock:    clk,
		logger:   logger.With("component", "notify"),
		sent:     make(map[string]time.Time),
	}
}

// RefreshFailed reports err to the chat. Rate limiting and waiter timeouts
// are transient and not reported.
func (t *Telegram) RefreshFailed(ctx context.Context, err error) {
	if errors.Is(err, core.ErrRateLimited) || errors.Is(err, core.ErrRefreshTimeout) {
		return
	}

	kind := classify(err)
	now := t.clock.Now()

	t.mu.Lock()
	if last, ok := t.sent[kind]; ok && now.Sub(last) < t.cooldown {
		t.mu.Unlock()
		return
	}
	t.sent[kind] = now
	t.mu.Unlock()

	msg := tgbotapi.NewMessage(t.chatID, formatFailure(kind, err))
	if _, sendErr := t.sender.Send(msg); sendErr != nil {
		t.logger.Error("Failed to send alert", "kind", kind, "error", sendErr)
		return
	}
	t.logger.Info("Alert sent", "kind", kind)
}

func classify(err error) string {
	switch {
	case errors.Is(err, core.ErrRefreshTokenExpired):
		return "refresh_token_expired"
	case errors.Is(err, core.ErrNoRefreshToken):
		return "no_refresh_token"
	case errors.Is(err, core.ErrNoAccessToken):
		return "no_access_token"
	default:
		return "refresh_failed"
	}
}

func formatFailure(kind string, err error) string {
	if kind == "refresh_failed" {
		return fmt.Sprintf("⚠️ acbridge: token refresh failed\n\n%v", err)
	}
	return fmt.Sprintf("🔴 acbridge: credentials need attention\n\n%v\n\nInstall new tokens with PUT /api/token or edit the token file.", err)
}

var _ core.RefreshFailureObserver = (*Telegram)(nil)
