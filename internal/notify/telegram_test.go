package notify

import (
	"acbridge/internal/clock"
	"acbridge/internal/core"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSender struct {
	messages []tgbotapi.MessageConfig
	err      error
}

func (m *mockSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if m.err != nil {
		return tgbotapi.Message{}, m.err
	}
	m.messages = append(m.messages, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, nil
}

func setupNotifier(t *testing.T) (*Telegram, *mockSender, *clock.Mock) {
	t.Helper()
	sender := &mockSender{}
	clk := clock.NewMock(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	n := NewTelegramWithSender(sender, 42, clk, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return n, sender, clk
}

func TestTelegram_RefreshFailed(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantSent bool
		wantText string
	}{
		{name: "refresh token expired", err: core.ErrRefreshTokenExpired, wantSent: true, wantText: "credentials need attention"},
		{name: "no refresh token", err: core.ErrNoRefreshToken, wantSent: true, wantText: "credentials need attention"},
		{name: "vendor rejection", err: fmt.Errorf("%w: status 400", core.ErrRefreshFailed), wantSent: true, wantText: "token refresh failed"},
		{name: "rate limited", err: core.ErrRateLimited, wantSent: false},
		{name: "waiter timeout", err: core.ErrRefreshTimeout, wantSent: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, sender, _ := setupNotifier(t)

			n.RefreshFailed(context.Background(), tt.err)

			if !tt.wantSent {
				assert.Empty(t, sender.messages)
				return
			}
			require.Len(t, sender.messages, 1)
			assert.Equal(t, int64(42), sender.messages[0].ChatID)
			assert.Contains(t, sender.messages[0].Text, tt.wantText)
		})
	}
}

func TestTelegram_Cooldown(t *testing.T) {
	n, sender, clk := setupNotifier(t)

	n.RefreshFailed(context.Background(), core.ErrRefreshTokenExpired)
	n.RefreshFailed(context.Background(), core.ErrRefreshTokenExpired)
	assert.Len(t, sender.messages, 1)

	// a different kind is not suppressed
	n.RefreshFailed(context.Background(), core.ErrRefreshFailed)
	assert.Len(t, sender.messages, 2)

	clk.Advance(DefaultCooldown)
	n.RefreshFailed(context.Background(), core.ErrRefreshTokenExpired)
	assert.Len(t, sender.messages, 3)
}

func TestTelegram_SendErrorIsLogged(t *testing.T) {
	n, sender, _ := setupNotifier(t)
	sender.err = errors.New("telegram down")

	assert.NotPanics(t, func() {
		n.RefreshFailed(context.Background(), core.ErrRefreshTokenExpired)
	})
}
