//go:build e2e

package e2e

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/fgeck/pulsegate/internal/models"
	"github.com/fgeck/pulsegate/internal/services/telegram"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getTelegramConfig(t *testing.T) models.TelegramConfig {
	t.Helper()

	botToken := os.Getenv("TEST_TELEGRAM_BOT_TOKEN")
	if botToken == "" {
		t.Skip("TEST_TELEGRAM_BOT_TOKEN not set")
	}

	chatID := os.Getenv("TEST_TELEGRAM_CHAT_ID")
	if chatID == "" {
		t.Skip("TEST_TELEGRAM_CHAT_ID not set")
	}

	return models.TelegramConfig{
		BotToken: botToken,
		ChatID:   chatID,
	}
}

func TestTelegramSendExecutedNotification_E2E(t *testing.T) {
	cfg := getTelegramConfig(t)

	svc := telegram.New(testLogger())

	result, err := svc.SendNotification(context.Background(), cfg, models.TelegramMessage{
		RequestID: "e2e-executed",
		Action:    models.ActionBoot,
		Outcome:   models.OutcomeExecuted,
		Host:      "e2e-test-host",
		Message:   "Boot triggered",
		Time:      time.Now(),
	})

	require.NoError(t, err)
	assert.True(t, result.MessageSent)
	assert.Nil(t, result.Error)
}

func TestTelegramSendAccessDeniedNotification_E2E(t *testing.T) {
	cfg := getTelegramConfig(t)

	svc := telegram.New(testLogger())

	result, err := svc.SendNotification(context.Background(), cfg, models.TelegramMessage{
		RequestID: "e2e-denied",
		Action:    models.ActionSoftReboot,
		Outcome:   models.OutcomeAccessDenied,
		Host:      "e2e-test-host",
		Message:   "ACCESS DENIED",
		Time:      time.Now(),
	})

	require.NoError(t, err)
	assert.True(t, result.MessageSent)
}

func TestTelegramInvalidToken_E2E(t *testing.T) {
	if os.Getenv("TEST_TELEGRAM_BOT_TOKEN") == "" {
		t.Skip("TEST_TELEGRAM_BOT_TOKEN not set")
	}

	svc := telegram.New(testLogger())

	result, err := svc.SendNotification(context.Background(), models.TelegramConfig{
		BotToken: "invalid-token",
		ChatID:   "123456",
	}, models.TelegramMessage{Outcome: models.OutcomeExecuted, Time: time.Now()})

	require.NoError(t, err)
	assert.False(t, result.MessageSent)
	assert.NotNil(t, result.Error)
}
