package models

import "time"

// TelegramConfig holds Telegram notification configuration.
type TelegramConfig struct {
	BotToken string
	ChatID   string
}

// TelegramMessage holds the data for a control action notification.
type TelegramMessage struct {
	RequestID string
	Action    Action
	Outcome   Outcome
	Host      string
	Message   string
	Time      time.Time
}

// TelegramResult holds the result of a Telegram notification.
type TelegramResult struct {
	MessageSent bool
	Error       error
}
