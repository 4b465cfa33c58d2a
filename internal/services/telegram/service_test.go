package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fgeck/pulsegate/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockHTTPClient struct {
	doFunc func(req *http.Request) (*http.Response, error)
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	if m.doFunc != nil {
		return m.doFunc(req)
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader("{}")),
	}, nil
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func testConfig() models.TelegramConfig {
	return models.TelegramConfig{
		BotToken: "123456:ABC-DEF",
		ChatID:   "-100123456789",
	}
}

func TestSendNotification_Success(t *testing.T) {
	var capturedRequest *http.Request
	var capturedBody sendMessageRequest

	httpClient := &mockHTTPClient{
		doFunc: func(req *http.Request) (*http.Response, error) {
			capturedRequest = req
			body, _ := io.ReadAll(req.Body)
			_ = json.Unmarshal(body, &capturedBody)
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(strings.NewReader("{\"ok\":true}")),
			}, nil
		},
	}

	svc := NewWithClient(testLogger(), httpClient, "https://api.telegram.org")

	msg := models.TelegramMessage{
		RequestID: "req-1",
		Action:    models.ActionBoot,
		Outcome:   models.OutcomeExecuted,
		Host:      "10.42.0.18",
		Message:   "Boot triggered",
		Time:      time.Now(),
	}

	result, err := svc.SendNotification(context.Background(), testConfig(), msg)

	require.NoError(t, err)
	assert.True(t, result.MessageSent)
	assert.Nil(t, result.Error)

	// Verify request
	assert.Equal(t, http.MethodPost, capturedRequest.Method)
	assert.Contains(t, capturedRequest.URL.String(), "/bot123456:ABC-DEF/sendMessage")
	assert.Equal(t, "application/json", capturedRequest.Header.Get("Content-Type"))

	// Verify body
	assert.Equal(t, "-100123456789", capturedBody.ChatID)
	assert.Equal(t, "HTML", capturedBody.ParseMode)
	assert.Contains(t, capturedBody.Text, "Command executed")
	assert.Contains(t, capturedBody.Text, "boot")
}

func TestSendNotification_HTTPTestServer(t *testing.T) {
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	svc := NewWithClient(testLogger(), server.Client(), server.URL)

	result, err := svc.SendNotification(context.Background(), testConfig(), models.TelegramMessage{
		Action:  models.ActionSoftReboot,
		Outcome: models.OutcomeExecuted,
		Time:    time.Now(),
	})

	require.NoError(t, err)
	assert.True(t, result.MessageSent)
	assert.Equal(t, "/bot123456:ABC-DEF/sendMessage", path)
}

func TestSendNotification_HTTPError(t *testing.T) {
	httpClient := &mockHTTPClient{
		doFunc: func(req *http.Request) (*http.Response, error) {
			return nil, errors.New("network error")
		},
	}

	svc := NewWithClient(testLogger(), httpClient, "https://api.telegram.org")

	result, err := svc.SendNotification(context.Background(), testConfig(), models.TelegramMessage{Outcome: models.OutcomeExecuted})

	require.NoError(t, err)
	assert.False(t, result.MessageSent)
	require.Error(t, result.Error)
	assert.Contains(t, result.Error.Error(), "failed to send request")
}

func TestSendNotification_APIError(t *testing.T) {
	httpClient := &mockHTTPClient{
		doFunc: func(req *http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusBadRequest,
				Body:       io.NopCloser(strings.NewReader("{\"ok\":false}")),
			}, nil
		},
	}

	svc := NewWithClient(testLogger(), httpClient, "https://api.telegram.org")

	result, err := svc.SendNotification(context.Background(), testConfig(), models.TelegramMessage{Outcome: models.OutcomeExecuted})

	require.NoError(t, err)
	assert.False(t, result.MessageSent)
	require.Error(t, result.Error)
	assert.Contains(t, result.Error.Error(), "status 400")
}

func TestSendNotification_ContextCancelled(t *testing.T) {
	httpClient := &mockHTTPClient{
		doFunc: func(req *http.Request) (*http.Response, error) {
			return nil, req.Context().Err()
		},
	}

	svc := NewWithClient(testLogger(), httpClient, "https://api.telegram.org")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := svc.SendNotification(ctx, testConfig(), models.TelegramMessage{Outcome: models.OutcomeExecuted})

	require.NoError(t, err)
	assert.False(t, result.MessageSent)
	assert.Error(t, result.Error)
}

func TestFormatMessage_Executed(t *testing.T) {
	msg := models.TelegramMessage{
		RequestID: "0b6f7c1e",
		Action:    models.ActionBoot,
		Outcome:   models.OutcomeExecuted,
		Host:      "10.42.0.18",
		Message:   "Boot triggered",
		Time:      time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
	}

	result := formatMessage(msg)

	assert.Contains(t, result, "Command executed")
	assert.Contains(t, result, "<b>Action:</b> boot")
	assert.Contains(t, result, "<b>Outcome:</b> executed")
	assert.Contains(t, result, "10.42.0.18")
	assert.Contains(t, result, "2024-01-15 10:30:00")
	assert.Contains(t, result, "Boot triggered")
	assert.Contains(t, result, "<code>0b6f7c1e</code>")
}

func TestFormatMessage_AccessDenied(t *testing.T) {
	msg := models.TelegramMessage{
		Action:  models.ActionSoftReboot,
		Outcome: models.OutcomeAccessDenied,
		Host:    "pi<4>",
		Time:    time.Now(),
	}

	result := formatMessage(msg)

	assert.Contains(t, result, "Access denied")
	assert.Contains(t, result, "pi&lt;4&gt;")
	assert.NotContains(t, result, "Detail")
	assert.NotContains(t, result, "Request")
}

func TestFormatMessage_NotExecuted(t *testing.T) {
	result := formatMessage(models.TelegramMessage{
		Action:  models.ActionWake,
		Outcome: models.OutcomeHardwareFault,
		Time:    time.Now(),
	})

	assert.Contains(t, result, "Command not executed")
	assert.Contains(t, result, "hardware_fault")
}

func TestEscapeHTML(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"hello", "hello"},
		{"<script>", "&lt;script&gt;"},
		{"a & b", "a &amp; b"},
		{"<>&", "&lt;&gt;&amp;"},
		{"normal text", "normal text"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := escapeHTML(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}
