// Package alerting pushes low-success-rate notifications to the configured
// channels.
package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Notification carries the context of a triggered alert.
type Notification struct {
	Bank        string
	WindowStart time.Time
	WindowEnd   time.Time
	Rate        decimal.Decimal
	Threshold   decimal.Decimal
	Success     uint64
	Total       uint64
	Channels    []string
}

// Notifier delivers notifications to a channel.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// LogNotifier writes alerts to the structured log, the fallback channel when
// nothing else is configured.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier constructs a log-backed notifier.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "alert_log").Logger()}
}

func (n *LogNotifier) Notify(ctx context.Context, note Notification) error {
	n.logger.Warn().
		Str("bank", note.Bank).
		Str("rate", note.Rate.StringFixed(4)).
		Str("threshold", note.Threshold.StringFixed(4)).
		Uint64("success", note.Success).
		Uint64("total", note.Total).
		Time("window_start", note.WindowStart).
		Time("window_end", note.WindowEnd).
		Msg("success rate below threshold")
	return nil
}

// TelegramNotifier pushes alerts through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs a Telegram notifier.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify posts the rendered alert text via the sendMessage API.
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected telegram status: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram returned ok=false")
		}
	}

	n.logger.Info().Str("bank", note.Bank).
		Str("channels", strings.Join(note.Channels, ",")).
		Msg("alert delivered (Telegram)")
	return nil
}

func renderMessage(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString("[Bank Success Rate Alert]\n")
	builder.WriteString(fmt.Sprintf("Bank: %s\n", note.Bank))
	builder.WriteString(fmt.Sprintf("Window: %s .. %s UTC\n",
		note.WindowStart.UTC().Format(time.RFC3339), note.WindowEnd.UTC().Format(time.RFC3339)))
	builder.WriteString(fmt.Sprintf("Rate: %s (threshold %s)\n", note.Rate.StringFixed(4), note.Threshold.StringFixed(4)))
	builder.WriteString(fmt.Sprintf("Sample: %d/%d transactions\n", note.Success, note.Total))
	if len(note.Channels) > 0 {
		builder.WriteString(fmt.Sprintf("Channels: %s\n", strings.Join(note.Channels, ",")))
	}
	return builder.String()
}

var (
	_ Notifier = (*TelegramNotifier)(nil)
	_ Notifier = (*LogNotifier)(nil)
)
