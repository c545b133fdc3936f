// Package notifier fans a rendered message out to every configured webhook
// sink: Slack and Discord, each an independent plain net/http
// POST with a 5s timeout. One sink's failure never blocks another's.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prism-insight/execution-core/internal/domain"
	"github.com/rs/zerolog"
)

// Sink is one webhook destination.
type Sink interface {
	Send(ctx context.Context, title, message, color string) error
}

// Manager fans a notification out to every configured Sink concurrently,
// logging but not propagating individual failures.
type Manager struct {
	sinks []Sink
	log   zerolog.Logger
}

// NewManager builds a Manager. slackWebhook/discordWebhook of "" omit that
// sink entirely.
func NewManager(slackWebhook, discordWebhook string, log zerolog.Logger) *Manager {
	m := &Manager{log: log.With().Str("component", "notifier").Logger()}
	if slackWebhook != "" {
		m.sinks = append(m.sinks, &SlackSink{webhookURL: slackWebhook})
	}
	if discordWebhook != "" {
		m.sinks = append(m.sinks, &DiscordSink{webhookURL: discordWebhook})
	}
	return m
}

// NotifySignal renders a human-readable summary of signal and its terminal
// result (nil if the signal was only logged, as in dry-run) and fans it to
// every sink.
func (m *Manager) NotifySignal(signal domain.Signal, result *domain.OrderResult) {
	title, message, color := render(signal, result)
	m.Send(title, message, color)
}

// Send fans message out to every sink without blocking on any one of them.
func (m *Manager) Send(title, message, color string) {
	for _, sink := range m.sinks {
		go func(s Sink) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.Send(ctx, title, message, color); err != nil {
				m.log.Error().Err(err).Msg("notifier sink failed")
			}
		}(sink)
	}
}

func render(signal domain.Signal, result *domain.OrderResult) (title, message, color string) {
	title = "PRISM INSIGHT"
	when := humanize.Time(signal.Timestamp)

	switch {
	case result == nil:
		return title, humanizeLine(signal, "logged (dry-run)", when), "blue"
	case result.Skipped:
		return title, humanizeLine(signal, "skipped: "+result.Reason, when), "yellow"
	case result.Success:
		amount := humanize.Commaf(result.Quantity * result.Price)
		return title, humanizeLine(signal, "filled, notional "+amount, when), "green"
	default:
		return title, humanizeLine(signal, "failed: "+result.Reason, when), "red"
	}
}

func humanizeLine(signal domain.Signal, outcome, when string) string {
	return signal.Ticker + " " + string(signal.SignalType) + " (" + string(signal.Market) + ") " + when + " -- " + outcome
}

// SlackSink posts a plain-text message to a Slack incoming webhook.
type SlackSink struct {
	webhookURL string
	client     http.Client
}

func (s *SlackSink) Send(ctx context.Context, title, message, color string) error {
	body, err := json.Marshal(map[string]string{"text": "*" + title + "*\n" + message})
	if err != nil {
		return err
	}
	return post(ctx, &s.client, s.webhookURL, body)
}

// DiscordSink posts an embed to a Discord incoming webhook.
type DiscordSink struct {
	webhookURL string
	client     http.Client
}

var discordColors = map[string]int{
	"green":  5763719,
	"red":    15548997,
	"blue":   3447003,
	"yellow": 16776960,
}

func (s *DiscordSink) Send(ctx context.Context, title, message, color string) error {
	discordColor, ok := discordColors[color]
	if !ok {
		discordColor = discordColors["blue"]
	}
	body, err := json.Marshal(map[string]interface{}{
		"embeds": []map[string]interface{}{{
			"title":       title,
			"description": message,
			"color":       discordColor,
		}},
	})
	if err != nil {
		return err
	}
	return post(ctx, &s.client, s.webhookURL, body)
}

func post(ctx context.Context, client *http.Client, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	if client.Timeout == 0 {
		client.Timeout = 5 * time.Second
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("webhook post to %s: status %d", url, resp.StatusCode)
	}
	return nil
}
