// Package notify delivers short notices about failures the user should know
// about but that never interrupt the conversation.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"mealchat"
)

// Webhook posts to a Slack-compatible incoming webhook.
type Webhook struct {
	webhookURL string
	channel    string
	httpClient mealchat.HTTPClient
}

func NewWebhook(webhookURL, channel string, httpClient mealchat.HTTPClient) *Webhook {
	return &Webhook{
		webhookURL: webhookURL,
		channel:    channel,
		httpClient: httpClient,
	}
}

func (w *Webhook) Notify(ctx context.Context, message string) error {
	payload, err := json.Marshal(map[string]any{
		"channel": w.channel,
		"text":    message,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to post message: %s", resp.Status)
	}
	return nil
}

// Log writes notices to slog. It is the fallback when no webhook is configured.
type Log struct{}

func (Log) Notify(ctx context.Context, message string) error {
	slog.WarnContext(ctx, "NOTIFY: "+message)
	return nil
}

// Multi fans a notice out to every notifier and joins their errors.
type Multi []mealchat.Notifier

func (m Multi) Notify(ctx context.Context, message string) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Async returns a notifier that delivers in the background and never blocks the caller.
// Delivery errors are logged.
func Async(n mealchat.Notifier) mealchat.Notifier {
	return asyncNotifier{next: n}
}

type asyncNotifier struct {
	next mealchat.Notifier
}

func (a asyncNotifier) Notify(ctx context.Context, message string) error {
	ctx = context.WithoutCancel(ctx)
	go func() {
		if err := a.next.Notify(ctx, message); err != nil {
			slog.Warn("NOTIFY: Delivery failed", "error", err)
		}
	}()
	return nil
}
