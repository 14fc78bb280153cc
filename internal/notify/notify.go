// Package notify posts plain-text alerts for session failures to an
// ntfy-style endpoint.
package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dgnsrekt/flow_shell/internal/events"
)

// Message returns the alert text for evt, or "" when evt needs no alert.
func Message(evt events.Event) string {
	if evt.Feed != events.FeedSession {
		return ""
	}
	switch evt.Type {
	case "save_failed":
		return fmt.Sprintf("flowshell: saving session %s failed after retries", evt.Subject)
	case "restore_partial":
		return fmt.Sprintf("flowshell: session %s was only partially restored", evt.Subject)
	case "restore_aborted":
		return fmt.Sprintf("flowshell: restoring session %s was aborted", evt.Subject)
	default:
		return ""
	}
}

// Run sends an alert for every session failure published on broker until
// ctx is done. It blocks.
func Run(ctx context.Context, broker *events.Broker, client *http.Client, endpoint string) {
	broker.Consume(ctx, func(evt events.Event) {
		msg := Message(evt)
		if msg == "" {
			return
		}
		if err := Send(ctx, client, endpoint, msg); err != nil {
			slog.Warn("session alert failed", "endpoint", endpoint, "type", evt.Type, "error", err)
		}
	})
}

// Send sends a message to the requested endpoint using HTTP POST.
func Send(ctx context.Context, client *http.Client, endpoint, message string) error {
	c := client
	if c == nil {
		c = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(message))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy notification failed: status=%d", resp.StatusCode)
	}
	return nil
}
