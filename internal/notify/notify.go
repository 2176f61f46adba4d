// Package notify delivers scan alerts to an external sink.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/kiranshivaraju/scanhunter/pkg/models"
)

// Sentinel errors for notification delivery failures.
var (
	ErrNoEndpoint      = errors.New("no alert endpoint configured")
	ErrDeliveryFailed  = errors.New("alert delivery failed")
	ErrDeliveryTimeout = errors.New("alert delivery timeout")
)

// Notifier hands an alert summary to a sink. Delivery is best effort; callers
// log the error and move on.
type Notifier interface {
	Notify(ctx context.Context, webhookURL string, summary models.AlertSummary) error
}

// WebhookNotifier posts the summary as JSON to a Slack-compatible incoming webhook.
type WebhookNotifier struct {
	client *http.Client
}

// NewWebhookNotifier creates a notifier whose requests are bounded by timeout.
func NewWebhookNotifier(timeout time.Duration) *WebhookNotifier {
	return &WebhookNotifier{client: &http.Client{Timeout: timeout}}
}

// webhookPayload carries a one-line text for chat sinks and the full summary
// for machine consumers.
type webhookPayload struct {
	Text    string              `json:"text"`
	Summary models.AlertSummary `json:"summary"`
}

func (n *WebhookNotifier) Notify(ctx context.Context, webhookURL string, summary models.AlertSummary) error {
	if webhookURL == "" {
		return ErrNoEndpoint
	}

	body, err := json.Marshal(webhookPayload{Text: FormatText(summary), Summary: summary})
	if err != nil {
		return fmt.Errorf("encoding alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return classifyError(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: status %d", ErrDeliveryFailed, resp.StatusCode)
	}
	return nil
}

// FormatText renders the summary as a single human-readable line.
func FormatText(s models.AlertSummary) string {
	text := fmt.Sprintf("Security scan of %s: %d findings (%d critical). Vulnerabilities: %d, secrets: %d, code issues: %d.",
		s.RepoFullName, s.Total, s.Critical, s.Vulnerabilities.Total, s.Secrets, s.CodeIssues.Total)
	if len(s.TopRules) > 0 {
		rules := make([]string, len(s.TopRules))
		for i, r := range s.TopRules {
			rules[i] = fmt.Sprintf("%s (%d)", r.RuleID, r.Count)
		}
		text += " Top rules: " + strings.Join(rules, ", ") + "."
	}
	if s.ToolErrors > 0 {
		text += fmt.Sprintf(" %d tool(s) failed to run.", s.ToolErrors)
	}
	return text
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrDeliveryTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrDeliveryTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
}

// Compile-time check that WebhookNotifier implements Notifier.
var _ Notifier = (*WebhookNotifier)(nil)
