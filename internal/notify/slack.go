package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hostmaster-io/hostmaster/internal/domain/account"
	"github.com/hostmaster-io/hostmaster/internal/domain/alert"
	"github.com/hostmaster-io/hostmaster/internal/pkg/retry"
)

const slackWebhookPrefix = "https://hooks.slack.com/"

var severityEmoji = map[string]string{
	alert.SeverityCritical: ":rotating_light:",
	alert.SeverityWarning:  ":warning:",
	alert.SeverityInfo:     ":information_source:",
}

// SlackSender delivers alerts to a Slack incoming webhook.
type SlackSender struct {
	httpClient *http.Client
}

// NewSlackSender creates a Slack webhook adapter
func NewSlackSender() *SlackSender {
	return &SlackSender{
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *SlackSender) Channel() string { return alert.ChannelSlack }

func (s *SlackSender) Destination(acct *account.Account) string {
	return acct.SlackWebhookURL
}

func (s *SlackSender) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: 3,
		Delay:       500 * time.Millisecond,
		Backoff:     retry.BackoffExponential,
	}
}

func (s *SlackSender) Send(ctx context.Context, destination string, p Payload) (string, error) {
	if !strings.HasPrefix(destination, slackWebhookPrefix) {
		return "", permanent(fmt.Errorf("webhook URL is not a slack incoming webhook"))
	}

	emoji := severityEmoji[p.Severity]
	body, err := json.Marshal(map[string]interface{}{
		"text": fmt.Sprintf("%s %s", emoji, p.Title),
		"blocks": []map[string]interface{}{
			{
				"type": "header",
				"text": map[string]interface{}{"type": "plain_text", "text": fmt.Sprintf("%s %s", emoji, p.Title), "emoji": true},
			},
			{
				"type": "section",
				"text": map[string]string{"type": "mrkdwn", "text": p.Message},
			},
		},
	})
	if err != nil {
		return "", permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, destination, bytes.NewReader(body))
	if err != nil {
		return "", permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := fmt.Errorf("slack webhook returned status %d: %s", resp.StatusCode, respBody)
		if permanentHTTPStatus(resp.StatusCode) {
			return "", permanent(err)
		}
		return "", err
	}

	return "", nil
}
