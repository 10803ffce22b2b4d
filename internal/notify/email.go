package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/hostmaster-io/hostmaster/internal/domain/account"
	"github.com/hostmaster-io/hostmaster/internal/domain/alert"
	"github.com/hostmaster-io/hostmaster/internal/pkg/retry"
)

// EmailSender delivers alerts through SendGrid.
type EmailSender struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
}

// NewEmailSender creates a SendGrid-backed email adapter
func NewEmailSender(apiKey, fromEmail, fromName string) *EmailSender {
	return &EmailSender{
		client:    sendgrid.NewSendClient(apiKey),
		fromEmail: fromEmail,
		fromName:  fromName,
	}
}

func (s *EmailSender) Channel() string { return alert.ChannelEmail }

func (s *EmailSender) Destination(acct *account.Account) string {
	return acct.Email
}

func (s *EmailSender) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: 3,
		Delay:       500 * time.Millisecond,
		Backoff:     retry.BackoffExponential,
	}
}

func (s *EmailSender) Send(ctx context.Context, destination string, p Payload) (string, error) {
	from := mail.NewEmail(s.fromName, s.fromEmail)
	to := mail.NewEmail(destination, destination)
	subject := fmt.Sprintf("[%s] %s", strings.ToUpper(p.Severity), p.Title)

	html := fmt.Sprintf("<h2>%s</h2><p>%s</p>", p.Title, p.Message)
	message := mail.NewSingleEmail(from, subject, to, p.Message, html)

	resp, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return "", err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("sendgrid returned status %d: %s", resp.StatusCode, resp.Body)
		if permanentHTTPStatus(resp.StatusCode) {
			return "", permanent(err)
		}
		return "", err
	}

	return messageIDFromHeaders(resp.Headers), nil
}

func messageIDFromHeaders(headers map[string][]string) string {
	if ids := headers["X-Message-Id"]; len(ids) > 0 {
		return ids[0]
	}
	return ""
}
