package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hostmaster-io/hostmaster/internal/domain/account"
	"github.com/hostmaster-io/hostmaster/internal/domain/alert"
	"github.com/hostmaster-io/hostmaster/internal/pkg/retry"
)

const twilioBaseURL = "https://api.twilio.com/2010-04-01"

// SMSSender delivers alerts as text messages through the Twilio REST
// API. SMS is reserved for criticals, so the body is kept short.
type SMSSender struct {
	accountSID string
	authToken  string
	fromNumber string
	baseURL    string
	httpClient *http.Client
}

// NewSMSSender creates a Twilio-backed SMS adapter
func NewSMSSender(accountSID, authToken, fromNumber string) *SMSSender {
	return &SMSSender{
		accountSID: accountSID,
		authToken:  authToken,
		fromNumber: fromNumber,
		baseURL:    twilioBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *SMSSender) Channel() string { return alert.ChannelSMS }

func (s *SMSSender) Destination(acct *account.Account) string {
	return acct.PhoneNumber
}

func (s *SMSSender) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: 3,
		Delay:       time.Second,
		Backoff:     retry.BackoffExponential,
	}
}

func (s *SMSSender) Send(ctx context.Context, destination string, p Payload) (string, error) {
	if s.accountSID == "" || s.authToken == "" || s.fromNumber == "" {
		return "", permanent(fmt.Errorf("sms gateway is not configured"))
	}

	form := url.Values{}
	form.Set("To", destination)
	form.Set("From", s.fromNumber)
	form.Set("Body", fmt.Sprintf("%s: %s", p.Title, p.Message))

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", s.baseURL, s.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", permanent(err)
	}
	req.SetBasicAuth(s.accountSID, s.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("twilio returned status %d: %s", resp.StatusCode, body)
		if permanentHTTPStatus(resp.StatusCode) {
			return "", permanent(err)
		}
		return "", err
	}

	var created struct {
		SID string `json:"sid"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return "", nil // delivered; message id is best-effort
	}
	return created.SID, nil
}
