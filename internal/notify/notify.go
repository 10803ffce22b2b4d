package notify

import (
	"context"
	"fmt"

	"github.com/hostmaster-io/hostmaster/internal/domain/account"
	apperrors "github.com/hostmaster-io/hostmaster/internal/pkg/errors"
	"github.com/hostmaster-io/hostmaster/internal/pkg/logger"
	"github.com/hostmaster-io/hostmaster/internal/pkg/retry"
)

// Payload is one rendered alert bound for a channel.
type Payload struct {
	Title    string
	Message  string
	Severity string
}

// Status of one delivery attempt sequence.
type Status string

const (
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// DeliveryResult reports what happened on a channel. Skipped means the
// account has no destination configured on that channel; it is an
// expected outcome, not a failure.
type DeliveryResult struct {
	Channel   string
	Status    Status
	Attempts  int
	MessageID string
	Err       error
}

// Sender is one channel adapter. Destination extracts the channel's
// address from the account; an empty destination skips delivery.
type Sender interface {
	Channel() string
	Destination(acct *account.Account) string
	Send(ctx context.Context, destination string, p Payload) (messageID string, err error)
	RetryPolicy() retry.Policy
}

// permanent marks misconfiguration (bad recipient, bad webhook) that
// no retry can fix. The mark stops the adapter retry loop and keeps
// the wrapping DeliveryError non-retryable at the queue layer.
func permanent(err error) error {
	return apperrors.Permanent(err)
}

// isRetryable is the shared retry predicate for channel adapters.
func isRetryable(err error) bool {
	return !apperrors.IsPermanent(err)
}

// Dispatcher routes a payload to the right channel adapter and runs
// its retry loop. It never retries at the queue level itself; the
// result is returned for the caller to log and count.
type Dispatcher struct {
	senders map[string]Sender
	log     *logger.Logger
}

// NewDispatcher creates a dispatcher over the given channel adapters
func NewDispatcher(log *logger.Logger, senders ...Sender) *Dispatcher {
	byChannel := make(map[string]Sender, len(senders))
	for _, s := range senders {
		byChannel[s.Channel()] = s
	}
	return &Dispatcher{senders: byChannel, log: log}
}

// Deliver sends the payload on one channel and reports the outcome.
func (d *Dispatcher) Deliver(ctx context.Context, channel string, acct *account.Account, p Payload) DeliveryResult {
	sender, ok := d.senders[channel]
	if !ok {
		return DeliveryResult{
			Channel: channel,
			Status:  StatusFailed,
			Err:     apperrors.DeliveryError(channel, fmt.Errorf("no adapter for channel")),
		}
	}

	destination := sender.Destination(acct)
	if destination == "" {
		d.log.WithFields(map[string]interface{}{
			"channel": channel,
			"user_id": acct.UserID,
		}).Debug("no destination configured, skipping delivery")
		return DeliveryResult{Channel: channel, Status: StatusSkipped}
	}

	var messageID string
	policy := sender.RetryPolicy()
	policy.Retryable = isRetryable

	attempts, err := policy.Do(ctx, func() error {
		id, sendErr := sender.Send(ctx, destination, p)
		if sendErr == nil {
			messageID = id
		}
		return sendErr
	})
	if err != nil {
		return DeliveryResult{
			Channel:  channel,
			Status:   StatusFailed,
			Attempts: attempts,
			Err:      apperrors.DeliveryError(channel, err),
		}
	}

	return DeliveryResult{
		Channel:   channel,
		Status:    StatusDelivered,
		Attempts:  attempts,
		MessageID: messageID,
	}
}

// permanentHTTPStatus reports response codes that indicate permanent
// misconfiguration rather than a transient outage.
func permanentHTTPStatus(status int) bool {
	switch status {
	case 400, 401, 403, 404:
		return true
	}
	return false
}
