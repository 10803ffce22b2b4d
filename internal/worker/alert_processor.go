package worker

import (
	"context"
	"encoding/json"

	"github.com/hostmaster-io/hostmaster/internal/domain/account"
	"github.com/hostmaster-io/hostmaster/internal/notify"
	"github.com/hostmaster-io/hostmaster/internal/pkg/errors"
	"github.com/hostmaster-io/hostmaster/internal/pkg/logger"
	"github.com/hostmaster-io/hostmaster/internal/pkg/metrics"
	"github.com/hostmaster-io/hostmaster/internal/queue"
	"github.com/hostmaster-io/hostmaster/internal/services"
)

// AlertProcessor delivers one alert on one channel per claimed task.
// Channel-level retries happen inside the dispatcher; a failed result
// bubbles to the queue for its own retry budget.
type AlertProcessor struct {
	accounts   account.Repository
	dispatcher *notify.Dispatcher
	log        *logger.Logger
}

// NewAlertProcessor creates a new alert delivery processor
func NewAlertProcessor(accounts account.Repository, dispatcher *notify.Dispatcher, log *logger.Logger) *AlertProcessor {
	return &AlertProcessor{
		accounts:   accounts,
		dispatcher: dispatcher,
		log:        log,
	}
}

// Handle delivers one alert payload.
func (p *AlertProcessor) Handle(ctx context.Context, t *queue.Task) error {
	var payload services.AlertTaskPayload
	if err := json.Unmarshal(t.Payload, &payload); err != nil {
		return errors.ValidationError("malformed alert task payload", err.Error())
	}

	acct, err := p.accounts.GetByID(ctx, payload.AccountID)
	if err != nil {
		return err
	}

	result := p.dispatcher.Deliver(ctx, payload.Channel, acct, notify.Payload{
		Title:    payload.Title,
		Message:  payload.Message,
		Severity: payload.Severity,
	})
	metrics.RecordDelivery(result.Channel, string(result.Status))

	log := p.log.WithFields(map[string]interface{}{
		"alert_id": payload.AlertID,
		"channel":  result.Channel,
		"attempts": result.Attempts,
	})

	switch result.Status {
	case notify.StatusFailed:
		log.ErrorWithErr(result.Err, "alert delivery failed")
		return result.Err
	case notify.StatusSkipped:
		log.Debug("alert delivery skipped, no destination")
	default:
		log.With("message_id", result.MessageID).Info("alert delivered")
	}
	return nil
}
