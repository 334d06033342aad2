package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/xpmail/formhub/internal/huberrors"
	"github.com/xpmail/formhub/internal/models"
	"github.com/xpmail/formhub/internal/observability"
)

var errChannelDisabled = errors.New("channel is not configured on this server")

// EmailSender mails a submission summary.
type EmailSender interface {
	Send(ctx context.Context, to, title string, rows []Row) error
}

// WebhookPoster posts a submission summary to a webhook, chunked into blocks of at most MaxRowsPerBlock rows.
type WebhookPoster interface {
	Post(ctx context.Context, url, title string, rows []Row) error
}

// Dispatcher makes the single notification attempt for a stored submission.
type Dispatcher struct {
	email   EmailSender
	webhook WebhookPoster
	metrics observability.FormMetrics
}

// NewDispatcher creates a dispatcher. A nil sender disables its channel; metrics may be nil.
func NewDispatcher(email EmailSender, webhook WebhookPoster, metrics observability.FormMetrics) *Dispatcher {
	return &Dispatcher{email: email, webhook: webhook, metrics: metrics}
}

// Dispatch notifies the owner of form about answers through the form's configured channel.
// It returns nil when the form has no notification destination. Failures are reported in the
// outcome and never returned.
func (d *Dispatcher) Dispatch(ctx context.Context, form *models.Form, answers models.Answers) *models.NotificationOutcome {
	channel := form.NotificationDestination
	if channel == "" || channel == models.NotifyNone {
		return nil
	}

	rows := Rows(form.Questions, answers)
	start := time.Now()

	var err error

	switch channel {
	case models.NotifyEmail:
		if d.email == nil {
			err = errChannelDisabled
		} else {
			err = d.email.Send(ctx, deref(form.ReceiverEmail), form.Title, rows)
		}
	case models.NotifyWebhook:
		if d.webhook == nil {
			err = errChannelDisabled
		} else {
			err = d.webhook.Post(ctx, deref(form.WebhookURL), form.Title, rows)
		}
	default:
		return nil
	}

	outcome := &models.NotificationOutcome{Channel: channel, Delivered: err == nil}
	result := observability.NotificationDelivered

	if err != nil {
		notifyErr := huberrors.NewNotificationError(string(channel), err)
		outcome.Warning = "Your response was saved, but the form owner could not be notified."
		result = observability.NotificationFailed

		slog.WarnContext(ctx, "Failed to deliver submission notification",
			"form_id", form.ID,
			"channel", channel,
			"error", notifyErr,
		)
	}

	if d.metrics != nil {
		d.metrics.RecordNotification(ctx, string(channel), result, time.Since(start))
	}

	return outcome
}

func deref(s *string) string {
	if s == nil {
		return ""
	}

	return *s
}
