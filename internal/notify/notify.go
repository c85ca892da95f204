// Package notify implements the notification fan-out. Events are dispatched
// after the domain transaction commits; delivery is best-effort and a
// transport failure never propagates to the API caller.
package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/omi1811/concretethings-sub000/internal/qsm/entity"
	"github.com/omi1811/concretethings-sub000/internal/qsm/repository"
)

// Event is one typed notification to a set of recipients.
type Event struct {
	Type       string
	ProjectID  string
	EntityID   string
	NCID       string
	CubeTestID string
	Subject    string
	Body       string
	Recipients []string // user ids, deduplicated by the dispatcher
}

// Transport delivers one message to one user over one channel.
type Transport interface {
	Channel() string
	Send(ctx context.Context, user *entity.User, subject, body string) error
}

// Dispatcher fans events out per recipient with channel preference order
// [whatsapp, email, in_app], falling back on transport failure and writing
// one NotificationLog row per attempt.
type Dispatcher struct {
	transports []Transport
	users      *repository.UserRepository
	logs       *repository.NotificationRepository
	projects   *repository.ProjectRepository
	logger     *zap.Logger
	maxRetries int
}

func NewDispatcher(
	transports []Transport,
	users *repository.UserRepository,
	logs *repository.NotificationRepository,
	projects *repository.ProjectRepository,
	logger *zap.Logger,
	maxRetries int,
) *Dispatcher {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Dispatcher{
		transports: transports,
		users:      users,
		logs:       logs,
		projects:   projects,
		logger:     logger,
		maxRetries: maxRetries,
	}
}

// Dispatch sends one event to all recipients. Errors are logged, never
// returned: the business transaction has already committed.
func (d *Dispatcher) Dispatch(ctx context.Context, event Event) {
	settings, err := d.projects.Settings(ctx, event.ProjectID)
	if err != nil {
		d.logger.Warn("notify: settings lookup failed",
			zap.String("project_id", event.ProjectID), zap.Error(err))
		settings = entity.DefaultSettings(event.ProjectID)
	}

	seen := map[string]bool{}
	for _, userID := range event.Recipients {
		if userID == "" || seen[userID] {
			continue
		}
		seen[userID] = true
		d.deliverToUser(ctx, event, settings, userID)
	}
}

// DispatchAll sends a slice of queued events in order.
func (d *Dispatcher) DispatchAll(ctx context.Context, events []Event) {
	for _, e := range events {
		d.Dispatch(ctx, e)
	}
}

func (d *Dispatcher) deliverToUser(ctx context.Context, event Event, settings *entity.ProjectSettings, userID string) {
	// Same-day duplicate of the same event for the same entity is
	// suppressed; idempotent re-transitions must not re-notify.
	if sent, err := d.logs.SentToday(ctx, event.Type, event.EntityID, userID); err == nil && sent {
		return
	}

	user, err := d.users.FindByID(ctx, userID)
	if err != nil {
		d.logger.Warn("notify: recipient lookup failed",
			zap.String("user_id", userID), zap.Error(err))
		return
	}

	for _, transport := range d.transports {
		if !d.channelEnabled(transport.Channel(), settings) {
			continue
		}

		sendErr := transport.Send(ctx, user, event.Subject, event.Body)
		d.writeLog(ctx, event, transport.Channel(), userID, sendErr)
		if sendErr == nil {
			return
		}
		d.logger.Warn("notify: transport failed, falling back",
			zap.String("channel", transport.Channel()),
			zap.String("event", event.Type),
			zap.String("user_id", userID),
			zap.Error(sendErr))
	}
}

func (d *Dispatcher) channelEnabled(channel string, settings *entity.ProjectSettings) bool {
	switch channel {
	case entity.ChannelWhatsapp:
		return settings.EnableWhatsappNotifications
	case entity.ChannelEmail:
		return settings.EnableEmailNotifications
	case entity.ChannelInApp:
		return true
	}
	return false
}

func (d *Dispatcher) writeLog(ctx context.Context, event Event, channel, userID string, sendErr error) {
	row := &entity.NotificationLog{
		ProjectID:       event.ProjectID,
		EventType:       event.Type,
		EntityID:        event.EntityID,
		Channel:         channel,
		RecipientUserID: userID,
		Subject:         event.Subject,
		Body:            event.Body,
		DeliveryStatus:  entity.DeliverySent,
		SentAt:          time.Now(),
	}
	if event.NCID != "" {
		row.NCID = &event.NCID
	}
	if event.CubeTestID != "" {
		row.CubeTestID = &event.CubeTestID
	}
	if sendErr != nil {
		row.DeliveryStatus = entity.DeliveryFailed
		row.FailureReason = sendErr.Error()
	}
	if err := d.logs.Create(ctx, row); err != nil {
		d.logger.Warn("notify: log write failed", zap.Error(err))
	}
}

// RetryFailed re-attempts failed deliveries below the retry cap. Called by
// the scheduler between ticks.
func (d *Dispatcher) RetryFailed(ctx context.Context, limit int) {
	rows, err := d.logs.FindFailed(ctx, d.maxRetries, limit)
	if err != nil {
		d.logger.Warn("notify: retry scan failed", zap.Error(err))
		return
	}
	for i := range rows {
		row := &rows[i]
		user, err := d.users.FindByID(ctx, row.RecipientUserID)
		if err != nil {
			continue
		}
		transport := d.transportFor(row.Channel)
		if transport == nil {
			continue
		}
		row.Attempts++
		if err := transport.Send(ctx, user, row.Subject, row.Body); err == nil {
			row.DeliveryStatus = entity.DeliverySent
			row.FailureReason = ""
			row.SentAt = time.Now()
		} else {
			row.FailureReason = err.Error()
		}
		if err := d.logs.Update(ctx, row); err != nil {
			d.logger.Warn("notify: retry update failed", zap.Error(err))
		}
	}
}

func (d *Dispatcher) transportFor(channel string) Transport {
	for _, t := range d.transports {
		if t.Channel() == channel {
			return t
		}
	}
	return nil
}
