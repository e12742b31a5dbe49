// Package projector derives notifications from canonical audit records. It
// sits behind the central consumer; whatever it fails to project is logged
// and gone, like everything else downstream of the relay.
package projector

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"auditflow/internal/audit"
	"auditflow/internal/notification"
)

// Service is the slice of the notification service the projector needs.
type Service interface {
	Create(ctx context.Context, in notification.CreateInput) (*notification.Notification, error)
}

// Projector turns recognized audit actions into notifications.
type Projector struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Projector {
	return &Projector{service: service, logger: logger}
}

// Project creates a notification when the record's action maps to a
// notification type and the record targets a user. Everything else is
// silently skipped; failures are logged and swallowed.
func (p *Projector) Project(ctx context.Context, rec *audit.Record) {
	if rec.TargetUserID == nil {
		return
	}
	event := rec.Event()
	notifType, ok := notification.TypeForAction(event.Action())
	if !ok {
		return
	}

	in := buildInput(notifType, *rec.TargetUserID, event)
	if _, err := p.service.Create(ctx, in); err != nil {
		p.logger.Error("notification projection failed",
			"audit_record_id", rec.ID,
			"notification_type", notifType,
			"error", err)
	}
}

func buildInput(notifType string, userID uuid.UUID, event audit.Event) notification.CreateInput {
	email, _ := event.Payload["email"].(string)
	if email == "" {
		email = "unknown user"
	}

	switch notifType {
	case notification.TypeLogin:
		return notification.NewLogin(userID, email)
	case notification.TypeProfileUpdate:
		changed, _ := event.Payload["changed_fields"].(string)
		return notification.NewProfileUpdate(userID, email, changed)
	case notification.TypePhotoUpdate:
		return notification.NewPhotoUpdate(userID, email)
	case notification.TypePasswordChange:
		return notification.NewPasswordChange(userID, email)
	case notification.TypeClockIn:
		return notification.NewClockIn(userID, email, time.Now())
	case notification.TypeClockOut:
		return notification.NewClockOut(userID, email, time.Now())
	default:
		return notification.CreateInput{
			UserID: userID,
			Type:   notifType,
			Title:  notifType,
		}
	}
}
