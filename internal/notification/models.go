// Package notification holds the aggregator-side notification domain:
// records derived from audit events plus a small CRUD surface of their own.
package notification

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Notification types derived from audit payload actions.
const (
	TypeLogin          = "login"
	TypeProfileUpdate  = "profile_update"
	TypePhotoUpdate    = "photo_update"
	TypePasswordChange = "password_change"
	TypeClockIn        = "clock_in"
	TypeClockOut       = "clock_out"
)

// actionTypes maps audit payload actions to notification types. Actions not
// listed here produce no notification.
var actionTypes = map[string]string{
	"login":           TypeLogin,
	"profile_update":  TypeProfileUpdate,
	"photo_update":    TypePhotoUpdate,
	"password_change": TypePasswordChange,
	"check-in":        TypeClockIn,
	"check-out":       TypeClockOut,
}

// TypeForAction resolves the notification type for an audit action.
func TypeForAction(action string) (string, bool) {
	t, ok := actionTypes[action]
	return t, ok
}

// Notification is one row of the notifications table.
type Notification struct {
	ID        uuid.UUID      `json:"id"`
	UserID    uuid.UUID      `json:"user_id"`
	Type      string         `json:"notification_type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	IsRead    bool           `json:"is_read"`
	ReadAt    *time.Time     `json:"read_at,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// CreateInput is what callers provide; the store mints id and created_at.
type CreateInput struct {
	UserID   uuid.UUID      `json:"user_id"`
	Type     string         `json:"notification_type"`
	Title    string         `json:"title"`
	Message  string         `json:"message"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Validate checks the fields an insert requires.
func (in CreateInput) Validate() error {
	if in.UserID == uuid.Nil {
		return fmt.Errorf("notification requires user_id")
	}
	if in.Type == "" {
		return fmt.Errorf("notification requires notification_type")
	}
	if in.Title == "" {
		return fmt.Errorf("notification requires title")
	}
	return nil
}

// Filter narrows List queries.
type Filter struct {
	UserID *uuid.UUID
	IsRead *bool
	Limit  int
}

// Typed constructors for the notification kinds the projector emits.

func NewLogin(userID uuid.UUID, email string) CreateInput {
	return CreateInput{
		UserID:  userID,
		Type:    TypeLogin,
		Title:   "User Login",
		Message: email + " logged in",
		Metadata: map[string]any{
			"email":     email,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	}
}

func NewProfileUpdate(userID uuid.UUID, email, changedFields string) CreateInput {
	return CreateInput{
		UserID:  userID,
		Type:    TypeProfileUpdate,
		Title:   "Profile Updated",
		Message: email + " updated profile: " + changedFields,
		Metadata: map[string]any{
			"email":     email,
			"changes":   changedFields,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	}
}

func NewPhotoUpdate(userID uuid.UUID, email string) CreateInput {
	return CreateInput{
		UserID:  userID,
		Type:    TypePhotoUpdate,
		Title:   "Profile Photo Updated",
		Message: email + " updated profile photo",
		Metadata: map[string]any{
			"email":     email,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	}
}

func NewPasswordChange(userID uuid.UUID, email string) CreateInput {
	return CreateInput{
		UserID:  userID,
		Type:    TypePasswordChange,
		Title:   "Password Changed",
		Message: email + " changed password",
		Metadata: map[string]any{
			"email":     email,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	}
}

func NewClockIn(userID uuid.UUID, email string, at time.Time) CreateInput {
	return CreateInput{
		UserID:  userID,
		Type:    TypeClockIn,
		Title:   "Clock In",
		Message: email + " clocked in",
		Metadata: map[string]any{
			"email":         email,
			"check_in_time": at.UTC().Format(time.RFC3339),
		},
	}
}

func NewClockOut(userID uuid.UUID, email string, at time.Time) CreateInput {
	return CreateInput{
		UserID:  userID,
		Type:    TypeClockOut,
		Title:   "Clock Out",
		Message: email + " clocked out",
		Metadata: map[string]any{
			"email":          email,
			"check_out_time": at.UTC().Format(time.RFC3339),
		},
	}
}
