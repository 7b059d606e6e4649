package notification

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/booking-platform/internal/apperr"
	"github.com/hackgods/booking-platform/internal/auth"
)

type Type string

const (
	TypeNewAppointment         Type = "new_appointment"
	TypeAppointmentCanceled    Type = "appointment_canceled"
	TypeAppointmentRescheduled Type = "appointment_rescheduled"
	TypeAppointmentReminder    Type = "appointment_reminder"
)

var ErrNotFound = apperr.New(apperr.NotFound, "notification_not_found", "notification not found")

type Notification struct {
	ID        uuid.UUID      `json:"id"`
	UserID    uuid.UUID      `json:"user_id"`
	Type      Type           `json:"type"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data"`
	IsRead    bool           `json:"is_read"`
	CreatedAt time.Time      `json:"created_at"`
}

// Recipient identifies whose history the row lands in and which room gets the push.
type Recipient struct {
	UserID uuid.UUID
	Role   auth.Role
}

func (r Recipient) Room() string {
	return auth.RoomFor(r.Role, r.UserID)
}

type Message struct {
	Recipient Recipient
	Type      Type
	Text      string
	Data      map[string]any
}
