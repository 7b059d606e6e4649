package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store is the persistence boundary of the booking core. Mutations that must
// be atomic go through InTx; the rest are single-statement reads and inserts.
type Store interface {
	// InTx runs fn in one transaction; a non-nil error from fn rolls it back.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	ProviderUserID(ctx context.Context, providerID uuid.UUID) (uuid.UUID, error)
	ListForClient(ctx context.Context, userID uuid.UUID) ([]AppointmentView, error)
	ListForProvider(ctx context.Context, providerID uuid.UUID) ([]AppointmentView, error)

	InsertSlot(ctx context.Context, providerID uuid.UUID, day time.Time, start, end Clock) (*Timeslot, error)
	ListSlots(ctx context.Context, providerID uuid.UUID, availableOnly bool) ([]Timeslot, error)
}

// Tx is the set of statements available inside a booking transaction.
// Lock* methods take an exclusive row lock held until commit or rollback.
type Tx interface {
	LockSlot(ctx context.Context, id uuid.UUID) (*Timeslot, error)
	SetSlotBooked(ctx context.Context, id uuid.UUID, booked bool) (*Timeslot, error)
	UpdateSlot(ctx context.Context, slot Timeslot) (*Timeslot, error)
	DeleteSlot(ctx context.Context, id uuid.UUID) error

	LockAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
	InsertAppointment(ctx context.Context, userID uuid.UUID, slot Timeslot) (*Appointment, error)
	SetAppointmentStatus(ctx context.Context, id uuid.UUID, status Status) (*Appointment, error)
	MoveAppointment(ctx context.Context, id uuid.UUID, slot Timeslot) (*Appointment, error)

	// LockDueReminders skips rows another worker already holds.
	LockDueReminders(ctx context.Context, from, to time.Time, limit int) ([]DueReminder, error)
	MarkRemindersSent(ctx context.Context, ids []uuid.UUID, at time.Time) error
}
