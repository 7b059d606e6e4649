package appointment

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusBooked    Status = "booked"
	StatusCanceled  Status = "canceled"
	StatusCompleted Status = "completed"
	StatusNoShow    Status = "no-show"
)

type Timeslot struct {
	ID         uuid.UUID `json:"id"`
	ProviderID uuid.UUID `json:"provider_id"`
	Day        time.Time `json:"day"`
	StartTime  Clock     `json:"start_time"`
	EndTime    Clock     `json:"end_time"`
	IsBooked   bool      `json:"is_booked"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (t Timeslot) StartsAt() time.Time {
	return t.StartTime.On(t.Day)
}

func (t Timeslot) Duration() time.Duration {
	return time.Duration(t.EndTime-t.StartTime) * time.Minute
}

type Appointment struct {
	ID              uuid.UUID  `json:"id"`
	UserID          uuid.UUID  `json:"user_id"`
	ProviderID      uuid.UUID  `json:"provider_id"`
	TimeslotID      uuid.UUID  `json:"timeslot_id"`
	AppointmentDate time.Time  `json:"appointment_date"`
	Status          Status     `json:"status"`
	ReminderSentAt  *time.Time `json:"reminder_sent_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// AppointmentView is an appointment as one party sees it, joined with its slot
// and the other party's name.
type AppointmentView struct {
	ID                    uuid.UUID `json:"id"`
	Status                Status    `json:"status"`
	CreatedAt             time.Time `json:"created_at"`
	TimeslotID            uuid.UUID `json:"timeslot_id"`
	Day                   time.Time `json:"day"`
	StartTime             Clock     `json:"start_time"`
	EndTime               Clock     `json:"end_time"`
	CounterpartyID        uuid.UUID `json:"counterparty_id"`
	CounterpartyFirstName string    `json:"counterparty_first_name"`
	CounterpartyLastName  string    `json:"counterparty_last_name"`
}

// SlotPatch lists the slot fields a provider may change. Nil means unchanged.
type SlotPatch struct {
	Day       *time.Time
	StartTime *Clock
	EndTime   *Clock
}

func (p SlotPatch) Empty() bool {
	return p.Day == nil && p.StartTime == nil && p.EndTime == nil
}

// Apply returns slot with the patch merged in.
func (p SlotPatch) Apply(slot Timeslot) Timeslot {
	if p.Day != nil {
		slot.Day = DateOnly(*p.Day)
	}
	if p.StartTime != nil {
		slot.StartTime = *p.StartTime
	}
	if p.EndTime != nil {
		slot.EndTime = *p.EndTime
	}
	return slot
}

type RescheduleResult struct {
	Appointment *Appointment `json:"appointment"`
	OldTimeslot *Timeslot    `json:"old_timeslot"`
	NewTimeslot *Timeslot    `json:"new_timeslot"`
}

// DueReminder is a booked appointment whose slot starts soon.
type DueReminder struct {
	AppointmentID uuid.UUID
	UserID        uuid.UUID
	ProviderID    uuid.UUID
	Day           time.Time
	StartTime     Clock
	EndTime       Clock
}
