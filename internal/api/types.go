package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/booking-platform/internal/appointment"
)

const dayLayout = time.DateOnly

type BookRequest struct {
	TimeslotID string `json:"timeslot_id"`
}

type RescheduleRequest struct {
	NewTimeslotID string `json:"new_timeslot_id"`
}

type CreateSlotRequest struct {
	Day       string `json:"day"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// UpdateSlotRequest carries only the fields being changed.
type UpdateSlotRequest struct {
	Day       *string `json:"day,omitempty"`
	StartTime *string `json:"start_time,omitempty"`
	EndTime   *string `json:"end_time,omitempty"`
}

type AppointmentResponse struct {
	ID              uuid.UUID          `json:"id"`
	UserID          uuid.UUID          `json:"user_id"`
	ProviderID      uuid.UUID          `json:"provider_id"`
	TimeslotID      uuid.UUID          `json:"timeslot_id"`
	AppointmentDate string             `json:"appointment_date"`
	Status          appointment.Status `json:"status"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

type SlotResponse struct {
	ID         uuid.UUID         `json:"id"`
	ProviderID uuid.UUID         `json:"provider_id"`
	Day        string            `json:"day"`
	StartTime  appointment.Clock `json:"start_time"`
	EndTime    appointment.Clock `json:"end_time"`
	IsBooked   bool              `json:"is_booked"`
}

type AppointmentViewResponse struct {
	ID           uuid.UUID          `json:"id"`
	Status       appointment.Status `json:"status"`
	CreatedAt    time.Time          `json:"created_at"`
	TimeslotID   uuid.UUID          `json:"timeslot_id"`
	Day          string             `json:"day"`
	StartTime    appointment.Clock  `json:"start_time"`
	EndTime      appointment.Clock  `json:"end_time"`
	Counterparty PersonResponse     `json:"counterparty"`
}

type PersonResponse struct {
	ID        uuid.UUID `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
}

type RescheduleResponse struct {
	Appointment AppointmentResponse `json:"appointment"`
	NewTimeslot SlotResponse        `json:"new_timeslot"`
}

type CountResponse struct {
	Count int64 `json:"count"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:              a.ID,
		UserID:          a.UserID,
		ProviderID:      a.ProviderID,
		TimeslotID:      a.TimeslotID,
		AppointmentDate: a.AppointmentDate.Format(dayLayout),
		Status:          a.Status,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

func toSlotResponse(s *appointment.Timeslot) SlotResponse {
	return SlotResponse{
		ID:         s.ID,
		ProviderID: s.ProviderID,
		Day:        s.Day.Format(dayLayout),
		StartTime:  s.StartTime,
		EndTime:    s.EndTime,
		IsBooked:   s.IsBooked,
	}
}

func toSlotResponses(slots []appointment.Timeslot) []SlotResponse {
	out := make([]SlotResponse, 0, len(slots))
	for i := range slots {
		out = append(out, toSlotResponse(&slots[i]))
	}
	return out
}

func toViewResponses(views []appointment.AppointmentView) []AppointmentViewResponse {
	out := make([]AppointmentViewResponse, 0, len(views))
	for _, v := range views {
		out = append(out, AppointmentViewResponse{
			ID:         v.ID,
			Status:     v.Status,
			CreatedAt:  v.CreatedAt,
			TimeslotID: v.TimeslotID,
			Day:        v.Day.Format(dayLayout),
			StartTime:  v.StartTime,
			EndTime:    v.EndTime,
			Counterparty: PersonResponse{
				ID:        v.CounterpartyID,
				FirstName: v.CounterpartyFirstName,
				LastName:  v.CounterpartyLastName,
			},
		})
	}
	return out
}

// patch converts the request into a typed slot patch, parsing only the
// fields that were sent.
func (req UpdateSlotRequest) patch() (appointment.SlotPatch, error) {
	var p appointment.SlotPatch
	if req.Day != nil {
		day, err := appointment.ParseDay(*req.Day)
		if err != nil {
			return p, err
		}
		p.Day = &day
	}
	if req.StartTime != nil {
		c, err := appointment.ParseClock(*req.StartTime)
		if err != nil {
			return p, err
		}
		p.StartTime = &c
	}
	if req.EndTime != nil {
		c, err := appointment.ParseClock(*req.EndTime)
		if err != nil {
			return p, err
		}
		p.EndTime = &c
	}
	return p, nil
}
