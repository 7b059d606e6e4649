package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/booking-platform/internal/appointment"
	"github.com/hackgods/booking-platform/internal/auth"
)

// Booking is the appointment lifecycle as the HTTP layer uses it.
type Booking interface {
	Book(ctx context.Context, clientID, slotID uuid.UUID) (*appointment.Appointment, error)
	Cancel(ctx context.Context, actor auth.Actor, appointmentID uuid.UUID) (*appointment.Appointment, error)
	Reschedule(ctx context.Context, clientID, appointmentID, newSlotID uuid.UUID) (*appointment.RescheduleResult, error)
	ListForClient(ctx context.Context, userID uuid.UUID) ([]appointment.AppointmentView, error)
	ListForProvider(ctx context.Context, providerID uuid.UUID) ([]appointment.AppointmentView, error)
}

func bookHandler(svc Booking, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := auth.FromContext(r.Context())

		var req BookRequest
		if !decodeBody(w, r, &req) {
			return
		}
		slotID, err := uuid.Parse(req.TimeslotID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_timeslot_id", "timeslot_id must be a valid UUID")
			return
		}

		appt, err := svc.Book(r.Context(), actor.UserID, slotID)
		if err != nil {
			writeAppError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func cancelHandler(svc Booking, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := auth.FromContext(r.Context())

		id, ok := uuidParam(w, r, "id", "invalid_appointment_id")
		if !ok {
			return
		}

		appt, err := svc.Cancel(r.Context(), actor, id)
		if err != nil {
			writeAppError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func rescheduleHandler(svc Booking, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := auth.FromContext(r.Context())

		id, ok := uuidParam(w, r, "id", "invalid_appointment_id")
		if !ok {
			return
		}
		var req RescheduleRequest
		if !decodeBody(w, r, &req) {
			return
		}
		newSlotID, err := uuid.Parse(req.NewTimeslotID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_timeslot_id", "new_timeslot_id must be a valid UUID")
			return
		}

		res, err := svc.Reschedule(r.Context(), actor.UserID, id, newSlotID)
		if err != nil {
			writeAppError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, RescheduleResponse{
			Appointment: toAppointmentResponse(res.Appointment),
			NewTimeslot: toSlotResponse(res.NewTimeslot),
		})
	}
}

func listClientAppointmentsHandler(svc Booking, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := auth.FromContext(r.Context())
		views, err := svc.ListForClient(r.Context(), actor.UserID)
		if err != nil {
			writeAppError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, toViewResponses(views))
	}
}

func listProviderAppointmentsHandler(svc Booking, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := auth.FromContext(r.Context())
		views, err := svc.ListForProvider(r.Context(), actor.ProviderID)
		if err != nil {
			writeAppError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, toViewResponses(views))
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}

func uuidParam(w http.ResponseWriter, r *http.Request, name, code string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, code, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

// requireProviderProfile rejects provider tokens that carry no provider id.
func requireProviderProfile(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := auth.FromContext(r.Context())
		if !ok || actor.ProviderID == uuid.Nil {
			writeError(w, http.StatusForbidden, "forbidden", "provider profile required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
