package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/booking-platform/internal/appointment"
	"github.com/hackgods/booking-platform/internal/auth"
)

type Slots interface {
	Create(ctx context.Context, providerID uuid.UUID, day time.Time, start, end appointment.Clock) (*appointment.Timeslot, error)
	Update(ctx context.Context, providerID, slotID uuid.UUID, patch appointment.SlotPatch) (*appointment.Timeslot, error)
	Delete(ctx context.Context, providerID, slotID uuid.UUID) error
	List(ctx context.Context, providerID uuid.UUID, availableOnly bool) ([]appointment.Timeslot, error)
}

func createSlotHandler(svc Slots, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := auth.FromContext(r.Context())

		var req CreateSlotRequest
		if !decodeBody(w, r, &req) {
			return
		}
		day, err := appointment.ParseDay(req.Day)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_day", err.Error())
			return
		}
		start, err := appointment.ParseClock(req.StartTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start_time", err.Error())
			return
		}
		end, err := appointment.ParseClock(req.EndTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_end_time", err.Error())
			return
		}

		slot, err := svc.Create(r.Context(), actor.ProviderID, day, start, end)
		if err != nil {
			writeAppError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, toSlotResponse(slot))
	}
}

func updateSlotHandler(svc Slots, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := auth.FromContext(r.Context())

		id, ok := uuidParam(w, r, "id", "invalid_timeslot_id")
		if !ok {
			return
		}
		var req UpdateSlotRequest
		if !decodeBody(w, r, &req) {
			return
		}
		patch, err := req.patch()
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_times", err.Error())
			return
		}

		slot, err := svc.Update(r.Context(), actor.ProviderID, id, patch)
		if err != nil {
			writeAppError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, toSlotResponse(slot))
	}
}

func deleteSlotHandler(svc Slots, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := auth.FromContext(r.Context())

		id, ok := uuidParam(w, r, "id", "invalid_timeslot_id")
		if !ok {
			return
		}
		if err := svc.Delete(r.Context(), actor.ProviderID, id); err != nil {
			writeAppError(w, r, logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func listOwnSlotsHandler(svc Slots, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := auth.FromContext(r.Context())
		listSlots(w, r, svc, logger, actor.ProviderID)
	}
}

func listProviderSlotsHandler(svc Slots, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := uuidParam(w, r, "id", "invalid_provider_id")
		if !ok {
			return
		}
		listSlots(w, r, svc, logger, providerID)
	}
}

func listSlots(w http.ResponseWriter, r *http.Request, svc Slots, logger *slog.Logger, providerID uuid.UUID) {
	available := r.URL.Query().Get("available") == "true"
	slots, err := svc.List(r.Context(), providerID, available)
	if err != nil {
		writeAppError(w, r, logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toSlotResponses(slots))
}
