package appointment

import "github.com/hackgods/booking-platform/internal/apperr"

var (
	ErrSlotNotFound        = apperr.New(apperr.NotFound, "slot_not_found", "timeslot not found")
	ErrAppointmentNotFound = apperr.New(apperr.NotFound, "appointment_not_found", "appointment not found")
	ErrProviderNotFound    = apperr.New(apperr.NotFound, "provider_not_found", "provider not found")

	ErrSlotAlreadyBooked = apperr.New(apperr.Conflict, "slot_already_booked", "timeslot is already booked")
	ErrAlreadyCanceled   = apperr.New(apperr.Conflict, "appointment_already_canceled", "appointment is already canceled")
	ErrSlotExists        = apperr.New(apperr.Conflict, "slot_exists", "an identical timeslot already exists for this provider")

	ErrAppointmentCanceled = apperr.New(apperr.InvalidState, "appointment_canceled", "canceled appointments cannot be rescheduled")
	ErrSlotBooked          = apperr.New(apperr.InvalidState, "slot_booked", "booked timeslots cannot be changed")

	ErrDifferentProvider = apperr.New(apperr.InvalidArgument, "different_provider", "new timeslot belongs to a different provider")
	ErrInvalidSlotTimes  = apperr.New(apperr.InvalidArgument, "invalid_slot_times", "start time must be before end time")
	ErrEmptyPatch        = apperr.New(apperr.InvalidArgument, "empty_patch", "no timeslot fields to update")

	ErrNotAppointmentParty = apperr.New(apperr.Forbidden, "forbidden", "you are not allowed to modify this appointment")
	ErrNotSlotOwner        = apperr.New(apperr.Forbidden, "forbidden", "timeslot belongs to another provider")
)
