package appointment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hackgods/booking-platform/internal/auth"
	"github.com/hackgods/booking-platform/internal/events"
	"github.com/hackgods/booking-platform/internal/notification"
)

const postCommitTimeout = 10 * time.Second

// Notifier records and pushes a notification. Errors are logged by the caller, never returned.
type Notifier interface {
	Notify(ctx context.Context, msg notification.Message) (*notification.Notification, error)
}

// Service runs the appointment lifecycle: book, cancel, reschedule.
// Each mutation commits slot and appointment rows together; notifications
// and events follow the commit and cannot undo it.
type Service struct {
	store    Store
	slots    *SlotManager
	notifier Notifier
	events   events.Publisher
	logger   *slog.Logger
	tracer   trace.Tracer
}

func NewService(store Store, notifier Notifier, publisher events.Publisher, logger *slog.Logger) *Service {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Service{
		store:    store,
		slots:    NewSlotManager(store),
		notifier: notifier,
		events:   publisher,
		logger:   logger.With("component", "appointment"),
		tracer:   otel.Tracer("github.com/hackgods/booking-platform/internal/appointment"),
	}
}

func (s *Service) Slots() *SlotManager {
	return s.slots
}

// Book claims slotID for clientID.
func (s *Service) Book(ctx context.Context, clientID, slotID uuid.UUID) (appt *Appointment, err error) {
	ctx, span := s.tracer.Start(ctx, "appointment.Book", trace.WithAttributes(
		attribute.String("client.id", clientID.String()),
		attribute.String("slot.id", slotID.String()),
	))
	defer func() { endSpan(span, err) }()

	var slot *Timeslot
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		slot, err = s.slots.LockForUpdate(ctx, tx, slotID)
		if err != nil {
			return err
		}
		if err := s.slots.Claim(ctx, tx, slot); err != nil {
			return err
		}
		appt, err = tx.InsertAppointment(ctx, clientID, *slot)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("appointment booked",
		"appointment_id", appt.ID,
		"slot_id", slot.ID,
		"client_id", clientID,
	)
	s.afterCommit(ctx, func(ctx context.Context) {
		s.notifyProvider(ctx, appt.ProviderID, notification.TypeNewAppointment,
			fmt.Sprintf("New appointment booked for %s at %s", slot.Day.Format(time.DateOnly), slot.StartTime),
			slotData(appt, slot))
		s.publish(ctx, events.New(events.TypeAppointmentBooked, appt.ID, slotData(appt, slot)))
	})

	return appt, nil
}

// Cancel cancels an appointment on behalf of its client or its provider.
func (s *Service) Cancel(ctx context.Context, actor auth.Actor, appointmentID uuid.UUID) (appt *Appointment, err error) {
	ctx, span := s.tracer.Start(ctx, "appointment.Cancel", trace.WithAttributes(
		attribute.String("actor.id", actor.UserID.String()),
		attribute.String("actor.role", string(actor.Role)),
		attribute.String("appointment.id", appointmentID.String()),
	))
	defer func() { endSpan(span, err) }()

	var slot *Timeslot
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		current, err := tx.LockAppointment(ctx, appointmentID)
		if err != nil {
			return err
		}
		if !isParty(actor, current) {
			return ErrNotAppointmentParty
		}
		if current.Status == StatusCanceled {
			return ErrAlreadyCanceled
		}

		appt, err = tx.SetAppointmentStatus(ctx, current.ID, StatusCanceled)
		if err != nil {
			return err
		}
		slot, err = s.slots.Release(ctx, tx, current.TimeslotID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("appointment canceled",
		"appointment_id", appt.ID,
		"slot_id", slot.ID,
		"canceled_by", actor.Role,
	)
	s.afterCommit(ctx, func(ctx context.Context) {
		data := slotData(appt, slot)
		data["canceled_by"] = string(actor.Role)
		text := fmt.Sprintf("Appointment on %s at %s was canceled by the %s",
			slot.Day.Format(time.DateOnly), slot.StartTime, actor.Role)

		s.notifyClient(ctx, appt.UserID, notification.TypeAppointmentCanceled, text, data)
		s.notifyProvider(ctx, appt.ProviderID, notification.TypeAppointmentCanceled, text, data)
		s.publish(ctx, events.New(events.TypeAppointmentCanceled, appt.ID, data))
	})

	return appt, nil
}

// Reschedule moves a client's appointment to another free slot of the same provider.
// Locks are taken appointment first, then the new slot, then the old slot.
func (s *Service) Reschedule(ctx context.Context, clientID, appointmentID, newSlotID uuid.UUID) (res *RescheduleResult, err error) {
	ctx, span := s.tracer.Start(ctx, "appointment.Reschedule", trace.WithAttributes(
		attribute.String("client.id", clientID.String()),
		attribute.String("appointment.id", appointmentID.String()),
		attribute.String("slot.id", newSlotID.String()),
	))
	defer func() { endSpan(span, err) }()

	res = &RescheduleResult{}
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		current, err := tx.LockAppointment(ctx, appointmentID)
		if err != nil {
			return err
		}
		if current.UserID != clientID {
			return ErrNotAppointmentParty
		}
		if current.Status == StatusCanceled {
			return ErrAppointmentCanceled
		}

		next, err := s.slots.LockForUpdate(ctx, tx, newSlotID)
		if err != nil {
			return err
		}
		if next.IsBooked {
			return ErrSlotAlreadyBooked
		}
		if next.ProviderID != current.ProviderID {
			return ErrDifferentProvider
		}

		if err := s.slots.Claim(ctx, tx, next); err != nil {
			return err
		}
		old, err := s.slots.Release(ctx, tx, current.TimeslotID)
		if err != nil {
			return err
		}
		moved, err := tx.MoveAppointment(ctx, current.ID, *next)
		if err != nil {
			return err
		}

		res.Appointment, res.OldTimeslot, res.NewTimeslot = moved, old, next
		return nil
	})
	if err != nil {
		return nil, err
	}

	appt, old, next := res.Appointment, res.OldTimeslot, res.NewTimeslot
	s.logger.Info("appointment rescheduled",
		"appointment_id", appt.ID,
		"old_slot_id", old.ID,
		"new_slot_id", next.ID,
	)
	s.afterCommit(ctx, func(ctx context.Context) {
		data := map[string]any{
			"appointment_id":  appt.ID.String(),
			"client_id":       appt.UserID.String(),
			"old_timeslot_id": old.ID.String(),
			"old_day":         old.Day.Format(time.DateOnly),
			"old_start_time":  old.StartTime.String(),
			"old_end_time":    old.EndTime.String(),
			"new_timeslot_id": next.ID.String(),
			"new_day":         next.Day.Format(time.DateOnly),
			"new_start_time":  next.StartTime.String(),
			"new_end_time":    next.EndTime.String(),
		}
		text := fmt.Sprintf("Appointment moved from %s at %s to %s at %s",
			old.Day.Format(time.DateOnly), old.StartTime, next.Day.Format(time.DateOnly), next.StartTime)

		s.notifyClient(ctx, appt.UserID, notification.TypeAppointmentRescheduled, text, data)
		s.notifyProvider(ctx, appt.ProviderID, notification.TypeAppointmentRescheduled, text, data)
		s.publish(ctx, events.New(events.TypeAppointmentRescheduled, appt.ID, data))
	})

	return res, nil
}

// ListForClient returns the client's appointments, earliest slot first.
func (s *Service) ListForClient(ctx context.Context, userID uuid.UUID) ([]AppointmentView, error) {
	return s.store.ListForClient(ctx, userID)
}

// ListForProvider returns the provider's appointments, latest slot first.
func (s *Service) ListForProvider(ctx context.Context, providerID uuid.UUID) ([]AppointmentView, error) {
	return s.store.ListForProvider(ctx, providerID)
}

// SendDueReminders stamps up to batch booked appointments starting within
// (now, now+lead] and notifies their clients. It returns how many were stamped.
func (s *Service) SendDueReminders(ctx context.Context, now time.Time, lead time.Duration, batch int) (int, error) {
	if batch <= 0 {
		batch = 100
	}

	var due []DueReminder
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		due, err = tx.LockDueReminders(ctx, now, now.Add(lead), batch)
		if err != nil {
			return err
		}
		ids := make([]uuid.UUID, 0, len(due))
		for _, d := range due {
			ids = append(ids, d.AppointmentID)
		}
		return tx.MarkRemindersSent(ctx, ids, now)
	})
	if err != nil {
		return 0, fmt.Errorf("collect due reminders: %w", err)
	}

	s.afterCommit(ctx, func(ctx context.Context) {
		for _, d := range due {
			s.notifyClient(ctx, d.UserID, notification.TypeAppointmentReminder,
				fmt.Sprintf("Reminder: you have an appointment on %s at %s", d.Day.Format(time.DateOnly), d.StartTime),
				map[string]any{
					"appointment_id": d.AppointmentID.String(),
					"day":            d.Day.Format(time.DateOnly),
					"start_time":     d.StartTime.String(),
					"end_time":       d.EndTime.String(),
				})
		}
	})
	return len(due), nil
}

// afterCommit runs best-effort work detached from the caller's cancellation.
func (s *Service) afterCommit(ctx context.Context, fn func(ctx context.Context)) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), postCommitTimeout)
	defer cancel()
	fn(ctx)
}

func (s *Service) notifyClient(ctx context.Context, userID uuid.UUID, typ notification.Type, text string, data map[string]any) {
	s.notify(ctx, notification.Recipient{UserID: userID, Role: auth.RoleClient}, typ, text, data)
}

func (s *Service) notifyProvider(ctx context.Context, providerID uuid.UUID, typ notification.Type, text string, data map[string]any) {
	userID, err := s.store.ProviderUserID(ctx, providerID)
	if err != nil {
		s.logger.Error("resolve provider user failed", "provider_id", providerID, "type", typ, "err", err)
		return
	}
	s.notify(ctx, notification.Recipient{UserID: userID, Role: auth.RoleProvider}, typ, text, data)
}

func (s *Service) notify(ctx context.Context, to notification.Recipient, typ notification.Type, text string, data map[string]any) {
	if s.notifier == nil {
		return
	}
	_, err := s.notifier.Notify(ctx, notification.Message{Recipient: to, Type: typ, Text: text, Data: data})
	if err != nil {
		s.logger.Error("notification failed", "user_id", to.UserID, "type", typ, "err", err)
	}
}

func (s *Service) publish(ctx context.Context, ev events.Event) {
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.Error("event publish failed", "event_type", ev.Type, "aggregate_id", ev.AggregateID, "err", err)
	}
}

func isParty(actor auth.Actor, appt *Appointment) bool {
	switch actor.Role {
	case auth.RoleClient:
		return appt.UserID == actor.UserID
	case auth.RoleProvider:
		return actor.ProviderID != uuid.Nil && appt.ProviderID == actor.ProviderID
	default:
		return false
	}
}

func slotData(appt *Appointment, slot *Timeslot) map[string]any {
	return map[string]any{
		"appointment_id": appt.ID.String(),
		"client_id":      appt.UserID.String(),
		"timeslot_id":    slot.ID.String(),
		"day":            slot.Day.Format(time.DateOnly),
		"start_time":     slot.StartTime.String(),
		"end_time":       slot.EndTime.String(),
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
