package appointment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/booking-platform/internal/apperr"
	"github.com/hackgods/booking-platform/internal/auth"
	"github.com/hackgods/booking-platform/internal/events"
	"github.com/hackgods/booking-platform/internal/notification"
)

type fixture struct {
	store     *memStore
	svc       *Service
	notifier  *recordingNotifier
	publisher *recordingPublisher

	providerID     uuid.UUID
	providerUserID uuid.UUID
	clientID       uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:     newMemStore(),
		notifier:  &recordingNotifier{},
		publisher: &recordingPublisher{},
	}
	f.svc = NewService(f.store, f.notifier, f.publisher, discardLogger())
	f.providerID, f.providerUserID = f.store.addProvider("Ada", "Lovelace")
	f.clientID = f.store.addClient("Grace", "Hopper")
	return f
}

func (f *fixture) slot(t *testing.T, providerID uuid.UUID, day string, start, end Clock) *Timeslot {
	t.Helper()
	d, err := ParseDay(day)
	if err != nil {
		t.Fatal(err)
	}
	s, err := f.svc.Slots().Create(context.Background(), providerID, d, start, end)
	if err != nil {
		t.Fatalf("create slot: %v", err)
	}
	return s
}

func (f *fixture) providerActor() auth.Actor {
	return auth.Actor{UserID: f.providerUserID, Role: auth.RoleProvider, ProviderID: f.providerID}
}

func (f *fixture) clientActor() auth.Actor {
	return auth.Actor{UserID: f.clientID, Role: auth.RoleClient}
}

func TestBookClaimsSlotAndNotifiesProvider(t *testing.T) {
	f := newFixture(t)
	s := f.slot(t, f.providerID, "2025-06-01", NewClock(10, 0), NewClock(10, 30))

	appt, err := f.svc.Book(context.Background(), f.clientID, s.ID)
	if err != nil {
		t.Fatalf("book: %v", err)
	}

	if appt.Status != StatusBooked || appt.TimeslotID != s.ID || appt.ProviderID != f.providerID {
		t.Fatalf("unexpected appointment %+v", appt)
	}
	if !appt.AppointmentDate.Equal(s.Day) {
		t.Fatalf("appointment_date = %s, want %s", appt.AppointmentDate, s.Day)
	}
	if !f.store.slot(s.ID).IsBooked {
		t.Fatal("slot should be booked")
	}

	sent := f.notifier.sent()
	if len(sent) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(sent))
	}
	if sent[0].Recipient != (notification.Recipient{UserID: f.providerUserID, Role: auth.RoleProvider}) {
		t.Fatalf("wrong recipient %+v", sent[0].Recipient)
	}
	if sent[0].Type != notification.TypeNewAppointment {
		t.Fatalf("wrong type %s", sent[0].Type)
	}
	if got := f.publisher.types(); len(got) != 1 || got[0] != events.TypeAppointmentBooked {
		t.Fatalf("unexpected events %v", got)
	}
}

func TestBookErrors(t *testing.T) {
	f := newFixture(t)
	s := f.slot(t, f.providerID, "2025-06-01", NewClock(10, 0), NewClock(10, 30))
	if _, err := f.svc.Book(context.Background(), f.clientID, s.ID); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		slotID uuid.UUID
		want   error
		kind   apperr.Kind
	}{
		{"unknown slot", uuid.New(), ErrSlotNotFound, apperr.NotFound},
		{"already booked", s.ID, ErrSlotAlreadyBooked, apperr.Conflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Book(context.Background(), f.store.addClient("X", "Y"), tt.slotID)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if apperr.KindOf(err) != tt.kind {
				t.Fatalf("kind = %s, want %s", apperr.KindOf(err), tt.kind)
			}
		})
	}
	if n := f.store.activeFor(s.ID); n != 1 {
		t.Fatalf("expected exactly one active appointment, got %d", n)
	}
}

func TestConcurrentBookingExactlyOneWins(t *testing.T) {
	f := newFixture(t)
	s := f.slot(t, f.providerID, "2025-06-01", NewClock(10, 0), NewClock(10, 30))

	const racers = 16
	var wg sync.WaitGroup
	errs := make([]error, racers)
	start := make(chan struct{})
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = f.svc.Book(context.Background(), f.store.addClient("C", "C"), s.ID)
		}(i)
	}
	close(start)
	wg.Wait()

	wins := 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrSlotAlreadyBooked):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
	if n := f.store.activeFor(s.ID); n != 1 {
		t.Fatalf("expected one active appointment, got %d", n)
	}
}

func TestCancelTwiceConflicts(t *testing.T) {
	f := newFixture(t)
	s := f.slot(t, f.providerID, "2025-06-01", NewClock(10, 0), NewClock(10, 30))
	appt, _ := f.svc.Book(context.Background(), f.clientID, s.ID)

	canceled, err := f.svc.Cancel(context.Background(), f.clientActor(), appt.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if canceled.Status != StatusCanceled {
		t.Fatalf("status = %s", canceled.Status)
	}
	if f.store.slot(s.ID).IsBooked {
		t.Fatal("slot should be released")
	}

	for i := 0; i < 2; i++ {
		_, err := f.svc.Cancel(context.Background(), f.clientActor(), appt.ID)
		if !errors.Is(err, ErrAlreadyCanceled) {
			t.Fatalf("attempt %d: expected ErrAlreadyCanceled, got %v", i, err)
		}
	}
}

func TestCancelUnknownAppointment(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Cancel(context.Background(), f.clientActor(), uuid.New()); !errors.Is(err, ErrAppointmentNotFound) {
		t.Fatalf("expected ErrAppointmentNotFound, got %v", err)
	}
}

func TestCancelAuthorization(t *testing.T) {
	f := newFixture(t)
	otherProvider, otherProviderUser := f.store.addProvider("Other", "Provider")

	tests := []struct {
		name  string
		actor func() auth.Actor
		want  error
	}{
		{"other client", func() auth.Actor { return auth.Actor{UserID: uuid.New(), Role: auth.RoleClient} }, ErrNotAppointmentParty},
		{"other provider", func() auth.Actor {
			return auth.Actor{UserID: otherProviderUser, Role: auth.RoleProvider, ProviderID: otherProvider}
		}, ErrNotAppointmentParty},
		{"provider without profile", func() auth.Actor { return auth.Actor{UserID: f.providerUserID, Role: auth.RoleProvider} }, ErrNotAppointmentParty},
		{"client posing with provider role", func() auth.Actor { return auth.Actor{UserID: f.clientID, Role: auth.RoleProvider} }, ErrNotAppointmentParty},
		{"owning client", f.clientActor, nil},
		{"owning provider", f.providerActor, nil},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := f.slot(t, f.providerID, "2025-06-01", NewClock(8+i, 0), NewClock(8+i, 30))
			appt, err := f.svc.Book(context.Background(), f.clientID, s.ID)
			if err != nil {
				t.Fatal(err)
			}

			_, err = f.svc.Cancel(context.Background(), tt.actor(), appt.ID)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if tt.want != nil {
				if apperr.KindOf(err) != apperr.Forbidden {
					t.Fatalf("kind = %s", apperr.KindOf(err))
				}
				if f.store.appointment(appt.ID).Status != StatusBooked || !f.store.slot(s.ID).IsBooked {
					t.Fatal("rejected cancel must not change state")
				}
			}
		})
	}
}

func TestProviderCancelNotifiesBothParties(t *testing.T) {
	f := newFixture(t)
	s := f.slot(t, f.providerID, "2025-06-01", NewClock(10, 0), NewClock(10, 30))
	appt, _ := f.svc.Book(context.Background(), f.clientID, s.ID)

	if _, err := f.svc.Cancel(context.Background(), f.providerActor(), appt.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	var recipients []notification.Recipient
	for _, m := range f.notifier.sent() {
		if m.Type != notification.TypeAppointmentCanceled {
			continue
		}
		recipients = append(recipients, m.Recipient)
		if m.Data["canceled_by"] != "provider" {
			t.Fatalf("canceled_by = %v", m.Data["canceled_by"])
		}
	}
	want := []notification.Recipient{
		{UserID: f.clientID, Role: auth.RoleClient},
		{UserID: f.providerUserID, Role: auth.RoleProvider},
	}
	if len(recipients) != 2 || recipients[0] != want[0] || recipients[1] != want[1] {
		t.Fatalf("recipients = %+v", recipients)
	}
}

func TestRescheduleMovesClaim(t *testing.T) {
	f := newFixture(t)
	oldSlot := f.slot(t, f.providerID, "2025-06-01", NewClock(10, 0), NewClock(10, 30))
	newSlot := f.slot(t, f.providerID, "2025-06-02", NewClock(11, 0), NewClock(11, 30))
	appt, _ := f.svc.Book(context.Background(), f.clientID, oldSlot.ID)

	res, err := f.svc.Reschedule(context.Background(), f.clientID, appt.ID, newSlot.ID)
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}

	if res.Appointment.TimeslotID != newSlot.ID || !res.Appointment.AppointmentDate.Equal(newSlot.Day) {
		t.Fatalf("appointment not repointed: %+v", res.Appointment)
	}
	if !res.NewTimeslot.IsBooked || res.OldTimeslot.IsBooked {
		t.Fatalf("result flags wrong: old=%v new=%v", res.OldTimeslot.IsBooked, res.NewTimeslot.IsBooked)
	}
	if f.store.slot(oldSlot.ID).IsBooked || !f.store.slot(newSlot.ID).IsBooked {
		t.Fatal("stored slot flags wrong")
	}

	var got int
	for _, m := range f.notifier.sent() {
		if m.Type == notification.TypeAppointmentRescheduled {
			got++
			if m.Data["old_timeslot_id"] != oldSlot.ID.String() || m.Data["new_timeslot_id"] != newSlot.ID.String() {
				t.Fatalf("unexpected payload %v", m.Data)
			}
		}
	}
	if got != 2 {
		t.Fatalf("expected both parties notified, got %d", got)
	}
}

func TestRescheduleFailuresLeaveSlotsUntouched(t *testing.T) {
	f := newFixture(t)
	otherProvider, _ := f.store.addProvider("Other", "Provider")

	oldSlot := f.slot(t, f.providerID, "2025-06-01", NewClock(10, 0), NewClock(10, 30))
	taken := f.slot(t, f.providerID, "2025-06-02", NewClock(9, 0), NewClock(9, 30))
	foreign := f.slot(t, otherProvider, "2025-06-02", NewClock(11, 0), NewClock(11, 30))
	free := f.slot(t, f.providerID, "2025-06-03", NewClock(11, 0), NewClock(11, 30))

	appt, _ := f.svc.Book(context.Background(), f.clientID, oldSlot.ID)
	if _, err := f.svc.Book(context.Background(), f.store.addClient("Someone", "Else"), taken.ID); err != nil {
		t.Fatal(err)
	}

	canceledSlot := f.slot(t, f.providerID, "2025-06-04", NewClock(11, 0), NewClock(11, 30))
	canceled, _ := f.svc.Book(context.Background(), f.clientID, canceledSlot.ID)
	if _, err := f.svc.Cancel(context.Background(), f.clientActor(), canceled.ID); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		clientID uuid.UUID
		apptID   uuid.UUID
		slotID   uuid.UUID
		want     error
		kind     apperr.Kind
	}{
		{"unknown appointment", f.clientID, uuid.New(), free.ID, ErrAppointmentNotFound, apperr.NotFound},
		{"not the owner", uuid.New(), appt.ID, free.ID, ErrNotAppointmentParty, apperr.Forbidden},
		{"canceled appointment", f.clientID, canceled.ID, free.ID, ErrAppointmentCanceled, apperr.InvalidState},
		{"unknown slot", f.clientID, appt.ID, uuid.New(), ErrSlotNotFound, apperr.NotFound},
		{"slot taken", f.clientID, appt.ID, taken.ID, ErrSlotAlreadyBooked, apperr.Conflict},
		{"same slot", f.clientID, appt.ID, oldSlot.ID, ErrSlotAlreadyBooked, apperr.Conflict},
		{"other provider", f.clientID, appt.ID, foreign.ID, ErrDifferentProvider, apperr.InvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Reschedule(context.Background(), tt.clientID, tt.apptID, tt.slotID)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if apperr.KindOf(err) != tt.kind {
				t.Fatalf("kind = %s, want %s", apperr.KindOf(err), tt.kind)
			}

			if !f.store.slot(oldSlot.ID).IsBooked || !f.store.slot(taken.ID).IsBooked {
				t.Fatal("booked slots changed")
			}
			if f.store.slot(free.ID).IsBooked || f.store.slot(foreign.ID).IsBooked || f.store.slot(canceledSlot.ID).IsBooked {
				t.Fatal("free slots changed")
			}
			if f.store.appointment(appt.ID).TimeslotID != oldSlot.ID {
				t.Fatal("appointment moved")
			}
		})
	}
}

func TestBookRescheduleCancelScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s1 := f.slot(t, f.providerID, "2025-06-01", NewClock(10, 0), NewClock(10, 30))
	a, err := f.svc.Book(ctx, f.clientID, s1.ID)
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if !f.store.slot(s1.ID).IsBooked || f.store.appointment(a.ID).Status != StatusBooked {
		t.Fatal("after book: slot must be booked and appointment booked")
	}

	s2 := f.slot(t, f.providerID, "2025-06-02", NewClock(11, 0), NewClock(11, 30))
	if _, err := f.svc.Reschedule(ctx, f.clientID, a.ID, s2.ID); err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if f.store.slot(s1.ID).IsBooked || !f.store.slot(s2.ID).IsBooked || f.store.appointment(a.ID).TimeslotID != s2.ID {
		t.Fatal("after reschedule: claim must move from s1 to s2")
	}

	if _, err := f.svc.Cancel(ctx, f.clientActor(), a.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if f.store.appointment(a.ID).Status != StatusCanceled || f.store.slot(s2.ID).IsBooked {
		t.Fatal("after cancel: appointment canceled and s2 free")
	}

	if got := f.publisher.types(); len(got) != 3 ||
		got[0] != events.TypeAppointmentBooked ||
		got[1] != events.TypeAppointmentRescheduled ||
		got[2] != events.TypeAppointmentCanceled {
		t.Fatalf("unexpected event sequence %v", got)
	}
}

func TestCancelRacingRescheduleSerializes(t *testing.T) {
	f := newFixture(t)
	s1 := f.slot(t, f.providerID, "2025-06-01", NewClock(10, 0), NewClock(10, 30))
	s2 := f.slot(t, f.providerID, "2025-06-02", NewClock(10, 0), NewClock(10, 30))
	a, _ := f.svc.Book(context.Background(), f.clientID, s1.ID)

	var wg sync.WaitGroup
	var cancelErr, reschedErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, cancelErr = f.svc.Cancel(context.Background(), f.clientActor(), a.ID)
	}()
	go func() {
		defer wg.Done()
		_, reschedErr = f.svc.Reschedule(context.Background(), f.clientID, a.ID, s2.ID)
	}()
	wg.Wait()

	if cancelErr != nil {
		t.Fatalf("cancel always succeeds on a booked appointment, got %v", cancelErr)
	}
	switch {
	case reschedErr == nil:
		// reschedule went first; cancel then freed s2
		if f.store.slot(s2.ID).IsBooked || f.store.slot(s1.ID).IsBooked {
			t.Fatal("both slots must end free")
		}
	case errors.Is(reschedErr, ErrAppointmentCanceled):
		if f.store.slot(s1.ID).IsBooked || f.store.slot(s2.ID).IsBooked {
			t.Fatal("both slots must end free")
		}
	default:
		t.Fatalf("unexpected reschedule error %v", reschedErr)
	}
}

func TestPostCommitFailuresDoNotFailOperation(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errInjected
	f.publisher.err = errInjected

	s := f.slot(t, f.providerID, "2025-06-01", NewClock(10, 0), NewClock(10, 30))
	appt, err := f.svc.Book(context.Background(), f.clientID, s.ID)
	if err != nil {
		t.Fatalf("book must succeed despite notifier failure: %v", err)
	}
	if _, err := f.svc.Cancel(context.Background(), f.clientActor(), appt.ID); err != nil {
		t.Fatalf("cancel must succeed despite notifier failure: %v", err)
	}
}

func TestBookSurvivesCallerCancellation(t *testing.T) {
	f := newFixture(t)
	s := f.slot(t, f.providerID, "2025-06-01", NewClock(10, 0), NewClock(10, 30))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.svc.Book(ctx, f.clientID, s.ID); err != nil {
		t.Fatalf("book: %v", err)
	}
	if len(f.notifier.sent()) != 1 {
		t.Fatal("post-commit notification should still run")
	}
}

func TestListOrdering(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	late := f.slot(t, f.providerID, "2025-06-03", NewClock(9, 0), NewClock(9, 30))
	early := f.slot(t, f.providerID, "2025-06-01", NewClock(15, 0), NewClock(15, 30))
	mid := f.slot(t, f.providerID, "2025-06-01", NewClock(16, 0), NewClock(16, 30))
	for _, s := range []*Timeslot{late, early, mid} {
		if _, err := f.svc.Book(ctx, f.clientID, s.ID); err != nil {
			t.Fatal(err)
		}
	}

	client, err := f.svc.ListForClient(ctx, f.clientID)
	if err != nil {
		t.Fatal(err)
	}
	if len(client) != 3 || client[0].TimeslotID != early.ID || client[2].TimeslotID != late.ID {
		t.Fatalf("client list not ascending: %+v", client)
	}
	if client[0].CounterpartyFirstName != "Ada" {
		t.Fatalf("client sees provider name, got %q", client[0].CounterpartyFirstName)
	}

	provider, err := f.svc.ListForProvider(ctx, f.providerID)
	if err != nil {
		t.Fatal(err)
	}
	if len(provider) != 3 || provider[0].TimeslotID != late.ID || provider[2].TimeslotID != early.ID {
		t.Fatalf("provider list not descending: %+v", provider)
	}
	if provider[0].CounterpartyFirstName != "Grace" {
		t.Fatalf("provider sees client name, got %q", provider[0].CounterpartyFirstName)
	}
}

func TestSendDueReminders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := f.store.now // 2025-05-20 09:00 UTC

	soon := f.slot(t, f.providerID, "2025-05-21", NewClock(8, 0), NewClock(8, 30))
	later := f.slot(t, f.providerID, "2025-05-22", NewClock(8, 0), NewClock(8, 30))
	past := f.slot(t, f.providerID, "2025-05-20", NewClock(8, 0), NewClock(8, 30))
	for _, s := range []*Timeslot{soon, later, past} {
		if _, err := f.svc.Book(ctx, f.clientID, s.ID); err != nil {
			t.Fatal(err)
		}
	}

	n, err := f.svc.SendDueReminders(ctx, now, 24*time.Hour, 10)
	if err != nil {
		t.Fatalf("reminders: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 reminder, got %d", n)
	}

	var reminders []notification.Message
	for _, m := range f.notifier.sent() {
		if m.Type == notification.TypeAppointmentReminder {
			reminders = append(reminders, m)
		}
	}
	if len(reminders) != 1 || reminders[0].Recipient.UserID != f.clientID || reminders[0].Data["day"] != "2025-05-21" {
		t.Fatalf("unexpected reminders %+v", reminders)
	}

	again, err := f.svc.SendDueReminders(ctx, now, 24*time.Hour, 10)
	if err != nil || again != 0 {
		t.Fatalf("reminders must be sent once, got %d, %v", again, err)
	}
}
