package appointment

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/booking-platform/internal/events"
	"github.com/hackgods/booking-platform/internal/notification"
)

// memStore is an in-memory Store. Transactions are serialized and work on a
// copy of the state that replaces the original only when fn succeeds, which
// gives the same all-or-nothing visibility as a row-locked Postgres tx.
type memStore struct {
	mu        sync.Mutex
	state     memState
	providers map[uuid.UUID]uuid.UUID // provider id -> user id
	names     map[uuid.UUID][2]string
	now       time.Time
}

type memState struct {
	slots map[uuid.UUID]Timeslot
	appts map[uuid.UUID]Appointment
}

func (st memState) clone() memState {
	c := memState{
		slots: make(map[uuid.UUID]Timeslot, len(st.slots)),
		appts: make(map[uuid.UUID]Appointment, len(st.appts)),
	}
	for k, v := range st.slots {
		c.slots[k] = v
	}
	for k, v := range st.appts {
		c.appts[k] = v
	}
	return c
}

func newMemStore() *memStore {
	return &memStore{
		state:     memState{slots: map[uuid.UUID]Timeslot{}, appts: map[uuid.UUID]Appointment{}},
		providers: map[uuid.UUID]uuid.UUID{},
		names:     map[uuid.UUID][2]string{},
		now:       time.Date(2025, 5, 20, 9, 0, 0, 0, time.UTC),
	}
}

// addProvider registers a provider profile and returns (providerID, userID).
func (s *memStore) addProvider(first, last string) (uuid.UUID, uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pid, uid := uuid.New(), uuid.New()
	s.providers[pid] = uid
	s.names[uid] = [2]string{first, last}
	return pid, uid
}

func (s *memStore) addClient(first, last string) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	uid := uuid.New()
	s.names[uid] = [2]string{first, last}
	return uid
}

func (s *memStore) slot(id uuid.UUID) Timeslot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.slots[id]
}

func (s *memStore) appointment(id uuid.UUID) Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.appts[id]
}

func (s *memStore) activeFor(slotID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.state.appts {
		if a.TimeslotID == slotID && a.Status == StatusBooked {
			n++
		}
	}
	return n
}

func (s *memStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(ctx, &memTx{st: &work, now: s.now}); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *memStore) ProviderUserID(ctx context.Context, providerID uuid.UUID) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	uid, ok := s.providers[providerID]
	if !ok {
		return uuid.Nil, ErrProviderNotFound
	}
	return uid, nil
}

func (s *memStore) ListForClient(ctx context.Context, userID uuid.UUID) ([]AppointmentView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	views := []AppointmentView{}
	for _, a := range s.state.appts {
		if a.UserID == userID {
			views = append(views, s.view(a, s.providers[a.ProviderID]))
		}
	}
	sortViews(views, false)
	return views, nil
}

func (s *memStore) ListForProvider(ctx context.Context, providerID uuid.UUID) ([]AppointmentView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	views := []AppointmentView{}
	for _, a := range s.state.appts {
		if a.ProviderID == providerID {
			views = append(views, s.view(a, a.UserID))
		}
	}
	sortViews(views, true)
	return views, nil
}

func (s *memStore) view(a Appointment, counterparty uuid.UUID) AppointmentView {
	slot := s.state.slots[a.TimeslotID]
	name := s.names[counterparty]
	return AppointmentView{
		ID:                    a.ID,
		Status:                a.Status,
		CreatedAt:             a.CreatedAt,
		TimeslotID:            slot.ID,
		Day:                   slot.Day,
		StartTime:             slot.StartTime,
		EndTime:               slot.EndTime,
		CounterpartyID:        counterparty,
		CounterpartyFirstName: name[0],
		CounterpartyLastName:  name[1],
	}
}

func sortViews(v []AppointmentView, desc bool) {
	sort.Slice(v, func(i, j int) bool {
		a, b := v[i].StartTime.On(v[i].Day), v[j].StartTime.On(v[j].Day)
		if desc {
			return a.After(b)
		}
		return a.Before(b)
	})
}

func (s *memStore) InsertSlot(ctx context.Context, providerID uuid.UUID, day time.Time, start, end Clock) (*Timeslot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.duplicate(uuid.Nil, providerID, day, start, end) {
		return nil, ErrSlotExists
	}
	slot := Timeslot{
		ID:         uuid.New(),
		ProviderID: providerID,
		Day:        day,
		StartTime:  start,
		EndTime:    end,
		CreatedAt:  s.now,
		UpdatedAt:  s.now,
	}
	s.state.slots[slot.ID] = slot
	return &slot, nil
}

func (s *memStore) ListSlots(ctx context.Context, providerID uuid.UUID, availableOnly bool) ([]Timeslot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []Timeslot{}
	for _, slot := range s.state.slots {
		if slot.ProviderID != providerID || (availableOnly && slot.IsBooked) {
			continue
		}
		out = append(out, slot)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt().Before(out[j].StartsAt()) })
	return out, nil
}

func (st memState) duplicate(except, providerID uuid.UUID, day time.Time, start, end Clock) bool {
	for _, slot := range st.slots {
		if slot.ID != except && slot.ProviderID == providerID && slot.Day.Equal(day) &&
			slot.StartTime == start && slot.EndTime == end {
			return true
		}
	}
	return false
}

type memTx struct {
	st  *memState
	now time.Time
}

func (t *memTx) LockSlot(ctx context.Context, id uuid.UUID) (*Timeslot, error) {
	slot, ok := t.st.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	return &slot, nil
}

func (t *memTx) SetSlotBooked(ctx context.Context, id uuid.UUID, booked bool) (*Timeslot, error) {
	slot, ok := t.st.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	slot.IsBooked = booked
	slot.UpdatedAt = t.now
	t.st.slots[id] = slot
	return &slot, nil
}

func (t *memTx) UpdateSlot(ctx context.Context, slot Timeslot) (*Timeslot, error) {
	if _, ok := t.st.slots[slot.ID]; !ok {
		return nil, ErrSlotNotFound
	}
	if t.st.duplicate(slot.ID, slot.ProviderID, slot.Day, slot.StartTime, slot.EndTime) {
		return nil, ErrSlotExists
	}
	slot.UpdatedAt = t.now
	t.st.slots[slot.ID] = slot
	return &slot, nil
}

func (t *memTx) DeleteSlot(ctx context.Context, id uuid.UUID) error {
	if _, ok := t.st.slots[id]; !ok {
		return ErrSlotNotFound
	}
	delete(t.st.slots, id)
	for aid, a := range t.st.appts {
		if a.TimeslotID == id {
			delete(t.st.appts, aid)
		}
	}
	return nil
}

func (t *memTx) LockAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, ok := t.st.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (t *memTx) activeOn(slotID, except uuid.UUID) bool {
	for _, a := range t.st.appts {
		if a.ID != except && a.TimeslotID == slotID && a.Status == StatusBooked {
			return true
		}
	}
	return false
}

func (t *memTx) InsertAppointment(ctx context.Context, userID uuid.UUID, slot Timeslot) (*Appointment, error) {
	if t.activeOn(slot.ID, uuid.Nil) {
		return nil, ErrSlotAlreadyBooked
	}
	a := Appointment{
		ID:              uuid.New(),
		UserID:          userID,
		ProviderID:      slot.ProviderID,
		TimeslotID:      slot.ID,
		AppointmentDate: slot.Day,
		Status:          StatusBooked,
		CreatedAt:       t.now,
		UpdatedAt:       t.now,
	}
	t.st.appts[a.ID] = a
	return &a, nil
}

func (t *memTx) SetAppointmentStatus(ctx context.Context, id uuid.UUID, status Status) (*Appointment, error) {
	a, ok := t.st.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	a.Status = status
	a.UpdatedAt = t.now
	t.st.appts[id] = a
	return &a, nil
}

func (t *memTx) MoveAppointment(ctx context.Context, id uuid.UUID, slot Timeslot) (*Appointment, error) {
	a, ok := t.st.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if t.activeOn(slot.ID, id) {
		return nil, ErrSlotAlreadyBooked
	}
	a.TimeslotID = slot.ID
	a.AppointmentDate = slot.Day
	a.ReminderSentAt = nil
	a.UpdatedAt = t.now
	t.st.appts[id] = a
	return &a, nil
}

func (t *memTx) LockDueReminders(ctx context.Context, from, to time.Time, limit int) ([]DueReminder, error) {
	var due []DueReminder
	for _, a := range t.st.appts {
		if a.Status != StatusBooked || a.ReminderSentAt != nil {
			continue
		}
		slot := t.st.slots[a.TimeslotID]
		start := slot.StartsAt()
		if !start.After(from) || start.After(to) {
			continue
		}
		due = append(due, DueReminder{
			AppointmentID: a.ID,
			UserID:        a.UserID,
			ProviderID:    a.ProviderID,
			Day:           slot.Day,
			StartTime:     slot.StartTime,
			EndTime:       slot.EndTime,
		})
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].StartTime.On(due[i].Day).Before(due[j].StartTime.On(due[j].Day))
	})
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (t *memTx) MarkRemindersSent(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	for _, id := range ids {
		a := t.st.appts[id]
		stamp := at
		a.ReminderSentAt = &stamp
		t.st.appts[id] = a
	}
	return nil
}

// recordingNotifier captures notifications; err makes every call fail.
type recordingNotifier struct {
	mu   sync.Mutex
	msgs []notification.Message
	err  error
}

func (n *recordingNotifier) Notify(ctx context.Context, msg notification.Message) (*notification.Notification, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return nil, n.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n.msgs = append(n.msgs, msg)
	return &notification.Notification{ID: uuid.New(), UserID: msg.Recipient.UserID, Type: msg.Type, Message: msg.Text, Data: msg.Data}, nil
}

func (n *recordingNotifier) sent() []notification.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification.Message(nil), n.msgs...)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

var errInjected = errors.New("injected failure")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
