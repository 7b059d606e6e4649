package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SlotManager is the only code that flips a timeslot's booked flag.
// LockForUpdate, Claim and Release run inside a caller's transaction;
// the provider CRUD methods open their own.
type SlotManager struct {
	store Store
}

func NewSlotManager(store Store) *SlotManager {
	return &SlotManager{store: store}
}

// LockForUpdate reads the slot and holds its row lock until the transaction ends.
func (m *SlotManager) LockForUpdate(ctx context.Context, tx Tx, slotID uuid.UUID) (*Timeslot, error) {
	return tx.LockSlot(ctx, slotID)
}

// Claim marks a locked slot booked. The caller must roll back on error.
func (m *SlotManager) Claim(ctx context.Context, tx Tx, slot *Timeslot) error {
	if slot.IsBooked {
		return ErrSlotAlreadyBooked
	}
	updated, err := tx.SetSlotBooked(ctx, slot.ID, true)
	if err != nil {
		return err
	}
	*slot = *updated
	return nil
}

// Release frees a slot. Releasing a free slot is not an error.
func (m *SlotManager) Release(ctx context.Context, tx Tx, slotID uuid.UUID) (*Timeslot, error) {
	return tx.SetSlotBooked(ctx, slotID, false)
}

func (m *SlotManager) Create(ctx context.Context, providerID uuid.UUID, day time.Time, start, end Clock) (*Timeslot, error) {
	if err := validateTimes(start, end); err != nil {
		return nil, err
	}
	return m.store.InsertSlot(ctx, providerID, DateOnly(day), start, end)
}

// Update changes the day or times of a free slot owned by providerID.
func (m *SlotManager) Update(ctx context.Context, providerID, slotID uuid.UUID, patch SlotPatch) (*Timeslot, error) {
	if patch.Empty() {
		return nil, ErrEmptyPatch
	}

	var updated *Timeslot
	err := m.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		slot, err := m.LockForUpdate(ctx, tx, slotID)
		if err != nil {
			return err
		}
		if slot.ProviderID != providerID {
			return ErrNotSlotOwner
		}
		if slot.IsBooked {
			return ErrSlotBooked
		}

		merged := patch.Apply(*slot)
		if err := validateTimes(merged.StartTime, merged.EndTime); err != nil {
			return err
		}

		updated, err = tx.UpdateSlot(ctx, merged)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes a slot owned by providerID; its appointments go with it.
func (m *SlotManager) Delete(ctx context.Context, providerID, slotID uuid.UUID) error {
	return m.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		slot, err := m.LockForUpdate(ctx, tx, slotID)
		if err != nil {
			return err
		}
		if slot.ProviderID != providerID {
			return ErrNotSlotOwner
		}
		return tx.DeleteSlot(ctx, slotID)
	})
}

func (m *SlotManager) List(ctx context.Context, providerID uuid.UUID, availableOnly bool) ([]Timeslot, error) {
	return m.store.ListSlots(ctx, providerID, availableOnly)
}

func validateTimes(start, end Clock) error {
	if !start.Valid() || !end.Valid() || start >= end {
		return ErrInvalidSlotTimes
	}
	return nil
}
