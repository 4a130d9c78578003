package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"coaching-schedule-api/internal/model"
)

type badgerQuerier struct {
	view func(fn func(txn *badger.Txn) error) error
}

func parentKey(parentID, id string) string {
	return apptParentKeyPrefix + parentID + ":" + id
}

func byStart(a, b model.Appointment) int {
	if c := a.StartAt.Compare(b.StartAt); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

func (q badgerQuerier) Appointment(_ context.Context, id string) (*model.Appointment, error) {
	var a model.Appointment
	err := q.view(func(txn *badger.Txn) error {
		return getJSON(txn, apptKeyPrefix+id, &a)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get appointment %s: %w", id, err)
	}
	return &a, nil
}

// scan returns every stored appointment accepted by keep, sorted by start.
func (q badgerQuerier) scan(keep func(a *model.Appointment) bool) ([]model.Appointment, error) {
	var out []model.Appointment
	err := q.view(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(apptKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var a model.Appointment
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &a)
			}); err != nil {
				return err
			}
			if keep(&a) {
				out = append(out, a)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan appointments: %w", err)
	}
	slices.SortFunc(out, byStart)
	return out, nil
}

func (q badgerQuerier) FirstOverlap(_ context.Context, o OverlapQuery) (*model.Appointment, error) {
	hasClient := o.ClientID != nil && *o.ClientID != ""
	found, err := q.scan(func(a *model.Appointment) bool {
		if a.Status != model.StatusConfirmed || a.IsAnchor() || a.ID == o.ExcludeID {
			return false
		}
		if !a.Overlaps(o.Start, o.End) {
			return false
		}
		return a.CoachID == o.CoachID || (hasClient && a.HasClient() && *a.ClientID == *o.ClientID)
	})
	if err != nil || len(found) == 0 {
		return nil, err
	}
	return &found[0], nil
}

func (q badgerQuerier) Children(_ context.Context, parentID string) ([]model.Appointment, error) {
	var out []model.Appointment
	err := q.view(func(txn *badger.Txn) error {
		prefix := apptParentKeyPrefix + parentID + ":"
		for _, k := range keysWithPrefix(txn, prefix) {
			var a model.Appointment
			if err := getJSON(txn, apptKeyPrefix+strings.TrimPrefix(k, prefix), &a); err != nil {
				return err
			}
			out = append(out, a)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("children of %s: %w", parentID, err)
	}
	slices.SortFunc(out, byStart)
	return out, nil
}

func (q badgerQuerier) ListAppointments(_ context.Context, f model.ListFilter) ([]model.Appointment, error) {
	out, err := q.scan(func(a *model.Appointment) bool {
		switch {
		case a.IsAnchor():
			return false
		case f.CoachID != "" && a.CoachID != f.CoachID:
			return false
		case f.ClientID != "" && (!a.HasClient() || *a.ClientID != f.ClientID):
			return false
		case f.Status != "" && a.Status != f.Status:
			return false
		case f.ExcludeCancelled && a.Status == model.StatusCancelled:
			return false
		case f.From != nil && a.StartAt.Before(*f.From):
			return false
		case f.To != nil && a.StartAt.After(*f.To):
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (q badgerQuerier) ConfirmedStartingBetween(_ context.Context, from, to time.Time) ([]model.Appointment, error) {
	return q.scan(func(a *model.Appointment) bool {
		return a.Status == model.StatusConfirmed && !a.IsAnchor() &&
			!a.StartAt.Before(from) && !a.StartAt.After(to)
	})
}

func (t *badgerTx) InsertAppointments(_ context.Context, as ...*model.Appointment) error {
	for _, a := range as {
		if _, err := t.txn.Get([]byte(apptKeyPrefix + a.ID)); err == nil {
			return fmt.Errorf("insert appointment %s: duplicate id", a.ID)
		}
		if err := setJSON(t.txn, apptKeyPrefix+a.ID, a); err != nil {
			return fmt.Errorf("insert appointment: %w", err)
		}
		if a.ParentID != nil {
			if err := t.txn.Set([]byte(parentKey(*a.ParentID, a.ID)), nil); err != nil {
				return fmt.Errorf("index parent: %w", err)
			}
		}
	}
	return nil
}

// LockAppointment reads through the transaction; a concurrent commit to the
// same key makes this transaction conflict and retry.
func (t *badgerTx) LockAppointment(ctx context.Context, id string) (*model.Appointment, error) {
	return t.Appointment(ctx, id)
}

func (t *badgerTx) SetStatus(_ context.Context, status model.Status, ids ...string) error {
	now := time.Now().UTC()
	for _, id := range ids {
		var a model.Appointment
		if err := getJSON(t.txn, apptKeyPrefix+id, &a); err != nil {
			if errors.Is(err, ErrNotFound) {
				return err
			}
			return fmt.Errorf("set status %s: %w", status, err)
		}
		if a.Status == model.StatusCancelled && status != model.StatusCancelled {
			return ErrCancelled
		}
		a.Status = status
		a.UpdatedAt = now
		if err := setJSON(t.txn, apptKeyPrefix+id, &a); err != nil {
			return fmt.Errorf("set status %s: %w", status, err)
		}
	}
	return nil
}

// DeleteAppointments removes the given rows. Surviving children of a deleted
// anchor are detached and messages lose their back-reference, matching the
// ON DELETE SET NULL behaviour of the SQL schema.
func (t *badgerTx) DeleteAppointments(_ context.Context, ids ...string) error {
	deleted := make(map[string]bool, len(ids))
	for _, id := range ids {
		deleted[id] = true
	}

	for _, id := range ids {
		var a model.Appointment
		if err := getJSON(t.txn, apptKeyPrefix+id, &a); err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return fmt.Errorf("delete appointment %s: %w", id, err)
		}
		if err := t.txn.Delete([]byte(apptKeyPrefix + id)); err != nil {
			return fmt.Errorf("delete appointment %s: %w", id, err)
		}
		if a.ParentID != nil {
			if err := t.txn.Delete([]byte(parentKey(*a.ParentID, id))); err != nil {
				return fmt.Errorf("delete parent index: %w", err)
			}
		}
		if err := t.detachChildren(id, deleted); err != nil {
			return err
		}
		if err := t.detachMessages(id); err != nil {
			return err
		}
	}
	return nil
}

func (t *badgerTx) detachChildren(parentID string, deleted map[string]bool) error {
	prefix := apptParentKeyPrefix + parentID + ":"
	for _, k := range keysWithPrefix(t.txn, prefix) {
		if err := t.txn.Delete([]byte(k)); err != nil {
			return fmt.Errorf("delete parent index: %w", err)
		}
		childID := strings.TrimPrefix(k, prefix)
		if deleted[childID] {
			continue
		}
		var c model.Appointment
		if err := getJSON(t.txn, apptKeyPrefix+childID, &c); err != nil {
			return fmt.Errorf("detach %s: %w", childID, err)
		}
		c.ParentID = nil
		if err := setJSON(t.txn, apptKeyPrefix+childID, &c); err != nil {
			return fmt.Errorf("detach %s: %w", childID, err)
		}
	}
	return nil
}
