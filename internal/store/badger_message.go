package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"coaching-schedule-api/internal/model"
)

func (b *Badger) InsertMessage(_ context.Context, m *model.Message) error {
	return b.db.Update(func(txn *badger.Txn) error {
		if err := setJSON(txn, msgKeyPrefix+m.ID, m); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		if m.AppointmentID != nil {
			key := msgApptKeyPrefix + *m.AppointmentID + ":" + m.ID
			if err := txn.Set([]byte(key), nil); err != nil {
				return fmt.Errorf("index message: %w", err)
			}
		}
		return nil
	})
}

func (b *Badger) MessagesForAppointment(_ context.Context, appointmentID string) ([]model.Message, error) {
	var out []model.Message
	err := b.db.View(func(txn *badger.Txn) error {
		prefix := msgApptKeyPrefix + appointmentID + ":"
		for _, k := range keysWithPrefix(txn, prefix) {
			var m model.Message
			if err := getJSON(txn, msgKeyPrefix+strings.TrimPrefix(k, prefix), &m); err != nil {
				return err
			}
			out = append(out, m)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("messages for %s: %w", appointmentID, err)
	}
	slices.SortFunc(out, func(a, b model.Message) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (t *badgerTx) detachMessages(appointmentID string) error {
	prefix := msgApptKeyPrefix + appointmentID + ":"
	for _, k := range keysWithPrefix(t.txn, prefix) {
		if err := t.txn.Delete([]byte(k)); err != nil {
			return fmt.Errorf("delete message index: %w", err)
		}
		var m model.Message
		msgKey := msgKeyPrefix + strings.TrimPrefix(k, prefix)
		if err := getJSON(t.txn, msgKey, &m); err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return fmt.Errorf("detach message: %w", err)
		}
		m.AppointmentID = nil
		if err := setJSON(t.txn, msgKey, &m); err != nil {
			return fmt.Errorf("detach message: %w", err)
		}
	}
	return nil
}
