package store_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"coaching-schedule-api/internal/model"
	"coaching-schedule-api/internal/store"
)

// drivers returns every store available in this environment. The embedded
// driver always runs; postgres joins when DATABASE_URL is set.
func drivers(t *testing.T) map[string]store.Store {
	t.Helper()
	out := map[string]store.Store{}

	b, err := store.OpenBadger("")
	if err != nil {
		t.Fatalf("badger: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	out["badger"] = b

	_ = godotenv.Load("../../.env")
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		ctx := context.Background()
		pool, err := store.NewPool(ctx, dbURL, 4, 0)
		if err != nil {
			t.Fatalf("db: %v", err)
		}
		pg := store.NewPostgres(pool)
		if err := pg.Migrate(ctx); err != nil {
			t.Fatalf("migrate: %v", err)
		}
		t.Cleanup(func() { pg.Close() })
		out["postgres"] = pg
	}
	return out
}

func forEachDriver(t *testing.T, fn func(t *testing.T, st store.Store)) {
	for name, st := range drivers(t) {
		t.Run(name, func(t *testing.T) { fn(t, st) })
	}
}

var base = time.Now().UTC().Truncate(time.Second).Add(1000 * time.Hour)

func newAppt(coach string, client *string, start time.Time, status model.Status) *model.Appointment {
	now := time.Now().UTC().Truncate(time.Second)
	return &model.Appointment{
		ID:              uuid.New().String(),
		Title:           "session",
		CoachID:         coach,
		ClientID:        client,
		StartAt:         start,
		EndAt:           start.Add(time.Hour),
		DurationMinutes: 60,
		LocationType:    model.LocationVideo,
		Status:          status,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func insert(t *testing.T, st store.Store, as ...*model.Appointment) {
	t.Helper()
	err := st.InTx(context.Background(), func(tx store.Tx) error {
		return tx.InsertAppointments(context.Background(), as...)
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
}

func TestAppointmentRoundTrip(t *testing.T) {
	forEachDriver(t, func(t *testing.T, st store.Store) {
		ctx := context.Background()
		client := uuid.New().String()
		a := newAppt(uuid.New().String(), &client, base, model.StatusProposed)
		a.LocationDetail = model.StringPtr("https://meet.example/abc")
		insert(t, st, a)

		got, err := st.Appointment(ctx, a.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Title != a.Title || got.CoachID != a.CoachID || *got.ClientID != client {
			t.Errorf("fields mismatch: %+v", got)
		}
		if !got.StartAt.Equal(a.StartAt) || !got.EndAt.Equal(a.EndAt) {
			t.Errorf("interval mismatch: %v-%v", got.StartAt, got.EndAt)
		}
		if got.LocationDetail == nil || *got.LocationDetail != *a.LocationDetail {
			t.Errorf("location detail: %v", got.LocationDetail)
		}

		if _, err := st.Appointment(ctx, uuid.New().String()); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestFirstOverlap(t *testing.T) {
	forEachDriver(t, func(t *testing.T, st store.Store) {
		ctx := context.Background()
		coach := uuid.New().String()
		client := uuid.New().String()
		start := base.Add(10 * time.Hour)

		confirmed := newAppt(coach, &client, start, model.StatusConfirmed)
		proposed := newAppt(coach, nil, start.Add(3*time.Hour), model.StatusProposed)
		insert(t, st, confirmed, proposed)

		tests := []struct {
			name string
			q    store.OverlapQuery
			want string
		}{
			{"same coach overlap", store.OverlapQuery{CoachID: coach, Start: start.Add(30 * time.Minute), End: start.Add(90 * time.Minute)}, confirmed.ID},
			{"adjacent is free", store.OverlapQuery{CoachID: coach, Start: start.Add(time.Hour), End: start.Add(2 * time.Hour)}, ""},
			{"proposed never blocks", store.OverlapQuery{CoachID: coach, Start: start.Add(3 * time.Hour), End: start.Add(4 * time.Hour)}, ""},
			{"excluded id", store.OverlapQuery{CoachID: coach, Start: start, End: start.Add(time.Hour), ExcludeID: confirmed.ID}, ""},
			{"shared client", store.OverlapQuery{CoachID: uuid.New().String(), ClientID: &client, Start: start, End: start.Add(time.Hour)}, confirmed.ID},
			{"other coach no client", store.OverlapQuery{CoachID: uuid.New().String(), Start: start, End: start.Add(time.Hour)}, ""},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := st.FirstOverlap(ctx, tt.q)
				if err != nil {
					t.Fatalf("overlap: %v", err)
				}
				switch {
				case tt.want == "" && got != nil:
					t.Errorf("expected no conflict, got %s", got.ID)
				case tt.want != "" && (got == nil || got.ID != tt.want):
					t.Errorf("expected conflict with %s, got %v", tt.want, got)
				}
			})
		}
	})
}

func TestAnchorsAreNotListedOrBlocking(t *testing.T) {
	forEachDriver(t, func(t *testing.T, st store.Store) {
		ctx := context.Background()
		coach := uuid.New().String()
		start := base.Add(20 * time.Hour)

		anchor := newAppt(coach, nil, start, model.StatusConfirmed)
		anchor.RecurrenceRule = model.StringPtr("FREQ=DAILY;COUNT=2")
		c1 := newAppt(coach, nil, start, model.StatusConfirmed)
		c1.ParentID = &anchor.ID
		c2 := newAppt(coach, nil, start.Add(24*time.Hour), model.StatusConfirmed)
		c2.ParentID = &anchor.ID
		insert(t, st, anchor, c1, c2)

		list, err := st.ListAppointments(ctx, model.ListFilter{CoachID: coach})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(list) != 2 || list[0].ID != c1.ID || list[1].ID != c2.ID {
			t.Fatalf("expected the two children in order, got %+v", list)
		}

		got, err := st.FirstOverlap(ctx, store.OverlapQuery{CoachID: coach, Start: start, End: start.Add(time.Hour), ExcludeID: c1.ID})
		if err != nil {
			t.Fatalf("overlap: %v", err)
		}
		if got != nil {
			t.Errorf("anchor must not block, got %s", got.ID)
		}

		kids, err := st.Children(ctx, anchor.ID)
		if err != nil {
			t.Fatalf("children: %v", err)
		}
		if len(kids) != 2 {
			t.Errorf("expected 2 children, got %d", len(kids))
		}
	})
}

func TestListFilter(t *testing.T) {
	forEachDriver(t, func(t *testing.T, st store.Store) {
		ctx := context.Background()
		coach := uuid.New().String()
		client := uuid.New().String()
		start := base.Add(40 * time.Hour)

		a := newAppt(coach, &client, start, model.StatusProposed)
		b := newAppt(coach, &client, start.Add(2*time.Hour), model.StatusConfirmed)
		c := newAppt(coach, &client, start.Add(4*time.Hour), model.StatusCancelled)
		insert(t, st, a, b, c)

		from := start.Add(time.Hour)
		tests := []struct {
			name string
			f    model.ListFilter
			want int
		}{
			{"coach", model.ListFilter{CoachID: coach}, 3},
			{"client", model.ListFilter{ClientID: client}, 3},
			{"status", model.ListFilter{CoachID: coach, Status: model.StatusConfirmed}, 1},
			{"exclude cancelled", model.ListFilter{CoachID: coach, ExcludeCancelled: true}, 2},
			{"from", model.ListFilter{CoachID: coach, From: &from}, 2},
			{"limit", model.ListFilter{CoachID: coach, Limit: 1}, 1},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := st.ListAppointments(ctx, tt.f)
				if err != nil {
					t.Fatalf("list: %v", err)
				}
				if len(got) != tt.want {
					t.Errorf("got %d rows, want %d", len(got), tt.want)
				}
			})
		}
	})
}

func TestSetStatusAndDelete(t *testing.T) {
	forEachDriver(t, func(t *testing.T, st store.Store) {
		ctx := context.Background()
		coach := uuid.New().String()
		start := base.Add(60 * time.Hour)

		anchor := newAppt(coach, nil, start, model.StatusConfirmed)
		anchor.RecurrenceRule = model.StringPtr("FREQ=DAILY;COUNT=1")
		child := newAppt(coach, nil, start, model.StatusConfirmed)
		child.ParentID = &anchor.ID
		insert(t, st, anchor, child)

		err := st.InTx(ctx, func(tx store.Tx) error {
			return tx.SetStatus(ctx, model.StatusCancelled, anchor.ID, child.ID)
		})
		if err != nil {
			t.Fatalf("set status: %v", err)
		}
		got, _ := st.Appointment(ctx, child.ID)
		if got.Status != model.StatusCancelled {
			t.Errorf("child status %s", got.Status)
		}

		// deleting only the anchor detaches the child
		err = st.InTx(ctx, func(tx store.Tx) error {
			return tx.DeleteAppointments(ctx, anchor.ID)
		})
		if err != nil {
			t.Fatalf("delete: %v", err)
		}
		if _, err := st.Appointment(ctx, anchor.ID); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("anchor should be gone, got %v", err)
		}
		got, err = st.Appointment(ctx, child.ID)
		if err != nil {
			t.Fatalf("child: %v", err)
		}
		if got.ParentID != nil {
			t.Errorf("child should be detached, parent %v", *got.ParentID)
		}
	})
}

func TestSetStatusNeverRevivesCancelled(t *testing.T) {
	forEachDriver(t, func(t *testing.T, st store.Store) {
		ctx := context.Background()
		client := uuid.New().String()
		a := newAppt(uuid.New().String(), &client, base.Add(70*time.Hour), model.StatusCancelled)
		insert(t, st, a)

		err := st.InTx(ctx, func(tx store.Tx) error {
			return tx.SetStatus(ctx, model.StatusConfirmed, a.ID)
		})
		if !errors.Is(err, store.ErrCancelled) {
			t.Fatalf("expected ErrCancelled, got %v", err)
		}
		if got, _ := st.Appointment(ctx, a.ID); got.Status != model.StatusCancelled {
			t.Errorf("status changed to %s", got.Status)
		}

		// cancelling again stays allowed
		err = st.InTx(ctx, func(tx store.Tx) error {
			return tx.SetStatus(ctx, model.StatusCancelled, a.ID)
		})
		if err != nil {
			t.Errorf("re-cancel: %v", err)
		}

		err = st.InTx(ctx, func(tx store.Tx) error {
			return tx.SetStatus(ctx, model.StatusConfirmed, uuid.New().String())
		})
		if !errors.Is(err, store.ErrNotFound) {
			t.Errorf("missing row: expected ErrNotFound, got %v", err)
		}
	})
}

func TestLockAppointment(t *testing.T) {
	forEachDriver(t, func(t *testing.T, st store.Store) {
		ctx := context.Background()
		a := newAppt(uuid.New().String(), nil, base.Add(75*time.Hour), model.StatusProposed)
		insert(t, st, a)

		err := st.InTx(ctx, func(tx store.Tx) error {
			got, err := tx.LockAppointment(ctx, a.ID)
			if err != nil {
				return err
			}
			if got.ID != a.ID || got.Status != model.StatusProposed {
				t.Errorf("locked row: %+v", got)
			}
			_, err = tx.LockAppointment(ctx, uuid.New().String())
			if !errors.Is(err, store.ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("tx: %v", err)
		}
	})
}

// TestParticipantGuardsSerialize runs many transactions for one coach at
// once; none may fail on contention alone.
func TestParticipantGuardsSerialize(t *testing.T) {
	forEachDriver(t, func(t *testing.T, st store.Store) {
		ctx := context.Background()
		coach := uuid.New().String()

		const n = 32
		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				a := newAppt(coach, nil, base.Add(time.Duration(200+2*i)*time.Hour), model.StatusConfirmed)
				errs <- st.InTx(ctx, func(tx store.Tx) error {
					if err := tx.LockParticipants(ctx, coach, nil); err != nil {
						return err
					}
					return tx.InsertAppointments(ctx, a)
				})
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				t.Errorf("transaction failed: %v", err)
			}
		}
	})
}

func TestRollbackOnError(t *testing.T) {
	forEachDriver(t, func(t *testing.T, st store.Store) {
		ctx := context.Background()
		a := newAppt(uuid.New().String(), nil, base.Add(80*time.Hour), model.StatusConfirmed)

		boom := errors.New("boom")
		err := st.InTx(ctx, func(tx store.Tx) error {
			if err := tx.InsertAppointments(ctx, a); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected callback error, got %v", err)
		}
		if _, err := st.Appointment(ctx, a.ID); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("insert should have rolled back, got %v", err)
		}
	})
}

func TestMessages(t *testing.T) {
	forEachDriver(t, func(t *testing.T, st store.Store) {
		ctx := context.Background()
		client := uuid.New().String()
		a := newAppt(uuid.New().String(), &client, base.Add(90*time.Hour), model.StatusProposed)
		insert(t, st, a)

		m := &model.Message{
			ID:            uuid.New().String(),
			CoachID:       a.CoachID,
			ClientID:      client,
			Content:       "New appointment proposed",
			Type:          model.MessageProposal,
			SentByCoach:   true,
			AppointmentID: &a.ID,
			CreatedAt:     time.Now().UTC().Truncate(time.Second),
		}
		if err := st.InsertMessage(ctx, m); err != nil {
			t.Fatalf("insert message: %v", err)
		}
		got, err := st.MessagesForAppointment(ctx, a.ID)
		if err != nil {
			t.Fatalf("messages: %v", err)
		}
		if len(got) != 1 || got[0].Type != model.MessageProposal || !got[0].SentByCoach {
			t.Fatalf("unexpected messages: %+v", got)
		}
	})
}
