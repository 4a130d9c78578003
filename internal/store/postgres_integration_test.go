//go:build integration

package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"coaching-schedule-api/internal/apperr"
	"coaching-schedule-api/internal/messaging"
	"coaching-schedule-api/internal/model"
	"coaching-schedule-api/internal/scheduling"
	"coaching-schedule-api/internal/store"
)

// startPostgres runs a throwaway postgres and returns a migrated store.
func startPostgres(t *testing.T) *store.Postgres {
	t.Helper()
	ctx := context.Background()

	pg, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_PASSWORD": "postgres",
				"POSTGRES_DB":       "scheduler",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start postgres: %v", err)
	}
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	host, err := pg.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := pg.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	url := "postgres://postgres:postgres@" + host + ":" + port.Port() + "/scheduler?sslmode=disable"

	pool, err := store.NewPool(ctx, url, 8, 0)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	st := store.NewPostgres(pool)
	t.Cleanup(func() { st.Close() })
	if err := st.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// applying twice must be harmless
	if err := st.Migrate(ctx); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	return st
}

// TestExclusionConstraint checks that the schema itself refuses overlapping
// confirmed rows, even when the caller skips the advisory lock and the
// overlap query.
func TestExclusionConstraint(t *testing.T) {
	ctx := context.Background()
	st := startPostgres(t)

	coach := uuid.New().String()
	start := time.Now().UTC().Truncate(time.Second).Add(48 * time.Hour)
	insert(t, st, newAppt(coach, nil, start, model.StatusConfirmed))

	err := st.InTx(ctx, func(tx store.Tx) error {
		return tx.InsertAppointments(ctx, newAppt(coach, nil, start.Add(30*time.Minute), model.StatusConfirmed))
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict from exclusion constraint, got %v", err)
	}

	// proposed rows are not constrained
	insert(t, st, newAppt(coach, nil, start, model.StatusProposed))
}

// TestConfirmRacingCancelPostgres races a client's confirm against the
// coach's cancel under READ COMMITTED; the cancel must always stick.
func TestConfirmRacingCancelPostgres(t *testing.T) {
	ctx := context.Background()
	st := startPostgres(t)
	svc := scheduling.New(st, messaging.Discard{})
	coach := model.Actor{ProfileID: uuid.New().String(), Role: model.RoleCoach}
	base := time.Now().UTC().Truncate(time.Second).Add(72 * time.Hour)

	for i := 0; i < 30; i++ {
		cl := model.Actor{ProfileID: uuid.New().String(), Role: model.RoleClient}
		res, err := svc.Create(ctx, coach, scheduling.CreateInput{
			Title:           "race",
			ClientID:        &cl.ProfileID,
			StartAt:         base.Add(time.Duration(i) * 2 * time.Hour),
			DurationMinutes: 60,
			LocationType:    model.LocationPhone,
		})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		id := res.Appointment.ID

		var (
			wg                    sync.WaitGroup
			confirmErr, cancelErr error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, confirmErr = svc.Confirm(ctx, cl, id)
		}()
		go func() {
			defer wg.Done()
			_, cancelErr = svc.Cancel(ctx, coach, id, model.ScopeSingle)
		}()
		wg.Wait()

		if cancelErr != nil {
			t.Fatalf("round %d cancel: %v", i, cancelErr)
		}
		if confirmErr != nil && !apperr.Is(confirmErr, apperr.KindValidation) {
			t.Fatalf("round %d confirm: %v", i, confirmErr)
		}
		a, err := st.Appointment(ctx, id)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if a.Status != model.StatusCancelled {
			t.Fatalf("round %d: cancelled appointment ended up %s", i, a.Status)
		}
	}
}
