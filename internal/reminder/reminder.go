// Package reminder runs the periodic pass that tells clients about their
// confirmed appointments starting soon.
//
// Tick is the whole job and takes the current time as an argument; Serve
// only wires it to a cron schedule. Reminders are not de-duplicated: a
// second pass over the same window sends them again.
package reminder

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"coaching-schedule-api/internal/locker"
	"coaching-schedule-api/internal/logging"
	"coaching-schedule-api/internal/messaging"
	"coaching-schedule-api/internal/metrics"
	"coaching-schedule-api/internal/model"
	"coaching-schedule-api/internal/scheduling"
)

const (
	DefaultSpec   = "0 8 * * *"
	DefaultWindow = 24 * time.Hour

	leaderKey = "reminder:leader"
	leaderTTL = 10 * time.Minute
)

// Source is the read the pass needs; store.Store satisfies it.
type Source interface {
	ConfirmedStartingBetween(ctx context.Context, from, to time.Time) ([]model.Appointment, error)
}

type Scheduler struct {
	src    Source
	sink   messaging.Sink
	lock   locker.Locker
	spec   string
	window time.Duration
	now    func() time.Time
}

type Option func(*Scheduler)

func WithSpec(spec string) Option {
	return func(s *Scheduler) {
		if spec != "" {
			s.spec = spec
		}
	}
}

func WithWindow(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.window = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithLocker makes only the lock holder run a scheduled pass, so several
// instances sharing a store do not all send the same reminders.
func WithLocker(l locker.Locker) Option {
	return func(s *Scheduler) { s.lock = l }
}

func New(src Source, sink messaging.Sink, opts ...Option) *Scheduler {
	s := &Scheduler{
		src:    src,
		sink:   sink,
		lock:   locker.NewLocal(),
		spec:   DefaultSpec,
		window: DefaultWindow,
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Tick reads every CONFIRMED appointment starting in [now, now+window] and
// emits one reminder per appointment that has a client. The read finishes
// before the first send; a failed send is logged and the pass continues.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) (sent int, err error) {
	now = now.UTC()
	due, err := s.src.ConfirmedStartingBetween(ctx, now, now.Add(s.window))
	if err != nil {
		metrics.ReminderRuns.WithLabelValues("failed").Inc()
		return 0, err
	}

	for i := range due {
		a := &due[i]
		if !a.HasClient() {
			continue
		}
		if err := s.sink.Send(ctx, scheduling.ReminderMessage(a, now)); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("appointment_id", a.ID).Msg("reminder not delivered")
			continue
		}
		sent++
	}

	metrics.ReminderRuns.WithLabelValues("ran").Inc()
	metrics.RemindersSent.Add(float64(sent))
	logging.Ctx(ctx).Info().Int("due", len(due)).Int("sent", sent).Msg("reminder pass finished")
	return sent, nil
}

// RunOnce performs one pass under a lock keyed by the scheduled minute. The
// lock is left to expire so an instance firing late for the same minute
// still sees it taken. It reports false when another holder has the lock.
func (s *Scheduler) RunOnce(ctx context.Context) (bool, error) {
	now := s.now()
	ok, _, err := s.lock.TryLock(ctx, tickKey(now), leaderTTL)
	if err != nil {
		metrics.ReminderRuns.WithLabelValues("failed").Inc()
		return false, err
	}
	if !ok {
		metrics.ReminderRuns.WithLabelValues("skipped").Inc()
		logging.Ctx(ctx).Info().Msg("reminder pass skipped; another instance took this tick")
		return false, nil
	}

	_, err = s.Tick(ctx, now)
	return true, err
}

func tickKey(t time.Time) string {
	return leaderKey + ":" + t.UTC().Truncate(time.Minute).Format(time.RFC3339)
}

// Serve runs the cron schedule until ctx is done. It satisfies suture.Service.
func (s *Scheduler) Serve(ctx context.Context) error {
	c := cron.New(cron.WithLocation(time.UTC))
	job := func() {
		if _, err := s.RunOnce(ctx); err != nil {
			logging.Ctx(ctx).Error().Err(err).Msg("reminder pass failed")
		}
	}
	if _, err := c.AddFunc(s.spec, job); err != nil {
		logging.Warn().Err(err).Str("spec", s.spec).Msg("invalid reminder cron spec; falling back to @daily")
		c = cron.New(cron.WithLocation(time.UTC))
		_, _ = c.AddFunc("@daily", job)
	}
	c.Start()
	logging.Info().Str("spec", s.spec).Dur("window", s.window).Msg("reminder scheduler started")

	<-ctx.Done()
	<-c.Stop().Done()
	return ctx.Err()
}

func (s *Scheduler) String() string { return "reminder-scheduler" }
