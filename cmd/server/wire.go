package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"coaching-schedule-api/internal/config"
	"coaching-schedule-api/internal/locker"
	"coaching-schedule-api/internal/logging"
	"coaching-schedule-api/internal/messaging"
	"coaching-schedule-api/internal/reminder"
	"coaching-schedule-api/internal/store"
)

type deps struct {
	store   store.Store
	sink    messaging.Sink
	lock    locker.Locker
	closers []func() error
}

func (d *deps) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			logging.Warn().Err(err).Msg("close")
		}
	}
}

func (d *deps) reminders(cfg *config.Config) *reminder.Scheduler {
	return reminder.New(d.store, d.sink,
		reminder.WithSpec(cfg.Reminder.Cron),
		reminder.WithWindow(cfg.Reminder.Window),
		reminder.WithLocker(d.lock),
	)
}

func wire(ctx context.Context, cfg *config.Config) (*deps, error) {
	d := &deps{}
	ok := false
	defer func() {
		if !ok {
			d.close()
		}
	}()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	d.store = st
	d.closers = append(d.closers, st.Close)

	local := messaging.NewStoreSink(st)
	switch cfg.Messaging.Driver {
	case "amqp":
		s, err := messaging.DialAMQP(cfg.Messaging.AMQPURL, cfg.Messaging.AMQPExchange)
		if err != nil {
			return nil, fmt.Errorf("amqp: %w", err)
		}
		d.closers = append(d.closers, s.Close)
		d.sink = messaging.Fanout{local, messaging.NewBreaker(s, messaging.DefaultBreakerConfig())}
	case "grpc":
		s, conn, err := messaging.DialGRPC(cfg.Messaging.GRPCAddr)
		if err != nil {
			return nil, fmt.Errorf("grpc: %w", err)
		}
		d.closers = append(d.closers, conn.Close)
		d.sink = messaging.Fanout{local, messaging.NewBreaker(s, messaging.DefaultBreakerConfig())}
	default:
		d.sink = local
	}

	if cfg.Redis.Addr != "" {
		rc := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		if err := rc.Ping(ctx).Err(); err != nil {
			_ = rc.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		d.closers = append(d.closers, rc.Close)
		d.lock = locker.NewRedis(rc)
	} else {
		d.lock = locker.NewLocal()
	}

	ok = true
	return d, nil
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Driver {
	case "badger":
		b, err := store.OpenBadger(cfg.Store.BadgerDir)
		if err != nil {
			return nil, fmt.Errorf("badger: %w", err)
		}
		logging.Info().Str("dir", cfg.Store.BadgerDir).Msg("opened badger store")
		return b, nil
	case "postgres":
		pg, err := openPostgres(ctx, cfg)
		if err != nil {
			return nil, err
		}
		// schema is applied at boot; it is idempotent
		if err := pg.Migrate(ctx); err != nil {
			_ = pg.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return pg, nil
	}
	return nil, errors.New("unknown store driver " + cfg.Store.Driver)
}

func openPostgres(ctx context.Context, cfg *config.Config) (*store.Postgres, error) {
	pool, err := store.NewPool(ctx, cfg.DatabaseURL, cfg.DB.MaxConns, cfg.DB.MinConns)
	if err != nil {
		return nil, fmt.Errorf("db: %w", err)
	}
	logging.Info().Msg("connected to postgres")
	return store.NewPostgres(pool), nil
}
