package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"coaching-schedule-api/internal/auth"
	"coaching-schedule-api/internal/config"
	"coaching-schedule-api/internal/handler"
	"coaching-schedule-api/internal/logging"
	"coaching-schedule-api/internal/middleware"
	"coaching-schedule-api/internal/model"
	"coaching-schedule-api/internal/scheduling"
	"coaching-schedule-api/internal/supervisor"
)

func main() {
	root := &cobra.Command{
		Use:           "coaching-schedule-api",
		Short:         "Coaching appointment scheduling service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), migrateCmd(), remindCmd(), tokenCmd())

	if err := root.Execute(); err != nil {
		logging.Error().Err(err).Msg("exiting")
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	return cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the reminder scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()

			d, err := wire(ctx, cfg)
			if err != nil {
				return err
			}
			defer d.close()

			svc := scheduling.New(d.store, d.sink,
				scheduling.WithHorizon(cfg.Horizon()),
				scheduling.WithUpcomingLimit(cfg.Scheduling.UpcomingLimit),
			)

			rl := middleware.NewRateLimiter(cfg.Rate.RPS, cfg.Rate.Burst)
			defer rl.Close()
			h := handler.New(svc, d.store)

			httpSrv := &http.Server{
				Addr:              ":" + cfg.Port,
				Handler:           h.Routes(handler.RouterConfig{Secret: cfg.JWTSecret, CORSOrigin: cfg.CORS.Origin, Limiter: rl}),
				ReadHeaderTimeout: 10 * time.Second,
			}

			tree := supervisor.New("coaching-schedule-api", supervisor.DefaultTreeConfig())
			tree.AddAPI(supervisor.NewHTTPService(httpSrv, httpSrv.Addr, 10*time.Second))
			if cfg.Reminder.Enabled {
				tree.AddJob(d.reminders(cfg))
			}

			logging.Info().
				Str("store", cfg.Store.Driver).
				Str("messaging", cfg.Messaging.Driver).
				Bool("reminders", cfg.Reminder.Enabled).
				Msg("starting")
			err = tree.Serve(ctx)
			logging.Info().Msg("shutting down")
			if ctx.Err() != nil {
				return nil
			}
			return err
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Store.Driver != "postgres" {
				logging.Info().Str("store", cfg.Store.Driver).Msg("nothing to migrate")
				return nil
			}
			ctx, stop := signalContext()
			defer stop()
			pg, err := openPostgres(ctx, cfg)
			if err != nil {
				return err
			}
			defer pg.Close()
			if err := pg.Migrate(ctx); err != nil {
				return err
			}
			logging.Info().Msg("migration applied")
			return nil
		},
	}
}

func remindCmd() *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "remind",
		Short: "Run the reminder scheduler on its own",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()

			d, err := wire(ctx, cfg)
			if err != nil {
				return err
			}
			defer d.close()

			r := d.reminders(cfg)
			if once {
				ran, err := r.RunOnce(ctx)
				if err != nil {
					return err
				}
				if !ran {
					logging.Info().Msg("another instance already ran this reminder tick")
				}
				return nil
			}
			if err := r.Serve(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "run a single pass and exit")
	return cmd
}

func tokenCmd() *cobra.Command {
	var (
		profile, role, name string
		ttl                 time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			r := model.Role(role)
			if r != model.RoleCoach && r != model.RoleClient {
				return fmt.Errorf("role must be %s or %s", model.RoleCoach, model.RoleClient)
			}
			tok, err := auth.MakeToken(model.Actor{ProfileID: profile, Role: r, Name: name}, cfg.JWTSecret, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&profile, "profile", "", "profile id (required)")
	cmd.Flags().StringVar(&role, "role", string(model.RoleCoach), "COACH or CLIENT")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("profile")
	return cmd
}
