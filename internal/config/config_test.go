package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"DATABASE_URL":                  "database_url",
		"JWT_SECRET":                    "jwt_secret",
		"PORT":                          "port",
		"SCHED_STORE_DRIVER":            "store.driver",
		"SCHED_STORE_BADGER_DIR":        "store.badger_dir",
		"SCHED_REMINDER_WINDOW":         "reminder.window",
		"SCHED_SCHEDULING_HORIZON_DAYS": "scheduling.horizon_days",
		"SCHED_MESSAGING_AMQP_URL":      "messaging.amqp_url",
		"SCHED_DATABASE_URL":            "database_url",
		"HOME":                          "",
	}
	for in, want := range tests {
		if got := envKey(in); got != want {
			t.Errorf("envKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLoadLayers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := "port: \"9000\"\nstore:\n  driver: badger\nreminder:\n  cron: \"30 7 * * *\"\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("PORT", "9100")
	t.Setenv("SCHED_REMINDER_WINDOW", "12h")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store.Driver != "badger" {
		t.Errorf("file layer: driver %q", cfg.Store.Driver)
	}
	if cfg.Port != "9100" {
		t.Errorf("env should override file: port %q", cfg.Port)
	}
	if cfg.Reminder.Cron != "30 7 * * *" || cfg.Reminder.Window != 12*time.Hour {
		t.Errorf("reminder: %+v", cfg.Reminder)
	}
	if cfg.Scheduling.UpcomingLimit != 3 || cfg.Horizon() != 365*24*time.Hour {
		t.Errorf("defaults lost: %+v", cfg.Scheduling)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err == nil {
		t.Fatal("missing secret must fail")
	}
	cfg.JWTSecret = "s"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults plus secret should validate: %v", err)
	}
	cfg.Messaging.Driver = "amqp"
	if err := cfg.Validate(); err == nil {
		t.Error("amqp without url must fail")
	}
}
