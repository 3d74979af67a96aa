package scheduler

import (
	"flag"
	"testing"
	"time"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("scheduler", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Interval != 30*time.Second {
		t.Errorf("interval = %s, want 30s", cfg.Interval)
	}
	if cfg.DBPath != "lockup.db" {
		t.Errorf("db path = %q, want lockup.db", cfg.DBPath)
	}
}

func TestParseConfigIntervalOverride(t *testing.T) {
	t.Setenv("LOCKUP_SCHEDULER_INTERVAL", "5s")

	fs := flag.NewFlagSet("scheduler", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-interval", "2s"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Interval != 2*time.Second {
		t.Errorf("interval = %s, want flag to override env", cfg.Interval)
	}
}
