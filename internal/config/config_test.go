package config

import (
	"testing"

	"github.com/nutrilink/platform/internal/app/domain/request"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Fatalf("unexpected default port: %d", cfg.Server.Port)
	}
	if cfg.InitialRequestStatus() != request.StatusPending {
		t.Fatalf("unexpected default initial status: %s", cfg.InitialRequestStatus())
	}
	if cfg.Listings.ExpirySweepSchedule != "*/5 * * * *" {
		t.Fatalf("unexpected sweep schedule: %q", cfg.Listings.ExpirySweepSchedule)
	}
	if cfg.RateLimit.RequestsPerSecond != 20 || cfg.RateLimit.Burst != 40 {
		t.Fatalf("unexpected rate limit defaults: %+v", cfg.RateLimit)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("REQUEST_INITIAL_STATUS", "approved")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Fatalf("override not applied: %d", cfg.Server.Port)
	}
	if cfg.InitialRequestStatus() != request.StatusApproved {
		t.Fatalf("override not applied: %s", cfg.InitialRequestStatus())
	}
}

func TestLoadRejectsBadInitialStatus(t *testing.T) {
	t.Setenv("REQUEST_INITIAL_STATUS", "completed")
	if _, err := Load(); err == nil {
		t.Fatal("completed is not a valid initial status")
	}
}

func TestLoadRejectsBadPort(t *testing.T) {
	t.Setenv("SERVER_PORT", "99999")
	if _, err := Load(); err == nil {
		t.Fatal("out-of-range port must be rejected")
	}
}
