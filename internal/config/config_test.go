package config

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("REQUEST_THRESHOLD", "")
	t.Setenv("MONITOR_WINDOW_SECONDS", "")
	t.Setenv("MODERATION_MODEL", "")

	cfg := Load()

	if cfg.RequestThreshold != 20 {
		t.Errorf("RequestThreshold = %d, want 20", cfg.RequestThreshold)
	}
	if cfg.MonitorWindow != 5*time.Minute {
		t.Errorf("MonitorWindow = %v, want 5m", cfg.MonitorWindow)
	}
	if cfg.ModerationModel != "omni-moderation-latest" {
		t.Errorf("ModerationModel = %q", cfg.ModerationModel)
	}
	if cfg.MonitorWorkers != 1 {
		t.Errorf("MonitorWorkers = %d, want 1", cfg.MonitorWorkers)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("POCKETBASE_URL", "https://pb.example.com/")
	t.Setenv("REQUEST_THRESHOLD", "5")
	t.Setenv("MONITOR_INTERVAL_SECONDS", "60")
	t.Setenv("MONITOR_RUN_ON_START", "true")
	t.Setenv("MONITOR_WORKERS", "not-a-number")

	cfg := Load()

	if cfg.PocketBaseURL != "https://pb.example.com" {
		t.Errorf("PocketBaseURL = %q, trailing slash should be trimmed", cfg.PocketBaseURL)
	}
	if cfg.RequestThreshold != 5 {
		t.Errorf("RequestThreshold = %d, want 5", cfg.RequestThreshold)
	}
	if cfg.MonitorInterval != time.Minute {
		t.Errorf("MonitorInterval = %v, want 1m", cfg.MonitorInterval)
	}
	if !cfg.MonitorRunOnStart {
		t.Error("MonitorRunOnStart should be true")
	}
	if cfg.MonitorWorkers != 1 {
		t.Errorf("MonitorWorkers = %d, invalid value should fall back to 1", cfg.MonitorWorkers)
	}
}

func TestValidateFixesInvalidValues(t *testing.T) {
	cfg := &Config{RequestThreshold: -3, MonitorWorkers: 0}
	cfg.Validate(zap.NewNop())

	if cfg.RequestThreshold != 20 {
		t.Errorf("RequestThreshold = %d, want 20", cfg.RequestThreshold)
	}
	if cfg.MonitorWorkers != 1 {
		t.Errorf("MonitorWorkers = %d, want 1", cfg.MonitorWorkers)
	}
}

func TestValidateFixesDurations(t *testing.T) {
	tests := []struct {
		name  string
		value time.Duration
	}{
		{"zero", 0},
		{"negative", -10 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				RequestThreshold: 20,
				MonitorWorkers:   1,
				MonitorWindow:    tt.value,
				MonitorInterval:  tt.value,
				MonitorLockTTL:   tt.value,
				UpstreamTimeout:  tt.value,
			}
			cfg.Validate(zap.NewNop())

			if cfg.MonitorWindow != 5*time.Minute {
				t.Errorf("MonitorWindow = %v, want 5m", cfg.MonitorWindow)
			}
			if cfg.MonitorInterval != 5*time.Minute {
				t.Errorf("MonitorInterval = %v, want 5m", cfg.MonitorInterval)
			}
			if cfg.MonitorLockTTL != 2*time.Minute {
				t.Errorf("MonitorLockTTL = %v, want 2m", cfg.MonitorLockTTL)
			}
			if cfg.UpstreamTimeout != 30*time.Second {
				t.Errorf("UpstreamTimeout = %v, want 30s", cfg.UpstreamTimeout)
			}
		})
	}
}

func TestLoadZeroIntervalIsRepaired(t *testing.T) {
	t.Setenv("MONITOR_INTERVAL_SECONDS", "0")

	cfg := Load()
	cfg.Validate(zap.NewNop())

	if cfg.MonitorInterval <= 0 {
		t.Fatalf("MonitorInterval = %v, must be positive after Validate", cfg.MonitorInterval)
	}
}
