package config

import (
	"testing"
	"time"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg := FromEnv()

	if cfg.Addr == "" {
		t.Fatal("Addr default missing")
	}
	if cfg.CheckTick != 300*time.Second {
		t.Fatalf("CheckTick default = %v, want 300s", cfg.CheckTick)
	}
	if cfg.ProbeTimeout != 30*time.Second {
		t.Fatalf("ProbeTimeout default = %v, want 30s", cfg.ProbeTimeout)
	}
	if cfg.SSLWarningDays != 30 {
		t.Fatalf("SSLWarningDays default = %d, want 30", cfg.SSLWarningDays)
	}
	if cfg.PerformanceThresholdMS != 3000 {
		t.Fatalf("PerformanceThresholdMS default = %d, want 3000", cfg.PerformanceThresholdMS)
	}
	if cfg.LinkCheckConcurrency != 10 {
		t.Fatalf("LinkCheckConcurrency default = %d, want 10", cfg.LinkCheckConcurrency)
	}
	if cfg.ResultRetention != 90*24*time.Hour {
		t.Fatalf("ResultRetention default = %v, want 90d", cfg.ResultRetention)
	}
	if cfg.AlertRetention != 30*24*time.Hour {
		t.Fatalf("AlertRetention default = %v, want 30d", cfg.AlertRetention)
	}
	if cfg.SweepSchedule != "@daily" {
		t.Fatalf("SweepSchedule default = %q, want @daily", cfg.SweepSchedule)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("LogLevel default = %q, want info", cfg.LogLevel)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("CHECK_TICK_SECONDS", "60")
	t.Setenv("RESULT_RETENTION_DAYS", "7")
	t.Setenv("PUBLIC_API_KEYS", "a, b,")
	t.Setenv("NTFY_TOPIC_MAP", "uptime=ops-uptime,ssl=ops-ssl")

	cfg := FromEnv()

	if cfg.CheckTick != 60*time.Second {
		t.Fatalf("CheckTick = %v, want 60s", cfg.CheckTick)
	}
	if cfg.ResultRetention != 7*24*time.Hour {
		t.Fatalf("ResultRetention = %v, want 7d", cfg.ResultRetention)
	}
	if len(cfg.PublicAPIKeys) != 2 || cfg.PublicAPIKeys[1] != "b" {
		t.Fatalf("PublicAPIKeys = %v", cfg.PublicAPIKeys)
	}
	if cfg.NtfyTopics["ssl"] != "ops-ssl" {
		t.Fatalf("NtfyTopics = %v", cfg.NtfyTopics)
	}
}

func TestFromEnv_BadNumbersFallBack(t *testing.T) {
	t.Setenv("MAX_CONCURRENT_CHECKS", "zero")
	t.Setenv("SSL_WARNING_DAYS", "-3")

	cfg := FromEnv()
	if cfg.MaxConcurrentChecks != 5 {
		t.Fatalf("MaxConcurrentChecks = %d, want default 5", cfg.MaxConcurrentChecks)
	}
	if cfg.SSLWarningDays != 30 {
		t.Fatalf("SSLWarningDays = %d, want default 30", cfg.SSLWarningDays)
	}
}
