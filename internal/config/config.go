package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr        string // API bind address, e.g., "127.0.0.1:8080" (Windows) or ":8080" (Docker)
	LogDir      string // logs directory
	LogLevel    string // zap level name, default info
	DatabaseURL string // postgres://... or sqlite file path; empty means in-memory store

	// Scheduler
	CheckTick            time.Duration // fixed scheduler tick, independent of per-site intervals
	DefaultCheckInterval time.Duration // per-site interval fallback
	MaxConcurrentChecks  int           // global cap on in-flight site runs

	// Probes
	ProbeTimeout           time.Duration // hard per-probe timeout
	SSLWarningDays         int
	PerformanceThresholdMS int
	LinkCheckConcurrency   int
	LinkCheckRPS           float64 // crawler request pacing
	ChromePath             string  // browser binary for the performance probe, empty uses the default lookup

	// Retention
	SweepSchedule   string // cron spec for the retention sweeper
	ResultRetention time.Duration
	AlertRetention  time.Duration

	// Notifications
	NtfyServerURL string
	NtfyTopic     string
	NtfyTopics    map[string]string // per alert type overrides, "type=topic,..."
	NtfyPriority  string
	SlackWebhook  string
	SMTPHost      string
	SMTPPort      int
	SMTPUser      string
	SMTPPassword  string
	AlertEmail    string

	// API auth
	PublicAPIKeys []string
	AdminAPIKeys  []string
}

func FromEnv() Config {
	addr := os.Getenv("API_ADDR")
	if addr == "" {
		addr = "127.0.0.1:8080"
	}

	logDir := os.Getenv("LOG_DIR")
	if logDir == "" {
		logDir = "logs"
	}

	cfg := Config{
		Addr:        addr,
		LogDir:      logDir,
		LogLevel:    envString("LOG_LEVEL", "info"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		CheckTick:            envDuration("CHECK_TICK_SECONDS", 300*time.Second),
		DefaultCheckInterval: envDuration("DEFAULT_CHECK_INTERVAL", 300*time.Second),
		MaxConcurrentChecks:  envInt("MAX_CONCURRENT_CHECKS", 5),

		ProbeTimeout:           envDuration("PROBE_TIMEOUT_SECONDS", 30*time.Second),
		SSLWarningDays:         envInt("SSL_WARNING_DAYS", 30),
		PerformanceThresholdMS: envInt("PERFORMANCE_THRESHOLD_MS", 3000),
		LinkCheckConcurrency:   envInt("BROKEN_LINK_CONCURRENCY", 10),
		LinkCheckRPS:           envFloat("BROKEN_LINK_RPS", 20),
		ChromePath:             os.Getenv("CHROME_PATH"),

		SweepSchedule:   envString("SWEEP_SCHEDULE", "@daily"),
		ResultRetention: envDuration("RESULT_RETENTION_DAYS", 90*24*time.Hour),
		AlertRetention:  envDuration("ALERT_RETENTION_DAYS", 30*24*time.Hour),

		NtfyServerURL: envString("NTFY_SERVER_URL", "https://ntfy.sh"),
		NtfyTopic:     os.Getenv("NTFY_TOPIC"),
		NtfyTopics:    envMap("NTFY_TOPIC_MAP"),
		NtfyPriority:  envString("NTFY_PRIORITY", "default"),

		SlackWebhook: os.Getenv("SLACK_WEBHOOK_URL"),
		SMTPHost:     os.Getenv("SMTP_HOST"),
		SMTPPort:     envInt("SMTP_PORT", 587),
		SMTPUser:     os.Getenv("SMTP_USER"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		AlertEmail:   os.Getenv("ALERT_EMAIL"),

		PublicAPIKeys: envList("PUBLIC_API_KEYS"),
		AdminAPIKeys:  envList("ADMIN_API_KEYS"),
	}
	return cfg
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			return f
		}
	}
	return def
}

// envDuration reads an integer env var and scales it by the unit implied by
// the key suffix: _SECONDS and _DAYS multiply accordingly; anything else is
// taken as seconds.
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	if strings.HasSuffix(key, "_DAYS") {
		return time.Duration(n) * 24 * time.Hour
	}
	return time.Duration(n) * time.Second
}

// envList parses a comma-separated list, dropping empty items.
func envList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// envMap parses "key=value,key=value" pairs.
func envMap(key string) map[string]string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	out := make(map[string]string)
	for _, p := range strings.Split(raw, ",") {
		kv := strings.SplitN(strings.TrimSpace(p), "=", 2)
		if len(kv) == 2 && kv[0] != "" && kv[1] != "" {
			out[kv[0]] = kv[1]
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
