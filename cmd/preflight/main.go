// cmd/preflight/main.go
package main

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

func main() {
	fail := func(msg string) {
		fmt.Fprintln(os.Stderr, "✖", msg)
		os.Exit(1)
	}
	warn := func(msg string) { fmt.Fprintln(os.Stderr, "⚠", msg) }
	ok := func(msg string) { fmt.Println("✔", msg) }

	admin := strings.TrimSpace(os.Getenv("ADMIN_API_KEYS"))
	pub := strings.TrimSpace(os.Getenv("PUBLIC_API_KEYS"))
	apiAddr := strings.TrimSpace(os.Getenv("API_ADDR"))
	db := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	topic := strings.TrimSpace(os.Getenv("NTFY_TOPIC"))
	smtp := strings.TrimSpace(os.Getenv("SMTP_HOST"))
	slack := strings.TrimSpace(os.Getenv("SLACK_WEBHOOK_URL"))
	chrome := strings.TrimSpace(os.Getenv("CHROME_PATH"))

	if admin == "" {
		fail("ADMIN_API_KEYS is empty (admin routes will 403).")
	}
	if pub == "" {
		fail("PUBLIC_API_KEYS is empty (read routes will 401).")
	}

	// Normalize and sanity-check lists (no spaces around commas).
	for name, v := range map[string]string{"ADMIN_API_KEYS": admin, "PUBLIC_API_KEYS": pub} {
		if strings.Contains(v, " ") {
			warn(name + " contains spaces; use comma-separated with no spaces, e.g. key1,key2")
		}
	}

	if apiAddr == "" {
		warn("API_ADDR is empty; the default bind address will be used.")
	} else {
		ok("API_ADDR=" + apiAddr)
	}

	if db == "" {
		warn("DATABASE_URL empty — checks and alerts will live in memory only.")
	} else {
		ok("DATABASE_URL present")
	}

	if topic == "" && smtp == "" && slack == "" {
		warn("no notification channel configured (NTFY_TOPIC, SMTP_HOST, SLACK_WEBHOOK_URL all empty) — alerts will only be visible via the API.")
	} else {
		ok("at least one notification channel configured")
	}

	// The performance probe drives a real browser.
	if chrome != "" {
		if _, err := os.Stat(chrome); err != nil {
			fail("CHROME_PATH points at a missing binary: " + chrome)
		}
		ok("CHROME_PATH=" + chrome)
	} else if browserOnPath() {
		ok("browser found on PATH")
	} else {
		warn("no Chrome/Chromium found — performance checks will fail until CHROME_PATH is set.")
	}

	ok("preflight passed")
}

func browserOnPath() bool {
	for _, name := range []string{"google-chrome", "chromium", "chromium-browser", "chrome"} {
		if _, err := exec.LookPath(name); err == nil {
			return true
		}
	}
	return false
}
