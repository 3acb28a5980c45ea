// cmd/preflight/main.go
package main

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/multierr"

	"github.com/hamed0406/urlmonitor/internal/config"
)

func main() {
	fail := func(msg string) {
		fmt.Fprintln(os.Stderr, "✖", msg)
		os.Exit(1)
	}
	warn := func(msg string) { fmt.Fprintln(os.Stderr, "⚠", msg) }
	ok := func(msg string) { fmt.Println("✔", msg) }

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		for _, e := range multierr.Errors(err) {
			fmt.Fprintln(os.Stderr, "✖", e)
		}
		fail("configuration could not be loaded")
	}
	if err := cfg.Validate(); err != nil {
		for _, e := range multierr.Errors(err) {
			fmt.Fprintln(os.Stderr, "✖", e)
		}
		fail("configuration is invalid")
	}

	if len(cfg.AdminAPIKeys) == 0 && cfg.AdminUsername == "" {
		warn("no ADMIN_API_KEYS or ADMIN_USERNAME; write routes are open.")
	}
	if len(cfg.PublicAPIKeys) == 0 && len(cfg.AdminAPIKeys) == 0 && cfg.AdminUsername == "" {
		warn("no API keys configured; read routes are open.")
	}
	for name, keys := range map[string][]string{"ADMIN_API_KEYS": cfg.AdminAPIKeys, "PUBLIC_API_KEYS": cfg.PublicAPIKeys} {
		for _, k := range keys {
			if strings.ContainsAny(k, " \t") {
				warn(name + " contains whitespace inside a key")
			}
		}
	}

	ok("ADDR=" + cfg.Addr)

	backend, _, _ := cfg.Storage()
	if backend == config.BackendMemory {
		warn("DATABASE_URL empty; definitions and results live in memory and are lost on restart.")
	} else {
		ok("storage backend: " + string(backend))
	}
	if cfg.DropAll {
		warn("DROP_ALL=true; every table will be dropped at startup.")
	}

	if cfg.SMTP.Enabled() {
		ok(fmt.Sprintf("SMTP %s:%d tls=%v", cfg.SMTP.Server, cfg.SMTP.Port, cfg.SMTP.TLS()))
	} else {
		warn("SMTP_SERVER empty; alert e-mails are only logged.")
	}
	if cfg.AdminEmail == "" {
		warn("ADMIN_EMAIL empty; escalations after " + fmt.Sprint(cfg.MaxFailures) + " failures have no recipient.")
	}

	if len(cfg.AllowedOrigins) == 0 {
		warn("ALLOWED_ORIGINS empty; CORS allows any origin without credentials.")
	} else {
		ok("ALLOWED_ORIGINS=" + strings.Join(cfg.AllowedOrigins, ","))
	}

	ok("preflight passed")
}
