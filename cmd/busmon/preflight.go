package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/hamed0406/busmonitor/internal/config"
)

// errPreflight is returned after the individual problems have been printed.
var errPreflight = errors.New("preflight failed")

func createPreflightCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "preflight",
		Short: "Check the environment before starting serve",
		RunE: func(cmd *cobra.Command, args []string) error {
			return preflight(cmd.OutOrStdout(), config.FromEnv())
		},
	}
}

func preflight(w io.Writer, cfg config.Config) error {
	fail := func(msg string) { _, _ = fmt.Fprintln(w, "✖", msg) }
	warn := func(msg string) { _, _ = fmt.Fprintln(w, "⚠", msg) }
	ok := func(msg string) { _, _ = fmt.Fprintln(w, "✔", msg) }

	errs := multierr.Errors(cfg.Validate())
	for _, err := range errs {
		fail(err.Error())
	}

	ok("API_ADDR=" + cfg.Addr)
	switch cfg.StoreDriver {
	case "sqlite":
		ok("STORE_DRIVER=sqlite SQLITE_PATH=" + cfg.SQLitePath)
	case "postgres":
		if cfg.DatabaseURL != "" {
			ok("STORE_DRIVER=postgres, DATABASE_URL present")
		}
	case "memory":
		warn("STORE_DRIVER=memory; records are lost on restart.")
	}

	if len(cfg.AllowedOrigins) == 0 {
		warn("ALLOWED_ORIGINS empty; any origin may read the API.")
	} else {
		ok("ALLOWED_ORIGINS=" + strings.Join(cfg.AllowedOrigins, ","))
	}
	if cfg.SlackWebhookURL == "" {
		warn("SLACK_WEBHOOK_URL empty; alerts go to the log only.")
	} else {
		ok("SLACK_WEBHOOK_URL present")
	}

	for _, s := range cfg.Services {
		switch {
		case !s.Enabled:
			warn(s.Name + " disabled")
		case !s.HasCredentials():
			warn(s.Name + " has no credentials and will not be polled")
		case s.DevFallback:
			warn(s.Name + " uses development placeholder credentials (MONITOR_DEV_DEFAULTS)")
		default:
			ok(fmt.Sprintf("%s every %s", s.Name, s.Interval))
		}
	}
	active := cfg.Active()
	if len(active) == 0 {
		warn("no service will be polled")
	} else {
		ok("polling: " + strings.Join(sortedNames(active), ", "))
	}

	if len(errs) > 0 {
		return errPreflight
	}
	ok("preflight passed")
	return nil
}
