package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hamed0406/busmonitor/internal/config"
	"github.com/hamed0406/busmonitor/internal/probe"
	"github.com/hamed0406/busmonitor/internal/sanitize"
)

type checkOutput struct {
	Service  string `json:"service"`
	Status   string `json:"status"`
	Kind     string `json:"kind,omitempty"`
	Error    string `json:"error,omitempty"`
	Request  any    `json:"request"`
	Response any    `json:"response,omitempty"`
	Duration string `json:"duration"`
}

func createCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check <service>",
		Short: "Run one probe now and print the sanitized outcome (nothing is stored)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			s, ok := cfg.Service(args[0])
			if !ok {
				return fmt.Errorf("unknown service %q", args[0])
			}
			if !s.HasCredentials() {
				return fmt.Errorf("service %s has no credentials configured", s.Name)
			}
			p, err := buildProber(cfg, s)
			if err != nil {
				return err
			}

			start := time.Now()
			res := p.Check(cmd.Context())
			out := checkOutput{
				Service:  s.Name,
				Status:   string(res.Status),
				Error:    sanitize.Text(res.Error, res.Secrets...),
				Request:  sanitize.Request(res.Request, res.Secrets...),
				Duration: time.Since(start).Round(time.Millisecond).String(),
			}
			if res.Err != nil {
				out.Kind = probe.Kind(res.Err)
			}
			if res.Response != nil {
				out.Response = scrubResponse(res.Response, res.Secrets)
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
}

// scrubResponse round-trips v through JSON text so literal secrets are
// scrubbed. When the scrubbed text is no longer JSON it is returned as text.
func scrubResponse(v any, secrets []string) any {
	b, err := json.Marshal(v)
	if err != nil {
		return sanitize.Text(fmt.Sprintf("%v", v), secrets...)
	}
	text := sanitize.Text(string(b), secrets...)
	var scrubbed any
	if err := json.Unmarshal([]byte(text), &scrubbed); err != nil {
		return text
	}
	return scrubbed
}

func createStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print store statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			store, err := openStore(cmd.Context(), cfg, zap.NewNop())
			if err != nil {
				return err
			}
			defer store.Close()
			st, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), st)
		},
	}
}

func createCleanupCommand() *cobra.Command {
	var hours int
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete records older than the retention window once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			retention := cfg.Retention
			if hours > 0 {
				retention = time.Duration(hours) * time.Hour
			}
			store, err := openStore(cmd.Context(), cfg, zap.NewNop())
			if err != nil {
				return err
			}
			defer store.Close()
			n, err := store.Cleanup(cmd.Context(), retention)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "deleted %d records older than %s\n", n, retention)
			return err
		},
	}
	cmd.Flags().IntVar(&hours, "hours", 0, "retention in hours (default RETENTION_HOURS)")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func sortedNames(services []config.ServiceConfig) []string {
	names := make([]string, 0, len(services))
	for _, s := range services {
		names = append(names, s.Name)
	}
	sort.Strings(names)
	return names
}
