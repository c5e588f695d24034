package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hamed0406/busmonitor/internal/domain"
	"github.com/hamed0406/busmonitor/internal/repo/sqlite"
)

// clearEnv isolates the command from host credentials.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"BOLIVARIANO_USERNAME", "BOLIVARIANO_PASSWORD", "BOLIVARIANO_BASE_URL",
		"ARAUCA_BRASILIA_USERNAME", "ARAUCA_BRASILIA_PASSWORD",
		"TRANSPURIFICACION_KEY", "TRANSPURIFICACION_CONSUMER_ID",
		"MONITOR_DEV_DEFAULTS", "STORE_DRIVER", "DATABASE_URL", "SLACK_WEBHOOK_URL",
	} {
		t.Setenv(k, "")
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := buildRoot()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestHelpListsCommands(t *testing.T) {
	out, err := run(t, "--help")
	require.NoError(t, err)
	for _, c := range []string{"serve", "check", "stats", "cleanup", "preflight"} {
		assert.Contains(t, out, c)
	}
}

func TestPreflight(t *testing.T) {
	clearEnv(t)
	t.Setenv("BOLIVARIANO_USERNAME", "u")
	t.Setenv("BOLIVARIANO_PASSWORD", "p")
	t.Setenv("ARAUCA_BRASILIA_ENABLED", "false")

	out, err := run(t, "preflight")
	require.NoError(t, err)
	assert.Contains(t, out, "✔ bolivariano every 5m0s")
	assert.Contains(t, out, "⚠ arauca_brasilia disabled")
	assert.Contains(t, out, "⚠ transpurificacion has no credentials")
	assert.Contains(t, out, "polling: bolivariano")
	assert.Contains(t, out, "preflight passed")

	t.Setenv("RETENTION_HOURS", "0")
	out, err = run(t, "preflight")
	assert.ErrorIs(t, err, errPreflight)
	assert.Contains(t, out, "✖ RETENTION_HOURS must be positive")
}

func TestStatsAndCleanup_SQLite(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "monitoring.db")
	t.Setenv("SQLITE_PATH", path)

	ctx := context.Background()
	s, err := sqlite.New(ctx, path)
	require.NoError(t, err)
	old := time.Now().Add(-72 * time.Hour)
	require.NoError(t, s.Append(ctx, &domain.MonitoringRecord{ServiceName: "a", Timestamp: old, TimeSlot: domain.SlotLabel(old), Status: domain.StatusSuccess}))
	require.NoError(t, s.Append(ctx, &domain.MonitoringRecord{ServiceName: "a", Timestamp: time.Now(), TimeSlot: "00:00", Status: domain.StatusSuccess}))
	require.NoError(t, s.Close())

	out, err := run(t, "stats")
	require.NoError(t, err)
	var st domain.StoreStats
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.EqualValues(t, 2, st.TotalRecords)

	out, err = run(t, "cleanup", "--hours", "48")
	require.NoError(t, err)
	assert.Equal(t, "deleted 1 records older than 48h0m0s\n", out)
}

func TestCheck_UnknownAndUnconfigured(t *testing.T) {
	clearEnv(t)
	_, err := run(t, "check", "greyhound")
	assert.ErrorContains(t, err, "unknown service")

	_, err = run(t, "check", "bolivariano")
	assert.ErrorContains(t, err, "no credentials")
}

func TestCheck_PrintsSanitizedResult(t *testing.T) {
	clearEnv(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.Contains(r.URL.Path, "UserLogin") {
			_, _ = w.Write([]byte(`{"token":"tok-live-123"}`))
			return
		}
		_, _ = w.Write([]byte(`{"statusCode":200,"data":{"outboundTrips":[]}}`))
	}))
	defer srv.Close()

	t.Setenv("BOLIVARIANO_BASE_URL", srv.URL)
	t.Setenv("BOLIVARIANO_USERNAME", "agency-user")
	t.Setenv("BOLIVARIANO_PASSWORD", "s3cret-pass")

	out, err := run(t, "check", "bolivariano")
	require.NoError(t, err)

	var got checkOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "success", got.Status)
	for _, secret := range []string{"tok-live-123", "agency-user", "s3cret-pass"} {
		assert.NotContains(t, out, secret)
	}
}

func TestScrubResponse(t *testing.T) {
	got := scrubResponse(map[string]any{"token": "tok-1", "n": 2}, []string{"tok-1"})
	assert.Equal(t, map[string]any{"token": "[REDACTED]", "n": float64(2)}, got)

	// the secret spans a JSON quote, so the scrubbed text no longer parses
	got = scrubResponse(map[string]any{"a": "x"}, []string{`x"}`})
	text, ok := got.(string)
	require.True(t, ok, "expected text fallback, got %T", got)
	assert.NotContains(t, text, `x"}`)

	got = scrubResponse(map[string]any{"ch": make(chan int), "pw": "s3cret"}, []string{"s3cret"})
	text, ok = got.(string)
	require.True(t, ok, "expected text fallback, got %T", got)
	assert.NotContains(t, text, "s3cret")
}
