package factory

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hamed0406/busmonitor/internal/repo/memory"
	"github.com/hamed0406/busmonitor/internal/repo/sqlite"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()
	log := zap.NewNop()

	s, err := Open(ctx, Options{Driver: "memory"}, log)
	require.NoError(t, err)
	assert.IsType(t, &memory.Store{}, s)

	s, err = Open(ctx, Options{Driver: "SQLite", SQLitePath: filepath.Join(t.TempDir(), "m.db")}, log)
	require.NoError(t, err)
	assert.IsType(t, &sqlite.Store{}, s)
	require.NoError(t, s.Close())

	_, err = Open(ctx, Options{Driver: "postgres"}, log)
	assert.ErrorContains(t, err, "DATABASE_URL")

	_, err = Open(ctx, Options{Driver: "mongo"}, log)
	assert.ErrorContains(t, err, "unknown store driver")
}
