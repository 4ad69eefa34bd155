package trace

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/veritrack/pkg/kit"
)

func TestStore_FlushOnClose(t *testing.T) {
	sqlDB, err := sql.Open("sqlite", "file:"+filepath.Join(t.TempDir(), "trace.db"))
	require.NoError(t, err)
	defer sqlDB.Close()

	s := NewStore(sqlDB, time.Millisecond)
	require.NoError(t, s.Init())

	ctx := kit.WithTraceID(context.Background(), "tr-1")
	s.Record(ctx, "Query", "SELECT 1", 2*time.Millisecond, nil)
	s.Record(context.Background(), "Exec", "INSERT x", time.Microsecond, errors.New("constraint"))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "close is idempotent")

	entries, err := s.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Exec", entries[0].Op)
	assert.Equal(t, "constraint", entries[0].Error)
	assert.Equal(t, "tr-1", entries[1].TraceID)
	assert.Equal(t, int64(2000), entries[1].DurationUs)
	assert.Equal(t, int64(0), s.Dropped())
}
