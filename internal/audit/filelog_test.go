package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biomind-nexus-server/internal/domain"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit", "fallback.jsonl")
	store, err := NewFileStore(path)
	require.NoError(t, err)

	ctx := context.Background()
	for i, partition := range []string{"2026-08-24", "2026-08-25", "2026-08-25"} {
		e := &domain.AuditEvent{
			EventID:       int64(i) + 1,
			PartitionDate: partition,
			EventType:     domain.AuditStageCompleted,
			UserID:        "researcher-1",
			Action:        "pipeline",
			CreatedAt:     time.Now().UTC(),
		}
		e.Hash = EventHash(e)
		require.NoError(t, store.Append(ctx, e))
	}

	events, err := store.Chain(ctx, "2026-08-25")
	require.NoError(t, err)
	require.Len(t, events, 2, "chain reads only the requested partition")
	assert.Equal(t, int64(2), events[0].EventID)
	assert.Equal(t, "pipeline", events[0].Action)
}

func TestFileStoreChainMissingFile(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "never-written.jsonl"))
	require.NoError(t, err)

	events, err := store.Chain(context.Background(), "2026-08-25")
	require.NoError(t, err)
	assert.Empty(t, events)
}
