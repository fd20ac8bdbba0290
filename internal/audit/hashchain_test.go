package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biomind-nexus-server/internal/domain"
)

func buildChain(t *testing.T, partition string, n int) []domain.AuditEvent {
	t.Helper()
	events := make([]domain.AuditEvent, 0, n)
	prev := GenesisHash(partition)
	base := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		e := domain.AuditEvent{
			EventID:       int64(i) + 1,
			PartitionDate: partition,
			EventType:     domain.AuditStageCompleted,
			UserID:        "researcher-1",
			RequestID:     "req-1",
			Action:        "pipeline",
			PrevHash:      prev,
			CreatedAt:     base.Add(time.Duration(i) * time.Second),
		}
		e.Hash = EventHash(&e)
		prev = e.Hash
		events = append(events, e)
	}
	return events
}

func TestGenesisHashIsPartitionScoped(t *testing.T) {
	a := GenesisHash("2026-08-24")
	b := GenesisHash("2026-08-25")
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 64)
}

func TestVerifyChainAcceptsIntactChain(t *testing.T) {
	partition := "2026-08-25"
	events := buildChain(t, partition, 6)

	res := VerifyChain(partition, events)
	assert.True(t, res.Valid)
	assert.Equal(t, 6, res.Length)
}

func TestVerifyChainEmptyIsValid(t *testing.T) {
	res := VerifyChain("2026-08-25", nil)
	assert.True(t, res.Valid)
	assert.Zero(t, res.Length)
}

func TestVerifyChainDetectsMutatedEvent(t *testing.T) {
	partition := "2026-08-25"
	events := buildChain(t, partition, 5)

	// Flip a field that participates in the hash.
	events[2].Action = "tampered"

	res := VerifyChain(partition, events)
	require.False(t, res.Valid)
	assert.Equal(t, 2, res.BrokenAt)
	assert.Equal(t, int64(3), res.BrokenID)
}

func TestVerifyChainDetectsBrokenLink(t *testing.T) {
	partition := "2026-08-25"
	events := buildChain(t, partition, 5)

	events[3].PrevHash = GenesisHash(partition)

	res := VerifyChain(partition, events)
	require.False(t, res.Valid)
	assert.Equal(t, 3, res.BrokenAt)
}

func TestVerifyChainDetectsRemovedEvent(t *testing.T) {
	partition := "2026-08-25"
	events := buildChain(t, partition, 5)

	trimmed := append(events[:2:2], events[3:]...)

	res := VerifyChain(partition, trimmed)
	require.False(t, res.Valid)
	assert.Equal(t, 2, res.BrokenAt)
	assert.Equal(t, "event id out of sequence", res.FailReason)
}

func TestVerifyChainDetectsReplayedID(t *testing.T) {
	partition := "2026-08-25"
	events := buildChain(t, partition, 4)

	events[2].EventID = 2

	res := VerifyChain(partition, events)
	require.False(t, res.Valid)
	assert.Equal(t, 2, res.BrokenAt)
	assert.Equal(t, int64(2), res.BrokenID)
	assert.Equal(t, "event id out of sequence", res.FailReason)
}
