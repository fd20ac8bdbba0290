package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/biomind-nexus-server/internal/domain"
)

// PartitionFor returns the UTC-day partition key for a timestamp.
func PartitionFor(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// GenesisHash is the prev_hash of the first event in a partition.
func GenesisHash(partitionDate string) string {
	sum := sha256.Sum256([]byte("GENESIS|" + partitionDate))
	return hex.EncodeToString(sum[:])
}

// EventHash computes an event's self hash over the identifying fields and
// the previous link. Details and resource do not participate in the hash.
func EventHash(e *domain.AuditEvent) string {
	content := fmt.Sprintf("%d|%s|%s|%s|%s", e.EventID, e.EventType, e.UserID, e.Action, e.PrevHash)
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// VerifyResult reports the outcome of a chain verification.
type VerifyResult struct {
	Valid      bool   `json:"valid"`
	Length     int    `json:"length"`
	BrokenAt   int    `json:"broken_at,omitempty"`
	BrokenID   int64  `json:"broken_event_id,omitempty"`
	FailReason string `json:"fail_reason,omitempty"`
}

// VerifyChain recomputes the hash chain for a partition's events, in order,
// and reports the first divergence. Event ids must climb by exactly one from
// 1; a gap or repeat means an event was dropped or injected. An empty chain
// is valid.
func VerifyChain(partitionDate string, events []domain.AuditEvent) VerifyResult {
	prev := GenesisHash(partitionDate)
	for i := range events {
		e := &events[i]
		if e.EventID != int64(i)+1 {
			return VerifyResult{
				Valid: false, Length: len(events), BrokenAt: i, BrokenID: e.EventID,
				FailReason: "event id out of sequence",
			}
		}
		if e.PrevHash != prev {
			return VerifyResult{
				Valid: false, Length: len(events), BrokenAt: i, BrokenID: e.EventID,
				FailReason: "prev_hash does not match preceding event",
			}
		}
		if got := EventHash(e); got != e.Hash {
			return VerifyResult{
				Valid: false, Length: len(events), BrokenAt: i, BrokenID: e.EventID,
				FailReason: "stored hash does not match recomputed hash",
			}
		}
		prev = e.Hash
	}
	return VerifyResult{Valid: true, Length: len(events)}
}
