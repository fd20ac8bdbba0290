package audit

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/biomind-nexus-server/internal/domain"
)

// chainTail is the cached end of one partition's chain.
type chainTail struct {
	seq  int64
	hash string
}

// Logger is the write side of the audit trail. Events in one UTC-day
// partition form a hash chain with ids climbing from 1; appends to a
// partition are serialized so both the id and the linkage are assigned
// under the lock. A primary-store failure diverts the event to the file
// fallback and never fails the caller.
type Logger struct {
	primary  domain.AuditStore
	fallback *FileStore
	log      *logrus.Logger

	mu     sync.Mutex
	tails  map[string]chainTail
	partMu map[string]*sync.Mutex
}

// NewLogger builds a Logger. primary may be nil; everything then goes to
// the fallback file.
func NewLogger(primary domain.AuditStore, fallback *FileStore, log *logrus.Logger) *Logger {
	return &Logger{
		primary:  primary,
		fallback: fallback,
		log:      log,
		tails:    make(map[string]chainTail),
		partMu:   make(map[string]*sync.Mutex),
	}
}

func (l *Logger) partitionLock(partition string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.partMu[partition]
	if !ok {
		m = &sync.Mutex{}
		l.partMu[partition] = m
	}
	return m
}

// Log appends one event to the current partition's chain.
func (l *Logger) Log(ctx context.Context, eventType, userID, requestID, action, resource string, details map[string]string) {
	now := time.Now().UTC()
	partition := PartitionFor(now)

	pm := l.partitionLock(partition)
	pm.Lock()
	defer pm.Unlock()

	tail := l.resolveTail(ctx, partition)

	event := &domain.AuditEvent{
		EventID:       tail.seq + 1,
		PartitionDate: partition,
		EventType:     eventType,
		UserID:        userID,
		RequestID:     requestID,
		Action:        action,
		Resource:      resource,
		Details:       details,
		PrevHash:      tail.hash,
		CreatedAt:     now,
	}
	event.Hash = EventHash(event)

	if l.primary != nil {
		if err := l.primary.Append(ctx, event); err == nil {
			l.rememberTail(partition, event.EventID, event.Hash)
			return
		} else {
			l.log.WithError(err).WithFields(logrus.Fields{
				"event_type": eventType,
				"request_id": requestID,
			}).Warn("Primary audit store unavailable, spilling to fallback")
		}
	}

	if err := l.fallback.Append(ctx, event); err != nil {
		l.log.WithError(err).WithFields(logrus.Fields{
			"event_type": eventType,
			"request_id": requestID,
		}).Error("Audit fallback write failed, event lost")
		return
	}
	l.rememberTail(partition, event.EventID, event.Hash)
}

func (l *Logger) rememberTail(partition string, seq int64, hash string) {
	l.mu.Lock()
	l.tails[partition] = chainTail{seq: seq, hash: hash}
	l.mu.Unlock()
}

// resolveTail finds the end of the partition chain: the in-process cache
// first, then the primary store and the fallback file (whichever holds the
// higher event id), then genesis. The fallback probe matters after a
// restart in fallback-only mode, where the file holds the whole chain.
func (l *Logger) resolveTail(ctx context.Context, partition string) chainTail {
	l.mu.Lock()
	if t, ok := l.tails[partition]; ok {
		l.mu.Unlock()
		return t
	}
	l.mu.Unlock()

	tail := chainTail{seq: 0, hash: GenesisHash(partition)}

	type tailReader interface {
		LastEventID(ctx context.Context, partitionDate string) (int64, error)
		LastHash(ctx context.Context, partitionDate string) (string, error)
	}
	if tr, ok := l.primary.(tailReader); ok {
		seq, seqErr := tr.LastEventID(ctx, partition)
		hash, hashErr := tr.LastHash(ctx, partition)
		switch {
		case seqErr != nil || hashErr != nil:
			l.log.WithField("partition", partition).
				Warn("Could not resolve audit tail from primary store")
		case seq > tail.seq:
			tail = chainTail{seq: seq, hash: hash}
		}
	}

	// Spilled events can sit past the primary's tail.
	if ft, ok := l.fallbackTail(ctx, partition); ok && ft.seq > tail.seq {
		tail = ft
	}
	return tail
}

// fallbackTail reads the highest-id event of a partition from the fallback
// file.
func (l *Logger) fallbackTail(ctx context.Context, partition string) (chainTail, bool) {
	events, err := l.fallback.Chain(ctx, partition)
	if err != nil {
		l.log.WithError(err).WithField("partition", partition).
			Warn("Could not resolve audit tail from fallback file")
		return chainTail{}, false
	}
	if len(events) == 0 {
		return chainTail{}, false
	}
	last := events[0]
	for _, e := range events[1:] {
		if e.EventID > last.EventID {
			last = e
		}
	}
	return chainTail{seq: last.EventID, hash: last.Hash}, true
}

// Chain returns a partition's events, merging primary and fallback records
// by event id.
func (l *Logger) Chain(ctx context.Context, partitionDate string) ([]domain.AuditEvent, error) {
	var events []domain.AuditEvent

	if l.primary != nil {
		primary, err := l.primary.Chain(ctx, partitionDate)
		if err != nil {
			l.log.WithError(err).Warn("Primary audit store unavailable for read-back")
		} else {
			events = append(events, primary...)
		}
	}

	spilled, err := l.fallback.Chain(ctx, partitionDate)
	if err != nil {
		return nil, err
	}
	events = append(events, spilled...)

	sort.SliceStable(events, func(i, j int) bool {
		if events[i].EventID != events[j].EventID {
			return events[i].EventID < events[j].EventID
		}
		return events[i].CreatedAt.Before(events[j].CreatedAt)
	})
	return events, nil
}

// Verify recomputes a partition's chain and reports the first divergence.
func (l *Logger) Verify(ctx context.Context, partitionDate string) (VerifyResult, error) {
	events, err := l.Chain(ctx, partitionDate)
	if err != nil {
		return VerifyResult{}, err
	}
	return VerifyChain(partitionDate, events), nil
}
