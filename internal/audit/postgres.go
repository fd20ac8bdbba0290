package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/biomind-nexus-server/internal/domain"
)

// PostgresStore persists audit events in the audit_events table. The schema
// is created through migrations; see migrations/.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an existing connection. The schema must already
// exist.
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromURL opens a pooled connection from a DSN.
func NewPostgresStoreFromURL(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := NewPostgresStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Append writes one event. The caller has already linked and hashed it.
func (s *PostgresStore) Append(ctx context.Context, event *domain.AuditEvent) error {
	details, err := json.Marshal(event.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal event details: %w", err)
	}

	query := `
		INSERT INTO audit_events (
			partition_date, event_id, event_type, user_id, request_id,
			action, resource, details, hash, prev_hash, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = s.db.ExecContext(ctx, query,
		event.PartitionDate,
		event.EventID,
		event.EventType,
		event.UserID,
		event.RequestID,
		event.Action,
		event.Resource,
		details,
		event.Hash,
		event.PrevHash,
		event.CreatedAt,
	)
	if err != nil {
		return domain.WrapError(domain.ErrRepoUnavailable, "failed to append audit event", err)
	}
	return nil
}

// Chain returns a partition's events in append order.
func (s *PostgresStore) Chain(ctx context.Context, partitionDate string) ([]domain.AuditEvent, error) {
	query := `
		SELECT partition_date, event_id, event_type, user_id, request_id,
			action, resource, details, hash, prev_hash, created_at
		FROM audit_events
		WHERE partition_date = $1
		ORDER BY event_id
	`

	rows, err := s.db.QueryContext(ctx, query, partitionDate)
	if err != nil {
		return nil, domain.WrapError(domain.ErrRepoUnavailable, "failed to read audit chain", err)
	}
	defer rows.Close()

	var events []domain.AuditEvent
	for rows.Next() {
		var e domain.AuditEvent
		var details []byte
		if err := rows.Scan(
			&e.PartitionDate, &e.EventID, &e.EventType, &e.UserID, &e.RequestID,
			&e.Action, &e.Resource, &details, &e.Hash, &e.PrevHash, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event details: %w", err)
			}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrRepoUnavailable, "failed to iterate audit chain", err)
	}
	return events, nil
}

// LastHash returns the hash of the newest event in a partition, or the
// genesis hash when the partition is empty.
func (s *PostgresStore) LastHash(ctx context.Context, partitionDate string) (string, error) {
	query := `
		SELECT hash FROM audit_events
		WHERE partition_date = $1
		ORDER BY event_id DESC
		LIMIT 1
	`

	var hash string
	err := s.db.QueryRowContext(ctx, query, partitionDate).Scan(&hash)
	if err == sql.ErrNoRows {
		return GenesisHash(partitionDate), nil
	}
	if err != nil {
		return "", domain.WrapError(domain.ErrRepoUnavailable, "failed to read last hash", err)
	}
	return hash, nil
}

// LastEventID returns the id of the newest event in a partition, 0 when the
// partition is empty.
func (s *PostgresStore) LastEventID(ctx context.Context, partitionDate string) (int64, error) {
	query := `
		SELECT COALESCE(MAX(event_id), 0) FROM audit_events
		WHERE partition_date = $1
	`

	var id int64
	if err := s.db.QueryRowContext(ctx, query, partitionDate).Scan(&id); err != nil {
		return 0, domain.WrapError(domain.ErrRepoUnavailable, "failed to read last event id", err)
	}
	return id, nil
}

// Close closes the underlying connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
