package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/biomind-nexus-server/internal/domain"
)

// FileStore is the append-only JSON-line fallback sink. One event per line;
// appends are fsynced.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates the fallback file's directory when missing.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create fallback directory: %w", err)
	}
	return &FileStore{path: path}, nil
}

// Append writes one event as a JSON line.
func (f *FileStore) Append(ctx context.Context, event *domain.AuditEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open fallback file: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write fallback event: %w", err)
	}
	return file.Sync()
}

// Chain reads back a partition's events in file order.
func (f *FileStore) Chain(ctx context.Context, partitionDate string) ([]domain.AuditEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.Open(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open fallback file: %w", err)
	}
	defer file.Close()

	var events []domain.AuditEvent
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var e domain.AuditEvent
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("corrupt fallback line: %w", err)
		}
		if e.PartitionDate == partitionDate {
			events = append(events, e)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan fallback file: %w", err)
	}
	return events, nil
}
