// Package audit provides the append-only change log for GeneaFlow trees.
//
// Every mutation of a person, relationship, or tree is recorded as an
// immutable Entry: who changed what, when, and (for plausibility
// overrides) why. The log is newline-delimited JSON, append-only, and
// never rewritten; the Reader side reconstructs an entity's history by
// scanning it.
//
// Recording is best-effort by contract: a failed audit write must never
// fail the primary mutation, so callers log the error and move on.
//
// Example:
//
//	logger, err := audit.NewLogger(audit.DefaultConfig())
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer logger.Close()
//
//	logger.LogChange(audit.EntityPerson, "p-123", audit.OpUpdate, "u-9",
//		map[string]any{"fatherId": "p-77"})
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EntityType classifies what kind of record an entry is about.
type EntityType string

const (
	EntityPerson       EntityType = "person"
	EntityRelationship EntityType = "relationship"
	EntityTree         EntityType = "tree"
)

// Operation is the kind of change recorded.
type Operation string

const (
	OpCreate   Operation = "create"
	OpUpdate   Operation = "update"
	OpDelete   Operation = "delete"
	OpOverride Operation = "override"
)

// Entry is one immutable change-log record.
type Entry struct {
	// Unique entry identifier, generated on write.
	ID string `json:"id"`

	// Timestamp in UTC, set on write when zero.
	Timestamp time.Time `json:"timestamp"`

	EntityType EntityType `json:"entity_type"`
	EntityID   string     `json:"entity_id"`
	Operation  Operation  `json:"operation"`

	// Changes holds the mutated fields and their new values.
	Changes map[string]any `json:"changes,omitempty"`

	// PerformedBy is the acting user's id.
	PerformedBy string `json:"performed_by,omitempty"`

	// Reason carries the operator-supplied justification when a soft
	// plausibility check was overridden.
	Reason string `json:"reason,omitempty"`

	TreeID string `json:"tree_id,omitempty"`
}

// Config holds change-log configuration.
type Config struct {
	// Enabled controls whether entries are written at all. A disabled
	// logger accepts and drops everything, so callers never branch.
	Enabled bool

	// LogPath is the path of the JSONL change-log file.
	LogPath string

	// SyncWrites forces fsync after each entry (slower but durable).
	SyncWrites bool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:    true,
		LogPath:    "./logs/changelog.jsonl",
		SyncWrites: false,
	}
}

// Logger appends change-log entries. Safe for concurrent use.
type Logger struct {
	mu       sync.Mutex
	writer   io.Writer
	file     *os.File
	config   Config
	sequence uint64
	closed   bool
}

// NewLogger opens (or creates) the change-log file in append mode.
func NewLogger(config Config) (*Logger, error) {
	if !config.Enabled {
		return &Logger{config: config}, nil
	}

	dir := filepath.Dir(config.LogPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("creating change-log directory: %w", err)
	}

	file, err := os.OpenFile(config.LogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
	if err != nil {
		return nil, fmt.Errorf("opening change-log file: %w", err)
	}

	return &Logger{writer: file, file: file, config: config}, nil
}

// NewLoggerWithWriter creates a logger over a custom writer (for testing).
func NewLoggerWithWriter(writer io.Writer, config Config) *Logger {
	return &Logger{writer: writer, config: config}
}

// Log appends one entry. Timestamp and ID are filled in when absent.
func (l *Logger) Log(entry Entry) error {
	if !l.config.Enabled {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return fmt.Errorf("change log is closed")
	}

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if entry.ID == "" {
		l.sequence++
		entry.ID = fmt.Sprintf("chg-%d-%d", entry.Timestamp.UnixNano(), l.sequence)
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling change-log entry: %w", err)
	}
	if _, err := l.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing change-log entry: %w", err)
	}
	if l.config.SyncWrites && l.file != nil {
		if err := l.file.Sync(); err != nil {
			return fmt.Errorf("syncing change log: %w", err)
		}
	}
	return nil
}

// LogChange records a create/update/delete of an entity.
func (l *Logger) LogChange(entityType EntityType, entityID string, op Operation, performedBy string, changes map[string]any) error {
	return l.Log(Entry{
		EntityType:  entityType,
		EntityID:    entityID,
		Operation:   op,
		PerformedBy: performedBy,
		Changes:     changes,
	})
}

// LogOverride records that a soft plausibility check was bypassed with a
// justification. The primary mutation is already committed when this runs.
func (l *Logger) LogOverride(entityType EntityType, entityID, performedBy, reason string, changes map[string]any) error {
	return l.Log(Entry{
		EntityType:  entityType,
		EntityID:    entityID,
		Operation:   OpOverride,
		PerformedBy: performedBy,
		Reason:      reason,
		Changes:     changes,
	})
}

// Close flushes and closes the underlying file. Further Log calls fail.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Query filters change-log entries on read.
type Query struct {
	EntityType  EntityType
	EntityID    string
	Operation   Operation
	PerformedBy string
	After       time.Time
	Before      time.Time
	Limit       int
}

// Reader scans a change-log file.
type Reader struct {
	path string
}

// NewReader creates a reader over a change-log file path.
func NewReader(path string) *Reader {
	return &Reader{path: path}
}

// Query returns entries matching q, in file (chronological) order.
// Malformed lines are skipped: the log is best-effort on the write side,
// so the read side tolerates partial lines after a crash.
func (r *Reader) Query(q Query) ([]Entry, error) {
	file, err := os.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("opening change log: %w", err)
	}
	defer file.Close()

	var out []Entry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		if !matches(q, e) {
			continue
		}
		out = append(out, e)
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning change log: %w", err)
	}
	return out, nil
}

// EntityHistory returns every recorded change for one entity.
func (r *Reader) EntityHistory(entityType EntityType, entityID string) ([]Entry, error) {
	return r.Query(Query{EntityType: entityType, EntityID: entityID})
}

func matches(q Query, e Entry) bool {
	if q.EntityType != "" && e.EntityType != q.EntityType {
		return false
	}
	if q.EntityID != "" && e.EntityID != q.EntityID {
		return false
	}
	if q.Operation != "" && e.Operation != q.Operation {
		return false
	}
	if q.PerformedBy != "" && e.PerformedBy != q.PerformedBy {
		return false
	}
	if !q.After.IsZero() && e.Timestamp.Before(q.After) {
		return false
	}
	if !q.Before.IsZero() && e.Timestamp.After(q.Before) {
		return false
	}
	return true
}
