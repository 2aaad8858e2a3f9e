package dali

import (
	"database/sql"
	"fmt"
	"sync"
	"time"
)

// FrameRecorder passively records frames and decode aborts seen on the
// bus. It is called by the Bridge for every delivered frame, building a
// database of the traffic a site actually carries. Commissioning uses
// this to find addresses in use without a manual bus scan.
//
// Thread Safety: All methods are safe for concurrent use.
type FrameRecorder struct {
	db     *sql.DB
	logger Logger

	// Prepared statements (created once, reused)
	frameUpsertStmt *sql.Stmt
	abortInsertStmt *sql.Stmt
	stmtMu          sync.Mutex

	// Shutdown coordination
	closed bool
	mu     sync.RWMutex
}

// NewFrameRecorder creates a recorder. The database must have the
// dali_frames and dali_aborts tables migrated.
func NewFrameRecorder(db *sql.DB) *FrameRecorder {
	return &FrameRecorder{db: db}
}

// SetLogger sets the logger for the recorder.
func (r *FrameRecorder) SetLogger(logger Logger) {
	r.logger = logger
}

// Start prepares the recorder for use.
// Must be called before RecordFrame or RecordAbort.
func (r *FrameRecorder) Start() error {
	r.stmtMu.Lock()
	defer r.stmtMu.Unlock()

	if r.frameUpsertStmt != nil {
		return nil // Already started
	}

	frameStmt, err := r.db.Prepare(`
		INSERT INTO dali_frames (direction, value, bits, count, first_seen, last_seen)
		VALUES (?, ?, ?, 1, ?, ?)
		ON CONFLICT(direction, value, bits) DO UPDATE SET
			count = count + 1,
			last_seen = excluded.last_seen
	`)
	if err != nil {
		return fmt.Errorf("preparing frame upsert statement: %w", err)
	}

	abortStmt, err := r.db.Prepare(`
		INSERT INTO dali_aborts (reason, edge_count, occurred_at)
		VALUES (?, ?, ?)
	`)
	if err != nil {
		frameStmt.Close()
		return fmt.Errorf("preparing abort insert statement: %w", err)
	}

	r.frameUpsertStmt = frameStmt
	r.abortInsertStmt = abortStmt
	r.log("frame recorder started")
	return nil
}

// Stop closes the recorder and releases resources.
func (r *FrameRecorder) Stop() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.stmtMu.Lock()
	defer r.stmtMu.Unlock()

	if r.frameUpsertStmt != nil {
		r.frameUpsertStmt.Close()
		r.frameUpsertStmt = nil
	}
	if r.abortInsertStmt != nil {
		r.abortInsertStmt.Close()
		r.abortInsertStmt = nil
	}

	r.log("frame recorder stopped")
}

// RecordFrame records one frame observation.
// Repeated sightings of the same (direction, value, bits) bump a counter
// rather than adding rows, so the table stays small on a chatty bus.
//
// Parameters:
//   - direction: "rx" or "tx"
//   - value: The frame value
//   - bits: The frame bit length
func (r *FrameRecorder) RecordFrame(direction string, value uint32, bits int) {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return
	}
	r.mu.RUnlock()

	r.stmtMu.Lock()
	stmt := r.frameUpsertStmt
	r.stmtMu.Unlock()

	if stmt == nil {
		return // Not started
	}

	now := time.Now().Unix()
	if _, err := stmt.Exec(direction, int64(value), bits, now, now); err != nil {
		r.logError("recording frame", err)
	}
}

// RecordAbort records one discarded decode attempt.
func (r *FrameRecorder) RecordAbort(reason AbortReason, edgeCount int) {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return
	}
	r.mu.RUnlock()

	r.stmtMu.Lock()
	stmt := r.abortInsertStmt
	r.stmtMu.Unlock()

	if stmt == nil {
		return // Not started
	}

	if _, err := stmt.Exec(string(reason), edgeCount, time.Now().Unix()); err != nil {
		r.logError("recording abort", err)
	}
}

// FrameCount returns the number of distinct (direction, value, bits)
// combinations recorded.
func (r *FrameRecorder) FrameCount() (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM dali_frames`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting frames: %w", err)
	}
	return count, nil
}

func (r *FrameRecorder) log(msg string) {
	if r.logger != nil {
		r.logger.Debug(msg)
	}
}

func (r *FrameRecorder) logError(msg string, err error) {
	if r.logger != nil {
		r.logger.Error(msg, "error", err)
	}
}
