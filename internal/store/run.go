package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/redpiler/internal/blocks"
	"github.com/roach88/redpiler/internal/trace"
	"github.com/roach88/redpiler/internal/world"
)

var (
	// ErrRunNotFound is returned when a run ID is not in the store.
	ErrRunNotFound = errors.New("run not found")
	// ErrSnapshotNotFound is returned when no snapshot exists at a tick.
	ErrSnapshotNotFound = errors.New("snapshot not found")
)

// RunMeta describes how a run was started.
type RunMeta struct {
	Backend   string `json:"backend"`
	GraphHash string `json:"graph_hash"`
	IOOnly    bool   `json:"io_only"`
	Label     string `json:"label,omitempty"`
}

// RunInfo is a stored run.
type RunInfo struct {
	ID string `json:"id"`
	RunMeta
	StartedAt time.Time `json:"started_at"`
}

// Run appends to one run's log. It implements engine.Recorder.
type Run struct {
	ID    string
	store *Store

	mu      sync.Mutex
	nextSeq int64
}

// OpenRun registers a new run and returns its writer.
func (s *Store) OpenRun(ctx context.Context, meta RunMeta) (*Run, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("open run: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, backend, graph_hash, io_only, label, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		id.String(),
		meta.Backend,
		meta.GraphHash,
		meta.IOOnly,
		meta.Label,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("open run: %w", err)
	}
	return &Run{ID: id.String(), store: s}, nil
}

// RecordChanges appends the changes flushed at tick, in order, in one
// transaction.
func (r *Run) RecordChanges(ctx context.Context, tick int64, changes []world.Change) error {
	if len(changes) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record changes: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO block_changes (run_id, seq, tick, x, y, z, block)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("record changes: %w", err)
	}
	defer stmt.Close()

	seq := r.nextSeq
	for _, c := range changes {
		blockJSON, err := json.Marshal(c.Block)
		if err != nil {
			return fmt.Errorf("record changes: marshal %s: %w", c.Pos, err)
		}
		if _, err := stmt.ExecContext(ctx, r.ID, seq, tick, c.Pos.X, c.Pos.Y, c.Pos.Z, string(blockJSON)); err != nil {
			return fmt.Errorf("record changes: %w", err)
		}
		seq++
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record changes: %w", err)
	}
	r.nextSeq = seq
	return nil
}

// SaveSnapshot stores the full world state at tick, replacing any earlier
// snapshot at the same tick. It returns the state fingerprint.
func (r *Run) SaveSnapshot(ctx context.Context, tick int64, snapshot []world.Change) (uint64, error) {
	fp, err := trace.StateFingerprint(snapshot)
	if err != nil {
		return 0, fmt.Errorf("save snapshot: %w", err)
	}
	data, err := r.store.encodeSnapshot(snapshot)
	if err != nil {
		return 0, fmt.Errorf("save snapshot: %w", err)
	}
	_, err = r.store.db.ExecContext(ctx, `
		INSERT INTO snapshots (run_id, tick, fingerprint, blocks, data)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id, tick) DO UPDATE SET
			fingerprint = excluded.fingerprint,
			blocks = excluded.blocks,
			data = excluded.data
	`, r.ID, tick, trace.FormatFingerprint(fp), len(snapshot), data)
	if err != nil {
		return 0, fmt.Errorf("save snapshot: %w", err)
	}
	return fp, nil
}

// LoadSnapshot returns the snapshot of run at tick and its stored
// fingerprint. The fingerprint is checked against the decoded blocks.
func (s *Store) LoadSnapshot(ctx context.Context, runID string, tick int64) ([]world.Change, string, error) {
	var fingerprint string
	var data []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT fingerprint, data FROM snapshots WHERE run_id = ? AND tick = ?
	`, runID, tick).Scan(&fingerprint, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", fmt.Errorf("load snapshot %s@%d: %w", runID, tick, ErrSnapshotNotFound)
	}
	if err != nil {
		return nil, "", fmt.Errorf("load snapshot: %w", err)
	}

	snapshot, err := s.decodeSnapshot(data)
	if err != nil {
		return nil, "", fmt.Errorf("load snapshot %s@%d: %w", runID, tick, err)
	}
	fp, err := trace.StateFingerprint(snapshot)
	if err != nil {
		return nil, "", fmt.Errorf("load snapshot: %w", err)
	}
	if got := trace.FormatFingerprint(fp); got != fingerprint {
		return nil, "", fmt.Errorf("load snapshot %s@%d: fingerprint %s, stored %s", runID, tick, got, fingerprint)
	}
	return snapshot, fingerprint, nil
}

// LatestSnapshotTick returns the highest tick with a snapshot.
func (s *Store) LatestSnapshotTick(ctx context.Context, runID string) (int64, error) {
	var tick sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(tick) FROM snapshots WHERE run_id = ?`, runID).Scan(&tick)
	if err != nil {
		return 0, fmt.Errorf("latest snapshot: %w", err)
	}
	if !tick.Valid {
		return 0, fmt.Errorf("latest snapshot of %s: %w", runID, ErrSnapshotNotFound)
	}
	return tick.Int64, nil
}

// RecordedChange is one stored block change.
type RecordedChange struct {
	Seq  int64 `json:"seq"`
	Tick int64 `json:"tick"`
	world.Change
}

// ReadChanges returns every change of a run ordered by (tick, seq).
// Returns an empty slice, not nil, for a run without changes.
func (s *Store) ReadChanges(ctx context.Context, runID string) ([]RecordedChange, error) {
	return s.queryChanges(ctx, `
		SELECT seq, tick, x, y, z, block FROM block_changes
		WHERE run_id = ?
		ORDER BY tick ASC, seq ASC
	`, runID)
}

// ReadBlockHistory returns the changes of one position in a run.
func (s *Store) ReadBlockHistory(ctx context.Context, runID string, pos blocks.BlockPos) ([]RecordedChange, error) {
	return s.queryChanges(ctx, `
		SELECT seq, tick, x, y, z, block FROM block_changes
		WHERE run_id = ? AND x = ? AND y = ? AND z = ?
		ORDER BY tick ASC, seq ASC
	`, runID, pos.X, pos.Y, pos.Z)
}

func (s *Store) queryChanges(ctx context.Context, query string, args ...any) ([]RecordedChange, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query changes: %w", err)
	}
	defer rows.Close()

	changes := []RecordedChange{}
	for rows.Next() {
		var rc RecordedChange
		var blockJSON string
		if err := rows.Scan(&rc.Seq, &rc.Tick, &rc.Pos.X, &rc.Pos.Y, &rc.Pos.Z, &blockJSON); err != nil {
			return nil, fmt.Errorf("scan change: %w", err)
		}
		if err := json.Unmarshal([]byte(blockJSON), &rc.Block); err != nil {
			return nil, fmt.Errorf("unmarshal block at seq %d: %w", rc.Seq, err)
		}
		changes = append(changes, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate changes: %w", err)
	}
	return changes, nil
}

// ReadTrace groups a run's changes by tick.
func (s *Store) ReadTrace(ctx context.Context, runID string) (*trace.Trace, error) {
	changes, err := s.ReadChanges(ctx, runID)
	if err != nil {
		return nil, err
	}
	tr := &trace.Trace{}
	for i := 0; i < len(changes); {
		j := i
		batch := []world.Change{}
		for ; j < len(changes) && changes[j].Tick == changes[i].Tick; j++ {
			batch = append(batch, changes[j].Change)
		}
		tr.Add(changes[i].Tick, batch)
		i = j
	}
	return tr, nil
}

// ReadRun returns the stored metadata of a run.
func (s *Store) ReadRun(ctx context.Context, id string) (RunInfo, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, backend, graph_hash, io_only, label, started_at FROM runs WHERE id = ?
	`, id)
	info, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunInfo{}, fmt.Errorf("read run %s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return RunInfo{}, fmt.Errorf("read run %s: %w", id, err)
	}
	return info, nil
}

// ListRuns returns every run, oldest first.
func (s *Store) ListRuns(ctx context.Context) ([]RunInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, backend, graph_hash, io_only, label, started_at FROM runs
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []RunInfo{}
	for rows.Next() {
		info, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (RunInfo, error) {
	var info RunInfo
	var started string
	if err := row.Scan(&info.ID, &info.Backend, &info.GraphHash, &info.IOOnly, &info.Label, &started); err != nil {
		return RunInfo{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, started)
	if err != nil {
		return RunInfo{}, fmt.Errorf("parse started_at: %w", err)
	}
	info.StartedAt = t
	return info, nil
}
