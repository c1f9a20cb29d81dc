package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ayusman/glowlens/internal/analysis"
)

// keyNamespace prefixes every snapshot key.
const keyNamespace = "glowlens"

// SnapshotKey returns the record name for the last result of kind ("face" or "hand").
func SnapshotKey(kind string) string {
	return fmt.Sprintf("%s:%s:last-result", keyNamespace, kind)
}

// Snapshot is a saved analysis result.
type Snapshot struct {
	Key       string
	ResultID  string
	SessionID string
	Topology  string
	Data      json.RawMessage
	SavedAt   time.Time
}

// Result decodes the stored analysis result.
func (s *Snapshot) Result() (*analysis.Result, error) {
	var res analysis.Result
	if err := json.Unmarshal(s.Data, &res); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", s.Key, err)
	}
	return &res, nil
}

// SnapshotRepository reads and writes result snapshots.
type SnapshotRepository struct {
	db  *sql.DB
	now func() time.Time
}

// Snapshots returns the snapshot repository for this store.
func (s *Store) Snapshots() *SnapshotRepository {
	return &SnapshotRepository{db: s.db, now: time.Now}
}

// Save serializes res and overwrites the snapshot for its kind.
func (r *SnapshotRepository) Save(ctx context.Context, res *analysis.Result) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO result_snapshots (key, result_id, session_id, topology, data, saved_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
			result_id = excluded.result_id,
			session_id = excluded.session_id,
			topology = excluded.topology,
			data = excluded.data,
			saved_at = excluded.saved_at`,
		SnapshotKey(res.Kind()), res.ID.String(), res.SessionID, res.Topology.Name, string(data), r.now().UTC(),
	)
	return err
}

// Get retrieves the snapshot for kind.
func (r *SnapshotRepository) Get(ctx context.Context, kind string) (*Snapshot, error) {
	s := &Snapshot{}
	var data string

	err := r.db.QueryRowContext(ctx,
		`SELECT key, result_id, session_id, topology, data, saved_at
		 FROM result_snapshots WHERE key = ?`,
		SnapshotKey(kind),
	).Scan(&s.Key, &s.ResultID, &s.SessionID, &s.Topology, &data, &s.SavedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	s.Data = json.RawMessage(data)
	return s, nil
}

// Delete removes the snapshot for kind.
func (r *SnapshotRepository) Delete(ctx context.Context, kind string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM result_snapshots WHERE key = ?`, SnapshotKey(kind))
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}
