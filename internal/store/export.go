package store

import (
	"context"
	"database/sql"
	"time"
)

// Export is one downloaded result card.
type Export struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Kind      string    `json:"kind"`
	Filename  string    `json:"filename"`
	Size      int       `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// ExportRepository records exports.
type ExportRepository struct {
	db *sql.DB
}

// Exports returns the export repository for this store.
func (s *Store) Exports() *ExportRepository {
	return &ExportRepository{db: s.db}
}

// Create inserts e and fills its ID and CreatedAt.
func (r *ExportRepository) Create(ctx context.Context, e *Export) error {
	e.CreatedAt = time.Now().UTC()

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO exports (session_id, kind, filename, size, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		e.SessionID, e.Kind, e.Filename, e.Size, e.CreatedAt,
	)
	if err != nil {
		return err
	}

	e.ID, err = result.LastInsertId()
	return err
}

// List returns the most recent exports, newest first. A limit of 0 or less returns all.
func (r *ExportRepository) List(ctx context.Context, limit int) ([]*Export, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, session_id, kind, filename, size, created_at
		 FROM exports ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exports []*Export
	for rows.Next() {
		e := &Export{}
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Kind, &e.Filename, &e.Size, &e.CreatedAt); err != nil {
			return nil, err
		}
		exports = append(exports, e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return exports, nil
}
