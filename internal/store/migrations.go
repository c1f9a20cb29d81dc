package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// One row per key, overwritten on every save
		`CREATE TABLE IF NOT EXISTS result_snapshots (
			key TEXT PRIMARY KEY,
			result_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			topology TEXT NOT NULL,
			data TEXT NOT NULL,
			saved_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS exports (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			kind TEXT NOT NULL CHECK(kind IN ('face', 'hand')),
			filename TEXT NOT NULL UNIQUE,
			size INTEGER NOT NULL,
			created_at DATETIME NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_exports_session_id ON exports(session_id)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
