package sqlite

import "database/sql"

func RunMigrations(db *sql.DB) error {
	stmts := []string{

		`CREATE TABLE IF NOT EXISTS payments (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL DEFAULT '',
			external_id TEXT UNIQUE,
			reference TEXT NOT NULL,
			amount TEXT NOT NULL,
			currency TEXT NOT NULL,
			status_code TEXT NOT NULL,
			status_text TEXT NOT NULL,
			status_canonical TEXT NOT NULL,
			payment_method TEXT,
			payment_data TEXT,
			items TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,

		`CREATE INDEX IF NOT EXISTS idx_payments_reference ON payments (reference, created_at);`,

		`CREATE INDEX IF NOT EXISTS idx_payments_stale ON payments (status_canonical, updated_at);`,

		`CREATE TABLE IF NOT EXISTS outbox_events (
			id TEXT PRIMARY KEY,
			event_type TEXT NOT NULL,
			payload BLOB NOT NULL,
			published INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		);`,

		`CREATE INDEX IF NOT EXISTS idx_outbox_unpublished ON outbox_events (published, created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}
