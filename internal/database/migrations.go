package database

import (
	"database/sql"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		expires_at DATETIME NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	)`,

	`CREATE TABLE IF NOT EXISTS executions (
		id TEXT PRIMARY KEY,
		script_path TEXT NOT NULL,
		script_name TEXT NOT NULL,
		category TEXT,
		parameters TEXT,
		status TEXT NOT NULL DEFAULT 'running',
		stdout TEXT,
		stderr TEXT,
		exit_code INTEGER,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		duration_seconds REAL
	)`,

	`CREATE TABLE IF NOT EXISTS schedules (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		script_path TEXT NOT NULL,
		cron_expression TEXT NOT NULL,
		description TEXT,
		parameters TEXT,
		enabled BOOLEAN NOT NULL DEFAULT 1,
		next_run DATETIME,
		last_status TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at)`,
	`CREATE INDEX IF NOT EXISTS idx_executions_script_path ON executions(script_path)`,
	`CREATE INDEX IF NOT EXISTS idx_executions_status ON executions(status)`,
	`CREATE INDEX IF NOT EXISTS idx_executions_started_at ON executions(started_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_schedules_enabled ON schedules(enabled)`,
	`CREATE INDEX IF NOT EXISTS idx_schedules_next_run ON schedules(next_run)`,
}

func runMigrations(db *sql.DB) error {
	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return err
		}
	}
	return nil
}
