package db

import (
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Connect initializes the database connection and runs migrations.
func Connect(dsn string) (*sqlx.DB, error) {
	database, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := runMigrations(database); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return database, nil
}

func runMigrations(database *sqlx.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS threads (
            id SERIAL PRIMARY KEY,
            listing_ref INT NOT NULL,
            user_lo INT NOT NULL,
            user_hi INT NOT NULL,
            status TEXT NOT NULL DEFAULT 'open',
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            CHECK (user_lo < user_hi),
            UNIQUE(listing_ref, user_lo, user_hi)
        );`,
		`CREATE TABLE IF NOT EXISTS thread_messages (
            id SERIAL PRIMARY KEY,
            thread_id INT NOT NULL REFERENCES threads(id) ON DELETE CASCADE,
            sender_id INT NOT NULL,
            body TEXT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		`CREATE INDEX IF NOT EXISTS idx_thread_messages_thread
            ON thread_messages(thread_id, id);`,
		`CREATE INDEX IF NOT EXISTS idx_threads_user_lo ON threads(user_lo);`,
		`CREATE INDEX IF NOT EXISTS idx_threads_user_hi ON threads(user_hi);`,
	}

	for _, m := range migrations {
		if _, err := database.Exec(m); err != nil {
			return err
		}
	}
	log.Println("database migrations applied")
	return nil
}
