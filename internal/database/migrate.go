package database

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Migrate creates the schema if it does not exist. The unique index on
// check_ins is what makes duplicate check-ins impossible under
// concurrency; the partial index on enrollments keeps a single active
// enrollment per (user, challenge) pair.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		clerk_id TEXT UNIQUE NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		username TEXT NOT NULL DEFAULT '',
		image_url TEXT NOT NULL DEFAULT '',
		active_challenges INT NOT NULL DEFAULT 0,
		completed_challenges INT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS challenges (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		creator_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		duration_days INT NOT NULL,
		frequency TEXT NOT NULL DEFAULT 'daily',
		allow_grace_skips BOOLEAN NOT NULL DEFAULT FALSE,
		grace_skips_per_week INT NOT NULL DEFAULT 0,
		total_users INT NOT NULL DEFAULT 0,
		active_users INT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS challenge_tasks (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		challenge_id UUID NOT NULL REFERENCES challenges(id) ON DELETE CASCADE,
		title TEXT NOT NULL,
		sort_order INT NOT NULL DEFAULT 0
	)`,

	`CREATE TABLE IF NOT EXISTS enrollments (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		challenge_id UUID NOT NULL REFERENCES challenges(id) ON DELETE CASCADE,
		partner_ids UUID[] NOT NULL DEFAULT '{}',
		status TEXT NOT NULL DEFAULT 'active',
		start_date DATE NOT NULL,
		end_date DATE NOT NULL,
		current_streak INT NOT NULL DEFAULT 0,
		longest_streak INT NOT NULL DEFAULT 0,
		total_check_ins INT NOT NULL DEFAULT 0,
		missed_days INT NOT NULL DEFAULT 0,
		grace_skips_used INT NOT NULL DEFAULT 0,
		week_start_date DATE NOT NULL,
		completion_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
		last_check_in_at TIMESTAMPTZ,
		last_reconciled_date DATE,
		completed_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE UNIQUE INDEX IF NOT EXISTS one_active_enrollment
		ON enrollments (user_id, challenge_id) WHERE status = 'active'`,

	`CREATE TABLE IF NOT EXISTS check_ins (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		enrollment_id UUID NOT NULL REFERENCES enrollments(id) ON DELETE CASCADE,
		user_id UUID NOT NULL,
		challenge_id UUID NOT NULL,
		task_id UUID NOT NULL,
		date DATE NOT NULL,
		logged_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		note TEXT NOT NULL DEFAULT '',
		photo_url TEXT,
		verified BOOLEAN,
		is_edited BOOLEAN NOT NULL DEFAULT FALSE
	)`,

	`CREATE UNIQUE INDEX IF NOT EXISTS one_check_in_per_task_day
		ON check_ins (enrollment_id, task_id, date)`,

	`CREATE INDEX IF NOT EXISTS check_ins_by_enrollment_date
		ON check_ins (enrollment_id, date)`,

	`CREATE TABLE IF NOT EXISTS notifications (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		type TEXT NOT NULL,
		title TEXT NOT NULL,
		body TEXT NOT NULL,
		data JSONB NOT NULL DEFAULT '{}',
		read_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS notification_preferences (
		user_id UUID PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
		enabled_types JSONB NOT NULL DEFAULT '{}',
		push_enabled BOOLEAN NOT NULL DEFAULT TRUE,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS device_tokens (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		token TEXT NOT NULL,
		platform TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (user_id, token)
	)`,

	`CREATE TABLE IF NOT EXISTS insight_messages (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		enrollment_id UUID,
		body TEXT NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	log.Println("Running database migrations...")

	for i, stmt := range migrations {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}

	log.Println("Database migrations complete")
	return nil
}
