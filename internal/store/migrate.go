package store

import (
	"context"
	"fmt"
)

// Migrate creates the schema if it does not exist. Statements are
// idempotent; the service runs this on every start.
func (s *Store) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS profiles (
			id UUID PRIMARY KEY,
			device_id TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			total_coins INTEGER NOT NULL DEFAULT 0,
			total_xp INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS personas (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			age INTEGER NOT NULL,
			role TEXT NOT NULL,
			biography TEXT NOT NULL,
			system_prompt TEXT NOT NULL,
			difficulty_level INTEGER NOT NULL CHECK (difficulty_level BETWEEN 1 AND 10),
			avatar_url TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS daily_assignments (
			id UUID PRIMARY KEY,
			quest_date DATE NOT NULL UNIQUE,
			persona_id UUID NOT NULL REFERENCES personas(id),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS daily_progress (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL REFERENCES profiles(id),
			quest_date DATE NOT NULL,
			persona_id UUID NOT NULL REFERENCES personas(id),
			messages JSONB NOT NULL DEFAULT '[]',
			flags JSONB NOT NULL DEFAULT '[]',
			completed BOOLEAN NOT NULL DEFAULT false,
			completed_at TIMESTAMPTZ,
			coins_earned INTEGER NOT NULL DEFAULT 0,
			xp_earned INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (user_id, quest_date)
		)`,
		`CREATE TABLE IF NOT EXISTS collection (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL REFERENCES profiles(id),
			persona_id UUID NOT NULL REFERENCES personas(id),
			quest_date DATE NOT NULL,
			chat_log JSONB NOT NULL DEFAULT '[]',
			post_chat_qa JSONB NOT NULL DEFAULT '[]',
			exposed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (user_id, quest_date)
		)`,
		`CREATE TABLE IF NOT EXISTS leaderboard (
			user_id UUID PRIMARY KEY REFERENCES profiles(id),
			total_exposures INTEGER NOT NULL DEFAULT 0,
			streak_days INTEGER NOT NULL DEFAULT 0,
			fastest_time INTEGER,
			last_completed_date DATE,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
