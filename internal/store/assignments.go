package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/coinville/questd/internal/quest"
)

// GetAssignment returns the day's assignment, or (nil, nil) when none
// exists yet.
func (s *Store) GetAssignment(ctx context.Context, date quest.Date) (*quest.Assignment, error) {
	var a quest.Assignment
	err := s.pool.QueryRow(ctx, `
		SELECT quest_date::text, persona_id, created_at
		FROM daily_assignments WHERE quest_date = $1`,
		date,
	).Scan(&a.Date, &a.PersonaID, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get assignment: %w", err)
	}
	return &a, nil
}

// LatestAssignment returns the most recently dated assignment, or
// (nil, nil) on a cold catalog.
func (s *Store) LatestAssignment(ctx context.Context) (*quest.Assignment, error) {
	var a quest.Assignment
	err := s.pool.QueryRow(ctx, `
		SELECT quest_date::text, persona_id, created_at
		FROM daily_assignments ORDER BY quest_date DESC LIMIT 1`,
	).Scan(&a.Date, &a.PersonaID, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest assignment: %w", err)
	}
	return &a, nil
}

// CreateAssignmentIfAbsent writes the day-to-persona binding under the
// unique (quest_date) constraint. Returns false when another caller won
// the race; the loser must read back the winner's row.
func (s *Store) CreateAssignmentIfAbsent(ctx context.Context, date quest.Date, personaID uuid.UUID) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO daily_assignments (id, quest_date, persona_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (quest_date) DO NOTHING`,
		uuid.New(), date, personaID,
	)
	if err != nil {
		return false, fmt.Errorf("insert assignment: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
