package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/coinville/questd/internal/persona"
)

// GetPersona fetches one catalog record. Returns (nil, nil) when absent.
func (s *Store) GetPersona(ctx context.Context, id uuid.UUID) (*persona.Persona, error) {
	var p persona.Persona
	var avatar *string
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, age, role, biography, system_prompt, difficulty_level, avatar_url
		FROM personas WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.Name, &p.Age, &p.Role, &p.Biography, &p.SystemPrompt, &p.Difficulty, &avatar)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get persona: %w", err)
	}
	if avatar != nil {
		p.AvatarURL = *avatar
	}
	return &p, nil
}

// ListPersonaIDs returns the full catalog in rotation order. The order is
// stable across calls: insertion time, id as tiebreak.
func (s *Store) ListPersonaIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM personas ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list personas: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan persona id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
