package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/coinville/questd/internal/quest"
)

// GetProgress returns the user's quest state for the day, or (nil, nil)
// before the first turn.
func (s *Store) GetProgress(ctx context.Context, userID uuid.UUID, date quest.Date) (*quest.Progress, error) {
	var p quest.Progress
	var rawMessages, rawFlags []byte
	err := s.pool.QueryRow(ctx, `
		SELECT user_id, quest_date::text, persona_id, messages, flags,
		       completed, completed_at, coins_earned, xp_earned, created_at
		FROM daily_progress WHERE user_id = $1 AND quest_date = $2`,
		userID, date,
	).Scan(&p.UserID, &p.Date, &p.PersonaID, &rawMessages, &rawFlags,
		&p.Completed, &p.CompletedAt, &p.CoinsEarned, &p.XPEarned, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get progress: %w", err)
	}
	if p.Messages, err = scanMessages(rawMessages); err != nil {
		return nil, err
	}
	if len(rawFlags) > 0 {
		if err := json.Unmarshal(rawFlags, &p.Flags); err != nil {
			return nil, fmt.Errorf("unmarshal flags: %w", err)
		}
	}
	return &p, nil
}

// SaveTranscript replaces the transcript for (user, date). The row is
// created on first write. Completed rows are frozen: the guard refuses to
// overwrite a finished quest's transcript.
func (s *Store) SaveTranscript(ctx context.Context, userID uuid.UUID, date quest.Date, personaID uuid.UUID, messages []quest.Message) error {
	raw, err := messagesJSON(messages)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO daily_progress (id, user_id, quest_date, persona_id, messages)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, quest_date) DO UPDATE SET
			messages = EXCLUDED.messages,
			updated_at = now()
		WHERE daily_progress.completed = false`,
		uuid.New(), userID, date, personaID, raw,
	)
	if err != nil {
		return fmt.Errorf("save transcript: %w", err)
	}
	return nil
}

// ToggleFlag flips the user-side annotation on one message index. Flags
// never reach the model; they are purely a client-side evidence marker.
func (s *Store) ToggleFlag(ctx context.Context, userID uuid.UUID, date quest.Date, index int) ([]int, error) {
	p, err := s.GetProgress(ctx, userID, date)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, quest.ErrNoActiveQuest
	}

	flags := make([]int, 0, len(p.Flags)+1)
	removed := false
	for _, f := range p.Flags {
		if f == index {
			removed = true
			continue
		}
		flags = append(flags, f)
	}
	if !removed {
		flags = append(flags, index)
	}

	raw, err := json.Marshal(flags)
	if err != nil {
		return nil, fmt.Errorf("marshal flags: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		UPDATE daily_progress SET flags = $1, updated_at = now()
		WHERE user_id = $2 AND quest_date = $3`,
		raw, userID, date,
	)
	if err != nil {
		return nil, fmt.Errorf("save flags: %w", err)
	}
	return flags, nil
}

// CommitCompletion finalizes the quest for (user, date): completed flag,
// timestamp, reward fields, and the profile coin/XP credit, in one
// transaction. A second call is a pure no-op returning the stored reward.
// Returns committed=false when the row was already completed.
func (s *Store) CommitCompletion(ctx context.Context, userID uuid.UUID, date quest.Date, personaID uuid.UUID, completedAt time.Time, reward quest.Reward) (stored quest.Reward, committed bool, err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return quest.Reward{}, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Ensure the row exists (manual exposure may arrive before any turn),
	// then lock it.
	_, err = tx.Exec(ctx, `
		INSERT INTO daily_progress (id, user_id, quest_date, persona_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, quest_date) DO NOTHING`,
		uuid.New(), userID, date, personaID,
	)
	if err != nil {
		return quest.Reward{}, false, fmt.Errorf("ensure progress: %w", err)
	}

	var completed bool
	var coins, xp int
	err = tx.QueryRow(ctx, `
		SELECT completed, coins_earned, xp_earned
		FROM daily_progress WHERE user_id = $1 AND quest_date = $2
		FOR UPDATE`,
		userID, date,
	).Scan(&completed, &coins, &xp)
	if err != nil {
		return quest.Reward{}, false, fmt.Errorf("lock progress: %w", err)
	}

	if completed {
		return quest.Reward{CoinsEarned: coins, XPEarned: xp}, false, tx.Commit(ctx)
	}

	_, err = tx.Exec(ctx, `
		UPDATE daily_progress SET
			completed = true,
			completed_at = $1,
			coins_earned = $2,
			xp_earned = $3,
			updated_at = now()
		WHERE user_id = $4 AND quest_date = $5`,
		completedAt, reward.CoinsEarned, reward.XPEarned, userID, date,
	)
	if err != nil {
		return quest.Reward{}, false, fmt.Errorf("mark completed: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE profiles SET
			total_coins = total_coins + $1,
			total_xp = total_xp + $2,
			updated_at = now()
		WHERE id = $3`,
		reward.CoinsEarned, reward.XPEarned, userID,
	)
	if err != nil {
		return quest.Reward{}, false, fmt.Errorf("credit profile: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return quest.Reward{}, false, fmt.Errorf("commit: %w", err)
	}
	return reward, true, nil
}
