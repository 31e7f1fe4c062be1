package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/coinville/questd/internal/quest"
)

// ApplyCompletion applies one completion to the user's aggregate as a
// single guarded upsert: counters only move when last_completed_date
// actually changes, so a reconciliation re-run for the same day is a
// no-op. Streak extends when the previous completion was yesterday;
// fastest_time is strictly best-of.
func (s *Store) ApplyCompletion(ctx context.Context, userID uuid.UUID, delta quest.LeaderboardDelta) error {
	prevDate := quest.PrevDate(delta.CompletedDate)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO leaderboard (user_id, total_exposures, streak_days, fastest_time, last_completed_date, updated_at)
		VALUES ($1, 1, 1, $2, $3, now())
		ON CONFLICT (user_id) DO UPDATE SET
			total_exposures = leaderboard.total_exposures + 1,
			streak_days = CASE
				WHEN leaderboard.last_completed_date = $4::date THEN leaderboard.streak_days + 1
				ELSE 1
			END,
			fastest_time = CASE
				WHEN $2::int IS NOT NULL AND (leaderboard.fastest_time IS NULL OR $2::int < leaderboard.fastest_time) THEN $2::int
				ELSE leaderboard.fastest_time
			END,
			last_completed_date = EXCLUDED.last_completed_date,
			updated_at = now()
		WHERE leaderboard.last_completed_date IS DISTINCT FROM EXCLUDED.last_completed_date`,
		userID, delta.CompletionSecs, delta.CompletedDate, prevDate,
	)
	if err != nil {
		return fmt.Errorf("apply completion: %w", err)
	}
	return nil
}

// GetLeaderboardRow returns one user's aggregate, or (nil, nil) before
// their first exposure.
func (s *Store) GetLeaderboardRow(ctx context.Context, userID uuid.UUID) (*quest.LeaderboardRow, error) {
	var row quest.LeaderboardRow
	var lastDate *string
	err := s.pool.QueryRow(ctx, `
		SELECT user_id, total_exposures, streak_days, fastest_time, last_completed_date::text
		FROM leaderboard WHERE user_id = $1`,
		userID,
	).Scan(&row.UserID, &row.TotalExposures, &row.StreakDays, &row.FastestTime, &lastDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get leaderboard row: %w", err)
	}
	if lastDate != nil {
		row.LastCompletedDate = *lastDate
	}
	return &row, nil
}

// Standing is one leaderboard screen row: aggregate joined with the
// profile name.
type Standing struct {
	UserID         uuid.UUID `json:"user_id"`
	Name           string    `json:"name"`
	TotalExposures int       `json:"total_exposures"`
	StreakDays     int       `json:"streak_days"`
	FastestTime    *int      `json:"fastest_time,omitempty"`
}

// TopStandings returns the leaderboard screen rows, most exposures first.
func (s *Store) TopStandings(ctx context.Context, limit int) ([]Standing, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT l.user_id, p.name, l.total_exposures, l.streak_days, l.fastest_time
		FROM leaderboard l
		JOIN profiles p ON p.id = l.user_id
		ORDER BY l.total_exposures DESC, l.updated_at ASC
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("top standings: %w", err)
	}
	defer rows.Close()

	var standings []Standing
	for rows.Next() {
		var st Standing
		if err := rows.Scan(&st.UserID, &st.Name, &st.TotalExposures, &st.StreakDays, &st.FastestTime); err != nil {
			return nil, fmt.Errorf("scan standing: %w", err)
		}
		standings = append(standings, st)
	}
	return standings, rows.Err()
}
