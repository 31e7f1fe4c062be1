// Package exposure finalizes a completed quest: reward computation, the
// at-most-once completion commit, the trophy record, and the leaderboard
// aggregate. Every step is safe to re-run, so a partial failure is healed
// by calling Expose again.
package exposure

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/coinville/questd/internal/events"
	"github.com/coinville/questd/internal/persona"
	"github.com/coinville/questd/internal/quest"
)

// Store is the persistence surface the committer consumes.
type Store interface {
	GetAssignment(ctx context.Context, date quest.Date) (*quest.Assignment, error)
	GetProgress(ctx context.Context, userID uuid.UUID, date quest.Date) (*quest.Progress, error)
	CommitCompletion(ctx context.Context, userID uuid.UUID, date quest.Date, personaID uuid.UUID, completedAt time.Time, reward quest.Reward) (quest.Reward, bool, error)
	AppendCollectionEntry(ctx context.Context, entry quest.CollectionEntry) error
	ApplyCompletion(ctx context.Context, userID uuid.UUID, delta quest.LeaderboardDelta) error
}

// Catalog resolves the assigned persona.
type Catalog interface {
	Get(ctx context.Context, id uuid.UUID) (*persona.Persona, error)
}

type Committer struct {
	store   Store
	catalog Catalog
	events  *events.Publisher
	logger  *slog.Logger
	now     func() time.Time
}

func New(store Store, catalog Catalog, pub *events.Publisher, logger *slog.Logger) *Committer {
	return &Committer{
		store:   store,
		catalog: catalog,
		events:  pub,
		logger:  logger,
		now:     time.Now,
	}
}

// SetClock overrides the completion clock. Test hook.
func (c *Committer) SetClock(now func() time.Time) {
	c.now = now
}

// Expose commits the day's completion for the user and returns the
// reward. Reward is difficulty×50 coins and difficulty×100 XP. A repeat
// call — duplicate confession signal, double click, or a reconciliation
// retry after a partial failure — pays nothing extra and returns the
// originally stored amounts.
func (c *Committer) Expose(ctx context.Context, userID uuid.UUID, date quest.Date) (quest.Reward, error) {
	assignment, err := c.store.GetAssignment(ctx, date)
	if err != nil {
		return quest.Reward{}, err
	}
	if assignment == nil {
		return quest.Reward{}, quest.ErrNoActiveQuest
	}

	p, err := c.catalog.Get(ctx, assignment.PersonaID)
	if err != nil {
		return quest.Reward{}, err
	}
	if p == nil {
		return quest.Reward{}, quest.ErrNoActiveQuest
	}

	progress, err := c.store.GetProgress(ctx, userID, date)
	if err != nil {
		return quest.Reward{}, err
	}

	reward := quest.Reward{
		CoinsEarned: p.Difficulty * persona.CoinsPerDifficulty,
		XPEarned:    p.Difficulty * persona.XPPerDifficulty,
	}

	completedAt := c.now().UTC()
	stored, committed, err := c.store.CommitCompletion(ctx, userID, date, p.ID, completedAt, reward)
	if err != nil {
		return quest.Reward{}, err
	}
	if !committed {
		// Already completed: keep the original payout, and fall through so
		// a retry can re-derive any collection/leaderboard write that was
		// lost after the progress commit.
		reward = stored
		if progress != nil && progress.CompletedAt != nil {
			completedAt = *progress.CompletedAt
		}
	}

	var snapshot []quest.Message
	if progress != nil {
		snapshot = progress.Messages
	}
	if err := c.store.AppendCollectionEntry(ctx, quest.CollectionEntry{
		UserID:    userID,
		PersonaID: p.ID,
		Date:      date,
		ChatLog:   snapshot,
		ExposedAt: completedAt,
	}); err != nil {
		return quest.Reward{}, err
	}

	if err := c.store.ApplyCompletion(ctx, userID, quest.LeaderboardDelta{
		CompletedDate:  date,
		CompletionSecs: completionSeconds(progress, completedAt),
	}); err != nil {
		return quest.Reward{}, err
	}

	if committed {
		c.logger.Info("persona exposed",
			"user_id", userID,
			"date", date,
			"persona", p.Name,
			"coins", reward.CoinsEarned,
			"xp", reward.XPEarned,
		)
		if err := c.events.Publish(events.SubjectExposureCommitted, map[string]any{
			"user_id":    userID.String(),
			"date":       date,
			"persona_id": p.ID.String(),
			"coins":      reward.CoinsEarned,
			"xp":         reward.XPEarned,
		}); err != nil {
			c.logger.Warn("failed to publish exposure event", "error", err)
		}
	}

	return reward, nil
}

// completionSeconds measures first message to completion. Nil when no
// turn was ever recorded (manual exposure before any message).
func completionSeconds(progress *quest.Progress, completedAt time.Time) *int {
	if progress == nil || len(progress.Messages) == 0 {
		return nil
	}
	start := progress.Messages[0].Timestamp
	if start.IsZero() {
		start = progress.CreatedAt
	}
	secs := int(completedAt.Sub(start) / time.Second)
	if secs < 0 {
		secs = 0
	}
	return &secs
}
