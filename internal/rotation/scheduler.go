// Package rotation assigns exactly one persona to each calendar day,
// advancing deterministically through the catalog so every player meets
// the same scammer on the same date.
package rotation

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/coinville/questd/internal/events"
	"github.com/coinville/questd/internal/persona"
	"github.com/coinville/questd/internal/quest"
)

// Store is the assignment persistence consumed by the scheduler.
type Store interface {
	GetAssignment(ctx context.Context, date quest.Date) (*quest.Assignment, error)
	LatestAssignment(ctx context.Context) (*quest.Assignment, error)
	CreateAssignmentIfAbsent(ctx context.Context, date quest.Date, personaID uuid.UUID) (bool, error)
}

// Catalog is the read-only persona source.
type Catalog interface {
	Get(ctx context.Context, id uuid.UUID) (*persona.Persona, error)
	ListIDs(ctx context.Context) ([]uuid.UUID, error)
}

type Scheduler struct {
	store   Store
	catalog Catalog
	events  *events.Publisher
	logger  *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

func New(store Store, catalog Catalog, pub *events.Publisher, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:   store,
		catalog: catalog,
		events:  pub,
		logger:  logger,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetSeed fixes the cold-start random source. Test hook.
func (s *Scheduler) SetSeed(seed int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rng = rand.New(rand.NewSource(seed))
}

// GetOrCreateAssignment returns the day's persona, creating the binding on
// first access. Rotation is cyclic over the catalog in stable order; the
// very first assignment ever is picked uniformly at random. Racing callers
// converge on one row: the insert loser discards its pick and reads back
// the winner's.
func (s *Scheduler) GetOrCreateAssignment(ctx context.Context, date quest.Date) (*persona.Persona, error) {
	existing, err := s.store.GetAssignment(ctx, date)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return s.personaByID(ctx, existing.PersonaID)
	}

	ids, err := s.catalog.ListIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list catalog: %w", err)
	}
	if len(ids) == 0 {
		return nil, quest.ErrNoPersonas
	}

	latest, err := s.store.LatestAssignment(ctx)
	if err != nil {
		return nil, err
	}

	var chosen uuid.UUID
	if latest == nil {
		s.mu.Lock()
		chosen = ids[s.rng.Intn(len(ids))]
		s.mu.Unlock()
	} else {
		chosen = ids[(indexOf(ids, latest.PersonaID)+1)%len(ids)]
	}

	created, err := s.store.CreateAssignmentIfAbsent(ctx, date, chosen)
	if err != nil {
		return nil, err
	}
	if !created {
		// Lost the race. The winner's row is authoritative.
		winner, err := s.store.GetAssignment(ctx, date)
		if err != nil {
			return nil, err
		}
		if winner == nil {
			return nil, quest.ErrAssignmentConflict
		}
		return s.personaByID(ctx, winner.PersonaID)
	}

	s.logger.Info("daily quest rotated", "date", date, "persona_id", chosen)
	if err := s.events.Publish(events.SubjectQuestRotated, map[string]any{
		"date":       date,
		"persona_id": chosen.String(),
	}); err != nil {
		s.logger.Warn("failed to publish rotation event", "error", err)
	}

	return s.personaByID(ctx, chosen)
}

func (s *Scheduler) personaByID(ctx context.Context, id uuid.UUID) (*persona.Persona, error) {
	p, err := s.catalog.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("assigned persona %s missing from catalog", id)
	}
	return p, nil
}

// indexOf returns -1 when the id is not in the catalog, which makes the
// next pick wrap to the start — the same recovery the rotation needs if a
// persona was ever retired out-of-band.
func indexOf(ids []uuid.UUID, id uuid.UUID) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}
