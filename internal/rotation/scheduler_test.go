package rotation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/coinville/questd/internal/persona"
	"github.com/coinville/questd/internal/quest"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeStore struct {
	mu          sync.Mutex
	assignments map[quest.Date]*quest.Assignment
}

func newFakeStore() *fakeStore {
	return &fakeStore{assignments: make(map[quest.Date]*quest.Assignment)}
}

func (f *fakeStore) GetAssignment(_ context.Context, date quest.Date) (*quest.Assignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.assignments[date]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeStore) LatestAssignment(_ context.Context) (*quest.Assignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *quest.Assignment
	for _, a := range f.assignments {
		if latest == nil || a.Date > latest.Date {
			latest = a
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (f *fakeStore) CreateAssignmentIfAbsent(_ context.Context, date quest.Date, personaID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.assignments[date]; exists {
		return false, nil
	}
	f.assignments[date] = &quest.Assignment{Date: date, PersonaID: personaID, CreatedAt: time.Now()}
	return true, nil
}

type fakeCatalog struct {
	ids      []uuid.UUID
	personas map[uuid.UUID]*persona.Persona
}

func newFakeCatalog(names ...string) *fakeCatalog {
	c := &fakeCatalog{personas: make(map[uuid.UUID]*persona.Persona)}
	for _, name := range names {
		id := uuid.New()
		c.ids = append(c.ids, id)
		c.personas[id] = &persona.Persona{ID: id, Name: name, Difficulty: 3}
	}
	return c
}

func (c *fakeCatalog) Get(_ context.Context, id uuid.UUID) (*persona.Persona, error) {
	return c.personas[id], nil
}

func (c *fakeCatalog) ListIDs(_ context.Context) ([]uuid.UUID, error) {
	return c.ids, nil
}

func TestGetOrCreateAssignment_EmptyCatalog(t *testing.T) {
	s := New(newFakeStore(), newFakeCatalog(), nil, discardLogger())

	_, err := s.GetOrCreateAssignment(context.Background(), "2025-01-01")
	if !errors.Is(err, quest.ErrNoPersonas) {
		t.Fatalf("expected ErrNoPersonas, got %v", err)
	}
}

func TestGetOrCreateAssignment_ColdStartIsStable(t *testing.T) {
	catalog := newFakeCatalog("P1", "P2", "P3")
	s := New(newFakeStore(), catalog, nil, discardLogger())
	s.SetSeed(42)

	first, err := s.GetOrCreateAssignment(context.Background(), "2025-01-01")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Every later call for the same date must return the committed pick,
	// not re-roll.
	for i := 0; i < 3; i++ {
		again, err := s.GetOrCreateAssignment(context.Background(), "2025-01-01")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if again.ID != first.ID {
			t.Fatalf("repeat call returned %s, want %s", again.Name, first.Name)
		}
	}
}

func TestGetOrCreateAssignment_CyclicAdvance(t *testing.T) {
	catalog := newFakeCatalog("P1", "P2", "P3")
	store := newFakeStore()
	s := New(store, catalog, nil, discardLogger())

	// Day 1 ran P2 (cold start landed there).
	if _, err := store.CreateAssignmentIfAbsent(context.Background(), "2025-01-01", catalog.ids[1]); err != nil {
		t.Fatal(err)
	}

	day2, err := s.GetOrCreateAssignment(context.Background(), "2025-01-02")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if day2.ID != catalog.ids[2] {
		t.Errorf("day 2 should advance to P3, got %s", day2.Name)
	}

	day3, err := s.GetOrCreateAssignment(context.Background(), "2025-01-03")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if day3.ID != catalog.ids[0] {
		t.Errorf("day 3 should wrap to P1, got %s", day3.Name)
	}
}

func TestGetOrCreateAssignment_ConcurrentCallersConverge(t *testing.T) {
	catalog := newFakeCatalog("P1", "P2", "P3")
	store := newFakeStore()
	s := New(store, catalog, nil, discardLogger())

	const callers = 8
	results := make([]uuid.UUID, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := s.GetOrCreateAssignment(context.Background(), "2025-01-01")
			if err != nil {
				t.Errorf("caller %d: %v", i, err)
				return
			}
			results[i] = p.ID
		}(i)
	}
	wg.Wait()

	if len(store.assignments) != 1 {
		t.Fatalf("expected exactly 1 assignment row, got %d", len(store.assignments))
	}
	for i := 1; i < callers; i++ {
		if results[i] != results[0] {
			t.Fatalf("caller %d saw %s, caller 0 saw %s", i, results[i], results[0])
		}
	}
}

func TestGetOrCreateAssignment_RetiredPersonaWrapsToStart(t *testing.T) {
	catalog := newFakeCatalog("P1", "P2")
	store := newFakeStore()
	s := New(store, catalog, nil, discardLogger())

	// Yesterday's persona is no longer in the catalog.
	if _, err := store.CreateAssignmentIfAbsent(context.Background(), "2025-01-01", uuid.New()); err != nil {
		t.Fatal(err)
	}

	p, err := s.GetOrCreateAssignment(context.Background(), "2025-01-02")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ID != catalog.ids[0] {
		t.Errorf("expected wrap to P1, got %s", p.Name)
	}
}
