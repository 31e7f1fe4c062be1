package persona

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestOpeningLine(t *testing.T) {
	p := &Persona{
		Name:      "Виктор Соколов",
		Role:      "инвестиционный консультант",
		Biography: "Работаю на бирже 15 лет. Гарантирую доходность 300% в месяц.",
	}

	got := OpeningLine(p)
	want := "Здравствуйте! Я Виктор Соколов, инвестиционный консультант. Работаю на бирже 15 лет."
	if got != want {
		t.Errorf("OpeningLine = %q, want %q", got, want)
	}
}

func TestOpeningLine_NoPeriodInBiography(t *testing.T) {
	p := &Persona{Name: "Анна", Role: "брокер", Biography: "Без точки в конце"}

	got := OpeningLine(p)
	want := "Здравствуйте! Я Анна, брокер. Без точки в конце."
	if got != want {
		t.Errorf("OpeningLine = %q, want %q", got, want)
	}
}

type countingSource struct {
	personas map[uuid.UUID]*Persona
	getCalls int
}

func (c *countingSource) GetPersona(_ context.Context, id uuid.UUID) (*Persona, error) {
	c.getCalls++
	return c.personas[id], nil
}

func (c *countingSource) ListPersonaIDs(_ context.Context) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(c.personas))
	for id := range c.personas {
		ids = append(ids, id)
	}
	return ids, nil
}

func TestCatalog_CachesLookups(t *testing.T) {
	id := uuid.New()
	src := &countingSource{personas: map[uuid.UUID]*Persona{
		id: {ID: id, Name: "Виктор", Difficulty: 3},
	}}
	catalog := NewCatalog(src)

	for i := 0; i < 5; i++ {
		p, err := catalog.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p.Name != "Виктор" {
			t.Errorf("unexpected persona: %+v", p)
		}
	}

	if src.getCalls != 1 {
		t.Errorf("expected 1 source lookup for 5 gets, got %d", src.getCalls)
	}
}
