// Package conversation drives the multi-turn dialogue between a player
// and the day's scammer persona. The engine is pure with respect to
// rewards: it reports whether the persona confessed and leaves the
// completion commit to the caller.
package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/coinville/questd/internal/gateway"
	"github.com/coinville/questd/internal/persona"
	"github.com/coinville/questd/internal/quest"
)

// ContentKind distinguishes plain text from an image description produced
// by the vision collaborator.
type ContentKind string

const (
	KindText             ContentKind = "text"
	KindImageDescription ContentKind = "image_description"
)

const imageMarker = "Пользователь прислал изображение. Описание: "

// Store is the persistence surface the engine consumes.
type Store interface {
	GetAssignment(ctx context.Context, date quest.Date) (*quest.Assignment, error)
	GetProgress(ctx context.Context, userID uuid.UUID, date quest.Date) (*quest.Progress, error)
	SaveTranscript(ctx context.Context, userID uuid.UUID, date quest.Date, personaID uuid.UUID, messages []quest.Message) error
	GetCollectionEntry(ctx context.Context, userID uuid.UUID, date quest.Date) (*quest.CollectionEntry, error)
	AppendInterviewQA(ctx context.Context, userID uuid.UUID, date quest.Date, turns []quest.Message) error
}

// Catalog resolves the assigned persona.
type Catalog interface {
	Get(ctx context.Context, id uuid.UUID) (*persona.Persona, error)
}

// ModelClient is the text-generation boundary.
type ModelClient interface {
	Chat(ctx context.Context, system string, history []gateway.Message, withConfession bool) (*gateway.Outcome, error)
}

// TurnResult is the client-visible outcome of one turn.
type TurnResult struct {
	Reply     string
	Confessed bool
	Interview bool // true when the turn went through the post-exposure Q&A flow
	Persona   *persona.Persona
}

// Options tune product behavior that tests switch off.
type Options struct {
	// ReplyDelayMin/Max bound the artificial typing latency applied before
	// each model call. Zero disables the delay.
	ReplyDelayMin time.Duration
	ReplyDelayMax time.Duration
	// TurnTimeout bounds the model call and the trailing persist once a
	// turn is in flight, even if the submitting client goes away.
	TurnTimeout time.Duration
}

type Engine struct {
	store   Store
	catalog Catalog
	model   ModelClient
	logger  *slog.Logger
	opts    Options

	mu       sync.Mutex
	rng      *rand.Rand
	inflight map[string]struct{}
}

func New(store Store, catalog Catalog, model ModelClient, opts Options, logger *slog.Logger) *Engine {
	if opts.TurnTimeout <= 0 {
		opts.TurnTimeout = 2 * time.Minute
	}
	return &Engine{
		store:    store,
		catalog:  catalog,
		model:    model,
		logger:   logger,
		opts:     opts,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		inflight: make(map[string]struct{}),
	}
}

// PostUserTurn appends the user's message, asks the model for the
// persona's reply, and persists both. At most one turn per (user, date)
// may be in flight; a second submission is rejected with ErrTurnInFlight.
// After the quest is completed, turns are handed to the post-exposure
// interview flow instead.
func (e *Engine) PostUserTurn(ctx context.Context, userID uuid.UUID, date quest.Date, content string, kind ContentKind) (*TurnResult, error) {
	key := userID.String() + "|" + date
	if !e.acquire(key) {
		return nil, quest.ErrTurnInFlight
	}
	defer e.release(key)

	assignment, err := e.store.GetAssignment(ctx, date)
	if err != nil {
		return nil, err
	}
	if assignment == nil {
		return nil, quest.ErrNoActiveQuest
	}

	p, err := e.catalog.Get(ctx, assignment.PersonaID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("persona %s for active quest missing: %w", assignment.PersonaID, quest.ErrNoActiveQuest)
	}

	progress, err := e.store.GetProgress(ctx, userID, date)
	if err != nil {
		return nil, err
	}

	// The submitting client may disconnect mid-turn; the reply should
	// still land in the transcript within the turn timeout.
	tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opts.TurnTimeout)
	defer cancel()

	if progress != nil && progress.Completed {
		return e.interviewTurn(tctx, userID, date, p, content)
	}

	prior := seedIfEmpty(progressMessages(progress), p)

	userContent := content
	if kind == KindImageDescription {
		userContent = imageMarker + content
	}
	withUser := append(append([]quest.Message(nil), prior...), quest.Message{
		Role:      "user",
		Content:   userContent,
		Timestamp: time.Now().UTC(),
	})

	// The user's message must be durable before any reply is generated.
	if err := e.store.SaveTranscript(tctx, userID, date, p.ID, withUser); err != nil {
		return nil, fmt.Errorf("persist user turn: %w", err)
	}

	e.typingDelay(ctx)

	outcome, err := e.model.Chat(tctx, p.SystemPrompt, toGatewayHistory(withUser), true)
	if err != nil {
		// Roll the transcript back so the same turn can be retried without
		// duplicating the user's message.
		if rbErr := e.store.SaveTranscript(tctx, userID, date, p.ID, prior); rbErr != nil {
			e.logger.Error("transcript rollback failed", "user_id", userID, "date", date, "error", rbErr)
		}
		return nil, fmt.Errorf("%w: %v", quest.ErrModelUnavailable, err)
	}

	full := append(withUser, quest.Message{
		Role:      "assistant",
		Content:   outcome.Text,
		Timestamp: time.Now().UTC(),
	})
	if err := e.store.SaveTranscript(tctx, userID, date, p.ID, full); err != nil {
		return nil, fmt.Errorf("persist assistant turn: %w", err)
	}

	if outcome.Confessed {
		e.logger.Info("persona confessed", "user_id", userID, "date", date, "persona", p.Name)
	}

	return &TurnResult{Reply: outcome.Text, Confessed: outcome.Confessed, Persona: p}, nil
}

// interviewTurn runs the lighter post-exposure Q&A: honest out-of-character
// answers, no confession capability, history kept on the trophy record.
// The frozen quest transcript is never touched.
func (e *Engine) interviewTurn(ctx context.Context, userID uuid.UUID, date quest.Date, p *persona.Persona, content string) (*TurnResult, error) {
	entry, err := e.store.GetCollectionEntry(ctx, userID, date)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, fmt.Errorf("quest completed but no collection entry for user %s on %s", userID, date)
	}

	history := []quest.Message{{Role: "assistant", Content: persona.InterviewGreeting(p)}}
	history = append(history, entry.PostChatQA...)
	userMsg := quest.Message{Role: "user", Content: content, Timestamp: time.Now().UTC()}
	history = append(history, userMsg)

	e.typingDelay(ctx)

	outcome, err := e.model.Chat(ctx, persona.InterviewPrompt(p), toGatewayHistory(history), false)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", quest.ErrModelUnavailable, err)
	}

	turns := []quest.Message{
		userMsg,
		{Role: "assistant", Content: outcome.Text, Timestamp: time.Now().UTC()},
	}
	if err := e.store.AppendInterviewQA(ctx, userID, date, turns); err != nil {
		return nil, fmt.Errorf("persist interview turn: %w", err)
	}

	return &TurnResult{Reply: outcome.Text, Interview: true, Persona: p}, nil
}

// typingDelay blocks for the configured humanizing interval, or until the
// submitting context is done.
func (e *Engine) typingDelay(ctx context.Context) {
	if e.opts.ReplyDelayMax <= 0 {
		return
	}
	d := e.opts.ReplyDelayMin
	if span := e.opts.ReplyDelayMax - e.opts.ReplyDelayMin; span > 0 {
		e.mu.Lock()
		d += time.Duration(e.rng.Int63n(int64(span)))
		e.mu.Unlock()
	}
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}

func (e *Engine) acquire(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.inflight[key]; busy {
		return false
	}
	e.inflight[key] = struct{}{}
	return true
}

func (e *Engine) release(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inflight, key)
}

func progressMessages(p *quest.Progress) []quest.Message {
	if p == nil {
		return nil
	}
	return p.Messages
}

// seedIfEmpty opens a fresh transcript with the persona's deterministic
// greeting, so every reload of the same (user, date) starts identically.
func seedIfEmpty(msgs []quest.Message, p *persona.Persona) []quest.Message {
	if len(msgs) > 0 {
		return msgs
	}
	return []quest.Message{{
		Role:      "assistant",
		Content:   persona.OpeningLine(p),
		Timestamp: time.Now().UTC(),
	}}
}

func toGatewayHistory(msgs []quest.Message) []gateway.Message {
	out := make([]gateway.Message, len(msgs))
	for i, m := range msgs {
		out[i] = gateway.Message{Role: m.Role, Content: m.Content}
	}
	return out
}
