package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/coinville/questd/internal/conversation"
	"github.com/coinville/questd/internal/persona"
	"github.com/coinville/questd/internal/quest"
	"github.com/coinville/questd/internal/store"
)

// Scheduler hands out the day's persona, creating the assignment on first
// access.
type Scheduler interface {
	GetOrCreateAssignment(ctx context.Context, date quest.Date) (*persona.Persona, error)
}

// Engine runs one conversation turn.
type Engine interface {
	PostUserTurn(ctx context.Context, userID uuid.UUID, date quest.Date, content string, kind conversation.ContentKind) (*conversation.TurnResult, error)
}

// Committer finalizes a completion.
type Committer interface {
	Expose(ctx context.Context, userID uuid.UUID, date quest.Date) (quest.Reward, error)
}

// Describer is the image-understanding collaborator. Optional.
type Describer interface {
	Describe(ctx context.Context, image string) (string, error)
}

// Store is the read/annotation surface the handlers use directly.
type Store interface {
	GetOrCreateProfileByDevice(ctx context.Context, deviceID string) (*quest.Profile, error)
	GetProgress(ctx context.Context, userID uuid.UUID, date quest.Date) (*quest.Progress, error)
	ToggleFlag(ctx context.Context, userID uuid.UUID, date quest.Date, index int) ([]int, error)
	TopStandings(ctx context.Context, limit int) ([]store.Standing, error)
	ListCollection(ctx context.Context, userID uuid.UUID) ([]quest.CollectionEntry, error)
}

type Server struct {
	router    *chi.Mux
	port      int
	scheduler Scheduler
	engine    Engine
	committer Committer
	vision    Describer
	store     Store
	logger    *slog.Logger
	now       func() time.Time
}

func NewServer(port int, sched Scheduler, eng Engine, com Committer, vis Describer, st Store, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:    router,
		port:      port,
		scheduler: sched,
		engine:    eng,
		committer: com,
		vision:    vis,
		store:     st,
		logger:    logger,
		now:       time.Now,
	}

	router.Get("/health", s.health)
	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/leaderboard", s.leaderboard)
		r.Route("/quest", func(r chi.Router) {
			r.Use(s.withProfile)
			r.Get("/today", s.today)
			r.Post("/turn", s.turn)
			r.Post("/expose", s.expose)
			r.Post("/flag", s.flag)
		})
		r.With(s.withProfile).Get("/collection", s.collection)
	})

	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("API server starting", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

// Handler exposes the router. Test hook.
func (s *Server) Handler() http.Handler {
	return s.router
}

// SetClock overrides the quest-day clock. Test hook.
func (s *Server) SetClock(now func() time.Time) {
	s.now = now
}

type profileKey struct{}

// withProfile resolves the device-bound profile from the X-Device-ID
// header and stores it on the request context.
func (s *Server) withProfile(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deviceID := r.Header.Get("X-Device-ID")
		if deviceID == "" {
			writeError(w, http.StatusUnauthorized, "missing_device_id", "X-Device-ID header is required")
			return
		}
		profile, err := s.store.GetOrCreateProfileByDevice(r.Context(), deviceID)
		if err != nil {
			s.writeInternal(w, "resolve profile", err)
			return
		}
		ctx := context.WithValue(r.Context(), profileKey{}, profile)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func profileFrom(r *http.Request) *quest.Profile {
	p, _ := r.Context().Value(profileKey{}).(*quest.Profile)
	return p
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}

func (s *Server) writeInternal(w http.ResponseWriter, op string, err error) {
	s.logger.Error(op+" failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal", "internal error")
}

// writeQuestError maps domain errors to client-facing statuses.
func (s *Server) writeQuestError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, quest.ErrNoActiveQuest):
		writeError(w, http.StatusNotFound, "no_active_quest", "today's quest is not ready yet")
	case errors.Is(err, quest.ErrTurnInFlight):
		writeError(w, http.StatusConflict, "turn_in_flight", "previous turn is still being processed")
	case errors.Is(err, quest.ErrModelUnavailable):
		writeError(w, http.StatusBadGateway, "model_unavailable", "scammer is not responding, try again")
	case errors.Is(err, quest.ErrNoPersonas):
		writeError(w, http.StatusServiceUnavailable, "no_personas", "persona catalog is empty")
	case errors.Is(err, quest.ErrAssignmentConflict):
		writeError(w, http.StatusServiceUnavailable, "assignment_conflict", "quest rotation in progress, retry")
	default:
		s.writeInternal(w, op, err)
	}
}
