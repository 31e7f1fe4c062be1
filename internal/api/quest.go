package api

import (
	"encoding/json"
	"net/http"

	"github.com/coinville/questd/internal/conversation"
	"github.com/coinville/questd/internal/persona"
	"github.com/coinville/questd/internal/quest"
)

type personaCard struct {
	Name       string `json:"name"`
	Age        int    `json:"age"`
	Role       string `json:"role"`
	Biography  string `json:"biography"`
	Difficulty int    `json:"difficulty_level"`
	AvatarURL  string `json:"avatar_url,omitempty"`
}

func cardOf(p *persona.Persona) personaCard {
	return personaCard{
		Name:       p.Name,
		Age:        p.Age,
		Role:       p.Role,
		Biography:  p.Biography,
		Difficulty: p.Difficulty,
		AvatarURL:  p.AvatarURL,
	}
}

type todayResponse struct {
	Persona   personaCard     `json:"persona"`
	Messages  []quest.Message `json:"messages"`
	Flags     []int           `json:"flags,omitempty"`
	Completed bool            `json:"completed"`
	Reward    *quest.Reward   `json:"reward,omitempty"`
}

// today returns the day's persona card plus the caller's transcript and
// completion state. First call of the day creates the assignment.
func (s *Server) today(w http.ResponseWriter, r *http.Request) {
	profile := profileFrom(r)
	date := quest.DateOf(s.now())

	p, err := s.scheduler.GetOrCreateAssignment(r.Context(), date)
	if err != nil {
		s.writeQuestError(w, "get assignment", err)
		return
	}

	progress, err := s.store.GetProgress(r.Context(), profile.ID, date)
	if err != nil {
		s.writeInternal(w, "load progress", err)
		return
	}

	resp := todayResponse{Persona: cardOf(p)}
	if progress != nil {
		resp.Messages = progress.Messages
		resp.Flags = progress.Flags
		resp.Completed = progress.Completed
		if progress.Completed {
			resp.Reward = &quest.Reward{CoinsEarned: progress.CoinsEarned, XPEarned: progress.XPEarned}
		}
	}
	if len(resp.Messages) == 0 {
		// Preview of the opening line the engine will seed on first turn.
		resp.Messages = []quest.Message{{Role: "assistant", Content: persona.OpeningLine(p)}}
	}
	writeJSON(w, http.StatusOK, resp)
}

type turnRequest struct {
	Message string `json:"message"`
	IsImage bool   `json:"is_image"`
}

type turnResponse struct {
	Reply       string        `json:"reply"`
	Confessed   bool          `json:"confessed"`
	Interview   bool          `json:"interview,omitempty"`
	PersonaName string        `json:"persona_name"`
	PersonaRole string        `json:"persona_role"`
	Reward      *quest.Reward `json:"reward,omitempty"`
}

// turn submits one user message. When the persona confesses, the
// completion commit is triggered here — the engine itself stays pure.
func (s *Server) turn(w http.ResponseWriter, r *http.Request) {
	profile := profileFrom(r)
	date := quest.DateOf(s.now())

	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "message is required")
		return
	}

	content := req.Message
	kind := conversation.KindText
	if req.IsImage {
		if s.vision == nil {
			writeError(w, http.StatusServiceUnavailable, "vision_unavailable", "image understanding is not configured")
			return
		}
		description, err := s.vision.Describe(r.Context(), req.Message)
		if err != nil {
			s.logger.Error("vision describe failed", "error", err)
			writeError(w, http.StatusBadGateway, "vision_failed", "could not process image")
			return
		}
		content = description
		kind = conversation.KindImageDescription
	}

	result, err := s.engine.PostUserTurn(r.Context(), profile.ID, date, content, kind)
	if err != nil {
		s.writeQuestError(w, "post turn", err)
		return
	}

	resp := turnResponse{
		Reply:       result.Reply,
		Confessed:   result.Confessed,
		Interview:   result.Interview,
		PersonaName: result.Persona.Name,
		PersonaRole: result.Persona.Role,
	}

	if result.Confessed {
		reward, err := s.committer.Expose(r.Context(), profile.ID, date)
		if err != nil {
			// The confession already landed in the transcript; surface the
			// turn and let a manual expose retry the commit.
			s.logger.Error("auto-expose failed", "user_id", profile.ID, "date", date, "error", err)
		} else {
			resp.Reward = &reward
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// expose is the manual "I've got enough evidence" path. Idempotent with
// the confession-triggered commit.
func (s *Server) expose(w http.ResponseWriter, r *http.Request) {
	profile := profileFrom(r)
	date := quest.DateOf(s.now())

	reward, err := s.committer.Expose(r.Context(), profile.ID, date)
	if err != nil {
		s.writeQuestError(w, "expose", err)
		return
	}
	writeJSON(w, http.StatusOK, reward)
}

type flagRequest struct {
	Index int `json:"index"`
}

// flag toggles the evidence marker on one message index.
func (s *Server) flag(w http.ResponseWriter, r *http.Request) {
	profile := profileFrom(r)
	date := quest.DateOf(s.now())

	var req flagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "index is required")
		return
	}

	flags, err := s.store.ToggleFlag(r.Context(), profile.ID, date, req.Index)
	if err != nil {
		s.writeQuestError(w, "toggle flag", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]int{"flags": flags})
}

func (s *Server) leaderboard(w http.ResponseWriter, r *http.Request) {
	standings, err := s.store.TopStandings(r.Context(), 50)
	if err != nil {
		s.writeInternal(w, "load leaderboard", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"leaderboard": standings})
}

func (s *Server) collection(w http.ResponseWriter, r *http.Request) {
	profile := profileFrom(r)
	entries, err := s.store.ListCollection(r.Context(), profile.ID)
	if err != nil {
		s.writeInternal(w, "load collection", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"collection": entries})
}
