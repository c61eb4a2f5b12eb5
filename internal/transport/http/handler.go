package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/codepilot/collab-relay/internal/registry"
	"github.com/codepilot/collab-relay/pkg/errs"
	"github.com/codepilot/collab-relay/pkg/httputil"
)

// Suggester is the upstream suggestion collaborator. Implementations must
// return a non-empty fallback list instead of failing, so the caller never
// gets zero actionable output.
type Suggester interface {
	Suggest(ctx context.Context, code, language, prompt string) (suggestions []string, fallback bool)
}

type Handler struct {
	reg       *registry.Registry
	suggester Suggester
}

func NewHandler(reg *registry.Registry, suggester Suggester) *Handler {
	return &Handler{reg: reg, suggester: suggester}
}

type healthResponse struct {
	Status           string    `json:"status"`
	RoomCount        int       `json:"room_count"`
	ParticipantCount int       `json:"participant_count"`
	Timestamp        time.Time `json:"timestamp"`
}

// GET /health — liveness probe, not part of the protocol core.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	rooms, participants := h.reg.Stats()
	httputil.JSON(w, http.StatusOK, healthResponse{
		Status:           "ok",
		RoomCount:        rooms,
		ParticipantCount: participants,
		Timestamp:        time.Now().UTC(),
	})
}

type roomInfoResponse struct {
	ID               string    `json:"id"`
	ParticipantCount int       `json:"participant_count"`
	LanguageTag      string    `json:"language_tag"`
	CreatedAt        time.Time `json:"created_at"`
}

// GET /rooms/{id}
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap, err := h.reg.Get(id)
	if err != nil {
		httputil.Error(r.Context(), w, http.StatusNotFound, "room not found", nil)
		return
	}

	httputil.JSON(w, http.StatusOK, roomInfoResponse{
		ID:               snap.RoomID,
		ParticipantCount: len(snap.Participants),
		LanguageTag:      snap.Language,
		CreatedAt:        snap.CreatedAt,
	})
}

type suggestRequest struct {
	Code     string `json:"code"`
	Language string `json:"language"`
	Prompt   string `json:"customPrompt"`
}

type suggestResponse struct {
	Suggestions []string `json:"suggestions"`
	Fallback    bool     `json:"fallback,omitempty"`
}

// POST /suggestions — proxies the suggestion collaborator for one requesting
// client. Upstream failures are never broadcast; they degrade to the fixed
// fallback list.
func (h *Handler) Suggestions(w http.ResponseWriter, r *http.Request) {
	var req suggestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(r.Context(), w, errs.ToHTTP(errs.ErrInvalidInput), "invalid json", nil)
		return
	}
	if req.Code == "" {
		httputil.Error(r.Context(), w, errs.ToHTTP(errs.ErrInvalidInput), "code is required", nil)
		return
	}

	suggestions, fallback := h.suggester.Suggest(r.Context(), req.Code, req.Language, req.Prompt)
	if fallback {
		slog.Warn("suggestion upstream degraded to fallback")
	}

	httputil.JSON(w, http.StatusOK, suggestResponse{Suggestions: suggestions, Fallback: fallback})
}
