// Package simulator exposes trainee workspaces over HTTP.
package simulator

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/clinsim/backend/internal/generator"
	"github.com/clinsim/backend/internal/middleware"
	"github.com/clinsim/backend/internal/models"
	"github.com/clinsim/backend/internal/platform/logger"
	"github.com/clinsim/backend/internal/scenario"
	"github.com/clinsim/backend/internal/session"
)

type Handler struct {
	manager *session.Manager
	catalog *scenario.Catalog
	log     *logger.Logger
}

func NewHandler(manager *session.Manager, catalog *scenario.Catalog, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{manager: manager, catalog: catalog, log: log.With("component", "simulator")}
}

// workspace resolves the caller's workspace from the authenticated user.
func (h *Handler) workspace(w http.ResponseWriter, r *http.Request) (*session.Workspace, bool) {
	uid, ok := middleware.UserID(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Unauthorized"})
		return nil, false
	}
	return h.manager.Workspace(strconv.FormatInt(uid, 10)), true
}

// ── Catalogs ────────────────────────────────────────────

func (h *Handler) GetOptions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.Options{
		AgeRanges:       models.AgeRanges,
		Genders:         models.Genders,
		Specializations: models.Specializations,
		Difficulties:    []models.Difficulty{models.DifficultyEasy, models.DifficultyMedium, models.DifficultyHard},
		TimerMinutes:    models.TimerOptions,
		MaxConsults:     h.manager.MaxConsultations(),
	})
}

func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.catalog.List())
}

// ── Workspace ───────────────────────────────────────────

func (h *Handler) GetWorkspace(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ws.Snapshot(r.Context()))
}

func (h *Handler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	var prefs models.Preferences
	if err := json.NewDecoder(r.Body).Decode(&prefs); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if err := ws.SetPreferences(prefs); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ws.Snapshot(r.Context()))
}

type selectRequest struct {
	ScenarioID string `json:"scenario_id"`
}

func (h *Handler) SelectScenario(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	var req selectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if err := ws.SelectScenario(r.Context(), req.ScenarioID); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ws.Snapshot(r.Context()))
}

type GenerateResponse struct {
	Warnings  []string     `json:"warnings"`
	Workspace session.View `json:"workspace"`
}

func (h *Handler) GenerateScenario(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	warnings, err := ws.GenerateScenario(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	if warnings == nil {
		warnings = []string{}
	}
	writeJSON(w, http.StatusCreated, GenerateResponse{Warnings: warnings, Workspace: ws.Snapshot(r.Context())})
}

type messageRequest struct {
	Content string `json:"content"`
}

type MessageResponse struct {
	Turn      *session.TurnResult `json:"turn"`
	Workspace session.View        `json:"workspace"`
}

func (h *Handler) SubmitMessage(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}
	turn, err := ws.SubmitMessage(r.Context(), req.Content)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Turn: turn, Workspace: ws.Snapshot(r.Context())})
}

func (h *Handler) UpdateDraft(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	var d session.Draft
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if err := ws.UpdateDraft(r.Context(), d); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ws.Snapshot(r.Context()))
}

type ConsultResponse struct {
	Tip       string       `json:"tip"`
	Workspace session.View `json:"workspace"`
}

func (h *Handler) RequestConsultation(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	tip, err := ws.RequestConsultation(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ConsultResponse{Tip: tip, Workspace: ws.Snapshot(r.Context())})
}

func (h *Handler) SubmitEvaluation(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	var sub session.Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if _, err := ws.SubmitEvaluation(r.Context(), sub); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ws.Snapshot(r.Context()))
}

type TickResponse struct {
	Expired   bool         `json:"expired"`
	Workspace session.View `json:"workspace"`
}

func (h *Handler) Tick(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	expired := ws.Tick(r.Context())
	writeJSON(w, http.StatusOK, TickResponse{Expired: expired, Workspace: ws.Snapshot(r.Context())})
}

func (h *Handler) Retry(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	if err := ws.Retry(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ws.Snapshot(r.Context()))
}

func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	ws.Reset()
	writeJSON(w, http.StatusOK, ws.Snapshot(r.Context()))
}

func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	records, err := ws.History(r.Context())
	if err != nil {
		h.log.Error("failed to list history", "workspace", ws.Key(), "error", err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to load history"})
		return
	}
	if records == nil {
		records = []models.HistoryRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// ── Errors ──────────────────────────────────────────────

// GenerationFailure carries the model's raw output so the trainee can see
// what went wrong.
type GenerationFailure struct {
	Error string `json:"error"`
	Raw   string `json:"raw,omitempty"`
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var (
		ve *session.ValidationError
		ge *generator.GenerationError
	)
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
	case errors.As(err, &ge):
		writeJSON(w, http.StatusBadGateway, GenerationFailure{Error: err.Error(), Raw: ge.Raw})
	case errors.Is(err, scenario.ErrScenarioNotFound):
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "Scenario not found"})
	case errors.Is(err, session.ErrEmptyMessage):
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
	case errors.Is(err, session.ErrConsultLimit):
		writeJSON(w, http.StatusTooManyRequests, models.ErrorResponse{Error: err.Error()})
	case errors.Is(err, session.ErrNoScenario),
		errors.Is(err, session.ErrSessionLocked),
		errors.Is(err, session.ErrTimeUp),
		errors.Is(err, session.ErrRetryUnavailable):
		writeJSON(w, http.StatusConflict, models.ErrorResponse{Error: err.Error()})
	default:
		h.log.Error("unhandled workspace error", "error", err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Internal server error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
