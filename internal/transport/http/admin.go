package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"trivia-session-service/internal/app"
)

// AdminHandler exposes session lifecycle and moderation as JSON endpoints.
type AdminHandler struct {
	service *app.GameService
	logger  *slog.Logger
}

func NewAdminHandler(service *app.GameService, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{service: service, logger: logger}
}

type createSessionRequest struct {
	ContextID string `json:"contextId"`
	Quiz      string `json:"quiz"`
}

type grantRequest struct {
	Name string `json:"name"`
}

func (h *AdminHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /sessions", h.createSession)
	mux.HandleFunc("POST /sessions/{id}/start", h.start)
	mux.HandleFunc("POST /sessions/{id}/finish", h.finish)
	mux.HandleFunc("GET /sessions/{id}/leaderboard", h.leaderboard)
	mux.HandleFunc("POST /sessions/{id}/players/{userId}/powerups", h.grant)
	mux.HandleFunc("DELETE /sessions/{id}/players/{userId}", h.removePlayer)
}

func (h *AdminHandler) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ContextID == "" || req.Quiz == "" {
		writeJSON(w, http.StatusBadRequest, errorPayload{Code: "bad_request", Message: "contextId and quiz are required"})
		return
	}
	info, err := h.service.CreateSession(r.Context(), req.ContextID, req.Quiz)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

func (h *AdminHandler) start(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Start(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) finish(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Finish(r.Context(), r.PathValue("id"))
	if err != nil && summary.ContextID == "" {
		h.writeError(w, err)
		return
	}
	if err != nil {
		// The session is finished either way; only the report write failed.
		h.logger.Error("report not saved", "context_id", summary.ContextID, "err", err)
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *AdminHandler) leaderboard(w http.ResponseWriter, r *http.Request) {
	lb, err := h.service.Leaderboard(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lb)
}

func (h *AdminHandler) grant(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeJSON(w, http.StatusBadRequest, errorPayload{Code: "bad_request", Message: "name is required"})
		return
	}
	if err := h.service.GrantPowerUp(r.Context(), r.PathValue("id"), r.PathValue("userId"), req.Name); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) removePlayer(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RemovePlayer(r.Context(), r.PathValue("id"), r.PathValue("userId")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) writeError(w http.ResponseWriter, err error) {
	code, status := errorCode(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("admin request failed", "err", err)
	}
	writeJSON(w, status, errorPayload{Code: code, Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
