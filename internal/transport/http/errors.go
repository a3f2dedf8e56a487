package http

import (
	"errors"
	"net/http"

	"trivia-session-service/internal/domain"
)

var errorCodes = []struct {
	err    error
	code   string
	status int
}{
	{domain.ErrSessionNotFound, "session_not_found", http.StatusNotFound},
	{domain.ErrSessionExists, "session_exists", http.StatusConflict},
	{domain.ErrSessionRunning, "session_running", http.StatusConflict},
	{domain.ErrNoPlayers, "no_players", http.StatusConflict},
	{domain.ErrParticipantNotFound, "not_joined", http.StatusForbidden},
	{domain.ErrQuizNotFound, "quiz_not_found", http.StatusNotFound},
	{domain.ErrOptionNotFound, "option_not_found", http.StatusBadRequest},
	{domain.ErrInvalidTransition, "no_active_question", http.StatusConflict},
	{domain.ErrEmptySelection, "empty_selection", http.StatusBadRequest},
	{domain.ErrBoardExpired, "board_expired", http.StatusGone},
	{domain.ErrPowerUpNotFound, "powerup_not_found", http.StatusNotFound},
	{domain.ErrDuplicatePowerUp, "powerup_active", http.StatusConflict},
	{domain.ErrIneligiblePowerUp, "powerup_ineligible", http.StatusConflict},
}

// errorCode maps an engine error to a stable code and HTTP status.
func errorCode(err error) (string, int) {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.code, e.status
		}
	}
	return "internal", http.StatusInternalServerError
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func newErrorPayload(err error) errorPayload {
	code, _ := errorCode(err)
	return errorPayload{Code: code, Message: err.Error()}
}
