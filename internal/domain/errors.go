package domain

import "errors"

var (
	// ErrSessionNotFound is returned when no live session exists for a context.
	ErrSessionNotFound = errors.New("game session not found")
	// ErrSessionExists is returned when a context already hosts a live session.
	ErrSessionExists = errors.New("game session already exists")
	// ErrSessionRunning is returned when starting a session twice.
	ErrSessionRunning = errors.New("game session already running")
	// ErrNoPlayers is returned when starting a session nobody joined.
	ErrNoPlayers = errors.New("no players joined")
	// ErrParticipantNotFound is returned when a user acts before joining.
	ErrParticipantNotFound = errors.New("participant not found in session")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrOptionNotFound indicates a selected option index is invalid or disabled.
	ErrOptionNotFound = errors.New("option not found")
	// ErrInvalidTransition is returned for actions outside an active question window.
	ErrInvalidTransition = errors.New("no active question")
	// ErrEmptySelection is returned when submitting a multi-select with nothing selected.
	ErrEmptySelection = errors.New("select at least one option")
	// ErrBoardExpired is returned for actions on a board issued before a restart or replaced since.
	ErrBoardExpired = errors.New("board expired, request a fresh one")
	// ErrPowerUpNotFound indicates an inventory slot or catalog name that does not exist.
	ErrPowerUpNotFound = errors.New("power-up not found")
	// ErrDuplicatePowerUp is returned when a power-up is already active this turn.
	ErrDuplicatePowerUp = errors.New("one power-up per turn")
	// ErrIneligiblePowerUp is returned when a power-up's precondition is not met.
	ErrIneligiblePowerUp = errors.New("power-up cannot be used on this question")
	// ErrUnknownEffect is returned for an effect kind the engine does not handle.
	ErrUnknownEffect = errors.New("unknown power-up effect")
	// ErrUnsupportedSchema is returned for snapshot records written by a newer schema.
	ErrUnsupportedSchema = errors.New("unsupported snapshot schema version")
)
