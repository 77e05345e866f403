package session

import (
	"errors"
	"fmt"
)

var (
	// ErrTransient indicates the backend could not be reached or timed out.
	// The next scheduled poll recovers.
	ErrTransient = errors.New("session: transient network failure")

	// ErrInvalidSession indicates the game id is unknown or not accessible.
	// It is terminal for the session.
	ErrInvalidSession = errors.New("session: invalid session")

	// ErrUnauthorized indicates the backend wants a fresh login.
	ErrUnauthorized = errors.New("session: unauthorized")

	// ErrInvalidAction indicates the action code is not legal in the held snapshot.
	ErrInvalidAction = errors.New("session: invalid action")

	// ErrInvalidAmount indicates a raise amount outside bounds or off the step grid.
	ErrInvalidAmount = errors.New("session: invalid amount")

	// ErrNotYourTurn indicates the local user is not the seat to act.
	ErrNotYourTurn = errors.New("session: not your turn")

	// ErrTurnInFlight indicates a request for this turn is already outstanding.
	ErrTurnInFlight = errors.New("session: request for this turn already in flight")

	// ErrHandInProgress indicates a new hand was requested before the current one ended.
	ErrHandInProgress = errors.New("session: hand in progress")

	// ErrGameOver indicates the table has been dissolved.
	ErrGameOver = errors.New("session: game over")

	// ErrClosed indicates the session has been closed.
	ErrClosed = errors.New("session: closed")

	// ErrNoState indicates no snapshot has been loaded yet.
	ErrNoState = errors.New("session: no state loaded")
)

// RejectionError is a server-side refusal of a request the client
// considered valid. The held snapshot must not be trusted afterwards.
type RejectionError struct {
	Message string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("server rejected request: %s", e.Message)
}

// ValidationError describes why the gate refused an action locally.
type ValidationError struct {
	Kind   error
	Code   ActionCode
	Amount int
	Min    int
	Max    int
	Step   int
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Kind == ErrInvalidAmount {
		return fmt.Sprintf("invalid raise amount %d: %s (range %d-%d, step %d)", e.Amount, e.Reason, e.Min, e.Max, e.Step)
	}
	return fmt.Sprintf("invalid action %d: %s", int(e.Code), e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Kind
}

// NoticeKind classifies the banner shown to the user.
type NoticeKind string

const (
	NoticeTransient       NoticeKind = "transient"
	NoticeInvalidAction   NoticeKind = "invalid_action"
	NoticeInvalidAmount   NoticeKind = "invalid_amount"
	NoticeServerRejection NoticeKind = "server_rejection"
	NoticeInvalidSession  NoticeKind = "invalid_session"
	NoticeUnauthorized    NoticeKind = "unauthorized"
)

// classify maps an error to the banner kind it should raise. Errors that
// are not user-visible return "".
func classify(err error) NoticeKind {
	var rejection *RejectionError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &rejection):
		return NoticeServerRejection
	case errors.Is(err, ErrInvalidAmount):
		return NoticeInvalidAmount
	case errors.Is(err, ErrInvalidAction), errors.Is(err, ErrNotYourTurn), errors.Is(err, ErrTurnInFlight),
		errors.Is(err, ErrHandInProgress), errors.Is(err, ErrGameOver):
		return NoticeInvalidAction
	case errors.Is(err, ErrInvalidSession):
		return NoticeInvalidSession
	case errors.Is(err, ErrUnauthorized):
		return NoticeUnauthorized
	case errors.Is(err, ErrClosed):
		return ""
	default:
		return NoticeTransient
	}
}
