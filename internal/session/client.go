package session

import (
	"context"
	"errors"

	"github.com/charmbracelet/log"
)

// Backend is the remote game service. Every call returns a full snapshot
// or an error: ErrTransient, ErrInvalidSession, ErrUnauthorized or a
// *RejectionError.
type Backend interface {
	FetchState(ctx context.Context, gameID int) (*GameState, error)
	SubmitAction(ctx context.Context, gameID int, action ActionCode, amount *int) (*GameState, error)
	// StepAI asks the backend to play the pending AI seat. noAction is true
	// when the backend had nothing to do, in which case state may be stale.
	StepAI(ctx context.Context, gameID int) (state *GameState, noAction bool, err error)
	NewHand(ctx context.Context, gameID int) (*GameState, error)
}

// Client binds a Backend to one game and feeds every response into a
// Store, stamped with the sequence number taken when the request was
// issued.
type Client struct {
	backend Backend
	store   *Store
	gameID  int
	logger  *log.Logger
}

// NewClient creates a client for gameID.
func NewClient(backend Backend, store *Store, gameID int, logger *log.Logger) *Client {
	return &Client{
		backend: backend,
		store:   store,
		gameID:  gameID,
		logger:  logger.WithPrefix("client").With("game", gameID),
	}
}

// GameID returns the game this client is bound to.
func (c *Client) GameID() int {
	return c.gameID
}

// FetchState loads the authoritative snapshot.
func (c *Client) FetchState(ctx context.Context) (*GameState, error) {
	return c.fetch(ctx, c.store.Begin())
}

// SubmitAction sends a human action. On a rejection or a transient failure
// the snapshot is re-fetched before the error is returned.
func (c *Client) SubmitAction(ctx context.Context, action ActionCode, amount *int) (*GameState, error) {
	return c.submit(ctx, c.store.Begin(), action, amount)
}

// TriggerAI asks the backend to play the pending AI seat. When the backend
// reports nothing to do the snapshot is re-fetched instead.
func (c *Client) TriggerAI(ctx context.Context) (*GameState, error) {
	return c.stepAI(ctx, c.store.Begin())
}

// StartNewHand asks the backend to deal the next hand.
func (c *Client) StartNewHand(ctx context.Context) (*GameState, error) {
	return c.newHand(ctx, c.store.Begin())
}

func (c *Client) fetch(ctx context.Context, seq uint64) (*GameState, error) {
	state, err := c.backend.FetchState(ctx, c.gameID)
	if err != nil {
		c.logger.Debug("Fetch failed", "seq", seq, "error", err)
		return nil, err
	}
	c.apply(seq, state)
	return state, nil
}

func (c *Client) submit(ctx context.Context, seq uint64, action ActionCode, amount *int) (*GameState, error) {
	c.logger.Info("Submitting action", "action", int(action), "amount", amount, "seq", seq)

	state, err := c.backend.SubmitAction(ctx, c.gameID, action, amount)
	if err != nil {
		c.recover(ctx, "action", err)
		return nil, err
	}
	c.apply(seq, state)
	return state, nil
}

func (c *Client) stepAI(ctx context.Context, seq uint64) (*GameState, error) {
	state, noAction, err := c.backend.StepAI(ctx, c.gameID)
	if err != nil {
		return nil, err
	}
	if noAction {
		c.logger.Debug("AI step was a no-op, refetching", "seq", seq)
		return c.fetch(ctx, c.store.Begin())
	}
	c.apply(seq, state)
	return state, nil
}

func (c *Client) newHand(ctx context.Context, seq uint64) (*GameState, error) {
	c.logger.Info("Requesting new hand", "seq", seq)

	state, err := c.backend.NewHand(ctx, c.gameID)
	if err != nil {
		c.recover(ctx, "new hand", err)
		return nil, err
	}
	c.apply(seq, state)
	return state, nil
}

// recover re-fetches after a failed mutation whose outcome is unknown.
func (c *Client) recover(ctx context.Context, what string, err error) {
	var rejection *RejectionError
	if !errors.As(err, &rejection) && !errors.Is(err, ErrTransient) {
		return
	}
	c.logger.Warn("Request failed, refetching", "request", what, "error", err)
	if _, ferr := c.fetch(ctx, c.store.Begin()); ferr != nil {
		c.logger.Warn("Refetch failed", "error", ferr)
	}
}

func (c *Client) apply(seq uint64, state *GameState) {
	if !c.store.Apply(seq, state) {
		c.logger.Debug("Response not applied", "seq", seq, "hand", state.HandNumber)
	}
}
