package session

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/lox/pokerclient/internal/deck"
)

func testLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel})
}

func seat(n int) *int {
	return &n
}

func amount(n int) *int {
	return &n
}

func testContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

// tableState builds a running four-handed hand with the local user at
// position 2.
func tableState(hand, current int) *GameState {
	players := make([]Player, 4)
	for i := range players {
		players[i] = Player{
			ID:       i + 1,
			Position: i,
			Name:     []string{"alice", "bob", "me", "dave"}[i],
			Chips:    1000,
			Hand:     []deck.Card{deck.Unknown, deck.Unknown},
			IsActive: true,
			IsAI:     i != 2,
		}
	}
	players[2].Hand = deck.MustParseCards("Ah Kd")

	return &GameState{
		GameID:             7,
		Status:             "playing",
		HandNumber:         hand,
		Round:              RoundPreflop,
		RoundLabel:         "preflop",
		Pot:                30,
		Players:            players,
		CurrentPlayerIndex: current,
		MyPosition:         seat(2),
		SmallBlindAmount:   10,
		BigBlindAmount:     20,
		LegalActions:       []ActionCode{0, 1, 4, 5},
		ActionNames:        []string{"fold", "call", "all in", "raise"},
		MinRaise:           20,
		MaxRaise:           500,
		CallAmount:         20,
		PendingAIAction:    current != 2,
	}
}

func withRound(s *GameState, r Round) *GameState {
	c := *s
	c.Round = r
	c.RoundLabel = r.String()
	return &c
}

func handOver(s *GameState, winner, pot int, gameOver bool) *GameState {
	c := *s
	c.IsHandOver = true
	c.IsGameOver = gameOver
	c.Status = "hand_over"
	if gameOver {
		c.Status = "game_over"
	}
	c.CurrentPlayerIndex = -1
	c.LegalActions = nil
	c.ActionNames = nil
	c.PendingAIAction = false
	c.WinnerInfo = &WinnerInfo{WinnerPosition: winner, PotWon: pot}
	return &c
}

func folded(s *GameState, position, next int) *GameState {
	c := *s
	c.Players = append([]Player(nil), s.Players...)
	c.Players[position].IsActive = false
	c.CurrentPlayerIndex = next
	c.PendingAIAction = next != 2
	c.LastAction = &LastAction{Player: position, Action: 0, Label: "fold"}
	return &c
}

// fakeBackend is a scripted Backend. Unset hooks fall back to returning
// the current state.
type fakeBackend struct {
	mu sync.Mutex

	state    *GameState
	fetchErr error

	onAction  func(code ActionCode, amount *int) (*GameState, error)
	onStep    func() (*GameState, bool, error)
	onNewHand func() (*GameState, error)

	fetches  int
	actions  int
	steps    int
	newHands int
	codes    []ActionCode
}

func newFakeBackend(state *GameState) *fakeBackend {
	return &fakeBackend{state: state}
}

func (f *fakeBackend) set(state *GameState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = state
}

func (f *fakeBackend) FetchState(context.Context, int) (*GameState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.state, nil
}

func (f *fakeBackend) SubmitAction(_ context.Context, _ int, code ActionCode, amount *int) (*GameState, error) {
	f.mu.Lock()
	f.actions++
	f.codes = append(f.codes, code)
	hook := f.onAction
	f.mu.Unlock()

	if hook == nil {
		return f.current(), nil
	}
	state, err := hook(code, amount)
	if err == nil {
		f.set(state)
	}
	return state, err
}

func (f *fakeBackend) StepAI(context.Context, int) (*GameState, bool, error) {
	f.mu.Lock()
	f.steps++
	hook := f.onStep
	f.mu.Unlock()

	if hook == nil {
		return nil, true, nil
	}
	state, noAction, err := hook()
	if err == nil && !noAction {
		f.set(state)
	}
	return state, noAction, err
}

func (f *fakeBackend) NewHand(context.Context, int) (*GameState, error) {
	f.mu.Lock()
	f.newHands++
	hook := f.onNewHand
	f.mu.Unlock()

	if hook == nil {
		return f.current(), nil
	}
	state, err := hook()
	if err == nil {
		f.set(state)
	}
	return state, err
}

func (f *fakeBackend) current() *GameState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeBackend) counts() (fetches, actions, steps, newHands int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches, f.actions, f.steps, f.newHands
}
