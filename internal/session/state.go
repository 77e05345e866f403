// Package session drives one poker table from the client side: it holds the
// last authoritative snapshot, validates human actions against it, schedules
// AI steps and background polls, and talks to the backend through a Backend.
package session

import (
	"fmt"
	"strings"

	"github.com/lox/pokerclient/internal/deck"
)

// ActionCode is a server-assigned action tag. The client never derives
// meaning from the number beyond what a snapshot declares.
type ActionCode int

// Round is the betting round of a hand.
type Round int

const (
	RoundUnknown Round = iota
	RoundPreflop
	RoundFlop
	RoundTurn
	RoundRiver
	RoundShowdown
)

func (r Round) String() string {
	switch r {
	case RoundPreflop:
		return "preflop"
	case RoundFlop:
		return "flop"
	case RoundTurn:
		return "turn"
	case RoundRiver:
		return "river"
	case RoundShowdown:
		return "showdown"
	default:
		return "unknown"
	}
}

// roundLabels maps every label the backend has been seen to send.
var roundLabels = map[string]Round{
	"preflop":  RoundPreflop,
	"pre-flop": RoundPreflop,
	"flop":     RoundFlop,
	"turn":     RoundTurn,
	"river":    RoundRiver,
	"showdown": RoundShowdown,
	"settle":   RoundShowdown,
	"翻牌前":      RoundPreflop,
	"翻牌":       RoundFlop,
	"转牌":       RoundTurn,
	"河牌":       RoundRiver,
	"结算":       RoundShowdown,
}

// ParseRound maps a round label to a Round. Unknown labels yield RoundUnknown.
func ParseRound(label string) Round {
	return roundLabels[strings.ToLower(strings.TrimSpace(label))]
}

// TurnKey identifies a decision point: who is to act in which hand.
type TurnKey struct {
	Player int
	Hand   int
}

func (k TurnKey) String() string {
	return fmt.Sprintf("hand %d seat %d", k.Hand, k.Player)
}

// Player is one seat at the table.
type Player struct {
	ID         int
	Position   int
	Name       string
	Chips      int
	CurrentBet int
	Hand       []deck.Card
	IsActive   bool
	IsAI       bool
}

// Concealed reports whether the player's hole cards are hidden from us.
func (p Player) Concealed() bool {
	if len(p.Hand) == 0 {
		return true
	}
	for _, c := range p.Hand {
		if !c.Hidden {
			return false
		}
	}
	return true
}

// LastAction is the most recent action taken at the table.
type LastAction struct {
	Player int
	Action ActionCode
	Label  string
}

// WinnerInfo describes how a finished hand was settled.
type WinnerInfo struct {
	WinnerPosition int
	WinnerName     string
	PotWon         int
	Hands          map[int][]deck.Card
	Payoffs        []int
	Board          []deck.Card
}

// GameState is an immutable snapshot of the table as reported by the
// backend. Snapshots are replaced whole; nothing patches one in place.
type GameState struct {
	GameID             int
	Status             string
	HandNumber         int
	Round              Round
	RoundLabel         string
	Pot                int
	PublicCards        []deck.Card
	Players            []Player
	CurrentPlayerIndex int
	MyPosition         *int
	DealerPosition     int
	SmallBlindPosition int
	BigBlindPosition   int
	SmallBlindAmount   int
	BigBlindAmount     int
	LegalActions       []ActionCode
	ActionNames        []string
	MinRaise           int
	MaxRaise           int
	CallAmount         int
	IsHandOver         bool
	IsGameOver         bool
	PendingAIAction    bool
	LastAction         *LastAction
	WinnerInfo         *WinnerInfo
}

// IsMyTurn reports whether the local user is to act.
func (s *GameState) IsMyTurn() bool {
	return s.MyPosition != nil && s.CurrentPlayerIndex == *s.MyPosition && !s.IsHandOver
}

// TurnKey returns the decision point this snapshot is waiting on.
func (s *GameState) TurnKey() TurnKey {
	return TurnKey{Player: s.CurrentPlayerIndex, Hand: s.HandNumber}
}

// CurrentActor returns the seat that is to act, if any.
func (s *GameState) CurrentActor() (Player, bool) {
	return s.PlayerAt(s.CurrentPlayerIndex)
}

// PlayerAt returns the player seated at position.
func (s *GameState) PlayerAt(position int) (Player, bool) {
	for _, p := range s.Players {
		if p.Position == position {
			return p, true
		}
	}
	return Player{}, false
}

// Me returns the local user's seat, if seated.
func (s *GameState) Me() (Player, bool) {
	if s.MyPosition == nil {
		return Player{}, false
	}
	return s.PlayerAt(*s.MyPosition)
}

// ActionLabel returns the server-supplied label for code, falling back to
// a generic label when the snapshot carries none.
func (s *GameState) ActionLabel(code ActionCode) string {
	for i, c := range s.LegalActions {
		if c == code && i < len(s.ActionNames) && s.ActionNames[i] != "" {
			return s.ActionNames[i]
		}
	}
	return fmt.Sprintf("action %d", int(code))
}

// HasAction reports whether code is among the legal actions.
func (s *GameState) HasAction(code ActionCode) bool {
	for _, c := range s.LegalActions {
		if c == code {
			return true
		}
	}
	return false
}

// Check verifies the structural invariants every snapshot must satisfy:
// while a hand is running exactly one seat is to act and at least one
// action is legal.
func (s *GameState) Check() error {
	if s.IsHandOver || s.IsGameOver {
		return nil
	}
	matches := 0
	for _, p := range s.Players {
		if p.Position == s.CurrentPlayerIndex {
			matches++
		}
	}
	if matches != 1 {
		return fmt.Errorf("%d seats match current player %d", matches, s.CurrentPlayerIndex)
	}
	if len(s.LegalActions) == 0 {
		return fmt.Errorf("no legal actions while hand %d is running", s.HandNumber)
	}
	return nil
}
