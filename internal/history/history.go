// Package history keeps a per-game record of finished hands on disk.
package history

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/lox/pokerclient/internal/deck"
	"github.com/lox/pokerclient/internal/fileutil"
	"github.com/lox/pokerclient/internal/session"
)

// Seat is a player as they stood when the hand ended.
type Seat struct {
	Position int    `json:"position"`
	Name     string `json:"name"`
	Chips    int    `json:"chips"`
	IsAI     bool   `json:"is_ai"`
}

// Hand is one finished hand.
type Hand struct {
	Number         int               `json:"hand"`
	BigBlind       int               `json:"big_blind,omitempty"`
	Board          string            `json:"board"`
	WinnerPosition int               `json:"winner_position"`
	WinnerName     string            `json:"winner_name"`
	PotWon         int               `json:"pot_won"`
	Payoffs        []int             `json:"payoffs,omitempty"`
	Shown          map[string]string `json:"shown,omitempty"`
	Seats          []Seat            `json:"seats"`
	GameOver       bool              `json:"game_over,omitempty"`
	RecordedAt     time.Time         `json:"recorded_at"`
}

// Game is everything recorded for one game id.
type Game struct {
	GameID    int       `json:"game_id"`
	Hands     []Hand    `json:"hands"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Recorder appends finished hands to <dir>/game-<id>.json. Each hand
// number is recorded once however many snapshots repeat it.
type Recorder struct {
	dir    string
	clock  quartz.Clock
	logger *log.Logger

	mu    sync.Mutex
	games map[int]*Game
}

// NewRecorder creates a recorder writing under dir.
func NewRecorder(dir string, clock quartz.Clock, logger *log.Logger) *Recorder {
	return &Recorder{
		dir:    dir,
		clock:  clock,
		logger: logger.WithPrefix("history"),
		games:  make(map[int]*Game),
	}
}

// Path returns the file for gameID.
func (r *Recorder) Path(gameID int) string {
	return filepath.Join(r.dir, fmt.Sprintf("game-%d.json", gameID))
}

// Observe records state if it settles a hand. Suitable as a store
// subscriber; failures are logged.
func (r *Recorder) Observe(state *session.GameState) {
	if _, err := r.Record(state); err != nil {
		r.logger.Warn("Failed to record hand", "game", state.GameID, "hand", state.HandNumber, "error", err)
	}
}

// Record appends the settled hand in state. It reports whether anything
// was written.
func (r *Recorder) Record(state *session.GameState) (bool, error) {
	if state == nil || !state.IsHandOver || state.WinnerInfo == nil {
		return false, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	game, err := r.load(state.GameID)
	if err != nil {
		return false, err
	}
	for _, h := range game.Hands {
		if h.Number == state.HandNumber {
			return false, nil
		}
	}

	game.Hands = append(game.Hands, handFrom(state, r.clock.Now()))
	sort.Slice(game.Hands, func(i, j int) bool { return game.Hands[i].Number < game.Hands[j].Number })
	game.UpdatedAt = r.clock.Now()

	if err := fileutil.WriteJSONAtomic(r.Path(state.GameID), game, 0o644); err != nil {
		return false, err
	}
	r.logger.Info("Recorded hand", "game", state.GameID, "hand", state.HandNumber, "winner", state.WinnerInfo.WinnerName)
	return true, nil
}

// Load returns what has been recorded for gameID.
func (r *Recorder) Load(gameID int) (*Game, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	game, err := r.load(gameID)
	if err != nil {
		return nil, err
	}
	clone := *game
	clone.Hands = append([]Hand(nil), game.Hands...)
	return &clone, nil
}

func (r *Recorder) load(gameID int) (*Game, error) {
	if game, ok := r.games[gameID]; ok {
		return game, nil
	}

	game := &Game{GameID: gameID}
	if _, err := fileutil.ReadJSON(r.Path(gameID), game); err != nil {
		return nil, err
	}
	r.games[gameID] = game
	return game, nil
}

func handFrom(state *session.GameState, now time.Time) Hand {
	w := state.WinnerInfo

	board := w.Board
	if len(board) == 0 {
		board = state.PublicCards
	}

	h := Hand{
		Number:         state.HandNumber,
		BigBlind:       state.BigBlindAmount,
		Board:          deck.FormatCards(board),
		WinnerPosition: w.WinnerPosition,
		WinnerName:     w.WinnerName,
		PotWon:         w.PotWon,
		Payoffs:        append([]int(nil), w.Payoffs...),
		GameOver:       state.IsGameOver,
		RecordedAt:     now,
	}

	if len(w.Hands) > 0 {
		h.Shown = make(map[string]string, len(w.Hands))
		for pos, cards := range w.Hands {
			if len(cards) == 0 {
				continue
			}
			h.Shown[strconv.Itoa(pos)] = deck.FormatCards(cards)
		}
	}

	for _, p := range state.Players {
		h.Seats = append(h.Seats, Seat{Position: p.Position, Name: p.Name, Chips: p.Chips, IsAI: p.IsAI})
	}
	return h
}
