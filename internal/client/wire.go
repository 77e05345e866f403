package client

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/lox/pokerclient/internal/deck"
	"github.com/lox/pokerclient/internal/session"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// CardList decodes either a space-separated string ("Ah Kd") or an array
// of codes, and encodes as the string form.
type CardList []deck.Card

func (l *CardList) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*l = nil
		return nil
	}

	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		cards, err := deck.ParseCards(text)
		if err != nil {
			return err
		}
		*l = cards
		return nil
	}

	var codes []string
	if err := json.Unmarshal(data, &codes); err != nil {
		return fmt.Errorf("card list: %w", err)
	}
	cards, err := deck.ParseCards(strings.Join(codes, " "))
	if err != nil {
		return err
	}
	*l = cards
	return nil
}

func (l CardList) MarshalJSON() ([]byte, error) {
	return json.Marshal(deck.FormatCards(l))
}

// WireState is the backend's game state document.
type WireState struct {
	GameID          int             `json:"game_id"`
	Status          string          `json:"status"`
	CurrentPlayer   int             `json:"current_player"`
	MyPosition      *int            `json:"my_position"`
	Players         []WirePlayer    `json:"players"`
	PublicCards     CardList        `json:"public_cards"`
	Pot             int             `json:"pot"`
	LegalActions    []int           `json:"legal_actions"`
	ActionNames     []string        `json:"action_names"`
	IsHandOver      bool            `json:"is_hand_over"`
	IsGameOver      bool            `json:"is_game_over"`
	Round           string          `json:"round"`
	HandNumber      int             `json:"hand_number"`
	DealerPosition  int             `json:"dealer_position"`
	SBPosition      int             `json:"sb_position"`
	BBPosition      int             `json:"bb_position"`
	SmallBlind      int             `json:"small_blind"`
	BigBlind        int             `json:"big_blind"`
	LastAction      *WireLastAction `json:"last_action"`
	PendingAIAction bool            `json:"pending_ai_action"`
	WinnerInfo      *WireWinner     `json:"winner_info"`
	MinRaise        int             `json:"min_raise"`
	MaxRaise        int             `json:"max_raise"`
	CallAmount      int             `json:"call_amount"`
	NoAction        bool            `json:"no_action,omitempty"`
	Error           string          `json:"error,omitempty"`
}

// WirePlayer is one seat in a WireState.
type WirePlayer struct {
	ID         int      `json:"id"`
	Name       string   `json:"name"`
	Position   int      `json:"position"`
	Chips      int      `json:"chips"`
	IsAI       bool     `json:"is_ai"`
	IsActive   bool     `json:"is_active"`
	Hand       CardList `json:"hand"`
	CurrentBet int      `json:"current_bet"`
}

// WireLastAction is the most recent action at the table.
type WireLastAction struct {
	Player     int    `json:"player"`
	Action     int    `json:"action"`
	ActionName string `json:"action_name"`
}

// WireWinner settles a finished hand. PlayerHands is keyed by position.
type WireWinner struct {
	WinnerPosition int                 `json:"winner_position"`
	WinnerName     string              `json:"winner_name"`
	PotWon         int                 `json:"pot_won"`
	Payoffs        []int               `json:"payoffs"`
	PlayerHands    map[string]CardList `json:"player_hands"`
	PublicCards    CardList            `json:"public_cards"`
}

// Envelope wraps mutation responses: {success, game_state, no_action, error}.
type Envelope struct {
	Success   bool       `json:"success"`
	GameState *WireState `json:"game_state,omitempty"`
	NoAction  bool       `json:"no_action,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// ActionRequest is the body of POST /game/{id}/action.
type ActionRequest struct {
	Action int  `json:"action"`
	Amount *int `json:"amount,omitempty"`
}

// CreateRequest is the body of POST /create.
type CreateRequest struct {
	AIDifficulty  string `json:"ai_difficulty"`
	SmallBlind    int    `json:"small_blind"`
	BigBlind      int    `json:"big_blind"`
	BuyIn         int    `json:"buy_in"`
	AIPlayerCount int    `json:"ai_player_count"`
	SecondUserID  *int   `json:"second_user_id,omitempty"`
}

// CreateResponse is the reply to POST /create.
type CreateResponse struct {
	Success bool   `json:"success"`
	GameID  int    `json:"game_id"`
	Error   string `json:"error,omitempty"`
}

// GameSummary is one row of GET /recent.
type GameSummary struct {
	ID           int    `json:"id"`
	Status       string `json:"status"`
	SmallBlind   int    `json:"small_blind"`
	BigBlind     int    `json:"big_blind"`
	AIDifficulty string `json:"ai_difficulty"`
	CreatedAt    string `json:"created_at,omitempty"`
}

// RecentResponse is the reply to GET /recent.
type RecentResponse struct {
	Success bool          `json:"success"`
	Games   []GameSummary `json:"games"`
	Error   string        `json:"error,omitempty"`
}

// TableDefaults are the per-user defaults served by GET /config.
type TableDefaults struct {
	AIDifficulty  string `json:"default_ai_difficulty"`
	SmallBlind    int    `json:"default_small_blind"`
	BigBlind      int    `json:"default_big_blind"`
	BuyIn         int    `json:"default_buy_in"`
	AIPlayerCount int    `json:"ai_player_count"`
	AutoAIPlayers bool   `json:"auto_ai_players"`
}

// ConfigResponse is the reply to GET /config.
type ConfigResponse struct {
	Success bool          `json:"success"`
	Config  TableDefaults `json:"config"`
}

// ToState converts the wire document into a session snapshot.
func (w *WireState) ToState() *session.GameState {
	s := &session.GameState{
		GameID:             w.GameID,
		Status:             w.Status,
		HandNumber:         w.HandNumber,
		Round:              session.ParseRound(w.Round),
		RoundLabel:         w.Round,
		Pot:                w.Pot,
		PublicCards:        []deck.Card(w.PublicCards),
		CurrentPlayerIndex: w.CurrentPlayer,
		DealerPosition:     w.DealerPosition,
		SmallBlindPosition: w.SBPosition,
		BigBlindPosition:   w.BBPosition,
		SmallBlindAmount:   w.SmallBlind,
		BigBlindAmount:     w.BigBlind,
		ActionNames:        append([]string(nil), w.ActionNames...),
		MinRaise:           w.MinRaise,
		MaxRaise:           w.MaxRaise,
		CallAmount:         w.CallAmount,
		IsHandOver:         w.IsHandOver,
		IsGameOver:         w.IsGameOver,
		PendingAIAction:    w.PendingAIAction,
	}
	if w.MyPosition != nil {
		pos := *w.MyPosition
		s.MyPosition = &pos
	}

	s.LegalActions = make([]session.ActionCode, len(w.LegalActions))
	for i, a := range w.LegalActions {
		s.LegalActions[i] = session.ActionCode(a)
	}

	s.Players = make([]session.Player, len(w.Players))
	for i, p := range w.Players {
		s.Players[i] = session.Player{
			ID:         p.ID,
			Position:   p.Position,
			Name:       p.Name,
			Chips:      p.Chips,
			CurrentBet: p.CurrentBet,
			Hand:       []deck.Card(p.Hand),
			IsActive:   p.IsActive,
			IsAI:       p.IsAI,
		}
	}
	sort.SliceStable(s.Players, func(i, j int) bool { return s.Players[i].Position < s.Players[j].Position })

	if la := w.LastAction; la != nil {
		s.LastAction = &session.LastAction{
			Player: la.Player,
			Action: session.ActionCode(la.Action),
			Label:  la.ActionName,
		}
	}

	if wi := w.WinnerInfo; wi != nil {
		info := &session.WinnerInfo{
			WinnerPosition: wi.WinnerPosition,
			WinnerName:     wi.WinnerName,
			PotWon:         wi.PotWon,
			Payoffs:        append([]int(nil), wi.Payoffs...),
			Board:          []deck.Card(wi.PublicCards),
			Hands:          make(map[int][]deck.Card, len(wi.PlayerHands)),
		}
		for key, cards := range wi.PlayerHands {
			pos, err := strconv.Atoi(key)
			if err != nil {
				continue
			}
			info.Hands[pos] = []deck.Card(cards)
		}
		s.WinnerInfo = info
	}

	return s
}

// FromState converts a session snapshot back into its wire form.
func FromState(s *session.GameState) *WireState {
	w := &WireState{
		GameID:          s.GameID,
		Status:          s.Status,
		CurrentPlayer:   s.CurrentPlayerIndex,
		PublicCards:     CardList(s.PublicCards),
		Pot:             s.Pot,
		ActionNames:     append([]string{}, s.ActionNames...),
		IsHandOver:      s.IsHandOver,
		IsGameOver:      s.IsGameOver,
		Round:           s.RoundLabel,
		HandNumber:      s.HandNumber,
		DealerPosition:  s.DealerPosition,
		SBPosition:      s.SmallBlindPosition,
		BBPosition:      s.BigBlindPosition,
		SmallBlind:      s.SmallBlindAmount,
		BigBlind:        s.BigBlindAmount,
		PendingAIAction: s.PendingAIAction,
		MinRaise:        s.MinRaise,
		MaxRaise:        s.MaxRaise,
		CallAmount:      s.CallAmount,
	}
	if w.Round == "" {
		w.Round = s.Round.String()
	}
	if s.MyPosition != nil {
		pos := *s.MyPosition
		w.MyPosition = &pos
	}

	w.LegalActions = make([]int, len(s.LegalActions))
	for i, a := range s.LegalActions {
		w.LegalActions[i] = int(a)
	}

	w.Players = make([]WirePlayer, len(s.Players))
	for i, p := range s.Players {
		w.Players[i] = WirePlayer{
			ID:         p.ID,
			Name:       p.Name,
			Position:   p.Position,
			Chips:      p.Chips,
			IsAI:       p.IsAI,
			IsActive:   p.IsActive,
			Hand:       CardList(p.Hand),
			CurrentBet: p.CurrentBet,
		}
	}

	if la := s.LastAction; la != nil {
		w.LastAction = &WireLastAction{Player: la.Player, Action: int(la.Action), ActionName: la.Label}
	}

	if wi := s.WinnerInfo; wi != nil {
		winner := &WireWinner{
			WinnerPosition: wi.WinnerPosition,
			WinnerName:     wi.WinnerName,
			PotWon:         wi.PotWon,
			Payoffs:        append([]int{}, wi.Payoffs...),
			PublicCards:    CardList(wi.Board),
			PlayerHands:    make(map[string]CardList, len(wi.Hands)),
		}
		for pos, cards := range wi.Hands {
			winner.PlayerHands[strconv.Itoa(pos)] = CardList(cards)
		}
		w.WinnerInfo = winner
	}

	return w
}
