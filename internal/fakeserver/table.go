package fakeserver

import (
	"errors"
	"fmt"
	rand "math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/paulhankin/poker"

	"github.com/lox/pokerclient/internal/client"
	"github.com/lox/pokerclient/internal/deck"
	"github.com/lox/pokerclient/internal/randutil"
)

// Action codes served by the fake backend.
const (
	ActFold      = 0
	ActCheckCall = 1
	ActRaiseHalf = 2
	ActRaisePot  = 3
	ActAllIn     = 4
	ActRaiseTo   = 5
)

const (
	streetPreflop = iota
	streetFlop
	streetTurn
	streetRiver
	streetShowdown
)

var streetLabels = []string{"preflop", "flop", "turn", "river", "showdown"}

var errNotAvailable = errors.New("action not available")

type seat struct {
	pos    int
	name   string
	userID int
	isAI   bool

	chips      int
	startChips int
	hole       []deck.Card

	bet    int // this street
	total  int // this hand
	folded bool
	allIn  bool
	acted  bool
	out    bool // not dealt in
}

func (s *seat) live() bool {
	return !s.out && !s.folded
}

func (s *seat) canAct() bool {
	return s.live() && !s.allIn
}

// Table is one in-memory game.
type Table struct {
	mu sync.Mutex

	id         int
	owner      int
	status     string
	difficulty string
	sb, bb     int
	createdAt  time.Time

	rng   *rand.Rand
	deck  *deck.Deck
	seats []*seat

	board      []deck.Card
	street     int
	current    int
	dealer     int
	sbPos      int
	bbPos      int
	currentBet int
	minRaise   int
	hand       int
	handOver   bool
	gameOver   bool
	lastAction *client.WireLastAction
	winner     *client.WireWinner
}

// TableOptions describe a new table.
type TableOptions struct {
	ID         int
	Owner      int
	Humans     []Human
	AIPlayers  int
	Difficulty string
	SmallBlind int
	BigBlind   int
	BuyIn      int
	Seed       int64
	CreatedAt  time.Time
}

// Human is a seated user.
type Human struct {
	UserID int
	Name   string
}

// NewTable seats the humans first, then the AI players, and deals the
// first hand.
func NewTable(opts TableOptions) *Table {
	rng := randutil.New(opts.Seed)
	t := &Table{
		id:         opts.ID,
		owner:      opts.Owner,
		status:     "waiting",
		difficulty: opts.Difficulty,
		sb:         opts.SmallBlind,
		bb:         opts.BigBlind,
		createdAt:  opts.CreatedAt,
		rng:        rng,
		deck:       deck.NewDeck(rng),
		current:    -1,
		dealer:     -1,
	}

	for _, h := range opts.Humans {
		t.seats = append(t.seats, &seat{pos: len(t.seats), name: h.Name, userID: h.UserID, chips: opts.BuyIn})
	}
	for i := 0; i < opts.AIPlayers; i++ {
		t.seats = append(t.seats, &seat{pos: len(t.seats), name: fmt.Sprintf("bot-%d", i+1), isAI: true, chips: opts.BuyIn})
	}

	t.startHand()
	return t
}

// ID returns the table id.
func (t *Table) ID() int {
	return t.id
}

func (t *Table) seatOf(userID int) *seat {
	for _, s := range t.seats {
		if !s.isAI && s.userID == userID {
			return s
		}
	}
	return nil
}

// next returns the first seat after pos (wrapping) matching ok, or -1.
func (t *Table) next(pos int, ok func(*seat) bool) int {
	n := len(t.seats)
	for i := 1; i <= n; i++ {
		s := t.seats[((pos+i)%n+n)%n]
		if ok(s) {
			return s.pos
		}
	}
	return -1
}

func (t *Table) startHand() {
	t.hand++
	t.status = "playing"
	t.handOver = false
	t.winner = nil
	t.lastAction = nil
	t.board = nil
	t.street = streetPreflop
	t.deck.Reset()

	for _, s := range t.seats {
		s.startChips = s.chips
		s.hole = nil
		s.bet, s.total = 0, 0
		s.folded, s.allIn, s.acted = false, false, false
		s.out = s.chips <= 0
	}

	dealt := func(s *seat) bool { return !s.out }
	t.dealer = t.next(t.dealer, dealt)
	if t.countSeats(dealt) == 2 {
		t.sbPos = t.dealer
	} else {
		t.sbPos = t.next(t.dealer, dealt)
	}
	t.bbPos = t.next(t.sbPos, dealt)

	t.put(t.seats[t.sbPos], t.sb)
	t.put(t.seats[t.bbPos], t.bb)
	t.currentBet = t.bb
	t.minRaise = t.bb

	for _, s := range t.seats {
		if !s.out {
			s.hole = t.deck.DealN(2)
		}
	}

	t.current = t.next(t.bbPos, (*seat).canAct)
	t.progress()
}

func (t *Table) countSeats(ok func(*seat) bool) int {
	n := 0
	for _, s := range t.seats {
		if ok(s) {
			n++
		}
	}
	return n
}

// put moves up to amount chips from s into the pot.
func (t *Table) put(s *seat, amount int) {
	if amount > s.chips {
		amount = s.chips
	}
	s.chips -= amount
	s.bet += amount
	s.total += amount
	if s.chips == 0 {
		s.allIn = true
	}
}

func (t *Table) pot() int {
	total := 0
	for _, s := range t.seats {
		total += s.total
	}
	return total
}

// raiseBounds returns the raise-to range for s, or ok=false when s cannot
// make a full raise.
func (t *Table) raiseBounds(s *seat) (lo, hi int, ok bool) {
	if t.countSeats(func(o *seat) bool { return o != s && o.canAct() }) == 0 {
		return 0, 0, false
	}
	lo = t.currentBet + t.minRaise
	hi = s.bet + s.chips
	if hi < lo {
		return 0, 0, false
	}
	return lo, hi, true
}

func (t *Table) legal(s *seat) []int {
	actions := []int{ActFold, ActCheckCall}
	if _, _, ok := t.raiseBounds(s); ok {
		actions = append(actions, ActRaiseHalf, ActRaisePot, ActRaiseTo)
	}
	if s.chips > 0 {
		actions = append(actions, ActAllIn)
	}
	return actions
}

func (t *Table) actionName(s *seat, code int) string {
	switch code {
	case ActFold:
		return "fold"
	case ActCheckCall:
		if toCall := t.currentBet - s.bet; toCall > 0 {
			return fmt.Sprintf("call %d", min(toCall, s.chips))
		}
		return "check"
	case ActRaiseHalf:
		return "raise ½ pot"
	case ActRaisePot:
		return "raise pot"
	case ActAllIn:
		return "all in"
	case ActRaiseTo:
		return "raise"
	default:
		return fmt.Sprintf("action %d", code)
	}
}

func contains(actions []int, code int) bool {
	for _, a := range actions {
		if a == code {
			return true
		}
	}
	return false
}

// act applies code for the seat to act. amount is the raise-to total for
// ActRaiseTo and is clamped into bounds.
func (t *Table) act(s *seat, code int, amount *int) error {
	legal := t.legal(s)
	if !contains(legal, code) {
		switch {
		case (code == ActRaiseHalf || code == ActRaisePot || code == ActRaiseTo) && contains(legal, ActAllIn):
			code = ActAllIn
		default:
			return fmt.Errorf("%w: %d", errNotAvailable, code)
		}
	}

	label := t.actionName(s, code)
	switch code {
	case ActFold:
		s.folded = true
	case ActCheckCall:
		t.put(s, t.currentBet-s.bet)
	case ActAllIn:
		t.raiseTo(s, s.bet+s.chips)
	default:
		lo, hi, _ := t.raiseBounds(s)
		target := t.pot() / 2
		switch {
		case code == ActRaisePot:
			target = t.pot()
		case code == ActRaiseTo && amount != nil:
			target = *amount
		}
		target = max(lo, min(target, hi))
		t.raiseTo(s, target)
		label = fmt.Sprintf("raise to %d", target)
	}

	s.acted = true
	t.lastAction = &client.WireLastAction{Player: s.pos, Action: code, ActionName: label}
	t.progress()
	return nil
}

func (t *Table) raiseTo(s *seat, total int) {
	t.put(s, total-s.bet)
	if s.bet <= t.currentBet {
		return
	}
	if inc := s.bet - t.currentBet; inc >= t.minRaise {
		t.minRaise = inc
	}
	t.currentBet = s.bet
	for _, o := range t.seats {
		if o != s {
			o.acted = false
		}
	}
}

// progress moves the action on, deals streets and settles the hand.
func (t *Table) progress() {
	for {
		live := t.countSeats((*seat).live)
		if live <= 1 {
			t.finish()
			return
		}

		if pos, ok := t.nextToAct(); ok {
			t.current = pos
			return
		}

		if t.street == streetRiver {
			t.finish()
			return
		}
		t.nextStreet()
	}
}

// nextToAct finds who still owes a decision on this street.
func (t *Table) nextToAct() (int, bool) {
	owes := func(s *seat) bool {
		return s.canAct() && (!s.acted || s.bet < t.currentBet)
	}
	if t.countSeats((*seat).canAct) == 1 {
		// a lone player with chips only acts if facing a bet
		for _, s := range t.seats {
			if s.canAct() && s.bet < t.currentBet {
				return s.pos, true
			}
		}
		return -1, false
	}
	start := t.current
	if start < 0 || start >= len(t.seats) {
		start = t.dealer
	}
	if owes(t.seats[start]) {
		return start, true
	}
	if pos := t.next(start, owes); pos >= 0 {
		return pos, true
	}
	return -1, false
}

func (t *Table) nextStreet() {
	t.street++
	for _, s := range t.seats {
		s.bet = 0
		s.acted = false
	}
	t.currentBet = 0
	t.minRaise = t.bb

	switch t.street {
	case streetFlop:
		t.board = append(t.board, t.deck.DealN(3)...)
	case streetTurn, streetRiver:
		t.board = append(t.board, t.deck.DealN(1)...)
	}
	t.current = t.next(t.dealer, (*seat).canAct)
}

// finish settles the pot, side pots included, and ends the hand.
func (t *Table) finish() {
	t.current = -1
	t.handOver = true
	t.street = streetShowdown

	winnings := t.settle()

	winner := &client.WireWinner{
		WinnerPosition: -1,
		PublicCards:    client.CardList(t.board),
		PlayerHands:    make(map[string]client.CardList),
	}
	best := 0
	for _, s := range t.seats {
		won := winnings[s.pos]
		s.chips += won
		if won > best {
			best = won
			winner.WinnerPosition = s.pos
			winner.WinnerName = s.name
			winner.PotWon = won
		}
		winner.PlayerHands[fmt.Sprint(s.pos)] = client.CardList(s.hole)
		winner.Payoffs = append(winner.Payoffs, s.chips-s.startChips)
	}
	t.winner = winner

	for _, s := range t.seats {
		if s.chips <= 0 {
			t.gameOver = true
		}
	}
	if t.gameOver {
		t.status = "finished"
	}
}

// settle splits every contribution level among the best eligible hands.
func (t *Table) settle() map[int]int {
	winnings := make(map[int]int)

	live := make([]*seat, 0, len(t.seats))
	for _, s := range t.seats {
		if s.live() {
			live = append(live, s)
		}
	}
	if len(live) == 1 {
		winnings[live[0].pos] = t.pot()
		return winnings
	}

	// run the board out for all-in showdowns
	if need := 5 - len(t.board); need > 0 {
		t.board = append(t.board, t.deck.DealN(need)...)
	}

	scores := make(map[int]int16, len(live))
	for _, s := range live {
		scores[s.pos] = score(s.hole, t.board)
	}

	remaining := make(map[int]int, len(t.seats))
	for _, s := range t.seats {
		remaining[s.pos] = s.total
	}

	for {
		level := 0
		for _, amt := range remaining {
			if amt > 0 && (level == 0 || amt < level) {
				level = amt
			}
		}
		if level == 0 {
			break
		}

		slice := 0
		var eligible []*seat
		for _, s := range t.seats {
			take := min(remaining[s.pos], level)
			slice += take
			remaining[s.pos] -= take
			if take == level && s.live() {
				eligible = append(eligible, s)
			}
		}
		if len(eligible) == 0 {
			// only folded money left at this level
			eligible = live
		}

		sort.SliceStable(eligible, func(i, j int) bool { return scores[eligible[i].pos] > scores[eligible[j].pos] })
		top := scores[eligible[0].pos]
		var winners []*seat
		for _, s := range eligible {
			if scores[s.pos] == top {
				winners = append(winners, s)
			}
		}

		share := slice / len(winners)
		for i, w := range winners {
			winnings[w.pos] += share
			if i == 0 {
				winnings[w.pos] += slice - share*len(winners)
			}
		}
	}
	return winnings
}

// score ranks two hole cards plus a five-card board; higher is better.
func score(hole, board []deck.Card) int16 {
	var hand [7]poker.Card
	for i, c := range append(append([]deck.Card{}, board...), hole...) {
		if i >= len(hand) {
			break
		}
		hand[i] = toPokerCard(c)
	}
	return poker.Eval7(&hand)
}

func toPokerCard(c deck.Card) poker.Card {
	// clubs, diamonds, hearts, spades
	var suit poker.Suit
	switch c.Suit {
	case deck.Clubs:
		suit = poker.Suit(0)
	case deck.Diamonds:
		suit = poker.Suit(1)
	case deck.Hearts:
		suit = poker.Suit(2)
	default:
		suit = poker.Suit(3)
	}
	rank := poker.Rank(c.Rank)
	if c.Rank == deck.Ace {
		rank = 1
	}
	card, err := poker.MakeCard(suit, rank)
	if err != nil {
		panic(fmt.Sprintf("card %s: %v", c.Code(), err))
	}
	return card
}

// pendingAI reports whether the seat to act is an AI.
func (t *Table) pendingAI() bool {
	return !t.handOver && t.current >= 0 && t.seats[t.current].isAI
}

// snapshot renders the table for userID.
func (t *Table) snapshot(userID int) *client.WireState {
	w := &client.WireState{
		GameID:          t.id,
		Status:          t.wireStatus(),
		CurrentPlayer:   t.current,
		PublicCards:     client.CardList(t.board),
		Pot:             t.pot(),
		IsHandOver:      t.handOver,
		IsGameOver:      t.gameOver,
		Round:           streetLabels[t.street],
		HandNumber:      t.hand,
		DealerPosition:  t.dealer,
		SBPosition:      t.sbPos,
		BBPosition:      t.bbPos,
		SmallBlind:      t.sb,
		BigBlind:        t.bb,
		LastAction:      t.lastAction,
		PendingAIAction: t.pendingAI(),
		LegalActions:    []int{},
		ActionNames:     []string{},
	}
	if t.handOver {
		w.WinnerInfo = t.winner
	}

	me := t.seatOf(userID)
	if me != nil {
		pos := me.pos
		w.MyPosition = &pos
	}

	for _, s := range t.seats {
		hand := client.CardList{deck.Unknown, deck.Unknown}
		switch {
		case s.out:
			hand = nil
		case t.handOver || s == me:
			hand = client.CardList(s.hole)
		}
		w.Players = append(w.Players, client.WirePlayer{
			ID:         s.pos + 1,
			Name:       s.name,
			Position:   s.pos,
			Chips:      s.chips,
			IsAI:       s.isAI,
			IsActive:   s.live(),
			Hand:       hand,
			CurrentBet: s.bet,
		})
	}

	if !t.handOver && t.current >= 0 {
		actor := t.seats[t.current]
		w.LegalActions = t.legal(actor)
		for _, code := range w.LegalActions {
			w.ActionNames = append(w.ActionNames, t.actionName(actor, code))
		}
		if lo, hi, ok := t.raiseBounds(actor); ok {
			w.MinRaise, w.MaxRaise = lo, hi
		}
		w.CallAmount = min(t.currentBet-actor.bet, actor.chips)
	}
	return w
}

func (t *Table) wireStatus() string {
	switch {
	case t.gameOver:
		return "game_over"
	case t.handOver:
		return "hand_over"
	default:
		return "playing"
	}
}
