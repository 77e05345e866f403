package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/looplab/fsm"
)

// Phase is the scheduler's view of whose move the table is waiting on.
type Phase string

const (
	PhaseIdle          Phase = "idle"
	PhaseAwaitingHuman Phase = "awaiting_human"
	PhaseAIArmed       Phase = "ai_armed"
	PhaseAIInFlight    Phase = "ai_in_flight"
	PhaseHandOver      Phase = "hand_over"
	PhaseClosed        Phase = "closed"
)

const (
	eventWait        = "wait"
	eventAwaitHuman  = "await_human"
	eventArm         = "arm"
	eventFire        = "fire"
	eventEndHand     = "end_hand"
	eventNextHand    = "next_hand"
	eventCloseSched  = "close"
	timerTagAI       = "ai"
	timerTagPoll     = "poll"
	DefaultAIDelay   = 2000 * time.Millisecond
	DefaultPollEvery = 3000 * time.Millisecond
)

// stepper performs the requests the scheduler triggers. seq is stamped by
// the scheduler while it holds its lock so that request order matches
// decision order.
type stepper interface {
	fetch(ctx context.Context, seq uint64) (*GameState, error)
	stepAI(ctx context.Context, seq uint64) (*GameState, error)
}

// SchedulerConfig tunes the scheduler's timers.
type SchedulerConfig struct {
	// AIDelay is how long an AI turn is held before the step is requested.
	AIDelay time.Duration
	// PollInterval is the background refresh cadence. Zero disables polling.
	PollInterval time.Duration
}

// Transition records one phase change.
type Transition struct {
	Event string
	From  Phase
	To    Phase
}

// Scheduler owns the AI step timer and the background poll. It arms at
// most one AI timer per turn key and allows at most one outstanding
// trigger per turn.
type Scheduler struct {
	logger *log.Logger
	clock  quartz.Clock
	cfg    SchedulerConfig
	store  *Store
	steps  stepper

	onChange   func()
	onTerminal func(error)

	mu     sync.Mutex
	sm     *fsm.FSM
	ctx    context.Context
	cancel context.CancelFunc
	poller quartz.Waiter

	timer    *quartz.Timer
	gen      uint64
	armedKey TurnKey
	armedAt  time.Time

	lastArmed      TurnKey
	lastArmedRound Round
	hasLastArmed   bool

	inFlight    *TurnKey
	mutating    int
	endedHand   int
	gameOver    bool
	transitions []Transition
	aiSteps     int
}

// NewScheduler creates a scheduler in the idle phase. onChange is called
// (with internal locks held, so it must not block) whenever the phase
// changes; onTerminal is called once a request reports the session gone.
func NewScheduler(cfg SchedulerConfig, store *Store, steps stepper, clock quartz.Clock, logger *log.Logger, onChange func(), onTerminal func(error)) *Scheduler {
	if cfg.AIDelay <= 0 {
		cfg.AIDelay = DefaultAIDelay
	}
	if onChange == nil {
		onChange = func() {}
	}
	if onTerminal == nil {
		onTerminal = func(error) {}
	}

	s := &Scheduler{
		logger:     logger.WithPrefix("scheduler"),
		clock:      clock,
		cfg:        cfg,
		store:      store,
		steps:      steps,
		onChange:   onChange,
		onTerminal: onTerminal,
		ctx:        context.Background(),
		cancel:     func() {},
	}

	running := []string{string(PhaseIdle), string(PhaseAwaitingHuman), string(PhaseAIArmed), string(PhaseAIInFlight)}
	all := append(append([]string{}, running...), string(PhaseHandOver))

	s.sm = fsm.NewFSM(
		string(PhaseIdle),
		fsm.Events{
			{Name: eventWait, Src: all, Dst: string(PhaseIdle)},
			{Name: eventAwaitHuman, Src: all, Dst: string(PhaseAwaitingHuman)},
			{Name: eventArm, Src: all, Dst: string(PhaseAIArmed)},
			{Name: eventFire, Src: []string{string(PhaseAIArmed)}, Dst: string(PhaseAIInFlight)},
			{Name: eventEndHand, Src: all, Dst: string(PhaseHandOver)},
			{Name: eventNextHand, Src: []string{string(PhaseHandOver)}, Dst: string(PhaseIdle)},
			{Name: eventCloseSched, Src: all, Dst: string(PhaseClosed)},
		},
		fsm.Callbacks{
			// runs inside Event, with s.mu held
			"enter_state": func(_ context.Context, e *fsm.Event) {
				s.transitions = append(s.transitions, Transition{Event: e.Event, From: Phase(e.Src), To: Phase(e.Dst)})
				s.logger.Info("Phase change", "event", e.Event, "from", e.Src, "to", e.Dst)
				s.onChange()
			},
		},
	)

	store.Subscribe(s.Observe)
	return s
}

// Start begins background polling. Requests triggered by the scheduler use
// a context derived from ctx; Close cancels it.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase() == PhaseClosed {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	if s.cfg.PollInterval > 0 {
		s.poller = s.clock.TickerFunc(s.ctx, s.cfg.PollInterval, s.poll, timerTagPoll)
	}
}

// Phase returns the current phase.
func (s *Scheduler) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase()
}

func (s *Scheduler) phase() Phase {
	return Phase(s.sm.Current())
}

// GameOver reports whether the table has been dissolved.
func (s *Scheduler) GameOver() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gameOver
}

// Transitions returns the phase changes so far.
func (s *Scheduler) Transitions() []Transition {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Transition(nil), s.transitions...)
}

// AISteps returns how many AI step requests the scheduler has issued.
func (s *Scheduler) AISteps() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aiSteps
}

// Busy reports whether a turn request is outstanding.
func (s *Scheduler) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight != nil
}

// ThinkingRemaining returns the time left before the armed AI step fires.
func (s *Scheduler) ThinkingRemaining() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase() != PhaseAIArmed {
		return 0
	}
	left := s.cfg.AIDelay - s.clock.Since(s.armedAt)
	if left < 0 {
		return 0
	}
	return left
}

// Observe re-evaluates the phase against a freshly applied snapshot.
func (s *Scheduler) Observe(state *GameState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evaluate(state, false)
}

// evaluate decides the next phase from state. owner is true when called by
// the goroutine that holds the in-flight AI step. Called with s.mu held.
func (s *Scheduler) evaluate(state *GameState, owner bool) {
	phase := s.phase()
	if state == nil || phase == PhaseClosed || s.gameOver {
		return
	}

	if state.IsHandOver || state.IsGameOver {
		s.enterHandOver(state)
		return
	}

	if phase == PhaseAIInFlight && !owner {
		// the step owner re-evaluates when its response is in
		return
	}

	if phase == PhaseHandOver {
		if state.HandNumber <= s.endedHand {
			return
		}
		s.logger.Info("Next hand observed", "hand", state.HandNumber)
		s.hasLastArmed = false
		s.event(eventNextHand)
	}

	key := state.TurnKey()
	if !state.PendingAIAction || key != s.lastArmed || state.Round != s.lastArmedRound {
		// only a repeat of the turn that was just stepped is suppressed
		s.hasLastArmed = false
	}
	if state.PendingAIAction {
		if phase == PhaseAIArmed && s.armedKey == key {
			return
		}
		if s.hasLastArmed && s.lastArmed == key {
			if s.phase() == PhaseAIArmed {
				s.stopTimer()
			}
			s.event(eventWait)
			return
		}
		s.arm(key, state.Round)
		return
	}

	if s.phase() == PhaseAIArmed {
		s.logger.Info("Cancelling armed AI step", "key", s.armedKey, "now", key)
		s.stopTimer()
	}
	if state.IsMyTurn() {
		s.event(eventAwaitHuman)
		return
	}
	s.event(eventWait)
}

func (s *Scheduler) enterHandOver(state *GameState) {
	s.stopTimer()
	s.endedHand = state.HandNumber
	if state.IsGameOver {
		s.gameOver = true
	}
	if w := state.WinnerInfo; w != nil {
		s.logger.Info("Hand over", "hand", state.HandNumber, "winner", w.WinnerPosition, "pot", w.PotWon, "gameOver", state.IsGameOver)
	}
	s.event(eventEndHand)
	if s.gameOver {
		s.onChange()
	}
}

func (s *Scheduler) arm(key TurnKey, round Round) {
	s.stopTimer()
	s.gen++
	gen := s.gen
	s.armedKey = key
	s.lastArmed = key
	s.lastArmedRound = round
	s.hasLastArmed = true
	s.armedAt = s.clock.Now()
	s.timer = s.clock.AfterFunc(s.cfg.AIDelay, func() { s.fire(gen) }, timerTagAI)
	s.logger.Info("Armed AI step", "key", key, "delay", s.cfg.AIDelay)
	s.event(eventArm)
}

func (s *Scheduler) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
}

// fire issues the AI step for the timer armed as generation gen.
func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.phase() != PhaseAIArmed {
		s.mu.Unlock()
		return
	}
	key := s.armedKey
	s.timer = nil
	s.event(eventFire)
	s.inFlight = &key
	s.mutating++
	s.aiSteps++
	seq := s.store.Begin()
	ctx := s.ctx
	s.mu.Unlock()

	s.logger.Info("Requesting AI step", "key", key, "seq", seq)
	_, err := s.steps.stepAI(ctx, seq)
	if err != nil {
		s.logger.Warn("AI step failed, refetching", "key", key, "error", err)
		if !s.terminal(err) && !errors.Is(err, ErrClosed) && ctx.Err() == nil {
			if _, ferr := s.steps.fetch(ctx, s.store.Begin()); ferr != nil {
				s.terminal(ferr)
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.inFlight = nil
	s.mutating--

	current := s.store.Current()
	if errors.Is(err, ErrTransient) {
		// re-armed on the next evaluation; a rejection stays final for this turn
		s.hasLastArmed = false
	}

	if s.phase() == PhaseAIInFlight {
		s.evaluate(current, true)
	}
}

func (s *Scheduler) poll() error {
	s.mu.Lock()
	if s.phase() == PhaseClosed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.mutating > 0 {
		s.mu.Unlock()
		s.logger.Debug("Skipping poll while a request is in flight")
		return nil
	}
	seq := s.store.Begin()
	ctx := s.ctx
	s.mu.Unlock()

	s.logger.Debug("Polling state", "seq", seq)
	if _, err := s.steps.fetch(ctx, seq); err != nil {
		if s.terminal(err) {
			return err
		}
		s.logger.Warn("Poll failed", "error", err)
	}
	return nil
}

// terminal hands session-ending errors to the owner.
func (s *Scheduler) terminal(err error) bool {
	if errors.Is(err, ErrInvalidSession) || errors.Is(err, ErrUnauthorized) {
		s.onTerminal(err)
		return true
	}
	return false
}

// BeginHuman reserves the current turn for a human action and stamps the
// request. The caller must call EndHuman when the request completes.
func (s *Scheduler) BeginHuman(key TurnKey) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.phase() == PhaseClosed:
		return 0, ErrClosed
	case s.inFlight != nil && *s.inFlight == key:
		return 0, ErrTurnInFlight
	case s.phase() != PhaseAwaitingHuman || s.inFlight != nil:
		return 0, ErrNotYourTurn
	}

	s.inFlight = &key
	s.mutating++
	return s.store.Begin(), nil
}

// EndHuman releases the turn reserved by BeginHuman.
func (s *Scheduler) EndHuman() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.inFlight = nil
	s.mutating--
	s.evaluate(s.store.Current(), false)
}

// BeginNewHand checks that a new hand may be requested and stamps the
// request. The caller must call EndNewHand when the request completes.
func (s *Scheduler) BeginNewHand() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.phase() == PhaseClosed:
		return 0, ErrClosed
	case s.gameOver:
		return 0, ErrGameOver
	case s.phase() != PhaseHandOver:
		return 0, ErrHandInProgress
	case s.mutating > 0:
		return 0, ErrTurnInFlight
	}

	s.mutating++
	return s.store.Begin(), nil
}

// EndNewHand releases the reservation taken by BeginNewHand.
func (s *Scheduler) EndNewHand() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mutating--
	s.evaluate(s.store.Current(), false)
}

// Close cancels every timer and the poll, and ignores later snapshots.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase() == PhaseClosed {
		return
	}
	s.stopTimer()
	s.cancel()
	s.event(eventCloseSched)
}

// Wait blocks until the poller stops. It returns immediately when polling
// is disabled.
func (s *Scheduler) Wait() error {
	s.mu.Lock()
	poller := s.poller
	s.mu.Unlock()

	if poller == nil {
		return nil
	}
	err := poller.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrClosed) {
		return nil
	}
	return err
}

// event fires a transition. Called with s.mu held.
func (s *Scheduler) event(name string) {
	err := s.sm.Event(context.Background(), name)
	var noTransition fsm.NoTransitionError
	if err != nil && !errors.As(err, &noTransition) {
		s.logger.Warn("Rejected phase transition", "event", name, "phase", s.sm.Current(), "error", err)
	}
}
