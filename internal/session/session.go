package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
)

// Config configures a Session.
type Config struct {
	GameID       int
	AIDelay      time.Duration
	PollInterval time.Duration
	RaiseCode    ActionCode
	DefaultStep  int
}

// Notice is a transient banner for the user.
type Notice struct {
	Kind    NoticeKind
	Message string
	At      time.Time
}

// View is everything a front end needs to draw the table at one instant.
type View struct {
	State        *GameState
	Phase        Phase
	IsMyTurn     bool
	Busy         bool
	Actions      []ActionOption
	RaiseMin     int
	RaiseMax     int
	RaiseStep    int
	DefaultRaise int
	Thinking     time.Duration
	Notice       *Notice
	CanNewHand   bool
	GameOver     bool
	Closed       bool
	Exit         error
}

// Session is the controller for one table. It owns the store, the gate,
// the backend client and the scheduler.
type Session struct {
	cfg    Config
	logger *log.Logger
	clock  quartz.Clock

	store  *Store
	gate   *Gate
	client *Client
	sched  *Scheduler

	changes chan struct{}
	done    chan struct{}
	once    sync.Once

	mu     sync.Mutex
	notice *Notice
	exit   error
}

// New creates a session for cfg.GameID. Nothing is fetched until Start.
func New(cfg Config, backend Backend, clock quartz.Clock, logger *log.Logger) *Session {
	if cfg.AIDelay <= 0 {
		cfg.AIDelay = DefaultAIDelay
	}

	logger = logger.WithPrefix("session")
	s := &Session{
		cfg:     cfg,
		logger:  logger,
		clock:   clock,
		store:   NewStore(logger),
		gate:    NewGate(cfg.RaiseCode, cfg.DefaultStep),
		changes: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	s.client = NewClient(backend, s.store, cfg.GameID, logger)
	s.sched = NewScheduler(
		SchedulerConfig{AIDelay: cfg.AIDelay, PollInterval: cfg.PollInterval},
		s.store, s.client, clock, logger,
		s.changed,
		func(err error) { s.terminate(err) },
	)
	s.store.Subscribe(s.observe)
	return s
}

// Start loads the first snapshot and begins background polling. A session
// whose game cannot be loaded is closed and the error returned.
func (s *Session) Start(ctx context.Context) error {
	s.sched.Start(ctx)
	if _, err := s.client.FetchState(ctx); err != nil {
		if errors.Is(err, ErrInvalidSession) || errors.Is(err, ErrUnauthorized) {
			s.terminate(err)
			return err
		}
		s.report(err)
		return err
	}
	return nil
}

// Wait blocks until the session ends and returns the reason, or nil when
// it was closed normally.
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-s.done:
	case <-ctx.Done():
		s.Close()
	}
	if err := s.sched.Wait(); err != nil && !errors.Is(err, ErrInvalidSession) && !errors.Is(err, ErrUnauthorized) {
		s.logger.Debug("Poller stopped", "error", err)
	}
	return s.Exit()
}

// Act submits the local user's action after validating it against the
// held snapshot. amount is required for the raise action only.
func (s *Session) Act(ctx context.Context, code ActionCode, amount *int) error {
	state := s.store.Current()
	if state == nil {
		return s.report(ErrNoState)
	}
	if !state.IsMyTurn() {
		return s.report(ErrNotYourTurn)
	}
	if err := s.gate.Validate(state, code, amount); err != nil {
		return s.report(err)
	}
	if code != s.gate.RaiseCode() {
		amount = nil
	}

	seq, err := s.sched.BeginHuman(state.TurnKey())
	if err != nil {
		return s.report(err)
	}
	defer s.sched.EndHuman()

	if _, err := s.client.submit(ctx, seq, code, amount); err != nil {
		return s.fail(err)
	}
	s.clearNotice()
	return nil
}

// NewHand asks the backend to deal the next hand. Only valid once the
// current hand is over and the game is still running.
func (s *Session) NewHand(ctx context.Context) error {
	seq, err := s.sched.BeginNewHand()
	if err != nil {
		return s.report(err)
	}
	defer s.sched.EndNewHand()

	if _, err := s.client.newHand(ctx, seq); err != nil {
		return s.fail(err)
	}
	s.clearNotice()
	return nil
}

// Refresh re-fetches the snapshot on demand.
func (s *Session) Refresh(ctx context.Context) error {
	if s.store.Closed() {
		return ErrClosed
	}
	if _, err := s.client.FetchState(ctx); err != nil {
		return s.fail(err)
	}
	return nil
}

// Leave acknowledges the end of the game and closes the session.
func (s *Session) Leave() {
	s.terminate(nil)
}

// Close stops timers and polling. Responses that arrive later are dropped.
func (s *Session) Close() {
	s.terminate(nil)
}

// Done is closed when the session ends.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Changes signals (coalesced) whenever the view may have changed.
func (s *Session) Changes() <-chan struct{} {
	return s.changes
}

// Exit returns why the session ended: nil for a normal close, otherwise
// ErrInvalidSession or ErrUnauthorized.
func (s *Session) Exit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exit
}

// Store exposes the snapshot store.
func (s *Session) Store() *Store {
	return s.store
}

// Gate exposes the action gate.
func (s *Session) Gate() *Gate {
	return s.gate
}

// Scheduler exposes the turn scheduler.
func (s *Session) Scheduler() *Scheduler {
	return s.sched
}

// View returns a consistent picture of the session.
func (s *Session) View() View {
	state := s.store.Current()
	phase := s.sched.Phase()
	gameOver := s.sched.GameOver() || (state != nil && state.IsGameOver)

	v := View{
		State:    state,
		Phase:    phase,
		Thinking: s.sched.ThinkingRemaining(),
		Busy:     s.sched.Busy(),
		GameOver: gameOver,
		Closed:   phase == PhaseClosed,
	}

	s.mu.Lock()
	if s.notice != nil {
		n := *s.notice
		v.Notice = &n
	}
	v.Exit = s.exit
	s.mu.Unlock()

	if state == nil {
		return v
	}

	v.IsMyTurn = state.IsMyTurn() && phase == PhaseAwaitingHuman
	if v.IsMyTurn {
		v.Actions = s.gate.LegalActionsFor(state)
		if s.gate.HasRaiseBounds(state) {
			v.RaiseMin = state.MinRaise
			v.RaiseMax = state.MaxRaise
			v.RaiseStep = s.gate.Step(state)
			v.DefaultRaise = s.gate.DefaultRaise(state)
		}
	}
	v.CanNewHand = phase == PhaseHandOver && !gameOver
	return v
}

// Notice returns the current banner, if any.
func (s *Session) Notice() *Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.notice == nil {
		return nil
	}
	n := *s.notice
	return &n
}

// DismissNotice clears the banner.
func (s *Session) DismissNotice() {
	s.clearNotice()
	s.changed()
}

func (s *Session) observe(*GameState) {
	s.mu.Lock()
	if s.notice != nil && s.notice.Kind == NoticeTransient {
		s.notice = nil
	}
	s.mu.Unlock()
	s.changed()
}

// fail reports a request error and ends the session when it is terminal.
func (s *Session) fail(err error) error {
	if errors.Is(err, ErrInvalidSession) || errors.Is(err, ErrUnauthorized) {
		s.terminate(err)
		return err
	}
	return s.report(err)
}

// report raises a banner for err and returns it.
func (s *Session) report(err error) error {
	kind := classify(err)
	if kind == "" {
		return err
	}
	s.logger.Warn("Request failed", "kind", kind, "error", err)

	s.mu.Lock()
	s.notice = &Notice{Kind: kind, Message: err.Error(), At: s.clock.Now()}
	s.mu.Unlock()
	s.changed()
	return err
}

func (s *Session) clearNotice() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notice = nil
}

func (s *Session) terminate(reason error) {
	s.once.Do(func() {
		if reason != nil {
			s.logger.Error("Session ended", "error", reason)
			s.mu.Lock()
			s.exit = reason
			s.notice = &Notice{Kind: classify(reason), Message: reason.Error(), At: s.clock.Now()}
			s.mu.Unlock()
		} else {
			s.logger.Info("Session closed")
		}
		s.sched.Close()
		s.store.Close()
		close(s.done)
		s.changed()
	})
}

// changed signals Changes without blocking.
func (s *Session) changed() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}
