// Package fakeserver serves the poker backend's HTTP contract from memory.
// It backs the serve-fake command and the end-to-end tests.
package fakeserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/lox/pokerclient/internal/client"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// SessionCookie carries the login token.
const SessionCookie = "session"

const (
	maxSeats     = 8
	recentLimit  = 10
	maxBodyBytes = 64 << 10
)

// Game endpoints that accept injected failures.
const (
	EndpointState   = "state"
	EndpointAction  = "action"
	EndpointAIStep  = "ai_step"
	EndpointNewHand = "new_hand"
)

// User is an account known to the server.
type User struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
}

// Options configure a Server.
type Options struct {
	// Users are created with ids 1..n in order.
	Users     []string
	APIPrefix string
	Defaults  client.TableDefaults
	// Seed makes dealing reproducible; each table derives its own.
	Seed   int64
	Clock  quartz.Clock
	Logger *log.Logger
}

// DefaultTableDefaults mirror what the backend serves a fresh user.
func DefaultTableDefaults() client.TableDefaults {
	return client.TableDefaults{
		AIDifficulty:  "medium",
		SmallBlind:    10,
		BigBlind:      20,
		BuyIn:         1000,
		AIPlayerCount: 6,
		AutoAIPlayers: true,
	}
}

type failure struct {
	status int
	times  int
}

// Server holds users, login sessions and tables.
type Server struct {
	prefix   string
	defaults client.TableDefaults
	seed     int64
	clock    quartz.Clock
	logger   *log.Logger

	mu       sync.Mutex
	users    []User
	sessions map[string]int
	tables   map[int]*Table
	nextID   int
	failures map[string]*failure
}

// New creates a server.
func New(opts Options) *Server {
	if opts.APIPrefix == "" {
		opts.APIPrefix = client.DefaultAPIPrefix
	}
	if opts.Defaults == (client.TableDefaults{}) {
		opts.Defaults = DefaultTableDefaults()
	}
	if opts.Clock == nil {
		opts.Clock = quartz.NewReal()
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	s := &Server{
		prefix:   "/" + strings.Trim(opts.APIPrefix, "/"),
		defaults: opts.Defaults,
		seed:     opts.Seed,
		clock:    opts.Clock,
		logger:   opts.Logger.WithPrefix("fakeserver"),
		sessions: make(map[string]int),
		tables:   make(map[int]*Table),
		nextID:   1,
		failures: make(map[string]*failure),
	}
	for i, name := range opts.Users {
		s.users = append(s.users, User{ID: i + 1, Username: name, Avatar: strings.ToUpper(name[:1])})
	}
	return s
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Post("/api/login", s.handleLogin)
	r.Get("/api/check-auth", s.handleCheckAuth)
	r.Post("/api/logout", s.handleLogout)
	r.With(s.requireUser).Get("/api/users", s.handleUsers)

	r.Route(s.prefix, func(r chi.Router) {
		r.Use(s.requireUser)
		r.Post("/create", s.handleCreate)
		r.Get("/recent", s.handleRecent)
		r.Get("/config", s.handleConfig)
		r.Route("/game/{id}", func(r chi.Router) {
			r.Get("/state", s.handleState)
			r.Post("/action", s.handleAction)
			r.Post("/ai_step", s.handleAIStep)
			r.Post("/new_hand", s.handleNewHand)
		})
	})
	return r
}

// FailNext makes the next times calls to a game endpoint answer with
// status.
func (s *Server) FailNext(endpoint string, status, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[endpoint] = &failure{status: status, times: times}
}

func (s *Server) injected(endpoint string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.failures[endpoint]
	if !ok || f.times <= 0 {
		return 0, false
	}
	f.times--
	return f.status, true
}

// CreateTable seats owner (and partner, when non-zero) with AI players and
// returns the table. Used by tests to set up games without HTTP.
func (s *Server) CreateTable(owner, partner int, req client.CreateRequest) (*Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createTable(owner, partner, req)
}

func (s *Server) createTable(owner, partner int, req client.CreateRequest) (*Table, error) {
	req = s.fill(req)
	if req.AIPlayerCount < 1 || req.AIPlayerCount > maxSeats-1 {
		return nil, fmt.Errorf("ai_player_count must be between 1 and %d", maxSeats-1)
	}
	if req.SmallBlind <= 0 || req.BigBlind < req.SmallBlind || req.BuyIn < req.BigBlind {
		return nil, errors.New("invalid blinds or buy-in")
	}

	host, ok := s.user(owner)
	if !ok {
		return nil, errors.New("unknown user")
	}
	humans := []Human{{UserID: host.ID, Name: host.Username}}
	if partner != 0 {
		other, ok := s.user(partner)
		if !ok || partner == owner {
			return nil, errors.New("invalid second user")
		}
		humans = append(humans, Human{UserID: other.ID, Name: other.Username})
	}
	if len(humans)+req.AIPlayerCount > maxSeats {
		req.AIPlayerCount = maxSeats - len(humans)
	}

	id := s.nextID
	s.nextID++
	t := NewTable(TableOptions{
		ID:         id,
		Owner:      owner,
		Humans:     humans,
		AIPlayers:  req.AIPlayerCount,
		Difficulty: req.AIDifficulty,
		SmallBlind: req.SmallBlind,
		BigBlind:   req.BigBlind,
		BuyIn:      req.BuyIn,
		Seed:       s.seed + int64(id),
		CreatedAt:  s.clock.Now(),
	})
	s.tables[id] = t
	s.logger.Info("Created table", "game", id, "owner", host.Username, "ai", req.AIPlayerCount)
	return t, nil
}

func (s *Server) fill(req client.CreateRequest) client.CreateRequest {
	d := s.defaults
	if req.AIDifficulty == "" {
		req.AIDifficulty = d.AIDifficulty
	}
	if req.SmallBlind == 0 {
		req.SmallBlind = d.SmallBlind
	}
	if req.BigBlind == 0 {
		req.BigBlind = d.BigBlind
	}
	if req.BuyIn == 0 {
		req.BuyIn = d.BuyIn
	}
	if req.AIPlayerCount == 0 {
		req.AIPlayerCount = d.AIPlayerCount
	}
	return req
}

func (s *Server) user(id int) (User, bool) {
	for _, u := range s.users {
		if u.ID == id {
			return u, true
		}
	}
	return User{}, false
}

func (s *Server) userByName(name string) (User, bool) {
	for _, u := range s.users {
		if strings.EqualFold(u.Username, name) {
			return u, true
		}
	}
	return User{}, false
}

type ctxKey struct{}

func withUser(ctx context.Context, id int) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func userID(r *http.Request) int {
	id, _ := r.Context().Value(ctxKey{}).(int)
	return id
}

func (s *Server) token(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	return ""
}

func (s *Server) current(r *http.Request) (User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.sessions[s.token(r)]
	if !ok {
		return User{}, false
	}
	return s.user(id)
}

func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := s.current(r)
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "error": "Authentication required"})
			return
		}
		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), u.ID)))
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := s.clock.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("Request", "method", r.Method, "path", r.URL.Path, "status", ww.Status(),
			"id", r.Header.Get(client.RequestIDHeader), "duration", s.clock.Since(start))
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
	}
	if err := decode(w, r, &req); err != nil || strings.TrimSpace(req.Username) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "Username is required"})
		return
	}

	s.mu.Lock()
	u, ok := s.userByName(strings.TrimSpace(req.Username))
	token := ""
	if ok {
		token = uuid.NewString()
		s.sessions[token] = u.ID
	}
	s.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "User not found"})
		return
	}

	http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: token, Path: "/", HttpOnly: true})
	s.logger.Info("Login", "user", u.Username)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Login successful",
		"token":   token,
		"user":    u,
	})
}

func (s *Server) handleCheckAuth(w http.ResponseWriter, r *http.Request) {
	u, ok := s.current(r)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "authenticated": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "authenticated": true, "user": u})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	delete(s.sessions, s.token(r))
	s.mu.Unlock()

	http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: "", Path: "/", MaxAge: -1})
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Logged out"})
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	users := append([]User(nil), s.users...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "users": users})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req client.CreateRequest
	if err := decode(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, client.CreateResponse{Error: "Invalid request body"})
		return
	}

	partner := 0
	if req.SecondUserID != nil {
		partner = *req.SecondUserID
	}
	t, err := s.CreateTable(userID(r), partner, req)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, client.CreateResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, client.CreateResponse{Success: true, GameID: t.ID()})
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	me := userID(r)

	s.mu.Lock()
	var mine []*Table
	for _, t := range s.tables {
		if t.owner == me || t.seatOf(me) != nil {
			mine = append(mine, t)
		}
	}
	s.mu.Unlock()

	sort.Slice(mine, func(i, j int) bool {
		if !mine[i].createdAt.Equal(mine[j].createdAt) {
			return mine[i].createdAt.After(mine[j].createdAt)
		}
		return mine[i].id > mine[j].id
	})
	if len(mine) > recentLimit {
		mine = mine[:recentLimit]
	}

	games := make([]client.GameSummary, 0, len(mine))
	for _, t := range mine {
		t.mu.Lock()
		games = append(games, client.GameSummary{
			ID:           t.id,
			Status:       t.status,
			SmallBlind:   t.sb,
			BigBlind:     t.bb,
			AIDifficulty: t.difficulty,
			CreatedAt:    t.createdAt.UTC().Format(time.RFC3339),
		})
		t.mu.Unlock()
	}
	writeJSON(w, http.StatusOK, client.RecentResponse{Success: true, Games: games})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, client.ConfigResponse{Success: true, Config: s.defaults})
}

// table resolves {id} to a table the caller is seated at.
func (s *Server) table(r *http.Request) (*Table, error) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		return nil, errors.New("Invalid game id")
	}
	s.mu.Lock()
	t, ok := s.tables[id]
	s.mu.Unlock()
	if !ok {
		return nil, errors.New("Game not found")
	}
	if t.seatOf(userID(r)) == nil {
		return nil, errors.New("Access denied")
	}
	return t, nil
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if status, ok := s.injected(EndpointState); ok {
		writeJSON(w, status, map[string]any{"success": false, "error": "injected failure"})
		return
	}
	t, err := s.table(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": err.Error()})
		return
	}
	t.mu.Lock()
	state := t.snapshot(userID(r))
	t.mu.Unlock()
	writeJSON(w, http.StatusOK, state)
}

// mutation runs fn against the caller's table and answers with the
// resulting state. Game errors are reported in a 200 body.
func (s *Server) mutation(w http.ResponseWriter, r *http.Request, endpoint string, fn func(t *Table, me int) (noAction bool, err error)) {
	if status, ok := s.injected(endpoint); ok {
		writeJSON(w, status, client.Envelope{Error: "injected failure"})
		return
	}
	t, err := s.table(r)
	if err != nil {
		writeJSON(w, http.StatusNotFound, client.Envelope{Error: err.Error()})
		return
	}

	me := userID(r)
	t.mu.Lock()
	noAction, err := fn(t, me)
	state := t.snapshot(me)
	t.mu.Unlock()

	if err != nil {
		s.logger.Debug("Rejected", "game", t.id, "endpoint", endpoint, "error", err)
		writeJSON(w, http.StatusOK, client.Envelope{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, client.Envelope{Success: true, GameState: state, NoAction: noAction})
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	var req client.ActionRequest
	if err := decode(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, client.Envelope{Error: "Invalid request body"})
		return
	}
	s.mutation(w, r, EndpointAction, func(t *Table, me int) (bool, error) {
		if t.handOver {
			return false, errors.New("Hand is over")
		}
		actor := t.seatOf(me)
		if t.current < 0 || t.seats[t.current] != actor {
			return false, errors.New("Not your turn")
		}
		if err := t.act(actor, req.Action, req.Amount); err != nil {
			return false, fmt.Errorf("Invalid action: %w", err)
		}
		return false, nil
	})
}

func (s *Server) handleAIStep(w http.ResponseWriter, r *http.Request) {
	s.mutation(w, r, EndpointAIStep, func(t *Table, _ int) (bool, error) {
		if !t.pendingAI() {
			return true, nil
		}
		bot := t.seats[t.current]
		code, amount := t.decide(bot)
		return false, t.act(bot, code, amount)
	})
}

func (s *Server) handleNewHand(w http.ResponseWriter, r *http.Request) {
	s.mutation(w, r, EndpointNewHand, func(t *Table, _ int) (bool, error) {
		switch {
		case t.gameOver:
			return false, errors.New("Game is over")
		case !t.handOver:
			return false, errors.New("Hand still in progress")
		}
		t.startHand()
		return false, nil
	})
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
