// Package tui renders a session as a terminal game view and turns typed
// commands into session calls.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"github.com/lox/pokerclient/internal/deck"
	"github.com/lox/pokerclient/internal/session"
)

// Controller is the part of a session the view drives.
type Controller interface {
	View() session.View
	Gate() *session.Gate
	Changes() <-chan struct{}
	Done() <-chan struct{}
	Act(ctx context.Context, code session.ActionCode, amount *int) error
	NewHand(ctx context.Context) error
	Refresh(ctx context.Context) error
	DismissNotice()
	Leave()
}

var _ Controller = (*session.Session)(nil)

const maxLogLines = 500

type changedMsg struct{}

type doneMsg struct{}

type resultMsg struct {
	what string
	err  error
}

// Model is the Bubble Tea model for one table.
type Model struct {
	ctx    context.Context
	ctl    Controller
	logger *log.Logger
	title  string

	logViewport viewport.Model
	input       textinput.Model
	spinner     spinner.Model

	view    session.View
	gameLog []string
	raise   int
	myTurn  bool
	hand    int
	action  string
	settled int

	width    int
	height   int
	quitting bool
}

// NewModel creates the view for ctl. title is shown in the header.
func NewModel(ctx context.Context, ctl Controller, title string, logger *log.Logger) *Model {
	vp := viewport.New(10, 5)

	ti := textinput.New()
	ti.Placeholder = "Waiting..."
	ti.Focus()
	ti.CharLimit = 40
	ti.Width = 40
	ti.Prompt = "> "
	ti.PromptStyle = PromptStyle

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = WarningStyle

	m := &Model{
		ctx:         ctx,
		ctl:         ctl,
		logger:      logger.WithPrefix("tui"),
		title:       title,
		logViewport: vp,
		input:       ti,
		spinner:     sp,
	}
	m.refresh()
	return m
}

// Init starts listening for session changes.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, m.listen())
}

func (m *Model) listen() tea.Cmd {
	changes, done := m.ctl.Changes(), m.ctl.Done()
	return func() tea.Msg {
		select {
		case <-changes:
			return changedMsg{}
		case <-done:
			return doneMsg{}
		}
	}
}

// Update handles messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case changedMsg:
		m.refresh()
		cmds = append(cmds, m.listen())

	case doneMsg:
		m.refresh()
		if m.view.Exit != nil {
			m.addLog(ErrorStyle.Render("Session ended: " + m.view.Exit.Error()))
		}
		m.quitting = true
		return m, tea.Quit

	case resultMsg:
		if msg.err != nil {
			m.logger.Debug("Command failed", "what", msg.what, "error", msg.err)
		}
		m.refresh()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.quitting = true
			m.ctl.Leave()
			return m, tea.Quit
		case "up":
			m.stepRaise(1)
			return m, nil
		case "down":
			m.stepRaise(-1)
			return m, nil
		case "pgup":
			m.logViewport.HalfPageUp()
			return m, nil
		case "pgdown":
			m.logViewport.HalfPageDown()
			return m, nil
		case "enter":
			line := strings.TrimSpace(m.input.Value())
			m.input.SetValue("")
			return m, m.submit(line)
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.logViewport, cmd = m.logViewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// submit runs a typed line. Session calls run off the UI goroutine.
func (m *Model) submit(line string) tea.Cmd {
	c, err := parseInput(line, m.view, m.raise)
	if err != nil {
		m.addLog(ErrorStyle.Render(err.Error()))
		return nil
	}

	ctx, ctl := m.ctx, m.ctl
	switch c.kind {
	case cmdQuit:
		m.quitting = true
		ctl.Leave()
		return tea.Quit
	case cmdHelp:
		m.addLog(InfoStyle.Render(helpText))
	case cmdDismiss:
		ctl.DismissNotice()
	case cmdRefresh:
		return func() tea.Msg { return resultMsg{what: "refresh", err: ctl.Refresh(ctx)} }
	case cmdNewHand:
		return func() tea.Msg { return resultMsg{what: "new hand", err: ctl.NewHand(ctx)} }
	case cmdAct:
		return func() tea.Msg { return resultMsg{what: "act", err: ctl.Act(ctx, c.code, c.amount)} }
	}
	return nil
}

func (m *Model) stepRaise(steps int) {
	if !m.myTurn || m.view.RaiseMax == 0 {
		return
	}
	m.raise = m.ctl.Gate().StepRaise(m.view.State, m.raise, steps)
}

// refresh pulls a fresh view and logs what changed since the last one.
func (m *Model) refresh() {
	v := m.ctl.View()
	m.view = v

	if v.IsMyTurn && !m.myTurn {
		m.raise = v.DefaultRaise
	}
	m.myTurn = v.IsMyTurn

	switch {
	case v.IsMyTurn:
		m.input.Placeholder = "Your action (1-9, fold, call, raise 60, ? for help)"
	case v.CanNewHand:
		m.input.Placeholder = "Enter to deal the next hand"
	default:
		m.input.Placeholder = "Waiting..."
	}

	s := v.State
	if s == nil {
		return
	}

	if s.HandNumber != m.hand {
		m.hand = s.HandNumber
		m.action = ""
		m.addLog(HeaderStyle.Render(fmt.Sprintf("Hand #%d", s.HandNumber)))
	}

	if la := s.LastAction; la != nil {
		key := fmt.Sprintf("%d/%d/%s/%d", s.HandNumber, la.Player, la.Label, s.Pot)
		if key != m.action {
			m.action = key
			m.addLog(fmt.Sprintf("%s: %s", playerName(s, la.Player), la.Label))
		}
	}

	if s.IsHandOver && s.WinnerInfo != nil && m.settled != s.HandNumber {
		m.settled = s.HandNumber
		m.addLog(SuccessStyle.Render(winnerLine(s)))
		if s.IsGameOver {
			m.addLog(WarningStyle.Render("Game over"))
		}
	}
}

func (m *Model) addLog(line string) {
	m.gameLog = append(m.gameLog, line)
	if len(m.gameLog) > maxLogLines {
		m.gameLog = m.gameLog[len(m.gameLog)-maxLogLines:]
	}
	m.logViewport.SetContent(strings.Join(m.gameLog, "\n"))
	m.logViewport.GotoBottom()
}

// View renders the screen.
func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	header := m.renderHeader()
	action := m.renderActionPane()
	sidebar := m.renderSidebar()

	actionStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#04B575")).
		Width(max(m.width-2, 1))
	actionPane := actionStyle.Render(action)

	bodyHeight := max(m.height-lipgloss.Height(header)-lipgloss.Height(actionPane)-2, 1)
	sidebarWidth := max(lipgloss.Width(sidebar), 30)

	sidebarPane := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#626262")).
		Width(sidebarWidth).
		Height(bodyHeight).
		Render(sidebar)

	m.logViewport.Width = max(m.width-sidebarWidth-4, 1)
	m.logViewport.Height = bodyHeight
	logPane := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#626262")).
		Width(m.logViewport.Width).
		Height(bodyHeight).
		Render(m.logViewport.View())

	body := lipgloss.JoinHorizontal(lipgloss.Top, logPane, sidebarPane)
	return lipgloss.JoinVertical(lipgloss.Left, header, body, actionPane)
}

func (m *Model) renderHeader() string {
	s := m.view.State
	if s == nil {
		return HeaderStyle.Render(m.title)
	}
	round := s.RoundLabel
	if round == "" {
		round = s.Round.String()
	}
	return HeaderStyle.Render(fmt.Sprintf("%s · Hand #%d · %s · Pot %d · Blinds %d/%d",
		m.title, s.HandNumber, round, s.Pot, s.SmallBlindAmount, s.BigBlindAmount))
}

func (m *Model) renderSidebar() string {
	s := m.view.State
	if s == nil {
		return InfoStyle.Render("Loading table...")
	}

	var b strings.Builder
	b.WriteString("Board: ")
	if len(s.PublicCards) == 0 {
		b.WriteString(InfoStyle.Render("none"))
	} else {
		b.WriteString(formatCards(s.PublicCards))
	}
	b.WriteString("\n\n")

	for _, p := range s.Players {
		marker := "  "
		if !s.IsHandOver && p.Position == s.CurrentPlayerIndex {
			marker = "▶ "
		}
		name := p.Name
		if p.Position == s.DealerPosition {
			name += " (D)"
		}
		if s.MyPosition != nil && p.Position == *s.MyPosition {
			name += " *"
		}

		line := fmt.Sprintf("%s%-14s %6d", marker, name, p.Chips)
		if p.CurrentBet > 0 {
			line += fmt.Sprintf(" bet %d", p.CurrentBet)
		}
		style := PlayerInfoStyle
		switch {
		case !p.IsActive:
			style = FoldedPlayerStyle
		case marker != "  ":
			style = ActivePlayerStyle
		}
		b.WriteString(style.Render(line))
		if len(p.Hand) > 0 {
			b.WriteString(" " + formatCards(p.Hand))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m *Model) renderActionPane() string {
	v := m.view
	var b strings.Builder

	if v.Notice != nil {
		b.WriteString(BannerStyle.Render(noticeText(v.Notice)))
		b.WriteString("\n")
	}

	s := v.State
	switch {
	case s == nil:
		b.WriteString(m.spinner.View() + " Loading...")
	case v.GameOver:
		b.WriteString(WarningStyle.Render("Game over."))
		if s.WinnerInfo != nil {
			b.WriteString(" " + winnerLine(s))
		}
	case v.CanNewHand:
		if s.WinnerInfo != nil {
			b.WriteString(SuccessStyle.Render(winnerLine(s)))
			b.WriteString("\n")
		}
		b.WriteString(HandInfoStyle.Render("Hand over. Press Enter to deal the next hand."))
	case v.IsMyTurn:
		if me, ok := s.Me(); ok {
			b.WriteString(HandInfoStyle.Render("Your hand: ") + formatCards(me.Hand))
			if s.CallAmount > 0 {
				b.WriteString(HandInfoStyle.Render(fmt.Sprintf("  To call: %d", s.CallAmount)))
			}
			b.WriteString("\n")
		}
		b.WriteString(m.renderActions())
	case v.Phase == session.PhaseAIArmed:
		b.WriteString(m.spinner.View() + " " + fmt.Sprintf("%s is thinking %s", actorName(s), seconds(v.Thinking)))
	case v.Phase == session.PhaseAIInFlight:
		b.WriteString(m.spinner.View() + " " + fmt.Sprintf("%s is acting...", actorName(s)))
	default:
		b.WriteString(InfoStyle.Render(fmt.Sprintf("Waiting for %s", actorName(s))))
	}
	b.WriteString("\n")

	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(InfoStyle.Render("Enter to submit • ↑↓ raise • PgUp/PgDn log • ? help • Ctrl+C to leave"))
	return b.String()
}

func (m *Model) renderActions() string {
	v := m.view
	var actions []string
	for i, opt := range v.Actions {
		label := opt.Label
		if opt.Raise {
			label = fmt.Sprintf("%s to %d", label, m.raise)
		}
		style := SuccessStyle
		switch {
		case strings.HasPrefix(strings.ToLower(opt.Label), "fold"):
			style = ErrorStyle
		case opt.Raise, strings.HasPrefix(strings.ToLower(opt.Label), "all"):
			style = WarningStyle
		}
		actions = append(actions, style.Render(fmt.Sprintf("[%d %s]", i+1, label)))
	}
	if len(actions) == 0 {
		return ErrorStyle.Render("[no actions available]")
	}
	out := ActionsStyle.Render("Actions: ") + strings.Join(actions, " ")
	if v.RaiseMax > 0 {
		out += "\n" + InfoStyle.Render(fmt.Sprintf("Raise range %d-%d, step %d", v.RaiseMin, v.RaiseMax, v.RaiseStep))
	}
	if v.Busy {
		out += " " + m.spinner.View()
	}
	return out
}

// Raise returns the amount shown in the raise control.
func (m *Model) Raise() int {
	return m.raise
}

// Log returns the log lines written so far.
func (m *Model) Log() []string {
	return append([]string(nil), m.gameLog...)
}

func noticeText(n *session.Notice) string {
	switch n.Kind {
	case session.NoticeTransient:
		return "Connection problem, retrying: " + n.Message
	case session.NoticeInvalidSession:
		return "This game is no longer available"
	case session.NoticeUnauthorized:
		return "Please log in again"
	default:
		return n.Message
	}
}

func winnerLine(s *session.GameState) string {
	w := s.WinnerInfo
	line := fmt.Sprintf("%s wins %d", w.WinnerName, w.PotWon)
	if cards, ok := w.Hands[w.WinnerPosition]; ok && len(cards) > 0 {
		line += " with " + deck.FormatCards(cards)
	}
	return line
}

func playerName(s *session.GameState, pos int) string {
	if p, ok := s.PlayerAt(pos); ok {
		return p.Name
	}
	return fmt.Sprintf("seat %d", pos)
}

func actorName(s *session.GameState) string {
	return playerName(s, s.CurrentPlayerIndex)
}

func seconds(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// formatCards formats cards with colors
func formatCards(cards []deck.Card) string {
	formatted := make([]string, 0, len(cards))
	for _, card := range cards {
		switch {
		case card.Hidden:
			formatted = append(formatted, HiddenCardStyle.Render(card.String()))
		case card.IsRed():
			formatted = append(formatted, RedCardStyle.Render(card.String()))
		default:
			formatted = append(formatted, BlackCardStyle.Render(card.String()))
		}
	}
	return "[" + strings.Join(formatted, " ") + "]"
}

// Run shows the view until the user leaves or the session ends.
func Run(ctx context.Context, ctl Controller, title string, logger *log.Logger) error {
	program := tea.NewProgram(NewModel(ctx, ctl, title, logger), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("error running TUI: %w", err)
	}
	return nil
}
