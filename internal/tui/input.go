package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lox/pokerclient/internal/session"
)

type commandKind int

const (
	cmdNone commandKind = iota
	cmdAct
	cmdNewHand
	cmdRefresh
	cmdDismiss
	cmdHelp
	cmdQuit
)

type command struct {
	kind   commandKind
	code   session.ActionCode
	amount *int
}

var aliases = map[string]string{
	"f":     "fold",
	"k":     "check",
	"c":     "call",
	"a":     "all",
	"allin": "all",
}

const helpText = "1-9 or fold/check/call/all in • raise <amount> • ↑↓ adjust raise • n next hand • /refresh • /quit"

// parseInput turns a line typed at the prompt into a command. raise is
// the amount currently shown in the raise control.
func parseInput(line string, v session.View, raise int) (command, error) {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		switch {
		case v.CanNewHand:
			return command{kind: cmdNewHand}, nil
		case v.Notice != nil:
			return command{kind: cmdDismiss}, nil
		}
		return command{kind: cmdNone}, nil
	}

	word, args := fields[0], fields[1:]
	switch word {
	case "q", "quit", "/quit", "/leave":
		return command{kind: cmdQuit}, nil
	case "/refresh":
		return command{kind: cmdRefresh}, nil
	case "?", "help", "/help":
		return command{kind: cmdHelp}, nil
	case "n", "next", "deal", "/new":
		return command{kind: cmdNewHand}, nil
	}

	if !v.IsMyTurn {
		return command{}, fmt.Errorf("not your turn")
	}

	if n, err := strconv.Atoi(word); err == nil {
		if n < 1 || n > len(v.Actions) {
			return command{}, fmt.Errorf("no action %d", n)
		}
		return actFor(v.Actions[n-1], raise), nil
	}

	if word == "r" || word == "raise" || word == "bet" {
		opt, ok := raiseOption(v)
		if !ok {
			return command{}, fmt.Errorf("raise is not available")
		}
		if len(args) > 0 {
			amount, err := strconv.Atoi(args[0])
			if err != nil {
				return command{}, fmt.Errorf("invalid amount %q", args[0])
			}
			raise = amount
		}
		return actFor(opt, raise), nil
	}

	if full, ok := aliases[word]; ok {
		word = full
	}
	for _, opt := range v.Actions {
		if strings.HasPrefix(normalize(opt.Label), word) {
			return actFor(opt, raise), nil
		}
	}
	return command{}, fmt.Errorf("unknown action %q", line)
}

func actFor(opt session.ActionOption, raise int) command {
	c := command{kind: cmdAct, code: opt.Code}
	if opt.Raise {
		amount := raise
		c.amount = &amount
	}
	return c
}

func raiseOption(v session.View) (session.ActionOption, bool) {
	for _, opt := range v.Actions {
		if opt.Raise {
			return opt, true
		}
	}
	return session.ActionOption{}, false
}

func normalize(label string) string {
	return strings.ReplaceAll(strings.ToLower(label), " ", "")
}
