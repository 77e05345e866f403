package session

// ActionOption is an action the local user may take, labelled as the
// backend labels it.
type ActionOption struct {
	Code  ActionCode
	Label string
	// Raise marks the open-amount raise that needs bounds.
	Raise bool
}

// Gate computes the legal action set for a snapshot and validates
// proposed actions before they are sent. It performs no I/O; the backend
// remains the final authority.
type Gate struct {
	raiseCode   ActionCode
	defaultStep int
}

// NewGate creates a gate. raiseCode is the backend's open-amount raise
// action; defaultStep is the raise increment used when a snapshot carries
// no big blind.
func NewGate(raiseCode ActionCode, defaultStep int) *Gate {
	if defaultStep <= 0 {
		defaultStep = 1
	}
	return &Gate{raiseCode: raiseCode, defaultStep: defaultStep}
}

// RaiseCode returns the open-amount raise action code.
func (g *Gate) RaiseCode() ActionCode {
	return g.raiseCode
}

// HasRaiseBounds reports whether the snapshot carries usable raise bounds.
func (g *Gate) HasRaiseBounds(s *GameState) bool {
	return s != nil && s.MinRaise > 0 && s.MaxRaise >= s.MinRaise
}

// LegalActionsFor returns the declared legal actions in server order,
// without the raise action when no bounds are present.
func (g *Gate) LegalActionsFor(s *GameState) []ActionOption {
	if s == nil || s.IsHandOver || s.IsGameOver {
		return nil
	}

	bounded := g.HasRaiseBounds(s)
	options := make([]ActionOption, 0, len(s.LegalActions))
	for _, code := range s.LegalActions {
		isRaise := code == g.raiseCode
		if isRaise && !bounded {
			continue
		}
		options = append(options, ActionOption{
			Code:  code,
			Label: s.ActionLabel(code),
			Raise: isRaise,
		})
	}
	return options
}

// Step returns the raise increment: the big blind, or the configured
// default when the snapshot has none.
func (g *Gate) Step(s *GameState) int {
	if s != nil && s.BigBlindAmount > 0 {
		return s.BigBlindAmount
	}
	return g.defaultStep
}

// DefaultRaise is the amount preloaded when the raise control opens.
func (g *Gate) DefaultRaise(s *GameState) int {
	if !g.HasRaiseBounds(s) {
		return 0
	}
	return s.MinRaise
}

// ClampRaise pins amount into the snapshot's raise bounds.
func (g *Gate) ClampRaise(s *GameState, amount int) int {
	if !g.HasRaiseBounds(s) {
		return 0
	}
	if amount < s.MinRaise {
		return s.MinRaise
	}
	if amount > s.MaxRaise {
		return s.MaxRaise
	}
	return amount
}

// StepRaise moves amount by steps increments of the raise step and clamps
// the result. Amounts off the grid snap down to it first.
func (g *Gate) StepRaise(s *GameState, amount, steps int) int {
	if !g.HasRaiseBounds(s) {
		return 0
	}
	step := g.Step(s)
	amount = g.ClampRaise(s, amount)
	if amount != s.MaxRaise {
		amount = s.MinRaise + ((amount-s.MinRaise)/step)*step
	} else if steps < 0 {
		// from an off-grid all-in, the first step down lands on the grid
		amount = s.MinRaise + ((amount-s.MinRaise+step-1)/step)*step
	}
	return g.ClampRaise(s, amount+steps*step)
}

// Validate checks a proposed action against the snapshot. amount is only
// consulted for the raise action.
func (g *Gate) Validate(s *GameState, code ActionCode, amount *int) error {
	if s == nil {
		return ErrNoState
	}
	if s.IsGameOver || s.IsHandOver {
		return &ValidationError{Kind: ErrInvalidAction, Code: code, Reason: "hand is over"}
	}
	if !s.HasAction(code) {
		return &ValidationError{Kind: ErrInvalidAction, Code: code, Reason: "not a legal action"}
	}
	if code != g.raiseCode {
		return nil
	}

	if !g.HasRaiseBounds(s) {
		return &ValidationError{Kind: ErrInvalidAction, Code: code, Reason: "raise bounds unavailable"}
	}

	step := g.Step(s)
	bad := func(value int, reason string) error {
		return &ValidationError{
			Kind:   ErrInvalidAmount,
			Code:   code,
			Amount: value,
			Min:    s.MinRaise,
			Max:    s.MaxRaise,
			Step:   step,
			Reason: reason,
		}
	}

	if amount == nil {
		return bad(0, "amount required")
	}
	a := *amount
	switch {
	case a < s.MinRaise:
		return bad(a, "below minimum")
	case a > s.MaxRaise:
		return bad(a, "above maximum")
	case a == s.MaxRaise:
		// all-in is always on the grid
		return nil
	case (a-s.MinRaise)%step != 0:
		return bad(a, "not a multiple of the raise step")
	}
	return nil
}
