package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGateValidate(t *testing.T) {
	gate := NewGate(5, 10)
	state := tableState(1, 2)

	tests := []struct {
		name   string
		code   ActionCode
		amount *int
		want   error
	}{
		{name: "fold", code: 0},
		{name: "call ignores amount", code: 1, amount: amount(3)},
		{name: "all in", code: 4},
		{name: "raise at minimum", code: 5, amount: amount(20)},
		{name: "raise on step", code: 5, amount: amount(40)},
		{name: "raise at maximum", code: 5, amount: amount(500)},
		{name: "raise above maximum", code: 5, amount: amount(600), want: ErrInvalidAmount},
		{name: "raise below minimum", code: 5, amount: amount(10), want: ErrInvalidAmount},
		{name: "raise off step", code: 5, amount: amount(35), want: ErrInvalidAmount},
		{name: "raise without amount", code: 5, want: ErrInvalidAmount},
		{name: "undeclared action", code: 2, want: ErrInvalidAction},
		{name: "unknown action", code: 42, want: ErrInvalidAction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := gate.Validate(state, tt.code, tt.amount)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestGateValidateEdges(t *testing.T) {
	gate := NewGate(5, 10)

	t.Run("no state", func(t *testing.T) {
		assert.ErrorIs(t, gate.Validate(nil, 0, nil), ErrNoState)
	})

	t.Run("hand over", func(t *testing.T) {
		over := handOver(tableState(1, 2), 1, 340, false)
		assert.ErrorIs(t, gate.Validate(over, 0, nil), ErrInvalidAction)
	})

	t.Run("raise without bounds", func(t *testing.T) {
		s := tableState(1, 2)
		s.MinRaise, s.MaxRaise = 0, 0
		assert.ErrorIs(t, gate.Validate(s, 5, amount(20)), ErrInvalidAction)
	})

	t.Run("off-grid all in is allowed", func(t *testing.T) {
		s := tableState(1, 2)
		s.MaxRaise = 515
		assert.NoError(t, gate.Validate(s, 5, amount(515)))
		assert.ErrorIs(t, gate.Validate(s, 5, amount(505)), ErrInvalidAmount)
	})

	t.Run("default step without big blind", func(t *testing.T) {
		s := tableState(1, 2)
		s.BigBlindAmount = 0
		assert.Equal(t, 10, gate.Step(s))
		assert.NoError(t, gate.Validate(s, 5, amount(30)))
		assert.ErrorIs(t, gate.Validate(s, 5, amount(25)), ErrInvalidAmount)
	})

	t.Run("validation error carries bounds", func(t *testing.T) {
		err := gate.Validate(tableState(1, 2), 5, amount(600))
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, 20, verr.Min)
		assert.Equal(t, 500, verr.Max)
		assert.Equal(t, 20, verr.Step)
		assert.Contains(t, err.Error(), "above maximum")
	})
}

func TestGateLegalActions(t *testing.T) {
	gate := NewGate(5, 10)

	t.Run("server order and labels", func(t *testing.T) {
		options := gate.LegalActionsFor(tableState(1, 2))
		require.Len(t, options, 4)
		assert.Equal(t, []ActionOption{
			{Code: 0, Label: "fold"},
			{Code: 1, Label: "call"},
			{Code: 4, Label: "all in"},
			{Code: 5, Label: "raise", Raise: true},
		}, options)
	})

	t.Run("raise hidden without bounds", func(t *testing.T) {
		s := tableState(1, 2)
		s.MinRaise = 0
		for _, o := range gate.LegalActionsFor(s) {
			assert.NotEqual(t, ActionCode(5), o.Code)
		}
	})

	t.Run("missing names fall back", func(t *testing.T) {
		s := tableState(1, 2)
		s.ActionNames = s.ActionNames[:1]
		options := gate.LegalActionsFor(s)
		assert.Equal(t, "action 1", options[1].Label)
	})

	t.Run("nothing once the hand is over", func(t *testing.T) {
		assert.Empty(t, gate.LegalActionsFor(handOver(tableState(1, 2), 0, 100, false)))
	})
}

func TestGateRaiseControl(t *testing.T) {
	gate := NewGate(5, 10)
	s := tableState(1, 2)

	assert.Equal(t, 20, gate.DefaultRaise(s))
	assert.Equal(t, 20, gate.ClampRaise(s, 5))
	assert.Equal(t, 500, gate.ClampRaise(s, 900))

	assert.Equal(t, 60, gate.StepRaise(s, 40, 1))
	assert.Equal(t, 40, gate.StepRaise(s, 45, 0), "off-grid amounts snap down")
	assert.Equal(t, 20, gate.StepRaise(s, 40, -5))
	assert.Equal(t, 500, gate.StepRaise(s, 480, 3))

	s.MaxRaise = 515
	assert.Equal(t, 500, gate.StepRaise(s, 515, -1))
	assert.Equal(t, 515, gate.StepRaise(s, 500, 1))
}

func TestScenarioMyTurn(t *testing.T) {
	s := &GameState{
		CurrentPlayerIndex: 2,
		MyPosition:         seat(2),
		LegalActions:       []ActionCode{0, 1, 4, 5},
		MinRaise:           20,
		MaxRaise:           500,
		Players: []Player{
			{Position: 0, IsActive: true},
			{Position: 1, IsActive: true},
			{Position: 2, IsActive: true},
		},
	}
	gate := NewGate(5, 10)

	assert.True(t, s.IsMyTurn())
	assert.NoError(t, s.Check())
	assert.Equal(t, 20, gate.DefaultRaise(s))
	assert.NoError(t, gate.Validate(s, 0, nil))
}

func TestGameStateCheck(t *testing.T) {
	t.Run("running hand", func(t *testing.T) {
		assert.NoError(t, tableState(1, 0).Check())
	})

	t.Run("no seat matches", func(t *testing.T) {
		assert.Error(t, tableState(1, 9).Check())
	})

	t.Run("no legal actions", func(t *testing.T) {
		s := tableState(1, 1)
		s.LegalActions = nil
		assert.Error(t, s.Check())
	})

	t.Run("hand over is exempt", func(t *testing.T) {
		assert.NoError(t, handOver(tableState(1, 1), 1, 340, false).Check())
	})
}
