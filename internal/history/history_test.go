package history

import (
	"io"
	"os"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/pokerclient/internal/deck"
	"github.com/lox/pokerclient/internal/session"
)

func settled(hand int) *session.GameState {
	return &session.GameState{
		GameID:      11,
		HandNumber:  hand,
		IsHandOver:  true,
		PublicCards: deck.MustParseCards("2c 7d Th Js Qh"),
		Players: []session.Player{
			{Position: 0, Name: "alice", Chips: 1340},
			{Position: 1, Name: "bot-1", Chips: 660, IsAI: true},
		},
		WinnerInfo: &session.WinnerInfo{
			WinnerPosition: 0,
			WinnerName:     "alice",
			PotWon:         340,
			Payoffs:        []int{340, -340},
			Hands: map[int][]deck.Card{
				0: deck.MustParseCards("Ah Kh"),
				1: nil,
			},
		},
	}
}

func TestRecorder(t *testing.T) {
	logger := log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel})
	clock := quartz.NewMock(t)
	clock.Set(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))

	dir := t.TempDir()
	rec := NewRecorder(dir, clock, logger)

	t.Run("ignores running hands", func(t *testing.T) {
		running := settled(1)
		running.IsHandOver = false
		wrote, err := rec.Record(running)
		require.NoError(t, err)
		assert.False(t, wrote)

		_, err = os.Stat(rec.Path(11))
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("records each hand once", func(t *testing.T) {
		wrote, err := rec.Record(settled(1))
		require.NoError(t, err)
		assert.True(t, wrote)

		wrote, err = rec.Record(settled(1))
		require.NoError(t, err)
		assert.False(t, wrote)

		rec.Observe(settled(2))

		game, err := rec.Load(11)
		require.NoError(t, err)
		require.Len(t, game.Hands, 2)

		first := game.Hands[0]
		assert.Equal(t, 1, first.Number)
		assert.Equal(t, "2c 7d Th Js Qh", first.Board)
		assert.Equal(t, "alice", first.WinnerName)
		assert.Equal(t, 340, first.PotWon)
		assert.Equal(t, map[string]string{"0": "Ah Kh"}, first.Shown)
		assert.Len(t, first.Seats, 2)
	})

	t.Run("survives a restart", func(t *testing.T) {
		fresh := NewRecorder(dir, clock, logger)

		wrote, err := fresh.Record(settled(2))
		require.NoError(t, err)
		assert.False(t, wrote, "hand already on disk")

		game, err := fresh.Load(11)
		require.NoError(t, err)
		assert.Len(t, game.Hands, 2)
		assert.True(t, game.UpdatedAt.Equal(clock.Now()))
	})

	t.Run("repeated snapshots stay in memory", func(t *testing.T) {
		require.NoError(t, os.Remove(rec.Path(11)))

		for range 5 {
			rec.Observe(settled(2))
		}
		_, err := os.Stat(rec.Path(11))
		assert.True(t, os.IsNotExist(err), "a repeated hand must not touch the disk")
	})
}
