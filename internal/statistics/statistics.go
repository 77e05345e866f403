// Package statistics summarizes one player's results over recorded hands,
// in big blinds.
package statistics

import (
	"fmt"
	"math"
	"sort"

	"github.com/lox/pokerclient/internal/history"
)

// BigPotBB is the pot size, in big blinds, from which a pot counts as big.
const BigPotBB = 50

// HandResult is the outcome of a single hand for the tracked player
type HandResult struct {
	NetBB          float64
	Position       int
	WentToShowdown bool
	PotBB          float64
}

// SeatStats tracks results from one seat
type SeatStats struct {
	Hands int
	SumBB float64
}

// Statistics accumulates hand results
type Statistics struct {
	Player string
	Hands  int
	SumBB  float64
	SumBB2 float64
	Values []float64

	ShowdownWins    int
	NonShowdownWins int
	ShowdownBB      float64
	NonShowdownBB   float64

	Seats map[int]*SeatStats

	MaxPotBB  float64
	BigPots   int
	BigPotsBB float64
}

// New creates empty statistics for player.
func New(player string) *Statistics {
	return &Statistics{Player: player, Seats: make(map[int]*SeatStats)}
}

// FromGame builds statistics for player from a recorded game. Hands the
// player did not sit in, or that carry no payoffs or big blind, are skipped.
func FromGame(game *history.Game, player string) *Statistics {
	s := New(player)
	for _, h := range game.Hands {
		if h.BigBlind <= 0 {
			continue
		}
		pos := -1
		for _, seat := range h.Seats {
			if seat.Name == player {
				pos = seat.Position
			}
		}
		if pos < 0 || pos >= len(h.Payoffs) {
			continue
		}
		bb := float64(h.BigBlind)
		s.Add(HandResult{
			NetBB:          float64(h.Payoffs[pos]) / bb,
			Position:       pos,
			WentToShowdown: len(h.Shown) > 1,
			PotBB:          float64(h.PotWon) / bb,
		})
	}
	return s
}

// Add incorporates a hand result
func (s *Statistics) Add(result HandResult) {
	netBB := result.NetBB
	s.Hands++
	s.SumBB += netBB
	s.SumBB2 += netBB * netBB
	s.Values = append(s.Values, netBB)

	if result.WentToShowdown {
		s.ShowdownBB += netBB
		if netBB > 0 {
			s.ShowdownWins++
		}
	} else {
		s.NonShowdownBB += netBB
		if netBB > 0 {
			s.NonShowdownWins++
		}
	}

	if s.Seats == nil {
		s.Seats = make(map[int]*SeatStats)
	}
	seat, ok := s.Seats[result.Position]
	if !ok {
		seat = &SeatStats{}
		s.Seats[result.Position] = seat
	}
	seat.Hands++
	seat.SumBB += netBB

	if result.PotBB > s.MaxPotBB {
		s.MaxPotBB = result.PotBB
	}
	if result.PotBB >= BigPotBB {
		s.BigPots++
		s.BigPotsBB += netBB
	}
}

// Mean returns the average result in big blinds per hand
func (s *Statistics) Mean() float64 {
	if s.Hands == 0 {
		return 0
	}
	return s.SumBB / float64(s.Hands)
}

// BB100 returns the win rate in big blinds per hundred hands
func (s *Statistics) BB100() float64 {
	return s.Mean() * 100
}

// Variance returns the sample variance
func (s *Statistics) Variance() float64 {
	if s.Hands < 2 {
		return 0
	}
	mean := s.Mean()
	return (s.SumBB2 - float64(s.Hands)*mean*mean) / float64(s.Hands-1)
}

// StdDev returns the sample standard deviation
func (s *Statistics) StdDev() float64 {
	return math.Sqrt(s.Variance())
}

// StdError returns the standard error of the mean
func (s *Statistics) StdError() float64 {
	if s.Hands == 0 {
		return 0
	}
	return s.StdDev() / math.Sqrt(float64(s.Hands))
}

// ConfidenceInterval95 returns the 95% confidence interval for the mean
func (s *Statistics) ConfidenceInterval95() (float64, float64) {
	mean := s.Mean()
	margin := 1.96 * s.StdError()
	return mean - margin, mean + margin
}

// Median returns the median result
func (s *Statistics) Median() float64 {
	return s.Percentile(0.5)
}

// Percentile returns the value at p, between 0 and 1
func (s *Statistics) Percentile(p float64) float64 {
	if len(s.Values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), s.Values...)
	sort.Float64s(sorted)

	index := p * float64(len(sorted)-1)
	lower := int(index)
	if lower+1 >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	weight := index - float64(lower)
	return sorted[lower]*(1-weight) + sorted[lower+1]*weight
}

// SeatMean returns the mean result from position
func (s *Statistics) SeatMean(position int) float64 {
	seat, ok := s.Seats[position]
	if !ok || seat.Hands == 0 {
		return 0
	}
	return seat.SumBB / float64(seat.Hands)
}

// Validate checks that the buckets add up
func (s *Statistics) Validate() error {
	if math.Abs(s.SumBB-s.ShowdownBB-s.NonShowdownBB) > 1e-6 {
		return fmt.Errorf("ledger mismatch: total=%.6f showdown=%.6f non-showdown=%.6f",
			s.SumBB, s.ShowdownBB, s.NonShowdownBB)
	}
	if len(s.Values) != s.Hands {
		return fmt.Errorf("values length (%d) does not match hands (%d)", len(s.Values), s.Hands)
	}
	if wins := s.ShowdownWins + s.NonShowdownWins; wins > s.Hands {
		return fmt.Errorf("wins (%d) exceed hands (%d)", wins, s.Hands)
	}
	seatHands := 0
	for _, seat := range s.Seats {
		seatHands += seat.Hands
	}
	if seatHands != s.Hands {
		return fmt.Errorf("seat hands (%d) do not match hands (%d)", seatHands, s.Hands)
	}
	return nil
}
