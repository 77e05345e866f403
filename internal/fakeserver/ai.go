package fakeserver

import "github.com/lox/pokerclient/internal/deck"

var aggression = map[string]float64{
	"easy":   0.1,
	"medium": 0.25,
	"hard":   0.4,
}

// strength is a rough 0..1 rating of a seat's cards: the starting hand
// percentile, lifted for each board card the seat pairs.
func (t *Table) strength(s *seat) float64 {
	v := deck.StartingHandPercentile(s.hole)
	for _, c := range t.board {
		for _, h := range s.hole {
			if c.Rank == h.Rank {
				v += 0.25
			}
		}
	}
	return min(v, 1)
}

// decide picks an action for the AI seat to act.
func (t *Table) decide(s *seat) (int, *int) {
	agg, ok := aggression[t.difficulty]
	if !ok {
		agg = aggression["medium"]
	}
	str := t.strength(s)
	roll := t.rng.Float64()
	toCall := t.currentBet - s.bet

	if lo, hi, ok := t.raiseBounds(s); ok && roll < agg*str*2 {
		amount := lo
		if str > 0.7 {
			amount = min(hi, lo+t.bb*2)
		}
		return ActRaiseTo, &amount
	}

	if toCall == 0 {
		return ActCheckCall, nil
	}
	if toCall <= t.bb || str+roll*0.3 > 0.5 || toCall*4 <= s.chips && str > 0.3 {
		return ActCheckCall, nil
	}
	return ActFold, nil
}
