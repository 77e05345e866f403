package deck

import (
	"fmt"
	"strings"
)

// UnknownCode is the wire code for a concealed card.
const UnknownCode = "??"

// Suit represents a card suit
type Suit int

const (
	Spades Suit = iota
	Hearts
	Diamonds
	Clubs
)

// String returns the display symbol of a suit
func (s Suit) String() string {
	switch s {
	case Spades:
		return "♠"
	case Hearts:
		return "♥"
	case Diamonds:
		return "♦"
	case Clubs:
		return "♣"
	default:
		return "?"
	}
}

// Code returns the lowercase wire letter of a suit (s, h, d, c)
func (s Suit) Code() byte {
	switch s {
	case Spades:
		return 's'
	case Hearts:
		return 'h'
	case Diamonds:
		return 'd'
	case Clubs:
		return 'c'
	default:
		return '?'
	}
}

// IsRed returns true if the suit is red (Hearts or Diamonds)
func (s Suit) IsRed() bool {
	return s == Hearts || s == Diamonds
}

// Rank represents a card rank
type Rank int

const (
	Two Rank = iota + 2
	Three
	Four
	Five
	Six
	Seven
	Eight
	Nine
	Ten
	Jack
	Queen
	King
	Ace
)

const rankChars = "23456789TJQKA"

// String returns the wire character of a rank
func (r Rank) String() string {
	if r < Two || r > Ace {
		return "?"
	}
	return string(rankChars[r-Two])
}

// Card is a playing card as seen by the client. A concealed card has
// Hidden set and carries no rank or suit.
type Card struct {
	Suit   Suit
	Rank   Rank
	Hidden bool
}

// Unknown is the concealed card.
var Unknown = Card{Hidden: true}

// NewCard creates a new card
func NewCard(suit Suit, rank Rank) Card {
	return Card{Suit: suit, Rank: rank}
}

// Code returns the two-character wire code (e.g. "Ah", "Td", "??")
func (c Card) Code() string {
	if c.Hidden {
		return UnknownCode
	}
	return c.Rank.String() + string(c.Suit.Code())
}

// String returns the display form of a card (e.g. "A♠")
func (c Card) String() string {
	if c.Hidden {
		return UnknownCode
	}
	return fmt.Sprintf("%s%s", c.Rank, c.Suit)
}

// IsRed returns true if the card is red
func (c Card) IsRed() bool {
	return !c.Hidden && c.Suit.IsRed()
}

// ParseCard parses a two-character wire code. Rank letters are accepted in
// either case; the suit letter is matched case-insensitively.
func ParseCard(code string) (Card, error) {
	if code == UnknownCode {
		return Unknown, nil
	}
	if len(code) != 2 {
		return Card{}, fmt.Errorf("invalid card code %q: want 2 characters", code)
	}

	idx := strings.IndexByte(rankChars, upper(code[0]))
	if idx < 0 {
		return Card{}, fmt.Errorf("invalid rank %q in card %q", code[0], code)
	}

	var suit Suit
	switch lower(code[1]) {
	case 's':
		suit = Spades
	case 'h':
		suit = Hearts
	case 'd':
		suit = Diamonds
	case 'c':
		suit = Clubs
	default:
		return Card{}, fmt.Errorf("invalid suit %q in card %q", code[1], code)
	}

	return NewCard(suit, Two+Rank(idx)), nil
}

// ParseCards parses a list of card codes. Codes may be separated by
// whitespace ("Ah Kd") or written back to back ("AhKd"). An empty
// string yields no cards.
func ParseCards(s string) ([]Card, error) {
	var cards []Card
	for _, field := range strings.Fields(s) {
		if len(field)%2 != 0 {
			return nil, fmt.Errorf("invalid card list %q", s)
		}
		for i := 0; i < len(field); i += 2 {
			card, err := ParseCard(field[i : i+2])
			if err != nil {
				return nil, err
			}
			cards = append(cards, card)
		}
	}
	return cards, nil
}

// MustParseCards is ParseCards for literals; it panics on bad input.
func MustParseCards(s string) []Card {
	cards, err := ParseCards(s)
	if err != nil {
		panic(err)
	}
	return cards
}

// FormatCards joins card codes with single spaces, the wire form the
// backend uses for hands and boards.
func FormatCards(cards []Card) string {
	codes := make([]string, len(cards))
	for i, c := range cards {
		codes[i] = c.Code()
	}
	return strings.Join(codes, " ")
}

func upper(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - 'a' + 'A'
	}
	return b
}

func lower(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b - 'A' + 'a'
	}
	return b
}
