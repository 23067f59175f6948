package market

import "fmt"

// Direction is +1 for long and -1 for short.
type Direction int

const (
	Flat  Direction = 0
	Long  Direction = 1
	Short Direction = -1
)

func (d Direction) String() string {
	switch d {
	case Long:
		return "LONG"
	case Short:
		return "SHORT"
	default:
		return "FLAT"
	}
}

// Opposite returns the closing direction.
func (d Direction) Opposite() Direction {
	return -d
}

// Side is the order side that opens a position in this direction.
func (d Direction) Side() Side {
	if d == Short {
		return Sell
	}
	return Buy
}

// Side is an order side.
type Side int

const (
	Buy Side = iota + 1
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return fmt.Sprintf("Side(%d)", int(s))
	}
}

// Direction returns the position direction a fill on this side adds to.
func (s Side) Direction() Direction {
	if s == Sell {
		return Short
	}
	return Long
}
