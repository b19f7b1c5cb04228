// Copyright (c) 2026 BVK Chaitanya

package fulfill

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

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
	}
	return fmt.Sprintf("Side(%d)", int(s))
}

type State int

const (
	Idle State = iota
	Placing
	Polling
	PartiallyFilled
	Filled
	Rejected
	Aborted
	Stopped
)

var stateNames = []string{
	Idle:            "Idle",
	Placing:         "Placing",
	Polling:         "Polling",
	PartiallyFilled: "PartiallyFilled",
	Filled:          "Filled",
	Rejected:        "Rejected",
	Aborted:         "Aborted",
	Stopped:         "Stopped",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// IsTerminal returns true if no further exchange operations happen in the
// state.
func (s State) IsTerminal() bool {
	return s == Filled || s == Rejected || s == Aborted || s == Stopped
}

// ParseState is the case-insensitive inverse of State.String.
func ParseState(s string) (State, bool) {
	for i, name := range stateNames {
		if strings.EqualFold(name, s) {
			return State(i), true
		}
	}
	return Idle, false
}

// Transition describes a single engine state change. Amount and Price are
// for the order identified by OrderID, if any. Remaining is the remaining
// funds for buys and the remaining order quantity for sells.
type Transition struct {
	UID  string
	Side Side

	From State
	To   State

	OrderID string

	Price     decimal.Decimal
	Amount    decimal.Decimal
	Remaining decimal.Decimal

	Note string

	At time.Time
}

func (t *Transition) String() string {
	s := fmt.Sprintf("%s %s -> %s", t.Side, t.From, t.To)
	if len(t.OrderID) != 0 {
		s += fmt.Sprintf(" order=%s price=%s amount=%s", t.OrderID, t.Price.StringFixed(2), t.Amount)
	}
	if len(t.Note) != 0 {
		s += ": " + t.Note
	}
	return s
}

// Result is the outcome of a buy or sell trade.
type Result struct {
	UID  string
	Side Side

	State State

	Placements    int
	Cancellations int

	// Filled is the total target currency quantity filled. Spent is the
	// total base currency value of the fills.
	Filled decimal.Decimal
	Spent  decimal.Decimal

	// RemainingFunds is meaningful for buys only.
	RemainingFunds decimal.Decimal

	// LastAmount is the last order quantity computed by the engine.
	LastAmount decimal.Decimal

	Err error
}
