// Copyright (c) 2026 BVK Chaitanya

package fulfill

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrUnknownOrderState indicates that a trade terminated while an order
	// may still be open on the exchange.
	ErrUnknownOrderState = errors.New("terminated with unknown order state")

	ErrTooManyPlacements = errors.New("too many order placements")
)

// RejectedError is returned when the exchange refuses an order placement. No
// order is left open on the exchange.
type RejectedError struct {
	Side   Side
	Funds  decimal.Decimal
	Amount decimal.Decimal
	Err    error
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("invalid order or quantity: %s rejected with funds %s and amount %s: %v", e.Side, e.Funds, e.Amount, e.Err)
}

func (e *RejectedError) Unwrap() error {
	return e.Err
}

// UnknownOrderStateError is returned when a trade terminates without
// confirming that its last order is closed. OrderID is empty if the
// placement outcome itself is unknown.
type UnknownOrderStateError struct {
	OrderID string
	Symbol  string
	Err     error
}

func (e *UnknownOrderStateError) Error() string {
	if len(e.OrderID) == 0 {
		return fmt.Sprintf("order placement for %s has an unknown outcome: %v", e.Symbol, e.Err)
	}
	return fmt.Sprintf("order %s for %s may still be open: %v", e.OrderID, e.Symbol, e.Err)
}

func (e *UnknownOrderStateError) Unwrap() error {
	return e.Err
}

func (e *UnknownOrderStateError) Is(target error) bool {
	return target == ErrUnknownOrderState
}
