// Copyright (c) 2026 BVK Chaitanya

package exchange

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Pair is a tradable instrument. Target currency is bought or sold and is
// priced in the Base currency.
type Pair struct {
	Target string
	Base   string
}

// ParsePair parses a "TARGET/BASE" string.
func ParsePair(s string) (Pair, error) {
	target, base, ok := strings.Cut(s, "/")
	if !ok {
		return Pair{}, fmt.Errorf("pair %q is not in TARGET/BASE form: %w", s, os.ErrInvalid)
	}
	target = strings.ToUpper(strings.TrimSpace(target))
	base = strings.ToUpper(strings.TrimSpace(base))
	if len(target) == 0 || len(base) == 0 || strings.Contains(base, "/") {
		return Pair{}, fmt.Errorf("pair %q is invalid: %w", s, os.ErrInvalid)
	}
	return Pair{Target: target, Base: base}, nil
}

func (p Pair) String() string {
	return p.Target + "/" + p.Base
}

func (p Pair) IsZero() bool {
	return p.Target == "" && p.Base == ""
}

type MarketInfo struct {
	Symbol string
	Target string
	Base   string

	// AmountPrecision is the number of decimal places allowed in order
	// amounts.
	AmountPrecision int32

	MinAmount decimal.Decimal

	Active bool
}

// OrderHandle identifies an order placed on the exchange.
type OrderHandle struct {
	ID     string
	Symbol string

	// Info holds provider specific fields from the placement response, eg:
	// the exchange-internal "orderId".
	Info map[string]string

	CreateTime time.Time
}

// OrderStatus is a single snapshot of an order on the exchange.
type OrderStatus struct {
	ID     string
	Symbol string
	Status string

	Price  decimal.Decimal
	Amount decimal.Decimal

	// Remaining is meaningful only when RemainingKnown is true. Exchanges may
	// not report the unfilled amount for some order states.
	Remaining      decimal.Decimal
	RemainingKnown bool

	Filled decimal.Decimal
	Cost   decimal.Decimal

	// Done is true when the order can no longer be filled (filled, canceled
	// or expired).
	Done bool

	UpdateTime time.Time
}

// IsFilled returns true if the order has no remaining amount.
func (v *OrderStatus) IsFilled() bool {
	return v.RemainingKnown && v.Remaining.IsZero()
}

func (v *OrderStatus) String() string {
	remaining := "unknown"
	if v.RemainingKnown {
		remaining = v.Remaining.String()
	}
	return fmt.Sprintf("{ID: %s Symbol: %s Status: %s Amount: %s Remaining: %s Filled: %s Cost: %s Done: %t}",
		v.ID, v.Symbol, v.Status, v.Amount, remaining, v.Filled, v.Cost, v.Done)
}
