// Copyright (c) 2026 BVK Chaitanya

package gobs

import (
	"bytes"
	"encoding/gob"
	"time"

	"github.com/shopspring/decimal"
)

// Placement is a single order placed on the exchange for a trade.
type Placement struct {
	OrderID string
	Symbol  string

	Price  decimal.Decimal
	Amount decimal.Decimal

	Filled decimal.Decimal
	Cost   decimal.Decimal

	Done   bool
	Status string

	CreateTime time.Time
	FinishTime time.Time
}

// TradeState is the persistent snapshot of a buy or sell trade.
type TradeState struct {
	UID string

	Exchange string
	Side     string
	Pair     string

	Funds          decimal.Decimal
	RefreshSeconds float64

	State string

	RemainingFunds decimal.Decimal

	// OpenOrderID and OpenOrderSymbol are non-empty while an order may be
	// open on the exchange.
	OpenOrderID     string
	OpenOrderSymbol string

	Placements []*Placement

	Cancellations int

	StartTime  time.Time
	FinishTime time.Time

	Error string
}

// Filled returns the total filled amount and cost over all placements.
func (v *TradeState) Filled() (amount, cost decimal.Decimal) {
	for _, p := range v.Placements {
		amount = amount.Add(p.Filled)
		cost = cost.Add(p.Cost)
	}
	return amount, cost
}

func (v *TradeState) Refresh() time.Duration {
	return time.Duration(v.RefreshSeconds * float64(time.Second))
}

// Clone returns a deep copy of the trade state.
func (v *TradeState) Clone() (*TradeState, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	x := new(TradeState)
	if err := gob.NewDecoder(&buf).Decode(x); err != nil {
		return nil, err
	}
	return x, nil
}
