// Copyright (c) 2026 BVK Chaitanya

package fulfill

import (
	"fmt"
	"os"
	"time"

	"github.com/bvk/fulfill/exchange"
	"github.com/bvk/fulfill/pricing"
	"github.com/bvkgo/kv"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TradeRequest is the configuration for a single trade. Engine keeps a copy
// and never modifies it.
type TradeRequest struct {
	Exchange    string
	Credentials exchange.Credentials

	Pair exchange.Pair

	// Funds is the amount of base currency to spend on buys. Non-positive
	// value uses the entire free balance of the base currency. Sells always
	// use the entire free balance of the target currency.
	Funds decimal.Decimal

	// Refresh is the wait between an order placement and its status poll.
	Refresh time.Duration
}

func (r *TradeRequest) Check() error {
	if r.Pair.IsZero() || len(r.Pair.Target) == 0 || len(r.Pair.Base) == 0 {
		return fmt.Errorf("trade pair is not set: %w", os.ErrInvalid)
	}
	if r.Refresh <= 0 {
		return fmt.Errorf("refresh interval must be positive: %w", os.ErrInvalid)
	}
	return nil
}

// FundsMode selects how remaining funds are updated from the filled cost of
// a buy order.
type FundsMode int

const (
	// FundsAbsolute sets remaining funds to |remaining - cost|.
	FundsAbsolute FundsMode = iota

	// FundsClamped sets remaining funds to max(remaining - cost, 0).
	FundsClamped
)

func ParseFundsMode(s string) (FundsMode, error) {
	switch s {
	case "", "absolute":
		return FundsAbsolute, nil
	case "clamped":
		return FundsClamped, nil
	}
	return FundsAbsolute, fmt.Errorf("funds mode %q is not one of absolute or clamped: %w", s, os.ErrInvalid)
}

func (m FundsMode) update(remaining, cost decimal.Decimal) decimal.Decimal {
	v := remaining.Sub(cost)
	if m == FundsClamped {
		return decimal.Max(v, decimal.Zero)
	}
	return v.Abs()
}

type Options struct {
	// UID identifies the trade in the database and in transitions. A random
	// uuid is used when empty.
	UID string

	// BuyOrderID and SellOrderID select the order identifier used for status
	// polls and cancellations. Buy side uses the order handle symbol and sell
	// side uses the trade pair as the symbol.
	BuyOrderID  exchange.OrderIDFunc
	SellOrderID exchange.OrderIDFunc

	FundsMode FundsMode

	// MaxPlacements limits the number of orders placed by a trade. Zero
	// means no limit.
	MaxPlacements int

	// CancelPollInterval and CancelPollAttempts control the status polls
	// that confirm an order cancellation.
	CancelPollInterval time.Duration
	CancelPollAttempts int

	// StopTimeout bounds the cancellation of an open order after the trade
	// context is canceled.
	StopTimeout time.Duration

	Pricing pricing.Options

	// Database, when non-nil, receives a trade state snapshot on every state
	// transition.
	Database kv.Database
}

func (v *Options) setDefaults() {
	if len(v.UID) == 0 {
		v.UID = uuid.New().String()
	}
	if v.BuyOrderID == nil {
		v.BuyOrderID = exchange.HandleID
	}
	if v.SellOrderID == nil {
		v.SellOrderID = exchange.InfoOrderID
	}
	if v.CancelPollInterval == 0 {
		v.CancelPollInterval = time.Second
	}
	if v.CancelPollAttempts == 0 {
		v.CancelPollAttempts = 10
	}
	if v.StopTimeout == 0 {
		v.StopTimeout = time.Minute
	}
}

func (v *Options) Check() error {
	if v.MaxPlacements < 0 {
		return fmt.Errorf("max placements cannot be negative: %w", os.ErrInvalid)
	}
	if v.CancelPollInterval < 0 || v.CancelPollAttempts < 0 || v.StopTimeout < 0 {
		return fmt.Errorf("cancel poll parameters cannot be negative: %w", os.ErrInvalid)
	}
	if v.FundsMode != FundsAbsolute && v.FundsMode != FundsClamped {
		return fmt.Errorf("invalid funds mode %d: %w", v.FundsMode, os.ErrInvalid)
	}
	return nil
}
