// Copyright (c) 2026 BVK Chaitanya

package exchange

import (
	"context"
	"io"

	"github.com/shopspring/decimal"
)

// Gateway is the set of exchange operations used to see one limit order
// through to completion. Implementations translate these calls into the
// exchange specific wire protocol.
//
// Pair arguments use the "TARGET/BASE" form, eg: "BTC/USDT".
type Gateway interface {
	io.Closer

	ExchangeName() string

	// FetchLastPrice returns the last trade price for the pair. Errors must
	// wrap ErrPriceUnavailable.
	FetchLastPrice(ctx context.Context, pair string) (decimal.Decimal, error)

	LoadMarkets(ctx context.Context) (map[string]*MarketInfo, error)

	// FetchFreeBalance returns amounts not locked in open orders keyed by the
	// upper-case currency code.
	FetchFreeBalance(ctx context.Context) (map[string]decimal.Decimal, error)

	AmountToPrecision(pair string, amount decimal.Decimal) (decimal.Decimal, error)

	// CreateLimitBuyOrder and CreateLimitSellOrder may fail with
	// ErrInvalidOrder or ErrInsufficientFunds when the exchange rejects the
	// order parameters.
	CreateLimitBuyOrder(ctx context.Context, pair string, amount, price decimal.Decimal) (*OrderHandle, error)
	CreateLimitSellOrder(ctx context.Context, pair string, amount, price decimal.Decimal) (*OrderHandle, error)

	FetchOrder(ctx context.Context, id, symbol string) (*OrderStatus, error)
	CancelOrder(ctx context.Context, id, symbol string) error
}

// Credentials hold the api key and secret for an exchange account.
type Credentials struct {
	Key    string `json:"key" mapstructure:"key"`
	Secret string `json:"secret" mapstructure:"secret"`
}
