// Copyright (c) 2026 BVK Chaitanya

// Package amount converts trade funds or free balances into order sizes that
// satisfy the exchange precision rules.
package amount

import (
	"context"
	"fmt"

	"github.com/bvk/fulfill/exchange"
	"github.com/shopspring/decimal"
)

// ResolutionError is returned when an order size cannot be determined.
type ResolutionError struct {
	Op   string
	Pair string
	Err  error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("could not resolve %s amount for %s: %v", e.Op, e.Pair, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

type Resolver struct {
	gw exchange.Gateway
}

func New(gw exchange.Gateway) *Resolver {
	return &Resolver{gw: gw}
}

// Buy returns the target currency quantity that can be bought with funds (in
// base currency) at the given price. Non-positive funds are replaced by the
// free balance of the base currency. Returned funds value is the funds used
// for the computation.
func (r *Resolver) Buy(ctx context.Context, pair exchange.Pair, funds, price decimal.Decimal) (qty, used decimal.Decimal, err error) {
	if !price.IsPositive() {
		return decimal.Zero, decimal.Zero, &ResolutionError{Op: "buy", Pair: pair.String(), Err: fmt.Errorf("price %s is not positive", price)}
	}
	if !funds.IsPositive() {
		balance, err := r.freeBalance(ctx, pair.Base)
		if err != nil {
			return decimal.Zero, decimal.Zero, &ResolutionError{Op: "buy", Pair: pair.String(), Err: err}
		}
		funds = balance
	}

	qty, err = r.gw.AmountToPrecision(pair.String(), funds.Div(price))
	if err != nil {
		return decimal.Zero, decimal.Zero, &ResolutionError{Op: "buy", Pair: pair.String(), Err: err}
	}
	return qty, funds, nil
}

// Sell returns the full free balance of the target currency rounded to the
// exchange precision. Balance is fetched fresh on every call.
func (r *Resolver) Sell(ctx context.Context, pair exchange.Pair) (decimal.Decimal, error) {
	balance, err := r.freeBalance(ctx, pair.Target)
	if err != nil {
		return decimal.Zero, &ResolutionError{Op: "sell", Pair: pair.String(), Err: err}
	}
	qty, err := r.gw.AmountToPrecision(pair.String(), balance)
	if err != nil {
		return decimal.Zero, &ResolutionError{Op: "sell", Pair: pair.String(), Err: err}
	}
	return qty, nil
}

func (r *Resolver) freeBalance(ctx context.Context, currency string) (decimal.Decimal, error) {
	balances, err := r.gw.FetchFreeBalance(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("could not fetch free balance: %w", err)
	}
	balance, ok := balances[currency]
	if !ok {
		return decimal.Zero, nil
	}
	return balance, nil
}
