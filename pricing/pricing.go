// Copyright (c) 2026 BVK Chaitanya

// Package pricing decides the limit price to quote for each order placement.
//
// Prices are never cached; every placement asks the exchange for a fresh
// last-trade price. Price unavailability is transient and Quote retries it
// with a fixed backoff.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bvk/fulfill/ctxutil"
	"github.com/bvk/fulfill/exchange"
	"github.com/shopspring/decimal"
)

type Options struct {
	// RetryInterval is the fixed backoff between price fetch attempts.
	RetryInterval time.Duration

	// MaxAttempts limits the number of price fetch attempts by Quote. Zero
	// retries until the context is canceled.
	MaxAttempts int
}

func (v *Options) setDefaults() {
	if v.RetryInterval == 0 {
		v.RetryInterval = 5 * time.Second
	}
}

func (v *Options) Check() error {
	if v.RetryInterval < 0 {
		return fmt.Errorf("retry interval cannot be negative")
	}
	if v.MaxAttempts < 0 {
		return fmt.Errorf("max attempts cannot be negative")
	}
	return nil
}

// Quote is a price snapshot for immediate use.
type Quote struct {
	Price decimal.Decimal
	At    time.Time
}

type Policy struct {
	gw   exchange.Gateway
	opts Options
}

func New(gw exchange.Gateway, opts *Options) (*Policy, error) {
	if opts == nil {
		opts = new(Options)
	}
	opts.setDefaults()
	if err := opts.Check(); err != nil {
		return nil, err
	}
	return &Policy{gw: gw, opts: *opts}, nil
}

// CurrentPrice returns the last trade price for the pair. All failures wrap
// exchange.ErrPriceUnavailable.
func (p *Policy) CurrentPrice(ctx context.Context, pair string) (decimal.Decimal, error) {
	price, err := p.gw.FetchLastPrice(ctx, pair)
	if err != nil {
		if errors.Is(err, exchange.ErrPriceUnavailable) {
			return decimal.Zero, err
		}
		return decimal.Zero, fmt.Errorf("could not fetch last price for %s: %w: %w", pair, exchange.ErrPriceUnavailable, err)
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("last price %s for %s is not positive: %w", price, pair, exchange.ErrPriceUnavailable)
	}
	return price, nil
}

// Quote fetches the current price, retrying with a fixed backoff till it
// succeeds, the context is canceled or the max attempts are exhausted.
func (p *Policy) Quote(ctx context.Context, pair string) (*Quote, error) {
	var price decimal.Decimal
	attempt := 0
	fetch := func() (err error) {
		attempt++
		price, err = p.CurrentPrice(ctx, pair)
		if err != nil && ctx.Err() == nil {
			slog.Warn("could not fetch current price (will retry)", "pair", pair, "attempt", attempt, "retry-interval", p.opts.RetryInterval, "err", err)
		}
		return err
	}
	if err := ctxutil.RetryN(ctx, p.opts.RetryInterval, p.opts.MaxAttempts, fetch); err != nil {
		if cause := context.Cause(ctx); cause != nil {
			return nil, cause
		}
		return nil, fmt.Errorf("price for %s is unavailable after %d attempts: %w", pair, attempt, err)
	}
	return &Quote{Price: price, At: time.Now()}, nil
}
