// Copyright (c) 2026 BVK Chaitanya

// Package paper implements an in-memory exchange gateway with virtual
// balances. Limit orders fill at their limit price when they are polled.
package paper

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/bvk/fulfill/exchange"
	"github.com/shopspring/decimal"
)

const Name = "paper"

func init() {
	exchange.MustRegister(Name, func(ctx context.Context, _ *exchange.Credentials) (exchange.Gateway, error) {
		return New(DefaultOptions())
	})
}

type Options struct {
	// Balances are the initial free balances keyed by currency.
	Balances map[string]decimal.Decimal

	// Prices are the last trade prices keyed by "TARGET/BASE" pair. Every
	// pair with a price is a tradable market.
	Prices map[string]decimal.Decimal

	// AmountPrecision is the number of decimal places allowed in order
	// amounts for all markets.
	AmountPrecision int32

	// PartialFills is the number of initial orders that fill only partially.
	// Such orders fill FillRatio of their amount on the first status poll.
	PartialFills int
	FillRatio    decimal.Decimal
}

// DefaultOptions returns the options used by the registered "paper"
// exchange.
func DefaultOptions() *Options {
	return &Options{
		Balances: map[string]decimal.Decimal{
			"USDT": decimal.NewFromInt(10000),
			"BTC":  decimal.NewFromInt(1),
			"ETH":  decimal.NewFromInt(10),
		},
		Prices: map[string]decimal.Decimal{
			"BTC/USDT": decimal.NewFromInt(50000),
			"ETH/USDT": decimal.NewFromInt(3000),
		},
		AmountPrecision: 6,
		PartialFills:    1,
		FillRatio:       decimal.RequireFromString("0.5"),
	}
}

func (v *Options) Check() error {
	if v.AmountPrecision < 0 {
		return fmt.Errorf("amount precision cannot be negative")
	}
	if v.PartialFills < 0 {
		return fmt.Errorf("partial fills cannot be negative")
	}
	if v.PartialFills > 0 && (!v.FillRatio.IsPositive() || v.FillRatio.GreaterThan(decimal.NewFromInt(1))) {
		return fmt.Errorf("fill ratio must be in (0, 1]")
	}
	return nil
}

type order struct {
	status exchange.OrderStatus

	side    string
	pair    exchange.Pair
	partial bool
}

type Gateway struct {
	mu sync.Mutex

	opts Options

	free   map[string]decimal.Decimal
	prices map[string]decimal.Decimal

	norders int
	orders  map[string]*order
}

var _ exchange.Gateway = &Gateway{}

func New(opts *Options) (*Gateway, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if err := opts.Check(); err != nil {
		return nil, err
	}
	g := &Gateway{
		opts:   *opts,
		free:   make(map[string]decimal.Decimal),
		prices: make(map[string]decimal.Decimal),
		orders: make(map[string]*order),
	}
	for k, v := range opts.Balances {
		g.free[k] = v
	}
	for k, v := range opts.Prices {
		p, err := exchange.ParsePair(k)
		if err != nil {
			return nil, err
		}
		g.prices[p.String()] = v
	}
	return g, nil
}

func (g *Gateway) Close() error {
	return nil
}

func (g *Gateway) ExchangeName() string {
	return Name
}

// SetPrice updates the last trade price of a pair.
func (g *Gateway) SetPrice(pair string, price decimal.Decimal) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prices[pair] = price
}

func (g *Gateway) FetchLastPrice(ctx context.Context, pair string) (decimal.Decimal, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	price, ok := g.prices[pair]
	if !ok {
		return decimal.Zero, fmt.Errorf("no price for %s: %w", pair, exchange.ErrPriceUnavailable)
	}
	return price, nil
}

func (g *Gateway) LoadMarkets(ctx context.Context) (map[string]*exchange.MarketInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	markets := make(map[string]*exchange.MarketInfo)
	for k := range g.prices {
		p, _ := exchange.ParsePair(k)
		markets[k] = &exchange.MarketInfo{
			Symbol:          k,
			Target:          p.Target,
			Base:            p.Base,
			AmountPrecision: g.opts.AmountPrecision,
			Active:          true,
		}
	}
	return markets, nil
}

func (g *Gateway) FetchFreeBalance(ctx context.Context) (map[string]decimal.Decimal, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	balances := make(map[string]decimal.Decimal, len(g.free))
	for k, v := range g.free {
		balances[k] = v
	}
	return balances, nil
}

func (g *Gateway) AmountToPrecision(pair string, amount decimal.Decimal) (decimal.Decimal, error) {
	g.mu.Lock()
	_, ok := g.prices[pair]
	g.mu.Unlock()

	if !ok {
		return decimal.Zero, fmt.Errorf("pair %s: %w", pair, exchange.ErrUnknownMarket)
	}
	return exchange.TruncateToPrecision(amount, g.opts.AmountPrecision)
}

func (g *Gateway) CreateLimitBuyOrder(ctx context.Context, pair string, amount, price decimal.Decimal) (*exchange.OrderHandle, error) {
	return g.create("BUY", pair, amount, price)
}

func (g *Gateway) CreateLimitSellOrder(ctx context.Context, pair string, amount, price decimal.Decimal) (*exchange.OrderHandle, error) {
	return g.create("SELL", pair, amount, price)
}

func (g *Gateway) create(side, pair string, amount, price decimal.Decimal) (*exchange.OrderHandle, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, err := exchange.ParsePair(pair)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", exchange.ErrInvalidOrder, err)
	}
	if _, ok := g.prices[pair]; !ok {
		return nil, fmt.Errorf("pair %s: %w", pair, exchange.ErrUnknownMarket)
	}
	if !amount.IsPositive() || !price.IsPositive() {
		return nil, fmt.Errorf("amount %s and price %s must be positive: %w", amount, price, exchange.ErrInvalidOrder)
	}
	if !amount.Equal(amount.Truncate(g.opts.AmountPrecision)) {
		return nil, fmt.Errorf("amount %s exceeds precision %d: %w", amount, g.opts.AmountPrecision, exchange.ErrInvalidOrder)
	}

	// Lock the funds required by the order.
	currency, required := p.Base, amount.Mul(price)
	if side == "SELL" {
		currency, required = p.Target, amount
	}
	if free := g.free[currency]; free.LessThan(required) {
		return nil, fmt.Errorf("need %s %s, have %s: %w", required, currency, free, exchange.ErrInsufficientFunds)
	}
	g.free[currency] = g.free[currency].Sub(required)

	g.norders++
	id := fmt.Sprintf("paper-%d", g.norders)
	now := time.Now()
	o := &order{
		side:    side,
		pair:    p,
		partial: g.norders <= g.opts.PartialFills,
		status: exchange.OrderStatus{
			ID:             id,
			Symbol:         pair,
			Status:         "open",
			Price:          price,
			Amount:         amount,
			Remaining:      amount,
			RemainingKnown: true,
			UpdateTime:     now,
		},
	}
	internalID := strconv.Itoa(g.norders)
	g.orders[id] = o
	g.orders[internalID] = o

	slog.Info("paper order created", "order-id", id, "side", side, "pair", pair, "amount", amount, "price", price)
	return &exchange.OrderHandle{
		ID:         id,
		Symbol:     pair,
		Info:       map[string]string{"orderId": internalID},
		CreateTime: now,
	}, nil
}

func (g *Gateway) lookup(id, symbol string) (*order, error) {
	o, ok := g.orders[id]
	if !ok || o.status.Symbol != symbol {
		return nil, fmt.Errorf("order %s for %s: %w", id, symbol, exchange.ErrOrderNotFound)
	}
	return o, nil
}

func (g *Gateway) FetchOrder(ctx context.Context, id, symbol string) (*exchange.OrderStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	o, err := g.lookup(id, symbol)
	if err != nil {
		return nil, err
	}
	if !o.status.Done {
		fill := o.status.Remaining
		if o.partial {
			fill = decimal.Min(fill, o.status.Amount.Mul(g.opts.FillRatio).Truncate(g.opts.AmountPrecision))
			o.partial = false
		}
		g.fill(o, fill)
	}
	status := o.status
	return &status, nil
}

// fill executes the given amount of an open order at its limit price.
func (g *Gateway) fill(o *order, amount decimal.Decimal) {
	if !amount.IsPositive() {
		return
	}
	value := amount.Mul(o.status.Price)
	if o.side == "BUY" {
		g.free[o.pair.Target] = g.free[o.pair.Target].Add(amount)
	} else {
		g.free[o.pair.Base] = g.free[o.pair.Base].Add(value)
	}
	o.status.Remaining = o.status.Remaining.Sub(amount)
	o.status.Filled = o.status.Filled.Add(amount)
	o.status.Cost = o.status.Cost.Add(value)
	o.status.UpdateTime = time.Now()
	if o.status.Remaining.IsZero() {
		o.status.Status, o.status.Done = "filled", true
	} else {
		o.status.Status = "part_filled"
	}
}

func (g *Gateway) CancelOrder(ctx context.Context, id, symbol string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	o, err := g.lookup(id, symbol)
	if err != nil {
		return err
	}
	if o.status.Done {
		return fmt.Errorf("order %s is already %s: %w", id, o.status.Status, exchange.ErrInvalidOrder)
	}

	// Release the funds locked for the unfilled amount.
	if o.side == "BUY" {
		g.free[o.pair.Base] = g.free[o.pair.Base].Add(o.status.Remaining.Mul(o.status.Price))
	} else {
		g.free[o.pair.Target] = g.free[o.pair.Target].Add(o.status.Remaining)
	}
	o.status.Status, o.status.Done = "canceled", true
	o.status.UpdateTime = time.Now()
	slog.Info("paper order canceled", "order-id", o.status.ID, "filled", o.status.Filled, "remaining", o.status.Remaining)
	return nil
}
