// Copyright (c) 2026 BVK Chaitanya

// Package exchangetest provides a scripted exchange.Gateway for tests.
package exchangetest

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/bvk/fulfill/exchange"
	"github.com/shopspring/decimal"
)

// Fill scripts the state of the n-th placed order as seen by status polls.
type Fill struct {
	// Remaining is the unfilled amount reported for the order. It is capped
	// to the placed amount.
	Remaining decimal.Decimal

	// RemainingUnknown reports the remaining amount as unknown.
	RemainingUnknown bool

	// LateFill is an extra amount filled between the status poll and the
	// cancellation.
	LateFill decimal.Decimal
}

// Placement records a create order call.
type Placement struct {
	Side   string
	Pair   string
	Amount decimal.Decimal
	Price  decimal.Decimal
	Handle *exchange.OrderHandle
}

type order struct {
	placement *Placement
	status    exchange.OrderStatus
}

// Fake is an in-memory gateway driven by scripted prices, balances and
// fills. Exported fields must be set before use.
type Fake struct {
	mu sync.Mutex

	Markets map[string]*exchange.MarketInfo

	// Prices are returned by FetchLastPrice in order; last one repeats.
	Prices []decimal.Decimal

	// PriceFailures makes the next N FetchLastPrice calls fail. It can be
	// raised from OnCancel to fail the quotes of a re-placement.
	PriceFailures int

	// Balances are returned by FetchFreeBalance in order; last one repeats.
	Balances []map[string]decimal.Decimal

	// Fills script each placement by index. Placements beyond the list are
	// filled completely.
	Fills []Fill

	// PlaceErrors fails the placement at the given index.
	PlaceErrors map[int]error

	FetchError  error
	CancelError error

	// OnCancel is invoked after a successful cancel with the fake locked. It
	// must not call back into the fake.
	OnCancel func(id string)

	Placements []*Placement
	Cancels    []string
	FetchIDs   []string
	Calls      []string

	PriceCalls   int
	BalanceCalls int

	// MaxOpen is the maximum number of simultaneously open orders observed.
	MaxOpen int

	priceIndex int

	orders map[string]*order
	open   map[string]bool
}

var _ exchange.Gateway = &Fake{}

// New returns a fake gateway with a single market for the pair using the
// given amount precision.
func New(pair string, precision int32) *Fake {
	p, err := exchange.ParsePair(pair)
	if err != nil {
		panic(err)
	}
	return &Fake{
		Markets: map[string]*exchange.MarketInfo{
			p.String(): {
				Symbol:          p.String(),
				Target:          p.Target,
				Base:            p.Base,
				AmountPrecision: precision,
				Active:          true,
			},
		},
	}
}

func (f *Fake) Close() error {
	return nil
}

func (f *Fake) ExchangeName() string {
	return "fake"
}

// OpenOrders returns the number of orders currently open.
func (f *Fake) OpenOrders() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.open)
}

// CallsTo returns the number of recorded calls with the given name.
func (f *Fake) CallsTo(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, c := range f.Calls {
		if c == name {
			n++
		}
	}
	return n
}

func (f *Fake) FetchLastPrice(ctx context.Context, pair string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Calls = append(f.Calls, "price")
	f.PriceCalls++
	if f.PriceFailures > 0 {
		f.PriceFailures--
		return decimal.Zero, fmt.Errorf("scripted price failure at call %d: %w", f.PriceCalls, exchange.ErrPriceUnavailable)
	}
	if len(f.Prices) == 0 {
		return decimal.Zero, fmt.Errorf("no prices: %w", exchange.ErrPriceUnavailable)
	}
	index := min(f.priceIndex, len(f.Prices)-1)
	f.priceIndex++
	return f.Prices[index], nil
}

func (f *Fake) LoadMarkets(ctx context.Context) (map[string]*exchange.MarketInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Calls = append(f.Calls, "markets")
	markets := make(map[string]*exchange.MarketInfo, len(f.Markets))
	for k, v := range f.Markets {
		m := *v
		markets[k] = &m
	}
	return markets, nil
}

func (f *Fake) FetchFreeBalance(ctx context.Context) (map[string]decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Calls = append(f.Calls, "balance")
	f.BalanceCalls++
	if len(f.Balances) == 0 {
		return map[string]decimal.Decimal{}, nil
	}
	index := f.BalanceCalls - 1
	if index >= len(f.Balances) {
		index = len(f.Balances) - 1
	}
	balances := make(map[string]decimal.Decimal)
	for k, v := range f.Balances[index] {
		balances[k] = v
	}
	return balances, nil
}

func (f *Fake) AmountToPrecision(pair string, amount decimal.Decimal) (decimal.Decimal, error) {
	f.mu.Lock()
	market, ok := f.Markets[pair]
	f.mu.Unlock()

	if !ok {
		return decimal.Zero, fmt.Errorf("pair %q: %w", pair, exchange.ErrUnknownMarket)
	}
	return exchange.TruncateToPrecision(amount, market.AmountPrecision)
}

func (f *Fake) CreateLimitBuyOrder(ctx context.Context, pair string, amount, price decimal.Decimal) (*exchange.OrderHandle, error) {
	return f.create(ctx, "BUY", pair, amount, price)
}

func (f *Fake) CreateLimitSellOrder(ctx context.Context, pair string, amount, price decimal.Decimal) (*exchange.OrderHandle, error) {
	return f.create(ctx, "SELL", pair, amount, price)
}

func (f *Fake) create(ctx context.Context, side, pair string, amount, price decimal.Decimal) (*exchange.OrderHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Calls = append(f.Calls, "place")
	index := len(f.Placements)
	p := &Placement{Side: side, Pair: pair, Amount: amount, Price: price}
	f.Placements = append(f.Placements, p)

	if err, ok := f.PlaceErrors[index]; ok {
		return nil, err
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("amount %s: %w", amount, exchange.ErrInvalidOrder)
	}

	if f.orders == nil {
		f.orders = make(map[string]*order)
		f.open = make(map[string]bool)
	}

	remaining, known := decimal.Zero, true
	if index < len(f.Fills) {
		remaining = decimal.Min(f.Fills[index].Remaining, amount)
		known = !f.Fills[index].RemainingUnknown
	}
	filled := amount.Sub(remaining)

	id := fmt.Sprintf("fake-%d", index)
	p.Handle = &exchange.OrderHandle{
		ID:         id,
		Symbol:     pair,
		Info:       map[string]string{"orderId": strconv.Itoa(1000 + index)},
		CreateTime: time.Now(),
	}
	o := &order{
		placement: p,
		status: exchange.OrderStatus{
			ID:             id,
			Symbol:         pair,
			Status:         "open",
			Price:          price,
			Amount:         amount,
			Remaining:      remaining,
			RemainingKnown: known,
			Filled:         filled,
			Cost:           filled.Mul(price),
		},
	}
	if known && remaining.IsZero() {
		o.status.Status, o.status.Done = "filled", true
	} else {
		f.open[id] = true
	}
	f.orders[id] = o
	f.orders[p.Handle.Info["orderId"]] = o

	if n := len(f.open); n > f.MaxOpen {
		f.MaxOpen = n
	}

	handle := *p.Handle
	return &handle, nil
}

func (f *Fake) FetchOrder(ctx context.Context, id, symbol string) (*exchange.OrderStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Calls = append(f.Calls, "fetch")
	f.FetchIDs = append(f.FetchIDs, id)
	if f.FetchError != nil {
		return nil, f.FetchError
	}
	o, ok := f.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %q: %w", id, exchange.ErrOrderNotFound)
	}
	if o.status.Symbol != symbol {
		return nil, fmt.Errorf("order %q symbol mismatch (%s != %s): %w", id, o.status.Symbol, symbol, exchange.ErrOrderNotFound)
	}
	status := o.status
	return &status, nil
}

func (f *Fake) CancelOrder(ctx context.Context, id, symbol string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Calls = append(f.Calls, "cancel")
	f.Cancels = append(f.Cancels, id)
	if f.CancelError != nil {
		return f.CancelError
	}
	o, ok := f.orders[id]
	if !ok {
		return fmt.Errorf("order %q: %w", id, exchange.ErrOrderNotFound)
	}
	if o.status.Done {
		return fmt.Errorf("order %q is already done: %w", id, exchange.ErrInvalidOrder)
	}

	index := len(f.Placements)
	for i, p := range f.Placements {
		if p == o.placement {
			index = i
		}
	}
	if index < len(f.Fills) {
		if late := decimal.Min(f.Fills[index].LateFill, o.status.Remaining); late.IsPositive() {
			o.status.Remaining = o.status.Remaining.Sub(late)
			o.status.Filled = o.status.Filled.Add(late)
			o.status.Cost = o.status.Filled.Mul(o.status.Price)
		}
	}
	o.status.Status, o.status.Done = "canceled", true
	delete(f.open, o.status.ID)

	if f.OnCancel != nil {
		f.OnCancel(id)
	}
	return nil
}
