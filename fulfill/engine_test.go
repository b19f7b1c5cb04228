// Copyright (c) 2026 BVK Chaitanya

package fulfill

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/bvk/fulfill/exchange"
	"github.com/bvk/fulfill/exchange/exchangetest"
	"github.com/bvk/fulfill/store"
	"github.com/bvkgo/kv/kvmemdb"
	"github.com/shopspring/decimal"
	"github.com/visvasity/topic"
)

var btcusdt = exchange.Pair{Target: "BTC", Base: "USDT"}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func prices(vs ...int64) []decimal.Decimal {
	var ps []decimal.Decimal
	for _, v := range vs {
		ps = append(ps, decimal.NewFromInt(v))
	}
	return ps
}

func newTestEngine(t *testing.T, fake *exchangetest.Fake, funds decimal.Decimal, opts *Options) *Engine {
	req := &TradeRequest{
		Exchange: "fake",
		Pair:     btcusdt,
		Funds:    funds,
		Refresh:  time.Millisecond,
	}
	if opts == nil {
		opts = new(Options)
	}
	opts.CancelPollInterval = time.Millisecond
	opts.Pricing.RetryInterval = time.Millisecond
	e, err := New(fake, req, opts)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestBuyEndToEnd(t *testing.T) {
	ctx := context.Background()

	fake := exchangetest.New("BTC/USDT", 8)
	fake.Prices = prices(50000, 49000)
	fake.Fills = []exchangetest.Fill{
		{Remaining: d("0.01")},
		{Remaining: decimal.Zero},
	}

	db := kvmemdb.New()
	e := newTestEngine(t, fake, decimal.NewFromInt(1000), &Options{Database: db})

	receiver, err := e.Transitions()
	if err != nil {
		t.Fatal(err)
	}
	defer receiver.Close()

	res, err := e.Buy(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.State != Filled {
		t.Fatalf("want Filled, got %s", res.State)
	}
	if len(fake.Placements) != 2 {
		t.Fatalf("want 2 placements, got %d", len(fake.Placements))
	}
	if len(fake.Cancels) != 1 || fake.Cancels[0] != "fake-0" {
		t.Fatalf("want one cancel of fake-0, got %v", fake.Cancels)
	}
	if p := fake.Placements[0]; !p.Amount.Equal(d("0.02")) || !p.Price.Equal(decimal.NewFromInt(50000)) {
		t.Fatalf("want 0.02 at 50000, got %s at %s", p.Amount, p.Price)
	}
	if p := fake.Placements[1]; !p.Amount.Equal(d("0.01020408")) || !p.Price.Equal(decimal.NewFromInt(49000)) {
		t.Fatalf("want 0.01020408 at 49000, got %s at %s", p.Amount, p.Price)
	}
	if diff := res.Spent.Sub(decimal.NewFromInt(1000)).Abs(); diff.GreaterThan(d("0.01")) {
		t.Fatalf("want spent ~1000, got %s", res.Spent)
	}
	if !res.Filled.Equal(d("0.02020408")) {
		t.Fatalf("want filled 0.02020408, got %s", res.Filled)
	}
	if res.Placements != 2 || res.Cancellations != 1 {
		t.Fatalf("want 2 placements and 1 cancellation, got %d and %d", res.Placements, res.Cancellations)
	}
	if fake.MaxOpen > 1 {
		t.Fatalf("want at most one open order, got %d", fake.MaxOpen)
	}
	if fake.OpenOrders() != 0 {
		t.Fatalf("want no open orders, got %d", fake.OpenOrders())
	}

	state, err := store.LoadDB(ctx, db, e.UID())
	if err != nil {
		t.Fatal(err)
	}
	if state.State != "Filled" || len(state.Placements) != 2 || state.OpenOrderID != "" {
		t.Fatalf("want saved Filled state with 2 placements and no open order, got %s/%d/%q", state.State, len(state.Placements), state.OpenOrderID)
	}
	if state.Cancellations != 1 {
		t.Fatalf("want 1 saved cancellation, got %d", state.Cancellations)
	}

	ch, err := topic.ReceiveCh(receiver)
	if err != nil {
		t.Fatal(err)
	}
	var prev *Transition
	for done := false; !done; {
		var tr *Transition
		select {
		case v, ok := <-ch:
			if !ok {
				done = true
				continue
			}
			tr = v
		case <-time.After(100 * time.Millisecond):
			done = true
			continue
		}
		if prev == nil && (tr.From != Idle || tr.To != Placing) {
			t.Fatalf("want first transition Idle -> Placing, got %s", tr)
		}
		if prev != nil && tr.From != prev.To {
			t.Fatalf("want transition from %s, got %s", prev.To, tr)
		}
		prev = tr
	}
}

func TestBuyFillsOnNthPlacement(t *testing.T) {
	ctx := context.Background()

	for n := 1; n <= 4; n++ {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			fake := exchangetest.New("BTC/USDT", 8)
			fake.Prices = prices(100)
			for i := 1; i < n; i++ {
				fake.Fills = append(fake.Fills, exchangetest.Fill{Remaining: d("0.5")})
			}

			e := newTestEngine(t, fake, decimal.NewFromInt(1000), nil)
			res, err := e.Buy(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if res.State != Filled {
				t.Fatalf("want Filled, got %s", res.State)
			}
			if len(fake.Placements) != n {
				t.Fatalf("want %d placements, got %d", n, len(fake.Placements))
			}
			if len(fake.Cancels) != n-1 {
				t.Fatalf("want %d cancels, got %d", n-1, len(fake.Cancels))
			}
			if fake.MaxOpen > 1 {
				t.Fatalf("want at most one open order, got %d", fake.MaxOpen)
			}
			// Quantity never exceeds the remaining funds at the quote price.
			funds := decimal.NewFromInt(1000)
			for i, p := range fake.Placements {
				if p.Amount.Mul(p.Price).GreaterThan(funds) {
					t.Fatalf("placement %d: want amount within funds %s, got %s at %s", i, funds, p.Amount, p.Price)
				}
				if i < len(fake.Fills) {
					funds = funds.Sub(p.Amount.Sub(d("0.5")).Mul(p.Price)).Abs()
				}
			}
		})
	}
}

func TestBuyRejectedInsufficientFunds(t *testing.T) {
	ctx := context.Background()

	fake := exchangetest.New("BTC/USDT", 8)
	fake.Prices = prices(50000)
	fake.PlaceErrors = map[int]error{0: fmt.Errorf("balance too low: %w", exchange.ErrInsufficientFunds)}

	e := newTestEngine(t, fake, decimal.NewFromInt(1000), nil)
	res, err := e.Buy(ctx)

	var rerr *RejectedError
	if !errors.As(err, &rerr) {
		t.Fatalf("want RejectedError, got %v", err)
	}
	if !errors.Is(err, exchange.ErrInsufficientFunds) {
		t.Fatalf("want ErrInsufficientFunds, got %v", err)
	}
	if res.State != Rejected || e.State() != Rejected {
		t.Fatalf("want Rejected, got %s", res.State)
	}
	if !rerr.Amount.Equal(d("0.02")) || !res.LastAmount.Equal(d("0.02")) {
		t.Fatalf("want last amount 0.02, got %s", rerr.Amount)
	}
	if !rerr.Funds.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("want funds 1000, got %s", rerr.Funds)
	}
	if n := fake.CallsTo("cancel"); n != 0 {
		t.Fatalf("want no cancel calls, got %d", n)
	}
	if n := fake.CallsTo("fetch"); n != 0 {
		t.Fatalf("want no fetch calls, got %d", n)
	}
}

func TestBuyUsesFreeBalance(t *testing.T) {
	ctx := context.Background()

	fake := exchangetest.New("BTC/USDT", 8)
	fake.Prices = prices(100)
	fake.Balances = []map[string]decimal.Decimal{{"USDT": decimal.NewFromInt(250)}}

	e := newTestEngine(t, fake, decimal.Zero, nil)
	res, err := e.Buy(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !fake.Placements[0].Amount.Equal(d("2.5")) {
		t.Fatalf("want 2.5, got %s", fake.Placements[0].Amount)
	}
	if !res.Spent.Equal(decimal.NewFromInt(250)) {
		t.Fatalf("want 250, got %s", res.Spent)
	}
}

func TestSellRefetchesBalance(t *testing.T) {
	ctx := context.Background()

	fake := exchangetest.New("BTC/USDT", 8)
	fake.Prices = prices(100)
	fake.Balances = []map[string]decimal.Decimal{
		{"BTC": d("2.5")},
		{"BTC": d("0.9")},
	}
	fake.Fills = []exchangetest.Fill{{Remaining: d("1.0")}}

	e := newTestEngine(t, fake, decimal.Zero, nil)
	res, err := e.Sell(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.State != Filled {
		t.Fatalf("want Filled, got %s", res.State)
	}
	if len(fake.Placements) != 2 {
		t.Fatalf("want 2 placements, got %d", len(fake.Placements))
	}
	if p := fake.Placements[0]; p.Side != "SELL" || !p.Amount.Equal(d("2.5")) {
		t.Fatalf("want SELL 2.5, got %s %s", p.Side, p.Amount)
	}
	if !fake.Placements[1].Amount.Equal(d("0.9")) {
		t.Fatalf("want second amount from fresh balance 0.9, got %s", fake.Placements[1].Amount)
	}
	if fake.BalanceCalls != 2 {
		t.Fatalf("want 2 balance calls, got %d", fake.BalanceCalls)
	}
	// Sell side polls and cancels with the exchange-internal order id.
	if fake.FetchIDs[0] != "1000" || fake.Cancels[0] != "1000" {
		t.Fatalf("want order id 1000, got fetch %q cancel %q", fake.FetchIDs[0], fake.Cancels[0])
	}
}

func TestFilledIsIdempotent(t *testing.T) {
	ctx := context.Background()

	fake := exchangetest.New("BTC/USDT", 8)
	fake.Prices = prices(100)

	e := newTestEngine(t, fake, decimal.NewFromInt(100), nil)
	first, err := e.Buy(ctx)
	if err != nil {
		t.Fatal(err)
	}
	ncalls := len(fake.Calls)

	second, err := e.Buy(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if second != first {
		t.Fatalf("want the same result, got a new one")
	}
	if len(fake.Calls) != ncalls {
		t.Fatalf("want no more gateway calls, got %v", fake.Calls[ncalls:])
	}
	if _, err := e.Sell(ctx); err == nil {
		t.Fatalf("want non-nil error, got nil")
	}
}

func TestUnknownRemainingIsPartial(t *testing.T) {
	ctx := context.Background()

	fake := exchangetest.New("BTC/USDT", 8)
	fake.Prices = prices(100)
	fake.Fills = []exchangetest.Fill{{Remaining: decimal.Zero, RemainingUnknown: true}}

	e := newTestEngine(t, fake, decimal.NewFromInt(100), &Options{FundsMode: FundsClamped})
	res, err := e.Buy(ctx)
	if err != nil {
		t.Fatal(err)
	}
	// First order is fully filled but reports no remaining amount, so it is
	// canceled and the trade completes because remaining funds are zero.
	if res.State != Filled {
		t.Fatalf("want Filled, got %s", res.State)
	}
	if len(fake.Cancels) != 1 {
		t.Fatalf("want 1 cancel, got %d", len(fake.Cancels))
	}
}

func TestLateFillOnCancel(t *testing.T) {
	ctx := context.Background()

	fake := exchangetest.New("BTC/USDT", 8)
	fake.Prices = prices(100, 200)
	fake.Fills = []exchangetest.Fill{{Remaining: d("0.6"), LateFill: d("0.2")}}

	e := newTestEngine(t, fake, decimal.NewFromInt(100), nil)
	res, err := e.Buy(ctx)
	if err != nil {
		t.Fatal(err)
	}
	// Final cost after the cancel is 0.6*100; remaining funds are 40 which
	// buy 0.2 at the second price.
	if !fake.Placements[1].Amount.Equal(d("0.2")) {
		t.Fatalf("want 0.2, got %s", fake.Placements[1].Amount)
	}
	if !res.Filled.Equal(d("0.8")) {
		t.Fatalf("want 0.8, got %s", res.Filled)
	}
}

func TestContextCancelCancelsOpenOrder(t *testing.T) {
	fake := exchangetest.New("BTC/USDT", 8)
	fake.Prices = prices(100)
	fake.Fills = []exchangetest.Fill{{Remaining: d("1")}}

	req := &TradeRequest{Pair: btcusdt, Funds: decimal.NewFromInt(100), Refresh: time.Hour}
	e, err := New(fake, req, &Options{CancelPollInterval: time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for fake.CallsTo("place") == 0 {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()

	res, err := e.Buy(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
	if res.State != Stopped {
		t.Fatalf("want Stopped, got %s", res.State)
	}
	if len(fake.Cancels) != 1 || fake.OpenOrders() != 0 {
		t.Fatalf("want the open order canceled, got cancels %v and %d open", fake.Cancels, fake.OpenOrders())
	}
}

func TestFetchErrorIsUnknownOrderState(t *testing.T) {
	ctx := context.Background()

	fake := exchangetest.New("BTC/USDT", 8)
	fake.Prices = prices(100)
	fake.Fills = []exchangetest.Fill{{Remaining: d("1")}}
	fake.FetchError = errors.New("connection reset")

	db := kvmemdb.New()
	e := newTestEngine(t, fake, decimal.NewFromInt(100), &Options{Database: db})
	res, err := e.Buy(ctx)
	if !errors.Is(err, ErrUnknownOrderState) {
		t.Fatalf("want ErrUnknownOrderState, got %v", err)
	}
	var uerr *UnknownOrderStateError
	if !errors.As(err, &uerr) || uerr.OrderID != "fake-0" {
		t.Fatalf("want unknown state for fake-0, got %v", err)
	}
	if res.State != Aborted {
		t.Fatalf("want Aborted, got %s", res.State)
	}

	state, err := store.LoadDB(ctx, db, e.UID())
	if err != nil {
		t.Fatal(err)
	}
	if state.OpenOrderID != "fake-0" || state.State != "Aborted" {
		t.Fatalf("want saved open order fake-0 in Aborted state, got %q/%s", state.OpenOrderID, state.State)
	}

	// Resolve cancels the order left open.
	fake.FetchError = nil
	resolved, err := Resolve(ctx, fake, db, e.UID())
	if err != nil {
		t.Fatal(err)
	}
	if resolved.OpenOrderID != "" || fake.OpenOrders() != 0 {
		t.Fatalf("want no open orders, got %q and %d", resolved.OpenOrderID, fake.OpenOrders())
	}
}

func TestCancelFailureIsUnknownOrderState(t *testing.T) {
	ctx := context.Background()

	fake := exchangetest.New("BTC/USDT", 8)
	fake.Prices = prices(100)
	fake.Fills = []exchangetest.Fill{{Remaining: d("0.5")}}
	fake.CancelError = errors.New("service unavailable")

	e := newTestEngine(t, fake, decimal.NewFromInt(100), nil)
	_, err := e.Buy(ctx)
	if !errors.Is(err, ErrUnknownOrderState) {
		t.Fatalf("want ErrUnknownOrderState, got %v", err)
	}
	if len(fake.Placements) != 1 {
		t.Fatalf("want no re-placement, got %d placements", len(fake.Placements))
	}
}

func TestMaxPlacements(t *testing.T) {
	ctx := context.Background()

	fake := exchangetest.New("BTC/USDT", 8)
	fake.Prices = prices(100)
	for i := 0; i < 10; i++ {
		fake.Fills = append(fake.Fills, exchangetest.Fill{Remaining: d("0.1")})
	}

	e := newTestEngine(t, fake, decimal.NewFromInt(1000), &Options{MaxPlacements: 3})
	res, err := e.Buy(ctx)
	if !errors.Is(err, ErrTooManyPlacements) {
		t.Fatalf("want ErrTooManyPlacements, got %v", err)
	}
	if res.State != Aborted || len(fake.Placements) != 3 || fake.OpenOrders() != 0 {
		t.Fatalf("want Aborted after 3 placements and no open orders, got %s/%d/%d", res.State, len(fake.Placements), fake.OpenOrders())
	}
}

func TestUnknownMarket(t *testing.T) {
	ctx := context.Background()

	fake := exchangetest.New("ETH/USDT", 8)
	e := newTestEngine(t, fake, decimal.NewFromInt(100), nil)
	res, err := e.Buy(ctx)
	if !errors.Is(err, exchange.ErrUnknownMarket) {
		t.Fatalf("want ErrUnknownMarket, got %v", err)
	}
	if res.State != Aborted || len(fake.Placements) != 0 {
		t.Fatalf("want Aborted without placements, got %s/%d", res.State, len(fake.Placements))
	}
}

func TestFundsMode(t *testing.T) {
	if v := FundsAbsolute.update(d("10"), d("12")); !v.Equal(d("2")) {
		t.Fatalf("want 2, got %s", v)
	}
	if v := FundsClamped.update(d("10"), d("12")); !v.IsZero() {
		t.Fatalf("want 0, got %s", v)
	}
	if m, err := ParseFundsMode("clamped"); err != nil || m != FundsClamped {
		t.Fatalf("want clamped, got %v (%v)", m, err)
	}
	if _, err := ParseFundsMode("other"); err == nil {
		t.Fatalf("want non-nil error, got nil")
	}
}

func TestRequoteRetriesPrice(t *testing.T) {
	ctx := context.Background()

	fake := exchangetest.New("BTC/USDT", 8)
	fake.Prices = prices(100, 101)
	fake.Fills = []exchangetest.Fill{{Remaining: d("0.5")}}
	fake.OnCancel = func(string) { fake.PriceFailures = 3 }

	e := newTestEngine(t, fake, decimal.NewFromInt(100), nil)
	res, err := e.Buy(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.State != Filled || len(fake.Placements) != 2 {
		t.Fatalf("want Filled in 2 placements, got %s in %d", res.State, len(fake.Placements))
	}
	if fake.PriceCalls != 5 {
		t.Fatalf("want 5 price calls, got %d", fake.PriceCalls)
	}
	if p := fake.Placements[1]; !p.Price.Equal(d("101")) || !p.Amount.Equal(d("0.49504950")) {
		t.Fatalf("want second order for 0.49504950 at 101, got %s at %s", p.Amount, p.Price)
	}
}

func TestRequotePriceAttemptsExhausted(t *testing.T) {
	ctx := context.Background()

	fake := exchangetest.New("BTC/USDT", 8)
	fake.Prices = prices(100)
	fake.Fills = []exchangetest.Fill{{Remaining: d("0.5")}}
	fake.OnCancel = func(string) { fake.PriceFailures = 10 }

	db := kvmemdb.New()
	opts := &Options{Database: db}
	opts.Pricing.MaxAttempts = 2
	e := newTestEngine(t, fake, decimal.NewFromInt(100), opts)
	res, err := e.Buy(ctx)
	if !errors.Is(err, exchange.ErrPriceUnavailable) || errors.Is(err, ErrUnknownOrderState) {
		t.Fatalf("want ErrPriceUnavailable without unknown order state, got %v", err)
	}
	if res.State != Aborted || fake.OpenOrders() != 0 {
		t.Fatalf("want Aborted with no open orders, got %s/%d", res.State, fake.OpenOrders())
	}
	if fake.PriceCalls != 3 {
		t.Fatalf("want 3 price calls, got %d", fake.PriceCalls)
	}

	state, err := store.LoadDB(ctx, db, e.UID())
	if err != nil {
		t.Fatal(err)
	}
	if state.OpenOrderID != "" || state.State != "Aborted" {
		t.Fatalf("want Aborted state with no open order, got %q/%s", state.OpenOrderID, state.State)
	}
}

func TestSellOrderIDFailureIsRecorded(t *testing.T) {
	ctx := context.Background()

	fake := exchangetest.New("BTC/USDT", 8)
	fake.Prices = prices(100)
	fake.Balances = []map[string]decimal.Decimal{{"BTC": d("2")}}
	fake.Fills = []exchangetest.Fill{{Remaining: d("1")}}

	db := kvmemdb.New()
	opts := &Options{
		Database: db,
		SellOrderID: func(*exchange.OrderHandle) (string, error) {
			return "", fmt.Errorf("order handle has no exchange order id: %w", os.ErrNotExist)
		},
	}
	e := newTestEngine(t, fake, decimal.Zero, opts)
	res, err := e.Sell(ctx)
	var uerr *UnknownOrderStateError
	if !errors.As(err, &uerr) || uerr.OrderID != "fake-0" {
		t.Fatalf("want unknown state for fake-0, got %v", err)
	}
	if res.State != Aborted || res.Placements != 1 {
		t.Fatalf("want Aborted after 1 placement, got %s/%d", res.State, res.Placements)
	}

	state, err := store.LoadDB(ctx, db, e.UID())
	if err != nil {
		t.Fatal(err)
	}
	if state.OpenOrderID != "fake-0" || state.OpenOrderSymbol != "BTC/USDT" || len(state.Placements) != 1 {
		t.Fatalf("want saved open order fake-0 with one placement, got %q/%q/%d", state.OpenOrderID, state.OpenOrderSymbol, len(state.Placements))
	}

	resolved, err := Resolve(ctx, fake, db, e.UID())
	if err != nil {
		t.Fatal(err)
	}
	if resolved.OpenOrderID != "" || fake.OpenOrders() != 0 {
		t.Fatalf("want no open orders, got %q and %d", resolved.OpenOrderID, fake.OpenOrders())
	}
}
