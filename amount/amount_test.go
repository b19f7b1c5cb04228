// Copyright (c) 2026 BVK Chaitanya

package amount

import (
	"context"
	"errors"
	"testing"

	"github.com/bvk/fulfill/exchange"
	"github.com/bvk/fulfill/exchange/exchangetest"
	"github.com/shopspring/decimal"
)

var btcusdt = exchange.Pair{Target: "BTC", Base: "USDT"}

func TestBuy(t *testing.T) {
	ctx := context.Background()

	fake := exchangetest.New("BTC/USDT", 8)
	r := New(fake)

	qty, used, err := r.Buy(ctx, btcusdt, decimal.NewFromInt(500), decimal.NewFromInt(49000))
	if err != nil {
		t.Fatal(err)
	}
	if want := decimal.RequireFromString("0.01020408"); !qty.Equal(want) {
		t.Fatalf("want %s, got %s", want, qty)
	}
	if !used.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("want 500, got %s", used)
	}
	if fake.BalanceCalls != 0 {
		t.Fatalf("want no balance calls, got %d", fake.BalanceCalls)
	}
}

func TestBuyUsesFreeBalance(t *testing.T) {
	ctx := context.Background()

	fake := exchangetest.New("BTC/USDT", 4)
	fake.Balances = []map[string]decimal.Decimal{{"USDT": decimal.NewFromInt(100)}}
	r := New(fake)

	qty, used, err := r.Buy(ctx, btcusdt, decimal.Zero, decimal.NewFromInt(30))
	if err != nil {
		t.Fatal(err)
	}
	if want := decimal.RequireFromString("3.3333"); !qty.Equal(want) {
		t.Fatalf("want %s, got %s", want, qty)
	}
	if !used.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("want 100, got %s", used)
	}
}

func TestBuyBadPrice(t *testing.T) {
	ctx := context.Background()

	r := New(exchangetest.New("BTC/USDT", 8))
	_, _, err := r.Buy(ctx, btcusdt, decimal.NewFromInt(10), decimal.Zero)
	var rerr *ResolutionError
	if !errors.As(err, &rerr) {
		t.Fatalf("want ResolutionError, got %v", err)
	}
	if rerr.Op != "buy" {
		t.Fatalf("want buy, got %q", rerr.Op)
	}
}

func TestSellRefetchesBalance(t *testing.T) {
	ctx := context.Background()

	fake := exchangetest.New("BTC/USDT", 3)
	fake.Balances = []map[string]decimal.Decimal{
		{"BTC": decimal.RequireFromString("2.5")},
		{"BTC": decimal.RequireFromString("1.00049")},
	}
	r := New(fake)

	first, err := r.Sell(ctx, btcusdt)
	if err != nil {
		t.Fatal(err)
	}
	if !first.Equal(decimal.RequireFromString("2.5")) {
		t.Fatalf("want 2.5, got %s", first)
	}
	second, err := r.Sell(ctx, btcusdt)
	if err != nil {
		t.Fatal(err)
	}
	if !second.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("want 1, got %s", second)
	}
	if fake.BalanceCalls != 2 {
		t.Fatalf("want 2 balance calls, got %d", fake.BalanceCalls)
	}
}

func TestUnknownMarket(t *testing.T) {
	ctx := context.Background()

	r := New(exchangetest.New("ETH/USDT", 8))
	_, err := r.Sell(ctx, btcusdt)
	if !errors.Is(err, exchange.ErrUnknownMarket) {
		t.Fatalf("want ErrUnknownMarket, got %v", err)
	}
}
