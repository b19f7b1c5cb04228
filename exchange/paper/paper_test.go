// Copyright (c) 2026 BVK Chaitanya

package paper_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bvk/fulfill/exchange"
	"github.com/bvk/fulfill/exchange/paper"
	"github.com/bvk/fulfill/fulfill"
	"github.com/shopspring/decimal"
)

func newGateway(t *testing.T) *paper.Gateway {
	g, err := paper.New(&paper.Options{
		Balances: map[string]decimal.Decimal{
			"USDT": decimal.NewFromInt(10000),
			"BTC":  decimal.NewFromInt(3),
		},
		Prices:          map[string]decimal.Decimal{"BTC/USDT": decimal.NewFromInt(100)},
		AmountPrecision: 4,
		PartialFills:    1,
		FillRatio:       decimal.RequireFromString("0.5"),
	})
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func TestRegistered(t *testing.T) {
	ctx := context.Background()

	gw, err := exchange.Open(ctx, "PAPER", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer gw.Close()

	if name := gw.ExchangeName(); name != "paper" {
		t.Fatalf("want paper, got %q", name)
	}
}

func TestBuyWithPartialFill(t *testing.T) {
	ctx := context.Background()
	g := newGateway(t)

	req := &fulfill.TradeRequest{
		Pair:    exchange.Pair{Target: "BTC", Base: "USDT"},
		Funds:   decimal.NewFromInt(1000),
		Refresh: time.Millisecond,
	}
	e, err := fulfill.New(g, req, &fulfill.Options{CancelPollInterval: time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	res, err := e.Buy(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.State != fulfill.Filled || res.Placements != 2 || res.Cancellations != 1 {
		t.Fatalf("want Filled with 2 placements and 1 cancellation, got %s/%d/%d", res.State, res.Placements, res.Cancellations)
	}

	balances, err := g.FetchFreeBalance(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if v := balances["USDT"]; !v.Equal(decimal.NewFromInt(9000)) {
		t.Fatalf("want 9000 USDT, got %s", v)
	}
	if v := balances["BTC"]; !v.Equal(decimal.NewFromInt(13)) {
		t.Fatalf("want 13 BTC, got %s", v)
	}
}

func TestSellWithPartialFill(t *testing.T) {
	ctx := context.Background()
	g := newGateway(t)

	req := &fulfill.TradeRequest{
		Pair:    exchange.Pair{Target: "BTC", Base: "USDT"},
		Refresh: time.Millisecond,
	}
	e, err := fulfill.New(g, req, &fulfill.Options{CancelPollInterval: time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	res, err := e.Sell(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.State != fulfill.Filled || res.Placements != 2 {
		t.Fatalf("want Filled with 2 placements, got %s/%d", res.State, res.Placements)
	}
	if !res.Filled.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("want 3 BTC sold, got %s", res.Filled)
	}

	balances, _ := g.FetchFreeBalance(ctx)
	if v := balances["USDT"]; !v.Equal(decimal.NewFromInt(10300)) {
		t.Fatalf("want 10300 USDT, got %s", v)
	}
	if v := balances["BTC"]; !v.IsZero() {
		t.Fatalf("want 0 BTC, got %s", v)
	}
}

func TestInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	g := newGateway(t)

	_, err := g.CreateLimitBuyOrder(ctx, "BTC/USDT", decimal.NewFromInt(101), decimal.NewFromInt(100))
	if !errors.Is(err, exchange.ErrInsufficientFunds) {
		t.Fatalf("want ErrInsufficientFunds, got %v", err)
	}
	_, err = g.CreateLimitSellOrder(ctx, "BTC/USDT", decimal.RequireFromString("0.00001"), decimal.NewFromInt(100))
	if !errors.Is(err, exchange.ErrInvalidOrder) {
		t.Fatalf("want ErrInvalidOrder, got %v", err)
	}
}

func TestCancelReleasesFunds(t *testing.T) {
	ctx := context.Background()
	g := newGateway(t)

	h, err := g.CreateLimitBuyOrder(ctx, "BTC/USDT", decimal.NewFromInt(10), decimal.NewFromInt(100))
	if err != nil {
		t.Fatal(err)
	}
	balances, _ := g.FetchFreeBalance(ctx)
	if v := balances["USDT"]; !v.Equal(decimal.NewFromInt(9000)) {
		t.Fatalf("want 9000 USDT locked, got %s", v)
	}

	if err := g.CancelOrder(ctx, h.Info["orderId"], h.Symbol); err != nil {
		t.Fatal(err)
	}
	balances, _ = g.FetchFreeBalance(ctx)
	if v := balances["USDT"]; !v.Equal(decimal.NewFromInt(10000)) {
		t.Fatalf("want 10000 USDT, got %s", v)
	}
	if err := g.CancelOrder(ctx, h.ID, h.Symbol); !errors.Is(err, exchange.ErrInvalidOrder) {
		t.Fatalf("want ErrInvalidOrder, got %v", err)
	}
}
