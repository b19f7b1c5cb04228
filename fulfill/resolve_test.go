// Copyright (c) 2026 BVK Chaitanya

package fulfill

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/bvk/fulfill/exchange/exchangetest"
	"github.com/bvkgo/kv/kvmemdb"
	"github.com/shopspring/decimal"
)

func TestResolveWithoutOpenOrder(t *testing.T) {
	ctx := context.Background()

	fake := exchangetest.New("BTC/USDT", 8)
	fake.Prices = prices(100)

	db := kvmemdb.New()
	e := newTestEngine(t, fake, decimal.NewFromInt(100), &Options{Database: db})
	if _, err := e.Buy(ctx); err != nil {
		t.Fatal(err)
	}

	if _, err := Resolve(ctx, fake, db, e.UID()); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("want os.ErrNotExist, got %v", err)
	}
	if _, err := Resolve(ctx, fake, db, "no-such-trade"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("want os.ErrNotExist for missing trade, got %v", err)
	}
}
