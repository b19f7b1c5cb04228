// Copyright (c) 2026 BVK Chaitanya

package exchange

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParsePair(t *testing.T) {
	p, err := ParsePair("btc/usdt")
	if err != nil {
		t.Fatal(err)
	}
	if p.Target != "BTC" || p.Base != "USDT" {
		t.Fatalf("want BTC/USDT, got %v", p)
	}
	if s := p.String(); s != "BTC/USDT" {
		t.Fatalf("want BTC/USDT, got %s", s)
	}

	for _, s := range []string{"", "BTC", "BTC/", "/USDT", "A/B/C"} {
		if _, err := ParsePair(s); !errors.Is(err, os.ErrInvalid) {
			t.Fatalf("%q: want ErrInvalid, got %v", s, err)
		}
	}
}

func TestTruncateToPrecision(t *testing.T) {
	v, err := TruncateToPrecision(decimal.RequireFromString("0.0102040816"), 8)
	if err != nil {
		t.Fatal(err)
	}
	if want := decimal.RequireFromString("0.01020408"); !v.Equal(want) {
		t.Fatalf("want %s, got %s", want, v)
	}

	if v, _ := TruncateToPrecision(decimal.RequireFromString("2.999"), 0); !v.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("want 2, got %s", v)
	}
	if _, err := TruncateToPrecision(decimal.NewFromInt(-1), 2); !errors.Is(err, os.ErrInvalid) {
		t.Fatalf("want ErrInvalid, got %v", err)
	}
}

func TestOrderIDFuncs(t *testing.T) {
	h := &OrderHandle{ID: "client-1", Symbol: "BTC/USDT", Info: map[string]string{"orderId": "9001"}}
	if id, err := HandleID(h); err != nil || id != "client-1" {
		t.Fatalf("want client-1, got %q (%v)", id, err)
	}
	if id, err := InfoOrderID(h); err != nil || id != "9001" {
		t.Fatalf("want 9001, got %q (%v)", id, err)
	}

	h.Info = nil
	if _, err := InfoOrderID(h); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("want ErrNotExist, got %v", err)
	}
	if _, err := HandleID(&OrderHandle{}); !errors.Is(err, os.ErrInvalid) {
		t.Fatalf("want ErrInvalid, got %v", err)
	}
}

func TestRegistry(t *testing.T) {
	ctx := context.Background()

	name := fmt.Sprintf("Test-%s", t.Name())
	var gotKey string
	factory := func(ctx context.Context, creds *Credentials) (Gateway, error) {
		gotKey = creds.Key
		return nil, nil
	}
	if err := Register(name, factory); err != nil {
		t.Fatal(err)
	}
	if err := Register(name, factory); !errors.Is(err, os.ErrExist) {
		t.Fatalf("want ErrExist, got %v", err)
	}
	if !slices.Contains(Names(), "test-testregistry") {
		t.Fatalf("want test-testregistry in %v", Names())
	}

	if _, err := Open(ctx, "TEST-TESTREGISTRY", &Credentials{Key: "k"}); err != nil {
		t.Fatal(err)
	}
	if gotKey != "k" {
		t.Fatalf("want k, got %q", gotKey)
	}

	_, err := Open(ctx, "no-such-exchange", nil)
	var uerr *UnknownExchangeError
	if !errors.As(err, &uerr) {
		t.Fatalf("want UnknownExchangeError, got %v", err)
	}
	if uerr.Name != "no-such-exchange" {
		t.Fatalf("want no-such-exchange, got %q", uerr.Name)
	}
}

func TestIsRejection(t *testing.T) {
	if !IsRejection(fmt.Errorf("place: %w", ErrInsufficientFunds)) {
		t.Fatalf("want true, got false")
	}
	if !IsRejection(ErrInvalidOrder) {
		t.Fatalf("want true, got false")
	}
	if IsRejection(ErrPriceUnavailable) {
		t.Fatalf("want false, got true")
	}
}
