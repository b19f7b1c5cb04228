// Copyright (c) 2026 BVK Chaitanya

package subcmds

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/bvk/fulfill/alert"
	"github.com/bvk/fulfill/config"
	"github.com/bvk/fulfill/exchange"
	"github.com/bvk/fulfill/fulfill"
	"github.com/bvk/fulfill/subcmds/cmdutil"
	"github.com/bvkgo/kv"
	"github.com/shopspring/decimal"
	"github.com/visvasity/topic"
)

// tradeFlags are the flags common to the buy and sell commands.
type tradeFlags struct {
	cmdutil.DBFlags

	exchange string
	pair     string

	refreshRate time.Duration

	apiKey    string
	apiSecret string

	fundsMode     string
	maxPlacements int

	priceRetryInterval time.Duration
	priceRetryAttempts int

	noAlerts bool
}

func (f *tradeFlags) SetFlags(fset *flag.FlagSet) {
	f.DBFlags.SetFlags(fset)
	fset.StringVar(&f.exchange, "exchange", "", "Name of the exchange")
	fset.StringVar(&f.pair, "pair", "", "Trading pair in TARGET/BASE form, eg: BTC/USDT")
	fset.DurationVar(&f.refreshRate, "refresh-rate", 0, "Wait between an order placement and its status check")
	fset.StringVar(&f.apiKey, "api-key", "", "Exchange api key (overrides the saved credentials)")
	fset.StringVar(&f.apiSecret, "api-secret", "", "Exchange api secret (overrides the saved credentials)")
	fset.StringVar(&f.fundsMode, "funds-mode", "", "Remaining funds update mode; one of absolute or clamped")
	fset.IntVar(&f.maxPlacements, "max-placements", -1, "Maximum number of order placements; zero is unlimited")
	fset.DurationVar(&f.priceRetryInterval, "price-retry-interval", 0, "Wait between price fetch attempts")
	fset.IntVar(&f.priceRetryAttempts, "price-retry-attempts", -1, "Maximum price fetch attempts; zero retries forever")
	fset.BoolVar(&f.noAlerts, "no-alerts", false, "Don't send notifications when the trade finishes")
}

// tradeSpec is a single trade from the command-line or a batch file.
type tradeSpec struct {
	Side     fulfill.Side
	Exchange string
	Pair     string
	Funds    decimal.Decimal
	Refresh  time.Duration
}

func (f *tradeFlags) credentials(cfg *config.Config, name string) (*exchange.Credentials, error) {
	if len(f.apiKey) != 0 || len(f.apiSecret) != 0 {
		return &exchange.Credentials{Key: f.apiKey, Secret: f.apiSecret}, nil
	}
	creds, err := cfg.Credentials(name)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		return new(exchange.Credentials), nil
	}
	return creds, nil
}

// options builds the engine options from the flags with the config file
// defaults for the unset flags.
func (f *tradeFlags) options(cfg *config.Config, db kv.Database) (*fulfill.Options, error) {
	modeName := f.fundsMode
	if len(modeName) == 0 {
		modeName = cfg.Defaults.FundsMode
	}
	mode, err := fulfill.ParseFundsMode(modeName)
	if err != nil {
		return nil, err
	}

	opts := &fulfill.Options{
		FundsMode:     mode,
		MaxPlacements: cfg.Defaults.MaxPlacements,
		Database:      db,
	}
	if f.maxPlacements >= 0 {
		opts.MaxPlacements = f.maxPlacements
	}
	opts.Pricing.RetryInterval = cfg.Defaults.PriceRetryInterval
	if f.priceRetryInterval > 0 {
		opts.Pricing.RetryInterval = f.priceRetryInterval
	}
	opts.Pricing.MaxAttempts = cfg.Defaults.PriceRetryAttempts
	if f.priceRetryAttempts >= 0 {
		opts.Pricing.MaxAttempts = f.priceRetryAttempts
	}
	return opts, nil
}

func (f *tradeFlags) spec(cfg *config.Config, side fulfill.Side, funds decimal.Decimal) (*tradeSpec, error) {
	if len(f.exchange) == 0 {
		return nil, fmt.Errorf("exchange name is required: %w", os.ErrInvalid)
	}
	if len(f.pair) == 0 {
		return nil, fmt.Errorf("trading pair is required: %w", os.ErrInvalid)
	}
	refresh := f.refreshRate
	if refresh == 0 {
		refresh = cfg.Defaults.RefreshRate
	}
	s := &tradeSpec{
		Side:     side,
		Exchange: f.exchange,
		Pair:     f.pair,
		Funds:    funds,
		Refresh:  refresh,
	}
	return s, nil
}

// runSingle runs one trade described by the flags with all the command
// resources.
func (f *tradeFlags) runSingle(ctx context.Context, side fulfill.Side, funds decimal.Decimal) error {
	cfg, err := f.Config()
	if err != nil {
		return err
	}
	spec, err := f.spec(cfg, side, funds)
	if err != nil {
		return err
	}

	closeLogs, err := f.SetupLogging()
	if err != nil {
		return err
	}
	defer closeLogs()

	db, closer, err := f.GetDatabase(ctx)
	if err != nil {
		return err
	}
	defer closer()

	creds, err := f.credentials(cfg, spec.Exchange)
	if err != nil {
		return err
	}
	gw, err := exchange.Open(ctx, spec.Exchange, creds)
	if err != nil {
		return err
	}
	defer gw.Close()

	notifier := f.notifier(ctx, cfg)
	opts, err := f.options(cfg, db)
	if err != nil {
		return err
	}
	_, err = runTrade(ctx, os.Stdout, gw, spec, opts, notifier)
	return err
}

func (f *tradeFlags) notifier(ctx context.Context, cfg *config.Config) alert.Notifier {
	if f.noAlerts {
		return nil
	}
	n, err := alert.New(ctx, &alert.Options{Pushover: cfg.Pushover, Telegram: cfg.Telegram})
	if err != nil {
		fmt.Fprintf(os.Stderr, "notifications are disabled: %v\n", err)
		return nil
	}
	return n
}

// runTrade runs a trade to completion printing every state transition to
// the writer. Notifies the final result when the notifier is non-nil.
func runTrade(ctx context.Context, w io.Writer, gw exchange.Gateway, spec *tradeSpec, opts *fulfill.Options, notifier alert.Notifier) (*fulfill.Result, error) {
	pair, err := exchange.ParsePair(spec.Pair)
	if err != nil {
		return nil, err
	}
	req := &fulfill.TradeRequest{
		Exchange: gw.ExchangeName(),
		Pair:     pair,
		Funds:    spec.Funds,
		Refresh:  spec.Refresh,
	}
	engine, err := fulfill.New(gw, req, opts)
	if err != nil {
		return nil, err
	}

	receiver, err := engine.Transitions()
	if err != nil {
		return nil, err
	}
	defer receiver.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		printTransitions(w, receiver)
	}()

	var result *fulfill.Result
	if spec.Side == fulfill.Buy {
		result, err = engine.Buy(ctx)
	} else {
		result, err = engine.Sell(ctx)
	}
	wg.Wait()

	if result != nil {
		fmt.Fprintln(w, summary(gw.ExchangeName(), pair, result))
		alert.Send(ctx, notifier, summary(gw.ExchangeName(), pair, result))
	}
	if errors.Is(err, fulfill.ErrUnknownOrderState) {
		fmt.Fprintf(w, "trade %s may have left an order open; check with the resolve command\n", engine.UID())
	}
	return result, err
}

func printTransitions(w io.Writer, receiver *topic.Receiver[*fulfill.Transition]) {
	for {
		t, err := receiver.Receive()
		if err != nil {
			return
		}
		fmt.Fprintf(w, "%s %s %s\n", t.At.Format(time.TimeOnly), shortUID(t.UID), t)
		if t.To.IsTerminal() {
			return
		}
	}
}

func summary(exchangeName string, pair exchange.Pair, r *fulfill.Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s %s on %s is %s: filled %s %s for %s %s in %d placements",
		shortUID(r.UID), r.Side, pair, exchangeName, r.State, r.Filled, pair.Target, r.Spent.StringFixed(2), pair.Base, r.Placements)
	if r.Side == fulfill.Buy {
		fmt.Fprintf(&sb, " (remaining funds %s)", r.RemainingFunds.StringFixed(2))
	}
	if r.Err != nil {
		fmt.Fprintf(&sb, ": %v", r.Err)
	}
	return sb.String()
}

func shortUID(uid string) string {
	if len(uid) > 8 {
		return uid[:8]
	}
	return uid
}
