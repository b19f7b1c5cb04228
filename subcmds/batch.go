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

	"github.com/bvk/fulfill/ctxutil"
	"github.com/bvk/fulfill/exchange"
	"github.com/bvk/fulfill/fulfill"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/visvasity/cli"
)

type Batch struct {
	tradeFlags

	file string
}

func (c *Batch) Purpose() string {
	return "Runs multiple buy and sell trades from a file concurrently"
}

func (c *Batch) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("batch", flag.ContinueOnError)
	c.tradeFlags.SetFlags(fset)
	fset.StringVar(&c.file, "file", "trades.yaml", "Path to the trades file")
	return "batch", fset, cli.CmdFunc(c.run)
}

func (c *Batch) Description() string {
	return `

Command "batch" runs all trades listed in a YAML (or JSON) file at the same
time. Exchange and refresh-rate flags are used for the trades that don't name
one. For example:

  trades:
    - side: buy
      exchange: coinex
      pair: BTC/USDT
      funds: 500
      refresh_rate: 10s
    - side: sell
      pair: ETH/USDT

Trades are not coordinated with each other, so trades spending the same
currency compete for the same free balance.

`
}

// batchItem is a single trade entry in the batch file.
type batchItem struct {
	Side        string        `mapstructure:"side"`
	Exchange    string        `mapstructure:"exchange"`
	Pair        string        `mapstructure:"pair"`
	Funds       string        `mapstructure:"funds"`
	RefreshRate time.Duration `mapstructure:"refresh_rate"`
}

// parseBatch reads the trades from a batch file. Empty exchange and refresh
// values in the file take the given defaults.
func parseBatch(fpath string, defaultExchange string, defaultRefresh time.Duration) ([]*tradeSpec, error) {
	v := viper.New()
	v.SetConfigFile(fpath)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("could not read batch file %q: %w", fpath, err)
	}
	var file struct {
		Trades []*batchItem `mapstructure:"trades"`
	}
	if err := v.Unmarshal(&file); err != nil {
		return nil, fmt.Errorf("could not parse batch file %q: %w", fpath, err)
	}
	if len(file.Trades) == 0 {
		return nil, fmt.Errorf("batch file %q has no trades: %w", fpath, os.ErrInvalid)
	}

	var specs []*tradeSpec
	for i, item := range file.Trades {
		s := &tradeSpec{
			Exchange: item.Exchange,
			Pair:     item.Pair,
			Refresh:  item.RefreshRate,
		}
		switch strings.ToLower(item.Side) {
		case "buy":
			s.Side = fulfill.Buy
		case "sell":
			s.Side = fulfill.Sell
		default:
			return nil, fmt.Errorf("trade %d has invalid side %q: %w", i, item.Side, os.ErrInvalid)
		}
		if len(s.Exchange) == 0 {
			s.Exchange = defaultExchange
		}
		if len(s.Exchange) == 0 {
			return nil, fmt.Errorf("trade %d has no exchange: %w", i, os.ErrInvalid)
		}
		if _, err := exchange.ParsePair(s.Pair); err != nil {
			return nil, fmt.Errorf("trade %d: %w", i, err)
		}
		if s.Refresh == 0 {
			s.Refresh = defaultRefresh
		}
		if s.Refresh <= 0 {
			return nil, fmt.Errorf("trade %d has invalid refresh rate %s: %w", i, s.Refresh, os.ErrInvalid)
		}
		if len(item.Funds) != 0 {
			funds, err := decimal.NewFromString(item.Funds)
			if err != nil {
				return nil, fmt.Errorf("trade %d has invalid funds %q: %w", i, item.Funds, err)
			}
			s.Funds = funds
		}
		specs = append(specs, s)
	}
	return specs, nil
}

func (c *Batch) run(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("this command takes no arguments")
	}
	cfg, err := c.Config()
	if err != nil {
		return err
	}
	refresh := c.refreshRate
	if refresh == 0 {
		refresh = cfg.Defaults.RefreshRate
	}
	specs, err := parseBatch(c.file, c.exchange, refresh)
	if err != nil {
		return err
	}

	closeLogs, err := c.SetupLogging()
	if err != nil {
		return err
	}
	defer closeLogs()

	db, closer, err := c.GetDatabase(ctx)
	if err != nil {
		return err
	}
	defer closer()

	// Trades on the same exchange share the gateway and its request limits.
	gateways := make(map[string]exchange.Gateway)
	defer func() {
		for _, gw := range gateways {
			gw.Close()
		}
	}()
	for _, s := range specs {
		name := strings.ToLower(s.Exchange)
		if _, ok := gateways[name]; ok {
			continue
		}
		creds, err := c.credentials(cfg, name)
		if err != nil {
			return err
		}
		gw, err := exchange.Open(ctx, name, creds)
		if err != nil {
			return err
		}
		gateways[name] = gw
	}

	notifier := c.notifier(ctx, cfg)
	w := &syncWriter{w: os.Stdout}

	var cg ctxutil.CloseGroup
	cg.WithParent(ctx)

	var mu sync.Mutex
	var errs []error
	for _, s := range specs {
		opts, err := c.options(cfg, db)
		if err != nil {
			return err
		}
		gw := gateways[strings.ToLower(s.Exchange)]
		cg.Go(func(ctx context.Context) {
			if _, err := runTrade(ctx, w, gw, s, opts, notifier); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s %s on %s: %w", s.Side, s.Pair, s.Exchange, err))
				mu.Unlock()
			}
		})
	}
	cg.Wait()
	return errors.Join(errs...)
}

// syncWriter serializes the writes from concurrent trades.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
