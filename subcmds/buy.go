// Copyright (c) 2026 BVK Chaitanya

package subcmds

import (
	"context"
	"flag"
	"fmt"

	"github.com/bvk/fulfill/fulfill"
	"github.com/shopspring/decimal"
	"github.com/visvasity/cli"
)

type Buy struct {
	tradeFlags

	funds string
}

func (c *Buy) Purpose() string {
	return "Buys the target currency with limit orders until the funds are spent"
}

func (c *Buy) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("buy", flag.ContinueOnError)
	c.tradeFlags.SetFlags(fset)
	fset.StringVar(&c.funds, "funds", "0", "Base currency amount to spend; zero or negative spends the entire free balance")
	return "buy", fset, cli.CmdFunc(c.run)
}

func (c *Buy) Description() string {
	return `

Command "buy" places a limit buy order at the last trade price and checks its
status after the refresh interval. Unfilled orders are canceled and placed
again at the new price with the remaining funds, until the funds are spent.

  $ fulfill buy -exchange=coinex -pair=BTC/USDT -funds=1000 -refresh-rate=10s

`
}

func (c *Buy) run(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("this command takes no arguments")
	}
	funds, err := decimal.NewFromString(c.funds)
	if err != nil {
		return fmt.Errorf("could not parse funds %q: %w", c.funds, err)
	}
	return c.runSingle(ctx, fulfill.Buy, funds)
}
