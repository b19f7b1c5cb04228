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

type Sell struct {
	tradeFlags
}

func (c *Sell) Purpose() string {
	return "Sells the entire free balance of the target currency with limit orders"
}

func (c *Sell) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("sell", flag.ContinueOnError)
	c.tradeFlags.SetFlags(fset)
	return "sell", fset, cli.CmdFunc(c.run)
}

func (c *Sell) run(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("this command takes no arguments")
	}
	return c.runSingle(ctx, fulfill.Sell, decimal.Zero)
}
