// Copyright (c) 2026 BVK Chaitanya

package subcmds

import (
	"context"
	"flag"
	"fmt"

	"github.com/bvk/fulfill/exchange"
	"github.com/bvk/fulfill/fulfill"
	"github.com/bvk/fulfill/store"
	"github.com/visvasity/cli"
)

type Resolve struct {
	tradeFlags
}

func (c *Resolve) Purpose() string {
	return "Cancels the order left open by an aborted trade"
}

func (c *Resolve) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("resolve", flag.ContinueOnError)
	c.DBFlags.SetFlags(fset)
	fset.StringVar(&c.apiKey, "api-key", "", "Exchange api key (overrides the saved credentials)")
	fset.StringVar(&c.apiSecret, "api-secret", "", "Exchange api secret (overrides the saved credentials)")
	return "resolve", fset, cli.CmdFunc(c.run)
}

func (c *Resolve) Description() string {
	return `

Command "resolve" checks the status of the order left open by a trade that
finished with an unknown order state. The order is canceled if it is still
open and its final fill information is saved with the trade.

`
}

func (c *Resolve) run(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("this command takes one (trade uid or uid prefix) argument")
	}
	cfg, err := c.Config()
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

	state, err := store.FindDB(ctx, db, args[0])
	if err != nil {
		return err
	}
	creds, err := c.credentials(cfg, state.Exchange)
	if err != nil {
		return err
	}
	gw, err := exchange.Open(ctx, state.Exchange, creds)
	if err != nil {
		return err
	}
	defer gw.Close()

	state, err = fulfill.Resolve(ctx, gw, db, state.UID)
	if err != nil {
		return err
	}
	filled, cost := state.Filled()
	fmt.Printf("trade %s is %s with filled %s for %s\n", state.UID, state.State, filled, cost.StringFixed(2))
	return nil
}
