// Copyright (c) 2026 BVK Chaitanya

package subcmds

import (
	"context"
	"flag"
	"fmt"

	"github.com/bvk/fulfill/exchange"
	"github.com/visvasity/cli"
)

type Exchanges struct {
}

func (c *Exchanges) Purpose() string {
	return "Prints the supported exchange names"
}

func (c *Exchanges) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("exchanges", flag.ContinueOnError)
	return "exchanges", fset, cli.CmdFunc(c.run)
}

func (c *Exchanges) run(ctx context.Context, args []string) error {
	for _, name := range exchange.Names() {
		fmt.Println(name)
	}
	return nil
}
