// Copyright (c) 2026 BVK Chaitanya

package subcmds

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/bvk/fulfill/fulfill"
	"github.com/bvk/fulfill/store"
	"github.com/bvk/fulfill/subcmds/cmdutil"
	"github.com/visvasity/cli"
)

type List struct {
	cmdutil.DBFlags

	state string
}

func (c *List) Purpose() string {
	return "Prints the saved trades"
}

func (c *List) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("list", flag.ContinueOnError)
	c.DBFlags.SetFlags(fset)
	fset.StringVar(&c.state, "state", "", "Prints only the trades in this state")
	return "list", fset, cli.CmdFunc(c.run)
}

func (c *List) run(ctx context.Context, args []string) error {
	if len(c.state) != 0 {
		if _, ok := fulfill.ParseState(c.state); !ok {
			return fmt.Errorf("invalid trade state %q", c.state)
		}
	}

	db, closer, err := c.GetDatabase(ctx)
	if err != nil {
		return err
	}
	defer closer()

	states, err := store.ListDB(ctx, db)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 4, 8, 1, ' ', 0)
	fmt.Fprintf(tw, "UID\tStarted\tExchange\tSide\tPair\tState\tPlacements\tFilled\tCost\tOpenOrder\t\n")
	for _, s := range states {
		if len(c.state) != 0 && !strings.EqualFold(s.State, c.state) {
			continue
		}
		filled, cost := s.Filled()
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%d\t%s\t%s\t%s\t\n",
			s.UID, s.StartTime.Format(time.DateTime), s.Exchange, s.Side, s.Pair, s.State,
			len(s.Placements), filled, cost.StringFixed(2), s.OpenOrderID)
	}
	return tw.Flush()
}
