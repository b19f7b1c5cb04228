// Copyright (c) 2026 BVK Chaitanya

package subcmds

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"

	"github.com/bvk/fulfill/store"
	"github.com/bvk/fulfill/subcmds/cmdutil"
	"github.com/visvasity/cli"
)

type Print struct {
	cmdutil.DBFlags
}

func (c *Print) Purpose() string {
	return "Prints a saved trade in JSON format"
}

func (c *Print) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("print", flag.ContinueOnError)
	c.DBFlags.SetFlags(fset)
	return "print", fset, cli.CmdFunc(c.run)
}

func (c *Print) run(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("this command takes one (trade uid or uid prefix) argument")
	}

	db, closer, err := c.GetDatabase(ctx)
	if err != nil {
		return err
	}
	defer closer()

	state, err := store.FindDB(ctx, db, args[0])
	if err != nil {
		return err
	}
	js, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	fmt.Printf("%s\n", js)
	return nil
}
