// Copyright (c) 2023 BVK Chaitanya

package main

import (
	"context"
	"log"
	"os"
	"os/signal"

	"github.com/bvk/fulfill/subcmds"
	"github.com/visvasity/cli"

	_ "github.com/bvk/fulfill/coinex"
	_ "github.com/bvk/fulfill/exchange/paper"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmds := []cli.Command{
		new(subcmds.Buy),
		new(subcmds.Sell),
		new(subcmds.Batch),
		new(subcmds.List),
		new(subcmds.Print),
		new(subcmds.Resolve),
		new(subcmds.Exchanges),
		new(subcmds.Setup),
	}
	if err := cli.Run(ctx, cmds, os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}
