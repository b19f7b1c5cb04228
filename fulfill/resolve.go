// Copyright (c) 2026 BVK Chaitanya

package fulfill

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/bvk/fulfill/exchange"
	"github.com/bvk/fulfill/gobs"
	"github.com/bvk/fulfill/store"
	"github.com/bvkgo/kv"
)

// Resolve cancels the order left open by a trade that terminated with an
// unknown order state and records the final order status in the database.
// Returns os.ErrNotExist if the trade has no open order.
func Resolve(ctx context.Context, gw exchange.Gateway, db kv.Database, uid string) (*gobs.TradeState, error) {
	state, err := store.LoadDB(ctx, db, uid)
	if err != nil {
		return nil, err
	}
	if len(state.OpenOrderID) == 0 {
		return state, fmt.Errorf("trade %s has no open order: %w", uid, os.ErrNotExist)
	}
	id, symbol := state.OpenOrderID, state.OpenOrderSymbol

	status, err := gw.FetchOrder(ctx, id, symbol)
	if err != nil {
		return state, fmt.Errorf("could not fetch order %s: %w", id, err)
	}
	if !status.Done {
		if err := gw.CancelOrder(ctx, id, symbol); err != nil {
			return state, fmt.Errorf("could not cancel order %s: %w", id, err)
		}
		if status, err = gw.FetchOrder(ctx, id, symbol); err != nil {
			return state, fmt.Errorf("could not fetch canceled order %s: %w", id, err)
		}
		if !status.Done {
			return state, fmt.Errorf("canceled order %s is still not done (status %s)", id, status.Status)
		}
		state.Cancellations++
	}
	slog.Info("resolved open order", "trade", uid, "order-id", id, "status", status.Status, "filled", status.Filled)

	for _, p := range state.Placements {
		if p.OrderID != id {
			continue
		}
		p.Filled, p.Cost, p.Status, p.Done = status.Filled, status.Cost, status.Status, true
		p.FinishTime = time.Now()
	}
	state.OpenOrderID, state.OpenOrderSymbol = "", ""
	if status.IsFilled() {
		state.State = Filled.String()
	}
	if err := store.SaveDB(ctx, db, state); err != nil {
		return state, err
	}
	return state, nil
}
