// Copyright (c) 2026 BVK Chaitanya

// Package fulfill implements the order fulfillment engine that sees a single
// limit buy or sell trade through to a complete fill.
//
// A trade places one limit order at the current price, waits for the refresh
// interval and polls the order. Partially filled orders are canceled and a
// new order is placed for the remaining amount at a fresh price. At most one
// order of a trade is open on the exchange at any time.
package fulfill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/bvk/fulfill/amount"
	"github.com/bvk/fulfill/ctxutil"
	"github.com/bvk/fulfill/exchange"
	"github.com/bvk/fulfill/gobs"
	"github.com/bvk/fulfill/pricing"
	"github.com/bvk/fulfill/store"
	"github.com/shopspring/decimal"
	"github.com/visvasity/topic"
)

type openOrder struct {
	id     string
	symbol string

	price  decimal.Decimal
	amount decimal.Decimal

	record *gobs.Placement
}

// fulfillment is the working state of a running trade. It is only accessed
// from the goroutine running the trade.
type fulfillment struct {
	side Side

	// remainingFunds is the base currency left to spend on buys. placedFunds
	// is the remainingFunds value when the open order was placed.
	remainingFunds decimal.Decimal
	placedFunds    decimal.Decimal

	// remainingAmount is the unfilled quantity from the last status poll.
	remainingAmount decimal.Decimal

	lastAmount decimal.Decimal

	open *openOrder

	placements    int
	cancellations int
}

type Engine struct {
	runMu sync.Mutex

	gw      exchange.Gateway
	req     TradeRequest
	opts    Options
	prices  *pricing.Policy
	amounts *amount.Resolver

	transitions *topic.Topic[*Transition]

	fs fulfillment

	mu     sync.Mutex
	state  State
	trade  *gobs.TradeState
	result *Result
}

func New(gw exchange.Gateway, req *TradeRequest, opts *Options) (*Engine, error) {
	if gw == nil || req == nil {
		return nil, os.ErrInvalid
	}
	if err := req.Check(); err != nil {
		return nil, err
	}

	var o Options
	if opts != nil {
		o = *opts
	}
	o.setDefaults()
	if err := o.Check(); err != nil {
		return nil, err
	}
	prices, err := pricing.New(gw, &o.Pricing)
	if err != nil {
		return nil, err
	}

	name := req.Exchange
	if len(name) == 0 {
		name = gw.ExchangeName()
	}
	e := &Engine{
		gw:          gw,
		req:         *req,
		opts:        o,
		prices:      prices,
		amounts:     amount.New(gw),
		transitions: topic.New[*Transition](),
		trade: &gobs.TradeState{
			UID:            o.UID,
			Exchange:       name,
			Pair:           req.Pair.String(),
			Funds:          req.Funds,
			RefreshSeconds: req.Refresh.Seconds(),
			State:          Idle.String(),
		},
	}
	return e, nil
}

func (e *Engine) UID() string {
	return e.opts.UID
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Transitions returns a receiver for the engine state transitions. Receivers
// are closed after the trade reaches a terminal state.
func (e *Engine) Transitions() (*topic.Receiver[*Transition], error) {
	return topic.Subscribe(e.transitions, 0, true)
}

// Snapshot returns a copy of the current trade state.
func (e *Engine) Snapshot() (*gobs.TradeState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.trade.Clone()
}

// Buy spends the requested funds on the target currency. Returns a
// *RejectedError when the exchange refuses an order and an error matching
// ErrUnknownOrderState when an order may be left open.
func (e *Engine) Buy(ctx context.Context) (*Result, error) {
	return e.run(ctx, Buy)
}

// Sell sells the entire free balance of the target currency.
func (e *Engine) Sell(ctx context.Context) (*Result, error) {
	return e.run(ctx, Sell)
}

func (e *Engine) run(ctx context.Context, side Side) (*Result, error) {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	if e.result != nil {
		if e.result.Side != side {
			return nil, fmt.Errorf("trade %s has already finished as a %s: %w", e.opts.UID, e.result.Side, os.ErrInvalid)
		}
		return e.result, e.result.Err
	}

	e.fs = fulfillment{side: side}
	e.mu.Lock()
	e.trade.Side = side.String()
	e.trade.StartTime = time.Now()
	e.mu.Unlock()

	slog.Info("started trade", "trade", e.opts.UID, "side", side, "exchange", e.trade.Exchange, "pair", e.req.Pair, "funds", e.req.Funds, "refresh", e.req.Refresh)
	state, err := e.execute(ctx)
	result := e.finish(ctx, state, err)

	e.result = result
	e.transitions.Close()
	return result, result.Err
}

func (e *Engine) execute(ctx context.Context) (State, error) {
	pair := e.req.Pair.String()

	markets, err := e.gw.LoadMarkets(ctx)
	if err != nil {
		return e.fail(ctx, fmt.Errorf("could not load markets: %w", err))
	}
	if m, ok := markets[pair]; !ok || m == nil {
		return Aborted, fmt.Errorf("pair %s: %w", pair, exchange.ErrUnknownMarket)
	} else if !m.Active {
		slog.Warn("market is not marked active (continuing)", "trade", e.opts.UID, "pair", pair)
	}

	e.fs.remainingFunds = e.req.Funds
	for {
		if limit := e.opts.MaxPlacements; limit > 0 && e.fs.placements >= limit {
			return Aborted, fmt.Errorf("trade has placed %d orders: %w", e.fs.placements, ErrTooManyPlacements)
		}
		if err := e.place(ctx); err != nil {
			return e.fail(ctx, err)
		}

		status, err := e.poll(ctx)
		if err != nil {
			return e.fail(ctx, err)
		}
		if status.IsFilled() {
			e.closeOrder()
			return Filled, nil
		}

		e.transition(ctx, PartiallyFilled, e.remainingNote(status))
		o := e.fs.open
		final, err := e.cancel(ctx, o)
		if err != nil {
			return e.fail(ctx, err)
		}
		e.closeOrder()
		if final.IsFilled() {
			slog.Info("canceled order was filled completely", "trade", e.opts.UID, "order-id", o.id)
			return Filled, nil
		}
		if e.fs.side == Buy && !e.fs.remainingFunds.IsPositive() {
			slog.Info("remaining funds are exhausted", "trade", e.opts.UID, "order-id", o.id, "remaining-funds", e.fs.remainingFunds)
			return Filled, nil
		}
		e.transition(ctx, Placing, fmt.Sprintf("canceled order %s; re-quoting for the remaining amount", o.id))
	}
}

// place fetches a fresh quote, resolves the order amount and places a new
// limit order. Caller must ensure that no order is open.
func (e *Engine) place(ctx context.Context) error {
	side, pair := e.fs.side, e.req.Pair.String()
	if e.state != Placing {
		e.transition(ctx, Placing, "fetching current price")
	}

	quote, err := e.prices.Quote(ctx, pair)
	if err != nil {
		return err
	}

	var qty decimal.Decimal
	if side == Buy {
		var funds decimal.Decimal
		if qty, funds, err = e.amounts.Buy(ctx, e.req.Pair, e.fs.remainingFunds, quote.Price); err != nil {
			return err
		}
		e.fs.remainingFunds = funds
	} else {
		if qty, err = e.amounts.Sell(ctx, e.req.Pair); err != nil {
			return err
		}
	}
	e.fs.lastAmount = qty

	if !qty.IsPositive() {
		return &RejectedError{Side: side, Funds: e.fs.remainingFunds, Amount: qty, Err: fmt.Errorf("order amount %s is not positive: %w", qty, exchange.ErrInvalidOrder)}
	}

	start := time.Now()
	var handle *exchange.OrderHandle
	if side == Buy {
		handle, err = e.gw.CreateLimitBuyOrder(ctx, pair, qty, quote.Price)
	} else {
		handle, err = e.gw.CreateLimitSellOrder(ctx, pair, qty, quote.Price)
	}
	latency := time.Since(start)
	if err != nil {
		if exchange.IsRejection(err) {
			slog.Error("limit order was rejected", "trade", e.opts.UID, "side", side, "price", quote.Price, "amount", qty, "funds", e.fs.remainingFunds, "latency", latency, "err", err)
			return &RejectedError{Side: side, Funds: e.fs.remainingFunds, Amount: qty, Err: err}
		}
		slog.Error("create limit order has failed", "trade", e.opts.UID, "side", side, "price", quote.Price, "amount", qty, "latency", latency, "err", err)
		return &UnknownOrderStateError{Symbol: pair, Err: fmt.Errorf("could not create limit %s order: %w", side, err)}
	}
	e.fs.placements++

	// Order is recorded with the handle id when the selector fails so that
	// it can be resolved later.
	id, symbol, rerr := e.orderRef(handle)
	if rerr != nil {
		id, symbol = handle.ID, handle.Symbol
		if len(symbol) == 0 {
			symbol = pair
		}
	}

	created := handle.CreateTime
	if created.IsZero() {
		created = time.Now()
	}
	record := &gobs.Placement{
		OrderID:    id,
		Symbol:     symbol,
		Price:      quote.Price,
		Amount:     qty,
		Status:     "open",
		CreateTime: created,
	}
	e.fs.open = &openOrder{id: id, symbol: symbol, price: quote.Price, amount: qty, record: record}
	e.fs.placedFunds = e.fs.remainingFunds

	e.mu.Lock()
	e.trade.Placements = append(e.trade.Placements, record)
	e.trade.OpenOrderID, e.trade.OpenOrderSymbol = id, symbol
	e.mu.Unlock()

	if rerr != nil {
		slog.Error("could not select the order id for status checks", "trade", e.opts.UID, "side", side, "handle-id", handle.ID, "err", rerr)
		return &UnknownOrderStateError{OrderID: id, Symbol: symbol, Err: rerr}
	}
	slog.Info("created new limit order", "trade", e.opts.UID, "side", side, "order-id", id, "price", quote.Price, "amount", qty, "latency", latency)
	e.transition(ctx, Polling, fmt.Sprintf("placed limit %s order for %s %s at price %s", side, qty, e.req.Pair.Target, quote.Price))
	return nil
}

// orderRef returns the order id and symbol used for status polls and
// cancellations of a placed order.
func (e *Engine) orderRef(h *exchange.OrderHandle) (id, symbol string, err error) {
	if e.fs.side == Sell {
		id, err = e.opts.SellOrderID(h)
		return id, e.req.Pair.String(), err
	}
	id, err = e.opts.BuyOrderID(h)
	symbol = h.Symbol
	if len(symbol) == 0 {
		symbol = e.req.Pair.String()
	}
	return id, symbol, err
}

// poll waits for the refresh interval and fetches the open order status.
func (e *Engine) poll(ctx context.Context) (*exchange.OrderStatus, error) {
	o := e.fs.open
	if err := ctxutil.Sleep(ctx, e.req.Refresh); err != nil {
		return nil, err
	}
	status, err := e.gw.FetchOrder(ctx, o.id, o.symbol)
	if err != nil {
		slog.Error("could not fetch limit order", "trade", e.opts.UID, "order-id", o.id, "symbol", o.symbol, "err", err)
		return nil, fmt.Errorf("could not fetch order %s: %w", o.id, err)
	}
	e.update(o, status)
	return status, nil
}

// update records the order status and updates the remaining funds from the
// order's filled cost.
func (e *Engine) update(o *openOrder, status *exchange.OrderStatus) {
	e.mu.Lock()
	o.record.Filled = status.Filled
	o.record.Cost = status.Cost
	o.record.Status = status.Status
	if status.Done && !o.record.Done {
		o.record.Done = true
		o.record.FinishTime = time.Now()
	}
	e.mu.Unlock()

	if status.RemainingKnown {
		e.fs.remainingAmount = status.Remaining
	}
	if e.fs.side == Buy {
		e.fs.remainingFunds = e.opts.FundsMode.update(e.fs.placedFunds, status.Cost)
		slog.Info("remaining funds", "trade", e.opts.UID, "order-id", o.id, "remaining-funds", e.fs.remainingFunds, "order-cost", status.Cost)
	}
}

// cancel cancels the order and polls its status till the exchange reports
// it as done. Returns the final order status.
func (e *Engine) cancel(ctx context.Context, o *openOrder) (*exchange.OrderStatus, error) {
	attempts := e.opts.CancelPollAttempts
	cerr := e.gw.CancelOrder(ctx, o.id, o.symbol)
	if cerr != nil {
		slog.Warn("cancel limit order has failed (checking order status)", "trade", e.opts.UID, "order-id", o.id, "err", cerr)
		attempts = 1
	} else {
		e.fs.cancellations++
		e.mu.Lock()
		e.trade.Cancellations = e.fs.cancellations
		e.mu.Unlock()
	}

	var final *exchange.OrderStatus
	confirm := func() error {
		status, err := e.gw.FetchOrder(ctx, o.id, o.symbol)
		if err != nil {
			slog.Warn("could not fetch canceled order", "trade", e.opts.UID, "order-id", o.id, "err", err)
			return err
		}
		e.update(o, status)
		if !status.Done {
			return fmt.Errorf("canceled order %s is still not done (status %s)", o.id, status.Status)
		}
		final = status
		return nil
	}
	if err := ctxutil.RetryN(ctx, e.opts.CancelPollInterval, attempts, confirm); err != nil {
		if cerr != nil {
			return nil, fmt.Errorf("could not cancel order %s: %w", o.id, errors.Join(cerr, err))
		}
		return nil, fmt.Errorf("could not confirm cancellation of order %s: %w", o.id, err)
	}
	slog.Info("canceled limit order", "trade", e.opts.UID, "order-id", o.id, "filled", final.Filled, "cost", final.Cost)
	return final, nil
}

func (e *Engine) closeOrder() {
	e.fs.open = nil
	e.mu.Lock()
	e.trade.OpenOrderID, e.trade.OpenOrderSymbol = "", ""
	e.mu.Unlock()
}

// fail maps an error from the trade loop to a terminal state.
func (e *Engine) fail(ctx context.Context, err error) (State, error) {
	var rerr *RejectedError
	if errors.As(err, &rerr) {
		return Rejected, err
	}
	if errors.Is(err, ErrUnknownOrderState) {
		return Aborted, err
	}
	if ctx.Err() != nil {
		return e.stop(ctx)
	}
	if o := e.fs.open; o != nil {
		return Aborted, &UnknownOrderStateError{OrderID: o.id, Symbol: o.symbol, Err: err}
	}
	return Aborted, err
}

// stop cancels the open order, if any, after the trade context is canceled.
func (e *Engine) stop(ctx context.Context) (State, error) {
	cause := context.Cause(ctx)
	o := e.fs.open
	if o == nil {
		return Stopped, cause
	}

	sctx, scancel := context.WithTimeout(context.WithoutCancel(ctx), e.opts.StopTimeout)
	defer scancel()

	slog.Info("canceling open limit order before quitting", "trade", e.opts.UID, "order-id", o.id, "quit-reason", cause)
	final, err := e.cancel(sctx, o)
	if err != nil {
		slog.Error("could not cancel open limit order before quitting", "trade", e.opts.UID, "order-id", o.id, "err", err)
		return Aborted, &UnknownOrderStateError{OrderID: o.id, Symbol: o.symbol, Err: errors.Join(cause, err)}
	}
	e.closeOrder()
	if final.IsFilled() {
		return Filled, nil
	}
	return Stopped, cause
}

func (e *Engine) finish(ctx context.Context, state State, err error) *Result {
	e.mu.Lock()
	filled, spent := e.trade.Filled()
	e.trade.RemainingFunds = e.fs.remainingFunds
	e.trade.FinishTime = time.Now()
	if err != nil {
		e.trade.Error = err.Error()
	}
	e.mu.Unlock()

	result := &Result{
		UID:            e.opts.UID,
		Side:           e.fs.side,
		State:          state,
		Placements:     e.fs.placements,
		Cancellations:  e.fs.cancellations,
		Filled:         filled,
		Spent:          spent,
		RemainingFunds: e.fs.remainingFunds,
		LastAmount:     e.fs.lastAmount,
		Err:            err,
	}

	var note string
	switch {
	case state == Filled:
		note = fmt.Sprintf("filled %s %s for %s %s", filled, e.req.Pair.Target, spent, e.req.Pair.Base)
		slog.Info("trade is complete", "trade", e.opts.UID, "side", e.fs.side, "filled", filled, "spent", spent, "placements", result.Placements)
	case err != nil:
		note = err.Error()
		slog.Error("trade has failed", "trade", e.opts.UID, "side", e.fs.side, "state", state, "placements", result.Placements, "last-amount", result.LastAmount, "err", err)
	}
	e.transition(context.WithoutCancel(ctx), state, note)
	return result
}

func (e *Engine) remainingNote(status *exchange.OrderStatus) string {
	remaining := "unknown"
	if status.RemainingKnown {
		remaining = status.Remaining.String()
	}
	if e.fs.side == Buy {
		return fmt.Sprintf("remaining quantity %s; remaining funds %s %s", remaining, e.fs.remainingFunds, e.req.Pair.Base)
	}
	return fmt.Sprintf("remaining quantity %s", remaining)
}

// transition moves the engine to a new state, publishes the change and
// saves the trade state.
func (e *Engine) transition(ctx context.Context, to State, note string) {
	e.mu.Lock()
	from := e.state
	e.state = to
	e.trade.State = to.String()
	e.trade.RemainingFunds = e.fs.remainingFunds
	t := &Transition{
		UID:  e.opts.UID,
		Side: e.fs.side,
		From: from,
		To:   to,
		Note: note,
		At:   time.Now(),
	}
	if o := e.fs.open; o != nil {
		t.OrderID, t.Price, t.Amount = o.id, o.price, o.amount
	}
	if e.fs.side == Buy {
		t.Remaining = e.fs.remainingFunds
	} else {
		t.Remaining = e.fs.remainingAmount
	}
	e.mu.Unlock()

	slog.Debug("trade state transition", "trade", e.opts.UID, "from", from, "to", to, "order-id", t.OrderID, "note", note)
	e.transitions.Send(t)
	e.save(ctx)
}

func (e *Engine) save(ctx context.Context) {
	if e.opts.Database == nil {
		return
	}
	snapshot, err := e.Snapshot()
	if err != nil {
		slog.Error("could not take trade state snapshot (ignored)", "trade", e.opts.UID, "err", err)
		return
	}
	if err := store.SaveDB(context.WithoutCancel(ctx), e.opts.Database, snapshot); err != nil {
		slog.Error("trade state could not be saved to the database (ignored)", "trade", e.opts.UID, "err", err)
	}
}
