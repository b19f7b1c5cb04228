// Copyright (c) 2025 BVK Chaitanya

// Package coinex implements the exchange gateway for the CoinEx spot market
// using the v2 REST api.
package coinex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bvk/fulfill/coinex/internal"
	"github.com/bvk/fulfill/exchange"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const Name = "coinex"

func init() {
	exchange.MustRegister(Name, func(ctx context.Context, creds *exchange.Credentials) (exchange.Gateway, error) {
		return New(ctx, creds.Key, creds.Secret, nil)
	})
}

type Gateway struct {
	client *internal.Client

	mu sync.Mutex

	// markets holds the market status keyed by the "TARGET/BASE" pair.
	markets map[string]*internal.MarketStatus

	// canceled holds the cancel responses keyed by the order id. CoinEx does
	// not save zero-filled canceled orders, so status queries for them are
	// answered from here.
	canceled map[int64]*internal.Order
}

var _ exchange.Gateway = &Gateway{}

// New creates a coinex gateway. Market information is not loaded until
// LoadMarkets is called.
func New(ctx context.Context, key, secret string, opts *Options) (*Gateway, error) {
	if opts == nil {
		opts = new(Options)
	}
	opts.setDefaults()
	if err := opts.Check(); err != nil {
		return nil, err
	}
	client, err := internal.New(key, secret, opts.internal())
	if err != nil {
		return nil, fmt.Errorf("could not create coinex client: %w", err)
	}
	g := &Gateway{
		client:   client,
		markets:  make(map[string]*internal.MarketStatus),
		canceled: make(map[int64]*internal.Order),
	}
	return g, nil
}

func (g *Gateway) Close() error {
	return g.client.Close()
}

func (g *Gateway) ExchangeName() string {
	return Name
}

// toMarket converts a "TARGET/BASE" pair or an exchange symbol into the
// coinex market name, eg: "BTCUSDT".
func toMarket(pair string) string {
	return strings.ToUpper(strings.ReplaceAll(pair, "/", ""))
}

func (g *Gateway) FetchLastPrice(ctx context.Context, pair string) (decimal.Decimal, error) {
	ticker, err := g.client.GetTicker(ctx, toMarket(pair))
	if err != nil {
		return decimal.Zero, fmt.Errorf("could not fetch ticker for %q: %w: %w", pair, exchange.ErrPriceUnavailable, err)
	}
	if !ticker.LastPrice.IsPositive() {
		return decimal.Zero, fmt.Errorf("ticker for %q has invalid last price %s: %w", pair, ticker.LastPrice, exchange.ErrPriceUnavailable)
	}
	return ticker.LastPrice, nil
}

func (g *Gateway) LoadMarkets(ctx context.Context) (map[string]*exchange.MarketInfo, error) {
	list, err := g.client.GetMarkets(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not load markets: %w", err)
	}

	markets := make(map[string]*internal.MarketStatus)
	infos := make(map[string]*exchange.MarketInfo)
	for _, m := range list {
		if m.BaseCurrency == "" || m.QuoteCurrency == "" {
			slog.Warn("skipping market with incomplete currency information", "market", m.Market)
			continue
		}
		pair := exchange.Pair{Target: m.BaseCurrency, Base: m.QuoteCurrency}.String()
		markets[pair] = m
		infos[pair] = &exchange.MarketInfo{
			Symbol:          m.Market,
			Target:          m.BaseCurrency,
			Base:            m.QuoteCurrency,
			AmountPrecision: int32(m.BasePrecision),
			MinAmount:       m.MinAmount,
			Active:          strings.EqualFold(m.Status, "online") && m.IsAPITradingAvailable,
		}
	}

	g.mu.Lock()
	g.markets = markets
	g.mu.Unlock()
	return infos, nil
}

func (g *Gateway) FetchFreeBalance(ctx context.Context) (map[string]decimal.Decimal, error) {
	balances, err := g.client.GetBalances(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not fetch balances: %w", err)
	}
	free := make(map[string]decimal.Decimal)
	for _, b := range balances {
		free[strings.ToUpper(b.Currency)] = b.Available
	}
	return free, nil
}

func (g *Gateway) AmountToPrecision(pair string, amount decimal.Decimal) (decimal.Decimal, error) {
	g.mu.Lock()
	m, ok := g.markets[pair]
	g.mu.Unlock()

	if !ok {
		return decimal.Zero, fmt.Errorf("market %q is not loaded: %w", pair, exchange.ErrUnknownMarket)
	}
	return exchange.TruncateToPrecision(amount, int32(m.BasePrecision))
}

func (g *Gateway) CreateLimitBuyOrder(ctx context.Context, pair string, amount, price decimal.Decimal) (*exchange.OrderHandle, error) {
	return g.createLimitOrder(ctx, "buy", pair, amount, price)
}

func (g *Gateway) CreateLimitSellOrder(ctx context.Context, pair string, amount, price decimal.Decimal) (*exchange.OrderHandle, error) {
	return g.createLimitOrder(ctx, "sell", pair, amount, price)
}

func (g *Gateway) createLimitOrder(ctx context.Context, side, pair string, amount, price decimal.Decimal) (*exchange.OrderHandle, error) {
	if !amount.IsPositive() || !price.IsPositive() {
		return nil, fmt.Errorf("limit %s order amount %s and price %s must be positive: %w", side, amount, price, exchange.ErrInvalidOrder)
	}

	req := &internal.CreateOrderRequest{
		ClientOrderID: strings.ReplaceAll(uuid.New().String(), "-", ""),
		Market:        toMarket(pair),
		MarketType:    "SPOT",
		Side:          side,
		OrderType:     "limit",
		Amount:        amount,
		Price:         price,
	}
	order, err := g.client.CreateOrder(ctx, req)
	if err != nil {
		return nil, toGatewayError(err)
	}

	h := &exchange.OrderHandle{
		ID:     order.ServerID(),
		Symbol: pair,
		Info: map[string]string{
			"orderId":  order.ServerID(),
			"clientId": req.ClientOrderID,
		},
		CreateTime: order.CreatedAt(),
	}
	if h.CreateTime.IsZero() {
		h.CreateTime = time.Now()
	}
	return h, nil
}

func parseOrderID(id string) (int64, error) {
	v, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("order id %q is not a coinex order id: %w", id, os.ErrInvalid)
	}
	return v, nil
}

func (g *Gateway) FetchOrder(ctx context.Context, id, symbol string) (*exchange.OrderStatus, error) {
	orderID, err := parseOrderID(id)
	if err != nil {
		return nil, err
	}
	order, err := g.client.GetOrder(ctx, toMarket(symbol), orderID)
	if err != nil {
		var apiErr *internal.APIError
		if errors.As(err, &apiErr) && apiErr.Code == internal.CodeOrderNotFound {
			g.mu.Lock()
			last, ok := g.canceled[orderID]
			g.mu.Unlock()
			if ok {
				return toOrderStatus(symbol, last), nil
			}
		}
		return nil, toGatewayError(err)
	}
	return toOrderStatus(symbol, order), nil
}

func (g *Gateway) CancelOrder(ctx context.Context, id, symbol string) error {
	orderID, err := parseOrderID(id)
	if err != nil {
		return err
	}
	order, err := g.client.CancelOrder(ctx, toMarket(symbol), orderID)
	if err != nil {
		return toGatewayError(err)
	}
	if order == nil {
		order = &internal.Order{OrderID: orderID}
	}
	// CoinEx does not save zero-filled canceled orders, so we won't be able to
	// query them after this point.
	if order.FilledAmount.IsZero() {
		order.Status = "canceled"
		if order.UnfilledAmount.IsZero() {
			order.UnfilledAmount = order.OrderAmount
		}
	}
	if order.OrderID == 0 {
		order.OrderID = orderID
	}
	g.mu.Lock()
	g.canceled[orderID] = order
	g.mu.Unlock()
	return nil
}

func toOrderStatus(symbol string, order *internal.Order) *exchange.OrderStatus {
	return &exchange.OrderStatus{
		ID:             order.ServerID(),
		Symbol:         symbol,
		Status:         order.Status,
		Price:          order.OrderPrice,
		Amount:         order.OrderAmount,
		Remaining:      order.UnfilledAmount,
		RemainingKnown: order.FilledAmount.IsPositive() || order.UnfilledAmount.IsPositive(),
		Filled:         order.FilledAmount,
		Cost:           order.FilledValue,
		Done:           order.IsDone(),
		UpdateTime:     order.UpdatedAt(),
	}
}

// toGatewayError maps coinex response codes to the exchange error values.
func toGatewayError(err error) error {
	var apiErr *internal.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	switch apiErr.Code {
	case internal.CodeInsufficientBalance:
		return fmt.Errorf("%w: %w", exchange.ErrInsufficientFunds, err)
	case internal.CodeAmountTooSmall, internal.CodeInvalidArgument:
		return fmt.Errorf("%w: %w", exchange.ErrInvalidOrder, err)
	case internal.CodeOrderNotFound:
		return fmt.Errorf("%w: %w", exchange.ErrOrderNotFound, err)
	}
	return err
}
