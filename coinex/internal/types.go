// Copyright (c) 2025 BVK Chaitanya

package internal

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Response codes with a specific meaning for order placement.
const (
	CodeOK                  = 0
	CodeInvalidArgument     = 3008
	CodeInsufficientBalance = 3109
	CodeAmountTooSmall      = 3127
	CodeOrderNotFound       = 3600
)

// Response is the common envelope of all REST responses.
type Response[T any] struct {
	Code int `json:"code"`

	Message string `json:"message"`

	Data T `json:"data"`
}

// APIError is returned for responses with a non-zero code.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("coinex api failed with code=%d message=%s", e.Code, e.Message)
}

type MarketStatus struct {
	Market string `json:"market"`
	Status string `json:"status"`

	IsAPITradingAvailable bool `json:"is_api_trading_available"`

	MakerFeeRate string `json:"maker_fee_rate"`
	TakerFeeRate string `json:"taker_fee_rate"`

	MinAmount decimal.Decimal `json:"min_amount"` // Min. transaction volume

	BaseCurrency  string `json:"base_ccy"`
	BasePrecision int    `json:"base_ccy_precision"`

	QuoteCurrency  string `json:"quote_ccy"`
	QuotePrecision int    `json:"quote_ccy_precision"`
}

type Ticker struct {
	Market string `json:"market"`

	LastPrice decimal.Decimal `json:"last"`

	OpenPrice  decimal.Decimal `json:"open"`
	ClosePrice decimal.Decimal `json:"close"`

	HighPrice decimal.Decimal `json:"high"`
	LowPrice  decimal.Decimal `json:"low"`

	FilledVolume decimal.Decimal `json:"volume"`
	FilledValue  decimal.Decimal `json:"value"`
}

type Balance struct {
	Currency string `json:"ccy"`

	Available decimal.Decimal `json:"available"`

	Frozen decimal.Decimal `json:"frozen"`
}

type CreateOrderRequest struct {
	ClientOrderID string          `json:"client_id"`
	Market        string          `json:"market"`
	MarketType    string          `json:"market_type"`
	Side          string          `json:"side"`
	OrderType     string          `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	Price         decimal.Decimal `json:"price"`
}

type CancelOrderRequest struct {
	OrderID    int64  `json:"order_id"`
	Market     string `json:"market"`
	MarketType string `json:"market_type"`
}
