// Copyright (c) 2025 BVK Chaitanya

package internal

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Order struct {
	OrderID        int64           `json:"order_id"`
	ClientOrderID  string          `json:"client_id"`
	Market         string          `json:"market"`
	MarketType     string          `json:"market_type"`
	Side           string          `json:"side"`
	OrderType      string          `json:"type"`
	OrderAmount    decimal.Decimal `json:"amount"`
	OrderPrice     decimal.Decimal `json:"price"`
	UnfilledAmount decimal.Decimal `json:"unfilled_amount"`
	FilledAmount   decimal.Decimal `json:"filled_amount"`
	FilledValue    decimal.Decimal `json:"filled_value"`
	BaseFee        decimal.Decimal `json:"base_fee"`
	QuoteFee       decimal.Decimal `json:"quote_fee"`
	CreatedAtMilli int64           `json:"created_at"`
	UpdatedAtMilli int64           `json:"updated_at"`
	Status         string          `json:"status"`
}

func (v *Order) ServerID() string {
	return strconv.FormatInt(v.OrderID, 10)
}

func (v *Order) CreatedAt() time.Time {
	if v.CreatedAtMilli == 0 {
		return time.Time{}
	}
	return time.UnixMilli(v.CreatedAtMilli)
}

func (v *Order) UpdatedAt() time.Time {
	if v.UpdatedAtMilli == 0 {
		return time.Time{}
	}
	return time.UnixMilli(v.UpdatedAtMilli)
}

// IsDone returns true if the order is filled or canceled.
func (v *Order) IsDone() bool {
	switch strings.ToLower(v.Status) {
	case "filled", "canceled", "part_canceled":
		return true
	}
	return false
}
