// Copyright (c) 2026 BVK Chaitanya

package exchange

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
)

// OrderIDFunc picks the identifier used for status polls and cancellations
// of a placed order. Exchange integrations differ on which placement
// response field identifies the order, so the choice is made per side by
// the caller.
type OrderIDFunc func(h *OrderHandle) (string, error)

// HandleID uses the generic gateway order id.
func HandleID(h *OrderHandle) (string, error) {
	if h == nil || len(h.ID) == 0 {
		return "", fmt.Errorf("order handle has no id: %w", os.ErrInvalid)
	}
	return h.ID, nil
}

// InfoOrderID uses the exchange-internal "orderId" field from the placement
// response.
func InfoOrderID(h *OrderHandle) (string, error) {
	if h == nil {
		return "", os.ErrInvalid
	}
	id, ok := h.Info["orderId"]
	if !ok || len(id) == 0 {
		return "", fmt.Errorf("order handle %q has no exchange-internal orderId field: %w", h.ID, os.ErrNotExist)
	}
	return id, nil
}

// TruncateToPrecision rounds the amount towards zero to the given number of
// decimal places. A negative amount is invalid.
func TruncateToPrecision(amount decimal.Decimal, places int32) (decimal.Decimal, error) {
	if amount.IsNegative() {
		return decimal.Zero, fmt.Errorf("amount %s cannot be negative: %w", amount, os.ErrInvalid)
	}
	if places < 0 {
		return decimal.Zero, fmt.Errorf("precision %d cannot be negative: %w", places, os.ErrInvalid)
	}
	return amount.Truncate(places), nil
}
