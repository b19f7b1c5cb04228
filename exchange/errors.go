// Copyright (c) 2026 BVK Chaitanya

package exchange

import (
	"errors"
	"fmt"
)

var (
	ErrPriceUnavailable  = errors.New("price unavailable")
	ErrInvalidOrder      = errors.New("invalid order")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrOrderNotFound     = errors.New("order not found")
	ErrUnknownMarket     = errors.New("unknown market")
)

// IsRejection returns true if the error indicates that the exchange refused
// to accept an order.
func IsRejection(err error) bool {
	return errors.Is(err, ErrInvalidOrder) || errors.Is(err, ErrInsufficientFunds)
}

// UnknownExchangeError is returned when an exchange name is not registered.
type UnknownExchangeError struct {
	Name string
}

func (e *UnknownExchangeError) Error() string {
	return fmt.Sprintf("exchange %q is not registered", e.Name)
}
