package core

import (
	"errors"
	"fmt"
)

// Validation errors. Each is raised by a guard before any wallet mutation
// or gateway call, so a caller seeing one knows all state is unchanged.
var (
	// ErrInsufficientFunds indicates the wallet balance does not cover the request.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrUnsupportedCoin indicates the market has no notion of the coin.
	ErrUnsupportedCoin = errors.New("unsupported coin")
	// ErrInvalidMarket indicates the market name is not in the catalog.
	ErrInvalidMarket = errors.New("invalid market")
	// ErrInvalidAmount indicates a non-positive amount.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrBelowMinimumFee indicates the amount is below the coin's minimum withdrawal fee.
	ErrBelowMinimumFee = errors.New("below minimum fee")
	// ErrEmptyOrderBook indicates the order book has an empty bid or ask side.
	ErrEmptyOrderBook = errors.New("empty order book")
	// ErrNotImplemented marks a contract the venue wiring does not provide yet.
	ErrNotImplemented = errors.New("not implemented")
)

// GatewayError wraps a venue call failure. Unlike the validation errors it
// can occur after guards have passed, so it may imply ledger/venue
// divergence. Unknown marks outcomes the caller cannot classify, such as a
// timeout after the request was written.
type GatewayError struct {
	Op      string
	Err     error
	Unknown bool
}

func (e *GatewayError) Error() string {
	if e.Unknown {
		return fmt.Sprintf("gateway %s: outcome unknown: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// IsGatewayError reports whether err is (or wraps) a GatewayError.
func IsGatewayError(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge)
}
