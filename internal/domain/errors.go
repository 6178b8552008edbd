package domain

import "errors"

var (
	ErrInvalidConfig       = errors.New("invalid configuration")
	ErrInvalidOrder        = errors.New("invalid order parameters")
	ErrEmptyBook           = errors.New("order book is empty")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNotFound            = errors.New("not found")
	ErrNonFinitePnL        = errors.New("non-finite pnl")
	ErrNotRunning          = errors.New("simulation is not running")
)
