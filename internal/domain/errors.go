package domain

import "errors"

// Engine-level errors. Callers match with errors.Is; call sites wrap these
// with the entity id, the attempted action and the violated constraint.
var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInsufficientShares  = errors.New("insufficient shares")
	ErrInsufficientCapital = errors.New("insufficient capital")
	ErrInvalidTrade        = errors.New("invalid trade")
	ErrInvalidState        = errors.New("invalid state")
	ErrNotFound            = errors.New("not found")
	ErrStrategyNotFound    = errors.New("strategy not found")
)
