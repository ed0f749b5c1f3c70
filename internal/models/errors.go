package models

import "errors"

var (
	// ErrPositionNotFound indicates no position has the requested id.
	ErrPositionNotFound = errors.New("position not found")

	// ErrPositionClosed indicates the position is already closed.
	ErrPositionClosed = errors.New("position already closed")

	// ErrNoCandidate indicates no contract in a chain qualified.
	ErrNoCandidate = errors.New("no qualifying candidate")

	// ErrDataUnavailable indicates a quote, chain or IV rank could not be read.
	ErrDataUnavailable = errors.New("market data unavailable")

	// ErrMissingContract indicates a position lacks the contract details an order needs.
	ErrMissingContract = errors.New("position has no option contract symbol")

	// ErrInvalidInput indicates a malformed operator request.
	ErrInvalidInput = errors.New("invalid input")
)
