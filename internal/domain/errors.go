package domain

import (
	"errors"
	"fmt"
)

// -----------------------------------------------------------------------------
// Domain Errors
// These errors represent scheduler-level failures and are shared by the
// ledger, strategy engine, sequencer and the transports built on top of them.
// -----------------------------------------------------------------------------

// Input errors
var (
	// ErrInvalidInput rejects malformed attempts and roadmap topic sets.
	// The ledger is left untouched when it is returned.
	ErrInvalidInput = errors.New("invalid input")
)

// Strategy errors
var (
	// ErrComputationFailure marks an unexpected internal error during
	// strategy evolution. It is logged and never propagated to recorders.
	ErrComputationFailure = errors.New("strategy computation failure")

	// ErrInsufficientData is a defined state, not a failure: the topic has
	// fewer attempts than the engine needs to derive a strategy.
	ErrInsufficientData = errors.New("insufficient data")
)

// Lookup errors. The specific lookups wrap ErrNotFound, so callers that
// only care about absence can match the general error.
var (
	ErrNotFound        = errors.New("not found")
	ErrTopicNotFound   = fmt.Errorf("topic %w", ErrNotFound)
	ErrRoadmapNotFound = fmt.Errorf("roadmap %w", ErrNotFound)
)

// Concurrency errors
var (
	// ErrTopicLocked is returned when another writer holds a topic's ledger.
	ErrTopicLocked = errors.New("topic is locked by another writer")
)
