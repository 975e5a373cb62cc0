package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrAlreadyTerminal    = errors.New("opportunity already terminal")
	ErrRateLimited        = errors.New("rate limited")
	ErrNoActiveVenues     = errors.New("no active venues")
	ErrNoProviderForToken = errors.New("no funding provider for token")
	ErrTransientFetch     = errors.New("transient fetch failure")
	ErrStaleResponse      = errors.New("stale offload response")
	ErrExecutionHalted    = errors.New("auto-execution halted by circuit breaker")
	ErrOffloaderBusy      = errors.New("offloader queue full")
	ErrSigningFailed      = errors.New("signing failed")
	ErrWSDisconnect       = errors.New("websocket disconnected")
	ErrLockHeld           = errors.New("lock already held")
)
