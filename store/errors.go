package store

import "errors"

var (
	// ErrUnavailable marks the backend being unreachable, analogous to the
	// teacher's backends.ErrUnhealthy. Wrapped by fluxgate.ErrStoreUnavailable
	// at the resilience-envelope boundary.
	ErrUnavailable = errors.New("store: backend unavailable")

	// ErrInvalidRequest marks a malformed ConsumeRequest (e.g. permits <= 0,
	// or an empty key or band list), which fluxgate surfaces as ErrConfig.
	ErrInvalidRequest = errors.New("store: invalid consume request")
)
