package resilience

import "errors"

// ErrCircuitOpen is returned by Envelope.TryConsume when the breaker is
// OPEN with FallbackStrategy FAIL_CLOSED. Callers at the fluxgate
// boundary map this to fluxgate.ErrCircuitOpen.
var ErrCircuitOpen = errors.New("resilience: circuit breaker open")
