package redis

import (
	"context"
	"errors"
	"strings"

	"github.com/fluxgate/fluxgate/store"
)

// connErrorStrings are the default lowercase substrings used to identify
// connectivity failures, matching the teacher's backends/redis patterns.
var connErrorStrings = []string{
	"connection refused",
	"connection reset",
	"no such host",
	"i/o timeout",
	"broken pipe",
	"eof",
	"dial tcp",
	"use of closed network connection",
}

func maybeConnError(op string, err error, patterns []string) error {
	if err == nil {
		return nil
	}
	errStr := strings.ToLower(err.Error())
	for _, p := range patterns {
		if strings.Contains(errStr, p) {
			return store.ErrUnavailable
		}
	}
	if errors.Is(err, context.Canceled) {
		// Cancellation is never a connectivity fault: let it propagate
		// unchanged so resilience.IsRetryable sees context.Canceled and
		// refuses to retry it, per §4.8/§7.
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return store.ErrUnavailable
	}
	return err
}

func isNoScript(err error) bool {
	return err != nil && strings.Contains(err.Error(), "NOSCRIPT")
}
