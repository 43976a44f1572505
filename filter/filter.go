// Package filter is the embedded request-path interceptor (§4.9, §6):
// a Fiber middleware that evaluates every matching request against the
// engine and enforces REJECT_REQUEST / WAIT_FOR_REFILL locally, adapted
// from the teacher pack's fiber rate-limit middleware convention.
package filter

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/fluxgate/fluxgate"
)

// ContextCustomizer enriches a RequestContext built from framework
// request metadata with application-specific values (§4.9 step 2).
type ContextCustomizer func(c *fiber.Ctx, reqCtx fluxgate.RequestContext) fluxgate.RequestContext

// Config configures a Filter. No configuration surface beyond what §6
// names for embedded mode.
type Config struct {
	RuleSetId  string
	Includes   []string
	Excludes   []string
	Customizer ContextCustomizer

	// MaxWaitTimeMs bounds how long a WAIT_FOR_REFILL request may sleep
	// before being rejected outright (default 5000).
	MaxWaitTimeMs int64
	// MaxConcurrentWaits bounds the process-wide number of requests
	// sleeping for WAIT_FOR_REFILL at once (default 100).
	MaxConcurrentWaits int
}

func (c Config) withDefaults() Config {
	if c.MaxWaitTimeMs <= 0 {
		c.MaxWaitTimeMs = 5000
	}
	if c.MaxConcurrentWaits <= 0 {
		c.MaxConcurrentWaits = 100
	}
	return c
}

// Filter is the embedded interceptor.
type Filter struct {
	engine  *fluxgate.Engine
	matcher *Matcher
	config  Config

	waitSemaphore chan struct{}
}

// New builds a Filter over engine with config.
func New(engine *fluxgate.Engine, config Config) *Filter {
	config = config.withDefaults()
	return &Filter{
		engine:        engine,
		matcher:       NewMatcher(config.Includes, config.Excludes),
		config:        config,
		waitSemaphore: make(chan struct{}, config.MaxConcurrentWaits),
	}
}

// Handler returns the Fiber middleware implementing §4.9.
func (f *Filter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		path := c.Path()
		if !f.matcher.Match(path) {
			return c.Next()
		}

		reqCtx := buildRequestContext(c)
		if f.config.Customizer != nil {
			reqCtx = f.config.Customizer(c, reqCtx)
		}

		ctx := c.Context()
		verdict, err := f.engine.Check(ctx, f.config.RuleSetId, reqCtx, 1)
		if err != nil {
			return err
		}

		if verdict.Allowed {
			c.Set("X-RateLimit-Remaining", remainingHeader(verdict.RemainingTokens))
			return c.Next()
		}

		rule := verdict.MatchedRule
		if rule != nil && rule.OnLimitExceedPolicy == fluxgate.PolicyWaitForRefill {
			return f.handleWaitForRefill(c, ctx, reqCtx, verdict)
		}
		return reject(c, verdict)
	}
}

// handleWaitForRefill implements the §5 WAIT_FOR_REFILL discipline:
// bounded sleep, one retry, forward or reject on the retried verdict.
func (f *Filter) handleWaitForRefill(c *fiber.Ctx, ctx context.Context, reqCtx fluxgate.RequestContext, verdict fluxgate.Verdict) error {
	wait := time.Duration(verdict.NanosToWaitForRefill)
	if wait.Milliseconds() > f.config.MaxWaitTimeMs {
		return reject(c, verdict)
	}

	select {
	case f.waitSemaphore <- struct{}{}:
	default:
		return reject(c, verdict)
	}
	defer func() { <-f.waitSemaphore }()

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return NewCancelledError(ctx.Err())
	case <-timer.C:
	}

	retried, err := f.engine.Check(ctx, f.config.RuleSetId, reqCtx, 1)
	if err != nil {
		return err
	}
	if retried.Allowed {
		c.Set("X-RateLimit-Remaining", remainingHeader(retried.RemainingTokens))
		return c.Next()
	}
	return reject(c, retried)
}

func buildRequestContext(c *fiber.Ctx) fluxgate.RequestContext {
	return fluxgate.RequestContext{
		ClientIp: c.IP(),
		UserId:   c.Get("X-User-Id"),
		ApiKey:   c.Get("X-API-Key"),
		Endpoint: c.Path(),
		Method:   c.Method(),
	}
}

func reject(c *fiber.Ctx, verdict fluxgate.Verdict) error {
	retryAfter := int64(math.Ceil(float64(verdict.NanosToWaitForRefill) / 1e9))
	if retryAfter < 0 {
		retryAfter = 0
	}
	c.Set("Retry-After", fmt.Sprintf("%d", retryAfter))
	c.Set("X-RateLimit-Remaining", "0")
	return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
		"error":      "Rate limit exceeded",
		"retryAfter": retryAfter,
	})
}

func remainingHeader(remaining int64) string {
	return fmt.Sprintf("%d", remaining)
}

// CancelledError marks a request cancelled during a retry or
// WAIT_FOR_REFILL sleep (§5).
type CancelledError struct {
	Cause error
}

func NewCancelledError(cause error) error {
	return &CancelledError{Cause: cause}
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("fluxgate/filter: request cancelled: %v", e.Cause)
}

func (e *CancelledError) Unwrap() error { return e.Cause }

func (e *CancelledError) Is(target error) bool {
	return target == fluxgate.ErrCancelled
}
