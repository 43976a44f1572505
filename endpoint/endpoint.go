// Package endpoint is the remote decision service (§4.9, §6):
// POST /api/ratelimit/check, answering 200 with the verdict (or the
// engine's error) in the body, and 400 only for an unparsable or invalid
// body or when no rule-set id is given or configured, grounded on the teacher pack's fiber handler and
// go-playground/validator request-validation conventions.
package endpoint

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/fluxgate/fluxgate"
)

// CheckRequest is the decision endpoint's request body. RuleSetId may be
// omitted when the deployment configures a default rule-set id (§6
// rateLimit.defaultRuleSetId); the handler falls back to it.
type CheckRequest struct {
	RuleSetId  string         `json:"ruleSetId"`
	Path       string         `json:"path" validate:"required"`
	Method     string         `json:"method" validate:"required"`
	ClientIp   string         `json:"clientIp"`
	UserId     string         `json:"userId"`
	ApiKey     string         `json:"apiKey"`
	Attributes map[string]any `json:"attributes"`
}

// MatchedRule is the subset of a matched rule surfaced to remote callers.
type MatchedRule struct {
	Id   string `json:"id"`
	Name string `json:"name"`
}

// CheckResponse is the decision endpoint's response body. Status is
// always 200 per §6; the verdict is carried entirely in the body.
type CheckResponse struct {
	Allowed          bool         `json:"allowed"`
	RemainingTokens  int64        `json:"remainingTokens"`
	RetryAfterMillis int64        `json:"retryAfterMillis"`
	MatchedRule      *MatchedRule `json:"matchedRule,omitempty"`
}

// Handler serves the decision endpoint against an Engine.
type Handler struct {
	engine           *fluxgate.Engine
	validate         *validator.Validate
	defaultRuleSetId string
}

// New builds a Handler. defaultRuleSetId is used for any request that
// omits ruleSetId (§6 rateLimit.defaultRuleSetId); pass "" to require
// every request to name its own rule-set.
func New(engine *fluxgate.Engine, defaultRuleSetId string) *Handler {
	return &Handler{engine: engine, validate: validator.New(), defaultRuleSetId: defaultRuleSetId}
}

// Register mounts the handler at POST /api/ratelimit/check on router.
func (h *Handler) Register(router fiber.Router) {
	router.Post("/api/ratelimit/check", h.Check)
}

// Check implements POST /api/ratelimit/check.
func (h *Handler) Check(c *fiber.Ctx) error {
	var req CheckRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": formatValidationError(err)})
	}

	ruleSetId := req.RuleSetId
	if ruleSetId == "" {
		ruleSetId = h.defaultRuleSetId
	}
	if ruleSetId == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "ruleSetId is required"})
	}

	reqCtx := fluxgate.RequestContext{
		ClientIp:   req.ClientIp,
		UserId:     req.UserId,
		ApiKey:     req.ApiKey,
		Endpoint:   req.Path,
		Method:     req.Method,
		Attributes: req.Attributes,
	}

	verdict, err := h.engine.Check(c.Context(), ruleSetId, reqCtx, 1)
	if err != nil {
		if errors.Is(err, fluxgate.ErrMissingRuleSet) {
			return c.Status(fiber.StatusOK).JSON(CheckResponse{Allowed: false})
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"error": err.Error()})
	}

	resp := CheckResponse{
		Allowed:         verdict.Allowed,
		RemainingTokens: verdict.RemainingTokens,
	}
	if !verdict.Allowed {
		resp.RetryAfterMillis = verdict.NanosToWaitForRefill / 1_000_000
	}
	if verdict.MatchedRule != nil {
		resp.MatchedRule = &MatchedRule{Id: verdict.MatchedRule.Id, Name: verdict.MatchedRule.Name}
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}

func formatValidationError(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		first := verrs[0]
		return first.Field() + " failed validation: " + first.Tag()
	}
	return err.Error()
}
