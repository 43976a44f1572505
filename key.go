package fluxgate

import (
	"fmt"
	"strconv"
	"strings"
)

// KeyResolver maps a (rule, request context) pair to a stable bucket scope
// value, per §4.1.
type KeyResolver interface {
	Resolve(rule Rule, ctx RequestContext) (string, error)
}

// defaultKeyResolver implements the scope table in §4.1.
type defaultKeyResolver struct{}

// DefaultKeyResolver is the built-in resolver used when a rule-set names no
// custom KeyResolver.
var DefaultKeyResolver KeyResolver = defaultKeyResolver{}

func (defaultKeyResolver) Resolve(rule Rule, ctx RequestContext) (string, error) {
	switch rule.Scope {
	case ScopeGlobal:
		return "global", nil
	case ScopePerIP:
		if ctx.ClientIp == "" {
			return "unknown", nil
		}
		return ctx.ClientIp, nil
	case ScopePerUser:
		if ctx.UserId != "" {
			return ctx.UserId, nil
		}
		if ctx.ClientIp != "" {
			return ctx.ClientIp, nil
		}
		return "unknown", nil
	case ScopePerAPIKey:
		if ctx.ApiKey != "" {
			return ctx.ApiKey, nil
		}
		if ctx.ClientIp != "" {
			return ctx.ClientIp, nil
		}
		return "unknown", nil
	case ScopeCustom:
		if rule.KeyStrategyId == "" {
			return "", NewOpError(ErrConfig, "key.custom", fmt.Errorf("rule %q uses CUSTOM scope with empty keyStrategyId", rule.Id))
		}
		v, ok := ctx.Attr(rule.KeyStrategyId)
		if !ok || v == nil {
			return "unknown", nil
		}
		return stringifyAttr(v), nil
	default:
		return "", NewOpError(ErrConfig, "key.scope", fmt.Errorf("unsupported scope %q", rule.Scope))
	}
}

func stringifyAttr(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	default:
		return fmt.Sprintf("%v", s)
	}
}

// BucketKey builds the deterministic key described in §3:
// fluxgate:{ruleSetId}:{ruleId}:{scopeValue}. Every band of a rule shares
// this one key (distinguished within the store by band label), so a
// cluster-mode store can address a whole multi-band consume with a single
// key (§4.3). Keys are opaque to callers and stable across processes for
// identical inputs.
func BucketKey(ruleSetId, ruleId, scopeValue string) string {
	var sb strings.Builder
	sb.Grow(len("fluxgate:") + len(ruleSetId) + len(ruleId) + len(scopeValue) + 3)
	sb.WriteString("fluxgate:")
	sb.WriteString(ruleSetId)
	sb.WriteByte(':')
	sb.WriteString(ruleId)
	sb.WriteByte(':')
	sb.WriteString(scopeValue)
	return sb.String()
}
