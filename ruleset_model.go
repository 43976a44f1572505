package fluxgate

import "fmt"

// RuleSet is the unit of lookup: a collection of rules identified by Id.
// Rules within a rule-set are evaluated independently; each selects its own
// bucket and enforces its own bands.
type RuleSet struct {
	Id              string
	Rules           []Rule
	KeyResolverName string // reference to a registered KeyResolver, "" = default
}

// Validate checks structural invariants of a rule-set as a whole. Individual
// rules are assumed already validated by RuleBuilder.Build.
func (rs RuleSet) Validate() error {
	if rs.Id == "" {
		return NewOpError(ErrConfig, "ruleset.id", fmt.Errorf("id cannot be empty"))
	}
	seen := make(map[string]struct{}, len(rs.Rules))
	for _, r := range rs.Rules {
		if _, dup := seen[r.Id]; dup {
			return NewOpError(ErrConfig, "ruleset.rules", fmt.Errorf("duplicate rule id %q", r.Id))
		}
		seen[r.Id] = struct{}{}
	}
	return nil
}

// FirstMatch returns the first enabled rule in declaration order, matching
// §4.4 step 1. Path/method matching beyond "enabled" is the caller's
// concern; this spec's engine does no additional routing.
func (rs RuleSet) FirstMatch() (Rule, bool) {
	for _, r := range rs.Rules {
		if r.Enabled {
			return r, true
		}
	}
	return Rule{}, false
}

// RequestContext is an immutable snapshot of the inbound request used to
// resolve scope keys. All optional fields may be absent (empty string).
type RequestContext struct {
	ClientIp   string
	UserId     string
	ApiKey     string
	Endpoint   string
	Method     string
	Attributes map[string]any
}

// Attr returns an attribute value and whether it was present.
func (c RequestContext) Attr(key string) (any, bool) {
	if c.Attributes == nil {
		return nil, false
	}
	v, ok := c.Attributes[key]
	return v, ok
}

// Verdict is the result of one engine check for one request.
type Verdict struct {
	Allowed             bool
	MatchedRule         *Rule
	Key                 string
	RemainingTokens     int64
	NanosToWaitForRefill int64
}

// unlimitedRemaining is reported when no rule matched, per §3.
const unlimitedRemaining = int64(1<<63 - 1)

// allowedWithoutRule builds the synthetic verdict for "no rule matched" or
// "missing rule-set, strategy ALLOW".
func allowedWithoutRule() Verdict {
	return Verdict{Allowed: true, RemainingTokens: unlimitedRemaining}
}
