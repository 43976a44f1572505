package fluxgate

import "fmt"

// Scope selects the dimension a rule's buckets are partitioned along.
type Scope string

const (
	ScopeGlobal    Scope = "GLOBAL"
	ScopePerIP     Scope = "PER_IP"
	ScopePerUser   Scope = "PER_USER"
	ScopePerAPIKey Scope = "PER_API_KEY"
	ScopeCustom    Scope = "CUSTOM"
)

func (s Scope) valid() bool {
	switch s {
	case ScopeGlobal, ScopePerIP, ScopePerUser, ScopePerAPIKey, ScopeCustom:
		return true
	default:
		return false
	}
}

// OnLimitExceedPolicy decides what the filter does with a rejected verdict.
type OnLimitExceedPolicy string

const (
	PolicyRejectRequest OnLimitExceedPolicy = "REJECT_REQUEST"
	PolicyWaitForRefill OnLimitExceedPolicy = "WAIT_FOR_REFILL"
)

func (p OnLimitExceedPolicy) valid() bool {
	return p == PolicyRejectRequest || p == PolicyWaitForRefill
}

// Rule is a named set of bands plus a scope. Equality within a rule-set is
// by Id; Attributes are immutable after construction.
type Rule struct {
	Id                  string
	Name                string
	Enabled             bool
	Scope               Scope
	KeyStrategyId       string
	OnLimitExceedPolicy OnLimitExceedPolicy
	Bands               []Band
	RuleSetId           string
	Attributes          map[string]any
}

// RuleBuilder constructs a Rule, enforcing its invariants at Build time
// rather than on every field assignment, mirroring the teacher's
// validating-builder style (strategies/tokenbucket.NewConfig).
type RuleBuilder struct {
	rule    Rule
	enabled *bool
	bands   []Band
	err     error
}

// NewRule starts a RuleBuilder for the given id.
func NewRule(id string) *RuleBuilder {
	return &RuleBuilder{rule: Rule{
		Id:                  id,
		OnLimitExceedPolicy: PolicyRejectRequest,
		Attributes:          map[string]any{},
	}}
}

func (b *RuleBuilder) Name(name string) *RuleBuilder {
	b.rule.Name = name
	return b
}

func (b *RuleBuilder) Enabled(enabled bool) *RuleBuilder {
	b.enabled = &enabled
	return b
}

func (b *RuleBuilder) Scope(scope Scope) *RuleBuilder {
	b.rule.Scope = scope
	return b
}

func (b *RuleBuilder) KeyStrategyId(id string) *RuleBuilder {
	b.rule.KeyStrategyId = id
	return b
}

func (b *RuleBuilder) OnLimitExceed(policy OnLimitExceedPolicy) *RuleBuilder {
	b.rule.OnLimitExceedPolicy = policy
	return b
}

func (b *RuleBuilder) AddBand(window Band) *RuleBuilder {
	b.bands = append(b.bands, window)
	return b
}

func (b *RuleBuilder) RuleSetId(id string) *RuleBuilder {
	b.rule.RuleSetId = id
	return b
}

func (b *RuleBuilder) Attribute(key string, value any) *RuleBuilder {
	if b.rule.Attributes == nil {
		b.rule.Attributes = map[string]any{}
	}
	b.rule.Attributes[key] = value
	return b
}

// Build validates invariants and returns the constructed Rule.
func (b *RuleBuilder) Build() (Rule, error) {
	if b.err != nil {
		return Rule{}, b.err
	}
	r := b.rule
	if r.Id == "" {
		return Rule{}, NewOpError(ErrConfig, "rule.id", fmt.Errorf("id cannot be empty"))
	}
	if r.Name == "" {
		r.Name = r.Id
	}
	if b.enabled == nil {
		r.Enabled = true
	} else {
		r.Enabled = *b.enabled
	}
	if !r.Scope.valid() {
		return Rule{}, NewOpError(ErrConfig, "rule.scope", fmt.Errorf("invalid scope %q", r.Scope))
	}
	if r.Scope == ScopeCustom && r.KeyStrategyId == "" {
		return Rule{}, NewOpError(ErrConfig, "rule.keyStrategyId", fmt.Errorf("CUSTOM scope requires keyStrategyId"))
	}
	if !r.OnLimitExceedPolicy.valid() {
		return Rule{}, NewOpError(ErrConfig, "rule.onLimitExceedPolicy", fmt.Errorf("invalid policy %q", r.OnLimitExceedPolicy))
	}
	if len(b.bands) == 0 {
		return Rule{}, NewOpError(ErrConfig, "rule.bands", fmt.Errorf("at least one band is required"))
	}
	r.Bands = append([]Band(nil), b.bands...)
	return r, nil
}

// Equal compares rules by id, the only equality the spec requires within a
// rule-set.
func (r Rule) Equal(other Rule) bool {
	return r.Id == other.Id
}
