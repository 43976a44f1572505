package fluxgate

import "context"

// RuleSetProvider loads rule-sets from the control store (§4.5). The
// backing store — document database, YAML file, etc. — is an external
// collaborator; this interface is the only surface the core depends on.
type RuleSetProvider interface {
	FindById(ctx context.Context, ruleSetId string) (*RuleSet, bool, error)
}

// RuleSetProviderFunc adapts a plain function to a RuleSetProvider.
type RuleSetProviderFunc func(ctx context.Context, ruleSetId string) (*RuleSet, bool, error)

func (f RuleSetProviderFunc) FindById(ctx context.Context, ruleSetId string) (*RuleSet, bool, error) {
	return f(ctx, ruleSetId)
}

// StaticProvider serves rule-sets from an in-memory map, useful for tests
// and for embedded deployments whose rules never change at runtime.
type StaticProvider map[string]RuleSet

func (p StaticProvider) FindById(_ context.Context, ruleSetId string) (*RuleSet, bool, error) {
	rs, ok := p[ruleSetId]
	if !ok {
		return nil, false, nil
	}
	return &rs, true, nil
}
