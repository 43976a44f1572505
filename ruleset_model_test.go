package fluxgate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRuleSetValidate(t *testing.T) {
	t.Run("rejects empty id", func(t *testing.T) {
		err := RuleSet{}.Validate()
		require.Error(t, err)
		require.True(t, errors.Is(err, ErrConfig))
	})

	t.Run("rejects duplicate rule ids", func(t *testing.T) {
		rs := RuleSet{Id: "rs1", Rules: []Rule{{Id: "r1"}, {Id: "r1"}}}
		err := rs.Validate()
		require.Error(t, err)
		require.True(t, errors.Is(err, ErrConfig))
	})

	t.Run("accepts a well-formed rule-set", func(t *testing.T) {
		rs := RuleSet{Id: "rs1", Rules: []Rule{{Id: "r1"}, {Id: "r2"}}}
		require.NoError(t, rs.Validate())
	})
}

func TestRuleSetFirstMatch(t *testing.T) {
	t.Run("returns the first enabled rule", func(t *testing.T) {
		rs := RuleSet{Rules: []Rule{
			{Id: "r1", Enabled: false},
			{Id: "r2", Enabled: true},
			{Id: "r3", Enabled: true},
		}}
		rule, ok := rs.FirstMatch()
		require.True(t, ok)
		require.Equal(t, "r2", rule.Id)
	})

	t.Run("returns false when nothing is enabled", func(t *testing.T) {
		rs := RuleSet{Rules: []Rule{{Id: "r1", Enabled: false}}}
		_, ok := rs.FirstMatch()
		require.False(t, ok)
	})
}

func TestRequestContextAttr(t *testing.T) {
	ctx := RequestContext{Attributes: map[string]any{"k": "v"}}
	v, ok := ctx.Attr("k")
	require.True(t, ok)
	require.Equal(t, "v", v)

	_, ok = ctx.Attr("missing")
	require.False(t, ok)

	var empty RequestContext
	_, ok = empty.Attr("k")
	require.False(t, ok)
}

func TestAllowedWithoutRule(t *testing.T) {
	v := allowedWithoutRule()
	require.True(t, v.Allowed)
	require.Equal(t, unlimitedRemaining, v.RemainingTokens)
}
