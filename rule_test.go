package fluxgate

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRuleBuilder(t *testing.T) {
	band, err := NewBand(time.Second, 5, "")
	require.NoError(t, err)

	t.Run("defaults name to id and enabled to true", func(t *testing.T) {
		rule, err := NewRule("r1").Scope(ScopeGlobal).AddBand(band).Build()
		require.NoError(t, err)
		require.Equal(t, "r1", rule.Name)
		require.True(t, rule.Enabled)
		require.Equal(t, PolicyRejectRequest, rule.OnLimitExceedPolicy)
	})

	t.Run("requires at least one band", func(t *testing.T) {
		_, err := NewRule("r1").Scope(ScopeGlobal).Build()
		require.Error(t, err)
		require.True(t, errors.Is(err, ErrConfig))
	})

	t.Run("rejects invalid scope", func(t *testing.T) {
		_, err := NewRule("r1").Scope("NOPE").AddBand(band).Build()
		require.Error(t, err)
		require.True(t, errors.Is(err, ErrConfig))
	})

	t.Run("CUSTOM scope requires a key strategy id", func(t *testing.T) {
		_, err := NewRule("r1").Scope(ScopeCustom).AddBand(band).Build()
		require.Error(t, err)

		rule, err := NewRule("r1").Scope(ScopeCustom).KeyStrategyId("tenant").AddBand(band).Build()
		require.NoError(t, err)
		require.Equal(t, "tenant", rule.KeyStrategyId)
	})

	t.Run("explicit enabled(false) is honored", func(t *testing.T) {
		rule, err := NewRule("r1").Scope(ScopeGlobal).Enabled(false).AddBand(band).Build()
		require.NoError(t, err)
		require.False(t, rule.Enabled)
	})

	t.Run("attributes accumulate", func(t *testing.T) {
		rule, err := NewRule("r1").Scope(ScopeGlobal).AddBand(band).
			Attribute("tier", "gold").
			Attribute("region", "us").
			Build()
		require.NoError(t, err)
		require.Equal(t, "gold", rule.Attributes["tier"])
		require.Equal(t, "us", rule.Attributes["region"])
	})
}

func TestRuleEqual(t *testing.T) {
	a := Rule{Id: "a"}
	b := Rule{Id: "a", Name: "different name"}
	c := Rule{Id: "c"}
	require.True(t, a.Equal(b))
	require.False(t, a.Equal(c))
}
