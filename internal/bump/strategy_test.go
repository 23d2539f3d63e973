package bump

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStrategy_Next(t *testing.T) {
	tests := []struct {
		strategy Strategy
		current  string
		want     string
	}{
		{StrategyMinor, "1.2.3", "1.3.0"},
		{StrategyMinor, "0.1.0", "0.2.0"},
		{StrategyMinorKeepPatch, "1.2.3", "1.3.3"},
		{StrategyPatch, "1.2.3", "1.2.4"},
		{StrategyMajor, "1.2.3", "2.0.0"},
		{StrategyMinor, "1.2.3-rc.1", "1.3.0"},
		{StrategyPatch, "1.2.3-rc.1", "1.2.4"},
	}

	for _, tt := range tests {
		t.Run(string(tt.strategy)+"/"+tt.current, func(t *testing.T) {
			got, err := tt.strategy.Next(tt.current)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStrategy_Next_InvalidVersion(t *testing.T) {
	_, err := StrategyMinor.Next("not-a-version")
	assert.Error(t, err)

	_, err = StrategyMinor.Next("1.2")
	assert.Error(t, err)
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("")
	require.NoError(t, err)
	assert.Equal(t, StrategyMinor, s)

	s, err = ParseStrategy("Minor-Keep-Patch")
	require.NoError(t, err)
	assert.Equal(t, StrategyMinorKeepPatch, s)

	_, err = ParseStrategy("sideways")
	assert.ErrorContains(t, err, "unknown bump strategy")
}

func TestRequirement(t *testing.T) {
	assert.Equal(t, "^1.3.0", Requirement("1.3.0"))
}
