package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReturns(t *testing.T) {
	t.Parallel()

	got := Returns([]float64{100, 110, 99, 0, 5})
	require.Len(t, got, 4)
	assert.InDelta(t, 0.10, got[0], 1e-12)
	assert.InDelta(t, -0.10, got[1], 1e-12)
	assert.InDelta(t, -1.0, got[2], 1e-12)
	assert.Equal(t, 0.0, got[3])

	assert.Empty(t, Returns([]float64{1}))
}

func TestParseAction(t *testing.T) {
	t.Parallel()

	a, err := ParseAction(" buy ")
	require.NoError(t, err)
	assert.Equal(t, Buy, a)

	_, err = ParseAction("short")
	assert.Error(t, err)
}

func TestParseRiskStance(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want RiskStance
	}{
		{"", StanceUnspecified},
		{"aggressive", StanceAggressive},
		{"Neutral", StanceNeutral},
		{"CONSERVATIVE", StanceConservative},
	}
	for _, tt := range tests {
		got, err := ParseRiskStance(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseRiskStance("yolo")
	assert.Error(t, err)
}

func TestProfileForStance(t *testing.T) {
	t.Parallel()

	p, err := ProfileForStance(StanceNeutral)
	require.NoError(t, err)
	assert.Equal(t, Neutral, p)
	assert.True(t, p.Valid())

	_, err = ProfileForStance(StanceUnspecified)
	assert.Error(t, err)
	assert.False(t, RiskProfile("reckless").Valid())
}
