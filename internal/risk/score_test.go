package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScoreLocalWhitelistSkips(t *testing.T) {
	f := &Features{UserID: 1, Whitelisted: true, RequestsPerMinute: 1000}
	verdict := ScoreLocal(f, DefaultThresholds)
	assert.True(t, verdict.Skip)
	assert.Equal(t, "whitelisted", verdict.Reason)
	assert.False(t, verdict.Flagged)
}

func TestScoreLocalBelowThresholdNotFlagged(t *testing.T) {
	f := &Features{UserID: 2, RequestsPerMinute: 1, UniqueIPs: 1, FailureRate: 0.01, EmptyRate: 0}
	verdict := ScoreLocal(f, DefaultThresholds)
	assert.False(t, verdict.Flagged)
	assert.Equal(t, float64(0), verdict.Score)
}

func TestScoreLocalAccumulatesWeights(t *testing.T) {
	f := &Features{
		UserID:            3,
		RequestsPerMinute: 100,
		UniqueIPs:         50,
		FailureRate:       0.9,
		EmptyRate:         0.9,
		IPSwitchFlags:     []string{"IP_HOPPING"},
	}
	verdict := ScoreLocal(f, DefaultThresholds)
	expected := DefaultThresholds.WeightRPM + DefaultThresholds.WeightIPs +
		DefaultThresholds.WeightFailure + DefaultThresholds.WeightEmpty + DefaultThresholds.WeightIPSwitch
	assert.InDelta(t, expected, verdict.Score, 1e-9)
	assert.True(t, verdict.Flagged)
	assert.NotEmpty(t, verdict.Reason)
}

func TestScoreLocalExactlyAtThresholdFlags(t *testing.T) {
	f := &Features{UserID: 4, FailureRate: 0.9}
	th := DefaultThresholds
	th.WeightFailure = th.BanScoreThreshold
	verdict := ScoreLocal(f, th)
	assert.True(t, verdict.Flagged)
}

func TestJoinReasons(t *testing.T) {
	assert.Equal(t, "", joinReasons(nil))
	assert.Equal(t, "a", joinReasons([]string{"a"}))
	assert.Equal(t, "a; b", joinReasons([]string{"a", "b"}))
}
