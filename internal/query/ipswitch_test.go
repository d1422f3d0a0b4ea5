package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestAnalyzeIPSwitchesSpecScenario mirrors spec.md §8 testable property 9:
// given [(t=0,v4=A),(t=10,v6=B),(t=200,v4=C),(t=210,v4=D)], exactly one
// dual-stack switch (A->B), one rapid switch (C->D), two real switches,
// and neither IP_RAPID_SWITCH nor IP_HOPPING fires.
func TestAnalyzeIPSwitchesSpecScenario(t *testing.T) {
	events := []IPEvent{
		{CreatedAt: 0, IP: "1.1.1.1"},
		{CreatedAt: 10, IP: "2001:db8::1"},
		{CreatedAt: 200, IP: "3.3.3.3"},
		{CreatedAt: 210, IP: "4.4.4.4"},
	}

	analysis := AnalyzeIPSwitches(events)

	assert.Len(t, analysis.Switches, 3)

	dualStackCount := 0
	for _, sw := range analysis.Switches {
		if sw.IsDualStack {
			dualStackCount++
		}
	}
	assert.Equal(t, 1, dualStackCount, "expected exactly one dual-stack switch")
	assert.Equal(t, 1, analysis.RapidSwitchCount)
	assert.Equal(t, 2, analysis.RealSwitchCount)
	assert.NotContains(t, analysis.Flags, "IP_RAPID_SWITCH")
	assert.NotContains(t, analysis.Flags, "IP_HOPPING")
}

func TestIPVersion(t *testing.T) {
	assert.Equal(t, "v4", ipVersion("10.0.0.1"))
	assert.Equal(t, "v6", ipVersion("2001:db8::1"))
}

func TestAnalyzeIPSwitchesEmpty(t *testing.T) {
	analysis := AnalyzeIPSwitches(nil)
	assert.Empty(t, analysis.Switches)
	assert.Equal(t, 0, analysis.RapidSwitchCount)
	assert.Equal(t, 0, analysis.RealSwitchCount)
	assert.Equal(t, float64(0), analysis.AvgIPDuration)
}

func TestAnalyzeIPSwitchesNoSwitches(t *testing.T) {
	events := []IPEvent{
		{CreatedAt: 0, IP: "1.1.1.1"},
		{CreatedAt: 10, IP: "1.1.1.1"},
		{CreatedAt: 20, IP: "1.1.1.1"},
	}
	analysis := AnalyzeIPSwitches(events)
	assert.Empty(t, analysis.Switches)
	assert.Equal(t, 0, analysis.RealSwitchCount)
	assert.Equal(t, float64(20), analysis.AvgIPDuration)
}

func TestAnalyzeIPSwitchesRapidFlagTrips(t *testing.T) {
	// Three non-dual-stack switches within 60s of each other and an
	// average IP duration under 300s should raise IP_RAPID_SWITCH.
	events := []IPEvent{
		{CreatedAt: 0, IP: "1.1.1.1"},
		{CreatedAt: 10, IP: "2.2.2.2"},
		{CreatedAt: 20, IP: "3.3.3.3"},
		{CreatedAt: 30, IP: "4.4.4.4"},
	}
	analysis := AnalyzeIPSwitches(events)
	assert.Equal(t, 3, analysis.RapidSwitchCount)
	assert.Equal(t, 3, analysis.RealSwitchCount)
	assert.Contains(t, analysis.Flags, "IP_RAPID_SWITCH")
}

func TestAnalyzeIPSwitchesTruncatesToLastTen(t *testing.T) {
	events := make([]IPEvent, 0, 13)
	for i := 0; i < 13; i++ {
		events = append(events, IPEvent{CreatedAt: int64(i * 100), IP: ipFor(i)})
	}
	analysis := AnalyzeIPSwitches(events)
	assert.Len(t, analysis.Switches, 10)
}

func ipFor(i int) string {
	return "10.0.0." + string(rune('0'+i%10))
}
