package query

import "strings"

// IPEvent is one (created_at, ip) observation in time order.
type IPEvent struct {
	CreatedAt int64
	IP        string
}

// IPSwitchDetail describes a single transition between IPs.
type IPSwitchDetail struct {
	Time        int64  `json:"time"`
	FromIP      string `json:"from_ip"`
	ToIP        string `json:"to_ip"`
	Interval    int64  `json:"interval"`
	IsDualStack bool   `json:"is_dual_stack"`
	FromVersion string `json:"from_version"`
	ToVersion   string `json:"to_version"`
}

// IPSwitchAnalysis is the full output of spec.md §4.3.9.
type IPSwitchAnalysis struct {
	Switches          []IPSwitchDetail `json:"switches"`
	RapidSwitchCount  int              `json:"rapid_switch_count"`
	RealSwitchCount   int              `json:"real_switch_count"`
	AvgIPDuration     float64          `json:"avg_ip_duration"`
	MinSwitchInterval int64            `json:"min_switch_interval"`
	Flags             []string         `json:"flags"`
}

func ipVersion(ip string) string {
	if strings.Contains(ip, ":") {
		return "v6"
	}
	return "v4"
}

const dualStackWindowSeconds = int64(60)
const rapidSwitchWindowSeconds = int64(60)

// AnalyzeIPSwitches walks a time-ordered sequence of IP observations and
// derives switch statistics and risk flags.
func AnalyzeIPSwitches(events []IPEvent) IPSwitchAnalysis {
	var switches []IPSwitchDetail
	var durations []float64
	var intervalsExcludingDualStack []int64
	rapidCount := 0
	realCount := 0

	if len(events) > 0 {
		ipStart := events[0].CreatedAt
		for i := 1; i < len(events); i++ {
			prev, cur := events[i-1], events[i]
			if cur.IP == prev.IP {
				continue
			}

			interval := cur.CreatedAt - prev.CreatedAt
			dualStack := interval <= dualStackWindowSeconds && ipVersion(prev.IP) != ipVersion(cur.IP)

			switches = append(switches, IPSwitchDetail{
				Time:        cur.CreatedAt,
				FromIP:      prev.IP,
				ToIP:        cur.IP,
				Interval:    interval,
				IsDualStack: dualStack,
				FromVersion: ipVersion(prev.IP),
				ToVersion:   ipVersion(cur.IP),
			})

			durations = append(durations, float64(prev.CreatedAt-ipStart))
			ipStart = cur.CreatedAt

			if !dualStack {
				realCount++
				intervalsExcludingDualStack = append(intervalsExcludingDualStack, interval)
				if interval <= rapidSwitchWindowSeconds {
					rapidCount++
				}
			}
		}
		durations = append(durations, float64(events[len(events)-1].CreatedAt-ipStart))
	}

	analysis := IPSwitchAnalysis{
		RapidSwitchCount: rapidCount,
		RealSwitchCount:  realCount,
		AvgIPDuration:    mean(durations),
	}

	if len(intervalsExcludingDualStack) > 0 {
		analysis.MinSwitchInterval = minInt64(intervalsExcludingDualStack)
	}

	if len(switches) > 10 {
		switches = switches[len(switches)-10:]
	}
	analysis.Switches = switches

	var flags []string
	if rapidCount >= 3 && analysis.AvgIPDuration < 300 {
		flags = append(flags, "IP_RAPID_SWITCH")
	}
	if analysis.AvgIPDuration < 30 && realCount >= 3 {
		flags = append(flags, "IP_HOPPING")
	}
	analysis.Flags = flags

	return analysis
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func minInt64(vals []int64) int64 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
