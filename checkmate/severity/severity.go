// Package severity defines the ordered severity scale for flags and the
// normalization table that reconciles the enums used by the different
// CheckMate clients.
package severity

// Canonical severity values, ordered from most to least severe. The
// detection rule catalog uses this scale.
const (
	Critical = "critical"
	High     = "high"
	Medium   = "medium"
	Low      = "low"
)

// Dashboard severity values. The dashboard client renders a three-level
// scale with different names; Normalize maps onto it.
const (
	DashboardCritical = "critical"
	DashboardDanger   = "danger"
	DashboardHighRisk = "high_risk"
)

// rank orders canonical severities for sorting (lower is more severe).
var rank = map[string]int{
	Critical: 0,
	High:     1,
	Medium:   2,
	Low:      3,
}

// dashboardMap is the explicit mapping from any severity a scanner may
// emit onto the dashboard's three-level scale. Unknown values map to
// high_risk, matching the dashboard client's fallback.
var dashboardMap = map[string]string{
	Critical:          DashboardCritical,
	DashboardDanger:   DashboardDanger,
	DashboardHighRisk: DashboardHighRisk,
	High:              DashboardHighRisk,
	Medium:            DashboardDanger,
	Low:               DashboardHighRisk,
}

// IsValid reports whether s is one of the canonical severities.
func IsValid(s string) bool {
	_, ok := rank[s]
	return ok
}

// Rank returns the sort rank of a canonical severity; unknown severities
// sort last.
func Rank(s string) int {
	if r, ok := rank[s]; ok {
		return r
	}
	return len(rank)
}

// Normalize maps a severity value onto the dashboard scale.
func Normalize(s string) string {
	if mapped, ok := dashboardMap[s]; ok {
		return mapped
	}
	return DashboardHighRisk
}

// Summary holds flag counts per dashboard severity level.
type Summary struct {
	Critical int `json:"critical"`
	Danger   int `json:"danger"`
	HighRisk int `json:"high_risk"`
}

// Summarize counts severities, normalized onto the dashboard scale.
func Summarize(severities []string) Summary {
	var sum Summary
	for _, s := range severities {
		switch Normalize(s) {
		case DashboardCritical:
			sum.Critical++
		case DashboardDanger:
			sum.Danger++
		case DashboardHighRisk:
			sum.HighRisk++
		}
	}
	return sum
}
