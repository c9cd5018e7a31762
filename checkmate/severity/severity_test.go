package severity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"critical":  "critical",
		"high":      "high_risk",
		"medium":    "danger",
		"low":       "high_risk",
		"danger":    "danger",
		"high_risk": "high_risk",
		"bogus":     "high_risk",
		"":          "high_risk",
	}
	for in, want := range cases {
		assert.Equal(t, want, Normalize(in), "Normalize(%q)", in)
	}
}

func TestRankOrdering(t *testing.T) {
	assert.Less(t, Rank(Critical), Rank(High))
	assert.Less(t, Rank(High), Rank(Medium))
	assert.Less(t, Rank(Medium), Rank(Low))
	assert.Greater(t, Rank("unknown"), Rank(Low))
}

func TestSummarize(t *testing.T) {
	sum := Summarize([]string{"critical", "high", "medium", "low", "critical"})
	assert.Equal(t, 2, sum.Critical)
	assert.Equal(t, 1, sum.Danger)
	assert.Equal(t, 2, sum.HighRisk)

	assert.Equal(t, Summary{}, Summarize(nil))
}
