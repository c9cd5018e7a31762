package metrics

import (
	"context"
	"testing"

	"github.com/CheckMateScan/go-api/checkmate"
	"github.com/CheckMateScan/go-api/checkmate/feedback"
	"github.com/CheckMateScan/go-api/checkmate/postgres"
	"github.com/CheckMateScan/go-api/checkmate/postgres/models"
	"github.com/CheckMateScan/go-api/checkmate/scan"
	"github.com/CheckMateScan/go-api/checkmate/store"
	"github.com/CheckMateScan/go-api/checkmate/whitelist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testBaseline = 60.0

type fixture struct {
	db          *gorm.DB
	kv          store.KVStore
	registry    *scan.Registry
	coordinator *feedback.Coordinator
	calculator  *Calculator
	manager     *Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := postgres.Open("sqlite", ":memory:")
	require.NoError(t, err)

	kv := store.NewMemoryStore()
	registry := scan.NewRegistry(db, kv)
	calculator := NewCalculator(db, testBaseline)
	return &fixture{
		db:          db,
		kv:          kv,
		registry:    registry,
		coordinator: feedback.NewCoordinator(db, registry, feedback.NewLedger(db), whitelist.NewStore(db), nil, ""),
		calculator:  calculator,
		manager:     NewManager(kv, calculator),
	}
}

func (f *fixture) createScan(t *testing.T, flags ...scan.FlagInput) *models.Scan {
	t.Helper()
	created, err := f.registry.CreateScan(context.Background(), scan.CreateScanInput{
		Code:     "sample = True",
		Language: "python",
		Flags:    flags,
	})
	require.NoError(t, err)
	return created
}

func (f *fixture) submit(t *testing.T, scanID, flagID, verdict string) {
	t.Helper()
	_, err := f.coordinator.Submit(context.Background(), feedback.SubmitInput{
		ScanID: scanID, FlagID: flagID, Verdict: verdict,
	})
	require.NoError(t, err)
}

func TestCalculateEmptyLedger(t *testing.T) {
	f := newFixture(t)

	report, err := f.calculator.Calculate(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.OverallPrecision)
	assert.Equal(t, testBaseline, report.OverallPrecisionBefore)
	assert.Equal(t, testBaseline, report.OverallPrecisionAfter)
	assert.Zero(t, report.Improvement)
	assert.Zero(t, report.TotalFeedback)
	assert.NotNil(t, report.Rules)
	assert.Empty(t, report.Rules)
	assert.Empty(t, report.PrecisionHistory)
}

func TestCalculateMixedVerdicts(t *testing.T) {
	f := newFixture(t)
	created := f.createScan(t,
		scan.FlagInput{RuleID: "SEC001", Severity: "critical", MatchedText: "a"},
		scan.FlagInput{RuleID: "SEC001", Severity: "critical", MatchedText: "b"},
		scan.FlagInput{RuleID: "SQL001", Severity: "critical", MatchedText: "c"},
		scan.FlagInput{RuleID: "FUNC001", Severity: "high", MatchedText: "d"},
	)

	f.submit(t, created.ScanID, created.Flags[0].FlagID, checkmate.VerdictValid)
	f.submit(t, created.ScanID, created.Flags[1].FlagID, checkmate.VerdictFalsePositive)
	f.submit(t, created.ScanID, created.Flags[2].FlagID, checkmate.VerdictValid)

	report, err := f.calculator.Calculate(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Rules, 2, "unreviewed rules stay out of the report")
	byRule := map[string]RuleMetrics{}
	for _, r := range report.Rules {
		byRule[r.RuleID] = r
	}
	assert.Equal(t, 50.0, byRule["SEC001"].Precision)
	assert.Equal(t, 2, byRule["SEC001"].RaisedCount)
	assert.Equal(t, 100.0, byRule["SQL001"].Precision)

	assert.Equal(t, 66.7, report.OverallPrecision)
	assert.Equal(t, 66.7, report.OverallPrecisionAfter)
	assert.Equal(t, 6.7, report.Improvement)
	assert.Equal(t, 3, report.TotalFeedback)
	assert.Equal(t, 3, report.TotalFlags)
	assert.Equal(t, 4, report.RaisedFlags)
	assert.Equal(t, 2, report.ValidCount)
	assert.Equal(t, 1, report.FalsePositiveCount)
	assert.Equal(t, 1, report.TotalScans)
	assert.Equal(t, 1, report.WhitelistCount)
	require.Len(t, report.PrecisionHistory, 3)
	assert.Equal(t, 66.7, report.PrecisionHistory[2].Precision)
}

func TestCalculateIgnoresSupersededRows(t *testing.T) {
	f := newFixture(t)
	created := f.createScan(t,
		scan.FlagInput{RuleID: "SEC001", Severity: "critical", MatchedText: "a"},
	)

	f.submit(t, created.ScanID, created.Flags[0].FlagID, checkmate.VerdictFalsePositive)
	f.submit(t, created.ScanID, created.Flags[0].FlagID, checkmate.VerdictValid)

	report, err := f.calculator.Calculate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.TotalFeedback)
	assert.Equal(t, 100.0, report.OverallPrecision)
	require.Len(t, report.Rules, 1)
	assert.Equal(t, 0, report.Rules[0].FalsePositiveCount)
}

func TestManagerCachesReport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := f.createScan(t,
		scan.FlagInput{RuleID: "SEC001", Severity: "critical", MatchedText: "a"},
		scan.FlagInput{RuleID: "SEC001", Severity: "critical", MatchedText: "b"},
	)

	f.submit(t, created.ScanID, created.Flags[0].FlagID, checkmate.VerdictValid)
	refreshed, err := f.manager.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100.0, refreshed.OverallPrecision)

	// Mutate underneath the cache; Latest must serve the cached report.
	f.submit(t, created.ScanID, created.Flags[1].FlagID, checkmate.VerdictFalsePositive)

	cached, err := f.manager.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100.0, cached.OverallPrecision)
	assert.Equal(t, 1, cached.TotalFeedback)

	fresh, err := f.manager.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 50.0, fresh.OverallPrecision)
}

func TestManagerLatestRecomputesOnEmptyCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	report, err := f.manager.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, testBaseline, report.OverallPrecisionAfter)

	raw, err := f.kv.GetValue(ctx, store.MetricsReportKey)
	require.NoError(t, err)
	assert.NotEmpty(t, raw)
}
