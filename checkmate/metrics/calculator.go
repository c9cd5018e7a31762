// Package metrics aggregates feedback verdicts into precision reports and
// caches the latest report in the KV store.
package metrics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/CheckMateScan/go-api/checkmate"
	"github.com/CheckMateScan/go-api/checkmate/postgres/models"
	"gorm.io/gorm"
)

// RuleMetrics is the per-rule precision breakdown. Only rules with at least
// one active verdict appear in a report.
type RuleMetrics struct {
	RuleID             string  `json:"rule_id"`
	ValidCount         int     `json:"valid_count"`
	FalsePositiveCount int     `json:"false_positive_count"`
	Total              int     `json:"total"`
	RaisedCount        int     `json:"raised_count"`
	Precision          float64 `json:"precision"`
}

// HistoryPoint is one precision measurement over time.
type HistoryPoint struct {
	Timestamp          time.Time `json:"timestamp"`
	Precision          float64   `json:"precision"`
	TotalFeedback      int       `json:"total_feedback"`
	ValidCount         int       `json:"valid_count"`
	FalsePositiveCount int       `json:"false_positive_count"`
}

// Report is the full precision report served by the metrics endpoint.
// OverallPrecisionBefore/After mirror the baseline and current values for
// dashboard clients that render an improvement delta.
type Report struct {
	OverallPrecision       float64        `json:"overall_precision"`
	OverallPrecisionBefore float64        `json:"overall_precision_before"`
	OverallPrecisionAfter  float64        `json:"overall_precision_after"`
	CurrentPrecision       float64        `json:"current_precision"`
	BaselinePrecision      float64        `json:"baseline_precision"`
	Improvement            float64        `json:"improvement"`
	TotalScans             int            `json:"total_scans"`
	TotalFlags             int            `json:"total_flags"`
	RaisedFlags            int            `json:"raised_flags"`
	TotalFeedback          int            `json:"total_feedback"`
	ValidCount             int            `json:"valid_count"`
	FalsePositiveCount     int            `json:"false_positive_count"`
	WhitelistCount         int            `json:"whitelist_count"`
	Rules                  []RuleMetrics  `json:"rules"`
	PrecisionHistory       []HistoryPoint `json:"precision_history"`
	GeneratedAt            time.Time      `json:"generated_at"`
}

// Calculator computes reports with SQL aggregation so the full ledger never
// has to be loaded into memory.
type Calculator struct {
	db       *gorm.DB
	baseline float64
}

// NewCalculator creates a Calculator. baseline is the pre-feedback precision
// used for the improvement delta.
func NewCalculator(db *gorm.DB, baseline float64) *Calculator {
	return &Calculator{db: db, baseline: baseline}
}

// round1 rounds a percentage to one decimal place.
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// Calculate builds a fresh report from the active feedback rows. An empty
// ledger yields a zero-valued report with an empty rules list.
func (c *Calculator) Calculate(ctx context.Context) (*Report, error) {
	if c.db == nil {
		return nil, fmt.Errorf("database connection not available: %w", checkmate.ErrStorage)
	}

	type ruleRow struct {
		RuleID  string
		Valid   int
		FalsePo int
	}
	var ruleRows []ruleRow
	err := c.db.WithContext(ctx).Model(&models.FeedbackEntry{}).
		Select("rule_id, SUM(CASE WHEN verdict = ? THEN 1 ELSE 0 END) as valid, SUM(CASE WHEN verdict = ? THEN 1 ELSE 0 END) as false_po",
			checkmate.VerdictValid, checkmate.VerdictFalsePositive).
		Where("superseded = ?", false).
		Group("rule_id").
		Scan(&ruleRows).Error
	if err != nil {
		return nil, fmt.Errorf("aggregate feedback by rule: %w", err)
	}

	type raisedRow struct {
		RuleID string
		Raised int
	}
	var raisedRows []raisedRow
	err = c.db.WithContext(ctx).Model(&models.Flag{}).
		Select("rule_id, COUNT(*) as raised").
		Group("rule_id").
		Scan(&raisedRows).Error
	if err != nil {
		return nil, fmt.Errorf("count raised flags by rule: %w", err)
	}
	raisedByRule := make(map[string]int, len(raisedRows))
	totalRaised := 0
	for _, r := range raisedRows {
		raisedByRule[r.RuleID] = r.Raised
		totalRaised += r.Raised
	}

	report := &Report{
		BaselinePrecision: c.baseline,
		Rules:             make([]RuleMetrics, 0, len(ruleRows)),
		RaisedFlags:       totalRaised,
		GeneratedAt:       time.Now().UTC(),
	}

	for _, r := range ruleRows {
		total := r.Valid + r.FalsePo
		if total == 0 {
			continue
		}
		report.Rules = append(report.Rules, RuleMetrics{
			RuleID:             r.RuleID,
			ValidCount:         r.Valid,
			FalsePositiveCount: r.FalsePo,
			Total:              total,
			RaisedCount:        raisedByRule[r.RuleID],
			Precision:          round1(float64(r.Valid) / float64(total) * 100),
		})
		report.ValidCount += r.Valid
		report.FalsePositiveCount += r.FalsePo
	}
	sort.Slice(report.Rules, func(i, j int) bool {
		return report.Rules[i].RuleID < report.Rules[j].RuleID
	})

	report.TotalFeedback = report.ValidCount + report.FalsePositiveCount
	report.TotalFlags = report.TotalFeedback
	if report.TotalFeedback > 0 {
		report.OverallPrecision = round1(float64(report.ValidCount) / float64(report.TotalFeedback) * 100)
	}
	report.OverallPrecisionBefore = c.baseline
	report.OverallPrecisionAfter = report.OverallPrecision
	report.Improvement = round1(report.OverallPrecision - c.baseline)
	if report.TotalFeedback == 0 {
		report.OverallPrecisionAfter = c.baseline
		report.Improvement = 0
	}
	report.CurrentPrecision = report.OverallPrecisionAfter

	var scanCount int64
	if err := c.db.WithContext(ctx).Model(&models.Scan{}).Count(&scanCount).Error; err != nil {
		return nil, fmt.Errorf("count scans: %w", err)
	}
	report.TotalScans = int(scanCount)

	var whitelistCount int64
	if err := c.db.WithContext(ctx).Model(&models.WhitelistEntry{}).Count(&whitelistCount).Error; err != nil {
		return nil, fmt.Errorf("count whitelist entries: %w", err)
	}
	report.WhitelistCount = int(whitelistCount)

	var points []models.PrecisionHistoryPoint
	if err := c.db.WithContext(ctx).Order("id ASC").Find(&points).Error; err != nil {
		return nil, fmt.Errorf("query precision history: %w", err)
	}
	report.PrecisionHistory = make([]HistoryPoint, len(points))
	for i, p := range points {
		report.PrecisionHistory[i] = HistoryPoint{
			Timestamp:          p.Timestamp,
			Precision:          p.Precision,
			TotalFeedback:      p.TotalFeedback,
			ValidCount:         p.ValidCount,
			FalsePositiveCount: p.FalsePositiveCount,
		}
	}

	return report, nil
}
