// File: feedback.go
package models

import (
	"time"
)

// FeedbackEntry is one human verdict on a flag. The ledger is append-only:
// a later verdict for the same (scan_id, flag_id) marks the earlier row
// superseded instead of overwriting it, so the full audit trail survives.
// At most one non-superseded row exists per (scan_id, flag_id).
type FeedbackEntry struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	FeedbackID  string    `gorm:"uniqueIndex;not null;size:64" json:"feedback_id"`
	ScanID      string    `gorm:"not null;size:64;index:idx_feedback_key,priority:1" json:"scan_id"`
	FlagID      string    `gorm:"not null;size:64;index:idx_feedback_key,priority:2" json:"flag_id"`
	RuleID      string    `gorm:"not null;size:64;index:idx_feedback_rule" json:"rule_id"`
	MatchedText string    `gorm:"type:text" json:"matched_text"`
	Verdict     string    `gorm:"not null;size:20" json:"verdict"`
	Superseded  bool      `gorm:"not null;default:false;index:idx_feedback_active" json:"superseded"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
}

// TableName specifies the table name for the FeedbackEntry model
func (FeedbackEntry) TableName() string {
	return "feedback"
}

// WhitelistEntry is a (rule_id, matched_text) pair that the scanner must
// suppress in future scans. Created only from false_positive verdicts; the
// composite unique index makes Add idempotent.
type WhitelistEntry struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	RuleID      string    `gorm:"not null;size:64;uniqueIndex:idx_whitelist_pair,priority:1" json:"rule_id"`
	MatchedText string    `gorm:"not null;size:1024;uniqueIndex:idx_whitelist_pair,priority:2" json:"matched_text"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
}

// TableName specifies the table name for the WhitelistEntry model
func (WhitelistEntry) TableName() string {
	return "whitelist"
}

// PrecisionHistoryPoint is a snapshot of cumulative precision, appended in
// the same transaction as each feedback entry so the series is ordered and
// monotonic in TotalFeedback.
type PrecisionHistoryPoint struct {
	ID                 uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	Timestamp          time.Time `gorm:"not null;index:idx_history_ts" json:"timestamp"`
	Precision          float64   `gorm:"not null" json:"precision"`
	TotalFeedback      int       `gorm:"not null" json:"total_feedback"`
	ValidCount         int       `gorm:"not null" json:"valid_count"`
	FalsePositiveCount int       `gorm:"not null" json:"false_positive_count"`
}

// TableName specifies the table name for the PrecisionHistoryPoint model
func (PrecisionHistoryPoint) TableName() string {
	return "precision_history"
}
