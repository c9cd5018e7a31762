// Package feedback implements the append-only verdict ledger and the
// coordinator that ties ledger writes to whitelist updates.
package feedback

import (
	"context"
	"fmt"

	"github.com/CheckMateScan/go-api/checkmate"
	"github.com/CheckMateScan/go-api/checkmate/postgres/models"
	"gorm.io/gorm"
)

// Ledger provides read access to feedback entries and the in-transaction
// supersede/insert step used by the Coordinator. The ledger never deletes:
// a newer verdict marks the older row superseded and aggregation only ever
// counts non-superseded rows.
type Ledger struct {
	db *gorm.DB
}

// NewLedger creates a Ledger over the given database handle.
func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// record supersedes any active entry for (scan_id, flag_id) and inserts the
// new one. Must run inside the coordinator's transaction.
func (l *Ledger) record(ctx context.Context, tx *gorm.DB, entry *models.FeedbackEntry) error {
	err := tx.WithContext(ctx).Model(&models.FeedbackEntry{}).
		Where("scan_id = ? AND flag_id = ? AND superseded = ?", entry.ScanID, entry.FlagID, false).
		Update("superseded", true).Error
	if err != nil {
		return fmt.Errorf("supersede prior feedback: %w", err)
	}

	if err := tx.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("create feedback entry: %w", err)
	}
	return nil
}

// Effective returns all active (non-superseded) entries, oldest first.
func (l *Ledger) Effective(ctx context.Context) ([]models.FeedbackEntry, error) {
	if l.db == nil {
		return nil, fmt.Errorf("database connection not available: %w", checkmate.ErrStorage)
	}

	var entries []models.FeedbackEntry
	err := l.db.WithContext(ctx).
		Where("superseded = ?", false).
		Order("id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("query effective feedback: %w", err)
	}
	return entries, nil
}

// EffectiveInBatches streams active entries to fn in fixed-size batches so
// aggregation consumers never hold the whole ledger in memory. Restartable:
// each call walks the ledger from the start.
func (l *Ledger) EffectiveInBatches(ctx context.Context, batchSize int, fn func(batch []models.FeedbackEntry) error) error {
	if l.db == nil {
		return fmt.Errorf("database connection not available: %w", checkmate.ErrStorage)
	}
	if batchSize <= 0 {
		batchSize = 200
	}

	var batch []models.FeedbackEntry
	result := l.db.WithContext(ctx).
		Where("superseded = ?", false).
		Order("id ASC").
		FindInBatches(&batch, batchSize, func(tx *gorm.DB, _ int) error {
			return fn(batch)
		})
	if result.Error != nil {
		return fmt.Errorf("walk effective feedback: %w", result.Error)
	}
	return nil
}

// History returns the full audit trail for a flag, including superseded
// rows, oldest first.
func (l *Ledger) History(ctx context.Context, scanID, flagID string) ([]models.FeedbackEntry, error) {
	if l.db == nil {
		return nil, fmt.Errorf("database connection not available: %w", checkmate.ErrStorage)
	}

	var entries []models.FeedbackEntry
	err := l.db.WithContext(ctx).
		Where("scan_id = ? AND flag_id = ?", scanID, flagID).
		Order("id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("query feedback history: %w", err)
	}
	return entries, nil
}

// counts tallies active entries by verdict inside a transaction.
func (l *Ledger) counts(ctx context.Context, tx *gorm.DB) (valid int, falsePositive int, err error) {
	var validCount, fpCount int64
	err = tx.WithContext(ctx).Model(&models.FeedbackEntry{}).
		Where("superseded = ? AND verdict = ?", false, checkmate.VerdictValid).
		Count(&validCount).Error
	if err != nil {
		return 0, 0, fmt.Errorf("count valid feedback: %w", err)
	}
	err = tx.WithContext(ctx).Model(&models.FeedbackEntry{}).
		Where("superseded = ? AND verdict = ?", false, checkmate.VerdictFalsePositive).
		Count(&fpCount).Error
	if err != nil {
		return 0, 0, fmt.Errorf("count false positive feedback: %w", err)
	}
	return int(validCount), int(fpCount), nil
}
