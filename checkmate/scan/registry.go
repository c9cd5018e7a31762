// Package scan owns Scan and Flag records and the current-scan pointer.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/CheckMateScan/go-api/checkmate"
	"github.com/CheckMateScan/go-api/checkmate/events"
	"github.com/CheckMateScan/go-api/checkmate/postgres/models"
	"github.com/CheckMateScan/go-api/checkmate/store"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Registry provides database operations for scans. The current-scan pointer
// lives in the KV store so external scanners see it too.
type Registry struct {
	db *gorm.DB
	kv store.KVStore
}

// NewRegistry creates a Registry over the given database and KV store.
func NewRegistry(db *gorm.DB, kv store.KVStore) *Registry {
	return &Registry{db: db, kv: kv}
}

// FlagInput describes one detected issue for scan creation.
type FlagInput struct {
	RuleID      string
	Severity    string
	Message     string
	LineNumber  int
	LineContent string
	MatchedText string
	Suggestion  string
	FilePath    string
}

// CreateScanInput carries everything needed to persist a completed scan.
type CreateScanInput struct {
	Code        string
	Language    string
	Name        string
	FileScanned string
	Flags       []FlagInput
}

// CreateScan stores the scan and its flags atomically, assigns fresh UUIDs,
// and marks the new scan as current.
func (r *Registry) CreateScan(ctx context.Context, in CreateScanInput) (*models.Scan, error) {
	if r.db == nil {
		return nil, fmt.Errorf("database connection not available: %w", checkmate.ErrStorage)
	}
	if strings.TrimSpace(in.Code) == "" {
		return nil, fmt.Errorf("code must be non-empty: %w", checkmate.ErrValidation)
	}
	if in.Language == "" {
		return nil, fmt.Errorf("language must be non-empty: %w", checkmate.ErrValidation)
	}

	now := time.Now().UTC()
	newScan := models.Scan{
		ScanID:      uuid.NewString(),
		Code:        in.Code,
		Language:    in.Language,
		Name:        in.Name,
		FileScanned: in.FileScanned,
		CreatedAt:   now,
	}

	flags := make([]models.Flag, len(in.Flags))
	for i, f := range in.Flags {
		flags[i] = models.Flag{
			FlagID:      uuid.NewString(),
			ScanID:      newScan.ScanID,
			RuleID:      f.RuleID,
			Severity:    f.Severity,
			Message:     f.Message,
			LineNumber:  f.LineNumber,
			LineContent: f.LineContent,
			MatchedText: f.MatchedText,
			Suggestion:  f.Suggestion,
			FilePath:    f.FilePath,
			CreatedAt:   now,
		}
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&newScan).Error; err != nil {
			return fmt.Errorf("create scan: %w", err)
		}
		if len(flags) > 0 {
			if err := tx.Create(&flags).Error; err != nil {
				return fmt.Errorf("create flags: %w", err)
			}
		}
		return events.Record(ctx, tx, models.EventTypeScanCreated, models.EntityTypeScan,
			newScan.ScanID, fmt.Sprintf("%d flags", len(flags)))
	})
	if err != nil {
		return nil, err
	}

	// The scan is durably committed at this point. A pointer write failure
	// must not fail the request, or a client retry would duplicate the scan.
	if err := r.kv.SetValue(ctx, store.CurrentScanKey, newScan.ScanID); err != nil {
		slog.Warn("set current scan pointer failed", "scan_id", newScan.ScanID, "error", err)
	}

	newScan.Flags = flags
	return &newScan, nil
}

// GetByID retrieves a scan with its flags ordered by line number.
func (r *Registry) GetByID(ctx context.Context, scanID string) (*models.Scan, error) {
	if r.db == nil {
		return nil, fmt.Errorf("database connection not available: %w", checkmate.ErrStorage)
	}

	var result models.Scan
	err := r.db.WithContext(ctx).
		Preload("Flags", func(db *gorm.DB) *gorm.DB {
			return db.Order("line_number ASC, flag_id ASC")
		}).
		Where("scan_id = ?", scanID).
		First(&result).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("scan %s: %w", scanID, checkmate.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query scan: %w", err)
	}
	return &result, nil
}

// GetCurrent retrieves the scan the current pointer refers to, or
// ErrNotFound when no scan is current.
func (r *Registry) GetCurrent(ctx context.Context) (*models.Scan, error) {
	scanID, err := r.kv.GetValue(ctx, store.CurrentScanKey)
	if err != nil {
		if errors.Is(err, store.ErrKeyNotFound) {
			return nil, fmt.Errorf("no current scan: %w", checkmate.ErrNotFound)
		}
		return nil, fmt.Errorf("read current scan pointer: %w", err)
	}
	return r.GetByID(ctx, scanID)
}

// HistoryItem is one row in the scan history listing.
type HistoryItem struct {
	ScanID      string    `json:"scan_id"`
	Code        string    `json:"code"`
	Language    string    `json:"language"`
	Name        string    `json:"name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	FlagCount   int       `json:"flag_count"`
	CodePreview string    `json:"code_preview"`
}

// List returns all scans with their flag counts, newest first.
func (r *Registry) List(ctx context.Context) ([]HistoryItem, error) {
	if r.db == nil {
		return nil, fmt.Errorf("database connection not available: %w", checkmate.ErrStorage)
	}

	type row struct {
		models.Scan
		FlagCount int
	}
	var rows []row
	err := r.db.WithContext(ctx).Table("scans").
		Select("scans.*, COUNT(flags.flag_id) as flag_count").
		Joins("LEFT JOIN flags ON flags.scan_id = scans.scan_id").
		Group("scans.scan_id").
		Order("scans.created_at DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query scan history: %w", err)
	}

	items := make([]HistoryItem, len(rows))
	for i, rw := range rows {
		items[i] = HistoryItem{
			ScanID:      rw.ScanID,
			Code:        rw.Code,
			Language:    rw.Language,
			Name:        rw.Name,
			CreatedAt:   rw.CreatedAt,
			FlagCount:   rw.FlagCount,
			CodePreview: rw.Scan.CodePreview(),
		}
	}
	return items, nil
}

// Rename updates a scan's name only. Fails with ErrNotFound for unknown
// scans and never creates one.
func (r *Registry) Rename(ctx context.Context, scanID, name string) error {
	if r.db == nil {
		return fmt.Errorf("database connection not available: %w", checkmate.ErrStorage)
	}
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("name must be non-empty: %w", checkmate.ErrValidation)
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Scan{}).Where("scan_id = ?", scanID).Update("name", name)
		if result.Error != nil {
			return fmt.Errorf("rename scan: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("scan %s: %w", scanID, checkmate.ErrNotFound)
		}
		return events.Record(ctx, tx, models.EventTypeScanRenamed, models.EntityTypeScan, scanID, name)
	})
}

// Delete removes a scan and its flags. If the deleted scan was current, the
// pointer is cleared; no other scan is auto-promoted.
func (r *Registry) Delete(ctx context.Context, scanID string) error {
	if r.db == nil {
		return fmt.Errorf("database connection not available: %w", checkmate.ErrStorage)
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("scan_id = ?", scanID).Delete(&models.Scan{})
		if result.Error != nil {
			return fmt.Errorf("delete scan: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("scan %s: %w", scanID, checkmate.ErrNotFound)
		}
		if err := tx.Where("scan_id = ?", scanID).Delete(&models.Flag{}).Error; err != nil {
			return fmt.Errorf("delete flags: %w", err)
		}
		return events.Record(ctx, tx, models.EventTypeScanDeleted, models.EntityTypeScan, scanID, "")
	})
	if err != nil {
		return err
	}

	current, err := r.kv.GetValue(ctx, store.CurrentScanKey)
	if err == nil && current == scanID {
		if err := r.kv.DeleteValue(ctx, store.CurrentScanKey); err != nil {
			return fmt.Errorf("clear current scan pointer: %w", err)
		}
	}
	return nil
}

// LoadAsCurrent repoints the current pointer at an existing scan without
// copying any data.
func (r *Registry) LoadAsCurrent(ctx context.Context, scanID string) error {
	if r.db == nil {
		return fmt.Errorf("database connection not available: %w", checkmate.ErrStorage)
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Scan{}).Where("scan_id = ?", scanID).Count(&count).Error; err != nil {
		return fmt.Errorf("query scan: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("scan %s: %w", scanID, checkmate.ErrNotFound)
	}

	if err := r.kv.SetValue(ctx, store.CurrentScanKey, scanID); err != nil {
		return fmt.Errorf("set current scan pointer: %w", err)
	}
	return events.Record(ctx, r.db, models.EventTypeScanLoaded, models.EntityTypeScan, scanID, "")
}

// FindFlag resolves a flag within a specific scan.
func (r *Registry) FindFlag(ctx context.Context, scanID, flagID string) (*models.Flag, error) {
	if r.db == nil {
		return nil, fmt.Errorf("database connection not available: %w", checkmate.ErrStorage)
	}

	var flag models.Flag
	err := r.db.WithContext(ctx).
		Where("scan_id = ? AND flag_id = ?", scanID, flagID).
		First(&flag).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("flag %s in scan %s: %w", flagID, scanID, checkmate.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query flag: %w", err)
	}
	return &flag, nil
}

// FindFlagGlobal resolves a flag by ID alone, for the client contract that
// submits feedback without a scan_id.
func (r *Registry) FindFlagGlobal(ctx context.Context, flagID string) (*models.Flag, error) {
	if r.db == nil {
		return nil, fmt.Errorf("database connection not available: %w", checkmate.ErrStorage)
	}

	var flag models.Flag
	err := r.db.WithContext(ctx).
		Where("flag_id = ?", flagID).
		First(&flag).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("flag %s: %w", flagID, checkmate.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query flag: %w", err)
	}
	return &flag, nil
}

// Totals returns the number of scans and flags stored.
func (r *Registry) Totals(ctx context.Context) (scans int, flags int, err error) {
	if r.db == nil {
		return 0, 0, fmt.Errorf("database connection not available: %w", checkmate.ErrStorage)
	}

	var scanCount, flagCount int64
	if err := r.db.WithContext(ctx).Model(&models.Scan{}).Count(&scanCount).Error; err != nil {
		return 0, 0, fmt.Errorf("count scans: %w", err)
	}
	if err := r.db.WithContext(ctx).Model(&models.Flag{}).Count(&flagCount).Error; err != nil {
		return 0, 0, fmt.Errorf("count flags: %w", err)
	}
	return int(scanCount), int(flagCount), nil
}
