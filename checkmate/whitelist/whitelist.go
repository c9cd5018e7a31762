// Package whitelist stores confirmed false-positive patterns. The scanner
// consults it before emitting flags, so lookups vastly outnumber writes;
// Contains is a point query on a composite unique index.
package whitelist

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/CheckMateScan/go-api/checkmate"
	"github.com/CheckMateScan/go-api/checkmate/events"
	"github.com/CheckMateScan/go-api/checkmate/postgres/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store provides database operations for whitelist entries.
type Store struct {
	db *gorm.DB
}

// NewStore creates a Store over the given database handle.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithTx returns a Store bound to the given transaction. The coordinator
// uses this so whitelist writes commit atomically with the feedback ledger.
func (s *Store) WithTx(tx *gorm.DB) *Store {
	return &Store{db: tx}
}

// normalize trims the pair before storage and comparison. Equality is exact
// string match on the normalized pair.
func normalize(ruleID, matchedText string) (string, string) {
	return strings.TrimSpace(ruleID), strings.TrimSpace(matchedText)
}

// Add inserts a (rule_id, matched_text) entry. Adding an existing pair is a
// no-op that returns the stored entry with created=false. The insert uses
// ON CONFLICT DO NOTHING on the unique pair index, so concurrent writers of
// the same pair both succeed; exactly one observes created=true.
func (s *Store) Add(ctx context.Context, ruleID, matchedText string) (*models.WhitelistEntry, bool, error) {
	if s.db == nil {
		return nil, false, fmt.Errorf("database connection not available: %w", checkmate.ErrStorage)
	}
	ruleID, matchedText = normalize(ruleID, matchedText)
	if ruleID == "" || matchedText == "" {
		return nil, false, fmt.Errorf("rule_id and matched_text must be non-empty: %w", checkmate.ErrValidation)
	}

	entry := models.WhitelistEntry{
		RuleID:      ruleID,
		MatchedText: matchedText,
		CreatedAt:   time.Now().UTC(),
	}
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&entry)
	if result.Error != nil {
		return nil, false, fmt.Errorf("create whitelist entry: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return &entry, true, nil
	}

	var existing models.WhitelistEntry
	err := s.db.WithContext(ctx).
		Where("rule_id = ? AND matched_text = ?", ruleID, matchedText).
		First(&existing).Error
	if err != nil {
		return nil, false, fmt.Errorf("query whitelist: %w", err)
	}
	return &existing, false, nil
}

// Contains reports whether the pair is whitelisted.
func (s *Store) Contains(ctx context.Context, ruleID, matchedText string) (bool, error) {
	if s.db == nil {
		return false, fmt.Errorf("database connection not available: %w", checkmate.ErrStorage)
	}
	ruleID, matchedText = normalize(ruleID, matchedText)

	var count int64
	err := s.db.WithContext(ctx).Model(&models.WhitelistEntry{}).
		Where("rule_id = ? AND matched_text = ?", ruleID, matchedText).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("query whitelist: %w", err)
	}
	return count > 0, nil
}

// Count returns the number of distinct whitelist entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	if s.db == nil {
		return 0, fmt.Errorf("database connection not available: %w", checkmate.ErrStorage)
	}
	var count int64
	err := s.db.WithContext(ctx).Model(&models.WhitelistEntry{}).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count whitelist: %w", err)
	}
	return int(count), nil
}

// Remove deletes an entry, supporting correction of an erroneous
// false-positive marking. Returns ErrNotFound when the pair is absent.
func (s *Store) Remove(ctx context.Context, ruleID, matchedText string) error {
	if s.db == nil {
		return fmt.Errorf("database connection not available: %w", checkmate.ErrStorage)
	}
	ruleID, matchedText = normalize(ruleID, matchedText)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("rule_id = ? AND matched_text = ?", ruleID, matchedText).
			Delete(&models.WhitelistEntry{})
		if result.Error != nil {
			return fmt.Errorf("delete whitelist entry: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("whitelist entry (%s, %s): %w", ruleID, matchedText, checkmate.ErrNotFound)
		}
		return events.Record(ctx, tx, models.EventTypeWhitelistRemoved, models.EntityTypeWhitelist,
			ruleID, matchedText)
	})
}

// RemoveByText deletes every entry with the given matched text, regardless
// of rule. The dashboard's whitelist view is keyed by pattern only.
func (s *Store) RemoveByText(ctx context.Context, matchedText string) (int, error) {
	if s.db == nil {
		return 0, fmt.Errorf("database connection not available: %w", checkmate.ErrStorage)
	}
	matchedText = strings.TrimSpace(matchedText)

	removed := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("matched_text = ?", matchedText).
			Delete(&models.WhitelistEntry{})
		if result.Error != nil {
			return fmt.Errorf("delete whitelist entries: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("whitelist pattern %q: %w", matchedText, checkmate.ErrNotFound)
		}
		removed = int(result.RowsAffected)
		return events.Record(ctx, tx, models.EventTypeWhitelistRemoved, models.EntityTypeWhitelist,
			"", matchedText)
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// List returns all whitelist entries, newest first.
func (s *Store) List(ctx context.Context) ([]models.WhitelistEntry, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database connection not available: %w", checkmate.ErrStorage)
	}
	var entries []models.WhitelistEntry
	err := s.db.WithContext(ctx).Order("created_at DESC, id DESC").Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("list whitelist: %w", err)
	}
	return entries, nil
}

// Patterns returns the distinct matched texts, for clients that render the
// whitelist as a flat pattern list.
func (s *Store) Patterns(ctx context.Context) ([]string, error) {
	entries, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(entries))
	patterns := make([]string, 0, len(entries))
	for _, e := range entries {
		if !seen[e.MatchedText] {
			seen[e.MatchedText] = true
			patterns = append(patterns, e.MatchedText)
		}
	}
	return patterns, nil
}
