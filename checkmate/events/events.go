// Package events records lifecycle events (scan created, feedback recorded,
// whitelist changed) into the events table for auditing.
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/CheckMateScan/go-api/checkmate/postgres/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Record inserts an event row using the given database handle. Callers
// inside a transaction pass the transaction handle so the event commits
// with the change it describes.
func Record(ctx context.Context, db *gorm.DB, eventType, entityType, entityID, detail string) error {
	if !models.IsValidEventType(eventType) {
		return fmt.Errorf("unknown event type %q", eventType)
	}

	now := time.Now().UTC()
	event := models.Event{
		EventID:    uuid.NewString(),
		Timestamp:  now,
		EventType:  eventType,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
		CreatedAt:  now,
	}
	if err := db.WithContext(ctx).Create(&event).Error; err != nil {
		return fmt.Errorf("record event %s: %w", eventType, err)
	}
	return nil
}

// Recent returns the most recent events, newest first.
func Recent(ctx context.Context, db *gorm.DB, limit int) ([]models.Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows []models.Event
	err := db.WithContext(ctx).
		Order("timestamp DESC, id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	return rows, nil
}
