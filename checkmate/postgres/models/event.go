// File: event.go
package models

import (
	"time"
)

// Event represents a lifecycle event recorded by the API for auditing.
type Event struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	EventID    string    `gorm:"uniqueIndex;not null;size:64" json:"event_id"`
	Timestamp  time.Time `gorm:"not null;index:idx_events_timestamp,sort:desc" json:"timestamp"`
	EventType  string    `gorm:"not null;size:50;index:idx_events_type" json:"event_type"`
	EntityType string    `gorm:"size:50;index:idx_events_entity,priority:1" json:"entity_type,omitempty"`
	EntityID   string    `gorm:"size:255;index:idx_events_entity,priority:2" json:"entity_id,omitempty"`
	Detail     string    `gorm:"type:text" json:"detail,omitempty"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
}

// TableName specifies the table name for the Event model
func (Event) TableName() string {
	return "events"
}

// EventType constants for common event types
const (
	EventTypeScanCreated      = "scan_created"
	EventTypeScanRenamed      = "scan_renamed"
	EventTypeScanDeleted      = "scan_deleted"
	EventTypeScanLoaded       = "scan_loaded_as_current"
	EventTypeFeedbackRecorded = "feedback_recorded"
	EventTypeWhitelistAdded   = "whitelist_added"
	EventTypeWhitelistRemoved = "whitelist_removed"
)

// EntityType constants for event entity types
const (
	EntityTypeScan      = "scan"
	EntityTypeFlag      = "flag"
	EntityTypeWhitelist = "whitelist"
)

// IsValidEventType checks if an event type is one of the known types.
func IsValidEventType(eventType string) bool {
	switch eventType {
	case EventTypeScanCreated, EventTypeScanRenamed, EventTypeScanDeleted,
		EventTypeScanLoaded, EventTypeFeedbackRecorded,
		EventTypeWhitelistAdded, EventTypeWhitelistRemoved:
		return true
	default:
		return false
	}
}
