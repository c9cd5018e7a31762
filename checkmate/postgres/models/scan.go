// File: scan.go
package models

import (
	"time"
)

// Scan represents one submitted code scan with its detected flags.
type Scan struct {
	ScanID      string    `gorm:"primaryKey;size:64" json:"scan_id"`
	Code        string    `gorm:"type:text;not null" json:"code"`
	Language    string    `gorm:"not null;size:32" json:"language"`
	Name        string    `gorm:"size:255" json:"name,omitempty"`
	FileScanned string    `gorm:"size:512" json:"file_scanned,omitempty"`
	CreatedAt   time.Time `gorm:"not null;index:idx_scans_created,sort:desc" json:"created_at"`

	Flags []Flag `gorm:"foreignKey:ScanID;references:ScanID" json:"flags,omitempty"`
}

// TableName specifies the table name for the Scan model
func (Scan) TableName() string {
	return "scans"
}

// CodePreview returns the first line of the scanned code, truncated to 50
// characters, for history listings.
func (s *Scan) CodePreview() string {
	line := s.Code
	for i := 0; i < len(line); i++ {
		if line[i] == '\n' {
			line = line[:i]
			break
		}
	}
	if len(line) > 50 {
		line = line[:50]
	}
	return line
}

// Flag represents a single detected issue instance within a scan.
// Flags are immutable once the scan completes.
type Flag struct {
	FlagID      string    `gorm:"primaryKey;size:64" json:"flag_id"`
	ScanID      string    `gorm:"not null;size:64;index:idx_flags_scan" json:"scan_id"`
	RuleID      string    `gorm:"not null;size:64;index:idx_flags_rule" json:"rule_id"`
	Severity    string    `gorm:"not null;size:20" json:"severity"`
	Message     string    `gorm:"not null;size:512" json:"message"`
	LineNumber  int       `gorm:"not null" json:"line_number"`
	LineContent string    `gorm:"type:text" json:"line_content"`
	MatchedText string    `gorm:"type:text" json:"matched_text"`
	Suggestion  string    `gorm:"type:text" json:"suggestion,omitempty"`
	FilePath    string    `gorm:"size:512" json:"file_path,omitempty"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
}

// TableName specifies the table name for the Flag model
func (Flag) TableName() string {
	return "flags"
}
