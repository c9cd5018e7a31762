// Package api exposes the feedback and precision engine over HTTP.
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/CheckMateScan/go-api/checkmate"
	"github.com/CheckMateScan/go-api/checkmate/detect"
	"github.com/CheckMateScan/go-api/checkmate/events"
	"github.com/CheckMateScan/go-api/checkmate/feedback"
	"github.com/CheckMateScan/go-api/checkmate/metrics"
	"github.com/CheckMateScan/go-api/checkmate/postgres/models"
	"github.com/CheckMateScan/go-api/checkmate/scan"
	"github.com/CheckMateScan/go-api/checkmate/severity"
	"github.com/CheckMateScan/go-api/checkmate/whitelist"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Handlers bundles the engine components behind the HTTP surface.
type Handlers struct {
	db          *gorm.DB
	registry    *scan.Registry
	engine      *detect.Engine
	coordinator *feedback.Coordinator
	whitelist   *whitelist.Store
	metrics     *metrics.Manager
}

// NewHandlers wires the HTTP handlers.
func NewHandlers(db *gorm.DB, registry *scan.Registry, engine *detect.Engine, coordinator *feedback.Coordinator, wl *whitelist.Store, mm *metrics.Manager) *Handlers {
	return &Handlers{
		db:          db,
		registry:    registry,
		engine:      engine,
		coordinator: coordinator,
		whitelist:   wl,
		metrics:     mm,
	}
}

// writeError maps the error taxonomy onto HTTP status codes.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, checkmate.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, checkmate.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, checkmate.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, checkmate.ErrStorage), errors.Is(err, checkmate.ErrTimeout):
		slog.Error("storage failure", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service unavailable"})
	default:
		slog.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// flagResponse is the wire shape of one flag.
type flagResponse struct {
	FlagID      string `json:"flag_id"`
	ScanID      string `json:"scan_id"`
	RuleID      string `json:"rule_id"`
	Severity    string `json:"severity"`
	Message     string `json:"message"`
	LineNumber  int    `json:"line_number"`
	LineContent string `json:"line_content"`
	MatchedText string `json:"matched_text"`
	Suggestion  string `json:"suggestion,omitempty"`
	FilePath    string `json:"file_path,omitempty"`
}

func toFlagResponse(f models.Flag) flagResponse {
	return flagResponse{
		FlagID:      f.FlagID,
		ScanID:      f.ScanID,
		RuleID:      f.RuleID,
		Severity:    f.Severity,
		Message:     f.Message,
		LineNumber:  f.LineNumber,
		LineContent: f.LineContent,
		MatchedText: f.MatchedText,
		Suggestion:  f.Suggestion,
		FilePath:    f.FilePath,
	}
}

func toFlagResponses(flags []models.Flag) []flagResponse {
	out := make([]flagResponse, len(flags))
	for i, f := range flags {
		out[i] = toFlagResponse(f)
	}
	return out
}

// scanResponse is the wire shape of a full scan.
type scanResponse struct {
	ScanID     string           `json:"scan_id"`
	Code       string           `json:"code"`
	Language   string           `json:"language"`
	Name       string           `json:"name,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	Timestamp  time.Time        `json:"timestamp"`
	Flags      []flagResponse   `json:"flags"`
	TotalFlags int              `json:"total_flags"`
	Summary    severity.Summary `json:"severity_summary"`
}

func toScanResponse(s *models.Scan) scanResponse {
	severities := make([]string, len(s.Flags))
	for i, f := range s.Flags {
		severities[i] = f.Severity
	}
	return scanResponse{
		ScanID:     s.ScanID,
		Code:       s.Code,
		Language:   s.Language,
		Name:       s.Name,
		CreatedAt:  s.CreatedAt,
		Timestamp:  s.CreatedAt,
		Flags:      toFlagResponses(s.Flags),
		TotalFlags: len(s.Flags),
		Summary:    severity.Summarize(severities),
	}
}

// Root answers liveness probes.
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"service": "checkmate-api", "status": "ok"})
}

// Health reports readiness plus whether a current scan is loaded.
func (h *Handlers) Health(c *gin.Context) {
	hasScan := true
	totalFlags := 0
	current, err := h.registry.GetCurrent(c.Request.Context())
	if err != nil {
		if !errors.Is(err, checkmate.ErrNotFound) {
			writeError(c, err)
			return
		}
		hasScan = false
	} else {
		totalFlags = len(current.Flags)
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"has_scan":    hasScan,
		"total_flags": totalFlags,
	})
}

type scanRequest struct {
	Code     string `json:"code"`
	Language string `json:"language"`
	Name     string `json:"name"`
	FilePath string `json:"file_path"`
}

// Scan runs the detection engine over the submitted code and stores the
// result as the current scan.
func (h *Handlers) Scan(c *gin.Context) {
	var req scanRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	ctx := c.Request.Context()
	matches, err := h.engine.Scan(ctx, req.Code, req.Language)
	if err != nil {
		writeError(c, err)
		return
	}

	flags := make([]scan.FlagInput, len(matches))
	for i, m := range matches {
		flags[i] = scan.FlagInput{
			RuleID:      m.RuleID,
			Severity:    m.Severity,
			Message:     m.Message,
			LineNumber:  m.LineNumber,
			LineContent: m.LineContent,
			MatchedText: m.MatchedText,
			Suggestion:  m.Suggestion,
			FilePath:    req.FilePath,
		}
	}

	created, err := h.registry.CreateScan(ctx, scan.CreateScanInput{
		Code:        req.Code,
		Language:    req.Language,
		Name:        req.Name,
		FileScanned: req.FilePath,
		Flags:       flags,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	if _, err := h.metrics.Refresh(ctx); err != nil {
		slog.Warn("metrics refresh after scan failed", "error", err)
	}

	c.JSON(http.StatusOK, gin.H{
		"scan_id":     created.ScanID,
		"flags":       toFlagResponses(created.Flags),
		"total_flags": len(created.Flags),
		"timestamp":   created.CreatedAt,
	})
}

// GetScan returns one scan with its flags.
func (h *Handlers) GetScan(c *gin.Context) {
	result, err := h.registry.GetByID(c.Request.Context(), c.Param("scan_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toScanResponse(result))
}

// Results returns the current scan.
func (h *Handlers) Results(c *gin.Context) {
	current, err := h.registry.GetCurrent(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toScanResponse(current))
}

type renameRequest struct {
	Name string `json:"name"`
}

// RenameScan updates a scan's display name.
func (h *Handlers) RenameScan(c *gin.Context) {
	var req renameRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	scanID := c.Param("scan_id")
	if err := h.registry.Rename(c.Request.Context(), scanID, req.Name); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "scan_id": scanID, "name": req.Name})
}

// ListScans returns the scan history, newest first.
func (h *Handlers) ListScans(c *gin.Context) {
	items, err := h.registry.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"scans": items, "total": len(items)})
}

// DeleteScan removes a scan from history.
func (h *Handlers) DeleteScan(c *gin.Context) {
	scanID := c.Param("scan_id")
	if err := h.registry.Delete(c.Request.Context(), scanID); err != nil {
		writeError(c, err)
		return
	}

	if _, err := h.metrics.Refresh(c.Request.Context()); err != nil {
		slog.Warn("metrics refresh after scan deletion failed", "error", err)
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "scan_id": scanID})
}

// LoadScan repoints the current-scan pointer at a history entry.
func (h *Handlers) LoadScan(c *gin.Context) {
	scanID := c.Param("scan_id")
	if err := h.registry.LoadAsCurrent(c.Request.Context(), scanID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "scan_id": scanID})
}

// feedbackRequest accepts both client contracts: one keyed by scan_id and
// flag_id, the other by flag_id alone with rule_id and matched_text hints.
// The stored flag is authoritative for rule_id and matched_text either way.
type feedbackRequest struct {
	ScanID      string `json:"scan_id"`
	FlagID      string `json:"flag_id"`
	Verdict     string `json:"verdict"`
	RuleID      string `json:"rule_id"`
	MatchedText string `json:"matched_text"`
}

// Feedback records a verdict and, for false positives, whitelists the
// matched text.
func (h *Handlers) Feedback(c *gin.Context) {
	var req feedbackRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	ctx := c.Request.Context()
	res, err := h.coordinator.Submit(ctx, feedback.SubmitInput{
		ScanID:  req.ScanID,
		FlagID:  req.FlagID,
		Verdict: req.Verdict,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	if _, err := h.metrics.Refresh(ctx); err != nil {
		slog.Warn("metrics refresh after feedback failed", "error", err)
	}

	message := "feedback recorded"
	if res.WhitelistUpdated {
		message = "feedback recorded, pattern whitelisted"
	}
	c.JSON(http.StatusOK, gin.H{
		"success":           true,
		"message":           message,
		"whitelist_updated": res.WhitelistUpdated,
	})
}

// Events returns the most recent audit events, newest first.
func (h *Handlers) Events(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer"})
			return
		}
		limit = n
	}

	rows, err := events.Recent(c.Request.Context(), h.db, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": rows, "total": len(rows)})
}

// Metrics serves the latest precision report.
func (h *Handlers) Metrics(c *gin.Context) {
	report, err := h.metrics.Latest(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// Whitelist lists all whitelist entries.
func (h *Handlers) Whitelist(c *gin.Context) {
	entries, err := h.whitelist.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	patterns, err := h.whitelist.Patterns(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"entries":  entries,
		"patterns": patterns,
		"total":    len(entries),
	})
}

// RemoveWhitelistPattern deletes every whitelist entry whose matched text
// equals the given pattern, across all rules.
func (h *Handlers) RemoveWhitelistPattern(c *gin.Context) {
	pattern := c.Param("pattern")
	removed, err := h.whitelist.RemoveByText(c.Request.Context(), pattern)
	if err != nil {
		writeError(c, err)
		return
	}

	if _, err := h.metrics.Refresh(c.Request.Context()); err != nil {
		slog.Warn("metrics refresh after whitelist removal failed", "error", err)
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "removed": removed})
}
