package feedback

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/CheckMateScan/go-api/checkmate"
	"github.com/CheckMateScan/go-api/checkmate/events"
	"github.com/CheckMateScan/go-api/checkmate/postgres/models"
	"github.com/CheckMateScan/go-api/checkmate/queue"
	"github.com/CheckMateScan/go-api/checkmate/scan"
	"github.com/CheckMateScan/go-api/checkmate/whitelist"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Broadcaster publishes whitelist updates so external scanner workers can
// refresh their suppression sets. Satisfied by queue.Client.
type Broadcaster interface {
	Send(qName, message string) error
}

// Coordinator runs the feedback submission pipeline. Each submission is a
// single transaction covering the ledger write, the optional whitelist
// update, the precision history point, and the audit events. Submissions
// for the same flag are serialized by a per-key lock.
type Coordinator struct {
	db        *gorm.DB
	registry  *scan.Registry
	ledger    *Ledger
	whitelist *whitelist.Store

	broadcaster    Broadcaster
	whitelistQueue string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewCoordinator wires the coordinator. broadcaster may be nil when no
// message queue is configured.
func NewCoordinator(db *gorm.DB, registry *scan.Registry, ledger *Ledger, wl *whitelist.Store, broadcaster Broadcaster, whitelistQueue string) *Coordinator {
	return &Coordinator{
		db:             db,
		registry:       registry,
		ledger:         ledger,
		whitelist:      wl,
		broadcaster:    broadcaster,
		whitelistQueue: whitelistQueue,
		locks:          make(map[string]*sync.Mutex),
	}
}

// SubmitInput is one verdict from a reviewer. ScanID is optional; when
// empty the flag is resolved by ID alone.
type SubmitInput struct {
	ScanID  string
	FlagID  string
	Verdict string
}

// Result reports what a submission changed.
type Result struct {
	Entry            models.FeedbackEntry
	WhitelistUpdated bool
	Precision        float64
	TotalFeedback    int
}

// Submit validates the verdict, resolves the flag, and commits the feedback
// transaction. Repeat submissions for the same flag supersede the earlier
// verdict instead of failing.
func (c *Coordinator) Submit(ctx context.Context, in SubmitInput) (*Result, error) {
	if c.db == nil {
		return nil, fmt.Errorf("database connection not available: %w", checkmate.ErrStorage)
	}
	if !checkmate.IsValidVerdict(in.Verdict) {
		return nil, fmt.Errorf("verdict must be %q or %q, got %q: %w",
			checkmate.VerdictValid, checkmate.VerdictFalsePositive, in.Verdict, checkmate.ErrValidation)
	}
	if strings.TrimSpace(in.FlagID) == "" {
		return nil, fmt.Errorf("flag_id must be non-empty: %w", checkmate.ErrValidation)
	}

	var flag *models.Flag
	var err error
	if in.ScanID != "" {
		flag, err = c.registry.FindFlag(ctx, in.ScanID, in.FlagID)
	} else {
		flag, err = c.registry.FindFlagGlobal(ctx, in.FlagID)
	}
	if err != nil {
		return nil, err
	}

	unlock := c.lockFlag(flag.ScanID + "/" + flag.FlagID)
	defer unlock()

	entry := models.FeedbackEntry{
		FeedbackID:  uuid.NewString(),
		ScanID:      flag.ScanID,
		FlagID:      flag.FlagID,
		RuleID:      flag.RuleID,
		MatchedText: flag.MatchedText,
		Verdict:     in.Verdict,
		CreatedAt:   time.Now().UTC(),
	}

	res := &Result{}
	err = c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := c.ledger.record(ctx, tx, &entry); err != nil {
			return err
		}

		if in.Verdict == checkmate.VerdictFalsePositive && flag.MatchedText != "" {
			_, created, err := c.whitelist.WithTx(tx).Add(ctx, flag.RuleID, flag.MatchedText)
			if err != nil {
				return err
			}
			res.WhitelistUpdated = created
			if created {
				if err := events.Record(ctx, tx, models.EventTypeWhitelistAdded, models.EntityTypeWhitelist,
					flag.RuleID, flag.MatchedText); err != nil {
					return err
				}
			}
		}

		valid, falsePositive, err := c.ledger.counts(ctx, tx)
		if err != nil {
			return err
		}
		total := valid + falsePositive
		precision := 0.0
		if total > 0 {
			precision = math.Round(float64(valid)/float64(total)*1000) / 10
		}
		point := models.PrecisionHistoryPoint{
			Timestamp:          entry.CreatedAt,
			Precision:          precision,
			TotalFeedback:      total,
			ValidCount:         valid,
			FalsePositiveCount: falsePositive,
		}
		if err := tx.Create(&point).Error; err != nil {
			return fmt.Errorf("append precision history: %w", err)
		}
		res.Precision = precision
		res.TotalFeedback = total

		return events.Record(ctx, tx, models.EventTypeFeedbackRecorded, models.EntityTypeFlag,
			flag.FlagID, in.Verdict)
	})
	if err != nil {
		return nil, err
	}

	res.Entry = entry
	c.broadcastWhitelist(ctx, res, flag)
	return res, nil
}

// broadcastWhitelist publishes a whitelist_add message after commit.
// Best effort: a dead broker must not fail the submission.
func (c *Coordinator) broadcastWhitelist(ctx context.Context, res *Result, flag *models.Flag) {
	if !res.WhitelistUpdated || c.broadcaster == nil || c.whitelistQueue == "" {
		return
	}

	count, err := c.whitelist.Count(ctx)
	if err != nil {
		slog.Warn("whitelist count for broadcast failed", "error", err)
	}
	msg := queue.WhitelistUpdate{
		Action:      "added",
		RuleID:      flag.RuleID,
		MatchedText: flag.MatchedText,
		Count:       count,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		slog.Warn("marshal whitelist broadcast failed", "error", err)
		return
	}
	if err := c.broadcaster.Send(c.whitelistQueue, string(payload)); err != nil {
		slog.Warn("whitelist broadcast failed", "queue", c.whitelistQueue, "error", err)
	}
}

func (c *Coordinator) lockFlag(key string) func() {
	c.mu.Lock()
	l, ok := c.locks[key]
	if !ok {
		l = &sync.Mutex{}
		c.locks[key] = l
	}
	c.mu.Unlock()

	l.Lock()
	return l.Unlock
}
