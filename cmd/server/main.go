package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/CheckMateScan/go-api/api"
	"github.com/CheckMateScan/go-api/checkmate/config"
	"github.com/CheckMateScan/go-api/checkmate/detect"
	"github.com/CheckMateScan/go-api/checkmate/feedback"
	"github.com/CheckMateScan/go-api/checkmate/metrics"
	"github.com/CheckMateScan/go-api/checkmate/postgres"
	"github.com/CheckMateScan/go-api/checkmate/queue"
	"github.com/CheckMateScan/go-api/checkmate/scan"
	"github.com/CheckMateScan/go-api/checkmate/slogger"
	"github.com/CheckMateScan/go-api/checkmate/store"
	"github.com/CheckMateScan/go-api/checkmate/whitelist"
)

func main() {
	cfgFile := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgFile)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	slogger.Init(cfg.LogLevel, cfg.LogFormat)

	db, err := postgres.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}

	var kv store.KVStore
	if cfg.KVBackend == "valkey" {
		kv, err = store.NewValkeyStore(cfg.KVAddr)
		if err != nil {
			log.Fatalf("connect valkey at %s: %v", cfg.KVAddr, err)
		}
	} else {
		kv = store.NewMemoryStore()
	}
	defer kv.Close()

	catalog, err := detect.LoadCatalog(cfg.RuleCatalog)
	if err != nil {
		log.Fatalf("load rule catalog: %v", err)
	}
	slog.Info("rule catalog loaded", "rules", len(catalog.Rules), "source", cfg.RuleCatalog)

	registry := scan.NewRegistry(db, kv)
	wl := whitelist.NewStore(db)
	engine := detect.NewEngine(catalog, wl)
	ledger := feedback.NewLedger(db)

	var broadcaster feedback.Broadcaster
	var queueClient *queue.Client
	if cfg.AMQPURL != "" {
		queueClient = queue.NewClient(cfg.AMQPURL)
		broadcaster = queueClient
	}
	coordinator := feedback.NewCoordinator(db, registry, ledger, wl, broadcaster, cfg.WhitelistQueue)
	manager := metrics.NewManager(kv, metrics.NewCalculator(db, cfg.BaselinePrecision))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if queueClient != nil && cfg.ScanQueue != "" {
		go queueClient.ListenWithRetry(ctx, cfg.ScanQueue, func(msg string) {
			handleScanJob(ctx, msg, engine, registry, manager)
		})
	}

	handlers := api.NewHandlers(db, registry, engine, coordinator, wl, manager)
	router := api.NewRouter(handlers, cfg.AllowedOrigins)
	server := api.NewServer(cfg.ListenAddr, router)

	if err := server.Run(ctx); err != nil {
		log.Fatalf("server: %v", err)
	}
}

// handleScanJob processes one queued scan request from an external worker.
func handleScanJob(ctx context.Context, msg string, engine *detect.Engine, registry *scan.Registry, manager *metrics.Manager) {
	var job queue.ScanJob
	if err := json.Unmarshal([]byte(msg), &job); err != nil {
		slog.Warn("discard malformed scan job", "error", err)
		return
	}

	matches, err := engine.Scan(ctx, job.Code, job.Language)
	if err != nil {
		slog.Error("queued scan failed", "error", err)
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
			FilePath:    job.FileScanned,
		}
	}

	created, err := registry.CreateScan(ctx, scan.CreateScanInput{
		Code:        job.Code,
		Language:    job.Language,
		Name:        job.Name,
		FileScanned: job.FileScanned,
		Flags:       flags,
	})
	if err != nil {
		slog.Error("store queued scan failed", "error", err)
		return
	}
	if _, err := manager.Refresh(ctx); err != nil {
		slog.Warn("metrics refresh after queued scan failed", "error", err)
	}
	slog.Info("queued scan stored", "scan_id", created.ScanID, "flags", len(created.Flags))
}
