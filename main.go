package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"idx_portal/api"
	"idx_portal/config"
	"idx_portal/httputil"
	"idx_portal/idx"
	"idx_portal/logging"
	"idx_portal/models"
	"idx_portal/notify"
	"idx_portal/scheduler"
	"idx_portal/services"
	"idx_portal/storage"
	"idx_portal/workers"
)

var (
	runDue    = flag.Bool("run-due", false, "Run every due saved search once and exit")
	runSearch = flag.String("run-search", "", "Run one saved search by id and exit")
	command   = flag.String("command", "", "Queue a command for the running daemon (run_due, run_search, check_expiry, refresh_listings, pause, resume)")
	searchID  = flag.String("search-id", "", "Search id for -command run_search")
	resetOps  = flag.Bool("reset-ops", false, "Clear batch history, run logs and queued commands, then exit")
)

// listingBackend is what the configured listing source offers the daemon
type listingBackend interface {
	services.ListingSource
	api.ListingLookup
}

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logFile, err := logging.Setup(cfg.LogPath, cfg.LogLevel)
	if err != nil {
		log.Printf("Warning: could not set up file logging: %v", err)
	} else {
		defer logFile.Close()
	}

	log.Println("Starting idx_portal...")

	loc, err := cfg.Location()
	if err != nil {
		log.Fatalf("Invalid timezone: %v", err)
	}

	// Operational data lives in SQLite: batch history, run logs, daemon commands
	opsStore, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open SQLite: %v", err)
	}
	defer opsStore.Close()
	log.Printf("SQLite database: %s", cfg.DBPath)

	if *resetOps {
		if err := opsStore.ResetAllData(); err != nil {
			log.Fatalf("Reset failed: %v", err)
		}
		log.Println("Operational data cleared")
		return
	}
	if *command != "" {
		enqueue(opsStore, models.CommandType(*command), *searchID)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pgStore, err := storage.NewPostgresStore(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer pgStore.Close()
	log.Printf("Connected to Postgres: %s", maskConnectionString(cfg.Database.URL))

	if err := pgStore.Migrate(ctx); err != nil {
		log.Fatalf("Failed to migrate Postgres: %v", err)
	}

	clients := httputil.NewClients(cfg.Scheduler.CallTimeout)
	var idxClient *idx.Client
	if cfg.IDX.APIKey != "" {
		idxClient = idx.NewClient(cfg.IDX.BaseURL, cfg.IDX.APIKey, clients)
	}

	// Listing source and refresh target
	var listings listingBackend
	var refreshSvc *services.RefreshService
	switch cfg.IDX.Source {
	case "postgres":
		listings = pgStore
		if idxClient != nil {
			refreshSvc = services.NewRefreshService(idxClient, pgStore)
		}
	case "idx":
		if idxClient == nil {
			log.Fatalf("LISTING_SOURCE=idx requires IDX_BROKER_API_KEY")
		}
		listings = idxClient
	case "file":
		mem, err := storage.LoadListingsFile(cfg.IDX.ListingsFile)
		if err != nil {
			log.Fatalf("Failed to load listings file: %v", err)
		}
		listings = mem
		if idxClient != nil {
			refreshSvc = services.NewRefreshService(idxClient, mem)
		}
	default:
		log.Fatalf("Unknown LISTING_SOURCE %q", cfg.IDX.Source)
	}
	log.Printf("Listing source: %s", cfg.IDX.Source)

	// Notifications
	renderer, err := notify.NewRenderer(notify.RendererConfig{
		Brand:        cfg.Portal.BrandName,
		AppURL:       cfg.Portal.AppURL,
		PreviewLimit: cfg.Portal.PreviewLimit,
		Disclaimer:   cfg.Portal.CopyrightNotice(),
	})
	if err != nil {
		log.Fatalf("Failed to load email templates: %v", err)
	}
	notifier := notify.NewSMTPNotifier(notify.SMTPConfig{
		Host:      cfg.SMTP.Host,
		Port:      cfg.SMTP.Port,
		User:      cfg.SMTP.User,
		Password:  cfg.SMTP.Password,
		FromEmail: cfg.SMTP.FromEmail,
		FromName:  cfg.SMTP.FromName,
	}, renderer)

	if cfg.S3.Bucket != "" {
		archive, err := storage.NewS3Archive(ctx, storage.S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		})
		if err != nil {
			log.Fatalf("Failed to configure S3 archive: %v", err)
		}
		notifier.SetArchive(archive, cfg.S3.Prefix)
		log.Printf("Archiving digests to s3://%s/%s", cfg.S3.Bucket, cfg.S3.Prefix)
	}

	// Run loop
	batchLog := workers.NewBatchLog(opsStore)

	dispatcher := services.NewDispatcher(notifier, cfg.SMTP.AdminEmail)
	dispatcher.SetTimeout(cfg.Scheduler.CallTimeout)

	runner := services.NewRunner(pgStore, services.NewMatcher(listings), dispatcher)
	runner.SetLogger(batchLog.Func())
	runner.SetCallTimeout(cfg.Scheduler.CallTimeout)
	if cfg.Redis.URL != "" {
		redisClient, err := storage.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
		runner.SetLocker(storage.NewRedisLocker(redisClient, cfg.Redis.LockTTL))
		log.Println("Per-search locks: redis")
	}

	executor := services.NewExecutor(pgStore, runner)
	executor.SetConcurrency(cfg.Scheduler.Concurrency)
	executor.SetLocation(loc)
	executor.SetLogger(batchLog.Func())
	executor.SetCallTimeout(cfg.Scheduler.CallTimeout)

	batchWorker := workers.NewBatchWorker(executor, opsStore)

	log.Println("Services initialized")

	// Handle one-shot commands
	if *runDue {
		summary, err := batchWorker.RunBatch(ctx, models.TriggerCLI)
		if err != nil {
			log.Fatalf("Batch failed: %v", err)
		}
		log.Printf("Batch complete: %d executed, %d matches, %d errors", summary.Executed, summary.Matches, summary.Errors)
		return
	}
	if *runSearch != "" {
		res := executor.ExecuteSearchByID(ctx, *runSearch)
		if !res.Success {
			log.Fatalf("Search failed: %s", res.Error)
		}
		log.Printf("Search complete: %d new listings", res.Matches)
		return
	}

	// Daemon mode
	expiryWorker := workers.NewExpiryWorker(services.NewExpiryService(pgStore, notifier))
	expiryWorker.SetLogger(batchLog.Func())

	deps := api.Deps{
		Batch:       batchWorker,
		Executor:    executor,
		Expiry:      expiryWorker,
		Searches:    services.NewSavedSearchService(pgStore),
		Preferences: services.NewPreferenceService(pgStore),
		Ops:         opsStore,
		History:     pgStore,
		Listings:    listings,
		CronSecret:  cfg.HTTP.CronSecret,
	}

	sched := scheduler.New(cfg.Scheduler, loc, opsStore, batchWorker, executor)
	if refreshSvc != nil {
		refreshWorker := workers.NewRefreshWorker(refreshSvc)
		refreshWorker.SetLogger(batchLog.Func())
		go refreshWorker.Start(ctx)
		deps.Refresh = refreshWorker
		sched.SetWorkers(expiryWorker, refreshWorker)
		log.Println("Listing refresh worker started")
	} else {
		sched.SetWorkers(expiryWorker, nil)
	}

	go batchWorker.Start(ctx)
	go expiryWorker.Start(ctx)

	if err := sched.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	server, err := api.NewServer(cfg.HTTP.Port, deps)
	if err != nil {
		log.Fatalf("Failed to create HTTP server: %v", err)
	}
	go func() {
		if err := server.Start(); err != nil {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	log.Println("Daemon running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown: %v", err)
	}
	sched.Stop()
	cancel()
	log.Println("Goodbye!")
}

func enqueue(store *storage.SQLiteStore, cmd models.CommandType, searchID string) {
	var params *models.CommandParams
	switch cmd {
	case models.CmdRunSearch:
		if searchID == "" {
			log.Fatalf("-command run_search requires -search-id")
		}
		params = &models.CommandParams{SearchID: searchID}
	case models.CmdRunDue, models.CmdCheckExpiry, models.CmdRefreshListings, models.CmdPause, models.CmdResume:
	default:
		log.Fatalf("Unknown command %q", cmd)
	}

	id, err := store.EnqueueCommand(cmd, params)
	if err != nil {
		log.Fatalf("Failed to queue command: %v", err)
	}
	fmt.Printf("Queued %s (#%d)\n", cmd, id)
}

// maskConnectionString hides the password in a connection URL for logging
func maskConnectionString(connStr string) string {
	u, err := url.Parse(connStr)
	if err != nil {
		return connStr
	}
	return u.Redacted()
}
