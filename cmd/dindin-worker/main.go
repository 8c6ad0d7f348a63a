// Command dindin-worker mirrors stored entries into Google Sheets. It
// consumes change messages from AMQP and rewrites the whole mirror on a
// fixed interval to recover from lost messages.
package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"dindin/internal/amqp"
	"dindin/internal/cache"
	"dindin/internal/cli"
	applog "dindin/internal/log"
	"dindin/internal/sheets"
	gsheet "dindin/internal/sheets/google"
	sheetsmem "dindin/internal/sheets/memory"
	"dindin/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentWorker)
	logger.Info("Starting dindin-worker")

	cfg := cli.LoadAndValidateConfig(logger)

	ctx, done := cli.GracefulShutdown(logger, 10*time.Second, nil)

	res := cli.InitBackend(ctx, logger, cfg)
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Cleanup failed", applog.FieldError, err)
		}
	}()

	var mirror sheets.EntryMirror
	if cfg.MirrorEnabled() {
		client, err := gsheet.NewFromEnv(ctx)
		if err != nil {
			cli.Fatal(logger, "Failed to initialize Google Sheets client", err)
		}
		logger.Info("Google Sheets mirror enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID, "sheet", cfg.GoogleSheetName)
		mirror = client
	} else {
		logger.Warn("No GOOGLE_SPREADSHEET_ID provided, mirroring in memory only")
		mirror = sheetsmem.New()
	}

	syncWorker := worker.NewSyncWorker(res.Repository, mirror, cfg.SyncBatchSize)

	caches := cache.NewManager()
	caches.Register("cutoffs", res.Resolver.Cleaner())
	caches.Start(ctx, cfg.CutoffCacheTTL)
	defer caches.Stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Performing startup resync")
		if err := syncWorker.FullResync(gctx); err != nil {
			logger.Error("Startup resync failed", applog.FieldError, err)
		}
		return syncWorker.Run(gctx, cfg.SyncInterval)
	})

	if cfg.AMQPURL != "" {
		consumer, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			cli.Fatal(logger, "Failed to initialize AMQP consumer", err)
		}
		defer consumer.Close()

		g.Go(func() error {
			err := consumer.ConsumeEntriesChanged(gctx, syncWorker.HandleEntriesChanged)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	} else {
		logger.Info("AMQP disabled, relying on periodic resync", "interval", cfg.SyncInterval)
	}

	if err := g.Wait(); err != nil {
		logger.Error("Worker stopped", applog.FieldError, err)
		os.Exit(1)
	}
	<-done
	logger.Info("Worker stopped")
}
