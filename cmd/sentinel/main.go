package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"PatternSentinel/internal/chart"
	"PatternSentinel/internal/classifier"
	"PatternSentinel/internal/collector"
	"PatternSentinel/internal/config"
	"PatternSentinel/internal/logger"
	"PatternSentinel/internal/model"
	"PatternSentinel/internal/notifier"
	"PatternSentinel/internal/pipeline"
	"PatternSentinel/internal/recorder"
	"PatternSentinel/internal/scanner"
	"PatternSentinel/internal/scheduler"
	"PatternSentinel/internal/server"
	"PatternSentinel/internal/strategy"
)

func main() {
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	flag.StringVar(&cfgPath, "config", cfgPath, "path to the YAML config")
	daemon := flag.Bool("daemon", os.Getenv("RUN_MODE") == "daemon", "keep running: cron rescans, Telegram commands and HTTP API")
	generate := flag.String("generate", "", "write a synthetic CSV dataset to this path and exit")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})
	logger.SetGlobalLogger(log)

	if err := run(cfg, *daemon, *generate, log); err != nil {
		log.Error().Err(err).Msg("PatternSentinel exited")
		os.Exit(1)
	}
}

func run(cfg *config.Config, daemon bool, generate string, log zerolog.Logger) error {
	if generate != "" {
		backup, err := collector.BackupFile(generate)
		if err != nil {
			return err
		}
		if backup != "" {
			log.Info().Str("backup", backup).Msg("existing dataset backed up")
		}
		if err := generateDataset(generate, cfg); err != nil {
			return fmt.Errorf("generate dataset: %w", err)
		}
		log.Info().Str("path", generate).Msg("synthetic dataset written")
		return nil
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	log.Info().Str("source", cfg.DataSource.Kind).Bool("daemon", daemon).Msg("PatternSentinel starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := buildRecorder(cfg, log)
	defer func() {
		if err := rec.Close(); err != nil {
			log.Warn().Err(err).Msg("close recorders")
		}
	}()

	clf := classifier.New(cfg.Classifier.ModelPath, log)
	if err := clf.Load(); err != nil && !errors.Is(err, classifier.ErrModelNotFound) {
		log.Warn().Err(err).Msg("load classifier model")
	}
	log.Info().Bool("ready", clf.Ready()).Msg("classifier initialised")

	pipe := buildPipeline(cfg, rec, clf, log)

	if !daemon {
		result, err := pipe.Run(ctx)
		if err != nil {
			return fmt.Errorf("scan failed: %w", err)
		}
		if err := notifier.PrintRun(os.Stdout, result); err != nil {
			log.Warn().Err(err).Msg("print summary")
		}
		return nil
	}

	return runDaemon(ctx, cancel, cfg, pipe, rec, clf, log)
}

func buildFetcher(cfg *config.Config) collector.Fetcher {
	switch cfg.DataSource.Kind {
	case config.SourceYahoo:
		return collector.NewYahooFetcher(cfg.DataSource.Interval, cfg.Proxy)
	case config.SourceREST:
		return collector.NewRESTFetcher(cfg.DataSource.BaseURL, cfg.DataSource.APIKey, cfg.DataSource.Interval, cfg.Proxy)
	case config.SourceSynthetic:
		return collector.NewSyntheticFetcher(cfg.DataSource.Seed)
	default:
		return collector.NewCSVFetcher(cfg.DataSource.Path)
	}
}

// buildRecorder fans runs out to the CSV report and whichever databases are configured.
// A database that cannot be opened is logged and skipped.
func buildRecorder(cfg *config.Config, log zerolog.Logger) *recorder.MultiRecorder {
	var recs []recorder.Recorder
	if cfg.Output.ReportFile != "" {
		recs = append(recs, recorder.NewCSVRecorder(cfg.Output.ReportFile))
	}
	if cfg.Database.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, log)
		if err != nil {
			log.Warn().Err(err).Msg("init sqlite recorder failed, skipping")
		} else {
			recs = append(recs, sr)
		}
	}
	if cfg.Database.PostgresDSN != "" {
		pr, err := recorder.NewPostgresRecorder(cfg.Database.PostgresDSN, log)
		if err != nil {
			log.Warn().Err(err).Msg("init postgres recorder failed, skipping")
		} else {
			recs = append(recs, pr)
		}
	}
	return recorder.NewMultiRecorder(recs...)
}

// buildPipeline wires the classifier in unconditionally; it scores nothing until a model is loaded or trained.
func buildPipeline(cfg *config.Config, rec recorder.Recorder, clf *classifier.Classifier, log zerolog.Logger) *pipeline.Pipeline {
	fetcher := buildFetcher(cfg)
	col := collector.NewCollector(fetcher, cfg.Symbols, cfg.DataSource.Limit, log)

	validator := strategy.NewValidator(cfg.Rules, log)
	sc := scanner.NewScanner(cfg.Scan.Geometry, validator, log)

	pipe := pipeline.New(col, sc, pipeline.Options{
		SourceName:  fetcher.Name(),
		MaxPatterns: cfg.Scan.MaxPatterns,
		PatternsDir: cfg.Output.PatternsDir,
		Clean:       cfg.Output.Clean,
	}, log)
	pipe.Recorder = rec

	pipe.Scorer = clf

	if cfg.Output.Charts {
		pipe.Renderer = chart.NewRenderer(cfg.Output.PatternsDir, log)
	}
	return pipe
}

func runDaemon(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, pipe *pipeline.Pipeline, hist *recorder.MultiRecorder, clf *classifier.Classifier, log zerolog.Logger) error {
	var tn *notifier.TelegramNotifier
	if err := cfg.ValidateNotifier(); err == nil {
		tn = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy, log)
	} else {
		log.Info().Err(err).Msg("Telegram disabled")
	}

	var n notifier.Notifier
	if tn != nil {
		n = tn
	}
	sched := scheduler.NewScheduler(ctx, pipe, n, hist, log)
	sched.Trainer = clf
	if err := sched.Register(cfg.Schedule.ScanCron); err != nil {
		return fmt.Errorf("register cron tasks: %w", err)
	}
	sched.Start()
	defer sched.Stop()

	if tn != nil {
		go tn.StartPolling(ctx, sched.HandleCommand)
		log.Info().Msg("Telegram polling started")
	}

	srv := server.New(server.Config{
		Addr:      cfg.Server.Addr,
		Log:       log,
		Runner:    pipe,
		History:   hist,
		Patterns:  hist,
		ChartsDir: cfg.Output.PatternsDir,
	})
	go func() {
		if err := srv.Start(); err != nil {
			log.Error().Err(err).Msg("HTTP server stopped")
			cancel()
		}
	}()

	if strings.EqualFold(os.Getenv("RUN_ON_START"), "true") {
		log.Info().Msg("RUN_ON_START enabled, executing scan now")
		go sched.RunNow()
	}

	log.Info().Msg("PatternSentinel is running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		log.Info().Msg("shutdown signal received, stopping...")
	case <-ctx.Done():
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP shutdown")
	}
	cancel()
	log.Info().Msg("PatternSentinel stopped")
	return nil
}

// generateDataset writes the configured symbols' synthetic series as one CSV file.
func generateDataset(path string, cfg *config.Config) error {
	gen := collector.NewSyntheticFetcher(cfg.DataSource.Seed)
	symbols := cfg.Symbols
	if len(symbols) == 0 {
		symbols, _ = gen.Symbols()
	}
	var bars []model.OHLCV
	for _, sym := range symbols {
		bars = append(bars, gen.Generate(sym)...)
	}
	return writeCSVFile(path, bars)
}

func writeCSVFile(path string, bars []model.OHLCV) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := collector.WriteCSV(f, bars); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
