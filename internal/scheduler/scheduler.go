package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"PatternSentinel/internal/classifier"
	"PatternSentinel/internal/model"
	"PatternSentinel/internal/notifier"
	"PatternSentinel/internal/recorder"
)

// Runner executes scan runs and remembers the latest one.
type Runner interface {
	Run(ctx context.Context) (*model.ScanRun, error)
	Latest() *model.ScanRun
}

// Trainer refits the ML re-scorer from labelled records.
type Trainer interface {
	Retrain(records []model.PatternRecord, opts classifier.TrainOptions) (classifier.Report, error)
	Ready() bool
}

type retrySender interface {
	SendWithRetry(ctx context.Context, text string, maxRetries int) error
}

// Scheduler manages the periodic rescans and answers chat commands.
type Scheduler struct {
	Cron     *cron.Cron
	Runner   Runner
	Notifier notifier.Notifier // optional
	History  recorder.History  // optional
	Trainer  Trainer           // optional
	Ctx      context.Context
	log      zerolog.Logger
}

// NewScheduler creates a new Scheduler. Overlapping ticks are skipped while a scan is running.
func NewScheduler(ctx context.Context, runner Runner, n notifier.Notifier, hist recorder.History, log zerolog.Logger) *Scheduler {
	log = log.With().Str("component", "scheduler").Logger()
	cl := cronLogger{log: log}
	return &Scheduler{
		Cron:     cron.New(cron.WithSeconds(), cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		Runner:   runner,
		Notifier: n,
		History:  hist,
		Ctx:      ctx,
		log:      log,
	}
}

// Register schedules the scan task.
func (s *Scheduler) Register(scanCron string) error {
	if _, err := s.Cron.AddFunc(scanCron, s.scanTask); err != nil {
		return fmt.Errorf("register scan task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.log.Info().Msg("scheduler started")
}

// Stop stops the cron scheduler and waits for a running scan to finish.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.log.Info().Msg("scheduler stopped")
}

// RunNow executes a scan immediately (manual trigger / RUN_ON_START) and reports it.
func (s *Scheduler) RunNow() (*model.ScanRun, error) {
	s.log.Info().Msg("running scan task")
	run, err := s.Runner.Run(s.Ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("scan failed")
		s.trySend(fmt.Sprintf("❌ Scan failed: %v", err))
		return nil, err
	}
	s.trySend(notifier.FormatScanReport(run))
	return run, nil
}

func (s *Scheduler) scanTask() {
	_, _ = s.RunNow()
}

// HandleCommand processes a user command and returns a reply.
func (s *Scheduler) HandleCommand(command string) string {
	switch strings.ToLower(strings.TrimSpace(command)) {
	case "/scan":
		s.scanTask()
		return ""
	case "/valid":
		return notifier.FormatValidPatterns(s.Runner.Latest(), 10)
	case "/summary":
		run := s.Runner.Latest()
		if run == nil {
			return "No scan has completed yet."
		}
		return notifier.FormatScanReport(run)
	case "/history":
		if s.History == nil {
			return "History is not recorded."
		}
		runs, err := s.History.RecentRuns(s.Ctx, 10)
		if errors.Is(err, recorder.ErrNotRecorded) {
			return "History is not recorded."
		}
		if err != nil {
			s.log.Error().Err(err).Msg("load history")
			return "Could not load history."
		}
		return notifier.FormatHistory(runs)
	case "/train":
		return s.retrain()
	case "/model":
		if s.Trainer == nil || !s.Trainer.Ready() {
			return "No classifier model loaded."
		}
		return "Classifier model loaded."
	default:
		return "Available commands:\n• /scan run a scan now\n• /valid list valid patterns\n• /summary latest scan summary\n• /history recent scans\n• /train retrain the classifier on the latest scan\n• /model classifier status"
	}
}

// retrain fits the classifier on the rule verdicts of the latest run.
func (s *Scheduler) retrain() string {
	if s.Trainer == nil {
		return "Classifier training is not configured."
	}
	run := s.Runner.Latest()
	if run == nil {
		return "No scan has completed yet."
	}
	var records []model.PatternRecord
	for _, res := range run.Results {
		for _, p := range res.Patterns {
			records = append(records, p.PatternRecord)
		}
	}
	rep, err := s.Trainer.Retrain(records, classifier.TrainOptions{})
	if errors.Is(err, classifier.ErrInsufficientData) {
		return fmt.Sprintf("Not enough labelled patterns to train: %d valid, %d invalid, need %d of each.",
			rep.Positives, rep.Negatives, classifier.MinSamplesPerClass)
	}
	if err != nil {
		s.log.Error().Err(err).Msg("retrain classifier")
		return "Classifier training failed."
	}
	return fmt.Sprintf("🧠 Classifier retrained on %d patterns (%d valid)\naccuracy %.1f%% | precision %.1f%% | recall %.1f%%",
		rep.Samples, rep.Positives, rep.Accuracy*100, rep.Precision*100, rep.Recall*100)
}

func (s *Scheduler) trySend(text string) {
	if s.Notifier == nil {
		return
	}
	var err error
	if r, ok := s.Notifier.(retrySender); ok {
		err = r.SendWithRetry(s.Ctx, text, 3)
	} else {
		err = s.Notifier.Send(text)
	}
	if err != nil {
		s.log.Error().Err(err).Msg("send notification")
	}
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg("cron " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg("cron " + msg)
}
