package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"PatternSentinel/internal/classifier"
	"PatternSentinel/internal/config"
	"PatternSentinel/internal/logger"
	"PatternSentinel/internal/model"
	"PatternSentinel/internal/recorder"
)

func main() {
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	report := flag.String("report", cfg.Output.ReportFile, "scan report CSV used as training data")
	out := flag.String("out", cfg.Classifier.ModelPath, "where to write the trained model")
	lambda := flag.Float64("lambda", 0, "L2 penalty (0 selects the default)")
	flag.Parse()

	log := logger.New(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})
	if err := run(*report, *out, classifier.TrainOptions{Lambda: *lambda}, log); err != nil {
		log.Error().Err(err).Msg("training failed")
		os.Exit(1)
	}
}

func run(reportPath, modelPath string, opts classifier.TrainOptions, log zerolog.Logger) error {
	f, err := os.Open(reportPath)
	if err != nil {
		return fmt.Errorf("open report: %w", err)
	}
	patterns, err := recorder.ReadReport(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("read report %s: %w", reportPath, err)
	}

	records := make([]model.PatternRecord, len(patterns))
	for i, p := range patterns {
		records[i] = p.PatternRecord
	}
	log.Info().Int("records", len(records)).Str("report", reportPath).Msg("training classifier")

	clf := classifier.New(modelPath, log)
	rep, err := clf.Retrain(records, opts)
	if err != nil {
		return fmt.Errorf("train (%d valid, %d invalid): %w", rep.Positives, rep.Negatives, err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}
