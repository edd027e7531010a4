package classifier

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"PatternSentinel/internal/model"
)

// Classifier holds the active model and is safe for concurrent use.
type Classifier struct {
	mu       sync.RWMutex
	model    *Model
	filePath string
	log      zerolog.Logger
}

// New creates a Classifier backed by the model file at filePath. It starts without a model.
func New(filePath string, log zerolog.Logger) *Classifier {
	return &Classifier{filePath: filePath, log: log.With().Str("component", "classifier").Logger()}
}

// Load (re)reads the model file. A missing file leaves the classifier disabled and
// returns ErrModelNotFound.
func (c *Classifier) Load() error {
	m, err := Load(c.filePath)
	if err != nil {
		if errors.Is(err, ErrModelNotFound) {
			c.log.Warn().Str("path", c.filePath).Msg("no model found, skipping ML classification")
		}
		return err
	}
	c.mu.Lock()
	c.model = m
	c.mu.Unlock()
	c.log.Info().Str("path", c.filePath).Int("samples", m.Samples).Float64("accuracy", m.Accuracy).Msg("model loaded")
	return nil
}

// Ready reports whether a model is loaded.
func (c *Classifier) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.model != nil
}

// Classify scores rec, or returns nil when no model is loaded.
func (c *Classifier) Classify(rec model.PatternRecord) *model.Classification {
	c.mu.RLock()
	m := c.model
	c.mu.RUnlock()
	if m == nil {
		return nil
	}
	out := m.Predict(rec)
	return &out
}

// Retrain fits a new model on records, persists it and makes it active.
func (c *Classifier) Retrain(records []model.PatternRecord, opts TrainOptions) (Report, error) {
	m, rep, err := Train(records, opts)
	if err != nil {
		return rep, err
	}
	if err := Save(c.filePath, m); err != nil {
		return rep, err
	}
	c.mu.Lock()
	c.model = m
	c.mu.Unlock()
	c.log.Info().Int("samples", rep.Samples).Float64("accuracy", rep.Accuracy).Str("method", rep.Method).Msg("model retrained")
	return rep, nil
}
