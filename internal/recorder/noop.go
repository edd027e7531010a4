package recorder

import "PatternSentinel/internal/model"

// NoopRecorder is a no-op implementation used when no store is configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordRun(_ *model.ScanRun) error { return nil }
func (n *NoopRecorder) Close() error                     { return nil }
