package strategy

import (
	"fmt"

	"github.com/rs/zerolog"

	"PatternSentinel/internal/calculator"
	"PatternSentinel/internal/model"
)

// FailedNumeric is the Verdict.Failed marker for arithmetic failures.
const FailedNumeric = "numeric"

// Input is one candidate window handed to the validator.
type Input struct {
	Cup         []model.OHLCV
	Handle      []model.OHLCV
	Breakout    model.OHLCV
	BreakoutIdx int
	ATR         *calculator.ATRSeries
}

// Metrics are the descriptors computed while the chain ran. A nil field was never reached.
type Metrics struct {
	CupDepth    *float64
	HandleDepth *float64
	R2          *float64
}

// Verdict is the outcome of validating one window. Failed names the rejecting rule, or
// FailedNumeric when an arithmetic failure was converted into a rejection.
type Verdict struct {
	Valid   bool
	Reason  string
	Failed  string
	Metrics Metrics
}

// Validator runs the ordered cup-and-handle rule chain.
type Validator struct {
	th  Thresholds
	log zerolog.Logger
}

// NewValidator creates a Validator; zero thresholds fall back to the defaults.
func NewValidator(th Thresholds, log zerolog.Logger) *Validator {
	return &Validator{
		th:  th.WithDefaults(),
		log: log.With().Str("component", "validator").Logger(),
	}
}

// Thresholds returns the limits in effect.
func (v *Validator) Thresholds() Thresholds { return v.th }

// Validate evaluates the rules in order and stops at the first failure. Numeric failures,
// including recovered panics, become invalid verdicts carrying the error text.
func (v *Validator) Validate(in Input) (verdict Verdict) {
	e := &evaluation{in: in, th: v.th}
	defer func() {
		if r := recover(); r != nil {
			verdict = v.numeric(fmt.Errorf("%v", r), e, in.BreakoutIdx)
		}
	}()

	if err := e.prepare(); err != nil {
		return v.numeric(err, e, in.BreakoutIdx)
	}
	for _, r := range chain {
		ok, err := r.check(e)
		if err != nil {
			return v.numeric(err, e, in.BreakoutIdx)
		}
		if !ok {
			return Verdict{Reason: r.reason, Failed: r.name, Metrics: e.metrics}
		}
	}
	return Verdict{Valid: true, Metrics: e.metrics}
}

func (v *Validator) numeric(err error, e *evaluation, breakout int) Verdict {
	v.log.Debug().Err(err).Int("breakout", breakout).Msg("numeric failure while validating window")
	return Verdict{Reason: err.Error(), Failed: FailedNumeric, Metrics: e.metrics}
}
