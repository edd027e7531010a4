package strategy

import (
	"errors"
	"math"

	"PatternSentinel/internal/calculator"
	"PatternSentinel/internal/model"
)

// Rejection reasons, one per rule.
const (
	ReasonCupTooShallow      = "Cup depth too shallow"
	ReasonCupDuration        = "Cup duration out of range"
	ReasonHandleDuration     = "Handle duration out of range"
	ReasonRimMismatch        = "Rim levels differ more than 10%"
	ReasonHandleAboveRim     = "Handle high above rim"
	ReasonHandleTooDeep      = "Handle retrace too deep"
	ReasonHandleBelowCup     = "Handle breaks below cup bottom"
	ReasonCupNotParabolic    = "Cup not parabolic enough (R² too low)"
	ReasonBreakoutWeakATR    = "Breakout not strong enough (ATR filter)"
	ReasonNoBreakout         = "No breakout above handle high"
	ReasonWeakBreakoutVolume = "Weak breakout volume"
)

// rule is one named step of the validation chain. check returns false to reject the
// window with reason, or an error for a numeric failure.
type rule struct {
	name   string
	reason string
	check  func(e *evaluation) (bool, error)
}

// chain is evaluated in order; the first failing rule decides the verdict.
var chain = []rule{
	{"cup_depth", ReasonCupTooShallow, checkCupDepth},
	{"cup_duration", ReasonCupDuration, checkCupDuration},
	{"handle_duration", ReasonHandleDuration, checkHandleDuration},
	{"rim_symmetry", ReasonRimMismatch, checkRimSymmetry},
	{"handle_high", ReasonHandleAboveRim, checkHandleHigh},
	{"handle_retrace", ReasonHandleTooDeep, checkHandleRetrace},
	{"handle_floor", ReasonHandleBelowCup, checkHandleFloor},
	{"cup_parabola", ReasonCupNotParabolic, checkCupParabola},
	{"breakout_atr", ReasonBreakoutWeakATR, checkBreakoutATR},
	{"breakout_high", ReasonNoBreakout, checkBreakoutHigh},
	{"breakout_volume", ReasonWeakBreakoutVolume, checkBreakoutVolume},
}

// RuleNames lists the chain's rules in evaluation order.
func RuleNames() []string {
	names := make([]string, len(chain))
	for i, r := range chain {
		names[i] = r.name
	}
	return names
}

// evaluation carries the per-window aggregates shared between rules.
type evaluation struct {
	in Input
	th Thresholds

	cupHigh, cupLow       float64
	leftRim, rightRim     float64
	handleHigh, handleLow float64
	cupDepth              float64

	metrics Metrics
}

var errEmptySlice = errors.New("empty cup or handle slice")

func (e *evaluation) prepare() error {
	if len(e.in.Cup) == 0 || len(e.in.Handle) == 0 {
		return &calculator.NumericFailure{Op: "window", Err: errEmptySlice}
	}
	var err error
	if e.cupHigh, e.cupLow, err = calculator.HighLow(e.in.Cup); err != nil {
		return err
	}
	if e.handleHigh, e.handleLow, err = calculator.HighLow(e.in.Handle); err != nil {
		return err
	}
	e.leftRim = e.in.Cup[0].High
	e.rightRim = e.in.Cup[len(e.in.Cup)-1].High
	return nil
}

func (e *evaluation) rim() float64 {
	return math.Max(e.leftRim, e.rightRim)
}

func checkCupDepth(e *evaluation) (bool, error) {
	avgRange, err := calculator.MeanBarRange(e.in.Cup)
	if err != nil {
		return false, err
	}
	e.cupDepth = e.cupHigh - e.cupLow
	e.metrics.CupDepth = ptr(e.cupDepth)
	return e.cupDepth >= e.th.CupDepthRangeMultiple*avgRange, nil
}

func checkCupDuration(e *evaluation) (bool, error) {
	n := len(e.in.Cup)
	return n >= e.th.MinCupBars && n <= e.th.MaxCupBars, nil
}

func checkHandleDuration(e *evaluation) (bool, error) {
	n := len(e.in.Handle)
	return n >= e.th.MinHandleBars && n <= e.th.MaxHandleBars, nil
}

func checkRimSymmetry(e *evaluation) (bool, error) {
	avg := (e.leftRim + e.rightRim) / 2
	if avg == 0 {
		return false, &calculator.NumericFailure{Op: "rim symmetry", Err: errors.New("float division by zero")}
	}
	return math.Abs(e.leftRim-e.rightRim)/avg <= e.th.MaxRimDifference, nil
}

func checkHandleHigh(e *evaluation) (bool, error) {
	return e.handleHigh <= e.rim(), nil
}

func checkHandleRetrace(e *evaluation) (bool, error) {
	depth := e.rim() - e.handleLow
	e.metrics.HandleDepth = ptr(depth)
	return depth <= e.th.MaxHandleRetrace*e.cupDepth, nil
}

func checkHandleFloor(e *evaluation) (bool, error) {
	return e.handleLow >= e.cupLow, nil
}

func checkCupParabola(e *evaluation) (bool, error) {
	fit, err := calculator.FitParabola(model.Closes(e.in.Cup))
	if err != nil {
		return false, err
	}
	e.metrics.R2 = ptr(fit.R2)
	return fit.R2 >= e.th.MinR2, nil
}

// checkBreakoutATR needs a full ATR period of bars before the breakout; the partial
// windows of the series are too unstable to gate a breakout on.
func checkBreakoutATR(e *evaluation) (bool, error) {
	if e.in.BreakoutIdx < e.th.ATRPeriod {
		return false, nil
	}
	atr, ok := e.in.ATR.At(e.in.BreakoutIdx)
	if !ok {
		return false, nil
	}
	return e.in.Breakout.Close >= e.handleHigh+e.th.BreakoutATRMultiple*atr, nil
}

func checkBreakoutHigh(e *evaluation) (bool, error) {
	return e.in.Breakout.Close > e.handleHigh, nil
}

// checkBreakoutVolume passes when the feed carries no volume at all.
func checkBreakoutVolume(e *evaluation) (bool, error) {
	if !hasVolume(e.in.Handle, e.in.Breakout) {
		return true, nil
	}
	avg, err := calculator.MeanVolume(e.in.Handle)
	if err != nil {
		return false, err
	}
	return e.in.Breakout.Volume >= e.th.BreakoutVolumeMultiple*avg, nil
}

func hasVolume(handle []model.OHLCV, breakout model.OHLCV) bool {
	if breakout.Volume > 0 {
		return true
	}
	for _, b := range handle {
		if b.Volume > 0 {
			return true
		}
	}
	return false
}

func ptr(v float64) *float64 { return &v }
