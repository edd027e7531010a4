package strategy

import "PatternSentinel/internal/calculator"

// Thresholds holds every tunable limit of the cup-and-handle rule chain.
type Thresholds struct {
	CupDepthRangeMultiple  float64 `yaml:"cup_depth_range_multiple"`
	MinCupBars             int     `yaml:"min_cup_bars"`
	MaxCupBars             int     `yaml:"max_cup_bars"`
	MinHandleBars          int     `yaml:"min_handle_bars"`
	MaxHandleBars          int     `yaml:"max_handle_bars"`
	MaxRimDifference       float64 `yaml:"max_rim_difference"`
	MaxHandleRetrace       float64 `yaml:"max_handle_retrace"`
	MinR2                  float64 `yaml:"min_r2"`
	ATRPeriod              int     `yaml:"atr_period"`
	BreakoutATRMultiple    float64 `yaml:"breakout_atr_multiple"`
	BreakoutVolumeMultiple float64 `yaml:"breakout_volume_multiple"`
}

// DefaultThresholds returns the reference limits.
func DefaultThresholds() Thresholds {
	return Thresholds{
		CupDepthRangeMultiple:  2.0,
		MinCupBars:             30,
		MaxCupBars:             300,
		MinHandleBars:          5,
		MaxHandleBars:          50,
		MaxRimDifference:       0.10,
		MaxHandleRetrace:       0.4,
		MinR2:                  0.85,
		ATRPeriod:              calculator.DefaultATRPeriod,
		BreakoutATRMultiple:    1.5,
		BreakoutVolumeMultiple: 1.5,
	}
}

// WithDefaults fills zero-valued fields from DefaultThresholds.
func (t Thresholds) WithDefaults() Thresholds {
	d := DefaultThresholds()
	if t.CupDepthRangeMultiple == 0 {
		t.CupDepthRangeMultiple = d.CupDepthRangeMultiple
	}
	if t.MinCupBars == 0 {
		t.MinCupBars = d.MinCupBars
	}
	if t.MaxCupBars == 0 {
		t.MaxCupBars = d.MaxCupBars
	}
	if t.MinHandleBars == 0 {
		t.MinHandleBars = d.MinHandleBars
	}
	if t.MaxHandleBars == 0 {
		t.MaxHandleBars = d.MaxHandleBars
	}
	if t.MaxRimDifference == 0 {
		t.MaxRimDifference = d.MaxRimDifference
	}
	if t.MaxHandleRetrace == 0 {
		t.MaxHandleRetrace = d.MaxHandleRetrace
	}
	if t.MinR2 == 0 {
		t.MinR2 = d.MinR2
	}
	if t.ATRPeriod == 0 {
		t.ATRPeriod = d.ATRPeriod
	}
	if t.BreakoutATRMultiple == 0 {
		t.BreakoutATRMultiple = d.BreakoutATRMultiple
	}
	if t.BreakoutVolumeMultiple == 0 {
		t.BreakoutVolumeMultiple = d.BreakoutVolumeMultiple
	}
	return t
}
