package calculator

import "errors"

// RollingMean returns the trailing mean of values at every index. The first period-1
// entries average however many values exist so far instead of being undefined.
func RollingMean(values []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, errors.New("period must be positive")
	}
	out := make([]float64, len(values))
	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		out[i] = sum / float64(min(i+1, period))
	}
	return out, nil
}
