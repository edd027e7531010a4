package classifier

import (
	"errors"
	"fmt"
	"time"

	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"

	"PatternSentinel/internal/model"
)

// MinSamplesPerClass is the fewest valid and invalid examples Train accepts.
const MinSamplesPerClass = 5

// ErrInsufficientData is returned when either class has fewer than MinSamplesPerClass records.
var ErrInsufficientData = errors.New("not enough labelled samples")

// TrainOptions tunes Train. Zero values select the defaults.
type TrainOptions struct {
	Lambda float64 // L2 penalty, default 0.01
}

// Report summarises a training run on the training set.
type Report struct {
	Samples   int     `json:"samples"`
	Positives int     `json:"positives"`
	Negatives int     `json:"negatives"`
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	Method    string  `json:"method"`
	Status    string  `json:"status"`
}

// Train fits a model that predicts the rule-based Valid flag from the record features.
// Classes are weighted inversely to their frequency so an imbalanced report does not
// collapse to the majority class.
func Train(records []model.PatternRecord, opts TrainOptions) (*Model, Report, error) {
	var rep Report
	if opts.Lambda <= 0 {
		opts.Lambda = 0.01
	}

	n := len(records)
	y := make([]float64, n)
	for i, r := range records {
		if r.Valid {
			y[i] = 1
			rep.Positives++
		}
	}
	rep.Samples = n
	rep.Negatives = n - rep.Positives
	if rep.Positives < MinSamplesPerClass || rep.Negatives < MinSamplesPerClass {
		return nil, rep, fmt.Errorf("%w: %d valid, %d invalid, need %d of each",
			ErrInsufficientData, rep.Positives, rep.Negatives, MinSamplesPerClass)
	}

	d := len(FeatureNames)
	m := &Model{
		Features:  append([]string(nil), FeatureNames...),
		Mean:      make([]float64, d),
		Std:       make([]float64, d),
		Lambda:    opts.Lambda,
		Samples:   n,
		Positives: rep.Positives,
	}

	raw := make([][]float64, n)
	for i, r := range records {
		raw[i] = r.Features()
	}
	col := make([]float64, n)
	for j := 0; j < d; j++ {
		for i := range raw {
			col[i] = raw[i][j]
		}
		m.Mean[j], m.Std[j] = stat.MeanStdDev(col, nil)
		if m.Std[j] == 0 {
			m.Std[j] = 1
		}
	}
	x := make([][]float64, n)
	for i := range raw {
		x[i] = make([]float64, d)
		for j := range x[i] {
			x[i][j] = (raw[i][j] - m.Mean[j]) / m.Std[j]
		}
	}

	wPos := float64(n) / (2 * float64(rep.Positives))
	wNeg := float64(n) / (2 * float64(rep.Negatives))
	weight := func(i int) float64 {
		if y[i] == 1 {
			return wPos
		}
		return wNeg
	}

	// params[0] is the bias, params[1:] the feature weights.
	loss := func(params []float64) float64 {
		var sum float64
		for i := range x {
			z := params[0]
			for j, v := range x[i] {
				z += params[j+1] * v
			}
			if y[i] == 1 {
				sum += weight(i) * softplus(-z)
			} else {
				sum += weight(i) * softplus(z)
			}
		}
		var reg float64
		for _, w := range params[1:] {
			reg += w * w
		}
		return sum/float64(n) + opts.Lambda/2*reg
	}
	grad := func(g, params []float64) {
		for k := range g {
			g[k] = 0
		}
		for i := range x {
			z := params[0]
			for j, v := range x[i] {
				z += params[j+1] * v
			}
			r := weight(i) * (sigmoid(z) - y[i]) / float64(n)
			g[0] += r
			for j, v := range x[i] {
				g[j+1] += r * v
			}
		}
		for j := 1; j < len(params); j++ {
			g[j] += opts.Lambda * params[j]
		}
	}

	problem := optimize.Problem{Func: loss, Grad: grad}
	initial := make([]float64, d+1)

	rep.Method = "BFGS"
	result, err := optimize.Minimize(problem, initial, &optimize.Settings{}, &optimize.BFGS{})
	if err != nil || !converged(result.Status) {
		rep.Method = "NelderMead"
		result, err = optimize.Minimize(problem, initial, &optimize.Settings{}, &optimize.NelderMead{})
	}
	if err != nil {
		return nil, rep, fmt.Errorf("optimize: %w", err)
	}
	if !converged(result.Status) {
		return nil, rep, fmt.Errorf("optimization did not converge: status=%v", result.Status)
	}
	rep.Status = result.Status.String()

	m.Bias = result.X[0]
	m.Weights = append([]float64(nil), result.X[1:]...)
	m.TrainedAt = time.Now().UTC()

	var tp, fp, fn, correct int
	for _, r := range records {
		pred := m.Predict(r).Valid
		switch {
		case pred && r.Valid:
			tp++
		case pred && !r.Valid:
			fp++
		case !pred && r.Valid:
			fn++
		}
		if pred == r.Valid {
			correct++
		}
	}
	rep.Accuracy = float64(correct) / float64(n)
	if tp+fp > 0 {
		rep.Precision = float64(tp) / float64(tp+fp)
	}
	rep.Recall = float64(tp) / float64(tp+fn)
	m.Accuracy = rep.Accuracy
	return m, rep, nil
}

func converged(s optimize.Status) bool {
	switch s {
	case optimize.Success, optimize.GradientThreshold, optimize.FunctionConvergence, optimize.MethodConverge:
		return true
	}
	return false
}
