// Package classifier re-scores pattern records with a logistic regression trained on
// previously labelled reports.
package classifier

import (
	"math"
	"time"

	"gonum.org/v1/gonum/floats"

	"PatternSentinel/internal/model"
)

// FeatureNames is the order of Model inputs; it matches model.PatternRecord.Features.
var FeatureNames = []string{"cup_depth", "cup_duration", "handle_depth", "handle_duration", "r2"}

// Model is a standardised logistic regression over the pattern features.
type Model struct {
	Features  []string  `json:"features"`
	Mean      []float64 `json:"mean"`
	Std       []float64 `json:"std"`
	Weights   []float64 `json:"weights"`
	Bias      float64   `json:"bias"`
	Lambda    float64   `json:"lambda"`
	Samples   int       `json:"samples"`
	Positives int       `json:"positives"`
	Accuracy  float64   `json:"accuracy"`
	TrainedAt time.Time `json:"trained_at"`
}

// Probability returns P(valid) for a raw feature vector.
func (m *Model) Probability(features []float64) float64 {
	z := make([]float64, len(m.Weights))
	for i := range z {
		z[i] = (features[i] - m.Mean[i]) / m.Std[i]
	}
	return sigmoid(m.Bias + floats.Dot(m.Weights, z))
}

// Predict classifies rec. Confidence is the probability of the predicted class.
func (m *Model) Predict(rec model.PatternRecord) model.Classification {
	p := m.Probability(rec.Features())
	if p >= 0.5 {
		return model.Classification{Valid: true, Confidence: p}
	}
	return model.Classification{Valid: false, Confidence: 1 - p}
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

// softplus is log(1 + e^x) without overflow.
func softplus(x float64) float64 {
	return math.Max(x, 0) + math.Log1p(math.Exp(-math.Abs(x)))
}
