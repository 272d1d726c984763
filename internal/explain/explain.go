// Package explain attributes a model decision to the features that drove it
package explain

import (
	"math"
	"sort"

	"github.com/ethanolivertroy/riskflow/internal/models"
	"github.com/ethanolivertroy/riskflow/internal/scoring"
)

// TopN is the number of attributions kept per decision
const TopN = 5

// Explainer ranks feature contributions for one feature vector.
// ok is false when no explanation can be produced.
type Explainer interface {
	Explain(vector []float64) (attrs []models.Attribution, ok bool)
}

// Unavailable never produces attributions
var Unavailable Explainer = unavailable{}

type unavailable struct{}

func (unavailable) Explain([]float64) ([]models.Attribution, bool) { return nil, false }

// Linear explains a linear model by weight*value contributions toward its most severe class
type Linear struct {
	weights []float64
}

// NewLinear builds an explainer for m
func NewLinear(m *scoring.Model) *Linear {
	return &Linear{weights: m.SevereWeights()}
}

// Explain implements Explainer
func (l *Linear) Explain(vector []float64) ([]models.Attribution, bool) {
	if len(vector) != len(l.weights) {
		return nil, false
	}

	attrs := make([]models.Attribution, 0, len(vector))
	for i, v := range vector {
		contribution := l.weights[i] * v
		if contribution == 0 {
			continue
		}
		attrs = append(attrs, models.Attribution{
			Feature: models.FeatureNames[i],
			Weight:  math.Round(contribution*1e4) / 1e4,
		})
	}
	if len(attrs) == 0 {
		return nil, false
	}

	sort.SliceStable(attrs, func(i, j int) bool {
		return math.Abs(attrs[i].Weight) > math.Abs(attrs[j].Weight)
	})
	if len(attrs) > TopN {
		attrs = attrs[:TopN]
	}
	return attrs, true
}

// For returns the explainer matching a scoring strategy
func For(strategy scoring.Strategy, disabled bool) Explainer {
	if disabled {
		return Unavailable
	}
	if m, ok := strategy.(*scoring.Model); ok {
		return NewLinear(m)
	}
	return Unavailable
}
