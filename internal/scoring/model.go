package scoring

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/ethanolivertroy/riskflow/internal/models"
	"golang.org/x/mod/semver"
)

// ErrModelUnavailable marks every reason a model artifact cannot be used
var ErrModelUnavailable = errors.New("model unavailable")

// ArtifactFormat identifies model files produced by the training job
const ArtifactFormat = "riskflow-logreg"

// supportedMajor is the artifact major version this runtime understands
const supportedMajor = "v1"

// artifact is the on-disk model representation
type artifact struct {
	Format       string      `json:"format"`
	Version      string      `json:"version"`
	Classes      []string    `json:"classes"`
	FeatureNames []string    `json:"feature_names"`
	Weights      [][]float64 `json:"weights"`
	Intercepts   []float64   `json:"intercepts"`
}

// Model is a multinomial logistic regression over the host feature vector.
// The last class is the most severe one.
type Model struct {
	a artifact
}

// LoadModel reads and checks a model artifact. Every failure wraps ErrModelUnavailable.
func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "read model %s", path), ErrModelUnavailable)
	}

	var a artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "decode model %s", path), ErrModelUnavailable)
	}

	if err := a.check(); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "model %s", path), ErrModelUnavailable)
	}

	return &Model{a: a}, nil
}

func (a artifact) check() error {
	if a.Format != ArtifactFormat {
		return errors.Newf("unsupported format %q", a.Format)
	}
	if !semver.IsValid(a.Version) {
		return errors.Newf("invalid version %q", a.Version)
	}
	if major := semver.Major(a.Version); major != supportedMajor {
		return errors.WithHint(
			errors.Newf("artifact version %s is not compatible with %s", a.Version, supportedMajor),
			"retrain the model with a matching trainer release",
		)
	}

	n := len(models.FeatureNames)
	if len(a.FeatureNames) != n {
		return errors.Newf("expected %d features, artifact has %d", n, len(a.FeatureNames))
	}
	for i, name := range a.FeatureNames {
		if name != models.FeatureNames[i] {
			return errors.Newf("feature %d is %q, expected %q", i, name, models.FeatureNames[i])
		}
	}

	if len(a.Classes) < 2 {
		return errors.Newf("need at least 2 classes, got %d", len(a.Classes))
	}
	if len(a.Weights) != len(a.Classes) || len(a.Intercepts) != len(a.Classes) {
		return errors.Newf("weights/intercepts do not match %d classes", len(a.Classes))
	}
	for i, row := range a.Weights {
		if len(row) != n {
			return errors.Newf("weights row %d has %d values, expected %d", i, len(row), n)
		}
	}
	return nil
}

// Name implements Strategy
func (m *Model) Name() string { return "model" }

// Version returns the artifact version
func (m *Model) Version() string { return m.a.Version }

// Classes returns the class labels ordered least to most severe
func (m *Model) Classes() []string { return m.a.Classes }

// SevereWeights returns the coefficients of the most severe class
func (m *Model) SevereWeights() []float64 {
	return m.a.Weights[len(m.a.Weights)-1]
}

// Probabilities returns the softmax class probabilities for a feature vector
func (m *Model) Probabilities(x []float64) []float64 {
	logits := make([]float64, len(m.a.Classes))
	highest := math.Inf(-1)
	for c := range logits {
		z := m.a.Intercepts[c]
		for i, w := range m.a.Weights[c] {
			if i < len(x) {
				z += w * x[i]
			}
		}
		logits[c] = z
		if z > highest {
			highest = z
		}
	}

	var sum float64
	for c, z := range logits {
		logits[c] = math.Exp(z - highest)
		sum += logits[c]
	}
	for c := range logits {
		logits[c] /= sum
	}
	return logits
}

// Score implements Strategy
func (m *Model) Score(f models.HostFeatures) (int, []string) {
	x := f.Vector()
	probs := m.Probabilities(x)
	severe := probs[len(probs)-1]
	label := m.a.Classes[len(m.a.Classes)-1]

	reasons := []string{fmt.Sprintf("model: probability %.2f of %s state", severe, label)}
	for i, name := range models.FeatureNames {
		reasons = append(reasons, name+"="+strconv.FormatFloat(x[i], 'f', -1, 64))
	}

	return models.ClampScore(int(math.Round(severe * 100))), reasons
}
