// Package scoring assigns a risk score and reasons to a host's features.
//
// Two strategies exist: a fixed heuristic that is always available and a linear
// classifier loaded from a model artifact. Select resolves which one a run uses.
package scoring

import (
	"fmt"
	"math"

	"github.com/ethanolivertroy/riskflow/internal/models"
	"go.uber.org/zap"
)

// Strategy scores one host. Scores are always within [0,100].
type Strategy interface {
	Name() string
	Score(f models.HostFeatures) (int, []string)
}

// Heuristic weights
const (
	heuristicBase      = 15
	perOpenPort        = 2
	perRiskyService    = 8
	perCVE             = 8
	anonymousFTPWeight = 15
	adminPanelWeight   = 10
)

// Heuristic is the dependency-free scoring strategy
type Heuristic struct{}

// Name implements Strategy
func (Heuristic) Name() string { return "heuristic" }

// Score implements Strategy
func (Heuristic) Score(f models.HostFeatures) (int, []string) {
	score := heuristicBase
	var reasons []string

	score += f.OpenPorts * perOpenPort
	if f.OpenPorts > 0 {
		reasons = append(reasons, fmt.Sprintf("%d open ports", f.OpenPorts))
	}

	score += f.RiskyServices * perRiskyService
	if f.RiskyServices > 0 {
		reasons = append(reasons, fmt.Sprintf("%d risky services (FTP/SMB/etc.)", f.RiskyServices))
	}

	score += f.CVECount() * perCVE
	if f.CVECount() > 0 {
		reasons = append(reasons, fmt.Sprintf("%d CVEs detected", f.CVECount()))
	}

	if f.MaxCVSS > 0 {
		score += int(math.Round(f.MaxCVSS))
		reasons = append(reasons, fmt.Sprintf("max CVSS %.1f", f.MaxCVSS))
	}

	if f.AnonymousFTP {
		score += anonymousFTPWeight
		reasons = append(reasons, "anonymous FTP allowed")
	}

	if f.AdminExposure {
		score += adminPanelWeight
		reasons = append(reasons, "HTTP admin panels reachable")
	}

	return models.ClampScore(score), reasons
}

// Select loads the model at modelPath, falling back to the heuristic when it is unavailable
func Select(modelPath string, logger *zap.Logger) Strategy {
	if logger == nil {
		logger = zap.NewNop()
	}

	model, err := LoadModel(modelPath)
	if err != nil {
		logger.Warn("Model unavailable, using built-in heuristic",
			zap.String("path", modelPath),
			zap.Error(err))
		return Heuristic{}
	}

	logger.Debug("Model loaded",
		zap.String("path", modelPath),
		zap.String("version", model.Version()),
		zap.Strings("classes", model.Classes()))
	return model
}
