// Package reporter renders the decision events of an analysis run
package reporter

import "github.com/ethanolivertroy/riskflow/internal/models"

// Reporter is the interface for output formatters
type Reporter interface {
	// Report generates output for the given decision events
	Report(events []models.DecisionEvent) ([]byte, error)
}

// Get returns a reporter for the specified format
func Get(format string) Reporter {
	switch format {
	case "json":
		return &JSONReporter{}
	case "sarif":
		return &SARIFReporter{}
	default:
		return &TerminalReporter{}
	}
}

// levelCounts tallies events per risk level
func levelCounts(events []models.DecisionEvent) map[models.RiskLevel]int {
	counts := make(map[models.RiskLevel]int, len(models.RiskLevels))
	for _, e := range events {
		counts[e.RiskLevel]++
	}
	return counts
}
