package decisionlog

import (
	"time"

	"github.com/ethanolivertroy/riskflow/internal/models"
)

// Snapshot summarises one scan's events. The scan start time is used as the
// timestamp when known.
func Snapshot(scanID, scanStart string, events []models.DecisionEvent, now time.Time) models.ScanSnapshot {
	s := models.ScanSnapshot{
		ScanID:    scanID,
		Timestamp: scanStart,
		HostCount: len(events),
	}
	if s.Timestamp == "" {
		s.Timestamp = now.UTC().Format(time.RFC3339)
	}

	var total int
	for _, e := range events {
		total += e.RiskScore
		switch e.RiskLevel {
		case models.RiskCritical:
			s.Critical++
		case models.RiskHigh:
			s.High++
		case models.RiskMedium:
			s.Medium++
		default:
			s.Low++
		}
	}
	if len(events) > 0 {
		s.AverageScore = float64(total) / float64(len(events))
	}
	return s
}
