package reporter

import (
	"encoding/json"

	"github.com/ethanolivertroy/riskflow/internal/models"
)

// JSONReporter outputs decisions in JSON format
type JSONReporter struct{}

// jsonOutput represents the JSON output structure
type jsonOutput struct {
	Summary jsonSummary `json:"summary"`
	Hosts   []jsonHost  `json:"hosts"`
}

type jsonSummary struct {
	ScanID       string         `json:"scan_id"`
	TotalHosts   int            `json:"total_hosts"`
	TotalCVEs    int            `json:"total_cves"`
	Enriched     int            `json:"enriched"`
	AverageScore float64        `json:"average_score"`
	Levels       map[string]int `json:"levels"`
}

type jsonHost struct {
	Host        string   `json:"host"`
	Hostname    string   `json:"hostname,omitempty"`
	OS          string   `json:"os,omitempty"`
	RiskScore   int      `json:"risk_score"`
	RiskLevel   string   `json:"risk_level"`
	TopFindings []string `json:"top_findings"`
	CVEs        []string `json:"cves"`
	MaxCVSS     float64  `json:"max_cvss"`
	Adjustment  int      `json:"ti_adjustment,omitempty"`
	Exploitable []string `json:"exploitable_cves,omitempty"`
}

// Report generates JSON output for the given decisions
func (r *JSONReporter) Report(events []models.DecisionEvent) ([]byte, error) {
	output := jsonOutput{
		Summary: jsonSummary{
			TotalHosts: len(events),
			Levels:     make(map[string]int, len(models.RiskLevels)),
		},
		Hosts: make([]jsonHost, 0, len(events)),
	}

	counts := levelCounts(events)
	for _, l := range models.RiskLevels {
		output.Summary.Levels[string(l)] = counts[l]
	}

	var total int
	for _, e := range events {
		if output.Summary.ScanID == "" {
			output.Summary.ScanID = e.ScanID
		}
		total += e.RiskScore
		output.Summary.TotalCVEs += len(e.CVEs)

		jh := jsonHost{
			Host:        e.Host,
			Hostname:    e.Hostname,
			OS:          e.OS,
			RiskScore:   e.RiskScore,
			RiskLevel:   string(e.RiskLevel),
			TopFindings: e.TopFindings,
			CVEs:        e.CVEs,
			MaxCVSS:     e.CVSS.Max,
		}
		if e.ThreatIntel != nil {
			output.Summary.Enriched++
			jh.Adjustment = e.ThreatIntel.ScoreAdjustment
			for _, m := range e.ThreatIntel.CVEMatches {
				if m.Exploit {
					jh.Exploitable = append(jh.Exploitable, m.CVE)
				}
			}
		}
		output.Hosts = append(output.Hosts, jh)
	}
	if len(events) > 0 {
		output.Summary.AverageScore = float64(total) / float64(len(events))
	}

	return json.MarshalIndent(output, "", "  ")
}
