package reporter

import (
	"fmt"
	"strings"

	"github.com/ethanolivertroy/riskflow/internal/models"
)

// TerminalReporter outputs decisions in a human-readable terminal format
type TerminalReporter struct{}

var levelIcons = map[models.RiskLevel]string{
	models.RiskCritical: "🔴",
	models.RiskHigh:     "🟠",
	models.RiskMedium:   "🟡",
	models.RiskLow:      "🟢",
}

// Report generates terminal output for the given decisions
func (r *TerminalReporter) Report(events []models.DecisionEvent) ([]byte, error) {
	if len(events) == 0 {
		return []byte("No hosts found in scan.\n"), nil
	}

	var sb strings.Builder

	// Summary
	counts := levelCounts(events)
	sb.WriteString(fmt.Sprintf("\nRISK DECISIONS: %s\n", events[0].ScanID))
	sb.WriteString(strings.Repeat("=", 60) + "\n\n")
	sb.WriteString(fmt.Sprintf("Scored %d hosts: %d critical, %d high, %d medium, %d low\n",
		len(events), counts[models.RiskCritical], counts[models.RiskHigh], counts[models.RiskMedium], counts[models.RiskLow]))
	if n := counts[models.RiskCritical]; n > 0 {
		sb.WriteString(fmt.Sprintf("🚨 %d hosts will be blocked by the responder\n", n))
	}
	sb.WriteString("\n")

	// Details
	for _, e := range events {
		sb.WriteString(fmt.Sprintf("%s %s", levelIcons[e.RiskLevel], e.Host))
		if e.Hostname != "" && e.Hostname != e.Host {
			sb.WriteString(fmt.Sprintf(" (%s)", e.Hostname))
		}
		sb.WriteString(fmt.Sprintf("\n   Risk: %s, score %d", strings.ToUpper(string(e.RiskLevel)), e.RiskScore))
		if e.OS != "" {
			sb.WriteString(fmt.Sprintf(" | OS: %s", e.OS))
		}
		sb.WriteString("\n")

		for _, finding := range e.TopFindings {
			sb.WriteString(fmt.Sprintf("   - %s\n", finding))
		}

		if len(e.CVEs) > 0 {
			sb.WriteString(fmt.Sprintf("   CVEs: %s (max CVSS %.1f)\n", strings.Join(e.CVEs, ", "), e.CVSS.Max))
		}

		if ti := e.ThreatIntel; ti != nil {
			sb.WriteString(fmt.Sprintf("   Threat intel: +%d\n", ti.ScoreAdjustment))
			for _, m := range ti.CVEMatches {
				line := fmt.Sprintf("      %s %s (%s, CVSS %.1f)", m.CVE, m.ThreatName, m.Source, m.CVSS)
				if m.Exploit {
					line += " ⚠️  exploit available"
				}
				sb.WriteString(line + "\n")
			}
			if rep := ti.HostReputation; rep != nil {
				sb.WriteString(fmt.Sprintf("      Host reputation: %s (+%d)\n", rep.Reputation, rep.Score))
			}
		}

		for _, a := range e.Attributions {
			sb.WriteString(fmt.Sprintf("   %+.4f %s\n", a.Weight, a.Feature))
		}
		sb.WriteString("\n" + strings.Repeat("-", 60) + "\n")
	}

	return []byte(sb.String()), nil
}
