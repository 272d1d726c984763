package reporter

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethanolivertroy/riskflow/internal/models"
)

// SARIFReporter outputs decisions in SARIF format for code scanning dashboards
type SARIFReporter struct{}

// SARIF structures
type sarifReport struct {
	Schema  string     `json:"$schema"`
	Version string     `json:"version"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool    sarifTool     `json:"tool"`
	Results []sarifResult `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name           string      `json:"name"`
	Version        string      `json:"version"`
	InformationURI string      `json:"informationUri"`
	Rules          []sarifRule `json:"rules"`
}

type sarifRule struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	ShortDescription sarifText       `json:"shortDescription"`
	Help             sarifText       `json:"help"`
	DefaultConfig    sarifRuleConfig `json:"defaultConfiguration"`
	Properties       sarifProperties `json:"properties"`
}

type sarifText struct {
	Text string `json:"text"`
}

type sarifRuleConfig struct {
	Level string `json:"level"`
}

type sarifProperties struct {
	Tags             []string `json:"tags"`
	SecuritySeverity string   `json:"security-severity,omitempty"`
}

type sarifResult struct {
	RuleID              string            `json:"ruleId"`
	RuleIndex           int               `json:"ruleIndex"`
	Level               string            `json:"level"`
	Message             sarifText         `json:"message"`
	Locations           []sarifLocation   `json:"locations"`
	PartialFingerprints map[string]string `json:"partialFingerprints"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysicalLocation `json:"physicalLocation"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifact `json:"artifactLocation"`
}

type sarifArtifact struct {
	URI string `json:"uri"`
}

// sarifLevels maps risk levels to SARIF result levels
var sarifLevels = map[models.RiskLevel]string{
	models.RiskCritical: "error",
	models.RiskHigh:     "error",
	models.RiskMedium:   "warning",
	models.RiskLow:      "note",
}

var securitySeverity = map[models.RiskLevel]string{
	models.RiskCritical: "9.5",
	models.RiskHigh:     "7.5",
	models.RiskMedium:   "5.0",
	models.RiskLow:      "2.0",
}

// SARIFLevel returns the SARIF level for a risk level
func SARIFLevel(level models.RiskLevel) string {
	if l, ok := sarifLevels[level]; ok {
		return l
	}
	return "note"
}

func ruleID(level models.RiskLevel) string {
	return "riskflow/" + string(level)
}

// Report generates SARIF output for the given decisions
func (r *SARIFReporter) Report(events []models.DecisionEvent) ([]byte, error) {
	rules, ruleIndexMap := r.buildRules(events)

	report := sarifReport{
		Schema:  "https://json.schemastore.org/sarif-2.1.0.json",
		Version: "2.1.0",
		Runs: []sarifRun{{
			Tool: sarifTool{
				Driver: sarifDriver{
					Name:           "riskflow",
					Version:        "1.0.0",
					InformationURI: "https://github.com/ethanolivertroy/riskflow",
					Rules:          rules,
				},
			},
			Results: r.buildResults(events, ruleIndexMap),
		}},
	}

	return json.MarshalIndent(report, "", "  ")
}

// buildRules emits one rule per risk level present, least severe first
func (r *SARIFReporter) buildRules(events []models.DecisionEvent) ([]sarifRule, map[models.RiskLevel]int) {
	counts := levelCounts(events)
	ruleIndexMap := make(map[models.RiskLevel]int)
	rules := []sarifRule{}

	for _, level := range models.RiskLevels {
		if counts[level] == 0 {
			continue
		}
		upper := strings.ToUpper(string(level))
		ruleIndexMap[level] = len(rules)
		rules = append(rules, sarifRule{
			ID:               ruleID(level),
			Name:             upper[:1] + string(level)[1:] + "RiskHost",
			ShortDescription: sarifText{Text: fmt.Sprintf("Host scored %s risk", upper)},
			Help:             sarifText{Text: helpFor(level)},
			DefaultConfig:    sarifRuleConfig{Level: SARIFLevel(level)},
			Properties: sarifProperties{
				Tags:             []string{"security", "network", "risk-" + string(level)},
				SecuritySeverity: securitySeverity[level],
			},
		})
	}

	return rules, ruleIndexMap
}

func helpFor(level models.RiskLevel) string {
	switch level {
	case models.RiskCritical:
		return "The responder blocks this host at the firewall and alerts the SOC."
	case models.RiskHigh:
		return "The responder alerts the SOC about this host."
	default:
		return "Recorded for trend analysis only."
	}
}

func (r *SARIFReporter) buildResults(events []models.DecisionEvent, ruleIndexMap map[models.RiskLevel]int) []sarifResult {
	results := make([]sarifResult, 0, len(events))

	for _, e := range events {
		msg := fmt.Sprintf("Host %s scored %d (%s)", e.Host, e.RiskScore, e.RiskLevel)
		if len(e.TopFindings) > 0 {
			msg += ": " + strings.Join(e.TopFindings, "; ")
		}
		if len(e.CVEs) > 0 {
			msg += fmt.Sprintf(" [CVEs: %s]", strings.Join(e.CVEs, ", "))
		}

		idx, ok := ruleIndexMap[e.RiskLevel]
		if !ok {
			continue
		}

		results = append(results, sarifResult{
			RuleID:    ruleID(e.RiskLevel),
			RuleIndex: idx,
			Level:     SARIFLevel(e.RiskLevel),
			Message:   sarifText{Text: msg},
			Locations: []sarifLocation{{
				PhysicalLocation: sarifPhysicalLocation{
					ArtifactLocation: sarifArtifact{URI: e.ScanID + ".json"},
				},
			}},
			PartialFingerprints: map[string]string{
				"primaryLocationLineHash": fmt.Sprintf("%s:%s", e.Host, strings.Join(e.CVEs, ",")),
			},
		})
	}

	return results
}
