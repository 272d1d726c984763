package models

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// RiskLevel is the coarse severity bucket derived from a risk score
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// RiskLevels lists every level from least to most severe
var RiskLevels = []RiskLevel{RiskLow, RiskMedium, RiskHigh, RiskCritical}

// Score thresholds, inclusive lower bounds
const (
	MediumThreshold   = 40
	HighThreshold     = 65
	CriticalThreshold = 85
)

// MaxReasons is the number of reasons kept on a decision event
const MaxReasons = 5

// LevelForScore maps a score to its risk level
func LevelForScore(score int) RiskLevel {
	switch {
	case score >= CriticalThreshold:
		return RiskCritical
	case score >= HighThreshold:
		return RiskHigh
	case score >= MediumThreshold:
		return RiskMedium
	default:
		return RiskLow
	}
}

// ParseRiskLevel normalises a persisted level, returning false for unknown values
func ParseRiskLevel(s string) (RiskLevel, bool) {
	level := RiskLevel(strings.ToLower(strings.TrimSpace(s)))
	for _, l := range RiskLevels {
		if l == level {
			return l, true
		}
	}
	return "", false
}

// ClampScore bounds a score to [0,100]
func ClampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// DecisionEvent is one scored, persisted verdict for one host from one scan run
type DecisionEvent struct {
	EventID      string             `json:"event_id"`
	Timestamp    time.Time          `json:"timestamp"`
	ScanID       string             `json:"scan_id"`
	Host         string             `json:"host"`
	Hostname     string             `json:"hostname"`
	OS           string             `json:"os"`
	RiskScore    int                `json:"risk_score"`
	RiskLevel    RiskLevel          `json:"risk_level"`
	TopFindings  []string           `json:"top_findings"`
	CVEs         []string           `json:"cves"`
	CVSS         CVSSSummary        `json:"cvss"`
	Strategy     string             `json:"strategy,omitempty"`
	Attributions []Attribution      `json:"attributions,omitempty"`
	ThreatIntel  *ThreatIntelResult `json:"threat_intel,omitempty"`

	// IP is only read from legacy log lines that carry the address under "ip"
	IP string `json:"ip,omitempty"`
}

// Target returns the address actions should be applied to
func (e DecisionEvent) Target() string {
	if e.Host != "" {
		return e.Host
	}
	return e.IP
}

// timestampLayouts are accepted when reading decision events; zone-less values are UTC
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp reads a persisted timestamp leniently. Unparseable values yield the zero time.
func ParseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// UnmarshalJSON decodes a decision event tolerantly: any JSON object is accepted,
// and a field holding an unexpected value is left at its zero value.
func (e *DecisionEvent) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return errors.New("decision event is not a JSON object")
	}

	type wire DecisionEvent
	var w wire
	aux := struct {
		*wire
		Timestamp json.RawMessage `json:"timestamp"`
		RiskScore json.RawMessage `json:"risk_score"`
	}{wire: &w}

	if err := json.Unmarshal(trimmed, &aux); err != nil {
		var typeErr *json.UnmarshalTypeError
		if !errors.As(err, &typeErr) {
			return err
		}
	}

	*e = DecisionEvent(w)
	e.Timestamp = decodeTimestamp(aux.Timestamp)
	e.RiskScore = decodeScore(aux.RiskScore)
	return nil
}

func decodeTimestamp(raw json.RawMessage) time.Time {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return time.Time{}
	}
	return ParseTimestamp(s)
}

// decodeScore accepts a number or a numeric string
func decodeScore(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var f float64
	if json.Unmarshal(raw, &f) == nil {
		return int(f)
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return int(v)
		}
	}
	return 0
}

// ApplyAdjustment adds a threat intel adjustment and recomputes the level
func (e *DecisionEvent) ApplyAdjustment(adjustment int) {
	e.RiskScore = ClampScore(e.RiskScore + adjustment)
	e.RiskLevel = LevelForScore(e.RiskScore)
}

// CVSSSummary holds the CVSS statistics of a host
type CVSSSummary struct {
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
}

// Attribution is one feature's contribution to a model decision
type Attribution struct {
	Feature string  `json:"feature"`
	Weight  float64 `json:"weight"`
}

// ThreatIntelResult is the enrichment bundle attached to a decision
type ThreatIntelResult struct {
	CVEMatches      []CVEMatch      `json:"cve_matches"`
	HostReputation  *HostReputation `json:"host_reputation"`
	ScoreAdjustment int             `json:"score_adjustment"`
}

// CVEMatch is threat intel known about one CVE
type CVEMatch struct {
	CVE        string  `json:"cve"`
	ThreatName string  `json:"threat_name"`
	CVSS       float64 `json:"cvss"`
	Source     string  `json:"source"`
	Exploit    bool    `json:"exploit"`
	Pulses     int     `json:"pulses,omitempty"`
}

// HostReputation is threat intel known about one host
type HostReputation struct {
	Host       string `json:"host"`
	Reputation string `json:"reputation"`
	Score      int    `json:"score"`
}

// ScanSnapshot is one row of the rolling scan history
type ScanSnapshot struct {
	ScanID       string  `json:"scan_id"`
	Timestamp    string  `json:"timestamp"`
	HostCount    int     `json:"host_count"`
	AverageScore float64 `json:"average_score"`
	Low          int     `json:"low"`
	Medium       int     `json:"medium"`
	High         int     `json:"high"`
	Critical     int     `json:"critical"`
}

// ActionLabel names the response chosen for a decision
type ActionLabel string

const (
	ActionBlock  ActionLabel = "block"
	ActionNotify ActionLabel = "notify"
	ActionLog    ActionLabel = "log"
)

// ResponseAction records what the responder did for one decision event
type ResponseAction struct {
	Host      string      `json:"host"`
	RiskLevel RiskLevel   `json:"risk_level"`
	RiskScore int         `json:"risk_score"`
	Action    ActionLabel `json:"action"`
	Timestamp time.Time   `json:"timestamp"`
}

// ResponderState is the persisted read position of the responder in the decision log
type ResponderState struct {
	Offset int64 `json:"offset"`
}
