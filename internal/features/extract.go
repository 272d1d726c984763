// Package features turns scanned hosts into the fixed-shape feature sets used for scoring
package features

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ethanolivertroy/riskflow/internal/models"
)

// RiskyServices is the fixed allow-list of service names counted as risky
var RiskyServices = map[string]bool{
	"ftp":        true,
	"telnet":     true,
	"rdp":        true,
	"vnc":        true,
	"smb":        true,
	"rpcbind":    true,
	"mysql":      true,
	"postgresql": true,
	"ldap":       true,
	"mssql":      true,
}

var (
	cvePattern  = regexp.MustCompile(`(?i)CVE-\d{4}-\d+`)
	cvssPattern = regexp.MustCompile(`(?i)(?:CVSS(?:v[23])?\s*[:=]?\s*)?(\d{1,2}\.\d)`)
)

var adminKeywords = []string{"login", "panel", "console"}

// Extract returns one feature set per host of the scan document, in document order
func Extract(doc *models.ScanDocument) []models.HostFeatures {
	if doc == nil {
		return nil
	}
	out := make([]models.HostFeatures, 0, len(doc.Hosts))
	for _, h := range doc.Hosts {
		out = append(out, ExtractHost(h))
	}
	return out
}

// ExtractHost computes the features of a single host
func ExtractHost(h models.Host) models.HostFeatures {
	f := models.HostFeatures{
		Host:     h.Address,
		Hostname: h.Hostname,
		OS:       h.OS,
		CVEs:     []string{},
	}

	// Host-level scripts plus the scripts of open services form the text corpus
	scripts := append([]models.Script(nil), h.Scripts...)
	for _, svc := range h.Services {
		if !svc.IsOpen() {
			continue
		}
		f.OpenPorts++
		if RiskyServices[strings.ToLower(svc.Name())] {
			f.RiskyServices++
		}
		scripts = append(scripts, svc.Scripts...)
	}

	texts := ScriptTexts(scripts)

	f.CVEs = CVEs(texts)
	scores := CVSSScores(texts)
	f.MaxCVSS, f.AvgCVSS = summarise(scores)
	f.AnonymousFTP = hasAnonymousFTP(texts)
	f.AdminExposure = hasAdminExposure(texts)
	f.ScriptFindings = distinct(texts)

	return f
}

// ScriptTexts flattens script output, element values and nested table strings
func ScriptTexts(scripts []models.Script) []string {
	var texts []string
	for _, s := range scripts {
		if s.Output != "" {
			texts = append(texts, s.Output)
		}
		for _, el := range s.Elements {
			if v, ok := el.Value.(string); ok && v != "" {
				texts = append(texts, v)
			}
		}
		for _, table := range s.Tables {
			texts = appendTableStrings(texts, table)
		}
	}
	return texts
}

func appendTableStrings(texts []string, v any) []string {
	switch t := v.(type) {
	case string:
		if t != "" {
			texts = append(texts, t)
		}
	case []any:
		for _, item := range t {
			texts = appendTableStrings(texts, item)
		}
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			texts = appendTableStrings(texts, t[k])
		}
	}
	return texts
}

// CVEs returns the distinct upper-cased CVE identifiers found in texts, first-seen order
func CVEs(texts []string) []string {
	seen := make(map[string]bool)
	cves := []string{}
	for _, text := range texts {
		for _, m := range cvePattern.FindAllString(text, -1) {
			id := strings.ToUpper(m)
			if seen[id] {
				continue
			}
			seen[id] = true
			cves = append(cves, id)
		}
	}
	return cves
}

// CVSSScores pools every CVSS-looking number in texts. Numbers embedded in longer
// dotted tokens such as versions are skipped, as are values above 10.
func CVSSScores(texts []string) []float64 {
	var scores []float64
	for _, text := range texts {
		for _, loc := range cvssPattern.FindAllStringSubmatchIndex(text, -1) {
			start, end := loc[2], loc[3]
			if start > 0 && isNumberByte(text[start-1]) {
				continue
			}
			if continuesNumber(text, end) {
				continue
			}
			v, err := strconv.ParseFloat(text[start:end], 64)
			if err != nil || v > 10 {
				continue
			}
			scores = append(scores, v)
		}
	}
	return scores
}

// continuesNumber reports whether text carries on a number at i. A period
// followed by a non-digit ends a sentence, not a version.
func continuesNumber(text string, i int) bool {
	if i >= len(text) {
		return false
	}
	if isDigit(text[i]) {
		return true
	}
	return text[i] == '.' && i+1 < len(text) && isDigit(text[i+1])
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func isNumberByte(b byte) bool {
	return b == '.' || isDigit(b)
}

func summarise(scores []float64) (highest, mean float64) {
	if len(scores) == 0 {
		return 0, 0
	}
	var sum float64
	for _, s := range scores {
		sum += s
		if s > highest {
			highest = s
		}
	}
	return highest, sum / float64(len(scores))
}

func hasAnonymousFTP(texts []string) bool {
	for _, text := range texts {
		if strings.Contains(strings.ToLower(text), "anonymous") {
			return true
		}
	}
	return false
}

func hasAdminExposure(texts []string) bool {
	for _, text := range texts {
		lowered := strings.ToLower(text)
		if !strings.Contains(lowered, "admin") {
			continue
		}
		for _, kw := range adminKeywords {
			if strings.Contains(lowered, kw) {
				return true
			}
		}
	}
	return false
}

func distinct(texts []string) []string {
	seen := make(map[string]bool, len(texts))
	var out []string
	for _, t := range texts {
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
