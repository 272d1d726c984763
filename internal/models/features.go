package models

// FeatureNames is the order of the numeric feature vector fed to a classifier
var FeatureNames = []string{
	"open_ports",
	"risky_services",
	"cve_count",
	"has_anonymous_ftp",
	"has_default_http_admin",
	"max_cvss",
	"avg_cvss",
}

// HostFeatures is the fixed-shape feature set extracted for one host of one scan
type HostFeatures struct {
	Host           string   `json:"host"`
	Hostname       string   `json:"hostname"`
	OS             string   `json:"os"`
	OpenPorts      int      `json:"open_ports"`
	RiskyServices  int      `json:"risky_services"`
	CVEs           []string `json:"cves"`
	MaxCVSS        float64  `json:"max_cvss"`
	AvgCVSS        float64  `json:"avg_cvss"`
	AnonymousFTP   bool     `json:"has_anonymous_ftp"`
	AdminExposure  bool     `json:"has_default_http_admin"`
	ScriptFindings []string `json:"script_findings,omitempty"`
}

// CVECount returns the number of distinct CVEs found on the host
func (f HostFeatures) CVECount() int {
	return len(f.CVEs)
}

// Identity returns the address, or the hostname when no address was recorded
func (f HostFeatures) Identity() string {
	if f.Host != "" {
		return f.Host
	}
	return f.Hostname
}

// Vector returns the numeric features in FeatureNames order
func (f HostFeatures) Vector() []float64 {
	return []float64{
		float64(f.OpenPorts),
		float64(f.RiskyServices),
		float64(f.CVECount()),
		boolToFloat(f.AnonymousFTP),
		boolToFloat(f.AdminExposure),
		f.MaxCVSS,
		f.AvgCVSS,
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
