package intel

import "github.com/ethanolivertroy/riskflow/internal/models"

// builtinCVEs is the offline CVE knowledge shipped with the binary
var builtinCVEs = map[string]models.CVEMatch{
	"CVE-2024-36391": {
		ThreatName: "Apache HTTPD path traversal",
		CVSS:       9.8,
		Source:     "cnvd",
		Exploit:    true,
	},
	"CVE-2024-47850": {
		ThreatName: "CUPS IPP RCE",
		CVSS:       7.5,
		Source:     "nvd",
		Exploit:    true,
	},
	"CVE-2023-48795": {
		ThreatName: "SSH Terrapin attack",
		CVSS:       7.1,
		Source:     "mitre",
		Exploit:    false,
	},
}

// suspiciousHosts is the offline host reputation table
var suspiciousHosts = map[string]models.HostReputation{
	"scanme.nmap.org": {Reputation: "unknown", Score: 2},
	"192.168.1.171":   {Reputation: "iot", Score: 4},
}

func builtinCVE(id string) (*models.CVEMatch, bool) {
	m, ok := builtinCVEs[id]
	if !ok {
		return nil, false
	}
	m.CVE = id
	return &m, true
}

func builtinHost(host string) (*models.HostReputation, bool) {
	r, ok := suspiciousHosts[host]
	if !ok {
		return nil, false
	}
	r.Host = host
	return &r, true
}
