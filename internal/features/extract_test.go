package features

import (
	"testing"

	"github.com/ethanolivertroy/riskflow/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openService(name string, scripts ...models.Script) models.Service {
	return models.Service{
		State:   "open",
		Service: &models.ServiceInfo{Name: name},
		Scripts: scripts,
	}
}

func TestExtractHostCountsOpenAndRiskyServices(t *testing.T) {
	host := models.Host{
		Address: "10.0.0.7",
		Services: []models.Service{
			openService("ftp"),
			openService("ssh"),
			openService("MySQL"),
			{State: "closed", Service: &models.ServiceInfo{Name: "telnet"}},
			{State: "filtered", Service: nil},
		},
	}

	f := ExtractHost(host)
	assert.Equal(t, 3, f.OpenPorts)
	assert.Equal(t, 2, f.RiskyServices)
	assert.Empty(t, f.CVEs)
	assert.Zero(t, f.MaxCVSS)
	assert.Zero(t, f.AvgCVSS)
}

func TestExtractHostIgnoresClosedServiceScripts(t *testing.T) {
	host := models.Host{
		Services: []models.Service{
			{State: "closed", Service: &models.ServiceInfo{Name: "ftp"}, Scripts: []models.Script{
				{ID: "ftp-anon", Output: "Anonymous FTP login allowed CVE-2020-0001"},
			}},
		},
	}

	f := ExtractHost(host)
	assert.False(t, f.AnonymousFTP)
	assert.Empty(t, f.CVEs)
}

func TestCVEExtractionDedupesAcrossCase(t *testing.T) {
	host := models.Host{
		Scripts: []models.Script{
			{ID: "vulners", Output: "cve-2024-36391 and CVE-2024-36391"},
			{ID: "smb-vuln", Elements: []models.ScriptElement{
				{Key: "ids", Value: "Cve-2023-48795"},
				{Key: "state", Value: 7},
			}},
		},
		Services: []models.Service{
			openService("http", models.Script{
				ID: "http-vuln",
				Tables: []any{
					map[string]any{
						"id":   "CVE-2023-48795",
						"refs": []any{map[string]any{"cve": "CVE-2024-47850"}},
					},
				},
			}),
		},
	}

	first := ExtractHost(host)
	second := ExtractHost(host)

	assert.Equal(t, []string{"CVE-2024-36391", "CVE-2023-48795", "CVE-2024-47850"}, first.CVEs)
	assert.Equal(t, first.CVEs, second.CVEs)
	assert.Equal(t, 3, first.CVECount())
}

func TestCVSSScores(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []float64
	}{
		{"bare score", "CVE-2024-36391 9.8 https://vulners.com", []float64{9.8}},
		{"prefixed", "CVSS: 7.5, CVSSv3=10.0 cvssv2 4.3", []float64{7.5, 10.0, 4.3}},
		{"version string skipped", "Apache httpd 2.4.49", nil},
		{"ip skipped", "192.168.1.171", nil},
		{"out of range", "score 12.5", nil},
		{"end of sentence", "score 9.8.", []float64{9.8}},
		{"sentence then prefixed", "Remote code execution, CVSS: 9.8. Base score CVSSv3 7.5, exploit public", []float64{9.8, 7.5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CVSSScores([]string{tt.text}))
		})
	}
}

func TestCVSSSummary(t *testing.T) {
	host := models.Host{
		Scripts: []models.Script{
			{ID: "vulners", Output: "CVE-2024-36391 9.8\nCVE-2023-48795 5.9"},
		},
	}

	f := ExtractHost(host)
	assert.Equal(t, 9.8, f.MaxCVSS)
	assert.InDelta(t, 7.85, f.AvgCVSS, 1e-9)
}

func TestExposureFlags(t *testing.T) {
	tests := []struct {
		name      string
		output    string
		anonymous bool
		admin     bool
	}{
		{"anonymous ftp", "Anonymous FTP login allowed (FTP code 230)", true, false},
		{"admin panel", "/admin/: Possible admin folder, login page", false, true},
		{"admin without keyword", "administrator mailbox", false, false},
		{"plain", "OpenSSH 8.9", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := ExtractHost(models.Host{Scripts: []models.Script{{Output: tt.output}}})
			assert.Equal(t, tt.anonymous, f.AnonymousFTP)
			assert.Equal(t, tt.admin, f.AdminExposure)
		})
	}
}

func TestExtractDocument(t *testing.T) {
	doc := &models.ScanDocument{
		Hosts: []models.Host{
			{Address: "10.0.0.1", Hostname: "a"},
			{Hostname: "b.lan"},
		},
	}

	out := Extract(doc)
	require.Len(t, out, 2)
	assert.Equal(t, "10.0.0.1", out[0].Identity())
	assert.Equal(t, "b.lan", out[1].Identity())
	assert.Nil(t, Extract(nil))
}

func TestScriptFindingsAreDistinct(t *testing.T) {
	host := models.Host{
		Scripts: []models.Script{
			{Output: "same"},
			{Output: "same"},
			{Output: "other"},
		},
	}
	assert.Equal(t, []string{"same", "other"}, ExtractHost(host).ScriptFindings)
}
