package parsers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleScan = `{
  "metadata": {"scanner": "nmap", "start": "2025-03-14T09:00:00Z", "hosts_up": 1},
  "hosts": [
    {
      "address": "192.168.1.171",
      "hostname": null,
      "os": "Linux 4.x",
      "services": [
        {"protocol": "tcp", "portid": "21", "state": "open",
         "service": {"name": "ftp", "product": "vsftpd"},
         "scripts": [{"id": "ftp-anon", "output": "Anonymous FTP login allowed"}]},
        {"protocol": "tcp", "portid": "80", "state": "closed", "service": null, "scripts": []}
      ],
      "scripts": [
        {"id": "vulners", "output": "", "elements": [{"key": "cve", "value": "CVE-2024-36391"}],
         "tables": [{"cvss": "9.8"}]}
      ]
    }
  ]
}`

func TestParseScan(t *testing.T) {
	doc, err := ParseScan("nightly.json", []byte(sampleScan))
	require.NoError(t, err)

	require.Len(t, doc.Hosts, 1)
	host := doc.Hosts[0]
	assert.Equal(t, "192.168.1.171", host.Address)
	assert.Empty(t, host.Hostname)
	require.Len(t, host.Services, 2)
	assert.Equal(t, "ftp", host.Services[0].Name())
	assert.True(t, host.Services[0].IsOpen())
	assert.Equal(t, "", host.Services[1].Name())
	assert.Equal(t, "nmap", doc.Metadata.Scanner)
}

func TestParseScanRejectsInvalidDocuments(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not json", `{"hosts": [`},
		{"missing hosts", `{"metadata": {}}`},
		{"hosts not array", `{"hosts": {"address": "x"}}`},
		{"host not object", `{"hosts": ["10.0.0.1"]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScan("bad.json", []byte(tt.content))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidScan))
		})
	}
}

func TestParseScanFileMissing(t *testing.T) {
	_, err := ParseScanFile(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
	assert.NotEmpty(t, errors.GetAllHints(err))
}

func TestParseScanFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weekly-2025-10.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleScan), 0644))

	doc, err := ParseScanFile(path)
	require.NoError(t, err)
	assert.Len(t, doc.Hosts, 1)
	assert.Equal(t, "weekly-2025-10", ScanID(path))
}
