package clients

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const kevCatalog = `{
  "title": "CISA Catalog of Known Exploited Vulnerabilities",
  "catalogVersion": "2025.03.14",
  "count": 2,
  "vulnerabilities": [
    {"cveID": "CVE-2021-41773", "vendorProject": "Apache", "product": "HTTP Server",
     "vulnerabilityName": "Apache HTTP Server Path Traversal Vulnerability",
     "knownRansomwareCampaignUse": "Known"},
    {"cveID": "CVE-2023-20198", "vendorProject": "Cisco", "product": "IOS XE",
     "vulnerabilityName": "", "knownRansomwareCampaignUse": "Unknown"}
  ]
}`

func TestKEVLookupFetchesCatalogOnce(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(kevCatalog))
	}))
	defer srv.Close()

	c := NewKEVClient(srv.URL, time.Second, nil)
	require.True(t, c.Enabled())

	match, err := c.LookupCVE(context.Background(), "CVE-2021-41773")
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, "Apache HTTP Server Path Traversal Vulnerability (ransomware)", match.ThreatName)
	assert.Equal(t, KEVSource, match.Source)
	assert.True(t, match.Exploit)

	match, err = c.LookupCVE(context.Background(), "CVE-2023-20198")
	require.NoError(t, err)
	assert.Equal(t, "CVE-2023-20198", match.ThreatName)

	match, err = c.LookupCVE(context.Background(), "CVE-1999-0001")
	require.NoError(t, err)
	assert.Nil(t, match)

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestKEVFetchFailureIsRemembered(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewKEVClient(srv.URL, time.Second, nil)
	for i := 0; i < 3; i++ {
		_, err := c.LookupCVE(context.Background(), "CVE-2021-41773")
		assert.Error(t, err)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestKEVDisabled(t *testing.T) {
	c := NewKEVClient("", 0, nil)
	assert.False(t, c.Enabled())
	match, err := c.LookupCVE(context.Background(), "CVE-2021-41773")
	assert.NoError(t, err)
	assert.Nil(t, match)
}

func TestParseKEVDataRejectsGarbage(t *testing.T) {
	_, err := parseKEVData([]byte("<html>"))
	assert.Error(t, err)
}
