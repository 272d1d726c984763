package clients

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethanolivertroy/riskflow/internal/models"
	"go.uber.org/zap"
)

// DefaultKEVURL is the CISA Known Exploited Vulnerabilities feed
const DefaultKEVURL = "https://raw.githubusercontent.com/cisagov/kev-data/main/known_exploited_vulnerabilities.json"

// KEVSource is the source label of catalog matches
const KEVSource = "cisa-kev"

// KEVClient answers CVE lookups from the CISA KEV catalog. The catalog is
// downloaded at most once per client.
type KEVClient struct {
	url        string
	httpClient *http.Client
	logger     *zap.Logger

	once    sync.Once
	catalog map[string]kevEntry
	err     error
}

// NewKEVClient creates a catalog client; an empty url disables it
func NewKEVClient(url string, timeout time.Duration, logger *zap.Logger) *KEVClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &KEVClient{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// kevResponse represents the top-level JSON response from the KEV catalog
type kevResponse struct {
	CatalogVersion  string     `json:"catalogVersion"`
	Count           int        `json:"count"`
	Vulnerabilities []kevEntry `json:"vulnerabilities"`
}

// kevEntry is a single vulnerability entry of the catalog
type kevEntry struct {
	CVEID                      string `json:"cveID"`
	VendorProject              string `json:"vendorProject"`
	Product                    string `json:"product"`
	VulnerabilityName          string `json:"vulnerabilityName"`
	KnownRansomwareCampaignUse string `json:"knownRansomwareCampaignUse"`
}

// Enabled reports whether a catalog URL is configured
func (c *KEVClient) Enabled() bool {
	return c.url != ""
}

// LookupCVE returns a match for a catalogued CVE. Every catalogued CVE is
// exploited in the wild. An unknown CVE returns (nil, nil).
func (c *KEVClient) LookupCVE(ctx context.Context, id string) (*models.CVEMatch, error) {
	if !c.Enabled() {
		return nil, nil
	}

	c.once.Do(func() {
		c.catalog, c.err = c.fetch(ctx)
		if c.err == nil {
			c.logger.Debug("KEV catalog loaded", zap.Int("entries", len(c.catalog)))
		}
	})
	if c.err != nil {
		return nil, c.err
	}

	e, ok := c.catalog[id]
	if !ok {
		return nil, nil
	}

	name := e.VulnerabilityName
	if name == "" {
		name = id
	}
	if e.KnownRansomwareCampaignUse == "Known" {
		name += " (ransomware)"
	}
	return &models.CVEMatch{
		CVE:        id,
		ThreatName: name,
		Source:     KEVSource,
		Exploit:    true,
	}, nil
}

func (c *KEVClient) fetch(ctx context.Context) (map[string]kevEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build KEV request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch KEV data")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("unexpected status code: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response body")
	}
	return parseKEVData(data)
}

func parseKEVData(data []byte) (map[string]kevEntry, error) {
	var kevResp kevResponse
	if err := json.Unmarshal(data, &kevResp); err != nil {
		return nil, errors.Wrap(err, "failed to parse KEV data")
	}

	catalog := make(map[string]kevEntry, len(kevResp.Vulnerabilities))
	for _, v := range kevResp.Vulnerabilities {
		catalog[v.CVEID] = v
	}
	return catalog, nil
}
