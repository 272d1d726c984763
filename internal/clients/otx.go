package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethanolivertroy/riskflow/internal/models"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultOTXURL is the AlienVault OTX API root
const DefaultOTXURL = "https://otx.alienvault.com"

// errNoData marks a lookup the API answered without usable data
var errNoData = errors.New("no data")

// OTXConfig configures the OTX client
type OTXConfig struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	RateLimit float64 // requests per second
	Burst     int
	// MaxFailures consecutive failures open the breaker for the rest of the run
	MaxFailures uint32
}

// OTXClient looks CVEs up in AlienVault OTX
type OTXClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	logger     *zap.Logger
}

// NewOTXClient creates a new OTX client
func NewOTXClient(cfg OTXConfig, logger *zap.Logger) *OTXClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOTXURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 1
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 5
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 3
	}

	c := &OTXClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		logger:     logger,
	}

	maxFailures := cfg.MaxFailures
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "otx",
		MaxRequests: 1,
		// a run is short; once open the breaker stays open for it
		Timeout: time.Hour,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errNoData)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Remote lookup breaker changed state",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return c
}

// Enabled reports whether a credential is configured
func (c *OTXClient) Enabled() bool {
	return c.apiKey != ""
}

// otxIndicator is the subset of the CVE indicator response we use
type otxIndicator struct {
	Title     string          `json:"title"`
	CVSS      json.RawMessage `json:"cvss"`
	PulseInfo struct {
		Count int `json:"count"`
	} `json:"pulse_info"`
}

// LookupCVE queries OTX for one CVE. It returns nil without error when OTX has no data.
func (c *OTXClient) LookupCVE(ctx context.Context, id string) (*models.CVEMatch, error) {
	if !c.Enabled() {
		return nil, nil
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetch(ctx, id)
	})
	if errors.Is(err, errNoData) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return result.(*models.CVEMatch), nil
}

func (c *OTXClient) fetch(ctx context.Context, id string) (*models.CVEMatch, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "rate limiter")
	}

	endpoint := fmt.Sprintf("%s/api/v1/indicators/cve/%s", c.baseURL, url.PathEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("X-OTX-API-KEY", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "query OTX for %s", id)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, errNoData
	case resp.StatusCode != http.StatusOK:
		return nil, errors.Newf("OTX returned status %d for %s", resp.StatusCode, id)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, errors.Wrap(err, "read response body")
	}

	var ind otxIndicator
	if err := json.Unmarshal(body, &ind); err != nil {
		return nil, errors.Wrapf(err, "parse OTX response for %s", id)
	}

	name := ind.Title
	if name == "" {
		name = id
	}

	return &models.CVEMatch{
		CVE:        id,
		ThreatName: name,
		CVSS:       parseCVSS(ind.CVSS),
		Source:     "otx",
		Exploit:    ind.PulseInfo.Count > 0,
		Pulses:     ind.PulseInfo.Count,
	}, nil
}

// parseCVSS accepts a number, a numeric string or an object carrying a Score field
func parseCVSS(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}

	var n float64
	if json.Unmarshal(raw, &n) == nil {
		return n
	}

	var s string
	if json.Unmarshal(raw, &s) == nil {
		v, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
		return v
	}

	var obj struct {
		Score json.RawMessage `json:"Score"`
	}
	if json.Unmarshal(raw, &obj) == nil && len(obj.Score) > 0 && obj.Score[0] != '{' {
		return parseCVSS(obj.Score)
	}
	return 0
}
