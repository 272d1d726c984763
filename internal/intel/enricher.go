// Package intel enriches decisions with threat intelligence.
//
// Lookups go cache first, then the built-in tables, then (CVEs only) the remote
// sources in order. Enrichment never fails: any lookup problem simply means no data.
package intel

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"strings"

	"github.com/ethanolivertroy/riskflow/internal/cache"
	"github.com/ethanolivertroy/riskflow/internal/metrics"
	"github.com/ethanolivertroy/riskflow/internal/models"
	"go.uber.org/zap"
)

// MaxAdjustment caps the score adjustment of one enrichment
const MaxAdjustment = 15

// CVELookup is a remote CVE knowledge source
type CVELookup interface {
	Enabled() bool
	LookupCVE(ctx context.Context, id string) (*models.CVEMatch, error)
}

// Enricher attaches threat intel to a host and its CVEs
type Enricher struct {
	store   cache.Store
	remotes []CVELookup
	offline bool
	logger  *zap.Logger
	metrics *metrics.Metrics

	// CVEs nothing knows about, remembered so one run never asks twice
	misses map[string]bool
}

// Option configures an Enricher
type Option func(*Enricher)

// WithRemote adds a remote CVE source, consulted after the ones added before it
func WithRemote(r CVELookup) Option {
	return func(e *Enricher) {
		if r != nil {
			e.remotes = append(e.remotes, r)
		}
	}
}

// WithOffline disables every remote lookup
func WithOffline(offline bool) Option {
	return func(e *Enricher) { e.offline = offline }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(e *Enricher) { e.logger = l }
}

// WithMetrics records enrichment outcomes
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Enricher) { e.metrics = m }
}

// NewEnricher creates an enricher backed by store
func NewEnricher(store cache.Store, opts ...Option) *Enricher {
	e := &Enricher{
		store:  store,
		logger: zap.NewNop(),
		misses: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	return e
}

// CompositeKey identifies one (host, CVE set) enrichment
func CompositeKey(host string, cves []string) string {
	sorted := append([]string(nil), cves...)
	sort.Strings(sorted)
	return host + ":" + strings.Join(sorted, ",")
}

// Enrich returns the threat intel for host and cves, or nil when nothing is known
func (e *Enricher) Enrich(ctx context.Context, host string, cves []string) *models.ThreatIntelResult {
	ids := dedupe(cves)
	key := CompositeKey(host, ids)

	// Step 1: a previous enrichment of the same host and CVE set
	if raw, ok := e.store.Get(ctx, key); ok {
		var cached models.ThreatIntelResult
		if err := json.Unmarshal(raw, &cached); err == nil {
			e.metrics.Enrichment(metrics.EnrichCacheHit)
			return &cached
		}
		e.logger.Debug("Ignoring unreadable cache entry", zap.String("key", key))
	}

	// Step 2: per-CVE and per-host lookups
	matches := []models.CVEMatch{}
	for _, id := range ids {
		if m := e.lookupCVE(ctx, id); m != nil {
			matches = append(matches, *m)
		}
	}
	reputation := e.lookupHost(ctx, host)

	if len(matches) == 0 && reputation == nil {
		e.metrics.Enrichment(metrics.EnrichNone)
		return nil
	}

	// Step 3: adjustment and composite cache entry
	result := &models.ThreatIntelResult{
		CVEMatches:      matches,
		HostReputation:  reputation,
		ScoreAdjustment: adjustment(matches, reputation),
	}

	e.put(ctx, key, result)
	if err := e.store.Flush(ctx); err != nil {
		e.logger.Warn("Failed to persist threat intel cache", zap.Error(err))
	}

	e.metrics.Enrichment(metrics.EnrichMatched)
	return result
}

func (e *Enricher) lookupCVE(ctx context.Context, id string) *models.CVEMatch {
	key := "cve:" + id
	var match models.CVEMatch
	if e.get(ctx, key, &match) {
		return &match
	}

	if m, ok := builtinCVE(id); ok {
		e.put(ctx, key, m)
		return m
	}

	if e.offline || e.misses[id] {
		return nil
	}

	for _, remote := range e.remotes {
		if !remote.Enabled() {
			continue
		}
		m, err := remote.LookupCVE(ctx, id)
		if err != nil {
			e.logger.Debug("Remote CVE lookup failed", zap.String("cve", id), zap.Error(err))
			continue
		}
		if m != nil {
			e.put(ctx, key, m)
			return m
		}
	}

	e.misses[id] = true
	return nil
}

func (e *Enricher) lookupHost(ctx context.Context, host string) *models.HostReputation {
	if host == "" {
		return nil
	}

	key := "host:" + host
	var rep models.HostReputation
	if e.get(ctx, key, &rep) {
		return &rep
	}

	r, ok := builtinHost(host)
	if !ok {
		return nil
	}
	e.put(ctx, key, r)
	return r
}

func (e *Enricher) get(ctx context.Context, key string, v any) bool {
	raw, ok := e.store.Get(ctx, key)
	if !ok {
		return false
	}
	return json.Unmarshal(raw, v) == nil
}

func (e *Enricher) put(ctx context.Context, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := e.store.Set(ctx, key, raw); err != nil {
		e.logger.Warn("Failed to cache threat intel entry", zap.String("key", key), zap.Error(err))
	}
}

func adjustment(matches []models.CVEMatch, rep *models.HostReputation) int {
	var highest float64
	for _, m := range matches {
		if m.CVSS > highest {
			highest = m.CVSS
		}
	}

	adj := int(math.Floor(highest))
	if rep != nil {
		adj += rep.Score
	}
	if adj > MaxAdjustment {
		return MaxAdjustment
	}
	return adj
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
