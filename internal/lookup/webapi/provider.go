// Package webapi is a lookup provider backed by an HTTP JSON aircraft
// database service.
package webapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/vradarserver/vrscore-sub000/internal/aircraft"
	"github.com/vradarserver/vrscore-sub000/internal/icao"
	"github.com/vradarserver/vrscore-sub000/internal/lookup"
)

// Defaults applied to zero Config values.
const (
	DefaultBatchSize         = 100
	DefaultMinInterval       = 5
	DefaultMaxFailedInterval = 300
	DefaultTimeout           = 30 * time.Second
)

// Config holds settings for the provider.
type Config struct {
	BaseURL string
	APIKey  string // Sent as X-API-Key when set.

	BatchSize         int
	MinInterval       int // Seconds between requests.
	MaxFailedInterval int // Seconds between requests after repeated failures.
	Timeout           time.Duration

	// HTTPClient overrides the default client, for tests.
	HTTPClient *http.Client
}

// Provider implements lookup.Provider.
type Provider struct {
	cfg    Config
	client *http.Client

	mu       sync.RWMutex
	supplier lookup.SupplierDetails
}

// New creates a provider for the service at cfg.BaseURL.
func New(cfg Config) *Provider {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = DefaultMinInterval
	}
	if cfg.MaxFailedInterval <= 0 {
		cfg.MaxFailedInterval = DefaultMaxFailedInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Provider{
		cfg:      cfg,
		client:   client,
		supplier: lookup.SupplierDetails{Name: "webapi", URL: cfg.BaseURL},
	}
}

func (p *Provider) MaxBatchSize() int                 { return p.cfg.BatchSize }
func (p *Provider) MinSecondsBetweenRequests() int    { return p.cfg.MinInterval }
func (p *Provider) MaxSecondsAfterFailedRequest() int { return p.cfg.MaxFailedInterval }

// Supplier returns the details fetched by InitialiseSupplierDetails, or a
// placeholder before that has succeeded.
func (p *Provider) Supplier() lookup.SupplierDetails {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.supplier
}

// InitialiseSupplierDetails fetches GET {base}/supplier.
func (p *Provider) InitialiseSupplierDetails(ctx context.Context) error {
	var details lookup.SupplierDetails
	if err := p.do(ctx, http.MethodGet, "/supplier", nil, &details); err != nil {
		return err
	}
	if details.URL == "" {
		details.URL = p.cfg.BaseURL
	}
	p.mu.Lock()
	p.supplier = details
	p.mu.Unlock()
	return nil
}

type batchRequest struct {
	Aircraft []batchQuery `json:"aircraft"`
}

type batchQuery struct {
	ICAOHex string `json:"icao_hex"`
}

type batchResponse struct {
	Results map[string]aircraftRecord `json:"results"`
	Errors  map[string]string         `json:"errors,omitempty"`
}

type aircraftRecord struct {
	Registration string `json:"registration"`
	Country      string `json:"country"`
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
	ModelICAO    string `json:"model_icao"`
	Operator     string `json:"operator"`
	OperatorICAO string `json:"operator_icao"`
	Serial       string `json:"serial"`
	YearBuilt    int    `json:"year_built"`
	IsMilitary   bool   `json:"military"`
	UpdatedAt    string `json:"updated_at"`
}

// LookupICAOs posts ids to {base}/aircraft/batch. Identities missing from the
// response are returned as misses.
func (p *Provider) LookupICAOs(ctx context.Context, ids []icao.ID) (aircraft.BatchedLookupOutcome, error) {
	var out aircraft.BatchedLookupOutcome
	if len(ids) == 0 {
		return out, nil
	}
	if len(ids) > p.cfg.BatchSize {
		return out, fmt.Errorf("webapi: batch of %d exceeds limit %d", len(ids), p.cfg.BatchSize)
	}

	req := batchRequest{Aircraft: make([]batchQuery, len(ids))}
	for i, id := range ids {
		req.Aircraft[i] = batchQuery{ICAOHex: id.String()}
	}

	var resp batchResponse
	if err := p.do(ctx, http.MethodPost, "/aircraft/batch", req, &resp); err != nil {
		return out, err
	}

	now := time.Now().UTC()
	for _, id := range ids {
		rec, ok := resp.Results[id.String()]
		if !ok {
			out.Add(aircraft.Miss(id, now))
			continue
		}
		out.Add(rec.outcome(id, now))
	}
	return out, nil
}

func (r aircraftRecord) outcome(id icao.ID, now time.Time) aircraft.LookupOutcome {
	age := now
	if r.UpdatedAt != "" {
		if t, err := time.Parse(time.RFC3339, r.UpdatedAt); err == nil {
			age = t
		}
	}
	return aircraft.LookupOutcome{
		ICAO:         id,
		Success:      true,
		Registration: strings.TrimSpace(r.Registration),
		Country:      strings.TrimSpace(r.Country),
		Manufacturer: strings.TrimSpace(r.Manufacturer),
		Model:        strings.TrimSpace(r.Model),
		ModelICAO:    strings.ToUpper(strings.TrimSpace(r.ModelICAO)),
		Operator:     strings.TrimSpace(r.Operator),
		OperatorICAO: strings.ToUpper(strings.TrimSpace(r.OperatorICAO)),
		Serial:       strings.TrimSpace(r.Serial),
		YearBuilt:    r.YearBuilt,
		IsMilitary:   r.IsMilitary,
		SourceAge:    age,
	}
}

// do sends a JSON request and decodes a JSON response. Transport failures
// and gateway errors come back as *lookup.NetworkError.
func (p *Provider) do(ctx context.Context, method, path string, body, into any) error {
	op := method + " " + path

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("webapi: encode %s: %w", op, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.cfg.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("webapi: build %s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if p.cfg.APIKey != "" {
		req.Header.Set("X-API-Key", p.cfg.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return &lookup.NetworkError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusBadGateway,
		resp.StatusCode == http.StatusServiceUnavailable,
		resp.StatusCode == http.StatusGatewayTimeout:
		return &lookup.NetworkError{Op: op, Err: fmt.Errorf("status %d", resp.StatusCode)}
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webapi: %s: status %d: %s", op, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		return fmt.Errorf("webapi: decode %s: %w", op, err)
	}
	return nil
}
