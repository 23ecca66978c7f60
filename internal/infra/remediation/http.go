package remediation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/vietddude/overseer/internal/core/domain"
)

// HTTPGenerator posts diagnostic bundles to a remote generator as JSON.
// A circuit breaker keeps a broken generator from stalling every incident:
// once open, Propose fails fast and the caller escalates.
type HTTPGenerator struct {
	name     string
	endpoint string
	client   *http.Client
	cb       *gobreaker.CircuitBreaker
}

// NewHTTPGenerator creates a generator client with the given call timeout.
func NewHTTPGenerator(name, endpoint string, timeout time.Duration) *HTTPGenerator {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 2,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 4
		},
	})
	return &HTTPGenerator{
		name:     name,
		endpoint: endpoint,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		cb: cb,
	}
}

type proposeResponse struct {
	Playbook   string  `json:"playbook"`
	None       bool    `json:"none"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
}

// Propose posts the bundle and decodes the proposal.
func (g *HTTPGenerator) Propose(
	ctx context.Context,
	bundle *domain.DiagnosticBundle,
) (*Proposal, error) {
	result, err := g.cb.Execute(func() (any, error) {
		return g.propose(ctx, bundle)
	})
	if err != nil {
		return nil, err
	}
	return result.(*Proposal), nil
}

func (g *HTTPGenerator) propose(
	ctx context.Context,
	bundle *domain.DiagnosticBundle,
) (*Proposal, error) {
	body, err := json.Marshal(bundle)
	if err != nil {
		return nil, fmt.Errorf("marshal bundle: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("generator call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent {
		return nil, ErrNoRemediation
	}
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("generator returned %d: %s", resp.StatusCode, string(data))
	}

	var pr proposeResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, fmt.Errorf("decode proposal: %w", err)
	}
	if pr.None || pr.Playbook == "" {
		return nil, ErrNoRemediation
	}

	return &Proposal{
		PlaybookName: pr.Playbook,
		Confidence:   pr.Confidence,
		Source:       pr.Source,
	}, nil
}
