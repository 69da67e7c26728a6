package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// HTTPClient anchors fingerprints through an anchor gateway: a JSON/HTTP
// service that holds the signing key material, relays submissions to the
// ledger network, and waits for confirmation before responding.
type HTTPClient struct {
	cfg  Config
	http *http.Client
}

// NewHTTPClient creates an HTTPClient from immutable startup configuration.
func NewHTTPClient(cfg Config) *HTTPClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &HTTPClient{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

type submitResponse struct {
	TransactionID string `json:"transaction_id"`
	BlockNumber   int64  `json:"block_number"`
	Error         string `json:"error,omitempty"`
}

// Submit implements Client. The gateway responds only after the anchoring
// transaction is mined, so a successful return means the write is confirmed.
func (c *HTTPClient) Submit(ctx context.Context, sub Submission) (*Receipt, error) {
	payload := struct {
		Submission
		Network         string `json:"network"`
		ContractAddress string `json:"contract_address"`
	}{Submission: sub, Network: c.cfg.Network, ContractAddress: c.cfg.ContractAddress}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal submission: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint+"/v1/anchors", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.SigningKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.SigningKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read submit response: %v", ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, fmt.Errorf("%w: gateway returned %d: %s", ErrRejected, resp.StatusCode, gatewayError(raw))
	default:
		return nil, fmt.Errorf("%w: gateway returned %d", ErrUnavailable, resp.StatusCode)
	}

	var sr submitResponse
	if err := json.Unmarshal(raw, &sr); err != nil {
		return nil, fmt.Errorf("decode submit response: %w", err)
	}
	if sr.TransactionID == "" {
		return nil, fmt.Errorf("%w: gateway confirmed without a transaction id", ErrRejected)
	}

	return &Receipt{
		TransactionID: sr.TransactionID,
		BlockNumber:   sr.BlockNumber,
		Anchored:      true,
	}, nil
}

// Query implements Client. A 404 from the gateway means the fingerprint was
// never anchored and is reported as Anchored=false, not as an error.
func (c *HTTPClient) Query(ctx context.Context, fingerprint string) (*AnchorInfo, error) {
	u := c.cfg.Endpoint + "/v1/anchors/" + url.PathEscape(fingerprint)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build query request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusNotFound {
		return &AnchorInfo{Anchored: false}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: gateway returned %d", ErrUnavailable, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read query response: %v", ErrUnavailable, err)
	}

	var info AnchorInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("decode query response: %w", err)
	}
	info.Anchored = true
	return &info, nil
}

// gatewayError extracts the gateway's error message from a response body,
// falling back to the raw body when it is not the expected JSON shape.
func gatewayError(raw []byte) string {
	var sr submitResponse
	if err := json.Unmarshal(raw, &sr); err == nil && sr.Error != "" {
		return sr.Error
	}
	return string(raw)
}

var _ Client = (*HTTPClient)(nil)
