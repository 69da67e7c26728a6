// Package client provides a Go SDK for the decertify HTTP API: issuing
// certificates, verifying them against the ledger, and listing an issuer's
// records.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrNotFound is returned when a verification or record lookup matches nothing.
var ErrNotFound = errors.New("certificate not found")

// Certificate mirrors the server's certificate record shape.
type Certificate struct {
	ID             string     `json:"id"`
	RecipientName  string     `json:"recipient_name"`
	RecipientEmail string     `json:"recipient_email"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	IssuerName     string     `json:"issuer_name"`
	IssuerAddress  string     `json:"issuer_address"`
	IssueDate      time.Time  `json:"issue_date"`
	ExpiryDate     *time.Time `json:"expiry_date,omitempty"`
	Fingerprint    string     `json:"fingerprint"`
	TransactionID  string     `json:"transaction_id"`
	Anchored       bool       `json:"anchored"`
	Status         string     `json:"status"`
}

// IssueRequest is the payload for Issue.
type IssueRequest struct {
	RecipientName  string     `json:"recipient_name"`
	RecipientEmail string     `json:"recipient_email"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	IssuerName     string     `json:"issuer_name,omitempty"`
	IssueDate      *time.Time `json:"issue_date,omitempty"`
	ExpiryDate     *time.Time `json:"expiry_date,omitempty"`
}

// VerifyCriteria selects a certificate for verification. Set exactly one field.
type VerifyCriteria struct {
	CertificateID string `json:"certificate_id,omitempty"`
	Fingerprint   string `json:"fingerprint,omitempty"`
	RecipientName string `json:"recipient_name,omitempty"`
}

// LedgerCheck mirrors the ledger side of the server's verdict.
type LedgerCheck struct {
	Anchored      bool   `json:"anchored"`
	IssuerAddress string `json:"issuer_address,omitempty"`
	RecipientName string `json:"recipient_name,omitempty"`
	Assumed       bool   `json:"assumed,omitempty"`
}

// Verdict is the outcome of a verification request.
type Verdict struct {
	Found       bool         `json:"found"`
	Certificate *Certificate `json:"certificate,omitempty"`
	Ledger      *LedgerCheck `json:"ledger,omitempty"`
	Status      string       `json:"status,omitempty"`
	MatchMode   string       `json:"match_mode,omitempty"`
}

// Client is the decertify SDK entry point.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	bearerToken string
}

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBearerToken attaches a session token to every request.
func WithBearerToken(token string) Option {
	return func(c *Client) { c.bearerToken = token }
}

// WithTimeout overrides the default 30-second request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// New creates a Client targeting baseURL (e.g. "http://localhost:8080").
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetBearerToken replaces the session token used for authenticated calls.
func (c *Client) SetBearerToken(token string) { c.bearerToken = token }

// Login authenticates with email/password and stores the returned session
// token on the client for subsequent calls.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	err := c.do(ctx, http.MethodPost, "/api/v1/auth/login",
		map[string]string{"email": email, "password": password}, &resp)
	if err != nil {
		return "", err
	}
	c.bearerToken = resp.Token
	return resp.Token, nil
}

// Issue anchors and persists a new certificate. Requires a session token.
func (c *Client) Issue(ctx context.Context, req IssueRequest) (*Certificate, error) {
	var resp struct {
		Certificate *Certificate `json:"certificate"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/certificates", req, &resp); err != nil {
		return nil, err
	}
	return resp.Certificate, nil
}

// Verify resolves a certificate against the ledger. A non-matching criteria
// returns ErrNotFound with the (found=false) verdict discarded.
func (c *Client) Verify(ctx context.Context, criteria VerifyCriteria) (*Verdict, error) {
	var verdict Verdict
	err := c.do(ctx, http.MethodPost, "/api/v1/certificates/verify", criteria, &verdict)
	if err != nil {
		return nil, err
	}
	return &verdict, nil
}

// ListIssued returns certificates issued by the authenticated account.
func (c *Client) ListIssued(ctx context.Context) ([]Certificate, error) {
	var resp struct {
		Certificates []Certificate `json:"certificates"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/certificates/issued", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Certificates, nil
}

// do executes a JSON request/response round trip against the API.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
