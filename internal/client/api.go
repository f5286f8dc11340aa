package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/wolfeidau/coursecert/internal/certificate"
	"github.com/wolfeidau/coursecert/internal/models"
)

// ErrUnauthorized is returned when the server rejects the bearer token.
var ErrUnauthorized = errors.New("unauthorized, obtain a new token")

// APIError is a non-2xx response from the certificate API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Config configures an API client.
type Config struct {
	ServerURL string
	Token     string // bearer token, optional for verification
	Timeout   time.Duration
	Debug     bool
}

// APIClient calls the certificate HTTP API.
type APIClient struct {
	baseURL string
	token   string
	http    *http.Client
	debug   bool
}

// NewAPIClient creates a client for the server at cfg.ServerURL.
func NewAPIClient(cfg Config) (*APIClient, error) {
	u, err := url.Parse(cfg.ServerURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid server URL %q", cfg.ServerURL)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &APIClient{
		baseURL: strings.TrimSuffix(u.String(), "/"),
		token:   cfg.Token,
		http: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   timeout,
		},
		debug: cfg.Debug,
	}, nil
}

// RegisterRequest is the body of POST /api/certificates/register.
type RegisterRequest struct {
	CertID      string  `json:"certId"`
	FullName    string  `json:"fullName,omitempty"`
	CourseKey   string  `json:"courseKey,omitempty"`
	StoragePath *string `json:"storagePath,omitempty"`
}

// Register records certificate metadata for the token's account.
func (c *APIClient) Register(ctx context.Context, req RegisterRequest) error {
	return c.do(ctx, http.MethodPost, "/api/certificates/register", req, nil)
}

// Verify looks up a certificate by ID. An unknown ID is a result with Found
// false, not an error.
func (c *APIClient) Verify(ctx context.Context, certID string) (*certificate.VerifyResult, error) {
	var res certificate.VerifyResult
	path := "/api/certificates/verify?cid=" + url.QueryEscape(certID)
	if err := c.do(ctx, http.MethodGet, path, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// List returns the certificates of the token's account, newest first.
func (c *APIClient) List(ctx context.Context, limit int) ([]*models.PublicCertificate, error) {
	var res struct {
		Certificates []*models.PublicCertificate `json:"certificates"`
	}
	path := "/api/certificates"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &res); err != nil {
		return nil, err
	}
	return res.Certificates, nil
}

// EnsureBucket asks the server to create the certificate bucket.
func (c *APIClient) EnsureBucket(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/storage/ensure-cert-bucket", nil, nil)
}

func (c *APIClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if c.debug {
		log.Debug().
			Str("method", method).
			Str("path", path).
			Int("status", resp.StatusCode).
			Dur("duration", time.Since(start)).
			Msg("api request")
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	var e struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(data, &e); err != nil || e.Error == "" {
		e.Error = strings.TrimSpace(string(data))
	}
	if e.Error == "" {
		e.Error = http.StatusText(resp.StatusCode)
	}
	return &APIError{StatusCode: resp.StatusCode, Message: e.Error}
}
