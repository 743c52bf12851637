// Package relay calls downstream APIs on behalf of a logged in user, using a
// token from the user's session as the bearer credential.
package relay

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/jrsteele09/go-oidc-relay/internal/config"
	"github.com/jrsteele09/go-oidc-relay/internal/metrics"
	"github.com/jrsteele09/go-oidc-relay/token"
	"github.com/rs/zerolog/log"
)

// MaxResponseBytes caps how much of an upstream body is read.
const MaxResponseBytes = 1 << 20

var (
	ErrNetworkFailure    = errors.New("upstream request failed")
	ErrResponseTooLarge  = errors.New("upstream response exceeds size limit")
	ErrInvalidEndpoint   = errors.New("relay endpoint is not configured")
	ErrNoCredentialToken = errors.New("session has no token for this endpoint")
)

// UpstreamError is a non 2xx answer from the downstream API. Status and body
// are passed back to the browser unchanged.
type UpstreamError struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned %d", e.StatusCode)
}

// Endpoint is one downstream API and the session token it accepts.
type Endpoint struct {
	Name  string
	URL   string
	Token token.Kind
}

// Response is a successful downstream answer.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Client performs relay calls. Calls are never retried.
type Client struct {
	httpClient *http.Client
	metrics    *metrics.Metrics
}

// New builds a Client with the TLS policy and timeout from cfg.
func New(cfg config.RelayConfig, m *metrics.Metrics) (*Client, error) {
	transport := cleanhttp.DefaultPooledTransport()
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}

	if caFile := cfg.GetRelayCAFile(); caFile != "" {
		pem, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("[relay New] reading CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("[relay New] no certificates found in %s", caFile)
		}
		tlsConfig.RootCAs = pool
	}
	if cfg.GetRelayInsecureSkipVerify() {
		log.Warn().Msg("relay TLS certificate verification is DISABLED by configuration")
		tlsConfig.InsecureSkipVerify = true
	}
	transport.TLSClientConfig = tlsConfig

	return NewWithHTTPClient(&http.Client{
		Transport: transport,
		Timeout:   cfg.GetRelayTimeout(),
	}, m), nil
}

// NewWithHTTPClient builds a Client around an existing HTTP client.
func NewWithHTTPClient(c *http.Client, m *metrics.Metrics) *Client {
	return &Client{httpClient: c, metrics: m}
}

// Call sends one request to ep, authorised with the endpoint's token from tokens.
func (c *Client) Call(ctx context.Context, tokens token.Bundle, ep Endpoint, method string, body io.Reader) (resp *Response, err error) {
	defer func() { c.metrics.ObserveRelay(ep.Name, err) }()

	if ep.URL == "" {
		return nil, fmt.Errorf("[relay Call] %w: %s", ErrInvalidEndpoint, ep.Name)
	}
	bearer, err := tokens.Token(ep.Token)
	if err != nil {
		return nil, fmt.Errorf("[relay Call] %w: %v", ErrNoCredentialToken, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, ep.URL, body)
	if err != nil {
		return nil, fmt.Errorf("[relay Call] building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("[relay Call] %w: %s: %v", ErrNetworkFailure, ep.Name, err)
	}
	defer httpResp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(httpResp.Body, MaxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("[relay Call] %w: reading %s response: %v", ErrNetworkFailure, ep.Name, err)
	}
	if len(payload) > MaxResponseBytes {
		return nil, fmt.Errorf("[relay Call] %w: %s", ErrResponseTooLarge, ep.Name)
	}

	contentType := httpResp.Header.Get("Content-Type")
	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, &UpstreamError{
			StatusCode:  httpResp.StatusCode,
			ContentType: contentType,
			Body:        payload,
		}
	}

	return &Response{
		StatusCode:  httpResp.StatusCode,
		ContentType: contentType,
		Body:        payload,
	}, nil
}
