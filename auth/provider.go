package auth

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	defaultDiscoveryRetries = 3
	discoveryKey            = "discover"
)

// ProviderMetadata is the subset of the discovery document the relay uses.
type ProviderMetadata struct {
	Issuer             string
	AuthURL            string
	TokenURL           string
	EndSessionEndpoint string
}

// Provider discovers the identity provider configuration on first use and
// caches it for the life of the process. Concurrent first calls share one
// discovery request.
type Provider struct {
	issuerURL  string
	httpClient *http.Client
	retries    uint64
	group      singleflight.Group

	// acceptDocumentIssuer allows a discovery document whose issuer differs
	// from issuerURL, such as a multi tenant document naming
	// "https://login.microsoftonline.com/{tenantid}/v2.0".
	acceptDocumentIssuer bool

	mu       sync.RWMutex
	provider *oidc.Provider
	metadata ProviderMetadata
}

// ProviderOption modifies a Provider.
type ProviderOption func(*Provider)

// WithHTTPClient sets the client used for discovery, JWKS and token requests.
func WithHTTPClient(c *http.Client) ProviderOption {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// WithDiscoveryRetries sets how many times a failed discovery is retried.
func WithDiscoveryRetries(n uint64) ProviderOption {
	return func(p *Provider) {
		p.retries = n
	}
}

// WithAllowedIssuers accepts a discovery document whose issuer differs from the
// discovery URL when issuers is non-empty. The issuer allow-list enforced by
// IDTokenValidator is then the only issuer check.
func WithAllowedIssuers(issuers []string) ProviderOption {
	return func(p *Provider) {
		p.acceptDocumentIssuer = len(issuers) > 0
	}
}

// NewProvider creates a Provider for the issuer at issuerURL.
func NewProvider(issuerURL string, options ...ProviderOption) *Provider {
	p := &Provider{
		issuerURL:  issuerURL,
		httpClient: cleanhttp.DefaultPooledClient(),
		retries:    defaultDiscoveryRetries,
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

// ClientContext returns ctx carrying the provider HTTP client, for token exchange.
func (p *Provider) ClientContext(ctx context.Context) context.Context {
	return oidc.ClientContext(ctx, p.httpClient)
}

// Discover returns the discovered provider, fetching it if this is the first
// successful call. A failed discovery is not cached.
func (p *Provider) Discover(ctx context.Context) (*oidc.Provider, ProviderMetadata, error) {
	p.mu.RLock()
	prov, md := p.provider, p.metadata
	p.mu.RUnlock()
	if prov != nil {
		return prov, md, nil
	}

	resultCh := p.group.DoChan(discoveryKey, func() (interface{}, error) {
		return nil, p.discover()
	})

	select {
	case <-ctx.Done():
		return nil, ProviderMetadata{}, fmt.Errorf("[auth Discover] %w", ctx.Err())
	case res := <-resultCh:
		if res.Err != nil {
			return nil, ProviderMetadata{}, res.Err
		}
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.provider, p.metadata, nil
}

func (p *Provider) discover() error {
	// The remote key set keeps this context for later JWKS fetches, so it
	// must outlive any single request.
	ctx := oidc.ClientContext(context.Background(), p.httpClient)
	if p.acceptDocumentIssuer {
		ctx = oidc.InsecureIssuerURLContext(ctx, p.issuerURL)
	}

	var prov *oidc.Provider
	attempt := 0
	operation := func() error {
		attempt++
		var err error
		prov, err = oidc.NewProvider(ctx, p.issuerURL)
		if err != nil {
			log.Warn().Err(err).Int("attempt", attempt).Str("issuer", p.issuerURL).Msg("OIDC discovery failed")
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxElapsedTime = 10 * time.Second
	if err := backoff.Retry(operation, backoff.WithMaxRetries(b, p.retries)); err != nil {
		return fmt.Errorf("[auth discover] provider discovery for %s: %w", p.issuerURL, err)
	}

	var doc struct {
		Issuer             string `json:"issuer"`
		EndSessionEndpoint string `json:"end_session_endpoint"`
	}
	if err := prov.Claims(&doc); err != nil {
		return fmt.Errorf("[auth discover] decoding discovery document: %w", err)
	}

	endpoint := prov.Endpoint()
	md := ProviderMetadata{
		Issuer:             doc.Issuer,
		AuthURL:            endpoint.AuthURL,
		TokenURL:           endpoint.TokenURL,
		EndSessionEndpoint: doc.EndSessionEndpoint,
	}

	if md.Issuer != p.issuerURL {
		log.Info().Str("discovery_issuer", md.Issuer).Str("issuer", p.issuerURL).Msg("discovery document names a different issuer, ID tokens are checked against the allow-list")
	}

	p.mu.Lock()
	p.provider = prov
	p.metadata = md
	p.mu.Unlock()

	log.Info().Str("issuer", md.Issuer).Str("authorization_endpoint", md.AuthURL).Msg("OIDC provider discovered")
	return nil
}
