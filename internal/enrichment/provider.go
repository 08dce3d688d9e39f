// Package enrichment provides clients for the services an NSX Defender
// enrichment talks to: the NSX Defender analysis API, VirusTotal for sample
// retrieval and MISP for the MITRE ATT&CK galaxy.
package enrichment

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// Common errors.
var (
	ErrNotFound      = errors.New("not found")
	ErrMissingAPIKey = errors.New("api key is required")
	ErrMissingURL    = errors.New("base URL is required")
)

// APIError is an error reported by a remote service in a well-formed response.
type APIError struct {
	Service    string
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s API error %s (status %d): %s", e.Service, e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s API error (status %d): %s", e.Service, e.StatusCode, e.Message)
}

// Is reports 404 responses as ErrNotFound.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// CommunicationError is a transport level failure: the request never produced
// a usable response.
type CommunicationError struct {
	Service string
	Op      string
	Err     error
}

func (e *CommunicationError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Service, e.Op, e.Err)
}

func (e *CommunicationError) Unwrap() error {
	return e.Err
}

// ProviderConfig holds common provider configuration.
type ProviderConfig struct {
	APIKey    string        `yaml:"-"`
	BaseURL   string        `yaml:"base_url"`
	Timeout   time.Duration `yaml:"timeout"`
	VerifySSL bool          `yaml:"verify_ssl"`
	UserAgent string        `yaml:"user_agent"`

	// HTTPClient is used instead of a private client when set. Clients built
	// for successive queries share it so connections are reused.
	HTTPClient *http.Client `yaml:"-"`
}

// DefaultProviderConfig returns sensible defaults.
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		Timeout:   30 * time.Second,
		VerifySSL: true,
		UserAgent: "nsxenrich/1.0",
	}
}

// httpClientFor returns the configured shared client, or a private one. The
// boolean reports whether the caller owns the returned client.
func httpClientFor(config ProviderConfig) (*http.Client, bool) {
	if config.HTTPClient != nil {
		return config.HTTPClient, false
	}
	return newHTTPClient(config.Timeout, config.VerifySSL), true
}

// TransportPool hands out clients backed by one transport per TLS
// verification setting. A long-lived server builds provider clients per
// query; the pool keeps their connections from piling up.
type TransportPool struct {
	mu         sync.Mutex
	transports map[bool]*http.Transport
}

// NewTransportPool creates an empty pool.
func NewTransportPool() *TransportPool {
	return &TransportPool{transports: make(map[bool]*http.Transport)}
}

// Client returns a client with the given timeout over the shared transport.
func (p *TransportPool) Client(timeout time.Duration, verifySSL bool) *http.Client {
	p.mu.Lock()
	defer p.mu.Unlock()

	transport, ok := p.transports[verifySSL]
	if !ok {
		transport = newTransport(verifySSL)
		p.transports[verifySSL] = transport
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

// CloseIdleConnections closes idle connections on every pooled transport.
func (p *TransportPool) CloseIdleConnections() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, transport := range p.transports {
		transport.CloseIdleConnections()
	}
}

// newHTTPClient builds a client with its own transport so that closing idle
// connections on one provider never affects another.
func newHTTPClient(timeout time.Duration, verifySSL bool) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: newTransport(verifySSL),
	}
}

func newTransport(verifySSL bool) *http.Transport {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !verifySSL {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // operator opted out
	}
	return transport
}
