package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const mispServiceName = "MISP"

// MISPClient is a minimal client for the MISP REST API.
type MISPClient struct {
	config     MISPConfig
	httpClient *http.Client
}

// MISPConfig holds MISP-specific configuration.
type MISPConfig struct {
	ProviderConfig `yaml:",inline"`
}

// DefaultMISPConfig returns sensible defaults for MISP.
func DefaultMISPConfig() MISPConfig {
	return MISPConfig{ProviderConfig: DefaultProviderConfig()}
}

// NewMISPClient creates a new MISP client.
func NewMISPClient(config MISPConfig) (*MISPClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("MISP: %w", ErrMissingAPIKey)
	}

	if config.BaseURL == "" {
		return nil, fmt.Errorf("MISP: %w", ErrMissingURL)
	}

	httpClient, _ := httpClientFor(config.ProviderConfig)
	return &MISPClient{
		config:     config,
		httpClient: httpClient,
	}, nil
}

// Name returns the provider identifier.
func (c *MISPClient) Name() string {
	return "misp"
}

// HealthCheck verifies connectivity to MISP.
func (c *MISPClient) HealthCheck(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/servers/getVersion")
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &CommunicationError{Service: mispServiceName, Op: "health check", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &APIError{Service: mispServiceName, StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}

	return nil
}

// GetGalaxy retrieves a galaxy together with its clusters.
func (c *MISPClient) GetGalaxy(ctx context.Context, galaxyUUID string) (*Galaxy, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/galaxies/view/"+url.PathEscape(galaxyUUID))
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &CommunicationError{Service: mispServiceName, Op: "get galaxy", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &APIError{Service: mispServiceName, StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(bodyBytes))}
	}

	var galaxy Galaxy
	if err := json.NewDecoder(resp.Body).Decode(&galaxy); err != nil {
		return nil, &CommunicationError{Service: mispServiceName, Op: "get galaxy", Err: fmt.Errorf("decoding response: %w", err)}
	}

	return &galaxy, nil
}

// newRequest creates an authenticated MISP API request.
func (c *MISPClient) newRequest(ctx context.Context, method, path string) (*http.Request, error) {
	fullURL := strings.TrimSuffix(c.config.BaseURL, "/") + path

	req, err := http.NewRequestWithContext(ctx, method, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", c.config.APIKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	return req, nil
}

// MISP API types

// Galaxy is a MISP galaxy with its clusters.
type Galaxy struct {
	Galaxy   GalaxyInfo      `json:"Galaxy"`
	Clusters []GalaxyCluster `json:"GalaxyCluster"`
}

// GalaxyInfo describes a galaxy.
type GalaxyInfo struct {
	ID        string `json:"id"`
	UUID      string `json:"uuid"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	Namespace string `json:"namespace"`
}

// GalaxyCluster is one galaxy entry. For the ATT&CK pattern galaxy Value
// carries the technique name and id, e.g. "PowerShell - T1059.001".
type GalaxyCluster struct {
	UUID    string `json:"uuid"`
	Value   string `json:"value"`
	TagName string `json:"tag_name"`
}
