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

const (
	vtDefaultBaseURL = "https://www.virustotal.com"
	vtAPIPath        = "/api/v3"
	vtServiceName    = "VirusTotal"
)

// VirusTotalClient downloads samples from VirusTotal. A client with its own
// transport holds pooled connections until Close is called.
type VirusTotalClient struct {
	config     VirusTotalConfig
	httpClient *http.Client
	ownsClient bool
}

// VirusTotalConfig holds VirusTotal-specific configuration.
type VirusTotalConfig struct {
	ProviderConfig `yaml:",inline"`
}

// DefaultVirusTotalConfig returns sensible defaults for VirusTotal.
func DefaultVirusTotalConfig() VirusTotalConfig {
	cfg := VirusTotalConfig{ProviderConfig: DefaultProviderConfig()}
	cfg.BaseURL = vtDefaultBaseURL
	return cfg
}

// NewVirusTotalClient creates a new VirusTotal client.
func NewVirusTotalClient(config VirusTotalConfig) (*VirusTotalClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("VirusTotal: %w", ErrMissingAPIKey)
	}

	if config.BaseURL == "" {
		config.BaseURL = vtDefaultBaseURL
	}

	httpClient, owned := httpClientFor(config.ProviderConfig)
	return &VirusTotalClient{
		config:     config,
		httpClient: httpClient,
		ownsClient: owned,
	}, nil
}

// Name returns the provider identifier.
func (c *VirusTotalClient) Name() string {
	return "virustotal"
}

// DownloadFile streams the sample identified by hash into w.
func (c *VirusTotalClient) DownloadFile(ctx context.Context, hash string, w io.Writer) error {
	path := fmt.Sprintf("/files/%s/download", url.PathEscape(hash))

	req, err := c.newRequest(ctx, http.MethodGet, path)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &CommunicationError{Service: vtServiceName, Op: "download file", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return vtError(resp)
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		return &CommunicationError{Service: vtServiceName, Op: "download file", Err: err}
	}
	return nil
}

// Close releases pooled connections. A shared client is left alone.
func (c *VirusTotalClient) Close() error {
	if c.ownsClient {
		c.httpClient.CloseIdleConnections()
	}
	return nil
}

// newRequest creates an authenticated VirusTotal API request.
func (c *VirusTotalClient) newRequest(ctx context.Context, method, path string) (*http.Request, error) {
	fullURL := strings.TrimSuffix(c.config.BaseURL, "/") + vtAPIPath + path

	req, err := http.NewRequestWithContext(ctx, method, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("x-apikey", c.config.APIKey)
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	return req, nil
}

// vtError decodes the VirusTotal error object, falling back to the status.
func vtError(resp *http.Response) error {
	apiErr := &APIError{Service: vtServiceName, StatusCode: resp.StatusCode}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var payload struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error.Code != "" {
		apiErr.Code = payload.Error.Code
		apiErr.Message = payload.Error.Message
	} else {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
