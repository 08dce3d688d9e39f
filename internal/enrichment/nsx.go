package enrichment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
)

const nsxServiceName = "NSX Defender"

// NSXClient talks to the NSX Defender (formerly Lastline) analysis API.
type NSXClient struct {
	config     NSXConfig
	httpClient *http.Client
}

// NSXConfig holds NSX Defender credentials and connection settings.
type NSXConfig struct {
	ProviderConfig `yaml:",inline"`
	APIToken       string `yaml:"-"`
}

// DefaultNSXConfig returns sensible defaults for NSX Defender.
func DefaultNSXConfig() NSXConfig {
	cfg := NSXConfig{ProviderConfig: DefaultProviderConfig()}
	cfg.BaseURL = DefaultRegionURLs[RegionWestUS]
	return cfg
}

// NewNSXClient creates a new NSX Defender analysis client.
func NewNSXClient(config NSXConfig) (*NSXClient, error) {
	if config.APIKey == "" || config.APIToken == "" {
		return nil, fmt.Errorf("NSX Defender: %w", ErrMissingAPIKey)
	}
	if config.BaseURL == "" {
		return nil, fmt.Errorf("NSX Defender: %w", ErrMissingURL)
	}

	httpClient, _ := httpClientFor(config.ProviderConfig)
	return &NSXClient{
		config:     config,
		httpClient: httpClient,
	}, nil
}

// Name returns the provider identifier.
func (c *NSXClient) Name() string {
	return "nsx"
}

// BaseURL returns the analysis API URL the client is bound to.
func (c *NSXClient) BaseURL() string {
	return strings.TrimSuffix(c.config.BaseURL, "/")
}

// SubmitURL submits a URL for analysis.
func (c *NSXClient) SubmitURL(ctx context.Context, rawURL string) (*Submission, error) {
	params := url.Values{}
	params.Set("url", rawURL)

	req, err := c.newFormRequest(ctx, "/analysis/submit/url", params)
	if err != nil {
		return nil, err
	}

	var sub Submission
	if err := c.do(req, "submit url", &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// SubmitFile uploads file content for analysis.
func (c *NSXClient) SubmitFile(ctx context.Context, data []byte, filename string) (*Submission, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	for k, v := range c.credentials() {
		if err := mw.WriteField(k, v[0]); err != nil {
			return nil, fmt.Errorf("building multipart body: %w", err)
		}
	}
	if err := mw.WriteField("filename", filename); err != nil {
		return nil, fmt.Errorf("building multipart body: %w", err)
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("building multipart body: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("building multipart body: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("building multipart body: %w", err)
	}

	req, err := c.newRequest(ctx, "/analysis/submit/file", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var sub Submission
	if err := c.do(req, "submit file", &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// QueryFileHash lists the analysis tasks known for a file hash.
func (c *NSXClient) QueryFileHash(ctx context.Context, hash string) (*HashQuery, error) {
	hashType := hashParam(hash)
	if hashType == "" {
		return nil, fmt.Errorf("unsupported hash %q", hash)
	}

	params := url.Values{}
	params.Set(hashType, strings.ToLower(hash))

	req, err := c.newFormRequest(ctx, "/analysis/query/file_hash", params)
	if err != nil {
		return nil, err
	}

	var result HashQuery
	if err := c.do(req, "query file hash", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetAnalysisTags returns the categorical tags attached to a task.
func (c *NSXClient) GetAnalysisTags(ctx context.Context, taskUUID string) ([]AnalysisTag, error) {
	params := url.Values{}
	params.Set("uuid", taskUUID)

	req, err := c.newFormRequest(ctx, "/analysis/get_analysis_tags", params)
	if err != nil {
		return nil, err
	}

	var result struct {
		AnalysisTags []AnalysisTag `json:"analysis_tags"`
	}
	if err := c.do(req, "get analysis tags", &result); err != nil {
		return nil, err
	}
	return result.AnalysisTags, nil
}

// GetResult returns the raw analysis report of a completed task.
func (c *NSXClient) GetResult(ctx context.Context, taskUUID string) (json.RawMessage, error) {
	params := url.Values{}
	params.Set("uuid", taskUUID)

	req, err := c.newFormRequest(ctx, "/analysis/get_result", params)
	if err != nil {
		return nil, err
	}

	var result json.RawMessage
	if err := c.do(req, "get result", &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *NSXClient) credentials() url.Values {
	v := url.Values{}
	v.Set("key", c.config.APIKey)
	v.Set("api_token", c.config.APIToken)
	return v
}

// newFormRequest creates an authenticated url-encoded POST request.
func (c *NSXClient) newFormRequest(ctx context.Context, path string, params url.Values) (*http.Request, error) {
	form := c.credentials()
	for k, vs := range params {
		for _, v := range vs {
			form.Add(k, v)
		}
	}

	req, err := c.newRequest(ctx, path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req, nil
}

func (c *NSXClient) newRequest(ctx context.Context, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL()+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	return req, nil
}

// do executes the request and unwraps the API envelope into out.
func (c *NSXClient) do(req *http.Request, op string, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &CommunicationError{Service: nsxServiceName, Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &CommunicationError{Service: nsxServiceName, Op: op, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return &APIError{
			Service:    nsxServiceName,
			StatusCode: resp.StatusCode,
			Message:    truncate(string(body), 256),
		}
	}

	var env nsxEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return &CommunicationError{Service: nsxServiceName, Op: op, Err: fmt.Errorf("decoding response: %w", err)}
	}

	if env.Success != 1 {
		return &APIError{
			Service:    nsxServiceName,
			StatusCode: resp.StatusCode,
			Code:       env.ErrorCode.String(),
			Message:    env.Error,
		}
	}

	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &CommunicationError{Service: nsxServiceName, Op: op, Err: fmt.Errorf("decoding data: %w", err)}
	}
	return nil
}

// hashParam maps a hex digest to the query parameter that carries it.
func hashParam(hash string) string {
	switch len(hash) {
	case 32:
		return "md5"
	case 40:
		return "sha1"
	case 64:
		return "sha256"
	default:
		return ""
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// NSX Defender API types

type nsxEnvelope struct {
	Success   int             `json:"success"`
	Data      json.RawMessage `json:"data"`
	ErrorCode json.Number     `json:"error_code"`
	Error     string          `json:"error"`
}

// Submission is the immediate response to a URL or file submission. Score is
// nil until the analysis has completed.
type Submission struct {
	TaskUUID string   `json:"task_uuid"`
	Score    *float64 `json:"score"`
}

// HashQuery is the response to a file hash query.
type HashQuery struct {
	FilesFound int          `json:"files_found"`
	Tasks      []TaskRecord `json:"tasks"`
}

// TaskRecord is a task known for a queried hash.
type TaskRecord struct {
	TaskUUID string   `json:"task_uuid"`
	Expires  string   `json:"expires"`
	Score    *float64 `json:"score,omitempty"`
}

// AnalysisTag is a categorical tag attached to an analysis task.
type AnalysisTag struct {
	Data struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	} `json:"data"`
}
