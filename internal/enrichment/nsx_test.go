package enrichment

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestNSXClient(t *testing.T, serverURL string) *NSXClient {
	t.Helper()

	config := DefaultNSXConfig()
	config.BaseURL = serverURL
	config.APIKey = "test-key"
	config.APIToken = "test-token"
	config.Timeout = 5 * time.Second

	client, err := NewNSXClient(config)
	if err != nil {
		t.Fatalf("NewNSXClient failed: %v", err)
	}
	return client
}

// =============================================================================
// Client Creation Tests
// =============================================================================

func TestNewNSXClient_MissingCredentials(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		apiToken string
	}{
		{"no key", "", "token"},
		{"no token", "key", ""},
		{"nothing", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultNSXConfig()
			config.APIKey = tt.key
			config.APIToken = tt.apiToken

			_, err := NewNSXClient(config)
			if !errors.Is(err, ErrMissingAPIKey) {
				t.Errorf("expected ErrMissingAPIKey, got %v", err)
			}
		})
	}
}

func TestNewNSXClient_MissingURL(t *testing.T) {
	config := DefaultNSXConfig()
	config.APIKey = "key"
	config.APIToken = "token"
	config.BaseURL = ""

	if _, err := NewNSXClient(config); !errors.Is(err, ErrMissingURL) {
		t.Errorf("expected ErrMissingURL, got %v", err)
	}
}

func TestNSXClient_BaseURL(t *testing.T) {
	client := newTestNSXClient(t, "https://nsx.example.com/")
	if client.BaseURL() != "https://nsx.example.com" {
		t.Errorf("expected trailing slash trimmed, got %q", client.BaseURL())
	}
	if client.Name() != "nsx" {
		t.Errorf("expected name 'nsx', got %q", client.Name())
	}
}

// =============================================================================
// Submission Tests
// =============================================================================

func TestSubmitURL_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/analysis/submit/url" {
			t.Errorf("expected path /analysis/submit/url, got %s", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parsing form: %v", err)
		}
		if r.PostForm.Get("key") != "test-key" || r.PostForm.Get("api_token") != "test-token" {
			t.Errorf("missing credentials in form: %v", r.PostForm)
		}
		if r.PostForm.Get("url") != "https://www.google.com" {
			t.Errorf("unexpected url param %q", r.PostForm.Get("url"))
		}

		w.Write([]byte(`{"success": 1, "data": {"task_uuid": "abc123", "score": 0}}`))
	}))
	defer server.Close()

	client := newTestNSXClient(t, server.URL)

	sub, err := client.SubmitURL(context.Background(), "https://www.google.com")
	if err != nil {
		t.Fatalf("SubmitURL failed: %v", err)
	}
	if sub.TaskUUID != "abc123" {
		t.Errorf("expected task uuid abc123, got %q", sub.TaskUUID)
	}
	if sub.Score == nil || *sub.Score != 0 {
		t.Errorf("expected score 0, got %v", sub.Score)
	}
}

func TestSubmitURL_PendingHasNoScore(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": 1, "data": {"task_uuid": "abc123"}}`))
	}))
	defer server.Close()

	sub, err := newTestNSXClient(t, server.URL).SubmitURL(context.Background(), "https://example.com")
	if err != nil {
		t.Fatalf("SubmitURL failed: %v", err)
	}
	if sub.Score != nil {
		t.Errorf("expected nil score, got %v", *sub.Score)
	}
}

func TestSubmitFile_Multipart(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/analysis/submit/file" {
			t.Errorf("expected path /analysis/submit/file, got %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parsing multipart form: %v", err)
		}
		if r.FormValue("key") != "test-key" || r.FormValue("api_token") != "test-token" {
			t.Error("missing credentials in multipart form")
		}
		if r.FormValue("filename") != "test.docx" {
			t.Errorf("unexpected filename %q", r.FormValue("filename"))
		}

		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("reading file part: %v", err)
		}
		defer f.Close()
		content, _ := io.ReadAll(f)
		if string(content) != "sample-bytes" {
			t.Errorf("unexpected file content %q", content)
		}
		if hdr.Filename != "test.docx" {
			t.Errorf("unexpected part filename %q", hdr.Filename)
		}

		w.Write([]byte(`{"success": 1, "data": {"task_uuid": "file-task", "score": 70}}`))
	}))
	defer server.Close()

	sub, err := newTestNSXClient(t, server.URL).SubmitFile(context.Background(), []byte("sample-bytes"), "test.docx")
	if err != nil {
		t.Fatalf("SubmitFile failed: %v", err)
	}
	if sub.TaskUUID != "file-task" || sub.Score == nil || *sub.Score != 70 {
		t.Errorf("unexpected submission %+v", sub)
	}
}

// =============================================================================
// Query Tests
// =============================================================================

func TestQueryFileHash_ParameterByLength(t *testing.T) {
	tests := []struct {
		hash  string
		param string
	}{
		{"002c56165a0e78369d0e1023ce044bf0", "md5"},
		{"2aac25ecdccf87abf6f1651ef2ffb30fcf732250", "sha1"},
		{"E3B0C44298FC1C149AFBF4C8996FB92427AE41E4649B934CA495991B7852B855", "sha256"},
	}

	for _, tt := range tests {
		t.Run(tt.param, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				r.ParseForm()
				if got := r.PostForm.Get(tt.param); got != strings.ToLower(tt.hash) {
					t.Errorf("expected %s=%s, got %q", tt.param, strings.ToLower(tt.hash), got)
				}
				w.Write([]byte(`{"success": 1, "data": {"files_found": 1, "tasks": [
					{"task_uuid": "t1", "expires": "2024-01-02 03:04:05"}
				]}}`))
			}))
			defer server.Close()

			result, err := newTestNSXClient(t, server.URL).QueryFileHash(context.Background(), tt.hash)
			if err != nil {
				t.Fatalf("QueryFileHash failed: %v", err)
			}
			if len(result.Tasks) != 1 || result.Tasks[0].TaskUUID != "t1" {
				t.Errorf("unexpected tasks %+v", result.Tasks)
			}
			if result.Tasks[0].Expires != "2024-01-02 03:04:05" {
				t.Errorf("unexpected expires %q", result.Tasks[0].Expires)
			}
		})
	}
}

func TestQueryFileHash_InvalidHash(t *testing.T) {
	client := newTestNSXClient(t, "http://127.0.0.1:1")
	if _, err := client.QueryFileHash(context.Background(), "abc"); err == nil {
		t.Error("QueryFileHash should reject hashes of unknown length")
	}
}

func TestGetAnalysisTags(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.PostForm.Get("uuid") != "task-1" {
			t.Errorf("unexpected uuid %q", r.PostForm.Get("uuid"))
		}
		w.Write([]byte(`{"success": 1, "data": {"analysis_tags": [
			{"data": {"type": "av_family", "value": "emotet"}},
			{"data": {"type": "file_type", "value": "pe"}}
		]}}`))
	}))
	defer server.Close()

	tags, err := newTestNSXClient(t, server.URL).GetAnalysisTags(context.Background(), "task-1")
	if err != nil {
		t.Fatalf("GetAnalysisTags failed: %v", err)
	}
	if len(tags) != 2 {
		t.Fatalf("expected 2 tags, got %d", len(tags))
	}
	if tags[0].Data.Type != "av_family" || tags[0].Data.Value != "emotet" {
		t.Errorf("unexpected first tag %+v", tags[0])
	}
}

func TestGetResult_ReturnsRawData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": 1, "data": {"score": 42, "analysis_subject": {"url": "https://x"}}}`))
	}))
	defer server.Close()

	raw, err := newTestNSXClient(t, server.URL).GetResult(context.Background(), "task-1")
	if err != nil {
		t.Fatalf("GetResult failed: %v", err)
	}
	if !strings.Contains(string(raw), `"score": 42`) {
		t.Errorf("expected raw report, got %s", raw)
	}
}

// =============================================================================
// Error Handling Tests
// =============================================================================

func TestNSXClient_APIErrorEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": 0, "error_code": 3004, "error": "No report available"}`))
	}))
	defer server.Close()

	_, err := newTestNSXClient(t, server.URL).GetResult(context.Background(), "task-1")

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.Code != "3004" || apiErr.Message != "No report available" {
		t.Errorf("unexpected API error %+v", apiErr)
	}
}

func TestNSXClient_HTTPStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := newTestNSXClient(t, server.URL).GetAnalysisTags(context.Background(), "task-1")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestNSXClient_MalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>maintenance</html>`))
	}))
	defer server.Close()

	_, err := newTestNSXClient(t, server.URL).SubmitURL(context.Background(), "https://x")

	var commErr *CommunicationError
	if !errors.As(err, &commErr) {
		t.Errorf("expected *CommunicationError, got %T: %v", err, err)
	}
}

func TestNSXClient_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := newTestNSXClient(t, url).QueryFileHash(context.Background(), "002c56165a0e78369d0e1023ce044bf0")

	var commErr *CommunicationError
	if !errors.As(err, &commErr) {
		t.Fatalf("expected *CommunicationError, got %T: %v", err, err)
	}
	if commErr.Op != "query file hash" {
		t.Errorf("unexpected op %q", commErr.Op)
	}
}
