package enrichment

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

// =============================================================================
// Client Creation Tests
// =============================================================================

// TestNewVirusTotalClient_MissingAPIKey verifies that a key is required.
func TestNewVirusTotalClient_MissingAPIKey(t *testing.T) {
	_, err := NewVirusTotalClient(DefaultVirusTotalConfig())
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("expected ErrMissingAPIKey, got %v", err)
	}
}

// TestNewVirusTotalClient_DefaultBaseURL verifies the default base URL is set.
func TestNewVirusTotalClient_DefaultBaseURL(t *testing.T) {
	client, err := NewVirusTotalClient(VirusTotalConfig{ProviderConfig: ProviderConfig{APIKey: "k"}})
	if err != nil {
		t.Fatalf("NewVirusTotalClient should succeed: %v", err)
	}
	if client.config.BaseURL != vtDefaultBaseURL {
		t.Errorf("expected default base URL %q, got %q", vtDefaultBaseURL, client.config.BaseURL)
	}
	if client.Name() != "virustotal" {
		t.Errorf("expected name 'virustotal', got %q", client.Name())
	}
}

// =============================================================================
// Download Tests
// =============================================================================

func TestDownloadFile_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/files/2aac25ecdccf87abf6f1651ef2ffb30fcf732250/download" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-apikey") != "vt-key" {
			t.Errorf("expected x-apikey header, got %q", r.Header.Get("x-apikey"))
		}
		w.Write([]byte("MZ sample"))
	}))
	defer server.Close()

	config := DefaultVirusTotalConfig()
	config.APIKey = "vt-key"
	config.BaseURL = server.URL
	client, _ := NewVirusTotalClient(config)
	defer client.Close()

	var buf bytes.Buffer
	if err := client.DownloadFile(context.Background(), "2aac25ecdccf87abf6f1651ef2ffb30fcf732250", &buf); err != nil {
		t.Fatalf("DownloadFile failed: %v", err)
	}
	if buf.String() != "MZ sample" {
		t.Errorf("unexpected content %q", buf.String())
	}
}

func TestDownloadFile_FollowsRedirect(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/files/abc/download", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/storage/abc", http.StatusFound)
	})
	mux.HandleFunc("/storage/abc", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("redirected"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	config := DefaultVirusTotalConfig()
	config.APIKey = "vt-key"
	config.BaseURL = server.URL
	client, _ := NewVirusTotalClient(config)

	var buf bytes.Buffer
	if err := client.DownloadFile(context.Background(), "abc", &buf); err != nil {
		t.Fatalf("DownloadFile failed: %v", err)
	}
	if buf.String() != "redirected" {
		t.Errorf("unexpected content %q", buf.String())
	}
}

func TestDownloadFile_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error": {"code": "NotFoundError", "message": "File \"abc\" not found"}}`))
	}))
	defer server.Close()

	config := DefaultVirusTotalConfig()
	config.APIKey = "vt-key"
	config.BaseURL = server.URL
	client, _ := NewVirusTotalClient(config)

	err := client.DownloadFile(context.Background(), "abc", &bytes.Buffer{})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "NotFoundError" {
		t.Errorf("expected decoded VirusTotal error, got %v", err)
	}
}

func TestDownloadFile_Forbidden(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	config := DefaultVirusTotalConfig()
	config.APIKey = "vt-key"
	config.BaseURL = server.URL
	client, _ := NewVirusTotalClient(config)

	err := client.DownloadFile(context.Background(), "abc", &bytes.Buffer{})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusForbidden || errors.Is(err, ErrNotFound) {
		t.Errorf("unexpected error %+v", apiErr)
	}
}

func TestVirusTotalClient_CloseIsIdempotent(t *testing.T) {
	client, _ := NewVirusTotalClient(VirusTotalConfig{ProviderConfig: ProviderConfig{APIKey: "k"}})
	if err := client.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}
