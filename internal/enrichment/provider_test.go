package enrichment

import (
	"testing"
	"time"
)

// =============================================================================
// Shared Transport Tests
// =============================================================================

func TestTransportPool_SharesBySSLSetting(t *testing.T) {
	pool := NewTransportPool()

	a := pool.Client(5*time.Second, true)
	b := pool.Client(30*time.Second, true)
	insecure := pool.Client(5*time.Second, false)

	if a.Transport != b.Transport {
		t.Error("clients with the same TLS setting should share a transport")
	}
	if a.Transport == insecure.Transport {
		t.Error("insecure clients must not share the verifying transport")
	}
	if b.Timeout != 30*time.Second {
		t.Errorf("expected per-client timeout, got %v", b.Timeout)
	}
}

func TestNewClients_UseSharedHTTPClient(t *testing.T) {
	shared := NewTransportPool().Client(time.Second, true)

	nsx, err := NewNSXClient(NSXConfig{
		ProviderConfig: ProviderConfig{APIKey: "k", BaseURL: "https://nsx.test", HTTPClient: shared},
		APIToken:       "t",
	})
	if err != nil {
		t.Fatalf("NewNSXClient failed: %v", err)
	}
	if nsx.httpClient != shared {
		t.Error("NSX client ignored the shared client")
	}

	vt, err := NewVirusTotalClient(VirusTotalConfig{ProviderConfig: ProviderConfig{APIKey: "v", HTTPClient: shared}})
	if err != nil {
		t.Fatalf("NewVirusTotalClient failed: %v", err)
	}
	if vt.ownsClient {
		t.Error("VirusTotal client should not own a shared client")
	}
}
