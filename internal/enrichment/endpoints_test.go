package enrichment

import (
	"errors"
	"testing"
)

// =============================================================================
// EndpointSet Tests
// =============================================================================

func TestNewEndpointSet(t *testing.T) {
	west := &NSXClient{config: NSXConfig{ProviderConfig: ProviderConfig{BaseURL: DefaultRegionURLs[RegionWestUS]}}}
	emea := &NSXClient{config: NSXConfig{ProviderConfig: ProviderConfig{BaseURL: DefaultRegionURLs[RegionNLEMEA]}}}

	set, err := NewEndpointSet(RegionWestUS,
		Endpoint{Region: RegionWestUS, Client: west},
		Endpoint{Region: RegionNLEMEA, Client: emea},
	)
	if err != nil {
		t.Fatalf("NewEndpointSet failed: %v", err)
	}

	if set.Primary().Region != RegionWestUS {
		t.Errorf("expected primary westus, got %s", set.Primary().Region)
	}
	if set.Len() != 2 {
		t.Errorf("expected 2 endpoints, got %d", set.Len())
	}

	all := set.All()
	if all[0].Region != RegionWestUS || all[1].Region != RegionNLEMEA {
		t.Errorf("endpoint order not preserved: %v", all)
	}
}

func TestNewEndpointSet_Invalid(t *testing.T) {
	client := &NSXClient{}

	if _, err := NewEndpointSet(RegionWestUS); !errors.Is(err, ErrNoEndpoints) {
		t.Errorf("expected ErrNoEndpoints, got %v", err)
	}

	if _, err := NewEndpointSet(RegionNLEMEA, Endpoint{Region: RegionWestUS, Client: client}); err == nil {
		t.Error("expected error when primary is not configured")
	}

	if _, err := NewEndpointSet(RegionWestUS,
		Endpoint{Region: RegionWestUS, Client: client},
		Endpoint{Region: RegionWestUS, Client: client},
	); err == nil {
		t.Error("expected error on duplicate region")
	}

	if _, err := NewEndpointSet(RegionWestUS, Endpoint{Region: RegionWestUS}); err == nil {
		t.Error("expected error on missing client")
	}
}

// =============================================================================
// Task Link Tests
// =============================================================================

func TestTaskLink(t *testing.T) {
	tests := []struct {
		name        string
		analysisURL string
		want        string
		hosted      bool
	}{
		{
			name:        "hosted westus",
			analysisURL: "https://analysis.lastline.com",
			want:        "https://user.lastline.com/portal#/analyst/task/abc/overview",
			hosted:      true,
		},
		{
			name:        "hosted emea uses load balancer",
			analysisURL: "https://analysis.nl.emea.lastline.com/",
			want:        "https://user.lastline.com/portal#/analyst/task/abc/overview",
			hosted:      true,
		},
		{
			name:        "on-premise manager",
			analysisURL: "https://nsx-manager.corp.local/papi",
			want:        "https://nsx-manager.corp.local/portal#/analyst/task/abc/overview",
			hosted:      false,
		},
		{
			name:        "on-premise keeps scheme and port",
			analysisURL: "http://10.0.0.5:8080",
			want:        "http://10.0.0.5:8080/portal#/analyst/task/abc/overview",
			hosted:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			link := TaskLink(tt.analysisURL, "abc", tt.hosted)
			if link != tt.want {
				t.Errorf("TaskLink = %q, want %q", link, tt.want)
			}
			if IsTaskHosted(link) != tt.hosted {
				t.Errorf("IsTaskHosted(%q) = %v, want %v", link, !tt.hosted, tt.hosted)
			}
		})
	}
}

func TestEndpointSet_TaskLink(t *testing.T) {
	tests := []struct {
		name    string
		region  Region
		baseURL string
		want    string
		hosted  bool
	}{
		{"default hosted URL", RegionWestUS, DefaultRegionURLs[RegionWestUS], "https://user.lastline.com/portal#/analyst/task/abc/overview", true},
		{"overridden hosted URL", RegionWestUS, "https://analysis-proxy.corp.local", "https://user.lastline.com/portal#/analyst/task/abc/overview", true},
		{"on-premise", RegionOnPremise, "https://nsx-manager.corp.local/papi", "https://nsx-manager.corp.local/portal#/analyst/task/abc/overview", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &NSXClient{config: NSXConfig{ProviderConfig: ProviderConfig{BaseURL: tt.baseURL}}}
			set, err := NewEndpointSet(tt.region, Endpoint{Region: tt.region, Client: client})
			if err != nil {
				t.Fatalf("NewEndpointSet failed: %v", err)
			}
			if set.Hosted() != tt.hosted {
				t.Errorf("Hosted() = %v, want %v", set.Hosted(), tt.hosted)
			}
			if got := set.TaskLink("abc"); got != tt.want {
				t.Errorf("TaskLink = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsTaskHosted(t *testing.T) {
	tests := map[string]bool{
		"https://user.lastline.com/portal#/analyst/task/x/overview":      true,
		"https://user.emea.lastline.com/portal#/analyst/task/x/overview": true,
		"https://USER.LASTLINE.COM/portal":                                true,
		"https://lastline.corp.local/portal#/analyst/task/x/overview":    false,
		"not a url at all %%":                                             false,
	}
	for link, want := range tests {
		if got := IsTaskHosted(link); got != want {
			t.Errorf("IsTaskHosted(%q) = %v, want %v", link, got, want)
		}
	}
}
