package enrichment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Region identifies an NSX Defender data center.
type Region string

const (
	RegionWestUS    Region = "westus"
	RegionNLEMEA    Region = "nlemea"
	RegionOnPremise Region = "onpremise"
)

// DefaultRegionURLs holds the analysis API of each hosted data center.
var DefaultRegionURLs = map[Region]string{
	RegionWestUS: "https://analysis.lastline.com",
	RegionNLEMEA: "https://analysis.nl.emea.lastline.com",
}

// HostedRegions is the order in which hosted data centers are queried. The
// first one is the primary.
var HostedRegions = []Region{RegionWestUS, RegionNLEMEA}

const (
	// portalLoadBalancerHost serves every hosted task regardless of region.
	portalLoadBalancerHost = "user.lastline.com"
	taskLinkFragment       = "/portal#/analyst/task/%s/overview"
)

var hostedPortalHosts = map[string]bool{
	portalLoadBalancerHost:   true,
	"user.emea.lastline.com": true,
}

// AnalysisClient is the subset of the NSX Defender API the enrichment
// workflow relies on. *NSXClient implements it.
type AnalysisClient interface {
	SubmitURL(ctx context.Context, rawURL string) (*Submission, error)
	SubmitFile(ctx context.Context, data []byte, filename string) (*Submission, error)
	QueryFileHash(ctx context.Context, hash string) (*HashQuery, error)
	GetAnalysisTags(ctx context.Context, taskUUID string) ([]AnalysisTag, error)
	GetResult(ctx context.Context, taskUUID string) (json.RawMessage, error)
	BaseURL() string
}

// Endpoint binds a region to its analysis client.
type Endpoint struct {
	Region Region
	Client AnalysisClient
}

// EndpointSet is an ordered list of regional endpoints with exactly one
// primary. Submissions, tags and reports go to the primary; hash queries go
// to every endpoint in order.
type EndpointSet struct {
	endpoints []Endpoint
	primary   int
}

// ErrNoEndpoints is returned when an endpoint set would be empty.
var ErrNoEndpoints = errors.New("no analysis endpoints configured")

// NewEndpointSet builds an endpoint set. The primary region must be one of
// the endpoints.
func NewEndpointSet(primary Region, endpoints ...Endpoint) (*EndpointSet, error) {
	if len(endpoints) == 0 {
		return nil, ErrNoEndpoints
	}

	idx := -1
	seen := make(map[Region]bool, len(endpoints))
	for i, ep := range endpoints {
		if ep.Client == nil {
			return nil, fmt.Errorf("endpoint %q has no client", ep.Region)
		}
		if seen[ep.Region] {
			return nil, fmt.Errorf("duplicate endpoint region %q", ep.Region)
		}
		seen[ep.Region] = true
		if ep.Region == primary {
			idx = i
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("primary region %q is not configured", primary)
	}

	return &EndpointSet{
		endpoints: append([]Endpoint(nil), endpoints...),
		primary:   idx,
	}, nil
}

// Primary returns the primary endpoint.
func (s *EndpointSet) Primary() Endpoint {
	return s.endpoints[s.primary]
}

// All returns every endpoint in query order.
func (s *EndpointSet) All() []Endpoint {
	return append([]Endpoint(nil), s.endpoints...)
}

// Len returns the number of endpoints.
func (s *EndpointSet) Len() int {
	return len(s.endpoints)
}

// Hosted reports whether the set targets the hosted data centers. Hosted
// region URLs may be overridden in configuration, so this follows the
// primary's region rather than its URL.
func (s *EndpointSet) Hosted() bool {
	return s.Primary().Region != RegionOnPremise
}

// TaskLink builds the portal permalink of a task analyzed by the primary
// endpoint.
func (s *EndpointSet) TaskLink(taskUUID string) string {
	return TaskLink(s.Primary().Client.BaseURL(), taskUUID, s.Hosted())
}

// TaskLink builds the portal permalink of a task. Hosted tasks always use the
// load-balanced portal; on-premise tasks use the manager the API lives on.
func TaskLink(analysisURL, taskUUID string, hosted bool) string {
	if hosted {
		return "https://" + portalLoadBalancerHost + fmt.Sprintf(taskLinkFragment, taskUUID)
	}

	u, err := url.Parse(analysisURL)
	if err != nil || u.Host == "" {
		return strings.TrimSuffix(analysisURL, "/") + fmt.Sprintf(taskLinkFragment, taskUUID)
	}
	scheme := u.Scheme
	if scheme == "" {
		scheme = "https"
	}
	return scheme + "://" + u.Host + fmt.Sprintf(taskLinkFragment, taskUUID)
}

// IsTaskHosted reports whether a task link points at the hosted portal.
func IsTaskHosted(link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	return hostedPortalHosts[strings.ToLower(u.Hostname())]
}
