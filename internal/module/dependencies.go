package module

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/lvonguyen/nsxenrich/internal/config"
	"github.com/lvonguyen/nsxenrich/internal/enrichment"
	"github.com/lvonguyen/nsxenrich/internal/workflow"
)

// ClientFactory builds real HTTP clients for each query. Endpoint URLs and
// timeouts come from the service configuration; credentials come from the
// query. All clients share the factory's transports.
type ClientFactory struct {
	analysis   config.AnalysisConfig
	virusTotal config.ProviderConfig
	misp       config.ProviderConfig
	transports *enrichment.TransportPool
	logger     *zap.Logger
}

// NewClientFactory creates a factory from the service configuration.
func NewClientFactory(cfg *config.Config, logger *zap.Logger) *ClientFactory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClientFactory{
		analysis:   cfg.Analysis,
		virusTotal: cfg.VirusTotal,
		misp:       cfg.MISP,
		transports: enrichment.NewTransportPool(),
		logger:     logger,
	}
}

// Close drops idle connections held by the shared transports.
func (f *ClientFactory) Close() {
	f.transports.CloseIdleConnections()
}

// Build implements Dependencies. An on-premise URL replaces the hosted
// regions with a single primary endpoint.
func (f *ClientFactory) Build(_ context.Context, caps config.Capabilities) (workflow.Collaborators, error) {
	endpoints, err := f.endpoints(caps.Analysis)
	if err != nil {
		return workflow.Collaborators{}, err
	}

	collab := workflow.Collaborators{Endpoints: endpoints}

	if caps.VirusTotal != nil {
		vtConfig := enrichment.VirusTotalConfig{ProviderConfig: enrichment.ProviderConfig{
			APIKey:    caps.VirusTotal.APIKey,
			BaseURL:   f.virusTotal.BaseURL,
			Timeout:    f.virusTotal.Timeout,
			VerifySSL:  true,
			UserAgent:  f.analysis.UserAgent,
			HTTPClient: f.transports.Client(f.virusTotal.Timeout, true),
		}}
		collab.NewDownloader = func() (workflow.SampleDownloader, error) {
			client, err := enrichment.NewVirusTotalClient(vtConfig)
			if err != nil {
				return nil, err
			}
			return client, nil
		}
	} else {
		f.logger.Warn("VirusTotal integration disabled: no automatic sample download")
	}

	if caps.MISP != nil {
		client, err := enrichment.NewMISPClient(enrichment.MISPConfig{ProviderConfig: enrichment.ProviderConfig{
			APIKey:    caps.MISP.Key,
			BaseURL:   caps.MISP.URL,
			Timeout:    f.misp.Timeout,
			VerifySSL:  caps.MISP.VerifySSL,
			UserAgent:  f.analysis.UserAgent,
			HTTPClient: f.transports.Client(f.misp.Timeout, caps.MISP.VerifySSL),
		}})
		if err != nil {
			f.logger.Warn("MISP integration disabled: no MITRE technique tags", zap.Error(err))
		} else {
			collab.Galaxy = client
		}
	} else {
		f.logger.Warn("MISP integration disabled: no MITRE technique tags")
	}

	return collab, nil
}

func (f *ClientFactory) endpoints(analysis config.AnalysisCapability) (*enrichment.EndpointSet, error) {
	httpClient := f.transports.Client(f.analysis.Timeout, analysis.VerifySSL)
	newClient := func(baseURL string) (*enrichment.NSXClient, error) {
		return enrichment.NewNSXClient(enrichment.NSXConfig{
			ProviderConfig: enrichment.ProviderConfig{
				APIKey:     analysis.Key,
				BaseURL:    baseURL,
				Timeout:    f.analysis.Timeout,
				VerifySSL:  analysis.VerifySSL,
				UserAgent:  f.analysis.UserAgent,
				HTTPClient: httpClient,
			},
			APIToken: analysis.APIToken,
		})
	}

	if analysis.OnPremiseURL != "" {
		client, err := newClient(analysis.OnPremiseURL)
		if err != nil {
			return nil, err
		}
		f.logger.Debug("Using on-premise NSX Defender", zap.String("url", analysis.OnPremiseURL))
		return enrichment.NewEndpointSet(enrichment.RegionOnPremise,
			enrichment.Endpoint{Region: enrichment.RegionOnPremise, Client: client},
		)
	}

	eps := make([]enrichment.Endpoint, 0, len(f.analysis.Regions))
	for _, region := range f.analysis.Regions {
		client, err := newClient(region.URL)
		if err != nil {
			return nil, fmt.Errorf("region %s: %w", region.Name, err)
		}
		eps = append(eps, enrichment.Endpoint{Region: enrichment.Region(region.Name), Client: client})
	}
	return enrichment.NewEndpointSet(enrichment.Region(f.analysis.Primary), eps...)
}
