// Package main runs the enrichment module once per canonical test query
// against live services and prints the responses. It is a smoke test for
// credentials and connectivity, not part of the server.
package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/lvonguyen/nsxenrich/internal/config"
	"github.com/lvonguyen/nsxenrich/internal/enrichment"
	"github.com/lvonguyen/nsxenrich/internal/module"
	"github.com/lvonguyen/nsxenrich/internal/observability"
	"github.com/lvonguyen/nsxenrich/internal/workflow"
)

const (
	testURL = "https://www.google.com"
	// knownMD5 has analyses on the hosted service.
	knownMD5 = "002c56165a0e78369d0e1023ce044bf0"
	// unknownSHA1 has none and goes through VirusTotal.
	unknownSHA1 = "2aac25ecdccf87abf6f1651ef2ffb30fcf732250"
)

func main() {
	credsPath := flag.String("c", "", "YAML file with module credentials (required)")
	attachment := flag.String("t", "", "Path to a test attachment")
	servicePath := flag.String("config", "", "Service config file for endpoint URLs and timeouts")
	check := flag.Bool("check", false, "Only check MISP connectivity")
	verbose := flag.Bool("v", false, "Debug logging")
	flag.Parse()

	if *credsPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(*credsPath, *attachment, *servicePath, *check, *verbose); err != nil {
		fmt.Fprintf(os.Stderr, "enrich: %v\n", err)
		os.Exit(1)
	}
}

func run(credsPath, attachment, servicePath string, check, verbose bool) error {
	level := "info"
	if verbose {
		level = "debug"
	}
	logger, err := observability.NewLogger(observability.Config{
		ServiceName: "nsxenrich-cli",
		ModuleName:  module.Name,
		LogLevel:    level,
		LogFormat:   "console",
	})
	if err != nil {
		return err
	}
	defer logger.Sync()

	creds, err := loadCredentials(credsPath)
	if err != nil {
		return err
	}

	cfg := config.DefaultConfig()
	if servicePath != "" {
		if cfg, err = config.Load(servicePath); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if check {
		return checkMISP(ctx, creds, cfg)
	}

	rawCreds, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("encoding credentials: %w", err)
	}

	queries := []workflow.Attribute{{Type: workflow.TypeURL, Value: testURL}}
	if attachment != "" {
		data, err := os.ReadFile(attachment)
		if err != nil {
			return fmt.Errorf("reading attachment: %w", err)
		}
		encoded := base64.StdEncoding.EncodeToString(data)
		queries = append(queries, workflow.Attribute{
			Type:  workflow.TypeAttachment,
			Value: filepath.Base(attachment),
			Data:  &encoded,
		})
	}
	queries = append(queries,
		workflow.Attribute{Type: workflow.TypeMD5, Value: knownMD5},
		workflow.Attribute{Type: workflow.TypeSHA1, Value: unknownSHA1},
	)

	mod := module.New(logger, workflow.NewOrchestrator(logger, nil, nil), module.NewClientFactory(cfg, logger))

	for i := range queries {
		attr := queries[i]
		logger.Info("Running query", zap.String("type", attr.Type), zap.String("value", attr.Value))

		resp := mod.HandleQuery(ctx, module.Query{
			Module:    module.Name,
			Config:    rawCreds,
			Attribute: &attr,
		})
		out, err := json.MarshalIndent(resp, "", "    ")
		if err != nil {
			return fmt.Errorf("encoding response: %w", err)
		}
		fmt.Println(string(out))
	}
	return nil
}

func loadCredentials(path string) (config.ModuleConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return config.ModuleConfig{}, fmt.Errorf("reading credentials: %w", err)
	}

	var creds config.ModuleConfig
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return config.ModuleConfig{}, fmt.Errorf("parsing credentials: %w", err)
	}
	if _, err := creds.Validate(); err != nil {
		return config.ModuleConfig{}, err
	}
	return creds, nil
}

func checkMISP(ctx context.Context, creds config.ModuleConfig, cfg *config.Config) error {
	caps, err := creds.Validate()
	if err != nil {
		return err
	}
	if caps.MISP == nil {
		return fmt.Errorf("misp_url and misp_key are required for -check")
	}

	client, err := enrichment.NewMISPClient(enrichment.MISPConfig{ProviderConfig: enrichment.ProviderConfig{
		APIKey:    caps.MISP.Key,
		BaseURL:   caps.MISP.URL,
		Timeout:   cfg.MISP.Timeout,
		VerifySSL: caps.MISP.VerifySSL,
	}})
	if err != nil {
		return err
	}
	if err := client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("MISP unreachable: %w", err)
	}
	fmt.Printf("MISP at %s is reachable\n", caps.MISP.URL)
	return nil
}
