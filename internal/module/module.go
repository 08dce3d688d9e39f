// Package module implements the misp-modules expansion protocol for the
// NSX Defender enrichment: introspection, version and query handling.
package module

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/lvonguyen/nsxenrich/internal/config"
	"github.com/lvonguyen/nsxenrich/internal/workflow"
)

// Module metadata reported to MISP.
const (
	Name        = "vmware_nsx"
	Version     = "0.2"
	Author      = "Jason Zhang, Stefano Ortolani"
	Description = "Enrich a file or URL with VMware NSX Defender"

	// FormatMISPStandard means results are MISP objects rather than plain
	// attribute values.
	FormatMISPStandard = "misp_standard"
)

// ModuleTypes are the MISP module kinds this module serves.
var ModuleTypes = []string{"expansion", "hover"}

// IntrospectionInfo describes the accepted inputs and the output format.
type IntrospectionInfo struct {
	Input  []string `json:"input"`
	Format string   `json:"format"`
}

// Info is the module version payload.
type Info struct {
	Version     string   `json:"version"`
	Author      string   `json:"author"`
	Description string   `json:"description"`
	ModuleType  []string `json:"module-type"`
	Config      []string `json:"config"`
}

// Introspection returns the attribute types the module accepts.
func Introspection() IntrospectionInfo {
	return IntrospectionInfo{
		Input:  append([]string(nil), workflow.SupportedTypes...),
		Format: FormatMISPStandard,
	}
}

// VersionInfo returns the module metadata and its configuration keys.
func VersionInfo() Info {
	return Info{
		Version:     Version,
		Author:      Author,
		Description: Description,
		ModuleType:  append([]string(nil), ModuleTypes...),
		Config:      append([]string(nil), config.ModuleConfigKeys...),
	}
}

// Query is a misp-modules query.
type Query struct {
	Module    string              `json:"module"`
	Config    json.RawMessage     `json:"config,omitempty"`
	Attribute *workflow.Attribute `json:"attribute"`
}

// Dependencies builds the clients a query may use from its validated
// configuration.
type Dependencies interface {
	Build(ctx context.Context, caps config.Capabilities) (workflow.Collaborators, error)
}

// Response is the outcome of a query: either a result or an error.
type Response struct {
	result *workflow.Result
	err    error
}

// Result returns the enrichment result, nil on error.
func (r Response) Result() *workflow.Result { return r.result }

// Err returns the query error, nil on success.
func (r Response) Err() error { return r.err }

// MarshalJSON renders {"results": ...} or {"error": "..."}.
func (r Response) MarshalJSON() ([]byte, error) {
	if r.err != nil {
		return json.Marshal(map[string]string{"error": errorMessage(r.err)})
	}
	return json.Marshal(r.result)
}

// Module handles queries. It is safe for concurrent use.
type Module struct {
	logger       *zap.Logger
	orchestrator *workflow.Orchestrator
	deps         Dependencies
}

// New creates a module.
func New(logger *zap.Logger, orchestrator *workflow.Orchestrator, deps Dependencies) *Module {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Module{
		logger:       logger,
		orchestrator: orchestrator,
		deps:         deps,
	}
}

// Handle runs one query. Failures are reported in the response, never
// returned, so the caller can always send the response back to MISP.
func (m *Module) Handle(ctx context.Context, raw []byte) Response {
	var q Query
	if err := json.Unmarshal(raw, &q); err != nil {
		return m.fail(workflow.ErrInputParsing, fmt.Errorf("decoding query: %w", err))
	}
	return m.HandleQuery(ctx, q)
}

// HandleQuery runs an already decoded query.
func (m *Module) HandleQuery(ctx context.Context, q Query) Response {
	if q.Module != "" && q.Module != Name {
		m.logger.Debug("Query addressed to another module name", zap.String("module", q.Module))
	}

	mc, err := config.ParseModuleConfig(q.Config)
	if err != nil {
		return m.fail(workflow.ErrConfiguration, err)
	}
	caps, err := mc.Validate()
	if err != nil {
		return m.fail(workflow.ErrConfiguration, err)
	}

	if q.Attribute == nil {
		return m.fail(workflow.ErrInputParsing, errors.New("missing attribute"))
	}

	collab, err := m.deps.Build(ctx, caps)
	if err != nil {
		return m.fail(workflow.ErrConfiguration, err)
	}

	result, err := m.orchestrator.Enrich(ctx, collab, *q.Attribute)
	if err != nil {
		return Response{err: err}
	}
	return Response{result: result}
}

func (m *Module) fail(kind, err error) Response {
	werr := &workflow.Error{Kind: kind, Err: err}
	m.logger.Error("Rejected query", zap.Error(werr))
	return Response{err: werr}
}

// errorMessage capitalizes the error the way MISP displays module errors.
func errorMessage(err error) string {
	msg := err.Error()
	r, size := utf8.DecodeRuneInString(msg)
	if r == utf8.RuneError {
		return msg
	}
	return string(unicode.ToUpper(r)) + msg[size:]
}
