package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Module configuration errors.
var (
	ErrMissingCredential = errors.New("missing credential")
	ErrInvalidSetting    = errors.New("invalid setting")
)

// ModuleConfigKeys lists the settings a MISP instance may pass with a query.
var ModuleConfigKeys = []string{
	"analysis_url",
	"analysis_verify_ssl",
	"analysis_key",
	"analysis_api_token",
	"vt_key",
	"misp_url",
	"misp_verify_ssl",
	"misp_key",
}

// Flag is a boolean setting that also accepts the string forms MISP sends,
// such as "true", "False" or "1". An unset flag falls back to a default.
type Flag struct {
	value bool
	set   bool
}

// NewFlag returns a set flag.
func NewFlag(v bool) Flag {
	return Flag{value: v, set: true}
}

// Or returns the flag value, or def when the flag was not set.
func (f Flag) Or(def bool) bool {
	if !f.set {
		return def
	}
	return f.value
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *Flag) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = Flag{}
		return nil
	}

	var raw string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
	} else {
		raw = string(data)
	}
	return f.parse(raw)
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (f *Flag) UnmarshalYAML(node *yaml.Node) error {
	if node.Tag == "!!null" {
		*f = Flag{}
		return nil
	}
	return f.parse(node.Value)
}

func (f *Flag) parse(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		*f = Flag{}
		return nil
	}

	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fmt.Errorf("%w: %q is not a boolean", ErrInvalidSetting, raw)
	}
	*f = Flag{value: v, set: true}
	return nil
}

// MarshalJSON implements json.Marshaler. Unset flags render as null.
func (f Flag) MarshalJSON() ([]byte, error) {
	if !f.set {
		return []byte("null"), nil
	}
	return json.Marshal(f.value)
}

// ModuleConfig is the "config" object of a misp-modules query.
type ModuleConfig struct {
	AnalysisURL       string `json:"analysis_url" yaml:"analysis_url"`
	AnalysisVerifySSL Flag   `json:"analysis_verify_ssl" yaml:"analysis_verify_ssl"`
	AnalysisKey       string `json:"analysis_key" yaml:"analysis_key"`
	AnalysisAPIToken  string `json:"analysis_api_token" yaml:"analysis_api_token"`
	VTKey             string `json:"vt_key" yaml:"vt_key"`
	MISPURL           string `json:"misp_url" yaml:"misp_url"`
	MISPVerifySSL     Flag   `json:"misp_verify_ssl" yaml:"misp_verify_ssl"`
	MISPKey           string `json:"misp_key" yaml:"misp_key"`
}

// ParseModuleConfig decodes the query "config" object. A missing object is
// an empty configuration.
func ParseModuleConfig(raw json.RawMessage) (ModuleConfig, error) {
	var mc ModuleConfig
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return mc, nil
	}
	if err := json.Unmarshal(raw, &mc); err != nil {
		return ModuleConfig{}, fmt.Errorf("decoding module config: %w", err)
	}
	return mc, nil
}

// Capabilities is a validated module configuration: what a query may use.
type Capabilities struct {
	Analysis   AnalysisCapability
	VirusTotal *VirusTotalCapability
	MISP       *MISPCapability
}

// AnalysisCapability holds NSX Defender credentials. OnPremiseURL is set when
// the query targets an on-premise manager instead of the hosted regions.
type AnalysisCapability struct {
	OnPremiseURL string
	Key          string
	APIToken     string
	VerifySSL    bool
}

// VirusTotalCapability enables sample downloads.
type VirusTotalCapability struct {
	APIKey string
}

// MISPCapability enables ATT&CK technique tagging.
type MISPCapability struct {
	URL       string
	Key       string
	VerifySSL bool
}

// Validate checks the mandatory credentials and derives the optional
// integrations. Missing optional settings disable the matching capability.
func (m ModuleConfig) Validate() (Capabilities, error) {
	var missing []string
	if strings.TrimSpace(m.AnalysisKey) == "" {
		missing = append(missing, "analysis_key")
	}
	if strings.TrimSpace(m.AnalysisAPIToken) == "" {
		missing = append(missing, "analysis_api_token")
	}
	if len(missing) > 0 {
		return Capabilities{}, fmt.Errorf("%w: %s", ErrMissingCredential, strings.Join(missing, ", "))
	}

	caps := Capabilities{
		Analysis: AnalysisCapability{
			OnPremiseURL: strings.TrimSpace(m.AnalysisURL),
			Key:          m.AnalysisKey,
			APIToken:     m.AnalysisAPIToken,
			VerifySSL:    m.AnalysisVerifySSL.Or(true),
		},
	}

	if key := strings.TrimSpace(m.VTKey); key != "" {
		caps.VirusTotal = &VirusTotalCapability{APIKey: key}
	}

	if url, key := strings.TrimSpace(m.MISPURL), strings.TrimSpace(m.MISPKey); url != "" && key != "" {
		caps.MISP = &MISPCapability{
			URL:       url,
			Key:       key,
			VerifySSL: m.MISPVerifySSL.Or(true),
		}
	}

	return caps, nil
}
