// Package report decodes NSX Defender analysis reports and transforms them
// into MISP events.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidReport is returned for reports that cannot be transformed.
var ErrInvalidReport = errors.New("invalid analysis report")

// Report is the subset of an NSX Defender analysis result the transformer
// reads. Every section except the subject is optional.
type Report struct {
	AnalysisSubject           *Subject               `json:"analysis_subject"`
	Score                     *json.Number           `json:"score"`
	Report                    Details                `json:"report"`
	MaliciousActivity         []string               `json:"malicious_activity"`
	ActivityToMitreTechniques map[string][]Technique `json:"activity_to_mitre_techniques"`
}

// Subject is the analyzed URL or file.
type Subject struct {
	URL      *string `json:"url"`
	MD5      string  `json:"md5"`
	SHA1     string  `json:"sha1"`
	SHA256   string  `json:"sha256"`
	MimeType string  `json:"mime_type"`
}

// Details holds the detailed behavior sections.
type Details struct {
	Analysis struct {
		Network struct {
			Requests []NetworkRequest `json:"requests"`
		} `json:"network"`
	} `json:"analysis"`
	AnalysisSubjects []AnalysisSubject `json:"analysis_subjects"`
}

// NetworkRequest is a request made while rendering an analyzed URL.
type NetworkRequest struct {
	URL string `json:"url"`
	IP  string `json:"ip"`
}

// AnalysisSubject is a process or file observed during a file analysis.
type AnalysisSubject struct {
	DNSQueries        []DNSQuery         `json:"dns_queries"`
	HTTPConversations []HTTPConversation `json:"http_conversations"`
}

// DNSQuery is a resolved hostname.
type DNSQuery struct {
	Hostname string   `json:"hostname"`
	Results  []string `json:"results"`
}

// HTTPConversation is an HTTP exchange. URL holds the raw request line,
// e.g. "GET /index.html HTTP/1.1".
type HTTPConversation struct {
	SrcIP   string `json:"src_ip"`
	DstIP   string `json:"dst_ip"`
	SrcPort int    `json:"src_port"`
	DstPort int    `json:"dst_port"`
	DstHost string `json:"dst_host"`
	URL     string `json:"url"`
}

// Technique is an ATT&CK technique linked to a malicious activity.
type Technique struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Decode parses a raw report and checks the mandatory sections.
func Decode(raw []byte) (*Report, error) {
	var r Report
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReport, err)
	}
	if r.AnalysisSubject == nil {
		return nil, fmt.Errorf("%w: missing analysis_subject", ErrInvalidReport)
	}
	return &r, nil
}
