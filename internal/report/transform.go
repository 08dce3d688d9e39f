package report

import (
	"fmt"
	"net"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/lvonguyen/nsxenrich/internal/enrichment"
	"github.com/lvonguyen/nsxenrich/internal/event"
	"github.com/lvonguyen/nsxenrich/internal/mitre"
)

const (
	sandboxName       = "vmware-nsx-defender"
	signatureSoftware = "VMware NSX Defender"
)

// Hostnames that never identify a remote host.
var ignoredHostnames = map[string]bool{
	"wpad":      true,
	"localhost": true,
}

// Transformer converts completed reports into events.
type Transformer struct {
	catalog *mitre.Catalog
}

// NewTransformer creates a transformer. A nil catalog disables technique tags.
func NewTransformer(catalog *mitre.Catalog) *Transformer {
	return &Transformer{catalog: catalog}
}

// Transform decodes raw and builds the event for the analysis at link.
func (t *Transformer) Transform(link string, raw []byte) (*event.Event, error) {
	r, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	return t.Build(link, r)
}

// Build turns a decoded report into an event. The event always holds exactly
// one subject object and one sandbox-report object.
func (t *Transformer) Build(link string, r *Report) (*event.Event, error) {
	if r.AnalysisSubject == nil {
		return nil, fmt.Errorf("%w: missing analysis_subject", ErrInvalidReport)
	}

	ev := event.New()
	ev.AddObject(subjectObject(r.AnalysisSubject))

	for _, req := range r.Report.Analysis.Network.Requests {
		if req.URL == "" && req.IP == "" {
			continue
		}
		ev.AddObject(event.NewHTTPRequestObject(event.HTTPRequest{
			Method: "GET",
			Host:   hostOf(req.URL),
			URI:    req.URL,
			IPDst:  req.IP,
		}))
	}

	for _, subject := range r.Report.AnalysisSubjects {
		for _, q := range subject.DNSQueries {
			if !isRemoteHostname(q.Hostname) {
				continue
			}
			ev.AddObject(event.NewDomainIPObject(q.Hostname, q.Results))
		}

		for _, conv := range subject.HTTPConversations {
			objs, err := conversationObjects(conv)
			if err != nil {
				return nil, err
			}
			for _, o := range objs {
				ev.AddObject(o)
			}
		}
	}

	sandboxType := event.SandboxOnPremise
	if enrichment.IsTaskHosted(link) {
		sandboxType = event.SandboxSaaS
	}
	var score string
	if r.Score != nil {
		score = r.Score.String()
	}
	ev.AddObject(event.NewSandboxReportObject(event.SandboxReport{
		Score:       score,
		SandboxType: sandboxType,
		SandboxName: sandboxName,
		Permalink:   link,
	}))

	if len(r.MaliciousActivity) > 0 {
		ev.AddObject(event.NewSignatureObject(signatureSoftware, r.MaliciousActivity))
	}

	for _, tag := range t.techniqueTags(r.ActivityToMitreTechniques) {
		ev.AddTag(tag)
	}

	return ev, nil
}

// techniqueTags resolves every reported technique against the catalog.
// Activities are visited in sorted order so output is stable.
func (t *Transformer) techniqueTags(activities map[string][]Technique) []string {
	if t.catalog.Len() == 0 || len(activities) == 0 {
		return nil
	}

	keys := make([]string, 0, len(activities))
	for k := range activities {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var tags []string
	for _, k := range keys {
		for _, tech := range activities[k] {
			if tag, ok := t.catalog.Match(tech.ID); ok {
				tags = append(tags, tag)
			}
		}
	}
	return tags
}

func subjectObject(s *Subject) event.Object {
	if s.URL != nil {
		return event.NewURLObject(*s.URL)
	}
	return event.NewFileObject(event.FileInfo{
		MD5:      s.MD5,
		SHA1:     s.SHA1,
		SHA256:   s.SHA256,
		MimeType: s.MimeType,
	})
}

// conversationObjects describes an HTTP conversation both as a connection and
// as a request.
func conversationObjects(c HTTPConversation) ([]event.Object, error) {
	parts := strings.Split(c.URL, " ")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: malformed request line %q", ErrInvalidReport, c.URL)
	}
	method, path := parts[0], parts[1]

	conn := event.NewNetworkConnectionObject(event.NetworkConnection{
		SrcIP:          c.SrcIP,
		DstIP:          c.DstIP,
		SrcPort:        c.SrcPort,
		DstPort:        c.DstPort,
		DstHost:        c.DstHost,
		Layer3Protocol: "IP",
		Layer4Protocol: "TCP",
		Layer7Protocol: "HTTP",
	})

	req := event.NewHTTPRequestObject(event.HTTPRequest{
		Method: method,
		Host:   c.DstHost,
		URI:    conversationURI(c.DstHost, c.DstPort, path),
		IPDst:  c.DstIP,
	})

	return []event.Object{conn, req}, nil
}

func conversationURI(host string, port int, path string) string {
	if port == 80 {
		return "http://" + host + path
	}
	return "http://" + host + ":" + strconv.Itoa(port) + path
}

// isRemoteHostname filters out resolver noise: well-known local names, bare
// labels, reverse lookups ending in "." and literal addresses.
func isRemoteHostname(hostname string) bool {
	if ignoredHostnames[hostname] {
		return false
	}
	if !strings.Contains(hostname, ".") || strings.HasSuffix(hostname, ".") {
		return false
	}
	return net.ParseIP(hostname) == nil
}

func hostOf(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}
