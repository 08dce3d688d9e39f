package event

import "strconv"

// Object template names.
const (
	ObjectURL               = "url"
	ObjectFile              = "file"
	ObjectHTTPRequest       = "http-request"
	ObjectDomainIP          = "domain-ip"
	ObjectNetworkConnection = "network-connection"
	ObjectSandboxReport     = "sandbox-report"
	ObjectSignature         = "sb-signature"
)

// NewURLObject describes an analyzed URL.
func NewURLObject(url string) Object {
	return newObject(ObjectURL, MetaNetwork).
		add("url", "url", CategoryNetworkActivity, url, true).
		build()
}

// FileInfo holds the digests and type of an analyzed file.
type FileInfo struct {
	MD5      string
	SHA1     string
	SHA256   string
	MimeType string
}

// NewFileObject describes an analyzed file.
func NewFileObject(f FileInfo) Object {
	return newObject(ObjectFile, MetaFile).
		add("md5", "md5", CategoryPayloadDelivery, f.MD5, true).
		add("sha1", "sha1", CategoryPayloadDelivery, f.SHA1, true).
		add("sha256", "sha256", CategoryPayloadDelivery, f.SHA256, true).
		add("mimetype", "mime-type", CategoryPayloadDelivery, f.MimeType, false).
		build()
}

// HTTPRequest holds the fields of an observed HTTP request.
type HTTPRequest struct {
	Method string
	Host   string
	URI    string
	IPDst  string
}

// NewHTTPRequestObject describes an HTTP request.
func NewHTTPRequestObject(r HTTPRequest) Object {
	return newObject(ObjectHTTPRequest, MetaNetwork).
		add("method", "http-method", CategoryNetworkActivity, r.Method, false).
		add("host", "hostname", CategoryNetworkActivity, r.Host, true).
		add("uri", "uri", CategoryNetworkActivity, r.URI, true).
		add("ip-dst", "ip-dst", CategoryNetworkActivity, r.IPDst, true).
		build()
}

// NewDomainIPObject describes a resolved hostname, one ip attribute per
// resolution result.
func NewDomainIPObject(hostname string, ips []string) Object {
	b := newObject(ObjectDomainIP, MetaNetwork).
		add("hostname", "hostname", CategoryNetworkActivity, hostname, true)
	for _, ip := range ips {
		b.add("ip", "ip-dst", CategoryNetworkActivity, ip, true)
	}
	return b.build()
}

// NetworkConnection holds the endpoints and protocol stack of a connection.
// Zero ports are omitted.
type NetworkConnection struct {
	SrcIP          string
	DstIP          string
	SrcPort        int
	DstPort        int
	DstHost        string
	Layer3Protocol string
	Layer4Protocol string
	Layer7Protocol string
}

// NewNetworkConnectionObject describes a network connection.
func NewNetworkConnectionObject(c NetworkConnection) Object {
	return newObject(ObjectNetworkConnection, MetaNetwork).
		add("ip-src", "ip-src", CategoryNetworkActivity, c.SrcIP, true).
		add("ip-dst", "ip-dst", CategoryNetworkActivity, c.DstIP, true).
		add("src-port", "port", CategoryNetworkActivity, port(c.SrcPort), false).
		add("dst-port", "port", CategoryNetworkActivity, port(c.DstPort), false).
		add("hostname-dst", "hostname", CategoryNetworkActivity, c.DstHost, true).
		add("layer3-protocol", "text", CategoryOther, c.Layer3Protocol, false).
		add("layer4-protocol", "text", CategoryOther, c.Layer4Protocol, false).
		add("layer7-protocol", "text", CategoryOther, c.Layer7Protocol, false).
		build()
}

// Sandbox deployment types.
const (
	SandboxSaaS      = "saas"
	SandboxOnPremise = "on-premise"
)

// SandboxReport holds sandbox verdict metadata.
type SandboxReport struct {
	Score       string
	SandboxType string
	SandboxName string
	Permalink   string
}

// NewSandboxReportObject describes a sandbox verdict. The product name is
// recorded under "<type>-sandbox", e.g. "saas-sandbox".
func NewSandboxReportObject(r SandboxReport) Object {
	b := newObject(ObjectSandboxReport, MetaMisc).
		add("score", "text", CategoryOther, r.Score, false).
		add("sandbox-type", "text", CategoryOther, r.SandboxType, false)
	if r.SandboxType != "" {
		b.add(r.SandboxType+"-sandbox", "text", CategoryOther, r.SandboxName, false)
	}
	return b.add("permalink", "link", CategoryExternalAnalysis, r.Permalink, false).
		build()
}

// NewSignatureObject describes the behavioral signatures a sandbox raised.
func NewSignatureObject(software string, signatures []string) Object {
	b := newObject(ObjectSignature, MetaMisc).
		add("software", "text", CategoryOther, software, false)
	for _, sig := range signatures {
		b.add("signature", "text", CategoryOther, sig, false)
	}
	return b.build()
}

func port(p int) string {
	if p <= 0 {
		return ""
	}
	return strconv.Itoa(p)
}
