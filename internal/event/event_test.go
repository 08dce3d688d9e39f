package event

import (
	"encoding/json"
	"strings"
	"testing"
)

// =============================================================================
// Builder Tests
// =============================================================================

func TestNewFileObject(t *testing.T) {
	obj := NewFileObject(FileInfo{
		MD5:      "002c56165a0e78369d0e1023ce044bf0",
		SHA1:     "2aac25ecdccf87abf6f1651ef2ffb30fcf732250",
		SHA256:   "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		MimeType: "application/x-pe-app-32bit-i386",
	})

	if obj.Name() != ObjectFile || obj.MetaCategory() != MetaFile {
		t.Errorf("unexpected object header %s/%s", obj.Name(), obj.MetaCategory())
	}

	attrs := obj.Attributes()
	if len(attrs) != 4 {
		t.Fatalf("expected 4 attributes, got %d", len(attrs))
	}

	mime := attrs[3]
	if mime.Relation() != "mimetype" || mime.Type() != "mime-type" || mime.Category() != CategoryPayloadDelivery {
		t.Errorf("unexpected mimetype attribute %+v", mime)
	}
	if mime.ToIDS() {
		t.Error("mimetype should not be flagged for IDS")
	}
	if attrs[0].Type() != "md5" || !attrs[0].ToIDS() {
		t.Errorf("unexpected md5 attribute %+v", attrs[0])
	}
}

func TestBuilders_SkipEmptyValues(t *testing.T) {
	obj := NewHTTPRequestObject(HTTPRequest{Method: "GET", IPDst: "1.2.3.4"})

	if got := len(obj.Attributes()); got != 2 {
		t.Errorf("expected 2 attributes, got %d", got)
	}
	if obj.Value("host") != "" {
		t.Error("empty host should not be recorded")
	}
}

func TestNewDomainIPObject(t *testing.T) {
	obj := NewDomainIPObject("evil.example.com", []string{"1.2.3.4", "5.6.7.8"})

	if obj.Value("hostname") != "evil.example.com" {
		t.Errorf("unexpected hostname %q", obj.Value("hostname"))
	}
	ips := obj.Values("ip")
	if len(ips) != 2 || ips[0] != "1.2.3.4" || ips[1] != "5.6.7.8" {
		t.Errorf("unexpected ips %v", ips)
	}
	for _, a := range obj.Attributes() {
		if a.Relation() == "ip" && a.Type() != "ip-dst" {
			t.Errorf("ip attribute should be ip-dst, got %s", a.Type())
		}
	}
}

func TestNewNetworkConnectionObject(t *testing.T) {
	obj := NewNetworkConnectionObject(NetworkConnection{
		SrcIP:          "10.0.0.2",
		DstIP:          "93.184.216.34",
		SrcPort:        49152,
		DstPort:        80,
		DstHost:        "example.com",
		Layer3Protocol: "IP",
		Layer4Protocol: "TCP",
		Layer7Protocol: "HTTP",
	})

	tests := map[string]string{
		"ip-src":          "10.0.0.2",
		"ip-dst":          "93.184.216.34",
		"src-port":        "49152",
		"dst-port":        "80",
		"hostname-dst":    "example.com",
		"layer3-protocol": "IP",
		"layer4-protocol": "TCP",
		"layer7-protocol": "HTTP",
	}
	for relation, want := range tests {
		if got := obj.Value(relation); got != want {
			t.Errorf("%s = %q, want %q", relation, got, want)
		}
	}
}

func TestNewSandboxReportObject(t *testing.T) {
	obj := NewSandboxReportObject(SandboxReport{
		Score:       "70",
		SandboxType: SandboxSaaS,
		SandboxName: "vmware-nsx-defender",
		Permalink:   "https://user.lastline.com/portal#/analyst/task/abc/overview",
	})

	if obj.Value("saas-sandbox") != "vmware-nsx-defender" {
		t.Errorf("expected saas-sandbox attribute, got %v", obj.Attributes())
	}
	for _, a := range obj.Attributes() {
		if a.Relation() == "permalink" && (a.Type() != "link" || a.Category() != CategoryExternalAnalysis) {
			t.Errorf("unexpected permalink attribute %+v", a)
		}
	}
}

func TestNewSignatureObject(t *testing.T) {
	obj := NewSignatureObject("VMware NSX Defender", []string{"Evasion: sleep", "Persistence: run key"})

	if obj.Value("software") != "VMware NSX Defender" {
		t.Errorf("unexpected software %q", obj.Value("software"))
	}
	if got := obj.Values("signature"); len(got) != 2 {
		t.Errorf("expected 2 signatures, got %v", got)
	}
}

func TestObjects_HaveUniqueUUIDs(t *testing.T) {
	a := NewURLObject("https://a")
	b := NewURLObject("https://a")
	if a.UUID() == "" || a.UUID() == b.UUID() {
		t.Errorf("expected distinct uuids, got %q and %q", a.UUID(), b.UUID())
	}
	if a.Attributes()[0].UUID() == b.Attributes()[0].UUID() {
		t.Error("attribute uuids should be distinct")
	}
}

// =============================================================================
// Event Tests
// =============================================================================

func TestEvent_TagsAreASet(t *testing.T) {
	e := New()

	if !e.AddTag("av-fam:emotet") {
		t.Error("first insertion should report new")
	}
	if e.AddTag("av-fam:emotet") {
		t.Error("duplicate insertion should report existing")
	}
	e.AddTag("nsx:trojan")
	e.AddTag("")

	tags := e.Tags()
	if len(tags) != 2 || tags[0] != "av-fam:emotet" || tags[1] != "nsx:trojan" {
		t.Errorf("unexpected tags %v", tags)
	}
	if !e.HasTag("nsx:trojan") || e.HasTag("missing") {
		t.Error("HasTag mismatch")
	}
}

func TestEvent_MarshalJSON(t *testing.T) {
	e := New()
	e.AddObject(NewURLObject("https://www.google.com"))
	e.AddTag("workflow:state='incomplete'")

	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded struct {
		Object []struct {
			Name         string `json:"name"`
			MetaCategory string `json:"meta-category"`
			Attribute    []struct {
				ObjectRelation string `json:"object_relation"`
				Type           string `json:"type"`
				Value          string `json:"value"`
				ToIDS          bool   `json:"to_ids"`
			} `json:"Attribute"`
		} `json:"Object"`
		Tag []struct {
			Name string `json:"name"`
		} `json:"Tag"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if len(decoded.Object) != 1 || decoded.Object[0].Name != "url" || decoded.Object[0].MetaCategory != "network" {
		t.Fatalf("unexpected objects %+v", decoded.Object)
	}
	attr := decoded.Object[0].Attribute[0]
	if attr.ObjectRelation != "url" || attr.Value != "https://www.google.com" || !attr.ToIDS {
		t.Errorf("unexpected attribute %+v", attr)
	}
	if len(decoded.Tag) != 1 || decoded.Tag[0].Name != "workflow:state='incomplete'" {
		t.Errorf("unexpected tags %+v", decoded.Tag)
	}
}

func TestEvent_MarshalJSON_OmitsEmptySections(t *testing.T) {
	e := New()
	e.AddObject(NewURLObject("https://x"))

	data, _ := json.Marshal(e)
	if strings.Contains(string(data), `"Tag"`) {
		t.Errorf("empty tag section should be omitted: %s", data)
	}
}
