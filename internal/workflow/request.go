package workflow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lvonguyen/nsxenrich/internal/sample"
)

// Attribute types accepted by the enrichment.
const (
	TypeURL           = "url"
	TypeMalwareSample = "malware-sample"
	TypeAttachment    = "attachment"
	TypeMD5           = "md5"
	TypeSHA1          = "sha1"
	TypeSHA256        = "sha256"
)

// SupportedTypes lists the accepted attribute types in introspection order.
var SupportedTypes = []string{
	TypeAttachment,
	TypeMalwareSample,
	TypeURL,
	TypeMD5,
	TypeSHA1,
	TypeSHA256,
}

// Attribute is the MISP attribute attached to a query. Data carries the
// base64 payload of file attributes.
type Attribute struct {
	Type  string  `json:"type"`
	Value string  `json:"value"`
	Data  *string `json:"data,omitempty"`
}

// RequestKind tells how an attribute is analyzed.
type RequestKind int

const (
	KindURL RequestKind = iota
	KindFileSample
	KindHashOnly
)

func (k RequestKind) String() string {
	switch k {
	case KindURL:
		return "url"
	case KindFileSample:
		return "file"
	case KindHashOnly:
		return "hash"
	default:
		return "unknown"
	}
}

// AnalysisRequest is a classified attribute. It is immutable.
type AnalysisRequest struct {
	kind     RequestKind
	url      string
	data     []byte
	filename string
	hash     string
}

// Kind returns the request kind.
func (r AnalysisRequest) Kind() RequestKind { return r.kind }

// URL returns the URL of a KindURL request.
func (r AnalysisRequest) URL() string { return r.url }

// Data returns a copy of the sample bytes of a KindFileSample request.
func (r AnalysisRequest) Data() []byte { return append([]byte(nil), r.data...) }

// Filename returns the name the sample is submitted under.
func (r AnalysisRequest) Filename() string { return r.filename }

// Hash returns the hash used to look up existing analyses.
func (r AnalysisRequest) Hash() string { return r.hash }

// Classify validates an attribute and derives the analysis request. Sample
// payloads are decoded and hashed with sha1.
func Classify(attr Attribute) (AnalysisRequest, error) {
	switch attr.Type {
	case TypeURL:
		if strings.TrimSpace(attr.Value) == "" {
			return AnalysisRequest{}, newError(ErrInputParsing, errors.New("missing url value"))
		}
		return AnalysisRequest{kind: KindURL, url: attr.Value}, nil

	case TypeMalwareSample:
		payload, err := decodePayload(attr)
		if err != nil {
			return AnalysisRequest{}, err
		}
		data, err := sample.Unzip(payload, sample.DefaultZipPassword)
		if err != nil {
			return AnalysisRequest{}, newError(ErrInputDecoding, err)
		}
		filename, _, _ := strings.Cut(attr.Value, "|")
		return fileRequest(data, filename), nil

	case TypeAttachment:
		data, err := decodePayload(attr)
		if err != nil {
			return AnalysisRequest{}, err
		}
		return fileRequest(data, attr.Value), nil

	case TypeMD5, TypeSHA1, TypeSHA256:
		hash := strings.TrimSpace(attr.Value)
		if sample.HashType(hash) != attr.Type {
			return AnalysisRequest{}, newError(ErrInputParsing, fmt.Errorf("%q is not a valid %s", attr.Value, attr.Type))
		}
		return AnalysisRequest{
			kind:     KindHashOnly,
			hash:     hash,
			filename: hash + ".bin",
		}, nil

	case "":
		return AnalysisRequest{}, newError(ErrInputParsing, errors.New("missing attribute type"))

	default:
		return AnalysisRequest{}, newError(ErrInputParsing, fmt.Errorf("unsupported attribute type %q", attr.Type))
	}
}

func decodePayload(attr Attribute) ([]byte, error) {
	if attr.Data == nil {
		return nil, newError(ErrInputParsing, fmt.Errorf("%s attribute has no data", attr.Type))
	}
	data, err := sample.DecodeBase64(*attr.Data)
	if err != nil {
		return nil, newError(ErrInputDecoding, err)
	}
	return data, nil
}

func fileRequest(data []byte, filename string) AnalysisRequest {
	return AnalysisRequest{
		kind:     KindFileSample,
		data:     data,
		filename: filename,
		hash:     sample.SHA1(data),
	}
}
