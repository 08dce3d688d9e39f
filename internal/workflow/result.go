package workflow

import (
	"encoding/json"

	"github.com/lvonguyen/nsxenrich/internal/event"
)

// Result is the outcome of an enrichment. Event is nil when the report could
// not be fetched; the result then only carries the analysis link and tags.
type Result struct {
	Link  string
	Tags  []string
	Event *event.Event
}

// Partial reports whether the result lacks the transformed report.
func (r *Result) Partial() bool {
	return r.Event == nil
}

type partialResults struct {
	Types      string   `json:"types"`
	Categories []string `json:"categories"`
	Values     string   `json:"values"`
	Tags       []string `json:"tags"`
}

// MarshalJSON renders the "results" envelope of a module response.
func (r *Result) MarshalJSON() ([]byte, error) {
	if r.Partial() {
		tags := r.Tags
		if tags == nil {
			tags = []string{}
		}
		return json.Marshal(map[string]any{
			"results": partialResults{
				Types:      "link",
				Categories: []string{string(event.CategoryExternalAnalysis)},
				Values:     r.Link,
				Tags:       tags,
			},
		})
	}
	return json.Marshal(map[string]any{"results": r.Event})
}
