package workflow

import (
	"context"
	"sort"

	"github.com/lvonguyen/nsxenrich/internal/enrichment"
)

// Namespaces for analysis tag types. Other types are dropped.
var tagNamespaces = map[string]string{
	"av_family":        "av-fam",
	"av_class":         "av-cls",
	"lastline_malware": "nsx",
}

// CollectTags fetches the analysis tags of a task from the primary endpoint
// and returns them namespaced, deduplicated and sorted.
func CollectTags(ctx context.Context, endpoints *enrichment.EndpointSet, taskUUID string) ([]string, error) {
	tags, err := endpoints.Primary().Client.GetAnalysisTags(ctx, taskUUID)
	if err != nil {
		return nil, newError(ErrAPICall, err)
	}
	return namespaceTags(tags), nil
}

func namespaceTags(tags []enrichment.AnalysisTag) []string {
	set := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		ns, ok := tagNamespaces[tag.Data.Type]
		if !ok {
			continue
		}
		set[ns+":"+tag.Data.Value] = struct{}{}
	}

	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
