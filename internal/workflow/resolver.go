package workflow

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/lvonguyen/nsxenrich/internal/enrichment"
)

// expiresLayout is the format of task expiration timestamps.
const expiresLayout = "2006-01-02 15:04:05"

// TaskState is what is known about a task's completion.
type TaskState int

const (
	StateUnknown TaskState = iota
	StateComplete
	StateIncomplete
)

func (s TaskState) String() string {
	switch s {
	case StateComplete:
		return "complete"
	case StateIncomplete:
		return "incomplete"
	default:
		return "unknown"
	}
}

// TaskHandle identifies an analysis task.
type TaskHandle struct {
	TaskUUID string
	Region   enrichment.Region
	State    TaskState
}

type candidate struct {
	record  enrichment.TaskRecord
	region  enrichment.Region
	expires time.Time
}

// Resolve looks for existing analyses of hash on every endpoint, in order,
// and returns the task that expires last. Ties go to the task seen last.
// Hash queries carry no completion data, so the handle's state is unknown.
func Resolve(ctx context.Context, endpoints *enrichment.EndpointSet, hash string) (TaskHandle, bool, error) {
	var candidates []candidate

	for _, ep := range endpoints.All() {
		result, err := ep.Client.QueryFileHash(ctx, hash)
		if err != nil {
			return TaskHandle{}, false, newError(ErrAPICall, fmt.Errorf("querying %s: %w", ep.Region, err))
		}
		for _, task := range result.Tasks {
			expires, err := time.Parse(expiresLayout, task.Expires)
			if err != nil {
				return TaskHandle{}, false, newError(ErrProcessing, fmt.Errorf("task %s has malformed expiration %q: %w", task.TaskUUID, task.Expires, err))
			}
			candidates = append(candidates, candidate{record: task, region: ep.Region, expires: expires})
		}
	}

	if len(candidates) == 0 {
		return TaskHandle{}, false, nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].expires.Before(candidates[j].expires)
	})

	latest := candidates[len(candidates)-1]
	return TaskHandle{
		TaskUUID: latest.record.TaskUUID,
		Region:   latest.region,
		State:    StateUnknown,
	}, true, nil
}
