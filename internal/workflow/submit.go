package workflow

import (
	"context"
	"errors"

	"github.com/lvonguyen/nsxenrich/internal/enrichment"
)

// Workflow tags.
const (
	TagWorkflowComplete   = "workflow:state='complete'"
	TagWorkflowIncomplete = "workflow:state='incomplete'"
	TagVTDownload         = "vt:download"
)

var errSubmissionFailed = errors.New("submission failed, unable to process the data")

// SubmitURL submits a URL to the primary endpoint.
func SubmitURL(ctx context.Context, endpoints *enrichment.EndpointSet, rawURL string) (TaskHandle, []string, error) {
	primary := endpoints.Primary()
	sub, err := primary.Client.SubmitURL(ctx, rawURL)
	if err != nil {
		return TaskHandle{}, nil, newError(ErrAPICall, err)
	}
	return interpretSubmission(primary.Region, sub)
}

// SubmitFile uploads sample bytes to the primary endpoint.
func SubmitFile(ctx context.Context, endpoints *enrichment.EndpointSet, data []byte, filename string) (TaskHandle, []string, error) {
	primary := endpoints.Primary()
	sub, err := primary.Client.SubmitFile(ctx, data, filename)
	if err != nil {
		return TaskHandle{}, nil, newError(ErrAPICall, err)
	}
	return interpretSubmission(primary.Region, sub)
}

// interpretSubmission maps the immediate submission response to a handle. A
// score means the service already knew the sample and the analysis is done.
func interpretSubmission(region enrichment.Region, sub *enrichment.Submission) (TaskHandle, []string, error) {
	if sub == nil || sub.TaskUUID == "" {
		return TaskHandle{}, nil, newError(ErrProcessing, errSubmissionFailed)
	}

	handle := TaskHandle{TaskUUID: sub.TaskUUID, Region: region}
	if sub.Score != nil {
		handle.State = StateComplete
		return handle, []string{TagWorkflowComplete}, nil
	}
	handle.State = StateIncomplete
	return handle, []string{TagWorkflowIncomplete}, nil
}
