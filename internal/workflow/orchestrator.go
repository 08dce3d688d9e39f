package workflow

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/lvonguyen/nsxenrich/internal/enrichment"
	"github.com/lvonguyen/nsxenrich/internal/mitre"
	"github.com/lvonguyen/nsxenrich/internal/observability"
	"github.com/lvonguyen/nsxenrich/internal/report"
)

var errDownloadDisabled = errors.New("no file available locally and VirusTotal is disabled")

// Collaborators are the clients a single enrichment may use. They are built
// per query from the query's configuration.
type Collaborators struct {
	// Endpoints is required.
	Endpoints *enrichment.EndpointSet

	// NewDownloader opens a sample downloader. Nil disables downloads.
	NewDownloader func() (SampleDownloader, error)

	// Galaxy provides the ATT&CK catalog. Nil disables technique tags.
	Galaxy mitre.GalaxySource
}

// Orchestrator runs the enrichment workflow. It holds no per-query state and
// is safe for concurrent use.
type Orchestrator struct {
	logger  *zap.Logger
	tracer  trace.Tracer
	metrics *observability.Metrics
}

// NewOrchestrator creates an orchestrator. tracer and metrics may be nil.
func NewOrchestrator(logger *zap.Logger, tracer trace.Tracer, metrics *observability.Metrics) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tracer == nil {
		tracer = otel.Tracer(observability.WorkflowTracer)
	}
	return &Orchestrator{
		logger:  logger,
		tracer:  tracer,
		metrics: metrics,
	}
}

// Enrich classifies attr, reuses or creates an analysis task, and turns the
// task's report into an event. When the report is not available yet the
// result is partial: the analysis link and the tags collected so far.
func (o *Orchestrator) Enrich(ctx context.Context, c Collaborators, attr Attribute) (*Result, error) {
	ctx, span := o.tracer.Start(ctx, "workflow.Enrich",
		trace.WithAttributes(attribute.String("misp.attribute.type", attr.Type)),
	)
	defer span.End()

	start := time.Now()
	result, err := o.enrich(ctx, c, attr)

	outcome := "full"
	switch {
	case err != nil:
		outcome = "error"
		observability.RecordError(span, o.logger, "Enrichment failed", err,
			zap.String("attribute_type", attr.Type),
		)
	case result.Partial():
		outcome = "partial"
	}
	span.SetAttributes(attribute.String("enrichment.outcome", outcome))

	if o.metrics != nil {
		o.metrics.EnrichmentRequests.WithLabelValues(attr.Type, outcome).Inc()
		o.metrics.EnrichmentDuration.WithLabelValues(attr.Type).Observe(time.Since(start).Seconds())
	}

	return result, err
}

func (o *Orchestrator) enrich(ctx context.Context, c Collaborators, attr Attribute) (*Result, error) {
	if c.Endpoints == nil || c.Endpoints.Len() == 0 {
		return nil, newError(ErrConfiguration, enrichment.ErrNoEndpoints)
	}

	req, err := Classify(attr)
	if err != nil {
		return nil, err
	}

	handle, tags, err := o.obtainTask(ctx, c, req)
	if err != nil {
		return nil, err
	}

	primary := c.Endpoints.Primary()
	result := &Result{
		Link: c.Endpoints.TaskLink(handle.TaskUUID),
		Tags: tags,
	}
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String("nsx.task_uuid", handle.TaskUUID),
		attribute.String("nsx.task_state", handle.State.String()),
	)

	analysisTags, err := CollectTags(ctx, c.Endpoints, handle.TaskUUID)
	if err != nil {
		o.logger.Info("Analysis tags unavailable, returning partial result",
			zap.String("task_uuid", handle.TaskUUID),
			zap.Error(err),
		)
		return result, nil
	}
	result.Tags = append(result.Tags, analysisTags...)

	raw, err := primary.Client.GetResult(ctx, handle.TaskUUID)
	if err != nil {
		o.countReportFetch("unavailable")
		o.logger.Info("Analysis report unavailable, returning partial result",
			zap.String("task_uuid", handle.TaskUUID),
			zap.Error(err),
		)
		return result, nil
	}
	o.countReportFetch("ok")

	catalog := mitre.LoadCatalog(ctx, c.Galaxy, o.logger)
	if o.metrics != nil {
		o.metrics.CatalogSize.Set(float64(catalog.Len()))
	}

	ev, err := report.NewTransformer(catalog).Transform(result.Link, raw)
	if err != nil {
		return nil, newError(ErrTransformation, err)
	}
	if o.metrics != nil {
		o.metrics.MITREMappings.Add(float64(len(ev.Tags())))
	}

	for _, tag := range result.Tags {
		if tag == TagWorkflowComplete {
			continue
		}
		ev.AddTag(tag)
	}
	result.Event = ev

	o.logger.Debug("Enrichment complete",
		zap.String("task_uuid", handle.TaskUUID),
		zap.Int("objects", len(ev.Objects())),
		zap.Int("tags", len(ev.Tags())),
	)
	return result, nil
}

// obtainTask returns the task to report on and the workflow tags gathered on
// the way. Only URLs are submitted unconditionally; files and hashes reuse
// the latest known analysis when there is one.
func (o *Orchestrator) obtainTask(ctx context.Context, c Collaborators, req AnalysisRequest) (TaskHandle, []string, error) {
	if req.Kind() == KindURL {
		handle, tags, err := SubmitURL(ctx, c.Endpoints, req.URL())
		o.countSubmission(req.Kind(), handle, err)
		return handle, tags, err
	}

	handle, found, err := o.resolve(ctx, c.Endpoints, req.Hash())
	if err != nil {
		return TaskHandle{}, nil, err
	}
	if found {
		return handle, []string{}, nil
	}

	var tags []string
	data := req.Data()
	if req.Kind() == KindHashOnly {
		data, err = o.download(ctx, c, req.Hash())
		if err != nil {
			return TaskHandle{}, nil, err
		}
		tags = append(tags, TagVTDownload)
	}

	handle, submitTags, err := SubmitFile(ctx, c.Endpoints, data, req.Filename())
	o.countSubmission(req.Kind(), handle, err)
	if err != nil {
		return TaskHandle{}, nil, err
	}
	return handle, append(tags, submitTags...), nil
}

func (o *Orchestrator) resolve(ctx context.Context, endpoints *enrichment.EndpointSet, hash string) (TaskHandle, bool, error) {
	ctx, span := o.tracer.Start(ctx, "workflow.Resolve")
	defer span.End()

	handle, found, err := Resolve(ctx, endpoints, hash)
	outcome := "miss"
	switch {
	case err != nil:
		outcome = "error"
		observability.RecordError(span, nil, "", err)
	case found:
		outcome = "hit"
		o.logger.Debug("Reusing existing analysis",
			zap.String("task_uuid", handle.TaskUUID),
			zap.String("region", string(handle.Region)),
		)
	}
	if o.metrics != nil {
		o.metrics.TaskResolutions.WithLabelValues(outcome).Inc()
	}
	return handle, found, err
}

func (o *Orchestrator) download(ctx context.Context, c Collaborators, hash string) ([]byte, error) {
	if c.NewDownloader == nil {
		o.countDownload("disabled")
		return nil, newError(ErrProcessing, errDownloadDisabled)
	}

	ctx, span := o.tracer.Start(ctx, "workflow.FetchSample")
	defer span.End()

	d, err := c.NewDownloader()
	if err != nil {
		o.countDownload("error")
		return nil, newError(ErrProcessing, err)
	}
	data, err := FetchSample(ctx, d, hash)
	if err != nil {
		o.countDownload("error")
		observability.RecordError(span, nil, "", err)
		return nil, err
	}
	o.countDownload("ok")
	o.logger.Info("Downloaded sample from VirusTotal",
		zap.String("hash", hash),
		zap.Int("bytes", len(data)),
	)
	return data, nil
}

func (o *Orchestrator) countSubmission(kind RequestKind, handle TaskHandle, err error) {
	if o.metrics == nil {
		return
	}
	state := handle.State.String()
	if err != nil {
		state = "error"
	}
	o.metrics.Submissions.WithLabelValues(kind.String(), state).Inc()
}

func (o *Orchestrator) countDownload(status string) {
	if o.metrics != nil {
		o.metrics.SampleDownloads.WithLabelValues(status).Inc()
	}
}

func (o *Orchestrator) countReportFetch(status string) {
	if o.metrics != nil {
		o.metrics.ReportFetches.WithLabelValues(status).Inc()
	}
}
