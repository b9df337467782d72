package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"hls-thumbnailer/internal/ffmpeg"
	"hls-thumbnailer/internal/platform/metrics"
	"hls-thumbnailer/internal/playlist"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "hls-thumbnailer/orchestrator"

// Fetcher returns the full body of url. Timeouts are the fetcher's concern.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Prober reads the duration in seconds of a complete media file.
type Prober interface {
	ProbeDuration(ctx context.Context, data []byte) (float64, error)
}

// Extractor decodes one still frame at seek seconds into data.
type Extractor interface {
	ExtractFrame(ctx context.Context, data []byte, seek float64, width int) ([]byte, error)
}

// Options tunes an Orchestrator. Zero values select the defaults.
type Options struct {
	TargetCount int
	FrameWidth  int
	Log         *slog.Logger
	Metrics     *metrics.Metrics
}

// Orchestrator runs extraction jobs: it resolves the source duration, computes
// the target timestamps, and fetches and decodes the owning resource for each
// target in order. Run must not be called concurrently; the Service serializes jobs.
type Orchestrator struct {
	fetcher   Fetcher
	prober    Prober
	extractor Extractor
	count     int
	width     int
	log       *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

// New returns an Orchestrator over the given collaborators.
func New(fetcher Fetcher, prober Prober, extractor Extractor, opts Options) *Orchestrator {
	o := &Orchestrator{
		fetcher:   fetcher,
		prober:    prober,
		extractor: extractor,
		count:     opts.TargetCount,
		width:     opts.FrameWidth,
		log:       opts.Log,
		metrics:   opts.Metrics,
		tracer:    otel.Tracer(tracerName),
	}
	if o.count <= 0 {
		o.count = DefaultTargetCount
	}
	if o.width <= 0 {
		o.width = DefaultFrameWidth
	}
	if o.log == nil {
		o.log = slog.Default()
	}
	return o
}

// Stream runs the job in a new goroutine and delivers its events on the
// returned channel, which is closed after the terminal event. The caller must
// drain the channel.
func (o *Orchestrator) Stream(ctx context.Context, src Source) <-chan Event {
	ch := make(chan Event, o.count+4)
	go func() {
		defer close(ch)
		o.Run(ctx, src, func(ev Event) { ch <- ev })
	}()
	return ch
}

// Run executes one job to completion and returns its final state. emit, if not
// nil, is called synchronously for every event. Cancelling ctx stops the job at
// the next phase or target boundary with reason "canceled".
func (o *Orchestrator) Run(ctx context.Context, src Source, emit EventFunc) *JobState {
	if emit == nil {
		emit = func(Event) {}
	}
	started := time.Now()
	job := newJobState(src)
	defer job.release()

	ctx, span := o.tracer.Start(ctx, "orchestrator.Run", trace.WithAttributes(
		attribute.String("source.url", src.URL),
		attribute.String("source.kind", string(src.Kind)),
	))
	defer span.End()

	log := o.log.With(slog.String("source", src.URL), slog.String("kind", string(src.Kind)))
	o.metrics.JobStarted()

	if err := o.resolveDuration(ctx, job, log, emit); err != nil {
		return o.fail(job, err, started, span, log, emit)
	}

	job.Targets = ComputeTargets(job.Duration, o.count)
	o.setStatus(job, StatusExtracting, emit)
	log.Info("extracting frames",
		slog.Float64("duration", job.Duration),
		slog.Int("targets", len(job.Targets)))

	for i, t := range job.Targets {
		if err := ctx.Err(); err != nil {
			return o.fail(job, &FatalJobError{Reason: ReasonCanceled, Err: err}, started, span, log, emit)
		}

		frame, err := o.processTarget(ctx, job, i, t, log)
		if err != nil {
			var fatal *FatalJobError
			if errors.As(err, &fatal) {
				return o.fail(job, fatal, started, span, log, emit)
			}
			var skip *SkippedTargetError
			if !errors.As(err, &skip) {
				skip = &SkippedTargetError{Target: i, Time: t, Reason: SkipExtractFailed, Err: err}
			}
			job.Skipped = append(job.Skipped, skip)
			o.metrics.IncTargetsSkipped(skip.Reason)
			log.Warn("target skipped",
				slog.Int("target", i),
				slog.Float64("time", t),
				slog.String("reason", skip.Reason),
				slog.Any("error", skip.Err))
		} else {
			job.Frames = append(job.Frames, frame)
			o.metrics.IncFramesExtracted()
			emit(Event{Type: EventFrame, Frame: &frame})
		}

		job.Progress = float64(i+1) / float64(len(job.Targets))
		emit(Event{Type: EventProgress, Progress: job.Progress})
	}

	if err := ctx.Err(); err != nil {
		return o.fail(job, &FatalJobError{Reason: ReasonCanceled, Err: err}, started, span, log, emit)
	}

	o.setStatus(job, StatusDone, emit)
	o.metrics.JobCompleted(time.Since(started))
	span.SetAttributes(attribute.Int("frames", len(job.Frames)))
	log.Info("extraction complete",
		slog.Int("frames", len(job.Frames)),
		slog.Int("skipped", len(job.Skipped)),
		slog.Int("duration_ms", int(time.Since(started).Milliseconds())))
	emit(Event{Type: EventComplete, FrameCount: len(job.Frames)})
	return job
}

func (o *Orchestrator) setStatus(job *JobState, s Status, emit EventFunc) {
	job.Status = s
	emit(Event{Type: EventStatus, Status: s, Playlist: job.Playlist})
}

func (o *Orchestrator) fail(job *JobState, err error, started time.Time, span trace.Span, log *slog.Logger, emit EventFunc) *JobState {
	reason := ReasonDurationUnavailable
	var fatal *FatalJobError
	if errors.As(err, &fatal) {
		reason = fatal.Reason
	}

	job.Reason = reason
	o.setStatus(job, StatusFailed, emit)
	o.metrics.JobFailed(reason, time.Since(started))
	span.RecordError(err)
	span.SetStatus(codes.Error, reason)
	log.Error("extraction failed", slog.String("reason", reason), slog.String("error", err.Error()))
	emit(Event{Type: EventFailed, Reason: reason, Err: err})
	return job
}

// resolveDuration is phase 1: it fetches the file or playlist and records the
// job duration. Every failure here is fatal.
func (o *Orchestrator) resolveDuration(ctx context.Context, job *JobState, log *slog.Logger, emit EventFunc) error {
	if err := ctx.Err(); err != nil {
		return &FatalJobError{Reason: ReasonCanceled, Err: err}
	}

	ctx, span := o.tracer.Start(ctx, "orchestrator.resolveDuration")
	defer span.End()

	if job.Source.Kind == SourcePlaylist {
		o.setStatus(job, StatusFetchingPlaylist, emit)
		res, err := o.loadPlaylist(ctx, job.Source.URL, log)
		if err != nil {
			return &FatalJobError{Reason: ReasonDurationUnavailable, Err: err}
		}
		if !validDuration(res.Duration) {
			return &FatalJobError{Reason: ReasonDurationUnavailable, Err: errors.New("playlist has no duration")}
		}
		job.Playlist = &res
		job.Duration = res.Duration
		return nil
	}

	o.setStatus(job, StatusFetchingFile, emit)
	data, err := o.fetch(ctx, job.Source.URL)
	if err != nil {
		return &FatalJobError{Reason: ReasonDurationUnavailable, Err: err}
	}
	duration, err := o.prober.ProbeDuration(ctx, data)
	if err != nil {
		return &FatalJobError{Reason: ReasonDurationUnavailable, Err: err}
	}
	if !validDuration(duration) {
		return &FatalJobError{Reason: ReasonDurationUnavailable, Err: fmt.Errorf("invalid duration %v", duration)}
	}
	job.resources[fileResourceKey] = data
	job.Duration = duration
	return nil
}

// loadPlaylist fetches and parses a media playlist. A master playlist is
// followed one hop to its lowest-bandwidth variant.
func (o *Orchestrator) loadPlaylist(ctx context.Context, url string, log *slog.Logger) (playlist.Result, error) {
	text, err := o.fetch(ctx, url)
	if err != nil {
		return playlist.Result{}, fmt.Errorf("fetch playlist: %w", err)
	}
	res := playlist.Parse(string(text), url, log)

	if res.IsMaster() {
		variant, _ := res.LowestBandwidth()
		log.Info("following variant playlist",
			slog.String("variant", variant.URL),
			slog.Int64("bandwidth", variant.Bandwidth))
		if err := ctx.Err(); err != nil {
			return playlist.Result{}, err
		}
		text, err = o.fetch(ctx, variant.URL)
		if err != nil {
			return playlist.Result{}, fmt.Errorf("fetch variant playlist: %w", err)
		}
		res = playlist.Parse(string(text), variant.URL, log)
		if res.IsMaster() {
			return playlist.Result{}, errors.New("nested master playlist")
		}
	}

	if !res.EndList {
		log.Warn("playlist has no end marker, treating segments present as the whole asset")
	}
	log.Info("playlist loaded",
		slog.Float64("duration", res.Duration),
		slog.Int("segments", len(res.Segments)))
	return res, nil
}

// fetch wraps the fetcher, treating a zero-length body as a failure.
func (o *Orchestrator) fetch(ctx context.Context, url string) ([]byte, error) {
	data, err := o.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("fetch %s: %w", url, ErrEmptyResource)
	}
	o.metrics.IncResourcesFetched()
	return data, nil
}

// processTarget is phase 3 for a single target. It returns either a frame, a
// *SkippedTargetError, or a *FatalJobError when the decoder itself is gone.
func (o *Orchestrator) processTarget(ctx context.Context, job *JobState, i int, t float64, log *slog.Logger) (FrameResult, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.target", trace.WithAttributes(
		attribute.Int("target.index", i),
		attribute.Float64("target.time", t),
	))
	defer span.End()

	data, seek, segment, err := o.resolveResource(ctx, job, i, t)
	if err != nil {
		span.RecordError(err)
		return FrameResult{}, err
	}
	span.SetAttributes(attribute.Float64("seek", seek), attribute.Int("segment", segment))

	img, err := o.extract(ctx, data, seek)
	if err != nil && job.Source.Kind == SourcePlaylist && !isEngineUnavailable(err) {
		log.Warn("seek failed, retrying at segment start",
			slog.Int("target", i),
			slog.Int("segment", segment),
			slog.Float64("seek", seek),
			slog.String("error", err.Error()))
		o.metrics.IncExtractRetries()
		seek = 0
		img, err = o.extract(ctx, data, seek)
	}
	if err != nil {
		span.RecordError(err)
		if isEngineUnavailable(err) {
			return FrameResult{}, &FatalJobError{Reason: ReasonEngineUnavailable, Err: err}
		}
		return FrameResult{}, &SkippedTargetError{Target: i, Time: t, Reason: SkipExtractFailed, Err: err}
	}

	log.Debug("frame extracted",
		slog.Int("target", i),
		slog.Float64("time", t),
		slog.Int("segment", segment),
		slog.Float64("seek", seek),
		slog.Int("size", len(img)))

	return FrameResult{
		Index:      i,
		Timestamp:  t,
		SeekOffset: seek,
		Segment:    segment,
		Image:      img,
	}, nil
}

// resolveResource finds the bytes owning t and the seek offset within them,
// fetching and caching playlist segments on first use. Segment is -1 for
// single-file sources.
func (o *Orchestrator) resolveResource(ctx context.Context, job *JobState, i int, t float64) ([]byte, float64, int, error) {
	if job.Source.Kind != SourcePlaylist {
		return job.resources[fileResourceKey], max(t, 0), -1, nil
	}

	seg, ok := playlist.Locate(job.Playlist.Segments, t)
	if !ok {
		return nil, 0, 0, &SkippedTargetError{Target: i, Time: t, Reason: SkipNotLocated}
	}

	key := resourceKey(fmt.Sprintf("segment:%d", seg.Index))
	data, cached := job.resources[key]
	if !cached {
		var err error
		data, err = o.fetch(ctx, seg.URL)
		if err != nil {
			return nil, 0, seg.Index, &SkippedTargetError{Target: i, Time: t, Reason: SkipFetchFailed, Err: err}
		}
		job.resources[key] = data
	}

	return data, SeekOffset(t, seg), seg.Index, nil
}

func (o *Orchestrator) extract(ctx context.Context, data []byte, seek float64) ([]byte, error) {
	img, err := o.extractor.ExtractFrame(ctx, data, seek, o.width)
	if err != nil {
		return nil, err
	}
	if len(img) == 0 {
		return nil, fmt.Errorf("extract frame: %w", ErrEmptyResource)
	}
	return img, nil
}

func isEngineUnavailable(err error) bool {
	return errors.Is(err, ffmpeg.ErrEngineUnavailable)
}
