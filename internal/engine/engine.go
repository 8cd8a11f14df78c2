// Package engine runs the medium analyzers concurrently over one piece of
// evidence and fuses their results.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"verum/internal/audio"
	"verum/internal/config"
	"verum/internal/document"
	"verum/internal/forensics"
	"verum/internal/fusion"
	"verum/internal/imaging"
	"verum/internal/logging"
	"verum/internal/metrics"
	"verum/internal/video"
)

// ImageInput is a decoded still image with its EXIF tags.
type ImageInput struct {
	Pixels *imaging.PixelBuffer
	Tags   map[string]string
}

// VideoInput is a decoded frame sequence with its declared container data.
type VideoInput struct {
	Frames   []*imaging.PixelBuffer
	Metadata video.Metadata
}

// AudioInput is mono PCM with its declared rate and duration.
type AudioInput struct {
	Samples  []float64
	Metadata audio.Metadata
}

// DocumentInput is raw PDF bytes with declared document metadata.
type DocumentInput struct {
	Data     []byte
	Metadata document.Metadata
}

// Evidence is one item handed to the engine. Any subset of media may be
// present; the buffers are never modified.
type Evidence struct {
	Image    *ImageInput
	Video    *VideoInput
	Audio    *AudioInput
	Document *DocumentInput
}

// Media returns the media present in the evidence, in report order.
func (ev *Evidence) Media() []forensics.Medium {
	if ev == nil {
		return nil
	}
	var media []forensics.Medium
	if ev.Image != nil {
		media = append(media, forensics.MediumImage)
	}
	if ev.Video != nil {
		media = append(media, forensics.MediumVideo)
	}
	if ev.Audio != nil {
		media = append(media, forensics.MediumAudio)
	}
	if ev.Document != nil {
		media = append(media, forensics.MediumDocument)
	}
	return media
}

// Report is the outcome of one engine run.
type Report struct {
	RunID     string                                      `json:"run_id"`
	StartedAt time.Time                                   `json:"started_at"`
	Duration  time.Duration                               `json:"duration_ns"`
	Media     []forensics.Medium                          `json:"media"`
	Results   map[forensics.Medium]forensics.MediumResult `json:"results"`
	Fusion    *fusion.Result                              `json:"fusion"`
}

// Engine owns one configured analyzer per medium plus the fusion engine.
// It holds no per-run state and is safe for concurrent use.
type Engine struct {
	image    *imaging.Analyzer
	video    *video.Analyzer
	audio    *audio.Analyzer
	document *document.Analyzer
	fusion   *fusion.Engine
	weights  fusion.Weights

	logger  *logging.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics sets the collectors. Nil disables metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithWeights overrides the configured fusion weights.
func WithWeights(w fusion.Weights) Option {
	return func(e *Engine) { e.weights = w }
}

// WithClock sets the time source used for run timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New builds an engine from cfg. A nil cfg uses the defaults.
func New(cfg *config.Config, opts ...Option) *Engine {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	e := &Engine{
		image:    imaging.New(cfg.Image.Thresholds()),
		video:    video.New(cfg.Video.Thresholds()),
		audio:    audio.New(cfg.Audio.Thresholds()),
		document: document.New(cfg.Document.Thresholds()),
		fusion:   fusion.New(cfg.Fusion.Thresholds()),
		weights:  cfg.Fusion.MediumWeights(),
		logger:   logging.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.WithComponent("engine")
	return e
}

// Submit starts one analyzer goroutine per medium present in ev and returns
// their futures. The set of media is fixed here, before any analyzer runs.
func (e *Engine) Submit(ev *Evidence) map[forensics.Medium]*Future {
	futures := make(map[forensics.Medium]*Future)
	for _, m := range ev.Media() {
		f := newFuture(m)
		futures[m] = f
		go e.analyze(f, ev)
	}
	return futures
}

func (e *Engine) analyze(f *Future, ev *Evidence) {
	m := f.Medium()
	start := time.Now()
	e.metrics.AnalysisStarted()

	var r forensics.MediumResult
	defer func() {
		if p := recover(); p != nil {
			e.logger.Error("analyzer panicked", "medium", m, "panic", p)
			r = rejected(m, fmt.Sprintf("analyzer failure: %v", p))
		}
		v := r.Summary()
		e.metrics.RecordAnalysis(string(m), string(v.Status), v.TamperingScore, time.Since(start))
		f.complete(r)
	}()

	switch m {
	case forensics.MediumImage:
		r = e.image.Analyze(ev.Image.Pixels, ev.Image.Tags)
	case forensics.MediumVideo:
		r = e.video.Analyze(ev.Video.Frames, ev.Video.Metadata)
	case forensics.MediumAudio:
		r = e.audio.Analyze(ev.Audio.Samples, ev.Audio.Metadata)
	case forensics.MediumDocument:
		r = e.document.Analyze(ev.Document.Data, ev.Document.Metadata)
	}
}

// rejected returns a rejected verdict typed for medium m.
func rejected(m forensics.Medium, reason string) forensics.MediumResult {
	v := forensics.Rejected(reason)
	switch m {
	case forensics.MediumImage:
		return &imaging.Result{Verdict: v}
	case forensics.MediumVideo:
		return &video.Result{Verdict: v}
	case forensics.MediumAudio:
		return &audio.Result{Verdict: v}
	default:
		return &document.Result{Verdict: v}
	}
}

// Run analyzes every medium present in ev concurrently, waits for all of
// them and fuses the results. It fails only if ctx ends first.
func (e *Engine) Run(ctx context.Context, ev *Evidence) (*Report, error) {
	started := e.now()
	t0 := time.Now()
	runID := uuid.NewString()
	log := e.logger.WithRunID(runID).WithContext(ctx)

	futures := e.Submit(ev)
	media := ev.Media()
	log.Debug("analysis started", "media", media)

	var (
		mu      sync.Mutex
		results = make(map[forensics.Medium]forensics.MediumResult, len(futures))
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, f := range futures {
		f := f
		g.Go(func() error {
			r, err := f.Await(gctx)
			if err != nil {
				return fmt.Errorf("%s: %w", f.Medium(), err)
			}
			mu.Lock()
			results[f.Medium()] = r
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, f := range futures {
			f.Abandon()
		}
		log.Warn("analysis abandoned", "error", err)
		return nil, fmt.Errorf("engine: run %s: %w", runID, err)
	}

	fused := e.fusion.Fuse(results, e.weights)
	report := &Report{
		RunID:     runID,
		StartedAt: started,
		Duration:  time.Since(t0),
		Media:     media,
		Results:   results,
		Fusion:    fused,
	}
	if report.Media == nil {
		report.Media = []forensics.Medium{}
	}

	e.metrics.RecordRun(string(fused.Likelihood), report.Duration)
	log.Info("analysis complete",
		slog.Int("media", len(media)),
		slog.Float64("overall_score", fused.OverallScore),
		slog.String("likelihood", string(fused.Likelihood)),
		slog.Int("findings", len(fused.Findings)),
		slog.Duration("duration", report.Duration),
	)
	return report, nil
}

// CompareSpeakers returns the cosine similarity of the mean MFCC vectors of
// two clips using the configured audio analyzer.
func (e *Engine) CompareSpeakers(first, second []float64, sampleRate int) float64 {
	return e.audio.CompareSpeakers(first, second, sampleRate)
}
