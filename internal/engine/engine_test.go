package engine

import (
	"bytes"
	"context"
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verum/internal/audio"
	"verum/internal/config"
	"verum/internal/forensics"
	"verum/internal/fusion"
	"verum/internal/imaging"
	"verum/internal/logging"
	"verum/internal/metrics"
	"verum/internal/video"
)

func testLogger(buf *bytes.Buffer) *logging.Logger {
	l, err := logging.New(&logging.Config{
		Level:     logging.LevelDebug,
		Format:    logging.FormatJSON,
		Writer:    buf,
		Component: "verum",
	})
	if err != nil {
		panic(err)
	}
	return l
}

func uniform(w, h int, v uint8) *imaging.PixelBuffer {
	pix := make([]uint8, w*h*3)
	for i := range pix {
		pix[i] = v
	}
	return &imaging.PixelBuffer{Width: w, Height: h, Pix: pix}
}

func cameraTags() map[string]string {
	return map[string]string{
		imaging.TagDateTimeOriginal: "2024:03:01 12:30:45",
		imaging.TagMake:             "Acme",
		imaging.TagModel:            "Recorder 9",
	}
}

func sine(n, rate int, freq float64) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate))
	}
	return s
}

func fullEvidence() *Evidence {
	frames := make([]*imaging.PixelBuffer, 12)
	for i := range frames {
		frames[i] = uniform(32, 32, 90)
	}
	return &Evidence{
		Image: &ImageInput{Pixels: uniform(64, 64, 128), Tags: cameraTags()},
		Video: &VideoInput{Frames: frames, Metadata: video.Metadata{FrameRate: 30, Width: 32, Height: 32, Codec: "h264"}},
		Audio: &AudioInput{Samples: sine(16000, 16000, 440), Metadata: audio.Metadata{SampleRate: 16000}},
		Document: &DocumentInput{
			Data: []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n"),
		},
	}
}

func TestEvidenceMedia(t *testing.T) {
	assert.Nil(t, (*Evidence)(nil).Media())
	assert.Empty(t, (&Evidence{}).Media())
	assert.Equal(t, forensics.Media, fullEvidence().Media())
	assert.Equal(t,
		[]forensics.Medium{forensics.MediumImage, forensics.MediumAudio},
		(&Evidence{Audio: &AudioInput{}, Image: &ImageInput{}}).Media())
}

func TestRunEmptyEvidence(t *testing.T) {
	var buf bytes.Buffer
	e := New(nil, WithLogger(testLogger(&buf)))

	report, err := e.Run(context.Background(), &Evidence{})
	require.NoError(t, err)

	assert.NotEmpty(t, report.RunID)
	assert.Empty(t, report.Results)
	assert.Equal(t, []forensics.Medium{}, report.Media)
	assert.Equal(t, 0.0, report.Fusion.OverallScore)
	assert.Equal(t, fusion.LikelihoodVeryLow, report.Fusion.Likelihood)
	assert.Contains(t, buf.String(), `"run_id":"`+report.RunID+`"`)
}

func TestRunUniformImage(t *testing.T) {
	e := New(config.DefaultConfig(), WithLogger(testLogger(new(bytes.Buffer))))

	report, err := e.Run(context.Background(), &Evidence{
		Image: &ImageInput{Pixels: uniform(64, 64, 200), Tags: cameraTags()},
	})
	require.NoError(t, err)

	require.Contains(t, report.Results, forensics.MediumImage)
	img, ok := report.Results[forensics.MediumImage].(*imaging.Result)
	require.True(t, ok)
	assert.Equal(t, forensics.StatusAnalyzed, img.Status)
	assert.Equal(t, 0, img.ELA.SuspiciousRegionCount)
	assert.Equal(t, 0.0, img.TamperingScore)
	assert.Equal(t, 0.0, report.Fusion.OverallScore)
}

func TestRunAllMedia(t *testing.T) {
	m := metrics.New()
	e := New(nil, WithLogger(testLogger(new(bytes.Buffer))), WithMetrics(m))

	report, err := e.Run(context.Background(), fullEvidence())
	require.NoError(t, err)

	assert.Len(t, report.Results, 4)
	for medium, r := range report.Results {
		assert.Equal(t, medium, r.Medium())
		v := r.Summary()
		assert.GreaterOrEqual(t, v.TamperingScore, 0.0)
		assert.LessOrEqual(t, v.TamperingScore, 1.0)
	}
	require.NotNil(t, report.Fusion.Document)
	assert.NotContains(t, report.Fusion.MediumScores, forensics.MediumDocument)

	for _, medium := range forensics.Media {
		status := string(report.Results[medium].Summary().Status)
		assert.Equal(t, 1.0, testutil.ToFloat64(m.AnalysesTotal.WithLabelValues(string(medium), status)), medium)
	}
	assert.Equal(t, 0.0, testutil.ToFloat64(m.InFlight))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues(string(report.Fusion.Likelihood))))
}

func TestRunIsDeterministic(t *testing.T) {
	e := New(nil, WithLogger(testLogger(new(bytes.Buffer))))
	ev := fullEvidence()

	first, err := e.Run(context.Background(), ev)
	require.NoError(t, err)
	second, err := e.Run(context.Background(), ev)
	require.NoError(t, err)

	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, first.Results, second.Results)
	assert.Equal(t, first.Fusion, second.Fusion)
}

func TestRunWeights(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Fusion.Weights = map[string]float64{"image": 0}

	e := New(cfg, WithLogger(testLogger(new(bytes.Buffer))))
	assert.Equal(t, fusion.Weights{forensics.MediumImage: 0}, e.weights)

	e = New(cfg, WithWeights(fusion.Weights{forensics.MediumAudio: 2}))
	assert.Equal(t, fusion.Weights{forensics.MediumAudio: 2}, e.weights)
}

func TestRejectedIsTypedPerMedium(t *testing.T) {
	for _, m := range forensics.Media {
		r := rejected(m, "boom")
		assert.Equal(t, m, r.Medium())
		assert.Equal(t, forensics.StatusRejected, r.Summary().Status)
		assert.Equal(t, "boom", r.Summary().Reason)
		assert.Zero(t, r.Summary().TamperingScore)
	}
}

func TestFutureAwait(t *testing.T) {
	f := newFuture(forensics.MediumAudio)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Await(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	want := &audio.Result{Verdict: forensics.Empty("no samples")}
	f.complete(want)
	<-f.Done()

	got, err := f.Await(context.Background())
	require.NoError(t, err)
	assert.Same(t, want, got)
}

func TestFutureAbandon(t *testing.T) {
	futures := map[forensics.Medium]*Future{
		forensics.MediumImage: newFuture(forensics.MediumImage),
		forensics.MediumAudio: newFuture(forensics.MediumAudio),
	}

	futures[forensics.MediumImage].Abandon()
	futures[forensics.MediumImage].Abandon()
	_, err := futures[forensics.MediumImage].Await(context.Background())
	assert.ErrorIs(t, err, ErrAbandoned)

	// The sibling is unaffected.
	futures[forensics.MediumAudio].complete(&audio.Result{Verdict: forensics.Empty("")})
	r, err := futures[forensics.MediumAudio].Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, forensics.MediumAudio, r.Medium())
}

func TestSubmitRunsConcurrently(t *testing.T) {
	e := New(nil, WithLogger(testLogger(new(bytes.Buffer))))
	futures := e.Submit(fullEvidence())
	require.Len(t, futures, 4)

	for m, f := range futures {
		r, err := f.Await(context.Background())
		require.NoError(t, err)
		assert.Equal(t, m, r.Medium())
	}
}

func TestCompareSpeakers(t *testing.T) {
	e := New(nil)
	clip := sine(8000, 16000, 220)
	assert.InDelta(t, 1.0, e.CompareSpeakers(clip, clip, 16000), 1e-9)
}
