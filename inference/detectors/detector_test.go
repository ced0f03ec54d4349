package detectors

import (
	"context"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-east/models"
	"github.com/nvr-ai/go-east/models/model"
	"github.com/nvr-ai/go-east/models/model/preprocess"
	"github.com/nvr-ai/go-east/models/postprocess"
)

const testInputSize = 64

// fakeForward returns a fixed output with a single horizontal word centered at
// (32, 16) in network input pixels, 20 wide and 8 tall.
type fakeForward struct {
	calls  atomic.Int32
	closed atomic.Bool
	err    error
}

func (f *fakeForward) Forward(_ context.Context, blob *preprocess.PreprocessingResult) (tensor.Tensor, tensor.Tensor, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, nil, f.err
	}
	side := blob.Shape[2] / 4
	plane := side * side
	scores := make([]float32, plane)
	geometry := make([]float32, 5*plane)

	i := 4*side + 8
	scores[i] = 0.9
	geometry[0*plane+i] = 4
	geometry[1*plane+i] = 10
	geometry[2*plane+i] = 4
	geometry[3*plane+i] = 10

	return tensor.New(tensor.WithShape(1, 1, side, side), tensor.WithBacking(scores)),
		tensor.New(tensor.WithShape(1, 5, side, side), tensor.WithBacking(geometry)),
		nil
}

func (f *fakeForward) Close() error {
	f.closed.Store(true)
	return nil
}

func testConfig() model.Config {
	cfg := model.DefaultConfig()
	cfg.InputSize = testInputSize
	return cfg
}

func newTestDetector(t *testing.T, forward *fakeForward, opts ...Option) *Detector {
	t.Helper()
	m, err := models.NewModel(model.NewModelArgs{Name: model.ModelNameEAST, Path: "east.onnx"})
	require.NoError(t, err)
	d, err := NewDetector(m, forward, testConfig(), opts...)
	require.NoError(t, err)
	return d
}

func TestDetectorDetect(t *testing.T) {
	forward := &fakeForward{}
	d := newTestDetector(t, forward)

	measures, err := d.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 128, 64)))
	require.NoError(t, err)
	require.Len(t, measures, 1)

	m := measures[0]
	assert.Equal(t, 0, m.ID)
	assert.Equal(t, postprocess.TextLabel, m.Label)
	assert.InDelta(t, 0.9, m.Confidence, 1e-6)

	// Source is twice as wide as the network input and equally tall.
	want := [5]float32{64, 16, 40, 8, 0}
	for i := range want {
		assert.InDelta(t, want[i], m.OrientedBox[i], 1e-3, "oriented box field %d", i)
	}
	assert.InDelta(t, 44, m.Polygon[0].X, 1e-3)
	assert.InDelta(t, 20, m.Polygon[0].Y, 1e-3)
	assert.Equal(t, int32(1), forward.calls.Load())
}

func TestDetectorThresholdOverride(t *testing.T) {
	d := newTestDetector(t, &fakeForward{})
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))

	cfg := d.Config()
	cfg.ConfidenceThreshold = 0.95
	measures, err := d.DetectWithConfig(context.Background(), img, cfg)
	require.NoError(t, err)
	assert.Empty(t, measures)

	cfg.InputSize = 128
	_, err = d.DetectWithConfig(context.Background(), img, cfg)
	assert.ErrorIs(t, err, model.ErrInvalidConfiguration)
}

func TestDetectorCanceledContext(t *testing.T) {
	forward := &fakeForward{}
	d := newTestDetector(t, forward)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Detect(ctx, image.NewRGBA(image.Rect(0, 0, 64, 64)))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, forward.calls.Load())
}

func TestDetectorErrors(t *testing.T) {
	forward := &fakeForward{err: errors.New("device lost")}
	d := newTestDetector(t, forward)

	_, err := d.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 64, 64)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device lost")

	_, err = d.Detect(context.Background(), nil)
	assert.Error(t, err)

	m, err := models.NewModel(model.NewModelArgs{Path: "east.onnx"})
	require.NoError(t, err)
	bad := testConfig()
	bad.NMSThreshold = 2
	_, err = NewDetector(m, &fakeForward{}, bad)
	assert.ErrorIs(t, err, model.ErrInvalidConfiguration)

	_, err = NewDetector(nil, &fakeForward{}, testConfig())
	assert.Error(t, err)
}

func TestDetectorLogsAndCloses(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	forward := &fakeForward{}
	d := newTestDetector(t, forward, WithLogger(zap.New(core)))

	_, err := d.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 64, 64)))
	require.NoError(t, err)

	entries := logs.FilterMessage("detected text").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(1), entries[0].ContextMap()["detections"])

	require.NoError(t, d.Close())
	assert.True(t, forward.closed.Load())
}

func TestCacheReusesDetectors(t *testing.T) {
	var opened atomic.Int32
	var forwards []*fakeForward
	var mu sync.Mutex

	m, err := models.NewModel(model.NewModelArgs{Path: "east.onnx"})
	require.NoError(t, err)
	cache := NewCache(func(cfg model.Config) (*Detector, error) {
		opened.Add(1)
		f := &fakeForward{}
		mu.Lock()
		forwards = append(forwards, f)
		mu.Unlock()
		return NewDetector(m, f, cfg)
	}, nil)

	cfg := testConfig()
	var wg sync.WaitGroup
	detectors := make([]*Detector, 8)
	for i := range detectors {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d, err := cache.Get(cfg)
			assert.NoError(t, err)
			detectors[i] = d
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), opened.Load())
	for _, d := range detectors {
		assert.Same(t, detectors[0], d)
	}

	// Thresholds do not shape the engine.
	cfg.ConfidenceThreshold = 0.8
	d, err := cache.Get(cfg)
	require.NoError(t, err)
	assert.Same(t, detectors[0], d)
	assert.Equal(t, int32(1), opened.Load())

	// The input size does.
	cfg.InputSize = 128
	d, err = cache.Get(cfg)
	require.NoError(t, err)
	assert.NotSame(t, detectors[0], d)
	assert.Equal(t, int32(2), opened.Load())
	assert.Equal(t, 2, cache.Len())

	require.NoError(t, cache.Close())
	assert.Zero(t, cache.Len())
	for _, f := range forwards {
		assert.True(t, f.closed.Load())
	}
}

func TestCacheDoesNotKeepFailures(t *testing.T) {
	var opened atomic.Int32
	cache := NewCache(func(model.Config) (*Detector, error) {
		opened.Add(1)
		return nil, errors.New("model missing")
	}, zap.NewNop())

	_, err := cache.Get(testConfig())
	assert.Error(t, err)
	_, err = cache.Get(testConfig())
	assert.Error(t, err)
	assert.Equal(t, int32(2), opened.Load())
	assert.Zero(t, cache.Len())

	bad := testConfig()
	bad.InputSize = 30
	_, err = cache.Get(bad)
	assert.ErrorIs(t, err, model.ErrInvalidConfiguration)
}

func TestCacheCloseReleasesEngineOpenedDuringClose(t *testing.T) {
	m, err := models.NewModel(model.NewModelArgs{Path: "east.onnx"})
	require.NoError(t, err)

	forward := &fakeForward{}
	started := make(chan struct{})
	release := make(chan struct{})
	cache := NewCache(func(cfg model.Config) (*Detector, error) {
		close(started)
		<-release
		return NewDetector(m, forward, cfg)
	}, nil)

	getErr := make(chan error, 1)
	go func() {
		_, err := cache.Get(testConfig())
		getErr <- err
	}()
	<-started

	closeErr := make(chan error, 1)
	go func() { closeErr <- cache.Close() }()
	assert.Eventually(t, func() bool { return cache.Len() == 0 }, time.Second, time.Millisecond)

	close(release)
	assert.ErrorIs(t, <-getErr, ErrCacheClosed)
	require.NoError(t, <-closeErr)
	assert.True(t, forward.closed.Load(), "engine opened during Close is released")

	_, err = cache.Get(testConfig())
	assert.ErrorIs(t, err, ErrCacheClosed)
}
