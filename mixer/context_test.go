package mixer_test

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kemarsound/mixer3d/fft"
	"github.com/kemarsound/mixer3d/mixer"
)

func TestSampleRegistryLookup(t *testing.T) {
	ctx := newTestContext(t)
	sample := sineSample(t, 440, 0.1)

	require.NoError(t, ctx.RegisterSample("chime", sample))

	got, err := ctx.Sample("chime")
	require.NoError(t, err)
	assert.Same(t, sample, got, "lookup should return the registered sample by reference, not a copy")

	_, err = ctx.Sample("missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, mixer.ErrNotFoundSentinel))
}

func TestRegisterSampleRejectsNil(t *testing.T) {
	ctx := newTestContext(t)
	err := ctx.RegisterSample("chime", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, mixer.ErrInvalidFormatSentinel))
}

func TestPlayNamedStartsRegisteredSample(t *testing.T) {
	ctx := newTestContext(t)
	require.NoError(t, ctx.RegisterSample("chime", sineSample(t, 440, 0.1)))

	h := ctx.CreateObject()
	obj, err := ctx.GetObject(h)
	require.NoError(t, err)
	obj.SetPosition(mixer.Vector{X: 0, Y: 0, Z: -2})

	opts := mixer.DefaultPlayOptions()
	opts.Loop = true
	_, err = ctx.PlayNamed(h, "bell", "chime", opts)
	require.NoError(t, err)

	blocks := runBlocks(t, ctx, 5)
	for i, buf := range blocks {
		assert.Greaterf(t, energy(buf), 0.0, "block %d should be audible", i)
	}
	assert.True(t, obj.Playing("bell"))
}

func TestPlayNamedUnknownNamesReturnNotFound(t *testing.T) {
	ctx := newTestContext(t)
	require.NoError(t, ctx.RegisterSample("chime", sineSample(t, 440, 0.1)))
	h := ctx.CreateObject()

	_, err := ctx.PlayNamed(h, "bell", "gong", mixer.DefaultPlayOptions())
	assert.True(t, errors.Is(err, mixer.ErrNotFoundSentinel))

	_, err = ctx.PlayNamed(h+100, "bell", "chime", mixer.DefaultPlayOptions())
	assert.True(t, errors.Is(err, mixer.ErrNotFoundSentinel))
}

// TestCoLocatedSourceIsCenteredAndFullScale is the "object at the listener
// position" scenario: a full-scale looping sine on the median plane must come
// out near full scale in both channels, and the channels must match, since
// the straight-ahead impulse responses are identical by symmetry.
func TestCoLocatedSourceIsCenteredAndFullScale(t *testing.T) {
	ctx := newTestContext(t)
	h := ctx.CreateObject()
	obj, err := ctx.GetObject(h)
	require.NoError(t, err)

	opts := mixer.DefaultPlayOptions()
	opts.Loop = true
	obj.Play("tone", sineSample(t, 1000, 1.0), opts)

	var last []float32
	for i := 0; i < 10; i++ {
		last = make([]float32, 2*testBlk)
		require.NoError(t, ctx.Process(last, testBlk))
	}

	var maxAbs float64
	for i := 0; i < testBlk; i++ {
		l, r := float64(last[2*i]), float64(last[2*i+1])
		maxAbs = math.Max(maxAbs, math.Abs(l))
		assert.InDeltaf(t, l, r, 1e-6, "frame %d: channels should match on the median plane", i)
	}
	assert.GreaterOrEqual(t, maxAbs, 0.9)
	assert.LessOrEqual(t, maxAbs, 1.0)
}

// TestLoopSeamIsContinuous wraps a sample holding an exact whole number of
// sine periods (441 Hz, 1000 frames at 44.1 kHz = 10 periods) and checks that
// no adjacent-sample jump anywhere — including across loop wraps and block
// boundaries — exceeds what a continuous sinusoid of that frequency can
// produce, once overlap-save has settled.
func TestLoopSeamIsContinuous(t *testing.T) {
	ctx := newTestContext(t)
	h := ctx.CreateObject()
	obj, err := ctx.GetObject(h)
	require.NoError(t, err)

	vals := make([]float64, 1000)
	for i := range vals {
		vals[i] = math.Sin(2 * math.Pi * 441 * float64(i) / testRate)
	}
	opts := mixer.DefaultPlayOptions()
	opts.Loop = true
	obj.Play("tone", monoSample(t, vals), opts)

	// A 441 Hz unit sine moves at most 2*pi*441/44100 ~ 0.063 per sample;
	// anything much above that means a seam glitch.
	const maxStep = 0.15

	_ = runBlocks(t, ctx, 2) // settle the convolution startup transient
	prev := math.NaN()
	for b := 0; b < 40; b++ {
		buf := make([]float32, 2*testBlk)
		require.NoError(t, ctx.Process(buf, testBlk))
		for i := 0; i < testBlk; i++ {
			cur := float64(buf[2*i])
			if !math.IsNaN(prev) {
				assert.LessOrEqualf(t, math.Abs(cur-prev), maxStep,
					"block %d frame %d: discontinuity at loop seam", b, i)
			}
			prev = cur
		}
	}
}

// TestDopplerShiftsMeasuredFrequency plays a 1 kHz sine on a source closing
// at 10 m/s with c = 340 m/s and measures the output's peak frequency over a
// long FFT window: it must land on 1 kHz * 340/(340-10), within bin
// resolution, not on the unshifted 1 kHz.
func TestDopplerShiftsMeasuredFrequency(t *testing.T) {
	dm := mixer.DefaultDistanceModel()
	dm.SpeedOfSound = 340
	ctx, err := mixer.NewContext(testRate, testBlk, mixer.WithDistanceModel(dm))
	require.NoError(t, err)

	h := ctx.CreateObject()
	obj, err := ctx.GetObject(h)
	require.NoError(t, err)
	obj.SetPosition(mixer.Vector{X: 0, Y: 0, Z: -10})
	obj.SetVelocity(mixer.Vector{X: 0, Y: 0, Z: 10}) // toward the listener

	opts := mixer.DefaultPlayOptions()
	opts.Loop = true
	obj.Play("siren", sineSample(t, 1000, 0.5), opts)

	_ = runBlocks(t, ctx, 8) // settle

	const fftSize = 8192
	window := make([]complex128, 0, fftSize)
	for len(window) < fftSize {
		buf := make([]float32, 2*testBlk)
		require.NoError(t, ctx.Process(buf, testBlk))
		for i := 0; i < testBlk && len(window) < fftSize; i++ {
			window = append(window, complex(float64(buf[2*i]), 0))
		}
	}

	plan, err := fft.NewPlan(fftSize)
	require.NoError(t, err)
	require.NoError(t, plan.Forward(window))

	peakBin, peakMag := 0, 0.0
	for k := 1; k < fftSize/2; k++ {
		mag := math.Hypot(real(window[k]), imag(window[k]))
		if mag > peakMag {
			peakBin, peakMag = k, mag
		}
	}

	binWidth := float64(testRate) / fftSize
	measured := float64(peakBin) * binWidth
	expected := 1000.0 * 340 / (340 - 10)
	assert.InDelta(t, expected, measured, 2*binWidth)
	assert.Greater(t, measured, 1015.0, "measured peak should be clearly above the unshifted 1 kHz")
}
