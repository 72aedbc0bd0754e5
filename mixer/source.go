package mixer

import (
	"math"

	"github.com/kemarsound/mixer3d/fft"
	"github.com/kemarsound/mixer3d/hrtf"
)

type sourceState int

const (
	statePlaying sourceState = iota
	stateFadingOut
	stateDead
)

// Source is one in-flight playback of a Sample or Stream, owned by exactly
// one Object. All of its fields are touched only while the Context's audio
// lock is held — either from inside Process (the audio thread) or from one
// of the public Object methods (the API thread) — never both at once.
type Source struct {
	sample  *Sample
	decoder *streamDecoder
	loop    bool
	cursor  float64 // fractional frame position in the source's own rate

	gain  float64
	pitch float64

	state          sourceState
	elapsed        float64 // seconds of output processed since creation
	fadeInSeconds  float64
	fadeOutSeconds float64
	fadeOutStart   float64 // s.elapsed at the moment FadeOut was triggered

	overlap  []float64 // length hrtf.IRLength-1, time-domain convolution tail
	scratch  []float64 // length B, reused pull buffer
	timeBuf  []complex128
	leftBuf  []complex128
	rightBuf []complex128
}

// PlayOptions configures a new Source's playback parameters.
type PlayOptions struct {
	Loop           bool
	Gain           float64
	Pitch          float64
	FadeInSeconds  float64
	FadeOutSeconds float64 // applied automatically when the source runs out, non-looping only
}

// DefaultPlayOptions plays once, at unit gain and pitch, with no fades.
func DefaultPlayOptions() PlayOptions {
	return PlayOptions{Gain: 1, Pitch: 1}
}

func newSource(blockSize, fftSize int) *Source {
	return &Source{
		gain:     1,
		pitch:    1,
		overlap:  make([]float64, hrtf.IRLength-1),
		scratch:  make([]float64, blockSize),
		timeBuf:  make([]complex128, fftSize),
		leftBuf:  make([]complex128, fftSize),
		rightBuf: make([]complex128, fftSize),
	}
}

func newSampleSource(sample *Sample, opts PlayOptions, blockSize, fftSize int) *Source {
	s := newSource(blockSize, fftSize)
	s.sample = sample
	s.applyOptions(opts)
	return s
}

func newStreamSource(stream Stream, format SampleFormat, opts PlayOptions, blockSize, fftSize int) *Source {
	s := newSource(blockSize, fftSize)
	s.decoder = newStreamDecoder(stream, format)
	s.applyOptions(opts)
	return s
}

func (s *Source) applyOptions(opts PlayOptions) {
	s.loop = opts.Loop
	s.gain = opts.Gain
	if s.gain == 0 {
		s.gain = 1
	}
	s.pitch = opts.Pitch
	if s.pitch == 0 {
		s.pitch = 1
	}
	s.fadeInSeconds = opts.FadeInSeconds
	s.fadeOutSeconds = opts.FadeOutSeconds
}

func (s *Source) nativeRate() float64 {
	if s.sample != nil {
		return float64(s.sample.Format().SampleRate)
	}
	return float64(s.decoder.format.SampleRate)
}

// fadeOut assumes the audio lock is already held; see Object.FadeOut for the
// locking public wrapper.
func (s *Source) fadeOut(seconds float64) {
	if s.state == stateDead {
		return
	}
	if s.state == statePlaying {
		s.fadeOutStart = s.elapsed
		s.fadeOutSeconds = seconds
		s.state = stateFadingOut
	}
}

func (s *Source) setLoop(loop bool) { s.loop = loop }
func (s *Source) getLoop() bool     { return s.loop }
func (s *Source) playing() bool     { return s.state != stateDead }

// envelope returns the fade-in * fade-out multiplier at elapsed time t.
func (s *Source) envelope(t float64) float64 {
	in := 1.0
	if s.fadeInSeconds > 0 {
		in = clamp01(t / s.fadeInSeconds)
	}
	out := 1.0
	if s.state == stateFadingOut {
		if s.fadeOutSeconds <= 0 {
			out = 0
		} else {
			tEnd := s.fadeOutStart + s.fadeOutSeconds
			out = clamp01((tEnd - t) / s.fadeOutSeconds)
		}
	}
	return in * out
}

// pull fills s.scratch[:n] with n mono samples at the given output-to-source
// rate ratio, advancing the read cursor and handling looping. permEnd is true
// once the underlying data is exhausted and will never produce more (i.e.
// loop is false and the end has been reached).
func (s *Source) pull(n int, ratio float64) (out []float64, permEnd bool) {
	out = s.scratch[:n]

	if s.sample != nil {
		total := s.sample.NumFrames()
		for i := 0; i < n; i++ {
			if total == 0 {
				out[i] = 0
				permEnd = true
				continue
			}
			pos := s.cursor
			if pos >= float64(total) {
				if s.loop {
					pos = math.Mod(pos, float64(total))
					s.cursor = pos
				} else {
					out[i] = 0
					permEnd = true
					continue
				}
			}
			idx0 := int(pos)
			frac := pos - float64(idx0)
			idx1 := idx0 + 1
			if idx1 >= total {
				if s.loop {
					idx1 = 0
				} else {
					idx1 = idx0
				}
			}
			v0 := s.sample.frameMono(idx0)
			v1 := s.sample.frameMono(idx1)
			out[i] = clampUnit(v0*(1-frac) + v1*frac)
			s.cursor += ratio
		}
		return out, permEnd
	}

	need := int(math.Ceil(ratio)) + 2
	for i := 0; i < n; i++ {
		pos := s.cursor
		from := int64(math.Floor(pos))
		if !s.decoder.ensure(from, need, s.loop) {
			out[i] = 0
			// A temporary underrun leaves eof unset: the block is short,
			// but the stream is not over.
			if s.decoder.eof {
				permEnd = true
			}
			continue
		}
		frac := pos - float64(from)
		v0 := s.decoder.at(from)
		v1 := s.decoder.at(from + 1)
		out[i] = clampUnit(v0*(1-frac) + v1*frac)
		s.cursor += ratio
		s.decoder.advance(int64(math.Floor(s.cursor)) - 1)
	}
	return out, permEnd
}

// processBlock resamples, envelopes, and HRTF-convolves n output frames of
// this source, adding its stereo contribution into mixL/mixR (both length n).
// dirLeft/dirRight are the memoized HRTF spectra for the source's current
// direction relative to the listener, sized to fftSize. It returns false once
// the source has nothing left to contribute, ever, and should be reaped.
func (s *Source) processBlock(mixL, mixR []float64, n int, outputRate float64, dirLeft, dirRight []complex128, plan *fft.Plan, fftSize int, distGain, pitchRatio float64) bool {
	if s.state == stateDead {
		return false
	}

	ratio := s.pitch * pitchRatio * s.nativeRate() / outputRate
	mono, permEnd := s.pull(n, ratio)

	startEnv := s.envelope(s.elapsed)
	endT := s.elapsed + float64(n)/outputRate
	endEnv := s.envelope(endT)

	overlapLen := len(s.overlap)
	for i := range s.timeBuf {
		s.timeBuf[i] = 0
	}
	for i, v := range s.overlap {
		s.timeBuf[i] = complex(v, 0)
	}
	for i := 0; i < n; i++ {
		frac := float64(i) / float64(n)
		env := startEnv + (endEnv-startEnv)*frac
		s.timeBuf[overlapLen+i] = complex(s.gain*distGain*env*mono[i], 0)
	}

	// Save the tail of this block's real input (overlap ++ new samples, before
	// the zero padding) as the overlap-save prefix for the next block.
	for i := range s.overlap {
		s.overlap[i] = real(s.timeBuf[n+i])
	}

	if err := plan.Forward(s.timeBuf); err != nil {
		return false
	}
	for i := range s.timeBuf {
		s.leftBuf[i] = s.timeBuf[i] * dirLeft[i]
		s.rightBuf[i] = s.timeBuf[i] * dirRight[i]
	}
	if err := plan.Inverse(s.leftBuf); err != nil {
		return false
	}
	if err := plan.Inverse(s.rightBuf); err != nil {
		return false
	}

	for i := 0; i < n; i++ {
		mixL[i] += real(s.leftBuf[overlapLen+i])
		mixR[i] += real(s.rightBuf[overlapLen+i])
	}

	s.elapsed = endT

	if permEnd && !s.loop {
		if s.state != stateFadingOut {
			// Non-looping data exhaustion starts the fade-out configured by
			// PlayOptions.FadeOutSeconds (instantaneous when zero), so the
			// envelope math above still governs the tail.
			s.fadeOutStart = s.elapsed
			s.state = stateFadingOut
		}
	}

	if s.state == stateFadingOut && endEnv <= 0 {
		s.state = stateDead
		return false
	}

	return true
}
