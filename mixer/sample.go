package mixer

import "math"

// SampleFormat describes the PCM layout of a Sample or Stream: signed
// little-endian integers, 1 or 2 channels, 8 or 16 bits per sample.
type SampleFormat struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// Valid reports whether f is a layout this package knows how to decode.
func (f SampleFormat) Valid() bool {
	if f.SampleRate <= 0 {
		return false
	}
	if f.Channels != 1 && f.Channels != 2 {
		return false
	}
	if f.BitsPerSample != 8 && f.BitsPerSample != 16 {
		return false
	}
	return true
}

func (f SampleFormat) bytesPerFrame() int {
	return f.Channels * (f.BitsPerSample / 8)
}

// Sample is an immutable, borrowed block of PCM audio: a fixed-length sound
// effect decoded once and shared, by reference, across every Source that
// plays it concurrently. Sample never copies its backing bytes after
// construction; callers must not mutate the slice passed to NewSample.
type Sample struct {
	format SampleFormat
	data   []byte
	frames int
}

// NewSample wraps raw PCM bytes as a Sample. data is retained, not copied: the
// caller gives up the right to mutate it.
func NewSample(format SampleFormat, data []byte) (*Sample, error) {
	if !format.Valid() {
		return nil, newError(ErrInvalidFormat, "unsupported sample format %+v", format)
	}
	bpf := format.bytesPerFrame()
	if len(data)%bpf != 0 {
		return nil, newError(ErrInvalidFormat, "data length %d is not a multiple of frame size %d", len(data), bpf)
	}
	return &Sample{format: format, data: data, frames: len(data) / bpf}, nil
}

// Format returns the sample's PCM layout.
func (s *Sample) Format() SampleFormat { return s.format }

// NumFrames returns the number of frames (one sample per channel) in s.
func (s *Sample) NumFrames() int { return s.frames }

// RawData returns the sample's backing PCM bytes. The caller must not
// mutate them; this is a read-only view, useful for e.g. replaying a Sample
// through a Stream-shaped adapter.
func (s *Sample) RawData() []byte { return s.data }

// frameMono returns the mono-downmixed value, in [-1,1], of frame index i.
// Callers must only pass i in [0, NumFrames()).
func (s *Sample) frameMono(i int) float64 {
	bpf := s.format.bytesPerFrame()
	base := i * bpf
	switch s.format.BitsPerSample {
	case 8:
		if s.format.Channels == 1 {
			return decodeU8(s.data[base])
		}
		return 0.5 * (decodeU8(s.data[base]) + decodeU8(s.data[base+1]))
	default: // 16
		if s.format.Channels == 1 {
			return decodeS16(s.data[base], s.data[base+1])
		}
		l := decodeS16(s.data[base], s.data[base+1])
		r := decodeS16(s.data[base+2], s.data[base+3])
		return 0.5 * (l + r)
	}
}

func decodeU8(b byte) float64 {
	// 8-bit PCM is conventionally unsigned with a 128 midpoint.
	return (float64(b) - 128) / 128
}

func decodeS16(lo, hi byte) float64 {
	v := int16(uint16(lo) | uint16(hi)<<8)
	return float64(v) / 32768
}

// clampUnit keeps a resampled or mixed value inside the representable range
// without letting transient overshoot from linear interpolation escape it.
func clampUnit(x float64) float64 {
	return math.Max(-1, math.Min(1, x))
}
