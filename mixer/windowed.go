package mixer

import "github.com/kemarsound/mixer3d/mdct"

// windowedOverlap applies a 50%-overlapped MDCT analysis/synthesis pass to
// one channel of the post-mix signal. With no spectral modification between
// Forward and Inverse this is an identity transform under the Princen-Bradley
// condition, but the sine analysis/synthesis window replaces the implicit
// rectangular window of independently-summed per-source blocks with a
// smooth taper across block boundaries, at the cost of one block of latency.
// It is an optional windowed-overlap mode for the HRTF convolution path,
// applied once to the finished mix rather than per source.
type windowedOverlap struct {
	mt    *mdct.MDCT
	prev  []float64 // previous block's raw input, length n
	carry []float64 // previous block's synthesized second half, length n
	frame []float64 // scratch, length 2n
	freq  []float64 // scratch, length n
	out   []float64 // scratch, length 2n
}

func newWindowedOverlap(n int) (*windowedOverlap, error) {
	mt, err := mdct.New(2*n, mdct.SineWindow)
	if err != nil {
		return nil, newError(ErrAllocationFailed, "building windowed-overlap mdct of size %d: %v", 2*n, err)
	}
	return &windowedOverlap{
		mt:    mt,
		prev:  make([]float64, n),
		carry: make([]float64, n),
		frame: make([]float64, 2*n),
		freq:  make([]float64, n),
		out:   make([]float64, 2*n),
	}, nil
}

// process replaces block (length n) in place with the windowed-overlap
// reconstruction of the same signal, delayed by one block.
func (w *windowedOverlap) process(block []float64) {
	n := len(block)
	copy(w.frame[:n], w.prev)
	copy(w.frame[n:], block)
	// Save the raw (unwindowed) current input as next call's history before
	// Apply windows w.frame in place.
	copy(w.prev, block)

	w.mt.Apply(w.frame)
	if err := w.mt.Forward(w.frame, w.freq); err != nil {
		return
	}
	if err := w.mt.Inverse(w.freq, w.out); err != nil {
		return
	}
	w.mt.Apply(w.out)

	for i := 0; i < n; i++ {
		block[i] = w.out[i] + w.carry[i]
	}
	copy(w.carry, w.out[n:])
}
