package mixer

// Stream is a caller-supplied, owned, mutable PCM source: a decoder, a pipe,
// anything that produces audio it cannot rewind for free. Unlike Sample, a
// Stream belongs to exactly one Source for its lifetime; the mixer never
// shares one Stream across two Sources.
//
// Read is a hint-based pull: the Source asks for approximately hintBytes of
// raw PCM (in the format the Stream was registered with) and the Stream
// returns whatever it has ready, which may be more or less than requested.
// ok is false only when the stream is permanently exhausted; a temporary
// underrun should return a short (possibly empty) slice with ok true.
type Stream interface {
	// Rewind resets the stream to its beginning. Called by the Source when
	// looping is enabled and the stream reports exhaustion.
	Rewind() error
	// Read returns roughly hintBytes of raw PCM data (more or fewer is
	// allowed). ok is false once the
	// stream has nothing further to offer, ever (until the next Rewind).
	Read(hintBytes int) (data []byte, ok bool)
}

// streamDecoder adapts a Stream plus its declared SampleFormat to the same
// fractional-index mono-sample access that Sample provides, so Source's
// resampling loop does not need to special-case the two cases beyond
// construction. It buffers decoded mono samples it has pulled but not yet
// consumed; the buffer is trimmed as the read cursor advances past it so
// memory use tracks how far ahead of real time the Source has decoded, not
// the whole stream's length.
type streamDecoder struct {
	stream Stream
	format SampleFormat

	buf     []float64 // decoded mono samples, buf[0] is absolute frame base
	base    int64     // absolute frame index of buf[0]
	eof     bool      // stream reported exhaustion since the last Rewind
	pending []byte    // undecoded trailing bytes (a partial frame)
}

func newStreamDecoder(s Stream, format SampleFormat) *streamDecoder {
	return &streamDecoder{stream: s, format: format}
}

// ensure makes frames [from, from+need) available in d.buf, pulling more data
// from the underlying Stream as needed and rewinding-and-continuing if loop
// is true and the stream reports exhaustion. It returns false if the data is
// not available now: either it never will be (stream exhausted and loop is
// false, or Rewind failed; d.eof is then set) or the stream had a temporary
// underrun (d.eof stays unset).
func (d *streamDecoder) ensure(from int64, need int, loop bool) bool {
	for {
		have := d.base + int64(len(d.buf)) - from
		if have >= int64(need) {
			return true
		}
		if d.eof {
			if !loop {
				return false
			}
			if err := d.stream.Rewind(); err != nil {
				return false
			}
			d.eof = false
			d.pending = nil
			continue
		}

		const hint = 4096
		raw, ok := d.stream.Read(hint)
		if len(raw) > 0 {
			d.decode(raw)
			continue
		}
		if !ok {
			d.eof = true
			continue
		}
		// Temporary underrun: nothing new yet, but the stream isn't done.
		// Treat this block as short rather than spin waiting for data.
		return false
	}
}

func (d *streamDecoder) decode(raw []byte) {
	bpf := d.format.bytesPerFrame()
	all := raw
	if len(d.pending) > 0 {
		all = append(append([]byte(nil), d.pending...), raw...)
	}
	n := len(all) / bpf
	d.pending = append([]byte(nil), all[n*bpf:]...)

	tmp := &Sample{format: d.format, data: all[:n*bpf], frames: n}
	for i := 0; i < n; i++ {
		d.buf = append(d.buf, tmp.frameMono(i))
	}
}

// at returns the mono sample at absolute frame index idx, assuming ensure has
// already made it available.
func (d *streamDecoder) at(idx int64) float64 {
	rel := idx - d.base
	if rel < 0 || rel >= int64(len(d.buf)) {
		return 0
	}
	return d.buf[rel]
}

// advance drops buffered frames strictly before idx, bounding memory use to
// roughly how far ahead of the read cursor decoding has progressed.
func (d *streamDecoder) advance(idx int64) {
	rel := idx - d.base
	if rel <= 0 {
		return
	}
	if rel >= int64(len(d.buf)) {
		d.base += int64(len(d.buf))
		d.buf = d.buf[:0]
		return
	}
	d.buf = d.buf[rel:]
	d.base += rel
}
