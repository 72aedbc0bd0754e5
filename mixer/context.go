package mixer

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/kemarsound/mixer3d/fft"
	"github.com/kemarsound/mixer3d/hrtf"
)

// faultRingSize bounds how many in-callback faults Process can queue between
// API-thread drains before the oldest are overwritten.
const faultRingSize = 32

// faultEvent is one queued fault, captured without formatting so recording it
// from inside Process costs only a struct write.
type faultEvent struct {
	msg      string
	err      error
	panicVal any
}

// ObjectHandle identifies an Object owned by a Context. Handles, not
// pointers, are what callers hold onto across goroutines: Context is the
// sole owner of the underlying *Object, which is what keeps the ownership
// graph acyclic (Object never points back at its Context).
type ObjectHandle int64

// Context is the mixer's top-level entry point: one audio lock shared by
// every Object and Source it owns, a listener pose, a distance/Doppler
// model, and the single fft.Plan and hrtf.Table the whole graph convolves
// against. Exactly one goroutine (the audio thread) may call Process at a
// time; any number of API-thread goroutines may call the other methods
// concurrently with each other and with Process, all serialized by mu.
type Context struct {
	mu sync.Mutex

	outputRate float64
	blockSize  int
	fftSize    int
	plan       *fft.Plan
	hrtf       *hrtf.Table

	listener      Pose
	masterVolume  float64
	distanceModel DistanceModel

	objects    map[ObjectHandle]*Object
	order      []ObjectHandle // creation order, for deterministic Process iteration
	nextHandle ObjectHandle

	// samples is the Context's sample table: named, immutable PCM assets that
	// Sources borrow by reference. Registered once, shared read-only across
	// every source that plays them.
	samples map[string]*Sample

	logger *log.Logger

	// faults is a fixed-size ring of in-callback fault events. Process only
	// ever writes into it (a struct assignment, no formatting or I/O); the
	// API-thread methods below drain and log it via flushFaultsLocked before
	// doing their own work, so Process itself never blocks on or allocates
	// for logger output.
	faults     [faultRingSize]faultEvent
	faultWrite int
	faultCount int

	mixL, mixR []float64 // Process scratch, length blockSize

	enableWindowedOverlap bool
	windowL, windowR      *windowedOverlap // nil unless WithWindowedOverlap is set
}

// Option configures a Context at construction time.
type Option func(*Context)

// WithLogger overrides the default charmbracelet/log logger used for
// in-callback fault reporting.
func WithLogger(logger *log.Logger) Option {
	return func(c *Context) { c.logger = logger }
}

// WithDistanceModel overrides DefaultDistanceModel.
func WithDistanceModel(dm DistanceModel) Option {
	return func(c *Context) { c.distanceModel = dm }
}

// WithWindowedOverlap enables a 50%-overlapped MDCT analysis/synthesis pass
// over the finished stereo mix before it's written to Process's output
// buffer, at the cost of one block of output latency. Off by default: the
// per-source HRTF convolution already avoids block-edge artifacts on its
// own, so this only matters when downstream processing (encoding, further
// layered mixing) benefits from the smoother window shape.
func WithWindowedOverlap(on bool) Option {
	return func(c *Context) { c.enableWindowedOverlap = on }
}

// NewContext builds a Context that will process blockSize frames per
// Process call at outputRate Hz. blockSize is fixed for the Context's
// lifetime: every Process call must supply exactly blockSize frames.
func NewContext(outputRate float64, blockSize int, opts ...Option) (*Context, error) {
	if outputRate <= 0 {
		return nil, newError(ErrInvalidFormat, "output rate must be positive, got %v", outputRate)
	}
	if blockSize <= 0 {
		return nil, newError(ErrInvalidFormat, "block size must be positive, got %d", blockSize)
	}

	fftSize := nextPow2(blockSize + hrtf.IRLength - 1)
	plan, err := fft.NewPlan(fftSize)
	if err != nil {
		return nil, newError(ErrAllocationFailed, "building fft plan of size %d: %v", fftSize, err)
	}

	c := &Context{
		outputRate:    outputRate,
		blockSize:     blockSize,
		fftSize:       fftSize,
		plan:          plan,
		hrtf:          hrtf.Default().Resampled(outputRate),
		listener:      DefaultPose(),
		masterVolume:  1,
		distanceModel: DefaultDistanceModel(),
		objects:       make(map[ObjectHandle]*Object),
		samples:       make(map[string]*Sample),
		logger:        log.Default(),
		mixL:          make([]float64, blockSize),
		mixR:          make([]float64, blockSize),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = log.New(io.Discard)
	}
	if c.enableWindowedOverlap {
		c.windowL, err = newWindowedOverlap(blockSize)
		if err != nil {
			return nil, err
		}
		c.windowR, err = newWindowedOverlap(blockSize)
		if err != nil {
			return nil, err
		}
	}
	return c, nil
}

// CreateObject allocates a new Object and returns its handle.
func (c *Context) CreateObject() ObjectHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushFaultsLocked()

	h := c.nextHandle
	c.nextHandle++
	c.objects[h] = newObject(&c.mu, c.blockSize, c.fftSize)
	c.order = append(c.order, h)
	return h
}

// GetObject resolves a handle to its Object. The returned *Object remains
// valid to call methods on until DeleteObject(handle) is called, or until
// the object autodeletes after its last source finishes.
func (c *Context) GetObject(h ObjectHandle) (*Object, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushFaultsLocked()
	obj, ok := c.objects[h]
	if !ok {
		return nil, newError(ErrNotFound, "no object with handle %d", h)
	}
	return obj, nil
}

// DeleteObject removes an object immediately, silencing any sources it owns.
func (c *Context) DeleteObject(h ObjectHandle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushFaultsLocked()
	if _, ok := c.objects[h]; !ok {
		return newError(ErrNotFound, "no object with handle %d", h)
	}
	c.removeObjectLocked(h)
	return nil
}

func (c *Context) removeObjectLocked(h ObjectHandle) {
	delete(c.objects, h)
	for i, oh := range c.order {
		if oh == h {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// RegisterSample files sample under name in the Context's sample table.
// Registering a name that already exists replaces the table entry for future
// lookups; sources already playing the old sample keep their borrowed
// reference until they finish.
func (c *Context) RegisterSample(name string, sample *Sample) error {
	if sample == nil {
		return newError(ErrInvalidFormat, "cannot register a nil sample under %q", name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushFaultsLocked()
	c.samples[name] = sample
	return nil
}

// Sample returns the sample registered under name.
func (c *Context) Sample(name string) (*Sample, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushFaultsLocked()
	sample, ok := c.samples[name]
	if !ok {
		return nil, newError(ErrNotFound, "no sample registered under %q", name)
	}
	return sample, nil
}

// PlayNamed starts the sample registered under sampleName playing on object h
// under key: the named-lookup counterpart of Object.Play for hosts that hand
// asset names around instead of *Sample pointers. The entry is inserted here
// directly rather than through Object.Play, which would re-acquire the same
// non-recursive audio lock.
func (c *Context) PlayNamed(h ObjectHandle, key, sampleName string, opts PlayOptions) (*Source, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushFaultsLocked()

	obj, ok := c.objects[h]
	if !ok {
		return nil, newError(ErrNotFound, "no object with handle %d", h)
	}
	sample, ok := c.samples[sampleName]
	if !ok {
		return nil, newError(ErrNotFound, "no sample registered under %q", sampleName)
	}

	src := newSampleSource(sample, opts, obj.blockSize, obj.fftSize)
	obj.entries = append(obj.entries, entry{name: key, src: src})
	return src, nil
}

// SetListener updates the listener's pose.
func (c *Context) SetListener(pose Pose) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushFaultsLocked()
	c.listener = pose
}

// SetVolume sets the master (post-mix) gain applied in Process.
func (c *Context) SetVolume(gain float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushFaultsLocked()
	c.masterVolume = gain
}

// SetDistanceModel swaps the attenuation/Doppler model used for every object.
func (c *Context) SetDistanceModel(dm DistanceModel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushFaultsLocked()
	c.distanceModel = dm
}

// OutputFormat returns the rate and block size this Context was built for.
func (c *Context) OutputFormat() (outputRate float64, blockSize int) {
	return c.outputRate, c.blockSize
}

// Process mixes one block of blockSize frames of 3D audio into out, an
// interleaved stereo float32 buffer of length 2*blockSize. It is the only
// method meant to be called from a real-time audio callback; every other
// method may block briefly on the same lock but does no audio-rate work.
//
// A panicking Source (a bug in this package or in a caller-supplied Stream) is recovered
// and replaced with silence for that source's contribution this block; it
// does not take down the rest of the mix or the caller's audio thread. The
// fault is queued, not logged synchronously — Process never does logger I/O
// or string formatting itself, only a fixed-size ring write — and is flushed
// to the logger by whichever API-thread method (CreateObject, SetListener,
// ...) is called next.
func (c *Context) Process(out []float32, frames int) error {
	if frames != c.blockSize {
		return newError(ErrInvalidFormat, "Process called with %d frames, context block size is %d", frames, c.blockSize)
	}
	if len(out) != 2*frames {
		return newError(ErrInvalidFormat, "output buffer length %d does not match 2*frames (%d)", len(out), 2*frames)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.mixL {
		c.mixL[i] = 0
		c.mixR[i] = 0
	}

	// removeObjectLocked mutates c.order in place, so the loop ranges over a
	// snapshot: otherwise reaping a non-last object shifts later handles into
	// already-visited indices, skipping one object and double-processing
	// another within the same callback.
	for _, h := range append([]ObjectHandle(nil), c.order...) {
		obj, ok := c.objects[h]
		if !ok {
			continue
		}
		for i := range obj.entries {
			c.processSourceSafe(obj, obj.entries[i].src, frames)
		}
		if obj.reapDead() {
			c.removeObjectLocked(h)
		}
	}

	if c.windowL != nil {
		c.windowL.process(c.mixL)
		c.windowR.process(c.mixR)
	}

	vol := c.masterVolume
	for i := 0; i < frames; i++ {
		out[2*i] = float32(clampUnit(vol * c.mixL[i]))
		out[2*i+1] = float32(clampUnit(vol * c.mixR[i]))
	}
	return nil
}

// processSourceSafe computes one source's direction and distance terms and
// convolves its contribution into c.mixL/c.mixR, recovering and queueing a
// fault rather than propagating a panic out of Process.
func (c *Context) processSourceSafe(obj *Object, src *Source, frames int) {
	defer func() {
		if r := recover(); r != nil {
			c.recordFault("source processing panicked; substituting silence", nil, r)
			src.state = stateDead
		}
	}()

	if !src.playing() {
		return
	}

	relPos, relVel := listenerRelative(c.listener, obj.pose.Position, obj.pose.Velocity)
	_, elevIdx, azIdx := c.hrtf.Lookup(relPos)
	left, right, err := c.hrtf.Spectrum(elevIdx, azIdx, c.fftSize)
	if err != nil {
		c.recordFault("hrtf spectrum lookup failed; substituting silence", err, nil)
		return
	}

	distGain, pitchRatio := c.distanceModel.Evaluate(relPos, relVel)

	src.processBlock(c.mixL, c.mixR, frames, c.outputRate, left, right, c.plan, c.fftSize, distGain, pitchRatio)
}

// recordFault queues a fault event from inside Process without formatting or
// touching the logger; the oldest unflushed event is overwritten once the
// ring is full. Callers must already hold c.mu.
func (c *Context) recordFault(msg string, err error, panicVal any) {
	c.faults[c.faultWrite%faultRingSize] = faultEvent{msg: msg, err: err, panicVal: panicVal}
	c.faultWrite++
	if c.faultCount < faultRingSize {
		c.faultCount++
	}
}

// flushFaultsLocked logs and clears every queued fault event. Called at the
// start of each public API method (after acquiring c.mu) so that Process
// itself never performs logger I/O or string formatting.
func (c *Context) flushFaultsLocked() {
	if c.faultCount == 0 {
		return
	}
	start := c.faultWrite - c.faultCount
	for i := 0; i < c.faultCount; i++ {
		f := c.faults[(start+i)%faultRingSize]
		switch {
		case f.panicVal != nil:
			c.logger.Error(f.msg, "panic", fmt.Sprint(f.panicVal))
		case f.err != nil:
			c.logger.Error(f.msg, "err", f.err)
		default:
			c.logger.Error(f.msg)
		}
	}
	c.faultCount = 0
}
