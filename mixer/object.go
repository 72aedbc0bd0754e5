package mixer

import "sync"

// entry files a Source in one of an Object's two keyspaces: a caller-chosen
// sound name, or an integer index. One key can have several simultaneous
// instances in flight, e.g. the same footstep sample triggered twice before
// the first finishes. Order of iteration always matches insertion order so
// CancelAll and Process are deterministic.
type entry struct {
	name    string
	index   int
	byIndex bool
	src     *Source
}

func (e entry) matchesName(name string) bool { return !e.byIndex && e.name == name }
func (e entry) matchesIndex(index int) bool  { return e.byIndex && e.index == index }

// Object is a positioned, oriented emitter that owns zero or more in-flight
// Sources, filed under two parallel multimaps: one keyed by name, one keyed
// by an integer index. Exactly one Context owns each Object; Object never
// holds a back reference to its Context, only to the audio lock it shares
// (see Context.mu and newObject), which is what lets Object's public methods
// and Context.Process safely interleave without a cyclic ownership graph.
type Object struct {
	mu *sync.Mutex

	pose Pose

	autodelete bool
	entries    []entry

	blockSize int
	fftSize   int
}

func newObject(mu *sync.Mutex, blockSize, fftSize int) *Object {
	return &Object{mu: mu, pose: DefaultPose(), blockSize: blockSize, fftSize: fftSize}
}

// SetPose replaces the object's position/velocity/orientation in one step.
// The write happens under the audio lock, so a pose update is never torn
// across a Process call: the callback sees either the old pose or the new
// one, whole.
func (o *Object) SetPose(p Pose) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pose = p
}

// GetPose returns the object's current pose.
func (o *Object) GetPose() Pose {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pose
}

// SetPosition updates only the object's world position.
func (o *Object) SetPosition(v Vector) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pose.Position = v
}

// SetVelocity updates only the object's world velocity, used by the distance
// model's Doppler term.
func (o *Object) SetVelocity(v Vector) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pose.Velocity = v
}

// Autodelete(true) marks the object dead and force-cancels every source it
// owns, in both keyspaces; Context reaps the emptied object on the next
// Process call. Without the cancel, an object holding a looping source would
// never reach the empty state reapDead looks for and would leak forever.
// Autodelete(false) clears the mark (useful only before the next callback
// runs; once reaped, the handle is gone).
func (o *Object) Autodelete(on bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.autodelete = on
	if on {
		for i := range o.entries {
			o.entries[i].src.state = stateDead
		}
	}
}

// Play starts sample playing under name, returning the new Source. Multiple
// concurrent plays under the same name are allowed; each gets its own Source.
func (o *Object) Play(name string, sample *Sample, opts PlayOptions) *Source {
	o.mu.Lock()
	defer o.mu.Unlock()
	src := newSampleSource(sample, opts, o.blockSize, o.fftSize)
	o.entries = append(o.entries, entry{name: name, src: src})
	return src
}

// PlayIndexed is Play filed in the integer keyspace instead of the name one.
func (o *Object) PlayIndexed(index int, sample *Sample, opts PlayOptions) *Source {
	o.mu.Lock()
	defer o.mu.Unlock()
	src := newSampleSource(sample, opts, o.blockSize, o.fftSize)
	o.entries = append(o.entries, entry{index: index, byIndex: true, src: src})
	return src
}

// PlayStream starts stream playing under name using format to decode it.
func (o *Object) PlayStream(name string, stream Stream, format SampleFormat, opts PlayOptions) (*Source, error) {
	if !format.Valid() {
		return nil, newError(ErrInvalidFormat, "unsupported stream format %+v", format)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	src := newStreamSource(stream, format, opts, o.blockSize, o.fftSize)
	o.entries = append(o.entries, entry{name: name, src: src})
	return src, nil
}

// PlayStreamIndexed is PlayStream filed in the integer keyspace.
func (o *Object) PlayStreamIndexed(index int, stream Stream, format SampleFormat, opts PlayOptions) (*Source, error) {
	if !format.Valid() {
		return nil, newError(ErrInvalidFormat, "unsupported stream format %+v", format)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	src := newStreamSource(stream, format, opts, o.blockSize, o.fftSize)
	o.entries = append(o.entries, entry{index: index, byIndex: true, src: src})
	return src, nil
}

// entriesWhere returns the indices of every entry matching the predicate, in
// insertion order; the first match is always the oldest still-filed instance,
// which is what makes SetLoop's "first source" well-defined.
func (o *Object) entriesWhere(match func(entry) bool) []int {
	var idxs []int
	for i, e := range o.entries {
		if match(e) {
			idxs = append(idxs, i)
		}
	}
	return idxs
}

// fadeOutAt starts a seconds-long linear fade-out on each listed entry.
func (o *Object) fadeOutAt(idxs []int, seconds float64) {
	for _, i := range idxs {
		o.entries[i].src.fadeOut(seconds)
	}
}

// cancelAt destroys every listed entry immediately when seconds == 0, and
// otherwise fades out only the looping ones; non-looping instances are left
// to play to completion, since they are already guaranteed to end on their
// own.
func (o *Object) cancelAt(idxs []int, seconds float64) {
	for _, i := range idxs {
		src := o.entries[i].src
		if seconds == 0 {
			src.state = stateDead
			continue
		}
		if src.getLoop() {
			src.fadeOut(seconds)
		}
	}
}

// setLoopAt sets loop on the first (oldest) listed entry and explicitly
// clears it on every other, so a transient retrigger can never leave two
// overlapping instances both looping.
func (o *Object) setLoopAt(idxs []int, loop bool) {
	for n, i := range idxs {
		o.entries[i].src.setLoop(loop && n == 0)
	}
}

func (o *Object) anyLoopAt(idxs []int) bool {
	for _, i := range idxs {
		if o.entries[i].src.getLoop() {
			return true
		}
	}
	return false
}

// FadeOut starts a seconds-long linear fade-out on every instance currently
// filed under name.
func (o *Object) FadeOut(name string, seconds float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fadeOutAt(o.entriesWhere(func(e entry) bool { return e.matchesName(name) }), seconds)
}

// FadeOutIndexed is FadeOut for the integer keyspace.
func (o *Object) FadeOutIndexed(index int, seconds float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fadeOutAt(o.entriesWhere(func(e entry) bool { return e.matchesIndex(index) }), seconds)
}

// Cancel destroys or fades every instance under name. With seconds == 0 it
// destroys all of them immediately, looping or not. With seconds > 0 it fades
// out only the looping instances and leaves non-looping ones alone.
func (o *Object) Cancel(name string, seconds float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cancelAt(o.entriesWhere(func(e entry) bool { return e.matchesName(name) }), seconds)
}

// CancelIndexed is Cancel for the integer keyspace.
func (o *Object) CancelIndexed(index int, seconds float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cancelAt(o.entriesWhere(func(e entry) bool { return e.matchesIndex(index) }), seconds)
}

// CancelAll acts across every key in both keyspaces. With force it destroys
// every source immediately; otherwise it fades out only the looping ones
// over seconds, leaving non-looping sources to finish naturally.
func (o *Object) CancelAll(force bool, seconds float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := range o.entries {
		src := o.entries[i].src
		if force {
			src.state = stateDead
			continue
		}
		if src.getLoop() {
			src.fadeOut(seconds)
		}
	}
}

// SetLoop sets loop on the first (oldest) instance under name and explicitly
// clears it on every other instance under that name.
func (o *Object) SetLoop(name string, loop bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.setLoopAt(o.entriesWhere(func(e entry) bool { return e.matchesName(name) }), loop)
}

// SetLoopIndexed is SetLoop for the integer keyspace.
func (o *Object) SetLoopIndexed(index int, loop bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.setLoopAt(o.entriesWhere(func(e entry) bool { return e.matchesIndex(index) }), loop)
}

// GetLoop reports whether any instance under name has its loop flag set.
func (o *Object) GetLoop(name string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.anyLoopAt(o.entriesWhere(func(e entry) bool { return e.matchesName(name) }))
}

// GetLoopIndexed is GetLoop for the integer keyspace.
func (o *Object) GetLoopIndexed(index int) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.anyLoopAt(o.entriesWhere(func(e entry) bool { return e.matchesIndex(index) }))
}

// Playing reports whether any instance of name is still alive. With name ""
// it reports whether the object has any live source at all, in either
// keyspace.
func (o *Object) Playing(name string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, e := range o.entries {
		if (name == "" || e.matchesName(name)) && e.src.playing() {
			return true
		}
	}
	return false
}

// PlayingIndexed is Playing for the integer keyspace.
func (o *Object) PlayingIndexed(index int) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, e := range o.entries {
		if e.matchesIndex(index) && e.src.playing() {
			return true
		}
	}
	return false
}

// reapDead drops entries whose Source has died, assuming the audio lock is
// already held (called from inside Process). It returns true if the object
// is now empty and marked Autodelete.
func (o *Object) reapDead() (emptyAndAutodelete bool) {
	live := o.entries[:0]
	for _, e := range o.entries {
		if e.src.playing() {
			live = append(live, e)
		}
	}
	o.entries = live
	return o.autodelete && len(o.entries) == 0
}
