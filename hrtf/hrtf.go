// Package hrtf provides a KEMAR-shaped head-related transfer function table:
// impulse responses indexed by elevation then azimuth, with exact mirror
// symmetry across the median plane, a nearest-direction lookup, and a
// memoized per-direction frequency-domain spectrum for the mixer's
// overlap-save convolution path.
//
// The real measured KEMAR corpus (MIT Media Lab) is a licensed third-party
// dataset that appears nowhere in this codebase's source lineage; rather than
// fabricate a data file pretending to be it, this package synthesizes a table
// with the same structural properties (elevation/azimuth grid, mirror
// symmetry, 128-sample real impulse responses, nearest-neighbor lookup) from
// a compact spherical-head ITD/ILD model. See DESIGN.md.
package hrtf

import (
	"fmt"
	"math"
	"sync"

	"github.com/golang/geo/r3"

	"github.com/kemarsound/mixer3d/fft"
)

// IRLength is the length, in samples, of every impulse response in the
// table, matching the standard 128-sample KEMAR convention.
const IRLength = 128

// NativeSampleRate is the rate the table is synthesized at; Context resamples
// on init if the configured output rate differs (see Table.Resampled).
const NativeSampleRate = 44100.0

const (
	headRadiusMeters = 0.0875
	speedOfSound     = 343.0
	onsetSample      = 20.0
)

// Entry is a single direction's pair of impulse responses.
type Entry struct {
	Left, Right [IRLength]float64
}

// Table is a process-wide, read-only-after-init HRTF lookup.
type Table struct {
	elevations []float64   // ascending, degrees
	azimuths   [][]float64 // azimuths[e] ascending, degrees in [0,360)
	entries    [][]Entry   // entries[e][a]

	specMu    sync.Mutex
	specCache map[specKey]spectrumPair
}

type specKey struct {
	elevIdx, azIdx, fftSize int
}

type spectrumPair struct {
	left, right []complex128
}

var (
	defaultOnce  sync.Once
	defaultTable *Table
)

// Default returns the process-wide synthesized KEMAR-shaped table, building
// it on first use.
func Default() *Table {
	defaultOnce.Do(func() {
		defaultTable = build()
	})
	return defaultTable
}

func build() *Table {
	elevations := make([]float64, 0, 14)
	for e := -40; e <= 90; e += 10 {
		elevations = append(elevations, float64(e))
	}

	t := &Table{
		elevations: elevations,
		azimuths:   make([][]float64, len(elevations)),
		entries:    make([][]Entry, len(elevations)),
		specCache:  make(map[specKey]spectrumPair),
	}

	for i, elev := range elevations {
		count := azimuthCount(elev)
		az := make([]float64, count)
		entries := make([]Entry, count)
		step := 360.0 / float64(count)
		for a := range count {
			az[a] = float64(a) * step
		}
		if count%2 == 0 {
			// Exact canonical value: this grid point is its own mirror image
			// (directly behind), so it must land on precisely 180 degrees
			// for generateIR to see foldForITD produce exactly zero ITD —
			// otherwise floating-point drift from the division above would
			// leave Left and Right merely close instead of exactly equal.
			az[count/2] = 180.0
		}

		// Only the "right half" of the grid (including the two fixed points
		// at azimuth 0 and, if count is even, 180) is generated from the
		// ITD/ILD model directly. Its mirror image is filled in by swapping
		// left/right verbatim rather than recomputing from the mirrored
		// angle, so that Lookup(-az).Left == Lookup(az).Right holds as exact
		// struct equality and not merely within floating-point tolerance.
		for a := 0; a <= count/2; a++ {
			entries[a] = generateIR(az[a], elev)
			mirror := (count - a) % count
			if mirror != a {
				entries[mirror] = swapEars(entries[a])
			}
		}

		t.azimuths[i] = az
		t.entries[i] = entries
	}

	return t
}

func swapEars(e Entry) Entry {
	return Entry{Left: e.Right, Right: e.Left}
}

// azimuthCount mirrors the real KEMAR grid's property of fewer measured
// azimuths near the poles, collapsing to a single measurement directly
// overhead/underfoot.
func azimuthCount(elevationDeg float64) int {
	c := int(math.Round(72 * math.Cos(elevationDeg*math.Pi/180)))
	if c < 1 {
		return 1
	}
	return c
}

// NumElevations returns the number of elevation rows in the grid.
func (t *Table) NumElevations() int { return len(t.elevations) }

// NumAzimuths returns the number of azimuth columns for elevation row e.
func (t *Table) NumAzimuths(e int) int { return len(t.azimuths[e]) }

// Resampled returns a copy of t whose impulse responses have been converted
// from NativeSampleRate to outputRate by linear interpolation, per §6: "HRTF
// database ... resampled on init to the configured output rate if different."
// Each IR keeps its fixed IRLength tap count; what changes is how much real
// time those taps span, exactly as if the original 128-sample measurement had
// been re-sampled at the new rate and then truncated/zero-padded back to
// IRLength taps. If outputRate == NativeSampleRate, t itself is returned
// unchanged (no copy, no interpolation pass).
func (t *Table) Resampled(outputRate float64) *Table {
	if outputRate == NativeSampleRate {
		return t
	}

	out := &Table{
		elevations: t.elevations,
		azimuths:   t.azimuths,
		entries:    make([][]Entry, len(t.entries)),
		specCache:  make(map[specKey]spectrumPair),
	}
	ratio := NativeSampleRate / outputRate
	for e, row := range t.entries {
		resampledRow := make([]Entry, len(row))
		for a, entry := range row {
			resampledRow[a] = Entry{
				Left:  resampleIR(entry.Left, ratio),
				Right: resampleIR(entry.Right, ratio),
			}
		}
		out.entries[e] = resampledRow
	}
	return out
}

// resampleIR linearly interpolates ir (length IRLength, implicitly sampled at
// NativeSampleRate) at new sample spacing ratio = NativeSampleRate/outputRate,
// producing another IRLength-tap array: newIR[n] approximates ir at original
// index n*ratio, zero beyond ir's original extent.
func resampleIR(ir [IRLength]float64, ratio float64) (out [IRLength]float64) {
	for n := range out {
		pos := float64(n) * ratio
		i0 := int(math.Floor(pos))
		if i0 < 0 || i0 >= IRLength {
			continue
		}
		frac := pos - float64(i0)
		v0 := ir[i0]
		var v1 float64
		if i0+1 < IRLength {
			v1 = ir[i0+1]
		}
		out[n] = v0*(1-frac) + v1*frac
	}
	return out
}

// Lookup snaps dir (need not be unit-length; the zero vector falls back to
// straight ahead) to the nearest elevation row and azimuth column and
// returns that entry along with its grid indices.
func (t *Table) Lookup(dir r3.Vector) (entry Entry, elevIdx, azIdx int) {
	elevDeg, azDeg := directionToAngles(dir)
	return t.LookupAngles(elevDeg, azDeg)
}

// LookupAngles is Lookup expressed directly in degrees (elevation in
// [-90,90], azimuth in any real value, taken mod 360).
func (t *Table) LookupAngles(elevationDeg, azimuthDeg float64) (entry Entry, elevIdx, azIdx int) {
	elevIdx = nearestElevation(t.elevations, elevationDeg)
	azIdx = nearestAzimuth(t.azimuths[elevIdx], azimuthDeg)
	return t.entries[elevIdx][azIdx], elevIdx, azIdx
}

func directionToAngles(dir r3.Vector) (elevationDeg, azimuthDeg float64) {
	n := dir.Norm()
	if n == 0 {
		return 0, 0
	}
	dir = dir.Mul(1 / n)
	elevationDeg = math.Asin(clamp(dir.Y, -1, 1)) * 180 / math.Pi
	azimuthDeg = math.Atan2(dir.X, dir.Z) * 180 / math.Pi
	if azimuthDeg < 0 {
		azimuthDeg += 360
	}
	return elevationDeg, azimuthDeg
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func nearestElevation(elevations []float64, target float64) int {
	best, bestDiff := 0, math.Inf(1)
	for i, e := range elevations {
		d := math.Abs(e - target)
		if d < bestDiff {
			best, bestDiff = i, d
		}
	}
	return best
}

// nearestAzimuth snaps target (degrees, any real value) to the nearest entry
// in an ascending, equally-spaced grid covering [0,360). Angles past 180 are
// snapped by their mirror image and the index mirrored back, so a half-step
// tie rounds the same way on both sides of the median plane: negating an
// azimuth and re-snapping lands on index (count-idx)%count.
func nearestAzimuth(azimuths []float64, target float64) int {
	count := len(azimuths)
	step := 360.0 / float64(count)
	norm := math.Mod(target, 360)
	if norm < 0 {
		norm += 360
	}
	mirrored := norm > 180
	if mirrored {
		norm = 360 - norm
	}
	idx := int(math.Round(norm/step)) % count
	if mirrored {
		idx = (count - idx) % count
	}
	return idx
}

// foldForITD maps an azimuth (degrees, any real value) to the signed angle
// in [-90,90] used for the Woodworth ITD approximation, folding front/back
// symmetrically (ITD alone can't distinguish front from back). foldForITD is
// odd: foldForITD(-x) ==
// -foldForITD(x), which is what makes generateIR's mirror symmetry exact.
func foldForITD(azimuthDeg float64) float64 {
	a := math.Mod(azimuthDeg+180, 360)
	if a < 0 {
		a += 360
	}
	a -= 180 // now in [-180, 180)
	if a >= -90 && a <= 90 {
		return a
	}
	if a > 90 {
		return 180 - a
	}
	return -180 - a
}

// generateIR synthesizes the (left, right) impulse response pair for a given
// direction from a spherical-head ITD/ILD model. It is a pure function of
// its inputs, and is antisymmetric under azimuth negation (left and right
// swap) by construction: foldForITD is odd, and the two ears take mirrored
// branches of the same gain, shadow and delay formulas.
func generateIR(azimuthDeg, elevationDeg float64) Entry {
	theta := foldForITD(azimuthDeg)
	thetaRad := theta * math.Pi / 180

	itdSeconds := (headRadiusMeters / speedOfSound) * (thetaRad + math.Sin(thetaRad))
	itdSamples := itdSeconds * NativeSampleRate
	shadow := math.Sin(math.Abs(thetaRad))

	var leftGain, rightGain, leftShadow, rightShadow float64
	if theta >= 0 {
		// Source toward the right: right ear is ipsilateral.
		rightGain, rightShadow = 1.0, 0.0
		leftGain, leftShadow = 1-0.6*shadow, shadow
	} else {
		leftGain, leftShadow = 1.0, 0.0
		rightGain, rightShadow = 1-0.6*shadow, shadow
	}

	elevGain := 0.7 + 0.3*math.Cos(elevationDeg*math.Pi/180)

	rightDelay := onsetSample - itdSamples/2
	leftDelay := onsetSample + itdSamples/2

	var e Entry
	copy(e.Left[:], buildImpulse(leftDelay, leftGain*elevGain, leftShadow, IRLength))
	copy(e.Right[:], buildImpulse(rightDelay, rightGain*elevGain, rightShadow, IRLength))
	return e
}

// buildImpulse places a fractionally-delayed, linearly-interpolated unit
// impulse of the given gain, then runs it through a causal one-pole
// smoothing filter whose strength is controlled by shadow (simulating head
// shadowing of the contralateral ear).
func buildImpulse(delaySamples, gain, shadow float64, length int) []float64 {
	ir := make([]float64, length)

	i0 := int(math.Floor(delaySamples))
	frac := delaySamples - float64(i0)
	if i0 >= 0 && i0 < length {
		ir[i0] += gain * (1 - frac)
	}
	if i0+1 >= 0 && i0+1 < length {
		ir[i0+1] += gain * frac
	}

	if shadow > 0 {
		alpha := 1 - 0.5*shadow
		prev := 0.0
		for i := range ir {
			ir[i] = alpha*ir[i] + (1-alpha)*prev
			prev = ir[i]
		}
	}

	return ir
}

// Spectrum returns the memoized zero-padded FFT of the impulse responses at
// grid position (elevIdx, azIdx), padded to fftSize (which must be a power
// of two >= IRLength). Subsequent calls for the same key return the cached
// slices; callers must not mutate the returned slices.
func (t *Table) Spectrum(elevIdx, azIdx, fftSize int) (left, right []complex128, err error) {
	if elevIdx < 0 || elevIdx >= len(t.entries) {
		return nil, nil, fmt.Errorf("hrtf: elevation index %d out of range", elevIdx)
	}
	if azIdx < 0 || azIdx >= len(t.entries[elevIdx]) {
		return nil, nil, fmt.Errorf("hrtf: azimuth index %d out of range", azIdx)
	}

	key := specKey{elevIdx, azIdx, fftSize}

	t.specMu.Lock()
	defer t.specMu.Unlock()

	if pair, ok := t.specCache[key]; ok {
		return pair.left, pair.right, nil
	}

	plan, err := fft.NewPlan(fftSize)
	if err != nil {
		return nil, nil, fmt.Errorf("hrtf: %w", err)
	}

	entry := t.entries[elevIdx][azIdx]
	left = padToComplex(entry.Left[:], fftSize)
	right = padToComplex(entry.Right[:], fftSize)

	if err := plan.Forward(left); err != nil {
		return nil, nil, err
	}
	if err := plan.Forward(right); err != nil {
		return nil, nil, err
	}

	t.specCache[key] = spectrumPair{left, right}
	return left, right, nil
}

func padToComplex(real []float64, size int) []complex128 {
	out := make([]complex128, size)
	for i, v := range real {
		out[i] = complex(v, 0)
	}
	return out
}
