package mixer

import "math"

// AttenuationModel selects how gain falls off with distance.
type AttenuationModel int

const (
	// Inverse is gain = RefDistance / (RefDistance + Rolloff*(d-RefDistance)),
	// the classic OpenAL-style inverse-distance curve.
	Inverse AttenuationModel = iota
	// Linear is gain = 1 - Rolloff*(d-RefDistance)/(MaxDistance-RefDistance),
	// clamped to [0,1].
	Linear
	// Exponential is gain = (d/RefDistance) ^ (-Rolloff).
	Exponential
)

// DistanceModel computes the per-block gain and Doppler pitch ratio for a
// source at a given position and velocity relative to the listener.
// SpeedOfSound <= 0 disables Doppler (pitch ratio is always 1).
type DistanceModel struct {
	Model        AttenuationModel
	RefDistance  float64
	MaxDistance  float64
	Rolloff      float64
	SpeedOfSound float64
}

// DefaultDistanceModel matches the values used throughout §8's scenarios:
// inverse falloff, reference distance of 1 unit, speed of sound in air.
func DefaultDistanceModel() DistanceModel {
	return DistanceModel{
		Model:        Inverse,
		RefDistance:  1.0,
		MaxDistance:  1000.0,
		Rolloff:      1.0,
		SpeedOfSound: 343.0,
	}
}

// Evaluate returns the attenuation gain and Doppler pitch ratio for a source
// at relPos (listener-relative position) moving at relVel (listener-relative
// velocity, i.e. object velocity minus listener velocity).
func (m DistanceModel) Evaluate(relPos, relVel Vector) (gain, pitch float64) {
	d := relPos.Norm()
	gain = m.attenuate(d)
	pitch = m.doppler(relPos, relVel, d)
	return gain, pitch
}

func (m DistanceModel) attenuate(d float64) float64 {
	ref := m.RefDistance
	if ref <= 0 {
		ref = 1
	}
	maxD := m.MaxDistance
	if maxD <= ref {
		maxD = ref + 1
	}
	d = clamp(d, ref, maxD)

	switch m.Model {
	case Linear:
		g := 1 - m.Rolloff*(d-ref)/(maxD-ref)
		return clamp01(g)
	case Exponential:
		if m.Rolloff == 0 {
			return 1
		}
		return math.Pow(d/ref, -m.Rolloff)
	default: // Inverse
		denom := ref + m.Rolloff*(d-ref)
		if denom <= 0 {
			return 1
		}
		return ref / denom
	}
}

// doppler implements the standard stationary-medium Doppler ratio using the
// component of relative velocity along the line from listener to source. A
// source receding (positive radial velocity) lowers pitch; approaching
// raises it.
func (m DistanceModel) doppler(relPos, relVel Vector, d float64) float64 {
	if m.SpeedOfSound <= 0 || d == 0 {
		return 1
	}
	radial := relVel.Dot(relPos) / d
	ratio := m.SpeedOfSound / (m.SpeedOfSound + radial)
	return clamp(ratio, 0.5, 2.0)
}

func clamp01(x float64) float64 { return clamp(x, 0, 1) }
