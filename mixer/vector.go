package mixer

import "github.com/golang/geo/r3"

// Vector is a position, velocity, or direction in the mixer's right-handed
// listener space. It is a plain alias for r3.Vector so Context, Object, and
// Listener can be built with geo's vector algebra instead of a bespoke one.
type Vector = r3.Vector

// Pose is a rigid position/orientation/velocity triple shared by Listener and
// Object. Forward and Up must be mutually perpendicular; they need not be
// unit length, since listenerRelative normalizes them (and the derived right
// axis) every time it builds the listener frame.
type Pose struct {
	Position Vector
	Velocity Vector
	Forward  Vector
	Up       Vector
}

// DefaultPose is centered at the origin, stationary, facing -Z with +Y up
// (the convention used throughout this package).
func DefaultPose() Pose {
	return Pose{
		Position: Vector{X: 0, Y: 0, Z: 0},
		Velocity: Vector{X: 0, Y: 0, Z: 0},
		Forward:  Vector{X: 0, Y: 0, Z: -1},
		Up:       Vector{X: 0, Y: 1, Z: 0},
	}
}

// listenerRelative expresses worldPos/worldVel in the listener's local frame:
// the direction and relative velocity the HRTF and Doppler math both need.
func listenerRelative(listener Pose, worldPos, worldVel Vector) (dir Vector, relVel Vector) {
	right := listener.Forward.Cross(listener.Up).Normalize()
	up := listener.Up.Normalize()
	fwd := listener.Forward.Normalize()

	rel := worldPos.Sub(listener.Position)
	dir = Vector{
		X: rel.Dot(right),
		Y: rel.Dot(up),
		Z: -rel.Dot(fwd),
	}

	relV := worldVel.Sub(listener.Velocity)
	relVel = Vector{
		X: relV.Dot(right),
		Y: relV.Dot(up),
		Z: -relV.Dot(fwd),
	}
	return dir, relVel
}
