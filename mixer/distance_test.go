package mixer_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kemarsound/mixer3d/mixer"
)

// TestDistanceGainIsMonotonicForRandomDistances generalizes
// TestDistanceModelGainDecreasesMonotonicallyWithDistance's fixed table to
// arbitrary distance pairs and all three attenuation models: moving a source
// farther from the listener, along the same bearing, must never raise gain.
func TestDistanceGainIsMonotonicForRandomDistances(t *testing.T) {
	models := []mixer.AttenuationModel{mixer.Inverse, mixer.Linear, mixer.Exponential}

	rapid.Check(t, func(t *rapid.T) {
		model := models[rapid.IntRange(0, len(models)-1).Draw(t, "model")]
		dm := mixer.DefaultDistanceModel()
		dm.Model = model

		near := rapid.Float64Range(0.1, 100).Draw(t, "near")
		extra := rapid.Float64Range(0, 500).Draw(t, "extra")
		far := near + extra

		nearGain, _ := dm.Evaluate(mixer.Vector{X: 0, Y: 0, Z: -near}, mixer.Vector{})
		farGain, _ := dm.Evaluate(mixer.Vector{X: 0, Y: 0, Z: -far}, mixer.Vector{})

		require.LessOrEqualf(t, farGain, nearGain+1e-9,
			"model %v: gain at distance %v should not exceed gain at nearer distance %v", model, far, near)
	})
}
