package hrtf_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kemarsound/mixer3d/hrtf"
)

func TestDirectionSymmetry(t *testing.T) {
	table := hrtf.Default()

	for _, az := range []float64{10, 37.5, 90, 135, 179} {
		for _, elev := range []float64{-30, 0, 45} {
			a, _, _ := table.LookupAngles(elev, az)
			b, _, _ := table.LookupAngles(elev, -az)

			assert.Equalf(t, a.Left, b.Right, "az=%v elev=%v: Lookup(az).Left != Lookup(-az).Right", az, elev)
			assert.Equalf(t, a.Right, b.Left, "az=%v elev=%v: Lookup(az).Right != Lookup(-az).Left", az, elev)
		}
	}
}

func TestMedianPlaneIsSymmetric(t *testing.T) {
	table := hrtf.Default()

	entry, _, _ := table.LookupAngles(0, 0)
	assert.Equal(t, entry.Left, entry.Right)

	entry, _, _ = table.LookupAngles(20, 180)
	assert.Equal(t, entry.Left, entry.Right)
}

func TestLookupSnapsToNearestGridPoint(t *testing.T) {
	table := hrtf.Default()

	_, elevIdx, azIdx := table.LookupAngles(0, 0)
	assert.GreaterOrEqual(t, elevIdx, 0)
	assert.Less(t, elevIdx, table.NumElevations())
	assert.GreaterOrEqual(t, azIdx, 0)
	assert.Less(t, azIdx, table.NumAzimuths(elevIdx))
}

func TestSpectrumIsMemoized(t *testing.T) {
	table := hrtf.Default()

	left1, right1, err := table.Spectrum(0, 0, 256)
	require.NoError(t, err)

	left2, right2, err := table.Spectrum(0, 0, 256)
	require.NoError(t, err)

	assert.Same(t, &left1[0], &left2[0])
	assert.Same(t, &right1[0], &right2[0])
}

func TestSpectrumRejectsOutOfRangeIndices(t *testing.T) {
	table := hrtf.Default()

	_, _, err := table.Spectrum(-1, 0, 256)
	assert.Error(t, err)

	_, _, err = table.Spectrum(0, 10000, 256)
	assert.Error(t, err)
}

func TestResampledAtNativeRateReturnsSameTable(t *testing.T) {
	table := hrtf.Default()
	assert.Same(t, table, table.Resampled(hrtf.NativeSampleRate))
}

func TestResampledPreservesMirrorSymmetry(t *testing.T) {
	table := hrtf.Default().Resampled(22050)

	a, _, _ := table.LookupAngles(10, 37.5)
	b, _, _ := table.LookupAngles(10, -37.5)
	assert.Equal(t, a.Left, b.Right)
	assert.Equal(t, a.Right, b.Left)
}

func TestResampledToLowerRateShrinksEnergyTowardZeroPadding(t *testing.T) {
	native := hrtf.Default()
	down := native.Resampled(22050)

	nativeEntry, _, _ := native.LookupAngles(0, 90)
	downEntry, _, _ := down.LookupAngles(0, 90)

	// At half the native rate, resampleIR's ratio is 2: tap n of the resampled
	// IR reads from native index 2n, so taps past IRLength/2 fall outside the
	// original array and are left zero. The tail should carry no more energy
	// than the native IR's own tail.
	tailEnergy := func(ir [hrtf.IRLength]float64, from int) float64 {
		var e float64
		for _, v := range ir[from:] {
			e += v * v
		}
		return e
	}
	assert.Less(t, tailEnergy(downEntry.Right, hrtf.IRLength/2), tailEnergy(nativeEntry.Right, hrtf.IRLength/2)+1e-9)
}

func TestRightSideSourceFavorsRightEar(t *testing.T) {
	table := hrtf.Default()

	entry, _, _ := table.LookupAngles(0, 90)

	var leftEnergy, rightEnergy float64
	for i := range entry.Left {
		leftEnergy += entry.Left[i] * entry.Left[i]
		rightEnergy += entry.Right[i] * entry.Right[i]
	}

	assert.Greater(t, rightEnergy, leftEnergy)
}
