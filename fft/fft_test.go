package fft_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kemarsound/mixer3d/fft"
)

func randomVector(t *rapid.T, n int, label string) []complex128 {
	x := make([]complex128, n)
	for i := range x {
		re := rapid.Float64Range(-1, 1).Draw(t, label+"_re")
		im := rapid.Float64Range(-1, 1).Draw(t, label+"_im")
		x[i] = complex(re, im)
	}
	return x
}

func TestForwardInverseRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		bits := rapid.IntRange(3, 10).Draw(t, "bits")
		n := 1 << bits
		plan, err := fft.NewPlan(n)
		require.NoError(t, err)

		x := randomVector(t, n, "x")
		original := append([]complex128(nil), x...)

		require.NoError(t, plan.Forward(x))
		require.NoError(t, plan.Inverse(x))

		const eps = 1.0 / (1 << 20)
		for i := range x {
			diff := x[i] - original[i]
			assert.LessOrEqualf(t, math.Hypot(real(diff), imag(diff)), eps*float64(n),
				"index %d: got %v want %v", i, x[i], original[i])
		}
	})
}

func TestForwardLinearity(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		bits := rapid.IntRange(3, 9).Draw(t, "bits")
		n := 1 << bits
		plan, err := fft.NewPlan(n)
		require.NoError(t, err)

		x := randomVector(t, n, "x")
		y := randomVector(t, n, "y")
		a := complex(rapid.Float64Range(-2, 2).Draw(t, "a"), 0)
		b := complex(rapid.Float64Range(-2, 2).Draw(t, "b"), 0)

		combined := make([]complex128, n)
		for i := range combined {
			combined[i] = a*x[i] + b*y[i]
		}

		fx := append([]complex128(nil), x...)
		fy := append([]complex128(nil), y...)
		require.NoError(t, plan.Forward(fx))
		require.NoError(t, plan.Forward(fy))
		require.NoError(t, plan.Forward(combined))

		const eps = 1.0 / (1 << 16)
		for i := range combined {
			want := a*fx[i] + b*fy[i]
			diff := combined[i] - want
			assert.LessOrEqualf(t, math.Hypot(real(diff), imag(diff)), eps*float64(n),
				"index %d: got %v want %v", i, combined[i], want)
		}
	})
}

func TestNewPlanRejectsNonPowerOfTwo(t *testing.T) {
	_, err := fft.NewPlan(100)
	assert.ErrorIs(t, err, fft.ErrInvalidSize)

	_, err = fft.NewPlan(1)
	assert.ErrorIs(t, err, fft.ErrInvalidSize)
}

func TestBatchMatchesScalar(t *testing.T) {
	plan, err := fft.NewPlan(64)
	require.NoError(t, err)

	rows := make([][]complex128, 4)
	scalarResults := make([][]complex128, 4)
	for i := range rows {
		row := make([]complex128, 64)
		for j := range row {
			row[j] = complex(math.Sin(float64(i+1)*float64(j)/8), 0)
		}
		rows[i] = append([]complex128(nil), row...)
		scalarResults[i] = append([]complex128(nil), row...)
		require.NoError(t, plan.Forward(scalarResults[i]))
	}

	require.NoError(t, plan.ForwardBatch(rows))

	for i := range rows {
		for j := range rows[i] {
			assert.InDelta(t, real(scalarResults[i][j]), real(rows[i][j]), 1e-9)
			assert.InDelta(t, imag(scalarResults[i][j]), imag(rows[i][j]), 1e-9)
		}
	}
}

func TestDCComponent(t *testing.T) {
	plan, err := fft.NewPlan(8)
	require.NoError(t, err)

	x := make([]complex128, 8)
	for i := range x {
		x[i] = complex(1, 0)
	}

	require.NoError(t, plan.Forward(x))
	assert.InDelta(t, 8.0, real(x[0]), 1e-9)
	for i := 1; i < 8; i++ {
		assert.InDelta(t, 0.0, real(x[i]), 1e-9)
		assert.InDelta(t, 0.0, imag(x[i]), 1e-9)
	}
}
