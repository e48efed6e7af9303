// SPDX-License-Identifier: CC-BY-NC-SA-4.0
// Copyright (c) 2025-2026 fumi-engineer

package nn

// Tests for LayerNormalization and WeightNormalization. Expected moments are
// computed independently with gonum and compared at 1e-6 absolute tolerance.

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"
)

// rowMoments returns the gonum-computed mean and population variance of each
// row of a (batch, hidden) tensor.
func rowMoments(x *Dense) (means, vars []float32) {
	batch, hidden := x.Shape().At(0), x.Shape().At(1)
	means = make([]float32, batch)
	vars = make([]float32, batch)
	data := x.Floats()
	row := make([]float64, hidden)
	for b := 0; b < batch; b++ {
		for i := range row {
			row[i] = float64(data[b*hidden+i])
		}
		m, v := stat.PopMeanVariance(row, nil)
		means[b] = float32(m)
		vars[b] = float32(v)
	}
	return means, vars
}

func TestLayerNormalizationMoments(t *testing.T) {
	const batch, hidden = 32, 64
	x := Uniform(NewShape(batch, hidden), 0, 10)
	ln := NewLayerNormalization(hidden, "")

	mean, variance := ln.Moments(x)
	require.True(t, mean.Shape().Equal(NewShape(batch, 1)), "got %v", mean.Shape())
	require.True(t, variance.Shape().Equal(NewShape(batch, 1)), "got %v", variance.Shape())

	wantMean, wantVar := rowMoments(x)
	assert.Empty(t, cmp.Diff(wantMean, mean.Floats(), cmpopts.EquateApprox(0, 1e-6)))
	assert.Empty(t, cmp.Diff(wantVar, variance.Floats(), cmpopts.EquateApprox(0, 1e-6)))
}

// With gamma at its default of ones and beta at zeros, normalization is the
// raw z-score (x - row_mean) / sqrt(row_var).
func TestLayerNormalizationNormalize(t *testing.T) {
	const batch, hidden = 32, 64
	x := Uniform(NewShape(batch, hidden), 0, 10)
	ln := NewLayerNormalization(hidden, "")

	norm := ln.Normalize(x)
	require.True(t, norm.Shape().Equal(NewShape(batch, hidden)))

	means, vars := rowMoments(x)
	want := make([]float32, batch*hidden)
	data := x.Floats()
	for b := 0; b < batch; b++ {
		invStd := float32(1 / math.Sqrt(float64(vars[b])))
		for i := 0; i < hidden; i++ {
			want[b*hidden+i] = (data[b*hidden+i] - means[b]) * invStd
		}
	}
	assert.Empty(t, cmp.Diff(want, norm.Floats(), cmpopts.EquateApprox(0, 1e-6)))
}

func TestLayerNormalizationLearnedParams(t *testing.T) {
	const batch, hidden = 4, 8
	x := Uniform(NewShape(batch, hidden), -1, 1)

	ln := NewLayerNormalization(hidden, "final")
	params := ln.Parameters()
	require.Len(t, params, 2)
	assert.Equal(t, "final_gamma", params[0].Name())
	assert.Equal(t, "final_beta", params[1].Name())

	zscore := ln.Normalize(x).Floats()

	// gamma=2, beta=1 shifts and scales the z-score elementwise.
	for i := range ln.gamma.Floats() {
		ln.gamma.Floats()[i] = 2
		ln.beta.Floats()[i] = 1
	}
	scaled := ln.Normalize(x).Floats()
	want := make([]float32, len(zscore))
	for i, z := range zscore {
		want[i] = 2*z + 1
	}
	assert.Empty(t, cmp.Diff(want, scaled, cmpopts.EquateApprox(0, 1e-5)))
}

func TestWeightNormalization(t *testing.T) {
	weight := Randn(NewShape(4, 6), F32)
	wn := NewWeightNormalization(weight, "cnn_")

	normalized := wn.Apply()
	require.True(t, normalized.Shape().Equal(weight.Shape()))

	// scale=1: every output row has unit L2 norm.
	data := normalized.Floats()
	for r := 0; r < 4; r++ {
		sumSq := 0.0
		for _, v := range data[r*6 : (r+1)*6] {
			sumSq += float64(v) * float64(v)
		}
		assert.InDelta(t, 1.0, math.Sqrt(sumSq), 1e-5, "row %d", r)
	}

	// A learned magnitude of 3 rescales its row's norm to 3.
	wn.scale.Floats()[2] = 3
	data = wn.Apply().Floats()
	sumSq := 0.0
	for _, v := range data[2*6 : 3*6] {
		sumSq += float64(v) * float64(v)
	}
	assert.InDelta(t, 3.0, math.Sqrt(sumSq), 1e-5)

	params := wn.Parameters()
	require.Len(t, params, 2)
	assert.Equal(t, "cnn_wn_scale", params[1].Name())
}
