// SPDX-License-Identifier: CC-BY-NC-4.0
// Copyright (c) 2025-2026 fumi-engineer

package nn

import (
	"fmt"
	"math"
)

// LayerNormalization normalizes each example of a (batch, hidden) tensor to
// zero mean and unit variance across the hidden dimension, then applies a
// learned gain and bias:
//
//	y = gamma * (x - mean) / sqrt(var + eps) + beta
//
// gamma defaults to ones and beta to zeros, so an untrained layer reduces to
// the raw z-score normalization.
type LayerNormalization struct {
	numHidden int
	eps       float32
	gamma     *Dense // [num_hidden], learned gain
	beta      *Dense // [num_hidden], learned bias
}

// NewLayerNormalization creates a layer normalization over numHidden units.
// Parameter names are derived from prefix: <prefix>_gamma and <prefix>_beta.
func NewLayerNormalization(numHidden int, prefix string) *LayerNormalization {
	return &LayerNormalization{
		numHidden: numHidden,
		eps:       1e-6,
		gamma:     Ones(NewShape(numHidden), F32).Named(prefix + "_gamma"),
		beta:      Zeros(NewShape(numHidden), F32).Named(prefix + "_beta"),
	}
}

// Parameters returns the learned gain and bias tensors.
func (l *LayerNormalization) Parameters() []Tensor { return []Tensor{l.gamma, l.beta} }

// Moments computes the per-example mean and (population) variance across the
// hidden dimension of a (batch, hidden) tensor. Both results have shape
// (batch, 1). Accumulation runs in float64 so the float32 moments stay within
// tight tolerance of an independent reference.
func (l *LayerNormalization) Moments(x Tensor) (mean, variance Tensor) {
	batch := l.checkInput(x)
	meanT := New(NewShape(batch, 1), F32)
	varT := New(NewShape(batch, 1), F32)

	data := x.Floats()
	for b := 0; b < batch; b++ {
		row := data[b*l.numHidden : (b+1)*l.numHidden]
		sum := 0.0
		for _, v := range row {
			sum += float64(v)
		}
		m := sum / float64(l.numHidden)

		sumSq := 0.0
		for _, v := range row {
			d := float64(v) - m
			sumSq += d * d
		}
		meanT.data[b] = float32(m)
		varT.data[b] = float32(sumSq / float64(l.numHidden))
	}
	return meanT, varT
}

// Normalize applies layer normalization to a (batch, hidden) tensor.
func (l *LayerNormalization) Normalize(x Tensor) Tensor {
	batch := l.checkInput(x)
	mean, variance := l.Moments(x)
	meanD, varD := mean.Floats(), variance.Floats()

	out := New(x.Shape(), F32)
	data, g, bt := x.Floats(), l.gamma.data, l.beta.data
	for b := 0; b < batch; b++ {
		off := b * l.numHidden
		invStd := float32(1 / math.Sqrt(float64(varD[b]+l.eps)))
		for i := 0; i < l.numHidden; i++ {
			out.data[off+i] = g[i]*(data[off+i]-meanD[b])*invStd + bt[i]
		}
	}
	return out
}

func (l *LayerNormalization) checkInput(x Tensor) (batch int) {
	if x.Shape().NDim() != 2 || x.Shape().At(1) != l.numHidden {
		panic(fmt.Sprintf("layer norm expects (batch, %d), got %v", l.numHidden, x.Shape()))
	}
	return x.Shape().At(0)
}

// WeightNormalization reparameterizes a weight tensor as a direction scaled
// by a learned per-row magnitude:
//
//	w[i, ...] = scale[i] * v[i, ...] / ||v[i, ...]||
//
// where the L2 norm runs over every dimension but the first. With scale at
// its initial value of ones, Apply simply L2-normalizes each row.
type WeightNormalization struct {
	weight *Dense
	scale  *Dense // [rows], learned magnitude per output row
}

// NewWeightNormalization wraps weight, whose first dimension is the output
// row dimension. The scale parameter is named <prefix>wn_scale.
func NewWeightNormalization(weight *Dense, prefix string) *WeightNormalization {
	rows := weight.Shape().At(0)
	return &WeightNormalization{
		weight: weight,
		scale:  Ones(NewShape(rows), F32).Named(prefix + "wn_scale"),
	}
}

// Parameters returns the wrapped weight and its magnitude vector.
func (w *WeightNormalization) Parameters() []Tensor { return []Tensor{w.weight, w.scale} }

// Apply returns the normalized weight. The wrapped tensor is not mutated.
func (w *WeightNormalization) Apply() Tensor {
	rows := w.weight.Shape().At(0)
	inner := w.weight.Shape().Numel() / rows

	out := New(w.weight.Shape(), F32)
	for r := 0; r < rows; r++ {
		row := w.weight.data[r*inner : (r+1)*inner]
		sumSq := 0.0
		for _, v := range row {
			sumSq += float64(v) * float64(v)
		}
		factor := w.scale.data[r] / float32(math.Sqrt(sumSq+1e-10))
		dst := out.data[r*inner : (r+1)*inner]
		for i, v := range row {
			dst[i] = v * factor
		}
	}
	return out
}
