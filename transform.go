// SPDX-License-Identifier: CC-BY-NC-4.0
// Copyright (c) 2025-2026 fumi-engineer

package nn

import "fmt"

// Structural operations on Dense tensors: axis permutation, splitting,
// slicing, sequence masking, and the 1D convolution primitive. These are the
// substrate half of the Tensor capability interface; shape violations are
// programming errors and panic.

// Transpose returns a copy with axes permuted: result dimension i has the
// size of source dimension perm[i]. perm must be a permutation of [0, NDim).
func (t *Dense) Transpose(perm ...int) Tensor {
	n := t.shape.NDim()
	if len(perm) != n {
		panic(fmt.Sprintf("transpose needs %d axes, got %d", n, len(perm)))
	}
	seen := make([]bool, n)
	srcDims := t.shape.DimsRef()
	dstDims := make([]int, n)
	for i, p := range perm {
		if p < 0 || p >= n || seen[p] {
			panic(fmt.Sprintf("invalid permutation %v for shape %v", perm, t.shape))
		}
		seen[p] = true
		dstDims[i] = srcDims[p]
	}

	result := New(NewShape(dstDims...), t.dtype)
	srcStrides := t.shape.Strides()
	coords := make([]int, n)
	for dst := range result.data {
		src := 0
		for i := range coords {
			src += coords[i] * srcStrides[perm[i]]
		}
		result.data[dst] = t.data[src]
		// Advance the destination coordinates (row-major odometer).
		for i := n - 1; i >= 0; i-- {
			coords[i]++
			if coords[i] < dstDims[i] {
				break
			}
			coords[i] = 0
		}
	}
	return result
}

// SwapAxes returns a copy with dimensions d1 and d2 exchanged.
func (t *Dense) SwapAxes(d1, d2 int) Tensor {
	n := t.shape.NDim()
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	perm[d1], perm[d2] = perm[d2], perm[d1]
	return t.Transpose(perm...)
}

// Split divides the tensor along axis into parts equal pieces.
// The axis size must be divisible by parts.
func (t *Dense) Split(axis, parts int) []Tensor {
	outer, size, inner := outerInner(t.shape, axis)
	if parts <= 0 || size%parts != 0 {
		panic(fmt.Sprintf("cannot split axis of size %d into %d parts", size, parts))
	}
	partSize := size / parts

	dims := t.shape.Dims()
	dims[axis] = partSize
	partShape := NewShape(dims...)

	out := make([]Tensor, parts)
	for p := 0; p < parts; p++ {
		r := New(partShape, t.dtype)
		for o := 0; o < outer; o++ {
			srcOff := (o*size + p*partSize) * inner
			dstOff := o * partSize * inner
			copy(r.data[dstOff:dstOff+partSize*inner], t.data[srcOff:srcOff+partSize*inner])
		}
		out[p] = r
	}
	return out
}

// SliceAxis returns a copy of the [begin, end) range along axis.
func (t *Dense) SliceAxis(axis, begin, end int) Tensor {
	outer, size, inner := outerInner(t.shape, axis)
	if begin < 0 || end > size || begin >= end {
		panic(fmt.Sprintf("invalid slice [%d, %d) for axis of size %d", begin, end, size))
	}

	dims := t.shape.Dims()
	dims[axis] = end - begin
	r := New(NewShape(dims...), t.dtype)
	for o := 0; o < outer; o++ {
		srcOff := (o*size + begin) * inner
		dstOff := o * (end - begin) * inner
		copy(r.data[dstOff:dstOff+(end-begin)*inner], t.data[srcOff:srcOff+(end-begin)*inner])
	}
	return r
}

// SequenceMask overwrites timesteps at or beyond each example's valid length
// with value. The receiver must be time-major [seq_len, batch, ...]; lengths
// is a 1D tensor of batch entries, clamped to [0, seq_len].
func (t *Dense) SequenceMask(lengths Tensor, value float32) Tensor {
	if t.shape.NDim() < 2 {
		panic("sequence mask requires a time-major tensor with at least 2 dims")
	}
	seqLen, batch := t.shape.At(0), t.shape.At(1)
	if lengths.Shape().NDim() != 1 || lengths.Shape().At(0) != batch {
		panic(fmt.Sprintf("lengths shape %v does not match batch %d", lengths.Shape(), batch))
	}
	inner := t.shape.Numel() / (seqLen * batch)

	r := t.Clone()
	lens := lengths.Floats()
	for b := 0; b < batch; b++ {
		valid := int(lens[b])
		if valid < 0 {
			valid = 0
		}
		if valid > seqLen {
			valid = seqLen
		}
		for step := valid; step < seqLen; step++ {
			off := (step*batch + b) * inner
			row := r.data[off : off+inner]
			for i := range row {
				row[i] = value
			}
		}
	}
	return r
}

// Conv1D convolves a (batch, channels, width) tensor along its last axis,
// zero-padding pad positions on both sides. weight has shape
// [kernelWidth, channels, numFilter] and bias [numFilter]; the output is
// (batch, numFilter, width + 2*pad - kernelWidth + 1).
func (t *Dense) Conv1D(weight, bias Tensor, pad, kernelWidth, numFilter int) Tensor {
	if t.shape.NDim() != 3 {
		panic(fmt.Sprintf("conv1d requires a 3D (batch, channels, width) tensor, got %v", t.shape))
	}
	batch, channels, width := t.shape.At(0), t.shape.At(1), t.shape.At(2)
	wantW := NewShape(kernelWidth, channels, numFilter)
	if !weight.Shape().Equal(wantW) {
		panic(fmt.Sprintf("conv1d weight shape %v, want %v", weight.Shape(), wantW))
	}
	if !bias.Shape().Equal(NewShape(numFilter)) {
		panic(fmt.Sprintf("conv1d bias shape %v, want [%d]", bias.Shape(), numFilter))
	}
	outW := width + 2*pad - kernelWidth + 1
	if outW <= 0 {
		panic(fmt.Sprintf("conv1d output width %d is not positive", outW))
	}

	r := New(NewShape(batch, numFilter, outW), t.dtype)
	src, w, bs := t.data, weight.Floats(), bias.Floats()
	for b := 0; b < batch; b++ {
		srcOff := b * channels * width
		for f := 0; f < numFilter; f++ {
			dst := r.data[(b*numFilter+f)*outW : (b*numFilter+f+1)*outW]
			for pos := 0; pos < outW; pos++ {
				acc := bs[f]
				for i := 0; i < kernelWidth; i++ {
					at := pos + i - pad
					if at < 0 || at >= width {
						continue
					}
					// weight[i, c, f] with strides [channels*numFilter, numFilter, 1]
					wOff := i*channels*numFilter + f
					for c := 0; c < channels; c++ {
						acc += src[srcOff+c*width+at] * w[wOff+c*numFilter]
					}
				}
				dst[pos] = acc
			}
		}
	}
	return r
}
