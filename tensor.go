// SPDX-License-Identifier: CC-BY-NC-4.0
// Copyright (c) 2025-2026 fumi-engineer

// Package nn implements the gated convolutional building block of a
// sequence-to-sequence translation model: a Convolution-GLU layer with
// variable-length sequence masking and causal or centered padding, plus the
// normalization layers it is trained alongside.
//
// All tensor storage uses flat []float32 slices in row-major order. Layers
// are written against the Tensor capability interface; Dense is the single
// in-package implementation, computing eagerly in pure Go.
package nn

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/chewxy/math32"
)

// DType enumerates supported data types. Only F32 is used for storage;
// I32 tags integer-valued tensors such as sequence-length vectors.
type DType uint8

const (
	F32 DType = iota
	F16
	BF16
	I32
	I64
)

// Size returns the byte width of the data type.
func (d DType) Size() int {
	switch d {
	case F32, I32:
		return 4
	case F16, BF16:
		return 2
	case I64:
		return 8
	default:
		return 4
	}
}

// String returns a human-readable name for the data type.
func (d DType) String() string {
	names := [...]string{"f32", "f16", "bf16", "i32", "i64"}
	if int(d) < len(names) {
		return names[d]
	}
	return "unknown"
}

// Shape represents the dimensions of a tensor. Internally stored as a
// private slice to prevent external mutation.
type Shape struct{ dims []int }

// NewShape creates a Shape from variadic dimension sizes.
func NewShape(dims ...int) Shape {
	d := make([]int, len(dims))
	copy(d, dims)
	return Shape{dims: d}
}

// Dims returns a copy of the dimension sizes.
func (s Shape) Dims() []int {
	d := make([]int, len(s.dims))
	copy(d, s.dims)
	return d
}

// DimsRef returns a direct reference to the internal dimension slice.
// The caller must NOT mutate the returned slice.
func (s Shape) DimsRef() []int {
	return s.dims
}

// NDim returns the number of dimensions.
func (s Shape) NDim() int { return len(s.dims) }

// Numel returns the total number of elements (product of all dimensions).
func (s Shape) Numel() int {
	if len(s.dims) == 0 {
		return 0
	}
	return prod(s.dims)
}

// At returns the size of dimension dim. Negative indices count from the end
// (e.g., At(-1) returns the last dimension), matching NumPy convention.
func (s Shape) At(dim int) int {
	if dim < 0 {
		dim += len(s.dims)
	}
	if dim < 0 || dim >= len(s.dims) {
		return 0
	}
	return s.dims[dim]
}

// Strides returns row-major strides for the shape.
// For shape [2, 3, 4] the strides are [12, 4, 1].
func (s Shape) Strides() []int {
	if len(s.dims) == 0 {
		return nil
	}
	strides := make([]int, len(s.dims))
	strides[len(s.dims)-1] = 1
	for i := len(s.dims) - 2; i >= 0; i-- {
		strides[i] = strides[i+1] * s.dims[i+1]
	}
	return strides
}

// Equal returns true if two shapes have identical dimensions.
func (s Shape) Equal(other Shape) bool {
	if len(s.dims) != len(other.dims) {
		return false
	}
	for i := range s.dims {
		if s.dims[i] != other.dims[i] {
			return false
		}
	}
	return true
}

// String formats the shape as "[d0, d1, ...]".
func (s Shape) String() string {
	parts := make([]string, len(s.dims))
	for i, d := range s.dims {
		parts[i] = fmt.Sprintf("%d", d)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Tensor is the capability boundary between the layers and the numerical
// substrate: any handle satisfying shape introspection plus the elementwise
// and structural operations below can flow through the blocks. Dense is the
// in-package implementation; a deferred-graph or device-backed substrate
// would satisfy the same interface.
type Tensor interface {
	// Name returns the parameter identifier, or "" for intermediate values.
	Name() string
	Shape() Shape
	DType() DType

	// Floats returns the underlying row-major storage without copying.
	Floats() []float32

	// Elementwise operations.
	Mul(other Tensor) Tensor
	Sigmoid() Tensor
	Activation(kind ActivationType) Tensor

	// Structural operations.
	SwapAxes(d1, d2 int) Tensor
	Transpose(perm ...int) Tensor
	Split(axis, parts int) []Tensor
	SliceAxis(axis, begin, end int) Tensor

	// SequenceMask overwrites positions at or beyond each example's valid
	// length with value. The receiver must be time-major: axis 0 is time,
	// axis 1 is batch. lengths is a 1D integer tensor of size batch.
	SequenceMask(lengths Tensor, value float32) Tensor

	// Conv1D runs a 1D convolution over the last axis of a
	// (batch, channels, width) tensor, producing numFilter output channels.
	// weight has shape [kernelWidth, channels, numFilter], bias [numFilter].
	// pad zeros are applied on both sides of the width axis.
	Conv1D(weight, bias Tensor, pad, kernelWidth, numFilter int) Tensor
}

// ---------------------------------------------------------------------------
// Dense
// ---------------------------------------------------------------------------

// Dense stores multi-dimensional float32 data in a contiguous flat slice.
// Row-major layout: the last dimension varies fastest. All operations
// allocate new tensors; inputs are never mutated.
type Dense struct {
	name  string
	data  []float32
	shape Shape
	dtype DType
}

var _ Tensor = (*Dense)(nil)

// New allocates a zero-filled tensor of the given shape and dtype.
func New(shape Shape, dtype DType) *Dense {
	return &Dense{data: make([]float32, shape.Numel()), shape: shape, dtype: dtype}
}

// Zeros is an alias for New (zero-filled tensor).
func Zeros(shape Shape, dtype DType) *Dense { return New(shape, dtype) }

// Ones allocates a tensor filled with 1.0.
func Ones(shape Shape, dtype DType) *Dense {
	t := New(shape, dtype)
	for i := range t.data {
		t.data[i] = 1
	}
	return t
}

// FromSlice creates a tensor by copying the provided data.
// Panics if len(data) != shape.Numel().
func FromSlice(data []float32, shape Shape) *Dense {
	if len(data) != shape.Numel() {
		panic(fmt.Sprintf("data length %d != shape numel %d", len(data), shape.Numel()))
	}
	d := make([]float32, len(data))
	copy(d, data)
	return &Dense{data: d, shape: shape, dtype: F32}
}

// FromInts creates an integer-valued 1D tensor, e.g. a sequence-length
// vector. Values are stored as float32 and tagged I32.
func FromInts(values []int32) *Dense {
	d := make([]float32, len(values))
	for i, v := range values {
		d[i] = float32(v)
	}
	return &Dense{data: d, shape: NewShape(len(values)), dtype: I32}
}

// Randn allocates a tensor filled with standard normal random values.
func Randn(shape Shape, dtype DType) *Dense {
	t := New(shape, dtype)
	for i := range t.data {
		t.data[i] = float32(rand.NormFloat64())
	}
	return t
}

// RandnWithStd allocates a tensor filled with normal random values scaled by std.
func RandnWithStd(shape Shape, dtype DType, std float32) *Dense {
	t := New(shape, dtype)
	for i := range t.data {
		t.data[i] = float32(rand.NormFloat64()) * std
	}
	return t
}

// Uniform allocates a tensor filled with uniform random values in [lo, hi).
func Uniform(shape Shape, lo, hi float32) *Dense {
	t := New(shape, F32)
	for i := range t.data {
		t.data[i] = lo + rand.Float32()*(hi-lo)
	}
	return t
}

// Named attaches a parameter identifier to the tensor and returns it,
// allowing chained construction of named weights.
func (t *Dense) Named(name string) *Dense {
	t.name = name
	return t
}

// Name returns the parameter identifier, or "" for intermediate values.
func (t *Dense) Name() string { return t.name }

// Shape returns the tensor's shape.
func (t *Dense) Shape() Shape { return t.shape }

// DType returns the tensor's data type tag.
func (t *Dense) DType() DType { return t.dtype }

// Floats returns the underlying storage slice directly (no copy).
// Callers may mutate elements in-place; use Data() for a safe copy.
func (t *Dense) Floats() []float32 { return t.data }

// Data returns a copy of the underlying storage.
func (t *Dense) Data() []float32 {
	d := make([]float32, len(t.data))
	copy(d, t.data)
	return d
}

// flatIndex converts multi-dimensional indices to a flat offset using
// row-major strides. Panics on out-of-bounds access.
func (t *Dense) flatIndex(indices []int) int {
	if len(indices) != t.shape.NDim() {
		panic(fmt.Sprintf("expected %d indices, got %d", t.shape.NDim(), len(indices)))
	}
	idx := 0
	strides := t.shape.Strides()
	for i, index := range indices {
		if index < 0 || index >= t.shape.At(i) {
			panic(fmt.Sprintf("index %d out of bounds for dim %d with size %d", index, i, t.shape.At(i)))
		}
		idx += index * strides[i]
	}
	return idx
}

// At reads a single element by multi-dimensional index.
func (t *Dense) At(indices ...int) float32 { return t.data[t.flatIndex(indices)] }

// Set writes a single element by multi-dimensional index.
func (t *Dense) Set(value float32, indices ...int) { t.data[t.flatIndex(indices)] = value }

// Clone returns a deep copy of the tensor.
func (t *Dense) Clone() *Dense { return FromSlice(t.data, t.shape) }

// Reshape returns a new tensor sharing the same backing data but with a
// different shape. The total number of elements must be unchanged.
func (t *Dense) Reshape(s Shape) *Dense {
	if t.shape.Numel() != s.Numel() {
		panic(fmt.Sprintf("cannot reshape %v to %v: different numel", t.shape, s))
	}
	return &Dense{data: t.data, shape: s, dtype: t.dtype}
}

func (t *Dense) assertShape(other Tensor) {
	if !t.shape.Equal(other.Shape()) {
		panic(fmt.Sprintf("shape mismatch: %v vs %v", t.shape, other.Shape()))
	}
}

// Mul returns element-wise t * o (Hadamard product).
func (t *Dense) Mul(o Tensor) Tensor {
	t.assertShape(o)
	r := New(t.shape, t.dtype)
	a, b, dst := t.data, o.Floats(), r.data
	for i := range dst {
		dst[i] = a[i] * b[i]
	}
	return r
}

// Sigmoid returns the logistic function applied element-wise.
//
//	sigmoid(x) = 1 / (1 + exp(-x))
func (t *Dense) Sigmoid() Tensor {
	r := New(t.shape, t.dtype)
	src, dst := t.data, r.data
	for i, x := range src {
		dst[i] = 1 / (1 + math32.Exp(-x))
	}
	return r
}

// Activation applies the named elementwise activation. GLU is not an
// elementwise function (it splits channels) and panics here; callers gate
// on the activation kind before dispatching.
func (t *Dense) Activation(kind ActivationType) Tensor {
	switch kind {
	case ActSigmoid:
		return t.Sigmoid()
	case ActTanh:
		return t.unaryOp(math32.Tanh)
	case ActReLU:
		return t.unaryOp(func(x float32) float32 {
			if x > 0 {
				return x
			}
			return 0
		})
	case ActSoftReLU:
		// softplus: log(1 + exp(x))
		return t.unaryOp(func(x float32) float32 { return math32.Log1p(math32.Exp(x)) })
	default:
		panic(fmt.Sprintf("activation %v is not elementwise", kind))
	}
}

func (t *Dense) unaryOp(f func(float32) float32) *Dense {
	r := New(t.shape, t.dtype)
	src, dst := t.data, r.data
	for i := range dst {
		dst[i] = f(src[i])
	}
	return r
}

// ---------------------------------------------------------------------------
// Internal helpers
// ---------------------------------------------------------------------------

// prod returns the product of all integers in xs.
func prod(xs []int) int {
	n := 1
	for _, x := range xs {
		n *= x
	}
	return n
}

// outerInner collapses a shape around axis into (outer, size, inner) so that
// per-axis operations can run as three nested loops over flat storage.
func outerInner(s Shape, axis int) (outer, size, inner int) {
	dims := s.DimsRef()
	if axis < 0 || axis >= len(dims) {
		panic(fmt.Sprintf("axis %d out of range for shape %v", axis, s))
	}
	outer, inner = 1, 1
	for i := 0; i < axis; i++ {
		outer *= dims[i]
	}
	for i := axis + 1; i < len(dims); i++ {
		inner *= dims[i]
	}
	return outer, dims[axis], inner
}
