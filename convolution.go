// SPDX-License-Identifier: CC-BY-NC-4.0
// Copyright (c) 2025-2026 fumi-engineer

package nn

import (
	"errors"
	"fmt"

	"github.com/chewxy/math32"
)

// Error taxonomy for the layer constructors and forward passes.
//
// ErrInvalidConfig covers construction-time failures (unsupported activation,
// even kernel width with centered padding); ErrInvalidInput covers call-time
// failures (wrong input rank, sequence-length mismatch, unknown pad mode).
// Both are detected synchronously before any tensor computation runs.
var (
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrInvalidInput  = errors.New("invalid input")
)

// ActivationType is the closed set of activations supported after the
// convolution. GLU gates the convolution output by splitting its channels;
// the others are plain elementwise functions.
type ActivationType uint8

const (
	// ActGLU is the zero value, so it is the default activation.
	ActGLU ActivationType = iota
	ActSigmoid
	ActTanh
	ActReLU
	ActSoftReLU
)

var activationNames = [...]string{"glu", "sigmoid", "tanh", "relu", "softrelu"}

// String returns the canonical lowercase name of the activation.
func (a ActivationType) String() string {
	if int(a) < len(activationNames) {
		return activationNames[a]
	}
	return fmt.Sprintf("activation(%d)", uint8(a))
}

func (a ActivationType) valid() bool { return int(a) < len(activationNames) }

// ParseActivationType maps a name like "glu" or "tanh" to its ActivationType.
// Unknown names are an invalid-configuration error.
func ParseActivationType(name string) (ActivationType, error) {
	for i, n := range activationNames {
		if n == name {
			return ActivationType(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown activation %q", ErrInvalidConfig, name)
}

// PadMode selects how the convolution pads the time axis.
type PadMode uint8

const (
	// PadLeft pads kernel_width-1 positions and slices the surplus off the
	// right after the convolution, so each output position depends only on
	// itself and earlier positions (decoding the target sequence).
	PadLeft PadMode = iota
	// PadCentered pads (kernel_width-1)/2 positions symmetrically so the
	// output length equals the input length (encoding the source sequence).
	// Requires an odd kernel width.
	PadCentered
)

// String returns the canonical name of the pad mode.
func (p PadMode) String() string {
	switch p {
	case PadLeft:
		return "left"
	case PadCentered:
		return "centered"
	default:
		return fmt.Sprintf("pad(%d)", uint8(p))
	}
}

// ConvolutionConfig configures a Convolution-GLU block, similar to
// Gehring et al. 2017. Constructed once via NewConvolutionConfig and
// immutable thereafter.
type ConvolutionConfig struct {
	// KernelWidth is the kernel size of the 1D convolution.
	KernelWidth int
	// NumHidden is the size of the hidden representation after the block.
	NumHidden int
	// ActType is the activation applied to the convolution output.
	ActType ActivationType
}

// NewConvolutionConfig validates and returns a ConvolutionConfig.
// The activation kind must belong to the supported set (default ActGLU);
// kernel width and hidden size must be positive.
func NewConvolutionConfig(kernelWidth, numHidden int, actType ActivationType) (ConvolutionConfig, error) {
	if kernelWidth <= 0 {
		return ConvolutionConfig{}, fmt.Errorf("%w: kernel width must be positive, got %d", ErrInvalidConfig, kernelWidth)
	}
	if numHidden <= 0 {
		return ConvolutionConfig{}, fmt.Errorf("%w: num hidden must be positive, got %d", ErrInvalidConfig, numHidden)
	}
	if !actType.valid() {
		return ConvolutionConfig{}, fmt.Errorf("%w: unknown activation %s", ErrInvalidConfig, actType)
	}
	return ConvolutionConfig{KernelWidth: kernelWidth, NumHidden: numHidden, ActType: actType}, nil
}

// outputChannels is the convolution filter count: GLU consumes two channel
// halves per hidden unit, every other activation consumes one.
func (c ConvolutionConfig) outputChannels() int {
	if c.ActType == ActGLU {
		return 2 * c.NumHidden
	}
	return c.NumHidden
}

// ConvolutionBlock is a Convolution-GLU block with two sublayers:
//
//  1. A 1D convolution over the time axis, padded either on both sides
//     (centered, for encoding) or to the left only (causal, for decoding).
//  2. An activation: either a Gated Linear Unit or a plain elementwise
//     function from the supported set.
//
// The block owns its weight and bias tensors; they are referenced by the
// forward pass and mutated only by an external training process, so
// concurrent forward passes over the same block are safe.
type ConvolutionBlock struct {
	config  ConvolutionConfig
	padMode PadMode
	weight  *Dense // [kernel_width, input_hidden, output_channels]
	bias    *Dense // [output_channels]
}

// NewConvolutionBlock creates a block for inputs whose last dimension is
// inputHidden. Weight and bias parameter names are derived from prefix.
// Centered padding with an even kernel width is an invalid configuration,
// rejected here rather than at forward time.
func NewConvolutionBlock(config ConvolutionConfig, padMode PadMode, inputHidden int, prefix string) (*ConvolutionBlock, error) {
	if !config.ActType.valid() {
		return nil, fmt.Errorf("%w: unknown activation %s", ErrInvalidConfig, config.ActType)
	}
	if config.KernelWidth <= 0 || config.NumHidden <= 0 {
		return nil, fmt.Errorf("%w: kernel width and num hidden must be positive", ErrInvalidConfig)
	}
	if inputHidden <= 0 {
		return nil, fmt.Errorf("%w: input hidden must be positive, got %d", ErrInvalidConfig, inputHidden)
	}
	switch padMode {
	case PadLeft:
	case PadCentered:
		if config.KernelWidth%2 == 0 {
			return nil, fmt.Errorf("%w: centered padding supports only odd kernel widths, got %d",
				ErrInvalidConfig, config.KernelWidth)
		}
	default:
		return nil, fmt.Errorf("%w: unknown pad mode %s", ErrInvalidConfig, padMode)
	}

	fanIn := config.KernelWidth * inputHidden
	std := math32.Sqrt(2 / float32(fanIn))
	weightShape := NewShape(config.KernelWidth, inputHidden, config.outputChannels())
	return &ConvolutionBlock{
		config:  config,
		padMode: padMode,
		weight:  RandnWithStd(weightShape, F32, std).Named(prefix + "conv_weight"),
		bias:    Zeros(NewShape(config.outputChannels()), F32).Named(prefix + "conv_bias"),
	}, nil
}

// Config returns the block's configuration.
func (b *ConvolutionBlock) Config() ConvolutionConfig { return b.config }

// PadMode returns the block's padding mode.
func (b *ConvolutionBlock) PadMode() PadMode { return b.padMode }

// Parameters returns the owned weight and bias tensors for an external
// training process.
func (b *ConvolutionBlock) Parameters() []Tensor { return []Tensor{b.weight, b.bias} }

// Forward transforms data (batch, seq_len, hidden) into
// (batch, seq_len, num_hidden), zeroing contributions at or beyond each
// example's valid length given in dataLength (batch,).
//
// skipPadding bypasses masking and padding entirely, for callers that have
// already guaranteed validity (e.g. single-step decoding); the output time
// dimension is then seq_len - kernel_width + 1.
func (b *ConvolutionBlock) Forward(data, dataLength Tensor, seqLen int, skipPadding bool) (Tensor, error) {
	if data.Shape().NDim() != 3 {
		return nil, fmt.Errorf("%w: data must be (batch, seq_len, hidden), got %v", ErrInvalidInput, data.Shape())
	}
	if data.Shape().At(1) != seqLen {
		return nil, fmt.Errorf("%w: seq_len %d does not match data time dimension %d",
			ErrInvalidInput, seqLen, data.Shape().At(1))
	}

	padding := 0
	if !skipPadding {
		if dataLength == nil || dataLength.Shape().NDim() != 1 || dataLength.Shape().At(0) != data.Shape().At(0) {
			return nil, fmt.Errorf("%w: data length must be a (batch,) vector", ErrInvalidInput)
		}
		switch b.padMode {
		case PadLeft:
			// Pad enough on both sides, the surplus is sliced off the right
			// after the convolution.
			padding = b.config.KernelWidth - 1
		case PadCentered:
			// Pad so the output size equals the input size, no slicing.
			if b.config.KernelWidth%2 == 0 {
				return nil, fmt.Errorf("%w: centered padding supports only odd kernel widths, got %d",
					ErrInvalidConfig, b.config.KernelWidth)
			}
			padding = (b.config.KernelWidth - 1) / 2
		default:
			return nil, fmt.Errorf("%w: unknown pad mode %s", ErrInvalidInput, b.padMode)
		}
	}

	x := data
	if !skipPadding {
		// Mask variable-length batches so padding positions are exactly zero.
		// The mask runs over time-major data: (seq_len, batch, hidden).
		x = x.SwapAxes(0, 1).SequenceMask(dataLength, 0)
		// (batch, hidden, seq_len)
		x = x.Transpose(1, 2, 0)
	} else {
		// (batch, hidden, seq_len)
		x = x.Transpose(0, 2, 1)
	}

	conv := x.Conv1D(b.weight, b.bias, padding, b.config.KernelWidth, b.config.outputChannels())

	if !skipPadding && b.padMode == PadLeft {
		conv = conv.SliceAxis(2, 0, seqLen)
	}

	var out Tensor
	if b.config.ActType == ActGLU {
		// (batch, num_hidden, seq_len) twice
		halves := conv.Split(1, 2)
		gateA, gateB := halves[0], halves[1]
		out = gateA.Mul(gateB.Sigmoid())
	} else {
		out = conv.Activation(b.config.ActType)
	}

	// (batch, seq_len, num_hidden)
	return out.SwapAxes(1, 2), nil
}
