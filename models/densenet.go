package models

import (
	"errors"
	"fmt"
	"os"
	"slices"
)

var (
	// ErrInvalidWeights is returned when a weights path is set but is not
	// an existing file
	ErrInvalidWeights = errors.New("weights should be empty or the path to a weights file")
	// ErrUnknownInputShape is returned when a classifier top is requested on
	// an input without a fixed size
	ErrUnknownInputShape = errors.New("include top requires a static input shape")
	// ErrInvalidPooling is returned for a pooling mode other than "", avg or
	// max
	ErrInvalidPooling = errors.New("invalid pooling mode")
	// ErrInvalidBlocks is returned when the dense block sizes are not four
	// positive counts
	ErrInvalidBlocks = errors.New("invalid dense block sizes")
	// ErrNoWeightsLoader is returned when weights are requested without a
	// loader to apply them
	ErrNoWeightsLoader = errors.New("weights set without a weights loader")
)

// WeightsLoader applies a weights file to a built model.  Loading is left to
// the runtime executing the model.
type WeightsLoader interface {
	LoadWeights(path string, model *Model) error
}

// WeightsLoaderFunc adapts a function to a WeightsLoader
type WeightsLoaderFunc func(path string, model *Model) error

// LoadWeights calls f
func (f WeightsLoaderFunc) LoadWeights(path string, model *Model) error {
	return f(path, model)
}

// block sizes of the standard DenseNet variants
var (
	DenseNet121Blocks = []int{6, 12, 24, 16}
	DenseNet169Blocks = []int{6, 12, 32, 32}
	DenseNet201Blocks = []int{6, 12, 48, 32}
)

const (
	// growthRate is the number of channels each conv block adds
	growthRate = 32
	// compression is the channel reduction at transition blocks
	compression = 0.5
)

// DenseNetConfig configures a DenseNet model
type DenseNetConfig struct {
	// IncludePreprocessing rescales pixel values by 1/255 before the stem
	IncludePreprocessing bool
	// IncludeTop adds the global average pooling and classifier layers.
	// Defaults to false, giving a feature extractor.
	IncludeTop bool
	// Weights is an optional path to a weights file applied by Loader
	Weights string
	// Input overrides the input built from InputShape
	Input *InputSpec
	// InputShape is [height, width, channels], defaults to [Unknown,
	// Unknown, 3]
	InputShape []int
	// Pooling is applied to the feature map when IncludeTop is false, one
	// of "" (none), "avg" or "max"
	Pooling string
	// Classes is the classifier size, defaults to 1000
	Classes int
	// ClassifierActivation defaults to softmax, use linear for logits
	ClassifierActivation string
	// Loader applies Weights once the model is built
	Loader WeightsLoader
}

// withDefaults fills in unset fields
func (c DenseNetConfig) withDefaults() DenseNetConfig {

	if c.InputShape == nil {
		c.InputShape = []int{Unknown, Unknown, 3}
	}

	if c.Classes == 0 {
		c.Classes = 1000
	}

	if c.ClassifierActivation == "" {
		c.ClassifierActivation = "softmax"
	}

	return c
}

// validate checks the config before any layers are built
func (c DenseNetConfig) validate(blocks []int, input *InputSpec) error {

	if c.Weights != "" {
		info, err := os.Stat(c.Weights)

		if err != nil || info.IsDir() {
			return fmt.Errorf("%w: got %q", ErrInvalidWeights, c.Weights)
		}

		if c.ClassifierActivation != "softmax" && c.ClassifierActivation != "linear" {
			return fmt.Errorf("%w: pretrained weights need a softmax or linear classifier, got %q",
				ErrInvalidActivation, c.ClassifierActivation)
		}
	}

	if c.IncludeTop && HasUnknown(input.Shape) {
		return fmt.Errorf("%w: got input shape %s", ErrUnknownInputShape, shapeString(input.Shape))
	}

	switch c.Pooling {
	case "", "avg", "max":
	default:
		return fmt.Errorf("%w: %q, expected avg, max or empty", ErrInvalidPooling, c.Pooling)
	}

	if len(blocks) != 4 {
		return fmt.Errorf("%w: need 4 block sizes, got %v", ErrInvalidBlocks, blocks)
	}

	for _, n := range blocks {
		if n < 1 {
			return fmt.Errorf("%w: block sizes must be positive, got %v", ErrInvalidBlocks, blocks)
		}
	}

	if c.IncludeTop && c.Classes < 1 {
		return fmt.Errorf("%w: classes must be positive, got %d", ErrShape, c.Classes)
	}

	return nil
}

// DenseNet builds a DenseNet with the given number of conv blocks in each of
// its four dense blocks
func DenseNet(blocks []int, cfg DenseNetConfig) (*Model, error) {

	cfg = cfg.withDefaults()
	input := ResolveInput(cfg.InputShape, cfg.Input)

	if err := cfg.validate(blocks, input); err != nil {
		return nil, err
	}

	g := NewGraph(input)
	x := g.Input()

	if cfg.IncludePreprocessing {
		x = g.Rescaling(x, "rescaling", 1/255.0, 0)
	}

	// stem
	x = g.ZeroPadding2D(x, "", 3)
	x = g.Conv2D(x, "conv1/conv", 64, 7, 2, Valid, false)
	x = g.BatchNorm(x, "conv1/bn")
	x = g.Activation(x, "conv1/relu", "relu")
	x = g.ZeroPadding2D(x, "", 1)
	x = g.MaxPooling2D(x, "pool1", 3, 2, Valid)

	for i, n := range blocks {
		x = denseBlock(g, x, n, fmt.Sprintf("conv%d", i+2))

		if i < len(blocks)-1 {
			x = transitionBlock(g, x, fmt.Sprintf("pool%d", i+2))
		}
	}

	x = g.BatchNorm(x, "bn")
	x = g.Activation(x, "relu", "relu")

	switch {
	case cfg.IncludeTop:
		x = g.GlobalAveragePooling2D(x, "avg_pool")
		g.Dense(x, "predictions", cfg.Classes, cfg.ClassifierActivation)
	case cfg.Pooling == "avg":
		g.GlobalAveragePooling2D(x, "avg_pool")
	case cfg.Pooling == "max":
		g.GlobalMaxPooling2D(x, "max_pool")
	}

	model, err := g.Build(denseNetName(blocks))

	if err != nil {
		return nil, fmt.Errorf("error building DenseNet: %w", err)
	}

	if cfg.Weights != "" {

		if cfg.Loader == nil {
			return nil, ErrNoWeightsLoader
		}

		if err := cfg.Loader.LoadWeights(cfg.Weights, model); err != nil {
			return nil, fmt.Errorf("error loading weights %s: %w", cfg.Weights, err)
		}
	}

	return model, nil
}

// DenseNet121 builds the 121 layer DenseNet
func DenseNet121(cfg DenseNetConfig) (*Model, error) {
	return DenseNet(DenseNet121Blocks, cfg)
}

// DenseNet169 builds the 169 layer DenseNet
func DenseNet169(cfg DenseNetConfig) (*Model, error) {
	return DenseNet(DenseNet169Blocks, cfg)
}

// DenseNet201 builds the 201 layer DenseNet
func DenseNet201(cfg DenseNetConfig) (*Model, error) {
	return DenseNet(DenseNet201Blocks, cfg)
}

// denseBlock stacks n conv blocks, each concatenating growthRate new channels
// onto its input
func denseBlock(g *Graph, x string, n int, name string) string {

	for i := 1; i <= n; i++ {
		x = convBlock(g, x, fmt.Sprintf("%s_block%d", name, i))
	}

	return x
}

func convBlock(g *Graph, x string, name string) string {

	x1 := g.BatchNorm(x, name+"_0_bn")
	x1 = g.Activation(x1, name+"_0_relu", "relu")
	x1 = g.Conv2D(x1, name+"_1_conv", 4*growthRate, 1, 1, Valid, false)
	x1 = g.BatchNorm(x1, name+"_1_bn")
	x1 = g.Activation(x1, name+"_1_relu", "relu")
	x1 = g.Conv2D(x1, name+"_2_conv", growthRate, 3, 1, Same, false)

	return g.Concatenate(name+"_concat", x, x1)
}

// transitionBlock compresses channels and halves height and width between
// dense blocks
func transitionBlock(g *Graph, x string, name string) string {

	x = g.BatchNorm(x, name+"_bn")
	x = g.Activation(x, name+"_relu", "relu")

	shape := g.Shape(x)

	if shape == nil {
		return ""
	}

	filters := int(float64(shape[len(shape)-1]) * compression)

	x = g.Conv2D(x, name+"_conv", filters, 1, 1, Valid, false)
	return g.AveragePooling2D(x, name+"_pool", 2, 2, Valid)
}

func denseNetName(blocks []int) string {

	switch {
	case slices.Equal(blocks, DenseNet121Blocks):
		return "densenet121"
	case slices.Equal(blocks, DenseNet169Blocks):
		return "densenet169"
	case slices.Equal(blocks, DenseNet201Blocks):
		return "densenet201"
	}

	return "densenet"
}
