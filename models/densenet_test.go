package models

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDenseNetParams(t *testing.T) {

	tests := []struct {
		name     string
		build    func(DenseNetConfig) (*Model, error)
		top      int
		noTop    int
		channels int
	}{
		{"densenet121", DenseNet121, 8062504, 7037504, 1024},
		{"densenet169", DenseNet169, 14307880, 12642880, 1664},
		{"densenet201", DenseNet201, 20242984, 18321984, 1920},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {

			model, err := tc.build(DenseNetConfig{
				IncludeTop: true,
				InputShape: []int{224, 224, 3},
			})
			require.NoError(t, err)

			assert.Equal(t, tc.name, model.Name())
			assert.Equal(t, tc.top, model.Params())
			assert.Equal(t, []int{1000}, model.OutputShape())

			relu, ok := model.Layer("relu")
			require.True(t, ok)
			assert.Equal(t, []int{7, 7, tc.channels}, relu.OutputShape)

			// parameters do not depend on the spatial size
			features, err := tc.build(DenseNetConfig{})
			require.NoError(t, err)

			assert.Equal(t, tc.noTop, features.Params())
			assert.Equal(t, []int{Unknown, Unknown, tc.channels}, features.OutputShape())
		})
	}
}

func TestDenseNetLayerShapes(t *testing.T) {

	model, err := DenseNet121(DenseNetConfig{InputShape: []int{224, 224, 3}})
	require.NoError(t, err)

	tests := []struct {
		layer string
		shape []int
	}{
		{"conv1/conv", []int{112, 112, 64}},
		{"pool1", []int{56, 56, 64}},
		{"conv2_block1_1_conv", []int{56, 56, 128}},
		{"conv2_block1_concat", []int{56, 56, 96}},
		{"conv2_block6_concat", []int{56, 56, 256}},
		{"pool2_conv", []int{56, 56, 128}},
		{"pool2_pool", []int{28, 28, 128}},
		{"pool3_pool", []int{14, 14, 256}},
		{"pool4_pool", []int{7, 7, 512}},
		{"conv5_block16_concat", []int{7, 7, 1024}},
	}

	for _, tc := range tests {
		l, ok := model.Layer(tc.layer)
		require.True(t, ok, tc.layer)
		assert.Equal(t, tc.shape, l.OutputShape, tc.layer)
	}

	concat, _ := model.Layer("conv2_block1_concat")
	assert.Equal(t, []string{"pool1", "conv2_block1_2_conv"}, concat.Inputs)

	_, ok := model.Layer("zero_padding2d_1")
	assert.True(t, ok)
}

func TestDenseNetPooling(t *testing.T) {

	avg, err := DenseNet121(DenseNetConfig{Pooling: "avg"})
	require.NoError(t, err)
	assert.Equal(t, []int{1024}, avg.OutputShape())

	maxPool, err := DenseNet121(DenseNetConfig{Pooling: "max"})
	require.NoError(t, err)
	assert.Equal(t, []int{1024}, maxPool.OutputShape())

	_, ok := maxPool.Layer("max_pool")
	assert.True(t, ok)
	assert.Equal(t, avg.Params(), maxPool.Params())
}

func TestDenseNetCustomBlocks(t *testing.T) {

	model, err := DenseNet([]int{1, 1, 1, 1}, DenseNetConfig{
		IncludeTop:           true,
		InputShape:           []int{64, 64, 3},
		Classes:              10,
		ClassifierActivation: "linear",
	})
	require.NoError(t, err)

	assert.Equal(t, "densenet", model.Name())
	assert.Equal(t, []int{10}, model.OutputShape())
}

func TestDenseNetPreprocessing(t *testing.T) {

	model, err := DenseNet121(DenseNetConfig{IncludePreprocessing: true})
	require.NoError(t, err)

	rescale, ok := model.Layer("rescaling")
	require.True(t, ok)
	assert.Equal(t, []string{"input_1"}, rescale.Inputs)

	pad, ok := model.Layer("zero_padding2d")
	require.True(t, ok)
	assert.Equal(t, []string{"rescaling"}, pad.Inputs)
}

func TestDenseNetInput(t *testing.T) {

	input := &InputSpec{Name: "image", Shape: []int{128, 96, 3}}

	model, err := DenseNet121(DenseNetConfig{
		Input:      input,
		InputShape: []int{224, 224, 3},
	})
	require.NoError(t, err)

	assert.Same(t, input, model.Input())
	assert.Equal(t, []int{4, 3, 1024}, model.OutputShape())
}

func TestDenseNetErrors(t *testing.T) {

	tests := []struct {
		name   string
		blocks []int
		cfg    DenseNetConfig
		err    error
	}{
		{
			name:   "missing weights file",
			blocks: DenseNet121Blocks,
			cfg:    DenseNetConfig{Weights: "/no/such/weights.h5"},
			err:    ErrInvalidWeights,
		},
		{
			name:   "top with unknown input",
			blocks: DenseNet121Blocks,
			cfg:    DenseNetConfig{IncludeTop: true},
			err:    ErrUnknownInputShape,
		},
		{
			name:   "unknown pooling",
			blocks: DenseNet121Blocks,
			cfg:    DenseNetConfig{Pooling: "mean"},
			err:    ErrInvalidPooling,
		},
		{
			name:   "three blocks",
			blocks: []int{6, 12, 24},
			cfg:    DenseNetConfig{},
			err:    ErrInvalidBlocks,
		},
		{
			name:   "zero block",
			blocks: []int{6, 0, 24, 16},
			cfg:    DenseNetConfig{},
			err:    ErrInvalidBlocks,
		},
		{
			name:   "unknown activation",
			blocks: DenseNet121Blocks,
			cfg: DenseNetConfig{
				IncludeTop:           true,
				InputShape:           []int{224, 224, 3},
				ClassifierActivation: "gelu-ish",
			},
			err: ErrInvalidActivation,
		},
		{
			name:   "input too small",
			blocks: DenseNet121Blocks,
			cfg:    DenseNetConfig{InputShape: []int{16, 16, 3}},
			err:    ErrShape,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DenseNet(tc.blocks, tc.cfg)
			assert.True(t, errors.Is(err, tc.err), "got %v", err)
		})
	}
}

func TestDenseNetWeights(t *testing.T) {

	file := filepath.Join(t.TempDir(), "densenet121.weights.h5")
	require.NoError(t, os.WriteFile(file, []byte("weights"), 0644))

	var loaded string
	var params int

	loader := WeightsLoaderFunc(func(path string, model *Model) error {
		loaded = path
		params = model.Params()
		return nil
	})

	_, err := DenseNet121(DenseNetConfig{Weights: file, Loader: loader})
	require.NoError(t, err)
	assert.Equal(t, file, loaded)
	assert.Equal(t, 7037504, params)

	_, err = DenseNet121(DenseNetConfig{Weights: file})
	assert.True(t, errors.Is(err, ErrNoWeightsLoader))

	_, err = DenseNet121(DenseNetConfig{
		Weights:              file,
		Loader:               loader,
		IncludeTop:           true,
		InputShape:           []int{224, 224, 3},
		ClassifierActivation: "relu",
	})
	assert.True(t, errors.Is(err, ErrInvalidActivation))

	failed := errors.New("corrupt file")
	_, err = DenseNet121(DenseNetConfig{
		Weights: file,
		Loader: WeightsLoaderFunc(func(string, *Model) error {
			return failed
		}),
	})
	assert.True(t, errors.Is(err, failed))

	// a directory is not a weights file
	_, err = DenseNet121(DenseNetConfig{Weights: t.TempDir(), Loader: loader})
	assert.True(t, errors.Is(err, ErrInvalidWeights))
}

func TestModelSummary(t *testing.T) {

	model, err := DenseNet121(DenseNetConfig{IncludeTop: true, InputShape: []int{224, 224, 3}})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, model.Summary(&buf))

	out := buf.String()
	assert.Contains(t, out, `Model: "densenet121"`)
	assert.Contains(t, out, "input_1 (InputLayer)")
	assert.Contains(t, out, "(None, 224, 224, 3)")
	assert.Contains(t, out, "predictions (Dense)")
	assert.Contains(t, out, "Total params: 8062504")
}
