package models

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	// ErrShape is returned when a layer cannot be applied to the shape of its
	// input
	ErrShape = errors.New("incompatible layer shape")
	// ErrUnknownLayer is returned when a layer input refers to a layer not in
	// the graph
	ErrUnknownLayer = errors.New("unknown layer")
	// ErrDuplicateLayer is returned when two layers share a name
	ErrDuplicateLayer = errors.New("duplicate layer name")
	// ErrInvalidActivation is returned for an unsupported activation function
	ErrInvalidActivation = errors.New("invalid activation")
)

// Padding is the padding mode of convolution and pooling layers
type Padding string

const (
	// Valid applies no padding so the window stays inside the input
	Valid Padding = "valid"
	// Same pads the input so output size is the input size divided by stride
	Same Padding = "same"
)

// activations are the activation functions layers accept, linear returns
// its input unchanged
var activations = map[string]bool{
	"linear":  true,
	"relu":    true,
	"sigmoid": true,
	"softmax": true,
	"tanh":    true,
	"swish":   true,
}

// Layer is a single node of a Graph
type Layer struct {
	Name string
	// Kind is the layer type, eg: Conv2D
	Kind string
	// Inputs are the names of the layers feeding this one
	Inputs []string
	// OutputShape excludes the batch dimension
	OutputShape []int
	// Params is the number of weights the layer holds
	Params int
}

// Graph builds a model layer by layer.  Builder methods take the name of the
// layer to apply to and return the name of the new layer.  An empty name is
// replaced with one derived from the layer kind.  The first error is kept and
// all later calls become no-ops, check it with Err or Build.
type Graph struct {
	input  *InputSpec
	layers []*Layer
	index  map[string]*Layer
	counts map[string]int
	err    error
}

// NewGraph creates a graph whose first layer is the given input
func NewGraph(input *InputSpec) *Graph {

	g := &Graph{
		input:  input,
		index:  make(map[string]*Layer),
		counts: make(map[string]int),
	}

	name := input.Name

	if name == "" {
		name = defaultInputName
	}

	g.add("InputLayer", name, nil, append([]int(nil), input.Shape...), 0)
	return g
}

// Input returns the name of the input layer
func (g *Graph) Input() string {
	return g.layers[0].Name
}

// Err returns the first error encountered while building
func (g *Graph) Err() error {
	return g.err
}

// Shape returns the output shape of the named layer or nil if there is no
// such layer
func (g *Graph) Shape(name string) []int {

	if l, ok := g.index[name]; ok {
		return append([]int(nil), l.OutputShape...)
	}

	return nil
}

// Build finalizes the graph as a Model whose output is the last layer added
func (g *Graph) Build(name string) (*Model, error) {

	if g.err != nil {
		return nil, g.err
	}

	layers := make([]Layer, len(g.layers))

	for i, l := range g.layers {
		layers[i] = *l
	}

	return &Model{
		name:   name,
		input:  g.input,
		layers: layers,
	}, nil
}

// Conv2D adds a 2D convolution with a square kernel
func (g *Graph) Conv2D(in, name string, filters, kernel, stride int, padding Padding, useBias bool) string {

	h, w, c, ok := g.spatial(in, "Conv2D")

	if !ok {
		return ""
	}

	if filters < 1 || kernel < 1 || stride < 1 {
		return g.fail(fmt.Errorf("%w: Conv2D needs positive filters, kernel and stride, got %d, %d, %d",
			ErrShape, filters, kernel, stride))
	}

	if c == Unknown {
		return g.fail(fmt.Errorf("%w: Conv2D on %q needs a known channel dimension", ErrShape, in))
	}

	oh, ok1 := outputDim(h, kernel, stride, padding)
	ow, ok2 := outputDim(w, kernel, stride, padding)

	if !ok1 || !ok2 {
		return g.fail(fmt.Errorf("%w: Conv2D kernel %d larger than input %v of %q",
			ErrShape, kernel, []int{h, w}, in))
	}

	params := kernel * kernel * c * filters

	if useBias {
		params += filters
	}

	return g.add("Conv2D", name, []string{in}, []int{oh, ow, filters}, params)
}

// BatchNorm adds batch normalization over the channel axis, holding gamma,
// beta, moving mean and moving variance per channel
func (g *Graph) BatchNorm(in, name string) string {

	src := g.lookup(in)

	if src == nil {
		return ""
	}

	c := src.OutputShape[len(src.OutputShape)-1]

	if c == Unknown {
		return g.fail(fmt.Errorf("%w: BatchNormalization on %q needs a known channel dimension",
			ErrShape, in))
	}

	return g.add("BatchNormalization", name, []string{in}, src.OutputShape, 4*c)
}

// Activation adds an elementwise activation function
func (g *Graph) Activation(in, name, fn string) string {

	src := g.lookup(in)

	if src == nil {
		return ""
	}

	if !activations[fn] {
		return g.fail(fmt.Errorf("%w: %q", ErrInvalidActivation, fn))
	}

	return g.add("Activation", name, []string{in}, src.OutputShape, 0)
}

// Rescaling adds a layer computing x*scale + offset
func (g *Graph) Rescaling(in, name string, scale, offset float64) string {

	src := g.lookup(in)

	if src == nil {
		return ""
	}

	return g.add("Rescaling", name, []string{in}, src.OutputShape, 0)
}

// ZeroPadding2D pads height and width with pad zeros on every side
func (g *Graph) ZeroPadding2D(in, name string, pad int) string {

	h, w, c, ok := g.spatial(in, "ZeroPadding2D")

	if !ok {
		return ""
	}

	if pad < 0 {
		return g.fail(fmt.Errorf("%w: negative padding %d", ErrShape, pad))
	}

	return g.add("ZeroPadding2D", name, []string{in}, []int{padDim(h, pad), padDim(w, pad), c}, 0)
}

// MaxPooling2D adds max pooling with a square window
func (g *Graph) MaxPooling2D(in, name string, pool, stride int, padding Padding) string {
	return g.pooling("MaxPooling2D", in, name, pool, stride, padding)
}

// AveragePooling2D adds average pooling with a square window
func (g *Graph) AveragePooling2D(in, name string, pool, stride int, padding Padding) string {
	return g.pooling("AveragePooling2D", in, name, pool, stride, padding)
}

// Concatenate joins layers along the channel axis.  Height and width must
// agree where known.
func (g *Graph) Concatenate(name string, inputs ...string) string {

	if g.err != nil {
		return ""
	}

	if len(inputs) < 2 {
		return g.fail(fmt.Errorf("%w: Concatenate needs at least 2 inputs, got %d",
			ErrShape, len(inputs)))
	}

	var out []int

	for _, in := range inputs {

		h, w, c, ok := g.spatial(in, "Concatenate")

		if !ok {
			return ""
		}

		if out == nil {
			out = []int{h, w, c}
			continue
		}

		if !dimsAgree(out[0], h) || !dimsAgree(out[1], w) {
			return g.fail(fmt.Errorf("%w: Concatenate inputs %v and %v differ in height or width",
				ErrShape, out, []int{h, w, c}))
		}

		if out[0] == Unknown {
			out[0] = h
		}

		if out[1] == Unknown {
			out[1] = w
		}

		if out[2] == Unknown || c == Unknown {
			out[2] = Unknown
		} else {
			out[2] += c
		}
	}

	return g.add("Concatenate", name, append([]string(nil), inputs...), out, 0)
}

// GlobalAveragePooling2D averages over height and width
func (g *Graph) GlobalAveragePooling2D(in, name string) string {
	return g.globalPooling("GlobalAveragePooling2D", in, name)
}

// GlobalMaxPooling2D takes the maximum over height and width
func (g *Graph) GlobalMaxPooling2D(in, name string) string {
	return g.globalPooling("GlobalMaxPooling2D", in, name)
}

// Dense adds a fully connected layer with bias to a flat input
func (g *Graph) Dense(in, name string, units int, activation string) string {

	src := g.lookup(in)

	if src == nil {
		return ""
	}

	if len(src.OutputShape) != 1 || src.OutputShape[0] == Unknown {
		return g.fail(fmt.Errorf("%w: Dense needs a flat input of known size, %q has shape %v",
			ErrShape, in, src.OutputShape))
	}

	if units < 1 {
		return g.fail(fmt.Errorf("%w: Dense needs positive units, got %d", ErrShape, units))
	}

	if !activations[activation] {
		return g.fail(fmt.Errorf("%w: %q", ErrInvalidActivation, activation))
	}

	params := src.OutputShape[0]*units + units

	return g.add("Dense", name, []string{in}, []int{units}, params)
}

func (g *Graph) pooling(kind, in, name string, pool, stride int, padding Padding) string {

	h, w, c, ok := g.spatial(in, kind)

	if !ok {
		return ""
	}

	if pool < 1 || stride < 1 {
		return g.fail(fmt.Errorf("%w: %s needs positive pool size and stride, got %d, %d",
			ErrShape, kind, pool, stride))
	}

	oh, ok1 := outputDim(h, pool, stride, padding)
	ow, ok2 := outputDim(w, pool, stride, padding)

	if !ok1 || !ok2 {
		return g.fail(fmt.Errorf("%w: %s window %d larger than input %v of %q",
			ErrShape, kind, pool, []int{h, w}, in))
	}

	return g.add(kind, name, []string{in}, []int{oh, ow, c}, 0)
}

func (g *Graph) globalPooling(kind, in, name string) string {

	_, _, c, ok := g.spatial(in, kind)

	if !ok {
		return ""
	}

	return g.add(kind, name, []string{in}, []int{c}, 0)
}

// spatial looks up a layer with an [height, width, channels] output
func (g *Graph) spatial(in, kind string) (int, int, int, bool) {

	src := g.lookup(in)

	if src == nil {
		return 0, 0, 0, false
	}

	if len(src.OutputShape) != 3 {
		g.fail(fmt.Errorf("%w: %s needs an [height, width, channels] input, %q has shape %v",
			ErrShape, kind, in, src.OutputShape))
		return 0, 0, 0, false
	}

	s := src.OutputShape
	return s[0], s[1], s[2], true
}

func (g *Graph) lookup(name string) *Layer {

	if g.err != nil {
		return nil
	}

	l, ok := g.index[name]

	if !ok {
		g.fail(fmt.Errorf("%w: %q", ErrUnknownLayer, name))
		return nil
	}

	return l
}

func (g *Graph) add(kind, name string, inputs []string, shape []int, params int) string {

	if g.err != nil {
		return ""
	}

	if name == "" {
		name = g.autoName(kind)
	}

	if _, exists := g.index[name]; exists {
		return g.fail(fmt.Errorf("%w: %q", ErrDuplicateLayer, name))
	}

	l := &Layer{
		Name:        name,
		Kind:        kind,
		Inputs:      inputs,
		OutputShape: append([]int(nil), shape...),
		Params:      params,
	}

	g.layers = append(g.layers, l)
	g.index[name] = l

	return name
}

// autoName derives a unique layer name from its kind, eg: ZeroPadding2D
// becomes zero_padding2d then zero_padding2d_1
func (g *Graph) autoName(kind string) string {

	base := snakeCase(kind)

	for {
		n := g.counts[base]
		g.counts[base]++

		name := base

		if n > 0 {
			name = fmt.Sprintf("%s_%d", base, n)
		}

		if _, exists := g.index[name]; !exists {
			return name
		}
	}
}

func (g *Graph) fail(err error) string {

	if g.err == nil {
		g.err = err
	}

	return ""
}

// outputDim returns the output size of a sliding window along one dimension
func outputDim(in, window, stride int, padding Padding) (int, bool) {

	if in == Unknown {
		return Unknown, true
	}

	if padding == Same {
		return (in + stride - 1) / stride, true
	}

	if in < window {
		return 0, false
	}

	return (in-window)/stride + 1, true
}

func padDim(d, pad int) int {

	if d == Unknown {
		return Unknown
	}

	return d + 2*pad
}

func dimsAgree(a, b int) bool {
	return a == Unknown || b == Unknown || a == b
}

func snakeCase(kind string) string {

	var sb strings.Builder

	prev := rune(0)

	for _, r := range kind {
		if r >= 'A' && r <= 'Z' {
			if prev >= 'a' && prev <= 'z' {
				sb.WriteByte('_')
			}
			prev = r
			r += 'a' - 'A'
		} else {
			prev = r
		}

		sb.WriteRune(r)
	}

	return sb.String()
}

// Model is a built layer graph
type Model struct {
	name   string
	input  *InputSpec
	layers []Layer
}

// Name returns the model name
func (m *Model) Name() string {
	return m.name
}

// Input returns the input the model was built on
func (m *Model) Input() *InputSpec {
	return m.input
}

// Layers returns the layers in the order they were added
func (m *Model) Layers() []Layer {
	return append([]Layer(nil), m.layers...)
}

// Layer returns the named layer
func (m *Model) Layer(name string) (Layer, bool) {

	for _, l := range m.layers {
		if l.Name == name {
			return l, true
		}
	}

	return Layer{}, false
}

// Params returns the total number of weights in the model
func (m *Model) Params() int {

	total := 0

	for _, l := range m.layers {
		total += l.Params
	}

	return total
}

// OutputShape returns the shape of the final layer excluding batch
func (m *Model) OutputShape() []int {
	return append([]int(nil), m.layers[len(m.layers)-1].OutputShape...)
}

// Summary writes a table of the model layers in text/human readable format
func (m *Model) Summary(w io.Writer) error {

	if _, err := fmt.Fprintf(w, "Model: %q\n", m.name); err != nil {
		return fmt.Errorf("error writing summary: %w", err)
	}

	fmt.Fprintf(w, "%-40s %-24s %10s  %s\n", "Layer (type)", "Output Shape", "Param #", "Connected to")

	for _, l := range m.layers {
		fmt.Fprintf(w, "%-40s %-24s %10d  %s\n",
			fmt.Sprintf("%s (%s)", l.Name, l.Kind), shapeString(l.OutputShape),
			l.Params, strings.Join(l.Inputs, ", "))
	}

	fmt.Fprintf(w, "Total params: %d\n", m.Params())

	return nil
}
