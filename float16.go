package cvmetrics

import (
	"fmt"
	"strings"

	"github.com/x448/float16"
)

// DType is the numeric precision values in a Tensor are held at.  Storage is
// always float64, values are rounded to the precision of the DType.
type DType int

const (
	Float32 DType = iota
	Float16
	Float64
)

var f16LookupTable [65536]float32

func init() {
	// precompute float16 lookup table for faster conversion to float32
	for i := range f16LookupTable {
		f16 := float16.Frombits(uint16(i))
		f16LookupTable[i] = f16.Float32()
	}
}

// ParseDType returns the DType for the given name, one of "float16",
// "float32" or "float64".  Names are case insensitive.
func ParseDType(name string) (DType, error) {

	switch strings.ToLower(name) {
	case "float16", "half":
		return Float16, nil
	case "float32", "float":
		return Float32, nil
	case "float64", "double":
		return Float64, nil
	}

	return Float32, fmt.Errorf("unsupported dtype %q, should be one of [float16 float32 float64]", name)
}

// Round returns v rounded to the precision of the DType
func (d DType) Round(v float64) float64 {

	switch d {
	case Float16:
		return float64(f16LookupTable[float16.Fromfloat32(float32(v)).Bits()])
	case Float64:
		return v
	default:
		return float64(float32(v))
	}
}

// String returns a readable description of the DType
func (d DType) String() string {
	switch d {
	case Float16:
		return "float16"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	default:
		return "UNKNOWN"
	}
}
