package vm

import "fmt"

// TType is the per-slot type tag (mrb_vtype). Every heap slot records one
// and every heap reference carries a copy.
type TType uint8

const (
	TTFalse TType = iota // nil and false
	TTTrue
	TTSymbol
	TTUndef
	TTFloat
	TTInteger
	TTObject
	TTClass
	TTException
	TTString
	TTData

	numTTypes
)

var ttypeNames = [numTTypes]string{
	TTFalse:     "false",
	TTTrue:      "true",
	TTSymbol:    "symbol",
	TTUndef:     "undef",
	TTFloat:     "float",
	TTInteger:   "integer",
	TTObject:    "object",
	TTClass:     "class",
	TTException: "exception",
	TTString:    "string",
	TTData:      "data",
}

func (t TType) String() string {
	if t < numTTypes {
		return ttypeNames[t]
	}
	return fmt.Sprintf("TType(%d)", uint8(t))
}

// IsHeap reports whether values of this type live in heap slots.
func (t TType) IsHeap() bool {
	return t >= TTObject && t < numTTypes
}
