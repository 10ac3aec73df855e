// Package value implements the tagged-union fact value used throughout SFPM:
// a closed set of primitive shapes criteria can compare or hand to a
// predicate. Strings are borrowed (the lifetime of the underlying bytes is
// owned by whatever fact source produced the value).
package value

import (
	"math"
	"strings"
)

// Kind identifies which field of a Value is populated.
type Kind int

const (
	Unknown Kind = iota
	Int
	Float
	Double
	String
	Bool
)

func (k Kind) String() string {
	switch k {
	case Int:
		return "int"
	case Float:
		return "float"
	case Double:
		return "double"
	case String:
		return "string"
	case Bool:
		return "bool"
	default:
		return "unknown"
	}
}

// Value is a tagged union over {int, float, double, string, bool}. The zero
// Value has Kind Unknown and matches nothing.
type Value struct {
	kind   Kind
	i      int
	f      float32
	d      float64
	s      string
	b      bool
}

func FromInt(v int) Value        { return Value{kind: Int, i: v} }
func FromFloat(v float32) Value  { return Value{kind: Float, f: v} }
func FromDouble(v float64) Value { return Value{kind: Double, d: v} }
func FromString(v string) Value  { return Value{kind: String, s: v} }
func FromBool(v bool) Value      { return Value{kind: Bool, b: v} }

func (v Value) Kind() Kind { return v.kind }

func (v Value) Int() int        { return v.i }
func (v Value) Float() float32  { return v.f }
func (v Value) Double() float64 { return v.d }
func (v Value) String() string  { return v.s }
func (v Value) Bool() bool      { return v.b }

// Compare returns a three-way comparison of a against b. The second return
// value is false when the two values have different kinds (a type
// mismatch, which callers must treat as a miss rather than an error) or
// when the kind is Unknown.
//
// Float/double ordering uses total-order-less-than: NaN compares less than
// every other value (including itself it is equal), so a NaN never causes
// a panic or an undefined ordering. This is an explicit choice, since the
// original C source left NaN handling unspecified.
func Compare(a, b Value) (int, bool) {
	if a.kind != b.kind {
		return 0, false
	}
	switch a.kind {
	case Int:
		return compareInt(a.i, b.i), true
	case Float:
		return compareFloat(float64(a.f), float64(b.f)), true
	case Double:
		return compareFloat(a.d, b.d), true
	case String:
		return strings.Compare(a.s, b.s), true
	case Bool:
		return compareBool(a.b, b.b), true
	default:
		return 0, false
	}
}

func compareInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// compareFloat implements a total order where NaN sorts below every other
// value and is equal only to itself.
func compareFloat(a, b float64) int {
	aNaN, bNaN := math.IsNaN(a), math.IsNaN(b)
	switch {
	case aNaN && bNaN:
		return 0
	case aNaN:
		return -1
	case bNaN:
		return 1
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareBool(a, b bool) int {
	if a == b {
		return 0
	}
	if a {
		return 1
	}
	return -1
}
