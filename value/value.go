// Package value implements the tagged-variant cell representation.  A
// cell is either a typed sample or the absent sentinel; the sentinel is
// the zero Value and is never conflated with a numeric NaN.
package value

import (
	"fmt"
	"math"
	"time"
)

// Type enumerates the supported sample value types.
type Type int

// The closed set of sample value types.
const (
	TypeInvalid Type = iota
	TypeInt32
	TypeInt64
	TypeUInt32
	TypeUInt64
	TypeFloat32
	TypeFloat64
	TypeBool
	TypeString
	TypeBytes
	TypeTimestamp
	TypeArray
	TypeStruct
)

var typeNames = map[Type]string{
	TypeInvalid:   "invalid",
	TypeInt32:     "int32",
	TypeInt64:     "int64",
	TypeUInt32:    "uint32",
	TypeUInt64:    "uint64",
	TypeFloat32:   "float32",
	TypeFloat64:   "float64",
	TypeBool:      "bool",
	TypeString:    "string",
	TypeBytes:     "bytes",
	TypeTimestamp: "timestamp",
	TypeArray:     "array",
	TypeStruct:    "struct",
}

func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// Field is one named member of a struct value.
type Field struct {
	Name string
	Val  Value
}

// Value is a single cell.  The zero Value is Absent.
type Value struct {
	typ     Type
	present bool

	// Scalar payloads share num: integer and bool bits, float bits,
	// timestamp unix nanos.
	num uint64
	// String and Bytes payloads.
	str string
	// Array elements, homogeneous of elem type.
	elem Type
	arr  []Value
	// Struct members.
	fields []Field
}

// Absent is the sentinel occupying cells no input bucket supplied.
var Absent = Value{}

// IsAbsent reports whether v is the absent sentinel.
func (v Value) IsAbsent() bool { return !v.present }

// Type returns the sample type, or TypeInvalid for the absent sentinel.
func (v Value) Type() Type {
	if !v.present {
		return TypeInvalid
	}
	return v.typ
}

// Constructors.

func Int32(x int32) Value   { return Value{typ: TypeInt32, present: true, num: uint64(uint32(x))} }
func Int64(x int64) Value   { return Value{typ: TypeInt64, present: true, num: uint64(x)} }
func UInt32(x uint32) Value { return Value{typ: TypeUInt32, present: true, num: uint64(x)} }
func UInt64(x uint64) Value { return Value{typ: TypeUInt64, present: true, num: x} }
func Float32(x float32) Value {
	return Value{typ: TypeFloat32, present: true, num: uint64(math.Float32bits(x))}
}
func Float64(x float64) Value {
	return Value{typ: TypeFloat64, present: true, num: math.Float64bits(x)}
}
func Bool(x bool) Value {
	var n uint64
	if x {
		n = 1
	}
	return Value{typ: TypeBool, present: true, num: n}
}
func String(s string) Value { return Value{typ: TypeString, present: true, str: s} }
func Bytes(b []byte) Value  { return Value{typ: TypeBytes, present: true, str: string(b)} }
func Timestamp(t time.Time) Value {
	return Value{typ: TypeTimestamp, present: true, num: uint64(t.UnixNano())}
}
func Array(elem Type, vals []Value) Value {
	return Value{typ: TypeArray, present: true, elem: elem, arr: vals}
}
func Struct(fields []Field) Value {
	return Value{typ: TypeStruct, present: true, fields: fields}
}

// Accessors.  Each returns false when the value is absent or of a
// different type.

func (v Value) Int32() (int32, bool) {
	if !v.present || v.typ != TypeInt32 {
		return 0, false
	}
	return int32(uint32(v.num)), true
}

func (v Value) Int64() (int64, bool) {
	if !v.present || v.typ != TypeInt64 {
		return 0, false
	}
	return int64(v.num), true
}

func (v Value) UInt32() (uint32, bool) {
	if !v.present || v.typ != TypeUInt32 {
		return 0, false
	}
	return uint32(v.num), true
}

func (v Value) UInt64() (uint64, bool) {
	if !v.present || v.typ != TypeUInt64 {
		return 0, false
	}
	return v.num, true
}

func (v Value) Float32() (float32, bool) {
	if !v.present || v.typ != TypeFloat32 {
		return 0, false
	}
	return math.Float32frombits(uint32(v.num)), true
}

func (v Value) Float64() (float64, bool) {
	if !v.present || v.typ != TypeFloat64 {
		return 0, false
	}
	return math.Float64frombits(v.num), true
}

func (v Value) Bool() (bool, bool) {
	if !v.present || v.typ != TypeBool {
		return false, false
	}
	return v.num != 0, true
}

func (v Value) Str() (string, bool) {
	if !v.present || v.typ != TypeString {
		return "", false
	}
	return v.str, true
}

func (v Value) BytesVal() ([]byte, bool) {
	if !v.present || v.typ != TypeBytes {
		return nil, false
	}
	return []byte(v.str), true
}

func (v Value) Timestamp() (time.Time, bool) {
	if !v.present || v.typ != TypeTimestamp {
		return time.Time{}, false
	}
	return time.Unix(0, int64(v.num)).UTC(), true
}

func (v Value) ArrayVal() (Type, []Value, bool) {
	if !v.present || v.typ != TypeArray {
		return TypeInvalid, nil, false
	}
	return v.elem, v.arr, true
}

func (v Value) StructVal() ([]Field, bool) {
	if !v.present || v.typ != TypeStruct {
		return nil, false
	}
	return v.fields, true
}

// Equal reports deep equality of two cells.  Two absent cells are equal.
func Equal(a, b Value) bool {
	if a.present != b.present {
		return false
	}
	if !a.present {
		return true
	}
	if a.typ != b.typ {
		return false
	}
	switch a.typ {
	case TypeString, TypeBytes:
		return a.str == b.str
	case TypeArray:
		if a.elem != b.elem || len(a.arr) != len(b.arr) {
			return false
		}
		for i := range a.arr {
			if !Equal(a.arr[i], b.arr[i]) {
				return false
			}
		}
		return true
	case TypeStruct:
		if len(a.fields) != len(b.fields) {
			return false
		}
		for i := range a.fields {
			if a.fields[i].Name != b.fields[i].Name || !Equal(a.fields[i].Val, b.fields[i].Val) {
				return false
			}
		}
		return true
	default:
		return a.num == b.num
	}
}

// Interface returns the cell as a plain Go value, or nil for the absent
// sentinel.  Used for JSON export and diagnostics.
func (v Value) Interface() interface{} {
	if !v.present {
		return nil
	}
	switch v.typ {
	case TypeInt32:
		x, _ := v.Int32()
		return x
	case TypeInt64:
		x, _ := v.Int64()
		return x
	case TypeUInt32:
		x, _ := v.UInt32()
		return x
	case TypeUInt64:
		x, _ := v.UInt64()
		return x
	case TypeFloat32:
		x, _ := v.Float32()
		return x
	case TypeFloat64:
		x, _ := v.Float64()
		return x
	case TypeBool:
		x, _ := v.Bool()
		return x
	case TypeString:
		return v.str
	case TypeBytes:
		return []byte(v.str)
	case TypeTimestamp:
		x, _ := v.Timestamp()
		return x
	case TypeArray:
		out := make([]interface{}, len(v.arr))
		for i := range v.arr {
			out[i] = v.arr[i].Interface()
		}
		return out
	case TypeStruct:
		out := make(map[string]interface{}, len(v.fields))
		for _, f := range v.fields {
			out[f.Name] = f.Val.Interface()
		}
		return out
	}
	return nil
}

func (v Value) String() string {
	if !v.present {
		return "<absent>"
	}
	return fmt.Sprintf("%v", v.Interface())
}
