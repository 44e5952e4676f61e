package value

import (
	"encoding/base64"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// jsonValue is the wire shape of a cell.  The absent sentinel is encoded
// as JSON null.
type jsonValue struct {
	T string              `json:"t"`
	E string              `json:"e,omitempty"` // array element type
	V jsoniter.RawMessage `json:"v"`
}

type jsonField struct {
	N string              `json:"n"`
	V jsoniter.RawMessage `json:"v"`
}

var typeTags = map[Type]string{}
var tagTypes = map[string]Type{}

func init() {
	for t, name := range typeNames {
		if t == TypeInvalid {
			continue
		}
		typeTags[t] = name
		tagTypes[name] = t
	}
}

// MarshalJSON encodes the cell.  Absent cells encode as null.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.present {
		return []byte("null"), nil
	}
	var payload interface{}
	switch v.typ {
	case TypeInt32:
		payload, _ = v.Int32()
	case TypeInt64:
		payload, _ = v.Int64()
	case TypeUInt32:
		payload, _ = v.UInt32()
	case TypeUInt64:
		payload, _ = v.UInt64()
	case TypeFloat32:
		payload, _ = v.Float32()
	case TypeFloat64:
		payload, _ = v.Float64()
	case TypeBool:
		payload, _ = v.Bool()
	case TypeString:
		payload = v.str
	case TypeBytes:
		payload = base64.StdEncoding.EncodeToString([]byte(v.str))
	case TypeTimestamp:
		payload = int64(v.num)
	case TypeArray:
		payload = v.arr
	case TypeStruct:
		fs := make([]jsonField, 0, len(v.fields))
		for _, f := range v.fields {
			raw, err := json.Marshal(f.Val)
			if err != nil {
				return nil, err
			}
			fs = append(fs, jsonField{N: f.Name, V: raw})
		}
		payload = fs
	default:
		return nil, errors.Errorf("unencodable value type %v", v.typ)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	jv := jsonValue{T: typeTags[v.typ], V: raw}
	if v.typ == TypeArray {
		jv.E = typeTags[v.elem]
	}
	return json.Marshal(jv)
}

// UnmarshalJSON decodes a cell previously produced by MarshalJSON.
func (v *Value) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = Absent
		return nil
	}
	var jv jsonValue
	if err := json.Unmarshal(data, &jv); err != nil {
		return errors.Wrap(err, "decoding cell")
	}
	typ, ok := tagTypes[jv.T]
	if !ok {
		return errors.Errorf("unknown value type tag %q", jv.T)
	}
	switch typ {
	case TypeInt32:
		var x int32
		if err := json.Unmarshal(jv.V, &x); err != nil {
			return err
		}
		*v = Int32(x)
	case TypeInt64:
		var x int64
		if err := json.Unmarshal(jv.V, &x); err != nil {
			return err
		}
		*v = Int64(x)
	case TypeUInt32:
		var x uint32
		if err := json.Unmarshal(jv.V, &x); err != nil {
			return err
		}
		*v = UInt32(x)
	case TypeUInt64:
		var x uint64
		if err := json.Unmarshal(jv.V, &x); err != nil {
			return err
		}
		*v = UInt64(x)
	case TypeFloat32:
		var x float32
		if err := json.Unmarshal(jv.V, &x); err != nil {
			return err
		}
		*v = Float32(x)
	case TypeFloat64:
		var x float64
		if err := json.Unmarshal(jv.V, &x); err != nil {
			return err
		}
		*v = Float64(x)
	case TypeBool:
		var x bool
		if err := json.Unmarshal(jv.V, &x); err != nil {
			return err
		}
		*v = Bool(x)
	case TypeString:
		var x string
		if err := json.Unmarshal(jv.V, &x); err != nil {
			return err
		}
		*v = String(x)
	case TypeBytes:
		var enc string
		if err := json.Unmarshal(jv.V, &enc); err != nil {
			return err
		}
		b, err := base64.StdEncoding.DecodeString(enc)
		if err != nil {
			return errors.Wrap(err, "decoding bytes cell")
		}
		*v = Bytes(b)
	case TypeTimestamp:
		var ns int64
		if err := json.Unmarshal(jv.V, &ns); err != nil {
			return err
		}
		*v = Timestamp(time.Unix(0, ns).UTC())
	case TypeArray:
		elem, ok := tagTypes[jv.E]
		if !ok {
			return errors.Errorf("unknown array element type tag %q", jv.E)
		}
		var vals []Value
		if err := json.Unmarshal(jv.V, &vals); err != nil {
			return err
		}
		*v = Array(elem, vals)
	case TypeStruct:
		var fs []jsonField
		if err := json.Unmarshal(jv.V, &fs); err != nil {
			return err
		}
		fields := make([]Field, 0, len(fs))
		for _, f := range fs {
			var fv Value
			if err := json.Unmarshal(f.V, &fv); err != nil {
				return err
			}
			fields = append(fields, Field{Name: f.N, Val: fv})
		}
		*v = Struct(fields)
	default:
		return errors.Errorf("undecodable value type %v", typ)
	}
	return nil
}
