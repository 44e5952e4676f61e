package rpc

import (
	jsoniter "github.com/json-iterator/go"
	"google.golang.org/grpc/encoding"
)

// CodecName is the grpc content-subtype the adapter requests on every
// call.
const CodecName = "dpjson"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// jsonCodec marshals wire messages with json-iterator.  Registered once
// at package load so that grpc can resolve it by content-subtype.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string { return CodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
