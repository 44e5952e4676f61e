package rpc

import (
	"testing"
	"time"

	"github.com/go-test/deep"
	"google.golang.org/grpc/encoding"

	"github.com/osprey-dcs/dp-query/value"
	"github.com/osprey-dcs/dp-query/wire"
)

func TestCodecRegistered(t *testing.T) {
	if encoding.GetCodec(CodecName) == nil {
		t.Fatal("codec not registered with grpc")
	}
}

func TestCodecRoundTrip(t *testing.T) {
	c := jsonCodec{}
	in := &wire.QueryResponse{Data: &wire.QueryData{Buckets: []wire.RawBucket{
		{
			Source: "A",
			Clock:  &wire.Clock{Start: time.Unix(0, 1000).UTC(), Period: 1000, Count: 2},
			Values: []value.Value{value.Float64(1.5), value.Absent},
		},
		{
			Source: "B",
			Times:  wire.TimestampList{time.Unix(0, 5).UTC(), time.Unix(0, 9).UTC()},
			Values: []value.Value{value.String("x"), value.Bool(true)},
		},
	}}}

	data, err := c.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	out := new(wire.QueryResponse)
	if err := c.Unmarshal(data, out); err != nil {
		t.Fatal(err)
	}
	if out.Data == nil || len(out.Data.Buckets) != 2 {
		t.Fatal("bucket list lost in transit")
	}
	a, b := &out.Data.Buckets[0], &out.Data.Buckets[1]
	if a.Source != "A" || a.Clock == nil || a.Clock.Count != 2 || !a.Clock.Start.Equal(time.Unix(0, 1000)) {
		t.Error("clocked bucket mangled:", a)
	}
	if diff := deep.Equal(a.Clock.Key(), in.Data.Buckets[0].Clock.Key()); diff != nil {
		t.Error("provenance key changed in transit:", diff)
	}
	if b.Source != "B" || len(b.Times) != 2 || !b.Times[1].Equal(time.Unix(0, 9)) {
		t.Error("listed bucket mangled:", b)
	}
	for i := range a.Values {
		if !value.Equal(a.Values[i], in.Data.Buckets[0].Values[i]) {
			t.Errorf("cell A[%d] changed in transit", i)
		}
	}
	for i := range b.Values {
		if !value.Equal(b.Values[i], in.Data.Buckets[1].Values[i]) {
			t.Errorf("cell B[%d] changed in transit", i)
		}
	}
}

func TestCodecExceptional(t *testing.T) {
	c := jsonCodec{}
	in := &wire.QueryResponse{Exceptional: &wire.ExceptionalResult{Code: "INVALID", Message: "bad pv"}}
	data, err := c.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	out := new(wire.QueryResponse)
	if err := c.Unmarshal(data, out); err != nil {
		t.Fatal(err)
	}
	if out.Data != nil || out.Exceptional == nil || out.Exceptional.Message != "bad pv" {
		t.Error("exceptional payload lost")
	}
}
