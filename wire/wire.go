// Package wire defines the payload model exchanged with the query
// service: requests, responses, raw sample buckets, and the provenance
// identities that the correlator keys on.
package wire

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/osprey-dcs/dp-query/interval"
	"github.com/osprey-dcs/dp-query/qerr"
	"github.com/osprey-dcs/dp-query/value"
)

// QueryRequest is the transport-level form of a data request.
type QueryRequest struct {
	RequestID string    `json:"requestId,omitempty"`
	Begin     time.Time `json:"begin"`
	End       time.Time `json:"end"`
	PvNames   []string  `json:"pvNames"`
}

// CursorOp is a cursor control message on a bidirectional stream.
type CursorOp int32

// Cursor operations.  The client sends CursorNext after each received
// response and CursorFinish to close the forward channel.
const (
	CursorNone CursorOp = iota
	CursorNext
	CursorFinish
)

// StreamRequest is the forward-channel message of a bidirectional
// stream: the initial query, or a cursor acknowledgement.
type StreamRequest struct {
	Query  *QueryRequest `json:"query,omitempty"`
	Cursor CursorOp      `json:"cursor,omitempty"`
}

// ExceptionalResult is the server's rejection or mid-stream error
// payload.
type ExceptionalResult struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ExceptionalResult) String() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// QueryResponse is one response message: exactly one of Data or
// Exceptional is set.
type QueryResponse struct {
	Data        *QueryData         `json:"data,omitempty"`
	Exceptional *ExceptionalResult `json:"exceptional,omitempty"`
}

// QueryData carries one or more raw sample buckets.
type QueryData struct {
	Buckets []RawBucket `json:"buckets"`
}

// ByteSize approximates the payload size of the data message, counting
// one cell as eight bytes plus string content.  Used for the
// processed-bytes counter only.
func (d *QueryData) ByteSize() int64 {
	var n int64
	for i := range d.Buckets {
		n += d.Buckets[i].byteSize()
	}
	return n
}

// Clock is a uniform timestamp basis: Count samples starting at Start,
// Period apart.
type Clock struct {
	Start  time.Time     `json:"start"`
	Period time.Duration `json:"period"`
	Count  int           `json:"count"`
}

// Timestamps expands the clock into its explicit instant list.
func (c Clock) Timestamps() []time.Time {
	out := make([]time.Time, c.Count)
	for i := 0; i < c.Count; i++ {
		out[i] = c.Start.Add(time.Duration(i) * c.Period)
	}
	return out
}

// Interval returns the closed range [first, last] covered by the clock.
func (c Clock) Interval() interval.Interval {
	if c.Count < 1 {
		return interval.Point(c.Start)
	}
	return interval.Interval{
		Begin: c.Start,
		End:   c.Start.Add(time.Duration(c.Count-1) * c.Period),
	}
}

// Key returns the provenance identity of the clock.
func (c Clock) Key() ProvenanceKey {
	var buf [25]byte
	buf[0] = 'c'
	binary.BigEndian.PutUint64(buf[1:], uint64(c.Start.UnixNano()))
	binary.BigEndian.PutUint64(buf[9:], uint64(c.Period))
	binary.BigEndian.PutUint64(buf[17:], uint64(c.Count))
	return ProvenanceKey(buf[:])
}

// TimestampList is an explicit timestamp basis.
type TimestampList []time.Time

// Interval returns the closed range [first, last] of the list.
func (l TimestampList) Interval() interval.Interval {
	if len(l) == 0 {
		return interval.Interval{}
	}
	return interval.Interval{Begin: l[0], End: l[len(l)-1]}
}

// Key returns the provenance identity: the byte-serialized instant list.
// Two lists correlate only when byte-equal.
func (l TimestampList) Key() ProvenanceKey {
	buf := make([]byte, 1+8*len(l))
	buf[0] = 'l'
	for i, t := range l {
		binary.BigEndian.PutUint64(buf[1+8*i:], uint64(t.UnixNano()))
	}
	return ProvenanceKey(buf)
}

// ProvenanceKey is the hashable identity of a timestamp basis.
type ProvenanceKey string

// RawBucket is one column's samples for a contiguous time range,
// together with its timestamp provenance.  Buckets are immutable once
// received.
type RawBucket struct {
	// Source is the PV name the samples belong to.
	Source string `json:"source"`
	// Exactly one of Clock and Times describes the timestamp basis.
	Clock  *Clock        `json:"clock,omitempty"`
	Times  TimestampList `json:"times,omitempty"`
	Values []value.Value `json:"values"`
}

// Provenance returns the bucket's provenance key, failing with
// UnsupportedProvenance when the bucket carries neither basis.
func (b *RawBucket) Provenance() (ProvenanceKey, error) {
	switch {
	case b.Clock != nil:
		return b.Clock.Key(), nil
	case len(b.Times) > 0:
		return b.Times.Key(), nil
	}
	return "", qerr.Newf(qerr.UnsupportedProvenance, "bucket %q carries neither clock nor timestamp list", b.Source)
}

// SampleCount returns the number of samples the provenance promises.
func (b *RawBucket) SampleCount() int {
	if b.Clock != nil {
		return b.Clock.Count
	}
	return len(b.Times)
}

// Timestamps returns the bucket's instant list, expanding a clock basis.
func (b *RawBucket) Timestamps() []time.Time {
	if b.Clock != nil {
		return b.Clock.Timestamps()
	}
	return b.Times
}

func (b *RawBucket) byteSize() int64 {
	n := int64(len(b.Source))
	for i := range b.Values {
		n += 8
		if s, ok := b.Values[i].Str(); ok {
			n += int64(len(s))
		} else if raw, ok := b.Values[i].BytesVal(); ok {
			n += int64(len(raw))
		}
	}
	return n
}
