// Package query is the entry point of the pipeline: request validation,
// orchestration of the streaming stages, and table selection.
package query

import (
	"time"

	"github.com/osprey-dcs/dp-query/qerr"
	"github.com/osprey-dcs/dp-query/wire"
)

// Mode is the caller's preferred request transport.
type Mode int

// Request modes.
const (
	Unary Mode = iota
	ServerStream
	BidiStream
)

func (m Mode) String() string {
	switch m {
	case Unary:
		return "unary"
	case ServerStream:
		return "server"
	case BidiStream:
		return "bidi"
	}
	return "unknown"
}

// Request is a user-level data request.
type Request struct {
	// ID is an optional caller-assigned opaque identifier.  The facade
	// stamps one when empty.
	ID string
	// Mode is the preferred stream mode.
	Mode Mode
	// Begin and End bound the closed time range, Begin <= End.
	Begin time.Time
	End   time.Time
	// PvNames is the non-empty list of process variables to recover.
	PvNames []string
}

// Validate applies the request surface rules.
func (r Request) Validate() error {
	if len(r.PvNames) == 0 {
		return qerr.New(qerr.InvalidRequest, "empty request: no PV names")
	}
	for _, name := range r.PvNames {
		if name == "" {
			return qerr.New(qerr.InvalidRequest, "empty PV name")
		}
	}
	if r.End.Before(r.Begin) {
		return qerr.Newf(qerr.InvalidRequest,
			"invalid range: end %s precedes begin %s", r.End, r.Begin)
	}
	switch r.Mode {
	case Unary, ServerStream, BidiStream:
	default:
		return qerr.Newf(qerr.InvalidRequest, "invalid stream mode %d", int(r.Mode))
	}
	return nil
}

// validateForStreaming additionally rejects the unary mode on streaming
// entry points.
func (r Request) validateForStreaming() error {
	if err := r.Validate(); err != nil {
		return err
	}
	if r.Mode == Unary {
		return qerr.New(qerr.InvalidRequest, "invalid stream mode: unary request on a streaming operation")
	}
	return nil
}

// toWire converts the request to its transport form.
func (r Request) toWire() *wire.QueryRequest {
	return &wire.QueryRequest{
		RequestID: r.ID,
		Begin:     r.Begin,
		End:       r.End,
		PvNames:   append([]string(nil), r.PvNames...),
	}
}
