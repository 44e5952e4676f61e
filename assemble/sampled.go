// Package assemble materializes super domains and single correlated
// blocks into dense sampled blocks.
package assemble

import (
	"time"

	"github.com/osprey-dcs/dp-query/interval"
	"github.com/osprey-dcs/dp-query/qerr"
	"github.com/osprey-dcs/dp-query/value"
)

// SampledBlock is a dense materialization of one coherent time base:
// an ordered timestamp vector of size N, an ordered PV list of size M,
// and an N×M value matrix.  Missing cells hold the absent sentinel.
// Immutable after construction.
type SampledBlock struct {
	times  []time.Time
	pvs    []string
	matrix [][]value.Value
	index  map[string]int
	types  map[string]value.Type
	span   interval.Interval
}

// newSampledBlock wires the three column views from one source vector in
// a single pass.  The matrix must already be N×M with homogeneous
// column types.
func newSampledBlock(times []time.Time, pvs []string, types map[string]value.Type, matrix [][]value.Value) *SampledBlock {
	index := make(map[string]int, len(pvs))
	for i, name := range pvs {
		index[name] = i
	}
	return &SampledBlock{
		times:  times,
		pvs:    pvs,
		matrix: matrix,
		index:  index,
		types:  types,
		span:   interval.Interval{Begin: times[0], End: times[len(times)-1]},
	}
}

// RowCount returns N.
func (s *SampledBlock) RowCount() int { return len(s.times) }

// ColumnCount returns M.
func (s *SampledBlock) ColumnCount() int { return len(s.pvs) }

// Timestamps returns the ordered timestamp vector.
func (s *SampledBlock) Timestamps() []time.Time { return s.times }

// PvNames returns the ordered PV list.
func (s *SampledBlock) PvNames() []string { return s.pvs }

// Interval returns [T[0], T[N-1]].
func (s *SampledBlock) Interval() interval.Interval { return s.span }

// Start returns the first timestamp.
func (s *SampledBlock) Start() time.Time { return s.span.Begin }

// Value returns the cell at (row, col).
func (s *SampledBlock) Value(row, col int) value.Value {
	return s.matrix[row][col]
}

// Row returns one matrix row.  Callers must not modify it.
func (s *SampledBlock) Row(row int) []value.Value {
	return s.matrix[row]
}

// HasColumn reports whether the named PV exists.
func (s *SampledBlock) HasColumn(name string) bool {
	_, ok := s.index[name]
	return ok
}

// ColumnIndex returns the column position of the named PV.
func (s *SampledBlock) ColumnIndex(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

// TypeOf returns the agreed type of the named column.
func (s *SampledBlock) TypeOf(name string) (value.Type, bool) {
	t, ok := s.types[name]
	return t, ok
}

// Column copies out one column's cells.
func (s *SampledBlock) Column(col int) []value.Value {
	out := make([]value.Value, len(s.times))
	for i := range s.matrix {
		out[i] = s.matrix[i][col]
	}
	return out
}

// columnType resolves the type a source contributes: the type of its
// first present sample.  A column of only absent cells reports false.
func columnType(values []value.Value) (value.Type, bool) {
	for _, v := range values {
		if !v.IsAbsent() {
			return v.Type(), true
		}
	}
	return value.TypeInvalid, false
}

// checkHomogeneous rejects a source column whose present samples
// disagree on type.
func checkHomogeneous(source string, values []value.Value) (value.Type, error) {
	t, ok := columnType(values)
	if !ok {
		return value.TypeInvalid, nil
	}
	for _, v := range values {
		if !v.IsAbsent() && v.Type() != t {
			return value.TypeInvalid, qerr.Newf(qerr.InconsistentType,
				"column %q mixes %v and %v samples", source, t, v.Type())
		}
	}
	return t, nil
}
