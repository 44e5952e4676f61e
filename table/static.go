package table

import (
	"time"

	"github.com/osprey-dcs/dp-query/value"
)

// Static is the fully populated table: one contiguous matrix with every
// block concatenated and every block extended with absent columns for
// PVs it lacks.
type Static struct {
	names  []string
	index  map[string]int
	types  map[string]value.Type
	times  []time.Time
	matrix [][]value.Value
}

var _ Table = (*Static)(nil)

func newStatic(a *Aggregate) *Static {
	s := &Static{
		names:  append([]string(nil), a.pvs...),
		index:  make(map[string]int, len(a.pvs)),
		types:  a.types,
		times:  make([]time.Time, 0, a.RowCount()),
		matrix: make([][]value.Value, 0, a.RowCount()),
	}
	for i, name := range s.names {
		s.index[name] = i
	}
	for _, blk := range a.blocks {
		// Map block columns onto the union once per block.
		colMap := make([]int, len(s.names))
		for j, name := range s.names {
			if bj, ok := blk.ColumnIndex(name); ok {
				colMap[j] = bj
			} else {
				colMap[j] = -1
			}
		}
		for r := 0; r < blk.RowCount(); r++ {
			src := blk.Row(r)
			row := make([]value.Value, len(s.names))
			for j := range s.names {
				if colMap[j] >= 0 {
					row[j] = src[colMap[j]]
				} else {
					row[j] = value.Absent
				}
			}
			s.matrix = append(s.matrix, row)
		}
		s.times = append(s.times, blk.Timestamps()...)
	}
	return s
}

// RowCount implements Table.
func (s *Static) RowCount() int { return len(s.times) }

// ColumnCount implements Table.
func (s *Static) ColumnCount() int { return len(s.names) }

// ColumnNames implements Table.
func (s *Static) ColumnNames() []string { return s.names }

// Timestamps implements Table.
func (s *Static) Timestamps() []time.Time { return s.times }

// Timestamp implements Table.
func (s *Static) Timestamp(row int) (time.Time, error) {
	if row < 0 || row >= len(s.times) {
		return time.Time{}, errRowRange
	}
	return s.times[row], nil
}

// HasColumn implements Table.
func (s *Static) HasColumn(name string) bool {
	_, ok := s.index[name]
	return ok
}

// Column implements Table.
func (s *Static) Column(col int) (Column, error) {
	if col < 0 || col >= len(s.names) {
		return Column{}, errColRange
	}
	name := s.names[col]
	vals := make([]value.Value, len(s.matrix))
	for i := range s.matrix {
		vals[i] = s.matrix[i][col]
	}
	return Column{Name: name, Type: s.types[name], Values: vals}, nil
}

// ColumnByName implements Table.
func (s *Static) ColumnByName(name string) (Column, error) {
	col, ok := s.index[name]
	if !ok {
		return Column{}, errColRange
	}
	return s.Column(col)
}

// Value implements Table.
func (s *Static) Value(row, col int) (value.Value, error) {
	if row < 0 || row >= len(s.matrix) {
		return value.Absent, errRowRange
	}
	if col < 0 || col >= len(s.names) {
		return value.Absent, errColRange
	}
	return s.matrix[row][col], nil
}
