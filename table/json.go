package table

import (
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// jsonDoc is the row-oriented export shape.
type jsonDoc struct {
	Columns []jsonColumn             `json:"columns"`
	Rows    []map[string]interface{} `json:"rows"`
}

type jsonColumn struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// ToJSON renders any table flavor as a row-oriented JSON document.
// Each row carries its timestamp under "ts" (unix nanoseconds) and one
// entry per column; absent cells render as null.
func ToJSON(t Table) ([]byte, error) {
	doc := jsonDoc{
		Columns: make([]jsonColumn, 0, t.ColumnCount()),
		Rows:    make([]map[string]interface{}, 0, t.RowCount()),
	}
	cols := make([]Column, 0, t.ColumnCount())
	for i, name := range t.ColumnNames() {
		col, err := t.Column(i)
		if err != nil {
			return nil, errors.Wrapf(err, "exporting column %q", name)
		}
		cols = append(cols, col)
		doc.Columns = append(doc.Columns, jsonColumn{Name: name, Type: col.Type.String()})
	}
	for r := 0; r < t.RowCount(); r++ {
		ts, err := t.Timestamp(r)
		if err != nil {
			return nil, errors.Wrapf(err, "exporting row %d", r)
		}
		row := make(map[string]interface{}, len(cols)+1)
		row["ts"] = ts.UnixNano()
		for _, col := range cols {
			row[col.Name] = col.Values[r].Interface()
		}
		doc.Rows = append(doc.Rows, row)
	}
	return json.Marshal(doc)
}
