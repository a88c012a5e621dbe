package engine

import (
	"bytes"
	"unicode/utf8"

	"github.com/ncruces/go-sqlite3"
)

// columnReader is the subset of *sqlite3.Stmt the decoder needs.
type columnReader interface {
	ColumnCount() int
	ColumnName(col int) string
	ColumnType(col int) sqlite3.Datatype
	ColumnInt64(col int) int64
	ColumnFloat(col int) float64
	ColumnRawText(col int) []byte
	ColumnRawBlob(col int) []byte
}

// decodeColumn converts column col of the row the statement is positioned
// on. Dispatch is on the type of the current row, so a column may decode
// differently from one row to the next.
func decodeColumn(r columnReader, col int) (Value, error) {
	switch t := r.ColumnType(col); t {
	case sqlite3.NULL:
		return Null(), nil
	case sqlite3.INTEGER:
		return Integer(r.ColumnInt64(col)), nil
	case sqlite3.FLOAT:
		return Float(r.ColumnFloat(col)), nil
	case sqlite3.TEXT:
		raw := r.ColumnRawText(col)
		if !utf8.Valid(raw) {
			return Value{}, ErrInvalidText
		}
		return Text(string(raw)), nil
	case sqlite3.BLOB:
		// The raw slice aliases engine memory and is only valid until the
		// next step.
		return Blob(bytes.Clone(r.ColumnRawBlob(col))), nil
	default:
		return Value{}, &UnsupportedColumnTypeError{Type: int(t)}
	}
}

// decodeRow decodes every column of the current row.
func decodeRow(r columnReader) ([]Value, error) {
	n := r.ColumnCount()
	row := make([]Value, 0, n)
	for col := 0; col < n; col++ {
		v, err := decodeColumn(r, col)
		if err != nil {
			return nil, err
		}
		row = append(row, v)
	}
	return row, nil
}

func columnNames(r columnReader) ([]string, error) {
	n := r.ColumnCount()
	names := make([]string, 0, n)
	for col := 0; col < n; col++ {
		name := r.ColumnName(col)
		if !utf8.ValidString(name) {
			return nil, ErrInvalidColumnName
		}
		names = append(names, name)
	}
	return names, nil
}
