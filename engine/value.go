package engine

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Kind is the storage class of a decoded column value.
type Kind uint8

const (
	KindNull Kind = iota
	KindInteger
	KindFloat
	KindText
	KindBlob
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindText:
		return "text"
	case KindBlob:
		return "blob"
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is one decoded column of one row. Only the field matching Kind is
// meaningful.
type Value struct {
	Kind  Kind
	Int   int64
	Float float64
	Text  string
	Blob  []byte
}

func Null() Value            { return Value{Kind: KindNull} }
func Integer(i int64) Value  { return Value{Kind: KindInteger, Int: i} }
func Float(f float64) Value  { return Value{Kind: KindFloat, Float: f} }
func Text(s string) Value    { return Value{Kind: KindText, Text: s} }
func Blob(b []byte) Value    { return Value{Kind: KindBlob, Blob: b} }
func (v Value) IsNull() bool { return v.Kind == KindNull }

// Any returns the value as nil, int64, float64, string or []byte.
func (v Value) Any() any {
	switch v.Kind {
	case KindInteger:
		return v.Int
	case KindFloat:
		return v.Float
	case KindText:
		return v.Text
	case KindBlob:
		return v.Blob
	}
	return nil
}

// String renders the value for display. Blobs are shown as hex literals.
func (v Value) String() string {
	switch v.Kind {
	case KindInteger:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case KindText:
		return v.Text
	case KindBlob:
		return fmt.Sprintf("x'%x'", v.Blob)
	}
	return "NULL"
}

// wireValue is the JSON form of a non-null Value: exactly one field is set.
// Floats that JSON cannot represent are carried as strings.
type wireValue struct {
	Integer *int64          `json:"integer,omitempty"`
	Float   json.RawMessage `json:"float,omitempty"`
	Text    *string         `json:"text,omitempty"`
	Blob    *string         `json:"blob,omitempty"`
}

func (v Value) MarshalJSON() ([]byte, error) {
	var w wireValue
	switch v.Kind {
	case KindNull:
		return []byte("null"), nil
	case KindInteger:
		w.Integer = &v.Int
	case KindFloat:
		if math.IsInf(v.Float, 0) || math.IsNaN(v.Float) {
			w.Float = json.RawMessage(strconv.Quote(strconv.FormatFloat(v.Float, 'g', -1, 64)))
		} else {
			w.Float = json.RawMessage(strconv.FormatFloat(v.Float, 'g', -1, 64))
		}
	case KindText:
		w.Text = &v.Text
	case KindBlob:
		enc := base64.StdEncoding.EncodeToString(v.Blob)
		w.Blob = &enc
	default:
		return nil, fmt.Errorf("cannot marshal value of %s", v.Kind)
	}
	return json.Marshal(w)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = Null()
		return nil
	}
	var w wireValue
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch {
	case w.Integer != nil:
		*v = Integer(*w.Integer)
	case w.Float != nil:
		var f float64
		if len(w.Float) > 0 && w.Float[0] == '"' {
			var s string
			if err := json.Unmarshal(w.Float, &s); err != nil {
				return err
			}
			parsed, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return err
			}
			f = parsed
		} else if err := json.Unmarshal(w.Float, &f); err != nil {
			return err
		}
		*v = Float(f)
	case w.Text != nil:
		*v = Text(*w.Text)
	case w.Blob != nil:
		b, err := base64.StdEncoding.DecodeString(*w.Blob)
		if err != nil {
			return err
		}
		*v = Blob(b)
	default:
		return fmt.Errorf("value has no storage class: %s", data)
	}
	return nil
}
