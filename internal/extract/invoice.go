package extract

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Invoice is the structured record read from one invoice. Field values are
// kept as the model returned them and interpreted by the consumer.
type Invoice struct {
	Company   Value  `json:"nombre_empresa"`
	Number    Value  `json:"numero_factura"`
	IssueDate Value  `json:"fecha_emision"`
	Lines     []Line `json:"productos"`
	Total     Value  `json:"total_factura"`
}

// Line is one product line of an invoice.
type Line struct {
	Name      Value `json:"nombre"`
	Quantity  Value `json:"cantidad"`
	UnitPrice Value `json:"precio_unitario"`
	Total     Value `json:"total_por_producto"`
}

// Value holds an untyped JSON value. The zero Value is absent.
type Value struct {
	raw json.RawMessage
}

// V builds a Value from a Go value. It is meant for tests and callers that
// construct invoices directly.
func V(v any) Value {
	b, err := json.Marshal(v)
	if err != nil {
		return Value{}
	}
	return Value{raw: b}
}

func (v *Value) UnmarshalJSON(b []byte) error {
	v.raw = append(json.RawMessage(nil), b...)
	return nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.IsNull() {
		return []byte("null"), nil
	}
	return v.raw, nil
}

// IsNull reports whether the value is absent or JSON null.
func (v Value) IsNull() bool {
	return len(v.raw) == 0 || bytes.Equal(bytes.TrimSpace(v.raw), []byte("null"))
}

// Any decodes the value. Numbers are returned as json.Number so that no
// precision is lost before normalization.
func (v Value) Any() any {
	if v.IsNull() {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(v.raw))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil
	}
	return out
}

// Text renders strings and numbers as text. Other kinds yield "".
func (v Value) Text() string {
	switch x := v.Any().(type) {
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return x.String()
	default:
		return ""
	}
}
