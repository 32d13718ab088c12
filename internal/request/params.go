package request

import (
	"net/url"
	"strings"
)

// Field is one form field.
type Field struct {
	Name  string
	Value string
}

// Params is an ordered list of form fields. Order is preserved on encoding so
// that identical inputs always produce identical bodies.
type Params []Field

// Add appends a field.
func (p *Params) Add(name, value string) {
	*p = append(*p, Field{Name: name, Value: value})
}

// Get returns the first value for name.
func (p Params) Get(name string) (string, bool) {
	for _, f := range p {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// Encode form-encodes the fields in order.
func (p Params) Encode() string {
	var b strings.Builder
	for i, f := range p {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(f.Name))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(f.Value))
	}
	return b.String()
}
