package components

import (
	"context"
	"io"

	"github.com/a-h/templ"
)

// Writer writes markup and escaped text, keeping the first error.
type Writer struct {
	w   io.Writer
	err error
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Raw writes trusted markup as is.
func (x *Writer) Raw(s string) {
	if x.err != nil {
		return
	}
	_, x.err = io.WriteString(x.w, s)
}

// Text writes s HTML-escaped. It is safe for text nodes and quoted
// attribute values.
func (x *Writer) Text(s string) {
	x.Raw(templ.EscapeString(s))
}

// URL writes a sanitized href or src value.
func (x *Writer) URL(s string) {
	x.Text(string(templ.URL(s)))
}

// Render writes a child component in place.
func (x *Writer) Render(ctx context.Context, c templ.Component) {
	if x.err != nil || c == nil {
		return
	}
	x.err = c.Render(ctx, x.w)
}

func (x *Writer) Err() error {
	return x.err
}
