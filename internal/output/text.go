package output

import (
	"fmt"
	"io"
	"strings"
)

// TextWriter emits the commit message by itself, ending with exactly one
// newline, so `quill generate | git commit -F -` works.
type TextWriter struct{}

func (t *TextWriter) Write(w io.Writer, report *Report) error {
	_, err := fmt.Fprintln(w, strings.TrimRight(report.Message, "\n"))
	return err
}
