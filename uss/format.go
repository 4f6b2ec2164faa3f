package uss

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// FormatValues returns stylesheet text for property value list.
func (s *Sheet) FormatValues(values []Handle) string {
	parts := make([]string, 0, len(values))
	for i := 0; i < len(values); i++ {
		h := values[i]
		if name, ok := s.ReferenceName(h); ok {
			if i+1 < len(values) && values[i+1].IsLiteral() {
				fb, _ := s.Literal(values[i+1])
				parts = append(parts, fmt.Sprintf("var(%s, %s)", name, fb))
				i++
				continue
			}
			parts = append(parts, fmt.Sprintf("var(%s)", name))
			continue
		}
		if v, ok := s.Literal(h); ok {
			parts = append(parts, v.String())
			continue
		}
		parts = append(parts, fmt.Sprintf("/* bad %s handle %d */", h.Type, h.Index))
	}
	return strings.Join(parts, " ")
}

// WriteTo writes sheet as stylesheet text.
func (s *Sheet) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: bufio.NewWriter(w)}
	for ri, r := range s.Rules {
		if ri > 0 {
			cw.printf("\n")
		}
		selectors := s.SelectorsOf(ri)
		if len(selectors) == 0 {
			cw.printf("/* rule %d */ {\n", ri)
		} else {
			cw.printf("%s {\n", strings.Join(selectors, ", "))
		}
		for _, p := range r.Properties {
			cw.printf("    %s: %s;\n", p.Name, s.FormatValues(p.Values))
		}
		cw.printf("}\n")
	}
	if cw.err == nil {
		cw.err = cw.w.Flush()
	}
	return cw.n, cw.err
}

// String returns sheet as stylesheet text.
func (s *Sheet) String() string {
	var b strings.Builder
	_, _ = s.WriteTo(&b)
	return b.String()
}

type countingWriter struct {
	w   *bufio.Writer
	n   int64
	err error
}

func (cw *countingWriter) printf(format string, args ...any) {
	if cw.err != nil {
		return
	}
	n, err := fmt.Fprintf(cw.w, format, args...)
	cw.n += int64(n)
	cw.err = err
}
