// Package pdf extracts raw text from uploaded PDFs. Extraction quality is the
// upstream concern; the pipeline consumes whatever text comes out.
package pdf

import (
	"strings"

	"rsc.io/pdf"
)

// ExtractText pulls the text content of every page, separated by page-break
// markers so chunk metadata can carry page numbers.
func ExtractText(path string) ([]string, error) {
	r, err := pdf.Open(path)
	if err != nil {
		return nil, err
	}
	pages := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		var sb strings.Builder
		for _, t := range p.Content().Text {
			sb.WriteString(strings.ReplaceAll(t.S, "\x00", ""))
		}
		pages = append(pages, sb.String())
	}
	return pages, nil
}

// Sanitize collapses control characters and runs of whitespace, keeping
// paragraph breaks intact for the chunker's boundary detection.
func Sanitize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.ReplaceAll(s, "\t", " ")

	paras := strings.Split(s, "\n\n")
	for i, p := range paras {
		paras[i] = strings.Join(strings.Fields(p), " ")
	}
	out := make([]string, 0, len(paras))
	for _, p := range paras {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "\n\n")
}
