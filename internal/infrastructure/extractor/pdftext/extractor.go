package pdftext

import (
	"bytes"
	"fmt"
	"strings"

	pdflib "github.com/ledongthuc/pdf"

	"github.com/gmontinny/ia-rag/internal/core/domain"
	"github.com/gmontinny/ia-rag/internal/infrastructure/extractor/plaintext"
)

// Extractor reads the text layer of a PDF. Scanned documents without one are rejected.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Extract(raw []byte) (string, error) {
	reader, err := pdflib.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "open pdf", err)
	}

	var buf strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		buf.WriteString(text)
		buf.WriteString("\n")
	}

	text := plaintext.Normalize(buf.String())
	if text == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "extract pdf", fmt.Errorf("pdf has no text layer"))
	}
	return text, nil
}
