package plaintext

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/gmontinny/ia-rag/internal/core/domain"
)

type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract decodes a text file. Invalid UTF-8 is read as Windows-1252,
// the usual encoding of legacy Brazilian government documents.
func (e *Extractor) Extract(raw []byte) (string, error) {
	text, err := DecodeText(raw)
	if err != nil {
		return "", err
	}
	return Normalize(text), nil
}

func DecodeText(raw []byte) (string, error) {
	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))
	if utf8.Valid(raw) {
		return string(raw), nil
	}
	if bytes.IndexByte(raw, 0) >= 0 {
		return "", domain.WrapError(domain.ErrInvalidInput, "decode text", fmt.Errorf("binary content"))
	}
	decoded, err := charmap.Windows1252.NewDecoder().Bytes(raw)
	if err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "decode text", err)
	}
	return string(decoded), nil
}

var (
	blankRunRe  = regexp.MustCompile(`\n{3,}`)
	inlineRunRe = regexp.MustCompile(`[ \t\f\v\x{00A0}]+`)
)

// Normalize unifies line endings, collapses inline whitespace and keeps at most one blank line.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(inlineRunRe.ReplaceAllString(line, " "))
	}
	text = strings.Join(lines, "\n")
	text = blankRunRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
