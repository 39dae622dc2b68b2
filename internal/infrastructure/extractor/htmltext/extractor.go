package htmltext

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"

	"github.com/gmontinny/ia-rag/internal/core/domain"
	"github.com/gmontinny/ia-rag/internal/infrastructure/extractor/plaintext"
)

// Extractor turns an HTML page into plain text with one block element per line.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

var skipped = map[string]bool{
	"script": true, "style": true, "noscript": true, "head": true, "template": true,
}

var blocks = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true, "table": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"section": true, "article": true, "blockquote": true, "pre": true, "hr": true,
	"ul": true, "ol": true, "center": true, "body": true,
}

func (e *Extractor) Extract(raw []byte) (string, error) {
	reader, err := charset.NewReader(bytes.NewReader(raw), "")
	if err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "decode html", err)
	}
	doc, err := html.Parse(reader)
	if err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "parse html", err)
	}

	var buf strings.Builder
	walk(doc, &buf)
	text := plaintext.Normalize(buf.String())
	if text == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "extract html", fmt.Errorf("document has no text"))
	}
	return text, nil
}

// Title returns the <title> content, if any.
func Title(raw []byte) string {
	doc, err := html.Parse(bytes.NewReader(raw))
	if err != nil {
		return ""
	}
	var find func(*html.Node) string
	find = func(n *html.Node) string {
		if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
			return strings.TrimSpace(n.FirstChild.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if t := find(c); t != "" {
				return t
			}
		}
		return ""
	}
	return find(doc)
}

func walk(n *html.Node, buf *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		buf.WriteString(strings.ReplaceAll(n.Data, "\n", " "))
		return
	case html.ElementNode:
		if skipped[n.Data] {
			return
		}
		if blocks[n.Data] {
			buf.WriteString("\n")
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, buf)
	}
	if n.Type == html.ElementNode && blocks[n.Data] {
		buf.WriteString("\n")
	}
}
