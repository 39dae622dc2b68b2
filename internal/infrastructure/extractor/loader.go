package extractor

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gmontinny/ia-rag/internal/core/domain"
	"github.com/gmontinny/ia-rag/internal/core/ports"
	"github.com/gmontinny/ia-rag/internal/infrastructure/extractor/htmltext"
	"github.com/gmontinny/ia-rag/internal/infrastructure/extractor/pdftext"
	"github.com/gmontinny/ia-rag/internal/infrastructure/extractor/plaintext"
)

// maxSourceBytes bounds a single source file.
const maxSourceBytes = 64 << 20

type textExtractor interface {
	Extract(raw []byte) (string, error)
}

// Loader reads law sources from object storage and resolves their metadata.
type Loader struct {
	storage    ports.ObjectStorage
	manifest   *Manifest
	extractors map[string]textExtractor
}

func NewLoader(storage ports.ObjectStorage, manifest *Manifest) *Loader {
	if manifest == nil {
		manifest = &Manifest{}
	}
	html := htmltext.NewExtractor()
	return &Loader{
		storage:  storage,
		manifest: manifest,
		extractors: map[string]textExtractor{
			".html": html,
			".htm":  html,
			".pdf":  pdftext.NewExtractor(),
			".txt":  plaintext.NewExtractor(),
		},
	}
}

// List returns the supported source files.
func (l *Loader) List(ctx context.Context) ([]string, error) {
	names, err := l.storage.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(names))
	for _, name := range names {
		if _, ok := l.extractors[strings.ToLower(filepath.Ext(name))]; ok {
			out = append(out, name)
		}
	}
	return out, nil
}

func (l *Loader) Load(ctx context.Context, name string) (domain.SourceDocument, error) {
	ext := strings.ToLower(filepath.Ext(name))
	extractor, ok := l.extractors[ext]
	if !ok {
		return domain.SourceDocument{}, domain.WrapError(domain.ErrInvalidInput, "load source", fmt.Errorf("unsupported file type %q", name))
	}

	rc, err := l.storage.Open(ctx, name)
	if err != nil {
		return domain.SourceDocument{}, err
	}
	defer rc.Close()

	raw, err := io.ReadAll(io.LimitReader(rc, maxSourceBytes+1))
	if err != nil {
		return domain.SourceDocument{}, fmt.Errorf("read %s: %w", name, err)
	}
	if len(raw) > maxSourceBytes {
		return domain.SourceDocument{}, domain.WrapError(domain.ErrInvalidInput, "load source", fmt.Errorf("%s exceeds %d bytes", name, maxSourceBytes))
	}

	text, err := extractor.Extract(raw)
	if err != nil {
		return domain.SourceDocument{}, fmt.Errorf("extract %s: %w", name, err)
	}

	law, ok := l.manifest.Lookup(name)
	if !ok {
		law = domain.Law{ID: LawIDFromFile(name)}
	}
	if strings.TrimSpace(law.Title) == "" {
		if ext == ".html" || ext == ".htm" {
			law.Title = htmltext.Title(raw)
		}
		if strings.TrimSpace(law.Title) == "" {
			law.Title = strings.TrimSuffix(name, filepath.Ext(name))
		}
	}
	return domain.SourceDocument{Law: law, Text: text, SourcePath: name}, nil
}

// LawIDFromFile derives a law id from a file stem, replacing characters ids cannot hold.
func LawIDFromFile(name string) string {
	stem := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	return strings.Map(func(r rune) rune {
		switch r {
		case ':', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, strings.TrimSpace(stem))
}
