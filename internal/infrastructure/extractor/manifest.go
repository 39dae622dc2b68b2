package extractor

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/gmontinny/ia-rag/internal/core/domain"
)

// ManifestEntry binds a source file to its law metadata.
type ManifestEntry struct {
	File       string `yaml:"file"`
	domain.Law `yaml:",inline"`
}

// Manifest is the optional laws.yaml file next to the sources:
//
//	laws:
//	  - file: lei_6437.pdf
//	    id: L6437
//	    title: Lei nº 6.437, de 20 de agosto de 1977
//	    type: lei
//	    date: "1977-08-20"
type Manifest struct {
	Laws []ManifestEntry `yaml:"laws"`

	byFile map[string]domain.Law
}

// LoadManifest reads a manifest file. A missing file yields an empty manifest.
func LoadManifest(path string) (*Manifest, error) {
	if strings.TrimSpace(path) == "" {
		return &Manifest{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Manifest{}, nil
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return ParseManifest(raw)
}

func ParseManifest(raw []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "parse manifest", err)
	}
	m.byFile = make(map[string]domain.Law, len(m.Laws))
	ids := make(map[string]string, len(m.Laws))
	for _, entry := range m.Laws {
		file := strings.TrimSpace(entry.File)
		if file == "" {
			return nil, domain.WrapError(domain.ErrInvalidInput, "parse manifest", fmt.Errorf("entry %q has no file", entry.ID))
		}
		law := entry.Law
		law.ID = strings.TrimSpace(law.ID)
		if err := domain.ValidateLawID(law.ID); err != nil {
			return nil, fmt.Errorf("manifest entry %s: %w", file, err)
		}
		if other, dup := ids[law.ID]; dup {
			return nil, domain.WrapError(domain.ErrInvalidInput, "parse manifest", fmt.Errorf("law id %s used by %s and %s", law.ID, other, file))
		}
		if _, dup := m.byFile[file]; dup {
			return nil, domain.WrapError(domain.ErrInvalidInput, "parse manifest", fmt.Errorf("file %s listed twice", file))
		}
		ids[law.ID] = file
		m.byFile[file] = law
	}
	return &m, nil
}

// Lookup returns the manifest metadata for a file name.
func (m *Manifest) Lookup(file string) (domain.Law, bool) {
	if m == nil || m.byFile == nil {
		return domain.Law{}, false
	}
	law, ok := m.byFile[file]
	return law, ok
}
