package analysis

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// TemplateStore holds the named instruction templates, loaded once at
// startup from a directory of plain-text files. The filename stem is the
// template name.
type TemplateStore struct {
	templates map[string]string
}

// LoadTemplates reads every .txt file in dir into the store.
func LoadTemplates(dir string, logger *logrus.Logger) (*TemplateStore, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read templates directory: %w", err)
	}

	store := &TemplateStore{templates: make(map[string]string)}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}
		body, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read template %s: %w", entry.Name(), err)
		}
		name := strings.TrimSuffix(entry.Name(), ".txt")
		store.templates[name] = strings.TrimSpace(string(body))
		logger.WithField("template", name).Info("Loaded template")
	}
	return store, nil
}

// Get returns the template body for name, or ErrTemplateNotFound.
func (s *TemplateStore) Get(name string) (string, error) {
	body, ok := s.templates[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}
	return body, nil
}

// Names returns the loaded template names.
func (s *TemplateStore) Names() []string {
	names := make([]string, 0, len(s.templates))
	for name := range s.templates {
		names = append(names, name)
	}
	return names
}
