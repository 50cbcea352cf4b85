package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Loader resolves schema documents by entity name through a layered lookup
// path. A document in a later path overrides one in an earlier path, so
// deployments can customize base schemas without editing them.
type Loader struct {
	paths []string
}

func NewLoader(paths []string) *Loader {
	return &Loader{paths: paths}
}

// Paths returns the lookup path in order.
func (l *Loader) Paths() []string { return l.paths }

// Load reads and parses the document for an entity. It does not validate;
// the service orchestrates validation so all problems surface together.
func (l *Loader) Load(name string) (*Document, error) {
	file, ok := l.resolve(name)
	if !ok {
		return nil, &NotFoundError{Entity: name, Searched: l.paths}
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", file, err)
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ValidationError{Entity: name, Problems: []string{fmt.Sprintf("parse %s: %v", filepath.Base(file), err)}}
	}

	doc.applyDefaults()
	return &doc, nil
}

// Exists reports whether a document resolves for the entity. Used to probe
// through-relation targets before any query runs.
func (l *Loader) Exists(name string) bool {
	_, ok := l.resolve(name)
	return ok
}

// resolve walks the lookup path from the last (highest-priority) entry.
func (l *Loader) resolve(name string) (string, bool) {
	if !validEntityName(name) {
		return "", false
	}
	for i := len(l.paths) - 1; i >= 0; i-- {
		for _, ext := range []string{".yaml", ".yml"} {
			file := filepath.Join(l.paths[i], name+ext)
			if info, err := os.Stat(file); err == nil && !info.IsDir() {
				return file, true
			}
		}
	}
	return "", false
}

// validEntityName rejects names that could escape the schema directories.
func validEntityName(name string) bool {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return false
	}
	return true
}
