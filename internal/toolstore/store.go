// Package toolstore reads stored tool records from a directory of YAML files
// and combines them with the platform tools.
package toolstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/toolzflow/toolbridge/internal/openapi"
)

// record is the on-disk form of a tool. Schema may be an inline mapping or
// a string holding JSON or YAML; custom_headers may be a mapping or a JSON
// string.
type record struct {
	ID            string    `yaml:"id"`
	Name          string    `yaml:"name"`
	Description   string    `yaml:"description"`
	Schema        yaml.Node `yaml:"schema"`
	CustomHeaders yaml.Node `yaml:"custom_headers"`
}

// Store loads ToolSpecs from dir. The directory is re-read on every call.
type Store struct {
	dir string
}

// NewStore creates a store over dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the directory the store reads.
func (s *Store) Dir() string { return s.dir }

// List returns every stored tool sorted by file name. Files that fail to
// parse are logged and skipped; a missing directory is an empty store.
func (s *Store) List() ([]openapi.ToolSpec, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read tools dir %s: %w", s.dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	seen := make(map[string]string, len(names))
	specs := make([]openapi.ToolSpec, 0, len(names))
	for _, name := range names {
		path := filepath.Join(s.dir, name)
		spec, err := LoadFile(path)
		if err != nil {
			slog.Warn("skipping tool file", slog.String("file", path), slog.Any("error", err))
			continue
		}
		if prev, ok := seen[spec.ID]; ok {
			slog.Warn("duplicate tool id, keeping first",
				slog.String("id", spec.ID),
				slog.String("file", path),
				slog.String("kept", prev))
			continue
		}
		seen[spec.ID] = path
		specs = append(specs, spec)
	}
	return specs, nil
}

// Get returns the stored tool with the given ID.
func (s *Store) Get(id string) (openapi.ToolSpec, bool, error) {
	specs, err := s.List()
	if err != nil {
		return openapi.ToolSpec{}, false, err
	}
	for _, sp := range specs {
		if sp.ID == id {
			return sp, true, nil
		}
	}
	return openapi.ToolSpec{}, false, nil
}

// LoadFile parses one tool file.
func LoadFile(path string) (openapi.ToolSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return openapi.ToolSpec{}, fmt.Errorf("read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a tool record. A record without an id gets one derived
// from its name, so the id is stable across restarts.
func Parse(data []byte) (openapi.ToolSpec, error) {
	var rec record
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return openapi.ToolSpec{}, fmt.Errorf("parse tool record: %w", err)
	}
	if rec.Name == "" {
		return openapi.ToolSpec{}, fmt.Errorf("tool record has no name")
	}

	schema, err := nodeText(&rec.Schema)
	if err != nil {
		return openapi.ToolSpec{}, fmt.Errorf("tool %s: schema: %w", rec.Name, err)
	}
	headers, err := headerText(&rec.CustomHeaders)
	if err != nil {
		return openapi.ToolSpec{}, fmt.Errorf("tool %s: custom_headers: %w", rec.Name, err)
	}

	id := strings.TrimSpace(rec.ID)
	if id == "" {
		id = uuid.NewSHA1(uuid.NameSpaceURL, []byte("toolbridge:"+rec.Name)).String()
	}
	return openapi.ToolSpec{
		ID:            id,
		Name:          rec.Name,
		Description:   rec.Description,
		Schema:        schema,
		CustomHeaders: headers,
	}, nil
}

// nodeText returns a scalar as-is and re-encodes a mapping as YAML.
func nodeText(n *yaml.Node) (string, error) {
	switch n.Kind {
	case 0:
		return "", nil
	case yaml.ScalarNode:
		if n.Tag == "!!null" {
			return "", nil
		}
		return n.Value, nil
	case yaml.MappingNode:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(n); err != nil {
			return "", err
		}
		if err := enc.Close(); err != nil {
			return "", err
		}
		return buf.String(), nil
	}
	return "", fmt.Errorf("expected a mapping or a string")
}

// headerText returns a scalar as-is and encodes a mapping as the JSON
// object string the dispatcher expects.
func headerText(n *yaml.Node) (string, error) {
	switch n.Kind {
	case 0:
		return "", nil
	case yaml.ScalarNode:
		if n.Tag == "!!null" {
			return "", nil
		}
		return n.Value, nil
	case yaml.MappingNode:
		var m map[string]string
		if err := n.Decode(&m); err != nil {
			return "", err
		}
		b, err := json.Marshal(m)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	return "", fmt.Errorf("expected a mapping or a JSON string")
}
