// Package metadata maps role names, operation kinds and error kinds to their
// display metadata. A missing entry is an error the caller must handle.
package metadata

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/openlearn/admin-api/pkg/domain/shared"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Namespace groups metadata keys.
type Namespace string

const (
	NamespaceRole      Namespace = "roles"
	NamespaceOperation Namespace = "operations"
	NamespaceError     Namespace = "errors"
)

// Metadata is the display metadata of one key.
type Metadata struct {
	Label string `yaml:"label" json:"label"`
	Icon  string `yaml:"icon" json:"icon"`
	Color string `yaml:"color" json:"color"`
}

// MissingMetadataError is returned by Lookup when a key has no entry.
type MissingMetadataError struct {
	Namespace Namespace
	Key       string
}

func (e *MissingMetadataError) Error() string {
	return fmt.Sprintf("no %s metadata for %q", e.Namespace, e.Key)
}

// Unwrap makes a missing entry match shared.ErrNotFound.
func (e *MissingMetadataError) Unwrap() error {
	return shared.ErrNotFound
}

// IsMissing checks if err is a *MissingMetadataError.
func IsMissing(err error) bool {
	var m *MissingMetadataError
	return errors.As(err, &m)
}

var colorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// Catalog is an immutable metadata table.
type Catalog struct {
	entries map[Namespace]map[string]Metadata
}

// Default returns the catalog compiled into the binary.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("metadata: embedded catalog: %v", err))
	}
	return c
}

// Load reads a catalog file. An empty path returns the default catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	f, err := os.Open(path) //nolint:gosec // operator supplied path
	if err != nil {
		return nil, fmt.Errorf("open metadata catalog: %w", err)
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read metadata catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML catalog and validates every entry.
func Parse(data []byte) (*Catalog, error) {
	var raw map[Namespace]map[string]Metadata
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode metadata catalog: %v", shared.ErrValidation, err)
	}

	for ns, entries := range raw {
		switch ns {
		case NamespaceRole, NamespaceOperation, NamespaceError:
		default:
			return nil, fmt.Errorf("%w: unknown metadata namespace %q", shared.ErrValidation, ns)
		}
		for key, m := range entries {
			if m.Label == "" {
				return nil, fmt.Errorf("%w: %s.%s: label is required", shared.ErrValidation, ns, key)
			}
			if m.Color != "" && !colorPattern.MatchString(m.Color) {
				return nil, fmt.Errorf("%w: %s.%s: invalid color %q", shared.ErrValidation, ns, key, m.Color)
			}
		}
	}
	if raw == nil {
		raw = map[Namespace]map[string]Metadata{}
	}
	return &Catalog{entries: raw}, nil
}

// Lookup returns the metadata of key in ns, or a *MissingMetadataError.
func (c *Catalog) Lookup(ns Namespace, key string) (Metadata, error) {
	if m, ok := c.entries[ns][key]; ok {
		return m, nil
	}
	return Metadata{}, &MissingMetadataError{Namespace: ns, Key: key}
}

// Role looks up role metadata.
func (c *Catalog) Role(name string) (Metadata, error) {
	return c.Lookup(NamespaceRole, name)
}

// Operation looks up bulk operation kind metadata.
func (c *Catalog) Operation(kind string) (Metadata, error) {
	return c.Lookup(NamespaceOperation, kind)
}

// Error looks up error kind metadata.
func (c *Catalog) Error(kind string) (Metadata, error) {
	return c.Lookup(NamespaceError, kind)
}

// Missing returns the keys that have no entry in ns.
func (c *Catalog) Missing(ns Namespace, keys ...string) []string {
	var out []string
	for _, k := range keys {
		if _, ok := c.entries[ns][k]; !ok {
			out = append(out, k)
		}
	}
	return out
}
