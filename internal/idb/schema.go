package idb

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DatabaseSchema describes a database, its version and the object stores
// created on upgrade.
type DatabaseSchema struct {
	Name         string              `json:"name" yaml:"name"`
	Version      uint64              `json:"version" yaml:"version"`
	ObjectStores []ObjectStoreSchema `json:"objectStores" yaml:"objectStores"`
}

type ObjectStoreSchema struct {
	Name    string             `json:"name" yaml:"name"`
	Options ObjectStoreOptions `json:"options" yaml:"options"`
	Indices []IndexSchema      `json:"indices" yaml:"indices"`
}

type ObjectStoreOptions struct {
	KeyPath       KeyPath `json:"keyPath,omitempty" yaml:"keyPath,omitempty"`
	AutoIncrement bool    `json:"autoIncrement,omitempty" yaml:"autoIncrement,omitempty"`
}

type IndexSchema struct {
	Name    string       `json:"name" yaml:"name"`
	KeyPath KeyPath      `json:"keyPath,omitempty" yaml:"keyPath,omitempty"`
	Options IndexOptions `json:"options" yaml:"options"`
}

type IndexOptions struct {
	Unique     bool `json:"unique,omitempty" yaml:"unique,omitempty"`
	MultiEntry bool `json:"multiEntry,omitempty" yaml:"multiEntry,omitempty"`
}

// Path is the index key path, the index name when none is given.
func (s IndexSchema) Path() KeyPath {
	if len(s.KeyPath) == 0 {
		return KeyPath{s.Name}
	}
	return s.KeyPath
}

// Validate checks the schema. A zero version is read as 1.
func (s *DatabaseSchema) Validate() error {
	if s == nil {
		return ErrNoSchema
	}
	if len(s.Name) == 0 {
		return fmt.Errorf("%w: database name is required", ErrInvalidSchema)
	}
	stores := make(map[string]bool)
	for _, st := range s.ObjectStores {
		if len(st.Name) == 0 {
			return fmt.Errorf("%w: object store name is required", ErrInvalidSchema)
		}
		if stores[st.Name] {
			return fmt.Errorf("%w: duplicate object store %q", ErrInvalidSchema, st.Name)
		}
		stores[st.Name] = true
		if err := st.Options.validate(); err != nil {
			return fmt.Errorf("object store %q: %w", st.Name, err)
		}
		indices := make(map[string]bool)
		for _, idx := range st.Indices {
			if len(idx.Name) == 0 {
				return fmt.Errorf("%w: index name is required in %q", ErrInvalidSchema, st.Name)
			}
			if indices[idx.Name] {
				return fmt.Errorf("%w: duplicate index %q in %q", ErrInvalidSchema, idx.Name, st.Name)
			}
			indices[idx.Name] = true
			if idx.Options.MultiEntry && idx.Path().Compound() {
				return fmt.Errorf("%w: multiEntry index %q with compound keyPath", ErrInvalidSchema, idx.Name)
			}
		}
	}
	return nil
}

func (o ObjectStoreOptions) validate() error {
	if o.AutoIncrement && (o.KeyPath.Compound() || (len(o.KeyPath) == 1 && o.KeyPath[0] == "")) {
		return fmt.Errorf("%w: autoIncrement requires a non empty scalar keyPath", ErrInvalidSchema)
	}
	return nil
}

// Clone returns a deep copy with defaults applied.
func (s *DatabaseSchema) Clone() *DatabaseSchema {
	if s == nil {
		return nil
	}
	c := &DatabaseSchema{
		Name:         s.Name,
		Version:      s.Version,
		ObjectStores: make([]ObjectStoreSchema, 0, len(s.ObjectStores)),
	}
	if c.Version == 0 {
		c.Version = 1
	}
	for _, st := range s.ObjectStores {
		cs := ObjectStoreSchema{
			Name: st.Name,
			Options: ObjectStoreOptions{
				KeyPath:       append(KeyPath(nil), st.Options.KeyPath...),
				AutoIncrement: st.Options.AutoIncrement,
			},
			Indices: make([]IndexSchema, 0, len(st.Indices)),
		}
		for _, idx := range st.Indices {
			cs.Indices = append(cs.Indices, IndexSchema{
				Name:    idx.Name,
				KeyPath: append(KeyPath(nil), idx.KeyPath...),
				Options: idx.Options,
			})
		}
		c.ObjectStores = append(c.ObjectStores, cs)
	}
	return c
}

// LoadSchema reads a schema file, YAML or JSON.
func LoadSchema(path string) (*DatabaseSchema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	schema := &DatabaseSchema{}
	if err := yaml.Unmarshal(data, schema); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSchema, err)
	}
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	return schema, nil
}
