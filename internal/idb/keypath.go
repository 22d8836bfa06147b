package idb

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// KeyPath locates a key inside a value. One element is a scalar path,
// possibly dotted ("a.b"); more elements build an array key. The empty
// path "" designates the value itself.
type KeyPath []string

func (p KeyPath) IsZero() bool {
	return len(p) == 0
}

func (p KeyPath) Compound() bool {
	return len(p) > 1
}

func (p KeyPath) String() string {
	if len(p) == 1 {
		return p[0]
	}
	return "[" + strings.Join(p, ",") + "]"
}

func (p KeyPath) MarshalJSON() ([]byte, error) {
	switch len(p) {
	case 0:
		return []byte("null"), nil
	case 1:
		return json.Marshal(p[0])
	}
	return json.Marshal([]string(p))
}

func (p *KeyPath) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*p = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*p = KeyPath{s}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("%w: keyPath must be a string or a list of strings", ErrInvalidSchema)
	}
	*p = list
	return nil
}

func (p *KeyPath) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Tag == "!!null" {
			*p = nil
			return nil
		}
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		*p = KeyPath{s}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		*p = list
		return nil
	}
	return fmt.Errorf("%w: keyPath must be a string or a list of strings", ErrInvalidSchema)
}

// Extract evaluates the path against value. ok is false when some
// component is missing or is not a valid key.
func (p KeyPath) Extract(value interface{}) (interface{}, bool) {
	switch len(p) {
	case 0:
		return nil, false
	case 1:
		k, ok := lookup(value, p[0])
		if !ok || !ValidKey(k) {
			return nil, false
		}
		return k, true
	}
	keys := make([]interface{}, 0, len(p))
	for _, path := range p {
		k, ok := lookup(value, path)
		if !ok || !ValidKey(k) {
			return nil, false
		}
		keys = append(keys, k)
	}
	return keys, true
}

func lookup(value interface{}, path string) (interface{}, bool) {
	if path == "" {
		return value, value != nil
	}
	current := value
	for _, step := range strings.Split(path, ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		if current, ok = m[step]; !ok {
			return nil, false
		}
	}
	return current, current != nil
}

// Inject writes key into value at a scalar path, creating intermediate
// objects.
func (p KeyPath) Inject(value interface{}, key interface{}) error {
	if len(p) != 1 || p[0] == "" {
		return fmt.Errorf("%w: cannot inject key at path %s", ErrData, p)
	}
	m, ok := value.(map[string]interface{})
	if !ok {
		return fmt.Errorf("%w: value is not an object", ErrData)
	}
	steps := strings.Split(p[0], ".")
	for _, step := range steps[:len(steps)-1] {
		next, ok := m[step]
		if !ok {
			child := make(map[string]interface{})
			m[step] = child
			m = child
			continue
		}
		if m, ok = next.(map[string]interface{}); !ok {
			return fmt.Errorf("%w: %q is not an object", ErrData, step)
		}
	}
	m[steps[len(steps)-1]] = key
	return nil
}
