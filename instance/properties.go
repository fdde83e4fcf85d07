package instance

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Properties is an ordered string-keyed map of dynamically typed values.
// Iteration and JSON encoding follow insertion order; setting an existing
// key updates the value without moving the key.
//
// Properties is not safe for concurrent mutation. The engine only
// mutates clones it owns, so this matches the shared-resource policy of
// the fan-out loop.
type Properties struct {
	keys   []string
	values map[string]any
}

// NewProperties returns an empty ordered property map.
func NewProperties() *Properties {
	return &Properties{values: make(map[string]any)}
}

// Set stores a value under key, appending the key on first insertion.
func (p *Properties) Set(key string, value any) {
	if _, exists := p.values[key]; !exists {
		p.keys = append(p.keys, key)
	}
	p.values[key] = value
}

// Get returns the value for key and whether it is present.
func (p *Properties) Get(key string) (any, bool) {
	v, ok := p.values[key]
	return v, ok
}

// Has reports whether key is present.
func (p *Properties) Has(key string) bool {
	_, ok := p.values[key]
	return ok
}

// Delete removes key, preserving the order of the remaining keys.
func (p *Properties) Delete(key string) {
	if _, ok := p.values[key]; !ok {
		return
	}
	delete(p.values, key)
	for i, k := range p.keys {
		if k == key {
			p.keys = append(p.keys[:i], p.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order.
func (p *Properties) Keys() []string {
	out := make([]string, len(p.keys))
	copy(out, p.keys)
	return out
}

// Len returns the number of keys.
func (p *Properties) Len() int { return len(p.keys) }

// Clone returns a copy sharing no mutable state with the original.
// Values are copied shallowly; bundles that need deep copies of nested
// structures must make them.
func (p *Properties) Clone() *Properties {
	if p == nil {
		return NewProperties()
	}
	cp := &Properties{
		keys:   make([]string, len(p.keys)),
		values: make(map[string]any, len(p.values)),
	}
	copy(cp.keys, p.keys)
	for k, v := range p.values {
		cp.values[k] = v
	}
	return cp
}

// MarshalJSON encodes the properties as a JSON object whose member
// order follows insertion order.
func (p *Properties) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range p.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyJSON, err := json.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("instance: marshal property key %q: %w", k, err)
		}
		buf.Write(keyJSON)
		buf.WriteByte(':')
		valJSON, err := json.Marshal(p.values[k])
		if err != nil {
			return nil, fmt.Errorf("instance: marshal property %q: %w", k, err)
		}
		buf.Write(valJSON)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, preserving its member order.
func (p *Properties) UnmarshalJSON(data []byte) error {
	p.keys = nil
	p.values = make(map[string]any)

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("instance: unmarshal properties: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("instance: unmarshal properties: expected object, got %v", tok)
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("instance: unmarshal properties: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("instance: unmarshal properties: non-string key %v", keyTok)
		}

		var value any
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("instance: unmarshal property %q: %w", key, err)
		}
		p.Set(key, value)
	}

	// Consume the closing brace.
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("instance: unmarshal properties: %w", err)
	}
	return nil
}
