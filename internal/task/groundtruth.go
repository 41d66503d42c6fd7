package task

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Object is a JSON/YAML object that remembers key order.
type Object struct {
	keys   []string
	values map[string]any
}

// NewObject builds an Object from alternating key/value pairs.
func NewObject(kv ...any) *Object {
	o := &Object{values: make(map[string]any)}
	for i := 0; i+1 < len(kv); i += 2 {
		o.Set(fmt.Sprint(kv[i]), kv[i+1])
	}
	return o
}

// Set adds or replaces a key, keeping the original position on replace.
func (o *Object) Set(key string, v any) {
	if o.values == nil {
		o.values = make(map[string]any)
	}
	if _, ok := o.values[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.values[key] = v
}

// Get returns the value stored under key.
func (o *Object) Get(key string) (any, bool) {
	if o == nil {
		return nil, false
	}
	v, ok := o.values[key]
	return v, ok
}

// Has reports whether key is present.
func (o *Object) Has(key string) bool {
	_, ok := o.Get(key)
	return ok
}

// String returns the value under key rendered as a string.
func (o *Object) String(key string) string {
	v, _ := o.Get(key)
	return AsString(v)
}

// Map returns the value under key when it is an object.
func (o *Object) Map(key string) map[string]any {
	v, _ := o.Get(key)
	m, _ := v.(map[string]any)
	return m
}

// Keys returns keys in insertion order.
func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}
	out := make([]string, len(o.keys))
	copy(out, o.keys)
	return out
}

// Len is the number of keys.
func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

// Plain converts to an unordered map, e.g. for detail records.
func (o *Object) Plain() map[string]any {
	out := make(map[string]any, o.Len())
	if o == nil {
		return out
	}
	for _, k := range o.keys {
		out[k] = o.values[k]
	}
	return out
}

func (o *Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(o.values[k])
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", k, err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (o *Object) UnmarshalJSON(data []byte) error {
	keys, raws, err := orderedRaw(data)
	if err != nil {
		return err
	}
	*o = Object{values: make(map[string]any, len(keys))}
	for _, k := range keys {
		var v any
		if err := json.Unmarshal(raws[k], &v); err != nil {
			return fmt.Errorf("decode %s: %w", k, err)
		}
		o.Set(k, v)
	}
	return nil
}

func (o *Object) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected mapping", node.Line)
	}
	*o = Object{values: make(map[string]any, len(node.Content)/2)}
	for i := 0; i+1 < len(node.Content); i += 2 {
		var v any
		if err := node.Content[i+1].Decode(&v); err != nil {
			return fmt.Errorf("decode %s: %w", node.Content[i].Value, err)
		}
		o.Set(node.Content[i].Value, v)
	}
	return nil
}

// orderedRaw splits a JSON object into its keys (file order) and raw values.
func orderedRaw(data []byte) ([]string, map[string]json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, fmt.Errorf("read object: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil, fmt.Errorf("expected object, got %v", tok)
	}
	var keys []string
	raws := make(map[string]json.RawMessage)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, fmt.Errorf("read key: %w", err)
		}
		key, _ := tok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, nil, fmt.Errorf("read value for %s: %w", key, err)
		}
		if _, seen := raws[key]; !seen {
			keys = append(keys, key)
		}
		raws[key] = raw
	}
	if _, err := dec.Token(); err != nil {
		return nil, nil, fmt.Errorf("close object: %w", err)
	}
	return keys, raws, nil
}

// GroundTruth is either an ordered object or, for quizzes, a literal answer.
type GroundTruth struct {
	Answer string
	Fields *Object
}

// IsObject reports whether the ground truth is structured.
func (g GroundTruth) IsObject() bool { return g.Fields != nil }

// Value returns the ground truth in a form suitable for detail maps.
func (g GroundTruth) Value() any {
	if g.Fields != nil {
		return g.Fields.Plain()
	}
	return g.Answer
}

func (g GroundTruth) MarshalJSON() ([]byte, error) {
	if g.Fields != nil {
		return g.Fields.MarshalJSON()
	}
	return json.Marshal(g.Answer)
}

func (g *GroundTruth) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")):
		*g = GroundTruth{Fields: NewObject()}
	case trimmed[0] == '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return fmt.Errorf("decode ground truth: %w", err)
		}
		*g = GroundTruth{Answer: s}
	case trimmed[0] == '{':
		obj := &Object{}
		if err := obj.UnmarshalJSON(trimmed); err != nil {
			return fmt.Errorf("decode ground truth: %w", err)
		}
		*g = GroundTruth{Fields: obj}
	default:
		return fmt.Errorf("decode ground truth: unsupported value %s", trimmed)
	}
	return nil
}

func (g *GroundTruth) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.ShortTag() == "!!null" {
			*g = GroundTruth{Fields: NewObject()}
			return nil
		}
		*g = GroundTruth{Answer: node.Value}
	case yaml.MappingNode:
		obj := &Object{}
		if err := obj.UnmarshalYAML(node); err != nil {
			return fmt.Errorf("decode ground truth: %w", err)
		}
		*g = GroundTruth{Fields: obj}
	default:
		return fmt.Errorf("line %d: unsupported ground truth", node.Line)
	}
	return nil
}

// CriteriaList converts a ground-truth value (one object or a list of
// objects) to criteria maps. ok is false when any entry is not an object.
func CriteriaList(v any) ([]map[string]any, bool) {
	switch val := v.(type) {
	case map[string]any:
		return []map[string]any{val}, true
	case []any:
		out := make([]map[string]any, 0, len(val))
		for _, item := range val {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, false
			}
			out = append(out, m)
		}
		return out, true
	default:
		return nil, false
	}
}
