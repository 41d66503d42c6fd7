package task

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const metadataKey = "metadata"

// Load reads a task dataset from a .json, .yaml or .yml file. The top level is
// either an object keyed by sample index or a list of tasks; file order is kept.
func Load(path string) ([]*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tasks %s: %w", path, err)
	}
	var specs []*Spec
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		specs, err = decodeYAML(data)
	default:
		specs, err = decodeJSON(data)
	}
	if err != nil {
		return nil, fmt.Errorf("parse tasks %s: %w", path, err)
	}
	return specs, nil
}

func decodeJSON(data []byte) ([]*Spec, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var list []*Spec
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, err
		}
		for i, s := range list {
			normalize(s, fmt.Sprintf("%d", i))
		}
		return list, nil
	}

	keys, raws, err := orderedRaw(trimmed)
	if err != nil {
		return nil, err
	}
	specs := make([]*Spec, 0, len(keys))
	for _, k := range keys {
		if k == metadataKey {
			continue
		}
		var s Spec
		if err := json.Unmarshal(raws[k], &s); err != nil {
			return nil, fmt.Errorf("task %s: %w", k, err)
		}
		normalize(&s, k)
		specs = append(specs, &s)
	}
	return specs, nil
}

func decodeYAML(data []byte) ([]*Spec, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, nil
	}
	doc := root.Content[0]
	switch doc.Kind {
	case yaml.SequenceNode:
		var list []*Spec
		if err := doc.Decode(&list); err != nil {
			return nil, err
		}
		for i, s := range list {
			normalize(s, fmt.Sprintf("%d", i))
		}
		return list, nil
	case yaml.MappingNode:
		specs := make([]*Spec, 0, len(doc.Content)/2)
		for i := 0; i+1 < len(doc.Content); i += 2 {
			key := doc.Content[i].Value
			if key == metadataKey {
				continue
			}
			var s Spec
			if err := doc.Content[i+1].Decode(&s); err != nil {
				return nil, fmt.Errorf("task %s: %w", key, err)
			}
			normalize(&s, key)
			specs = append(specs, &s)
		}
		return specs, nil
	default:
		return nil, fmt.Errorf("line %d: expected mapping or list of tasks", doc.Line)
	}
}

func normalize(s *Spec, key string) {
	if s.ID == "" {
		s.ID = key
	}
	if s.Type == TypeTrigger {
		s.IsTrigger = true
	}
	if s.GroundTruth.Fields == nil && s.GroundTruth.Answer == "" {
		s.GroundTruth.Fields = NewObject()
	}
	if s.Details == nil {
		s.Details = map[string]any{}
	}
}
