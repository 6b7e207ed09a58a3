package catalog

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// expandEnv substitutes ${VAR} references in a catalog file before decoding.
// YAML goes through a node walk so quoting styles survive; TOML is expanded
// textually. Unset variables expand to "" and are reported so the loader can
// warn instead of failing.
func expandEnv(raw []byte, configType string) ([]byte, []string, error) {
	if configType == "yaml" {
		return expandYAMLEnv(raw)
	}
	missing := make(map[string]struct{})
	expanded := expandTracking(string(raw), missing)
	return []byte(expanded), sortedKeys(missing), nil
}

func expandYAMLEnv(raw []byte) ([]byte, []string, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return nil, nil, fmt.Errorf("parse catalog: %w", err)
	}

	missing := make(map[string]struct{})
	expandYAMLNode(&root, missing)

	expanded, err := yaml.Marshal(&root)
	if err != nil {
		return nil, nil, fmt.Errorf("encode expanded catalog: %w", err)
	}
	return expanded, sortedKeys(missing), nil
}

func expandYAMLNode(node *yaml.Node, missing map[string]struct{}) {
	switch node.Kind {
	case yaml.DocumentNode, yaml.SequenceNode:
		for _, child := range node.Content {
			expandYAMLNode(child, missing)
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			expandYAMLNode(node.Content[i+1], missing)
		}
	case yaml.AliasNode:
		if node.Alias != nil {
			expandYAMLNode(node.Alias, missing)
		}
	case yaml.ScalarNode:
		if node.Tag != "" && node.Tag != "!!str" {
			return
		}
		if !strings.Contains(node.Value, "$") {
			return
		}
		expanded := expandTracking(node.Value, missing)
		if expanded == node.Value {
			return
		}
		node.Tag = "!!str"
		node.Value = expanded
	}
}

func expandTracking(value string, missing map[string]struct{}) string {
	return os.Expand(value, func(key string) string {
		if val, ok := os.LookupEnv(key); ok {
			return val
		}
		missing[key] = struct{}{}
		return ""
	})
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
