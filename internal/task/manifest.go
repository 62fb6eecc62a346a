package task

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Manifest is the YAML file listing prompt files in execution order.
//
//	prompts:
//	  - 01_golden_test_fix.md
//	  - 02_golden_test_suite.md
type Manifest struct {
	Prompts []string `yaml:"prompts"`
}

// LoadManifest parses the manifest at path and returns the ordered prompt
// filenames.
func LoadManifest(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}

	if len(m.Prompts) == 0 {
		return nil, fmt.Errorf("manifest %s lists no prompts", path)
	}

	seen := make(map[string]bool, len(m.Prompts))
	for _, name := range m.Prompts {
		if name == "" {
			return nil, fmt.Errorf("manifest %s contains an empty prompt name", path)
		}
		if seen[name] {
			return nil, fmt.Errorf("manifest %s lists %s twice", path, name)
		}
		seen[name] = true
	}

	return m.Prompts, nil
}
