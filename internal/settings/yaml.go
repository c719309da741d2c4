package settings

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"tradelink/internal/rules"
)

// rulesFile is the YAML document shape for bulk rule editing.
type rulesFile struct {
	Rules []rules.Rule `yaml:"rules"`
}

// ImportRulesYAML replaces the stored rule set with the contents of a YAML
// file. The whole file is validated before anything is written, so a bad
// import never clobbers a working configuration.
func (s *Store) ImportRulesYAML(path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read rules file: %w", err)
	}
	var doc rulesFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return 0, fmt.Errorf("parse rules file %s: %w", path, err)
	}
	if err := s.SetRules(doc.Rules); err != nil {
		return 0, err
	}
	return len(doc.Rules), nil
}

// ExportRulesYAML writes the current rule set to a YAML file.
func (s *Store) ExportRulesYAML(path string) error {
	set, err := s.Rules()
	if err != nil {
		return err
	}
	raw, err := yaml.Marshal(rulesFile{Rules: set})
	if err != nil {
		return fmt.Errorf("encode rules: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("write rules file: %w", err)
	}
	return nil
}
