package script

import (
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"portalpilot-go/domain/step"
)

// yamlScript is the YAML structure for exported scripts.
type yamlScript struct {
	Target  string     `yaml:"target"`
	Kind    string     `yaml:"kind"`
	SavedBy string     `yaml:"savedBy,omitempty"`
	SavedAt time.Time  `yaml:"savedAt,omitempty"`
	Steps   []yamlStep `yaml:"steps"`
}

type yamlStep struct {
	Order       int             `yaml:"order"`
	Action      string          `yaml:"action"`
	Params      step.Parameters `yaml:"params,omitempty"`
	Description string          `yaml:"description,omitempty"`
}

// Marshal encodes a script as YAML.
func Marshal(s *Script) ([]byte, error) {
	ys := yamlScript{
		Target:  s.TargetID,
		Kind:    string(s.Kind),
		SavedBy: s.SavedBy,
		SavedAt: s.SavedAt,
		Steps:   make([]yamlStep, len(s.Steps)),
	}
	for i, st := range s.Steps {
		ys.Steps[i] = yamlStep{
			Order:       st.Order,
			Action:      string(st.ActionType),
			Params:      st.Parameters,
			Description: st.Description,
		}
	}
	return yaml.Marshal(&ys)
}

// Unmarshal decodes and validates a YAML script.
func Unmarshal(data []byte) (*Script, error) {
	var ys yamlScript
	if err := yaml.Unmarshal(data, &ys); err != nil {
		return nil, fmt.Errorf("failed to parse script: %w", err)
	}

	s := &Script{
		TargetID: ys.Target,
		Kind:     Kind(ys.Kind),
		SavedBy:  ys.SavedBy,
		SavedAt:  ys.SavedAt,
		Steps:    make([]step.Step, len(ys.Steps)),
	}
	for i, st := range ys.Steps {
		action := step.Action{Type: step.ActionType(st.Action), Params: st.Params}.Normalized()
		desc := st.Description
		if desc == "" {
			desc = action.Describe()
		}
		s.Steps[i] = step.Step{
			Order:       st.Order,
			ActionType:  action.Type,
			Parameters:  action.Params,
			Description: desc,
		}
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// LoadFile reads a YAML script from disk.
func LoadFile(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script file %s: %w", path, err)
	}
	return decodeFile(path, data)
}

// LoadFromFS reads a YAML script from a filesystem.
func LoadFromFS(fsys fs.FS, path string) (*Script, error) {
	data, err := fs.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script file %s: %w", path, err)
	}
	return decodeFile(path, data)
}

func decodeFile(path string, data []byte) (*Script, error) {
	s, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("script file %s: %w", path, err)
	}
	return s, nil
}
