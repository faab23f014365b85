package terminal

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// Language identifies a guest language the engine can shell out to.
type Language string

// Supported guest languages.
const (
	Swift  Language = "swift"
	Python Language = "python"
)

// Toolchain describes how to execute a source file for one language.
type Toolchain struct {
	Language  Language `yaml:"language"`
	Extension string   `yaml:"extension"`
	Command   string   `yaml:"command"`
	Args      []string `yaml:"args"`
}

// Registry maps languages to their toolchains. The order of Supported
// reflects registration order.
type Registry struct {
	order      []Language
	toolchains map[Language]Toolchain
}

// DefaultRegistry returns the built-in toolchain registry.
func DefaultRegistry() *Registry {
	r := &Registry{toolchains: make(map[Language]Toolchain)}
	r.Register(Toolchain{Language: Swift, Extension: ".swift", Command: "swift"})
	r.Register(Toolchain{Language: Python, Extension: ".py", Command: "python3"})
	return r
}

// LoadRegistry returns the default registry with overrides applied
// from a YAML file. The file holds a `languages` list of toolchains.
func LoadRegistry(path string) (*Registry, error) {
	r := DefaultRegistry()
	if path == "" {
		return r, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read language registry: %w", err)
	}

	var file struct {
		Languages []Toolchain `yaml:"languages"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse language registry: %w", err)
	}

	for _, tc := range file.Languages {
		if tc.Language == "" || tc.Command == "" {
			return nil, fmt.Errorf("language registry entry missing language or command")
		}
		if tc.Extension == "" {
			if base, ok := r.toolchains[tc.Language]; ok {
				tc.Extension = base.Extension
			}
		}
		r.Register(tc)
	}
	return r, nil
}

// Register adds or replaces a toolchain.
func (r *Registry) Register(tc Toolchain) {
	if _, exists := r.toolchains[tc.Language]; !exists {
		r.order = append(r.order, tc.Language)
	}
	r.toolchains[tc.Language] = tc
}

// Toolchain looks up the toolchain for a language.
func (r *Registry) Toolchain(lang Language) (Toolchain, bool) {
	tc, ok := r.toolchains[lang]
	return tc, ok
}

// Supported returns the registered languages in registration order.
func (r *Registry) Supported() []Language {
	out := make([]Language, len(r.order))
	copy(out, r.order)
	return out
}
