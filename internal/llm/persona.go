package llm

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const defaultSystemPrompt = "You are Archie, a helpful assistant for answering questions about the university. " +
	"Answer concisely and accurately based on the conversation so far."

// Persona holds the assistant's generation settings, loaded from a yaml
// file so prompts can be tuned without a rebuild.
type Persona struct {
	Model        string  `yaml:"model"`
	SystemPrompt string  `yaml:"system_prompt"`
	Temperature  float64 `yaml:"temperature"`
	MaxTokens    int     `yaml:"max_tokens"`
}

func DefaultPersona() *Persona {
	return &Persona{
		Model:        "gpt-4o-mini",
		SystemPrompt: defaultSystemPrompt,
		Temperature:  1.0,
		MaxTokens:    1024,
	}
}

// LoadPersona reads a persona yaml file, falling back to defaults for
// fields the file leaves unset. An empty path returns the defaults.
func LoadPersona(path string) (*Persona, error) {
	persona := DefaultPersona()
	if path == "" {
		return persona, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read persona file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, persona); err != nil {
		return nil, fmt.Errorf("failed to parse persona file %s: %w", path, err)
	}
	return persona, nil
}
