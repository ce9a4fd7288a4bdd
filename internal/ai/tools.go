package ai

import (
	"sort"

	openai "github.com/sashabaranov/go-openai"
)

// ToolSpec describes one tool the assistant may call.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// AvailableTools is the fixed catalog the chat command offers.
var AvailableTools = []ToolSpec{
	{
		Name:        "web_search",
		Description: "Search the web and return result snippets",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string"},
			},
			"required": []string{"query"},
		},
	},
	{
		Name:        "read_file",
		Description: "Read a file from the local workspace",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{"type": "string"},
			},
			"required": []string{"path"},
		},
	},
	{
		Name:        "run_command",
		Description: "Run a shell command and capture its output",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"command": map[string]any{"type": "string"},
			},
			"required": []string{"command"},
		},
	},
}

// ToolConfig is the set of enabled tool names for one chat session. The
// zero value has everything disabled. Configs are values: Enable and Reset
// return new configs and never mutate their receiver.
type ToolConfig struct {
	enabled map[string]bool
}

// Enable returns a copy of the config with the named tool switched on.
// Unknown names are ignored.
func (c ToolConfig) Enable(name string) ToolConfig {
	if !knownTool(name) {
		return c
	}

	next := ToolConfig{enabled: make(map[string]bool, len(c.enabled)+1)}
	for k, v := range c.enabled {
		next.enabled[k] = v
	}
	next.enabled[name] = true
	return next
}

// Reset returns a config with every tool disabled.
func (c ToolConfig) Reset() ToolConfig {
	return ToolConfig{}
}

// Enabled reports whether the named tool is switched on.
func (c ToolConfig) Enabled(name string) bool {
	return c.enabled[name]
}

// Names returns the enabled tool names, sorted.
func (c ToolConfig) Names() []string {
	names := make([]string, 0, len(c.enabled))
	for name, on := range c.enabled {
		if on {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Definitions renders the enabled tools in the provider's wire format.
func (c ToolConfig) Definitions() []openai.Tool {
	var defs []openai.Tool
	for _, spec := range AvailableTools {
		if !c.enabled[spec.Name] {
			continue
		}
		defs = append(defs, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  spec.Parameters,
			},
		})
	}
	return defs
}

func knownTool(name string) bool {
	for _, spec := range AvailableTools {
		if spec.Name == name {
			return true
		}
	}
	return false
}
