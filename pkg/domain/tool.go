package domain

// ActionDefinition describes an action available to the planner.
// Parameters holds a JSON-schema object compatible with OpenAI and MCP tool schemas.
type ActionDefinition struct {
	Name        string         `json:"name" yaml:"name" mapstructure:"name"`
	Description string         `json:"description" yaml:"description" mapstructure:"description"`
	Parameters  map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty" mapstructure:"parameters"`
}
