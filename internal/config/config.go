package config

import "fmt"

// Config represents the main Toolbelt configuration
type Config struct {
	Server   ServerConfig   `json:"server" mapstructure:"server"`
	Logging  LoggingConfig  `json:"logging" mapstructure:"logging"`
	LLM      LLMConfig      `json:"llm" mapstructure:"llm"`
	Registry RegistryConfig `json:"registry" mapstructure:"registry"`
	Engine   EngineConfig   `json:"engine" mapstructure:"engine"`
}

// ServerConfig holds the HTTP session API configuration
type ServerConfig struct {
	Host string `json:"host" mapstructure:"host"`
	Port int    `json:"port" mapstructure:"port"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `json:"level" mapstructure:"level"`
	File    string `json:"file" mapstructure:"file"`
	Console bool   `json:"console" mapstructure:"console"`
	Pretty  bool   `json:"pretty" mapstructure:"pretty"`
}

// LLMConfig holds the natural-language collaborator configuration
type LLMConfig struct {
	Provider  string `json:"provider" mapstructure:"provider"` // openai, anthropic
	APIKey    string `json:"api_key" mapstructure:"api_key"`
	Model     string `json:"model" mapstructure:"model"`           // proposer and summarizer
	ToolModel string `json:"tool_model" mapstructure:"tool_model"` // value source for synthesized tools
}

// RegistryConfig holds tool library configuration
type RegistryConfig struct {
	StorePath    string `json:"store_path" mapstructure:"store_path"`   // sqlite tool library, empty disables persistence
	SchemaDir    string `json:"schema_dir" mapstructure:"schema_dir"`   // drop directory of wire-format schema files
	Watch        bool   `json:"watch" mapstructure:"watch"`             // watch SchemaDir for changes
	MaxTypeDepth int    `json:"max_type_depth" mapstructure:"max_type_depth"`
}

// EngineConfig holds execution engine configuration
type EngineConfig struct {
	Parallel bool `json:"parallel" mapstructure:"parallel"` // run independent plan levels concurrently
}

// DefaultConfig returns the configuration defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8000,
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
		},
		LLM: LLMConfig{
			Provider:  "openai",
			Model:     "gpt-5-mini",
			ToolModel: "gpt-5-nano",
		},
		Registry: RegistryConfig{
			MaxTypeDepth: 8,
		},
	}
}

// Validate checks the configuration for inconsistencies
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in (0, 65535], got %d", c.Server.Port)
	}
	switch c.LLM.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("llm.provider must be openai or anthropic, got %q", c.LLM.Provider)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model must be set")
	}
	if c.Registry.MaxTypeDepth < 0 {
		return fmt.Errorf("registry.max_type_depth must be >= 0")
	}
	if c.Registry.Watch && c.Registry.SchemaDir == "" {
		return fmt.Errorf("registry.watch requires registry.schema_dir")
	}
	return nil
}
