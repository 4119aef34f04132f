package capabilities

// ModelCapabilities describes what one assistant model supports.
type ModelCapabilities struct {
	ID              string `yaml:"id"`
	DisplayName     string `yaml:"display_name"`
	MaxOutputTokens int    `yaml:"max_output_tokens"`
	SupportsTools   bool   `yaml:"supports_tools"`
}

// ProviderCapabilities is the capability file for one backend provider.
type ProviderCapabilities struct {
	Provider string              `yaml:"provider"`
	Models   []ModelCapabilities `yaml:"models"`
}
