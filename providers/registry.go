package providers

// Spec holds the configuration needed to create a provider instance.
type Spec struct {
	ID         string
	Type       string // "gemini", "openrouter", "mock"
	Model      string
	ImageModel string // Distinct model identifier for image-generation calls
	BaseURL    string
	APIKey     string
	Referer    string // Identification headers for gateway providers
	Title      string
	Defaults   Defaults
}

// Factory is a function that creates a provider from a spec.
type Factory func(spec Spec) (Provider, error)

var factories = make(map[string]Factory)

// RegisterFactory registers a factory function for a provider type.
// Concrete provider packages call this from init.
func RegisterFactory(providerType string, factory Factory) {
	factories[providerType] = factory
}

// CreateFromSpec creates a provider implementation from a spec.
// Returns an error if the provider type is unsupported.
func CreateFromSpec(spec Spec) (Provider, error) {
	if spec.BaseURL == "" {
		switch spec.Type {
		case "gemini":
			spec.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
		case "openrouter":
			spec.BaseURL = "https://openrouter.ai/api/v1"
		}
	}

	factory, exists := factories[spec.Type]
	if !exists {
		return nil, &UnsupportedProviderError{ProviderType: spec.Type}
	}

	return factory(spec)
}

// UnsupportedProviderError is returned when a provider type is not recognized.
type UnsupportedProviderError struct {
	ProviderType string
}

func (e *UnsupportedProviderError) Error() string {
	return "unsupported provider type: " + e.ProviderType
}
