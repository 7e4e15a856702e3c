package llm

import "context"

// Factory creates a Client for one request. apiKey and model may be empty,
// in which case server defaults apply.
type Factory interface {
	NewClient(ctx context.Context, apiKey, model string) (Client, error)
}

// GeminiFactory builds Gemini clients, preferring the caller's key and model
// over the server's.
type GeminiFactory struct {
	defaultKey string
	config     *Config
}

// NewGeminiFactory creates a factory. config may be nil for the default tiers.
func NewGeminiFactory(defaultKey string, config *Config) *GeminiFactory {
	if config == nil {
		config = DefaultConfig()
	}
	return &GeminiFactory{defaultKey: defaultKey, config: config}
}

// HasDefaultKey reports whether requests without their own key can be served.
func (f *GeminiFactory) HasDefaultKey() bool {
	return f.defaultKey != ""
}

// NewClient implements Factory.
func (f *GeminiFactory) NewClient(ctx context.Context, apiKey, model string) (Client, error) {
	key := apiKey
	if key == "" {
		key = f.defaultKey
	}
	if key == "" {
		return nil, ErrNoAPIKey
	}
	return NewGeminiClient(ctx, f.config.WithAllModels(model), key)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context, apiKey, model string) (Client, error)

// NewClient implements Factory.
func (fn FactoryFunc) NewClient(ctx context.Context, apiKey, model string) (Client, error) {
	return fn(ctx, apiKey, model)
}
