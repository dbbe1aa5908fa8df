package chatmodel

import "context"

// Model is the single-method chat-model contract (C1). Implementations
// normalize vendor wire differences; the core treats the response as the
// logical assistant message.
type Model interface {
	Complete(ctx context.Context, req ChatRequest) (ChatResponse, error)
}

// Registry is a keyed collection of Model instances plus a default key.
// Lookup never mutates; the default key must name a present entry — this
// is enforced at construction, not at lookup time.
type Registry struct {
	models  map[string]Model
	default_ string
}

// NewRegistry builds a Registry. It returns a *ProviderError (kind config)
// if defaultKey does not name an entry in models.
func NewRegistry(models map[string]Model, defaultKey string) (*Registry, error) {
	if _, ok := models[defaultKey]; !ok {
		return nil, &ProviderError{
			Provider: defaultKey,
			Kind:     ProviderErrorConfig,
			Err:      errUnknownDefaultProvider,
		}
	}
	copied := make(map[string]Model, len(models))
	for k, v := range models {
		copied[k] = v
	}
	return &Registry{models: copied, default_: defaultKey}, nil
}

// Get resolves a provider key; an empty key resolves to the default.
func (r *Registry) Get(key string) (Model, error) {
	if key == "" {
		key = r.default_
	}
	m, ok := r.models[key]
	if !ok {
		return nil, &ProviderError{Provider: key, Kind: ProviderErrorConfig, Err: errUnknownProvider}
	}
	return m, nil
}

// Default returns the default provider's key.
func (r *Registry) Default() string { return r.default_ }

var (
	errUnknownDefaultProvider = providerLookupError("default_provider does not name a configured provider")
	errUnknownProvider        = providerLookupError("provider key not found in registry")
)

type providerLookupError string

func (e providerLookupError) Error() string { return string(e) }
