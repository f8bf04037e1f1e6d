// Package secrets resolves secret references found in adapter configuration.
//
// Adapter config blobs are opaque JSON; any value of the form
// {"secret": "name"} is replaced with the named secret before the adapter
// factory sees the config. Two stores are provided: an environment-backed
// store (HABITAT_SECRET_<NAME>) and a YAML file store for development.
package secrets

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Store provides named secrets to the adapter supervisor.
type Store interface {
	// Get returns the secret value for a name.
	// Returns ErrSecretNotFound if the name is unknown.
	Get(name string) (string, error)
}

// envPrefix is the environment variable prefix for the env store.
const envPrefix = "HABITAT_SECRET_"

// EnvStore resolves secrets from environment variables.
// The secret "hue_api_key" maps to HABITAT_SECRET_HUE_API_KEY.
type EnvStore struct{}

// Get returns the secret from the environment.
func (EnvStore) Get(name string) (string, error) {
	key := envPrefix + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", fmt.Errorf("%w: %q (env %s)", ErrSecretNotFound, name, key)
	}
	return v, nil
}

// FileStore resolves secrets from a YAML file of name: value pairs.
// Intended for development; production deployments should use EnvStore
// or an external secret manager behind the Store interface.
type FileStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// LoadFile reads a YAML secrets file into a FileStore.
func LoadFile(path string) (*FileStore, error) {
	data, err := os.ReadFile(path) //nolint:gosec // Path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("reading secrets file: %w", err)
	}

	values := make(map[string]string)
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("parsing secrets file: %w", err)
	}

	return &FileStore{values: values}, nil
}

// Get returns the secret from the loaded file.
func (s *FileStore) Get(name string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrSecretNotFound, name)
	}
	return v, nil
}

// Static is a fixed in-memory store, used in tests.
type Static map[string]string

// Get returns the secret from the map.
func (s Static) Get(name string) (string, error) {
	v, ok := s[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrSecretNotFound, name)
	}
	return v, nil
}

// Resolve walks a config blob and replaces every {"secret": "name"} map
// with the named secret value. Nested maps and slices are walked; all
// other values pass through unchanged. The input is not modified.
func Resolve(config map[string]any, store Store) (map[string]any, error) {
	out, err := resolveValue(config, store)
	if err != nil {
		return nil, err
	}
	resolved, ok := out.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("secrets: config did not resolve to an object")
	}
	return resolved, nil
}

func resolveValue(v any, store Store) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		// A single-key {"secret": "name"} map is a reference.
		if name, ok := secretRef(val); ok {
			resolved, err := store.Get(name)
			if err != nil {
				return nil, err
			}
			return resolved, nil
		}
		out := make(map[string]any, len(val))
		for k, inner := range val {
			r, err := resolveValue(inner, store)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			r, err := resolveValue(inner, store)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	default:
		return v, nil
	}
}

// secretRef reports whether m is a secret reference and returns its name.
func secretRef(m map[string]any) (string, bool) {
	if len(m) != 1 {
		return "", false
	}
	name, ok := m["secret"].(string)
	return name, ok
}
