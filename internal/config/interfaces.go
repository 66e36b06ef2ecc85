package config

import "context"

// SecretProvider resolves secret references to plaintext values. Keys absent
// from the returned map are reported as missing by the loader.
type SecretProvider interface {
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
