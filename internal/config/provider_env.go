package config

import (
	"context"
	"os"
)

// EnvVarProvider resolves each secret reference as the name of another
// environment variable. It serves container platforms that mount secrets as
// variables under a different name than the one the service reads.
type EnvVarProvider struct{}

var _ SecretProvider = (*EnvVarProvider)(nil)

func NewEnvVarProvider() *EnvVarProvider {
	return &EnvVarProvider{}
}

// GetParametersBatch omits keys that are not set.
func (p *EnvVarProvider) GetParametersBatch(_ context.Context, keys []string) (map[string]string, error) {
	result := make(map[string]string, len(keys))
	for _, key := range keys {
		if val, ok := os.LookupEnv(key); ok {
			result[key] = val
		}
	}
	return result, nil
}
