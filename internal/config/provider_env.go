package config

import (
	"context"
	"os"
	"strings"
)

// EnvVarProvider implements SecretProvider from the process environment, for
// CI systems that inject secrets as variables rather than through SSM.
//
// A key is looked up verbatim first, then as its parameter path folded into a
// variable name: "/ci/buildinfo/publisher-username" becomes
// CI_BUILDINFO_PUBLISHER_USERNAME.
type EnvVarProvider struct{}

// NewEnvVarProvider creates a new EnvVarProvider.
func NewEnvVarProvider() *EnvVarProvider {
	return &EnvVarProvider{}
}

// GetParametersBatch resolves each key from the environment. Missing keys are
// omitted from the result.
func (p *EnvVarProvider) GetParametersBatch(_ context.Context, keys []string) (map[string]string, error) {
	result := make(map[string]string, len(keys))
	for _, key := range keys {
		if val, ok := os.LookupEnv(key); ok {
			result[key] = val
			continue
		}
		if val, ok := os.LookupEnv(envNameForPath(key)); ok {
			result[key] = val
		}
	}
	return result, nil
}

// envNameForPath upper-cases a parameter path and replaces every character
// outside [A-Z0-9] with an underscore, dropping the leading separator.
func envNameForPath(path string) string {
	path = strings.TrimLeft(path, "/")
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, path)
}
