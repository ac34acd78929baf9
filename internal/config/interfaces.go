package config

import "context"

// SecretProvider abstracts the retrieval of secrets such as the publisher
// password, backed by AWS SSM Parameter Store in CI and by environment
// variables on a developer machine.
type SecretProvider interface {
	// GetParametersBatch resolves the given parameter paths and returns a map
	// of path -> plaintext value for every path that was found.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
