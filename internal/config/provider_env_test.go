package config

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvVarProviderSatisfiesSecretProvider(t *testing.T) {
	var _ SecretProvider = (*EnvVarProvider)(nil)
	var _ SecretProvider = NewEnvVarProvider()
}

func TestEnvVarProviderGetParametersBatch(t *testing.T) {
	t.Setenv("BUILDRECORDER_TEST_SECRET", "s3cr3t")
	t.Setenv("BUILDRECORDER_TEST_EMPTY", "")

	provider := NewEnvVarProvider()
	result, err := provider.GetParametersBatch(context.Background(), []string{
		"BUILDRECORDER_TEST_SECRET",
		"BUILDRECORDER_TEST_EMPTY",
		"BUILDRECORDER_TEST_DEFINITELY_NOT_SET",
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"BUILDRECORDER_TEST_SECRET": "s3cr3t",
		"BUILDRECORDER_TEST_EMPTY":  "",
	}, result)
}

func TestEnvVarProviderNilKeys(t *testing.T) {
	result, err := NewEnvVarProvider().GetParametersBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.NotNil(t, result)
	assert.Empty(t, result)
}

func TestEnvVarProviderFoldsParameterPaths(t *testing.T) {
	t.Setenv("CI_BUILDINFO_PUBLISHER_USERNAME", "deployer")

	result, err := NewEnvVarProvider().GetParametersBatch(context.Background(), []string{
		"/ci/buildinfo/publisher-username",
		"/ci/buildinfo/missing",
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"/ci/buildinfo/publisher-username": "deployer"}, result)
}

func TestEnvNameForPath(t *testing.T) {
	assert.Equal(t, "CI_BUILDINFO_PUBLISHER_USERNAME", envNameForPath("/ci/buildinfo/publisher-username"))
	assert.Equal(t, "PROD_REPO_KEY_V2", envNameForPath("prod/repo.key/v2"))
}
