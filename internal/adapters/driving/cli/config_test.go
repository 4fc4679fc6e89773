package cli

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/townhall/internal/core/domain"
)

func TestConfigCmd_HasSubcommands(t *testing.T) {
	names := make([]string, 0, len(configCmd.Commands()))
	for _, c := range configCmd.Commands() {
		names = append(names, c.Name())
	}

	assert.ElementsMatch(t, []string{"get", "set", "list", "validate"}, names)
}

func TestConfigGet(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	out, err := execute("config", "get", "retrieval.mode")

	require.NoError(t, err)
	assert.Equal(t, "hybrid\n", out)
}

func TestConfigGet_UnknownKey(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	_, err := execute("config", "get", "nope")

	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestConfigSet(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	out, err := execute("config", "set", "retrieval.mode", "vector")

	require.NoError(t, err)
	assert.Contains(t, out, "retrieval.mode updated.")
	assert.Equal(t, "vector", testSvc.settings.values["retrieval.mode"])
}

func TestConfigSet_Invalid(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	_, err := execute("config", "set", "nope", "1")

	require.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Contains(t, err.Error(), "failed to set nope")
}

func TestConfigList_MasksSecrets(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	out, err := execute("config", "list")

	require.NoError(t, err)
	assert.Contains(t, out, "llm.api_key = ****abcd")
	assert.NotContains(t, out, "sk-test")
	assert.Contains(t, out, "llm.model = gpt-4o-mini")
}

func TestConfigValidate(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	out, err := execute("config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration OK.")

	testSvc.settings.validateErr = errors.New("llm.api_key is required")
	_, err = execute("config", "validate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration is not usable")
}

func TestMaskAPIKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "(not set)"},
		{"short", "****"},
		{"12345678", "****"},
		{"sk-abcdefgh1234", "****1234"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, maskAPIKey(tt.in), tt.in)
	}
}

func TestIsSecretKey(t *testing.T) {
	assert.True(t, isSecretKey("llm.api_key"))
	assert.True(t, isSecretKey("vector.api_key"))
	assert.False(t, isSecretKey("llm.model"))
}
