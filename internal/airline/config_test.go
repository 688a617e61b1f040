package airline

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRegistryFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "airlines.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestLoadRegistry_ValidYAML(t *testing.T) {
	path := writeRegistryFile(t, `
airlines:
  - name: TestAir
    code: TA
  - name: Second Air
    code: sa
`)

	registry, err := LoadRegistry(path)

	require.NoError(t, err)
	require.NotNil(t, registry)
	assert.Equal(t, []string{"TA", "SA"}, registry.Codes())
	assert.Equal(t, "Second Air", registry.All()[1].Name)
}

func TestLoadRegistry_MissingFile(t *testing.T) {
	registry, err := LoadRegistry("/nonexistent/path/airlines.yaml")

	require.NoError(t, err)
	assert.Equal(t, DefaultRegistry().Codes(), registry.Codes())
}

func TestLoadRegistry_EmptyAirlinesSection(t *testing.T) {
	path := writeRegistryFile(t, "airlines:\n")

	registry, err := LoadRegistry(path)

	require.NoError(t, err)
	assert.Equal(t, 5, registry.Len())
}

func TestLoadRegistry_InvalidYAML(t *testing.T) {
	path := writeRegistryFile(t, "airlines:\n  - name: [broken\n")

	registry, err := LoadRegistry(path)

	require.Error(t, err)
	assert.Nil(t, registry)
}

func TestLoadRegistry_DuplicateCodes(t *testing.T) {
	path := writeRegistryFile(t, `
airlines:
  - name: TestAir
    code: TA
  - name: Copycat
    code: TA
`)

	_, err := LoadRegistry(path)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateCode))
}

func TestLoadRegistryFromEnv(t *testing.T) {
	path := writeRegistryFile(t, "airlines:\n  - name: EnvAir\n    code: EA\n")
	t.Setenv(ConfigPathEnvVar, path)

	registry, err := LoadRegistryFromEnv()

	require.NoError(t, err)
	assert.Equal(t, []string{"EA"}, registry.Codes())
}
