package minnow

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "minnow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestLoadConfigDefaultsWhenFileAbsent(t *testing.T) {
	config, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:9996", config.Service.Address)
	assert.Equal(t, "example-net", config.Service.Network)
	assert.Equal(t, 30*time.Second, config.Service.Timeout)
	assert.Equal(t, 1, config.Service.Retries)
	assert.Equal(t, 64, config.Query.MaxHops)
	assert.Equal(t, ".", config.OutputDir)
	assert.True(t, config.Simplify.BoolsEnabled())
}

func TestLoadConfigAppliesDefaultsToMissingFields(t *testing.T) {
	path := writeConfig(t, `
service:
  address: http://analysis.internal:9996
`)

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "http://analysis.internal:9996", config.Service.Address)
	assert.Equal(t, 30*time.Second, config.Service.Timeout)
	assert.Equal(t, 64, config.Query.MaxHops)
}

func TestLoadConfigRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, `
service:
  address: http://localhost:9996
  adress_typo: oops
`)

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "negative timeout",
			content: `
service:
  timeout: -5s
`,
		},
		{
			name: "negative retries",
			content: `
service:
  retries: -1
`,
		},
		{
			name: "negative max hops",
			content: `
query:
  max_hops: -2
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			assert.ErrorIs(t, err, ErrConfigValidation)
		})
	}
}

func TestLoadConfigExpandsEnvVars(t *testing.T) {
	t.Setenv("MINNOW_SERVICE_HOST", "analysis.example.com")

	path := writeConfig(t, `
service:
  address: http://${MINNOW_SERVICE_HOST}:9996
`)

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "http://analysis.example.com:9996", config.Service.Address)
}

func TestSimplifyBoolsExplicitlyDisabled(t *testing.T) {
	path := writeConfig(t, `
simplify:
  bools: false
`)

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.False(t, config.Simplify.BoolsEnabled())
}
