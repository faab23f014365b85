package terminal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()

	swift, ok := r.Toolchain(Swift)
	require.True(t, ok)
	assert.Equal(t, "swift", swift.Command)
	assert.Equal(t, ".swift", swift.Extension)

	python, ok := r.Toolchain(Python)
	require.True(t, ok)
	assert.Equal(t, "python3", python.Command)
	assert.Equal(t, ".py", python.Extension)

	assert.Equal(t, []Language{Swift, Python}, r.Supported())
}

func TestLoadRegistryOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "languages.yaml")
	content := `languages:
  - language: python
    command: /usr/local/bin/python3.12
  - language: lua
    extension: .lua
    command: lua
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	r, err := LoadRegistry(path)
	require.NoError(t, err)

	python, ok := r.Toolchain(Python)
	require.True(t, ok)
	assert.Equal(t, "/usr/local/bin/python3.12", python.Command)
	// Extension falls back to the built-in default.
	assert.Equal(t, ".py", python.Extension)

	lua, ok := r.Toolchain(Language("lua"))
	require.True(t, ok)
	assert.Equal(t, "lua", lua.Command)
}

func TestLoadRegistryEmptyPath(t *testing.T) {
	r, err := LoadRegistry("")
	require.NoError(t, err)
	assert.Len(t, r.Supported(), 2)
}

func TestLoadRegistryMissingFile(t *testing.T) {
	_, err := LoadRegistry("/no/such/languages.yaml")
	require.Error(t, err)
}

func TestLoadRegistryRejectsIncompleteEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "languages.yaml")
	require.NoError(t, os.WriteFile(path, []byte("languages:\n  - command: lua\n"), 0o644))

	_, err := LoadRegistry(path)
	require.Error(t, err)
}

func TestReadDataFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"x":"1","label":"hi"}`), 0o644))

	values, err := ReadDataFile(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"x": "1", "label": "hi"}, values)
}

func TestReadDataFileMissingIsEmpty(t *testing.T) {
	values, err := ReadDataFile(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Empty(t, values)
}

func TestReadDataFileRejectsMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := ReadDataFile(path)
	require.Error(t, err)
}
