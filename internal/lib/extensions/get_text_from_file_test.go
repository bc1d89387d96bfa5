package extensions

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetTextFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "role_id.txt")
	require.NoError(t, os.WriteFile(path, []byte("  role-123\n"), 0o600))

	text, err := GetTextFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "role-123", text)

	_, err = GetTextFromFile(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}
