package credentials

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	t.Run("missing file is an empty store", func(t *testing.T) {
		s, err := NewStore(filepath.Join(t.TempDir(), "preferences.json"))
		require.NoError(t, err)
		assert.Empty(t, s.Get(StoreKeyAPIKey))
	})

	t.Run("values persist across reopen", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "preferences.json")

		s, err := NewStore(path)
		require.NoError(t, err)
		require.NoError(t, s.Set(StoreKeyAPIKey, "sk-persisted"))
		require.NoError(t, s.Set("preferred_device", "cam1"))

		reopened, err := NewStore(path)
		require.NoError(t, err)
		assert.Equal(t, "sk-persisted", reopened.Get(StoreKeyAPIKey))
		assert.Equal(t, "cam1", reopened.Get("preferred_device"))
	})

	t.Run("file is not world readable", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "preferences.json")
		s, err := NewStore(path)
		require.NoError(t, err)
		require.NoError(t, s.Set(StoreKeyAPIKey, "sk-secret"))

		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	})

	t.Run("corrupt file is rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "preferences.json")
		require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o600))

		_, err := NewStore(path)
		assert.Error(t, err)
	})

	t.Run("clear removes everything including the file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "preferences.json")
		s, err := NewStore(path)
		require.NoError(t, err)
		require.NoError(t, s.Set(StoreKeyAPIKey, "sk-gone"))
		require.NoError(t, s.Set("preferred_device", "cam1"))

		require.NoError(t, s.ClearAll())
		assert.Empty(t, s.Get(StoreKeyAPIKey))
		assert.Empty(t, s.Get("preferred_device"))
		_, err = os.Stat(path)
		assert.ErrorIs(t, err, os.ErrNotExist)

		// Clearing an already-clean store is fine.
		assert.NoError(t, s.ClearAll())
	})
}
