package watcher

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootLock_Exclusive(t *testing.T) {
	root := t.TempDir()

	first := NewRootLock(root)
	ok, err := first.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(root, LockFileName), first.Path())

	second := NewRootLock(root)
	ok, err = second.TryLock()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, second.Unlock())

	require.NoError(t, first.Unlock())
	require.NoError(t, first.Unlock())

	ok, err = second.TryLock()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, second.Unlock())
}

func TestRootLock_FileIsIgnored(t *testing.T) {
	assert.True(t, ignored(LockFileName))
}
