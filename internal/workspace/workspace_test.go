package workspace

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "scene.dae")

	require.NoError(t, WriteFile(path, []byte("first version")))
	require.NoError(t, WriteFile(path, []byte("v2")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))
}

func TestRemoveMissingIsNotAnError(t *testing.T) {
	assert.NoError(t, Remove(filepath.Join(t.TempDir(), "gone.rcdone")))
}

func TestRemoveFailureIsFileSystemError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "keep"), nil, 0o644))

	// A non-empty directory cannot be removed with Remove.
	err := Remove(dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFileSystem)

	var fsErr *FileSystemError
	require.ErrorAs(t, err, &fsErr)
	assert.Equal(t, "remove", fsErr.Op)
	assert.Equal(t, dir, fsErr.Path)
}

func TestMove(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "tmp", "wood.tif")
	dst := filepath.Join(root, "textures", "sub", "wood.tif")
	require.NoError(t, WriteFile(src, []byte("tiff")))
	require.NoError(t, WriteFile(dst, []byte("stale")))

	require.NoError(t, Move(src, dst))

	_, err := os.Stat(src)
	assert.True(t, errors.Is(err, os.ErrNotExist), "source must not survive a move")
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "tiff", string(data))
}

func TestMoveMissingSource(t *testing.T) {
	root := t.TempDir()
	err := Move(filepath.Join(root, "missing.tif"), filepath.Join(root, "out.tif"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFileSystem)
}

func TestCopyFile(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "a.tif")
	dst := filepath.Join(root, "b.tif")
	require.NoError(t, os.WriteFile(src, []byte("pixels"), 0o600))

	require.NoError(t, copyFile(src, dst))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "pixels", string(data))
}

func TestRemoveDirIfEmpty(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "cryblend-123")
	require.NoError(t, os.Mkdir(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "left.tif"), nil, 0o644))

	removed, err := RemoveDirIfEmpty(dir)
	require.NoError(t, err)
	assert.False(t, removed)

	require.NoError(t, os.Remove(filepath.Join(dir, "left.tif")))
	removed, err = RemoveDirIfEmpty(dir)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = RemoveDirIfEmpty(dir)
	require.NoError(t, err)
	assert.True(t, removed, "already removed dir counts as gone")
}

func TestLocksSerializeSamePath(t *testing.T) {
	locks := NewLocks()

	var active, maxActive int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := locks.Acquire("/out/textures", "/out/textures/")
			defer release()

			n := atomic.AddInt32(&active, 1)
			for {
				m := atomic.LoadInt32(&maxActive)
				if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&active, -1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxActive)
	assert.Empty(t, locks.paths, "released locks are dropped from the registry")
}

func TestLocksIndependentPaths(t *testing.T) {
	locks := NewLocks()
	releaseA := locks.Acquire("/out/a.dae")
	defer releaseA()

	done := make(chan struct{})
	go func() {
		release := locks.Acquire("/out/b.dae")
		release()
		release() // double release is harmless
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("lock on an unrelated path blocked")
	}
}

func TestLockKeys(t *testing.T) {
	keys := lockKeys([]string{"/b", "", "/a/../b", "/a"})
	assert.Equal(t, []string{"/a", "/b"}, keys)
}
