package fileio

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/svmk2808/syncspirit/internal/slog"
)

func TestAppendFlushRename(t *testing.T) {
	root := t.TempDir()
	a := NewActor(4, slog.Nop())
	defer a.Close()

	require.NoError(t, a.CloneFile(root, "q.txt", 5))
	require.FileExists(t, filepath.Join(root, "q.txt"+TempSuffix))

	require.NoError(t, a.AppendBlock(root, "q.txt", 0, []byte("12345")))

	modTime := time.Unix(1700000000, 0)
	require.NoError(t, a.FlushFile(root, "q.txt", modTime, 0o640, false))

	final := filepath.Join(root, "q.txt")
	data, err := os.ReadFile(final)
	require.NoError(t, err)
	require.Equal(t, "12345", string(data))

	st, err := os.Stat(final)
	require.NoError(t, err)
	require.Equal(t, int64(5), st.Size())
	require.Equal(t, modTime.Unix(), st.ModTime().Unix())
	require.Equal(t, os.FileMode(0o640), st.Mode().Perm())

	_, err = os.Stat(filepath.Join(root, "q.txt"+TempSuffix))
	require.True(t, os.IsNotExist(err), "temp file must be gone after flush")
}

func TestAppendOutOfOrderOffsets(t *testing.T) {
	root := t.TempDir()
	a := NewActor(4, slog.Nop())
	defer a.Close()

	require.NoError(t, a.CloneFile(root, "big", 10))
	require.NoError(t, a.AppendBlock(root, "big", 5, []byte("WORLD")))
	require.NoError(t, a.AppendBlock(root, "big", 0, []byte("HELLO")))
	require.NoError(t, a.FlushFile(root, "big", time.Now(), 0, true))

	data, err := os.ReadFile(filepath.Join(root, "big"))
	require.NoError(t, err)
	require.Equal(t, "HELLOWORLD", string(data))
}

func TestCloneBlockCopiesFromLocalFile(t *testing.T) {
	root := t.TempDir()
	a := NewActor(4, slog.Nop())
	defer a.Close()

	require.NoError(t, os.WriteFile(filepath.Join(root, "src"), []byte("AABBB"), 0o644))

	require.NoError(t, a.CloneFile(root, "dst", 3))
	require.NoError(t, a.CloneBlock(root, "src", 2, root, "dst", 0, 3))
	require.NoError(t, a.FlushFile(root, "dst", time.Now(), 0, true))

	data, err := os.ReadFile(filepath.Join(root, "dst"))
	require.NoError(t, err)
	require.Equal(t, "BBB", string(data))
}

func TestLRUEvictionFlushes(t *testing.T) {
	root := t.TempDir()
	a := NewActor(2, slog.Nop())
	defer a.Close()

	for i, name := range []string{"one", "two", "three"} {
		require.NoError(t, a.CloneFile(root, name, 1))
		require.NoError(t, a.AppendBlock(root, name, 0, []byte{byte('a' + i)}))
	}

	// "one" was evicted when "three" mapped; its bytes must be durable.
	data, err := os.ReadFile(filepath.Join(root, "one"+TempSuffix))
	require.NoError(t, err)
	require.Equal(t, "a", string(data))
}

func TestReadBlock(t *testing.T) {
	root := t.TempDir()
	a := NewActor(2, slog.Nop())
	defer a.Close()

	require.NoError(t, os.WriteFile(filepath.Join(root, "f"), []byte("0123456789"), 0o644))

	data, err := a.ReadBlock(root, "f", 3, 4)
	require.NoError(t, err)
	require.Equal(t, "3456", string(data))

	_, err = a.ReadBlock(root, "missing", 0, 1)
	require.Error(t, err)
}

func TestApplySymlinkAndDirectory(t *testing.T) {
	root := t.TempDir()
	a := NewActor(2, slog.Nop())
	defer a.Close()

	require.NoError(t, a.ApplyDirectory(root, "sub/dir", 0o755, false))
	st, err := os.Stat(filepath.Join(root, "sub", "dir"))
	require.NoError(t, err)
	require.True(t, st.IsDir())

	require.NoError(t, a.ApplySymlink(root, "link", "sub/dir"))
	target, err := os.Readlink(filepath.Join(root, "link"))
	require.NoError(t, err)
	require.Equal(t, "sub/dir", target)
}
