// Package fileio is the File Actor: the sole writer to folder filesystem
// paths (spec.md §4.6, §5). It applies block-level operations to local
// storage through a bounded LRU of open memory-mapped temp files, and
// provides the read path peer actors serve inbound Requests from.
package fileio

import (
	"os"
	"path/filepath"
	"time"

	"github.com/golang/groupcache/lru"
	"golang.org/x/sys/unix"

	"github.com/svmk2808/syncspirit/internal/errs"
	"github.com/svmk2808/syncspirit/internal/slog"
)

// TempSuffix marks a partially-synced file on disk (spec.md §4.5 "Resume
// semantics", §6).
const TempSuffix = ".syncspirit-tmp"

// TempPath returns the on-disk temp path for a folder-relative name.
func TempPath(root, name string) string {
	return filepath.Join(root, name) + TempSuffix
}

// FinalPath returns the on-disk final path for a folder-relative name.
func FinalPath(root, name string) string {
	return filepath.Join(root, name)
}

// Actor owns the mapping LRU. All methods are called from the controller
// or peer goroutines; the mutex-free design relies on the coordinator-side
// convention that one Actor instance is driven by one goroutine at a time
// per file, so the only shared structure needing protection is the cache
// itself, which the lru package leaves to the caller.
type Actor struct {
	cache *lru.Cache
	log   slog.Log

	// err latches the first fatal I/O failure; once set, every later
	// operation short-circuits with it (spec.md §4.6 "Any I/O error
	// taints the file").
	err error
}

// NewActor builds an Actor whose LRU holds at most maxOpen mapped files;
// eviction flushes and unmaps the victim (spec.md §4.6).
func NewActor(maxOpen int, log slog.Log) *Actor {
	a := &Actor{log: log}
	a.cache = lru.New(maxOpen)
	a.cache.OnEvicted = func(key lru.Key, value interface{}) {
		m := value.(*mapping)
		if err := m.close(); err != nil {
			a.log.Warn("evict flush failed", slog.String("path", key.(string)), slog.Err(err))
		}
	}
	return a
}

// open returns the mapping for path, creating and mapping the file at the
// given size on a cache miss. A cached mapping smaller than size is
// remapped.
func (a *Actor) open(path string, size int64) (*mapping, error) {
	if v, ok := a.cache.Get(path); ok {
		m := v.(*mapping)
		if int64(len(m.data)) >= size {
			return m, nil
		}
		a.cache.Remove(path)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, errs.New(errs.KindIOError, "fileio.open "+path, err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, errs.New(errs.KindIOError, "fileio.stat "+path, err)
	}
	if st.Size() < size {
		if err := f.Truncate(size); err != nil {
			_ = f.Close()
			return nil, errs.New(errs.KindIOError, "fileio.truncate "+path, err)
		}
	} else {
		size = st.Size()
	}
	m, err := mapFile(f, size)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	a.cache.Add(path, m)
	return m, nil
}

// CloneFile creates the temp file for a pull at its full target length
// (spec.md §4.6 clone_file). Parent directories are created as needed so a
// deep tree syncs without the directories having arrived first.
func (a *Actor) CloneFile(root, name string, size int64) error {
	if a.err != nil {
		return a.err
	}
	path := TempPath(root, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return a.fatal(errs.New(errs.KindIOError, "fileio.CloneFile mkdir", err))
	}
	_, err := a.open(path, size)
	if err != nil {
		return a.fatal(err)
	}
	return nil
}

// AppendBlock writes one block's bytes into the temp file at its offset
// (spec.md §4.6 append_block). The file must have been sized by CloneFile
// first; writes land strictly in block order per file (spec.md §5).
func (a *Actor) AppendBlock(root, name string, offset int64, data []byte) error {
	if a.err != nil {
		return a.err
	}
	m, err := a.open(TempPath(root, name), offset+int64(len(data)))
	if err != nil {
		return a.fatal(err)
	}
	if err := m.writeAt(data, offset); err != nil {
		return a.fatal(err)
	}
	return nil
}

// CloneBlock copies size bytes from srcName (a complete local file, maybe
// in a different folder) at srcOffset into name's temp file at dstOffset,
// satisfying a block without network I/O (spec.md §4.5 "Clone", §4.6
// clone_block).
func (a *Actor) CloneBlock(srcRoot, srcName string, srcOffset int64, dstRoot, name string, dstOffset int64, size int) error {
	if a.err != nil {
		return a.err
	}
	data, err := a.ReadBlock(srcRoot, srcName, srcOffset, size)
	if err != nil {
		return a.fatal(err)
	}
	return a.AppendBlock(dstRoot, name, dstOffset, data)
}

// FlushFile finishes a pulled file: msync the whole mapping, unmap and
// close it, rename the temp file to its final name, and restore the
// recorded modification time and permissions (spec.md §4.6 flush_file).
func (a *Actor) FlushFile(root, name string, modTime time.Time, perm uint32, ignorePerms bool) error {
	if a.err != nil {
		return a.err
	}
	tmp := TempPath(root, name)
	final := FinalPath(root, name)
	if v, ok := a.cache.Get(tmp); ok {
		m := v.(*mapping)
		if err := m.sync(); err != nil {
			return a.fatal(err)
		}
		a.cache.Remove(tmp) // OnEvicted unmaps and closes
	}
	if err := os.Rename(tmp, final); err != nil {
		return a.fatal(errs.New(errs.KindIOError, "fileio.FlushFile rename", err))
	}
	if !ignorePerms && perm != 0 {
		if err := os.Chmod(final, os.FileMode(perm)&os.ModePerm); err != nil {
			return a.fatal(errs.New(errs.KindIOError, "fileio.FlushFile chmod", err))
		}
	}
	if err := os.Chtimes(final, modTime, modTime); err != nil {
		return a.fatal(errs.New(errs.KindIOError, "fileio.FlushFile chtimes", err))
	}
	return nil
}

// ReadBlock reads size bytes at offset from a complete local file, used
// both as the clone source and to serve a peer's Request (spec.md §4.4
// "Request handling").
func (a *Actor) ReadBlock(root, name string, offset int64, size int) ([]byte, error) {
	f, err := os.Open(FinalPath(root, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.New(errs.KindUnknownFolder, "fileio.ReadBlock no such file: "+name, err)
		}
		return nil, errs.New(errs.KindIOError, "fileio.ReadBlock open", err)
	}
	defer f.Close()
	out := make([]byte, size)
	n, err := f.ReadAt(out, offset)
	if err != nil && n != size {
		return nil, errs.New(errs.KindIOError, "fileio.ReadBlock read", err)
	}
	return out[:n], nil
}

// ApplyDirectory creates a directory entry (spec.md §4.5 "Immediate").
func (a *Actor) ApplyDirectory(root, name string, perm uint32, ignorePerms bool) error {
	mode := os.FileMode(0o755)
	if !ignorePerms && perm != 0 {
		mode = os.FileMode(perm) & os.ModePerm
	}
	if err := os.MkdirAll(FinalPath(root, name), mode); err != nil {
		return a.fatal(errs.New(errs.KindIOError, "fileio.ApplyDirectory", err))
	}
	return nil
}

// ApplySymlink creates a symlink entry via the platform primitive
// (spec.md §6 "Symlinks are stored as files with a symlink target string").
func (a *Actor) ApplySymlink(root, name, target string) error {
	path := FinalPath(root, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return a.fatal(errs.New(errs.KindIOError, "fileio.ApplySymlink mkdir", err))
	}
	_ = os.Remove(path)
	if err := os.Symlink(target, path); err != nil {
		return a.fatal(errs.New(errs.KindIOError, "fileio.ApplySymlink", err))
	}
	return nil
}

// ApplyDelete removes a file or directory that a peer's index marked
// deleted (spec.md §4.5 "Immediate").
func (a *Actor) ApplyDelete(root, name string) error {
	err := os.RemoveAll(FinalPath(root, name))
	if err != nil {
		return a.fatal(errs.New(errs.KindIOError, "fileio.ApplyDelete", err))
	}
	return nil
}

// ApplyZeroLength creates an empty file directly, no blocks involved.
func (a *Actor) ApplyZeroLength(root, name string, modTime time.Time, perm uint32, ignorePerms bool) error {
	path := FinalPath(root, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return a.fatal(errs.New(errs.KindIOError, "fileio.ApplyZeroLength mkdir", err))
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return a.fatal(errs.New(errs.KindIOError, "fileio.ApplyZeroLength create", err))
	}
	_ = f.Close()
	if !ignorePerms && perm != 0 {
		_ = os.Chmod(path, os.FileMode(perm)&os.ModePerm)
	}
	return os.Chtimes(path, modTime, modTime)
}

// Close flushes and unmaps every cached mapping; called on shutdown after
// the controller has quiesced.
func (a *Actor) Close() {
	a.cache.Clear() // OnEvicted runs for every entry
}

// fatal latches err and returns it (spec.md §4.6 "Error handling": the
// first I/O error surfaces as fatal and everything after short-circuits).
func (a *Actor) fatal(err error) error {
	if a.err == nil {
		a.err = err
	}
	return err
}

// Err returns the latched fatal error, nil while healthy.
func (a *Actor) Err() error { return a.err }

// sync flushes a mapping's dirty pages without unmapping.
func (m *mapping) sync() error {
	if m.data == nil {
		return nil
	}
	if err := unix.Msync(m.data, unix.MS_SYNC); err != nil {
		return errs.New(errs.KindIOError, "fileio.sync", err)
	}
	return nil
}

// close flushes, unmaps, and closes the underlying file.
func (m *mapping) close() error {
	if err := m.sync(); err != nil {
		_ = m.unmap()
		_ = m.f.Close()
		return err
	}
	if err := m.unmap(); err != nil {
		_ = m.f.Close()
		return err
	}
	return m.f.Close()
}
