package fileio

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/svmk2808/syncspirit/internal/errs"
)

// mapping is one memory-mapped, open temp file. Size is snapshotted at map
// time; a cached mapping smaller than a later request is re-mapped (see
// Actor.open).
type mapping struct {
	f    *os.File
	data []byte
}

func mapFile(f *os.File, size int64) (*mapping, error) {
	if size == 0 {
		return &mapping{f: f}, nil
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, errs.New(errs.KindIOError, "fileio.mapFile", err)
	}
	return &mapping{f: f, data: data}, nil
}

func (m *mapping) unmap() error {
	if m.data == nil {
		return nil
	}
	err := unix.Munmap(m.data)
	m.data = nil
	if err != nil {
		return errs.New(errs.KindIOError, "fileio.unmap", err)
	}
	return nil
}

func (m *mapping) writeAt(p []byte, off int64) error {
	if off < 0 || off+int64(len(p)) > int64(len(m.data)) {
		return errs.New(errs.KindIOError, "fileio.writeAt out of bounds", nil)
	}
	copy(m.data[off:], p)
	return nil
}

func (m *mapping) readAt(off int64, size int) ([]byte, error) {
	if off < 0 || off+int64(size) > int64(len(m.data)) {
		return nil, errs.New(errs.KindIOError, "fileio.readAt out of bounds", nil)
	}
	out := make([]byte, size)
	copy(out, m.data[off:off+int64(size)])
	return out, nil
}
