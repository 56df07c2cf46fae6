package model

import (
	"crypto/rand"
	"encoding/binary"
)

// NewIndexID generates the random 64-bit identifier a device assigns to
// its own linear change sequence for a folder (spec.md GLOSSARY
// "Index-id"). Never zero: zero is the wire sentinel for "no index id".
func NewIndexID() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic("model: crypto/rand unavailable: " + err.Error())
	}
	id := binary.BigEndian.Uint64(b[:])
	if id == 0 {
		id = 1
	}
	return id
}

// FolderInfo is the pair (folder, device): spec.md §3. It owns the set of
// FileInfos the device has advertised for that folder.
type FolderInfo struct {
	Folder *Folder
	Device *Device

	// IndexID is the random 64-bit identifier the owning device generated
	// for its linear change sequence on this folder (spec.md GLOSSARY).
	IndexID uint64

	// MaxSequence is the highest sequence number observed/assigned on the
	// owning device for this folder (spec.md §3 invariant 2).
	MaxSequence uint64

	files map[string]*FileInfo
}

// NewFolderInfo constructs an empty FolderInfo for (folder, device).
func NewFolderInfo(folder *Folder, device *Device, indexID uint64) *FolderInfo {
	return &FolderInfo{
		Folder:  folder,
		Device:  device,
		IndexID: indexID,
		files:   make(map[string]*FileInfo),
	}
}

// FileByName looks up a FileInfo by its folder-relative name.
func (fi *FolderInfo) FileByName(name string) (*FileInfo, bool) {
	f, ok := fi.files[name]
	return f, ok
}

// Files returns every FileInfo this FolderInfo currently owns. Callers must
// not mutate the returned map; it is shared with the live index.
func (fi *FolderInfo) Files() map[string]*FileInfo {
	return fi.files
}

// put installs f under its Name, bumping MaxSequence per spec.md §3
// invariant 2. Only called from the cluster's single apply point.
func (fi *FolderInfo) put(f *FileInfo) {
	f.FolderInfo = fi
	fi.files[f.Name] = f
	if f.Sequence > fi.MaxSequence {
		fi.MaxSequence = f.Sequence
	}
}
