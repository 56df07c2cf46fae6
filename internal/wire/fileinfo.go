package wire

import "github.com/svmk2808/syncspirit/internal/model"

// FileEntry is the wire shape of one model.FileInfo within an Index or
// IndexUpdate message (spec.md §4.4). It carries no reference back to a
// FolderInfo; the folder and originating device come from the enclosing
// message and connection respectively.
type FileEntry struct {
	Name          string
	Type          model.FileType
	Size          int64
	BlockSize     int32
	ModifiedS     int64
	ModifiedNs    int32
	Permissions   uint32
	Deleted       bool
	Invalid       bool
	Sequence      uint64
	Version       []VersionEntry
	SymlinkTarget string
	Blocks        []BlockEntry
}

// VersionEntry is one (device, counter) pair of a vector clock.
type VersionEntry struct {
	Device uint64
	Value  uint64
}

// BlockEntry is one content-addressed chunk reference.
type BlockEntry struct {
	Hash  model.Hash
	Index int32
	Size  int32
}

func FromFileInfo(f *model.FileInfo) FileEntry {
	entry := FileEntry{
		Name:          f.Name,
		Type:          f.Type,
		Size:          f.Size,
		BlockSize:     f.BlockSize,
		ModifiedS:     f.ModifiedS,
		ModifiedNs:    f.ModifiedNs,
		Permissions:   f.Permissions,
		Deleted:       f.Deleted,
		Invalid:       f.Invalid,
		Sequence:      f.Sequence,
		SymlinkTarget: f.SymlinkTarget,
	}
	for _, v := range f.Version {
		entry.Version = append(entry.Version, VersionEntry{Device: v.Device, Value: v.Value})
	}
	for _, b := range f.Blocks {
		entry.Blocks = append(entry.Blocks, BlockEntry{Hash: b.Hash, Index: int32(b.Index)})
	}
	return entry
}

// ToFileInfo reconstructs a model.FileInfo detached from any FolderInfo;
// the caller (peer actor) attaches it via a diff.
func (e FileEntry) ToFileInfo() *model.FileInfo {
	fi := &model.FileInfo{
		Name:          e.Name,
		Type:          e.Type,
		Size:          e.Size,
		BlockSize:     e.BlockSize,
		ModifiedS:     e.ModifiedS,
		ModifiedNs:    e.ModifiedNs,
		Permissions:   e.Permissions,
		Deleted:       e.Deleted,
		Invalid:       e.Invalid,
		Sequence:      e.Sequence,
		SymlinkTarget: e.SymlinkTarget,
	}
	for _, v := range e.Version {
		fi.Version = append(fi.Version, model.VersionEntry{Device: v.Device, Value: v.Value})
	}
	for _, b := range e.Blocks {
		fi.Blocks = append(fi.Blocks, model.BlockRef{Hash: b.Hash, Index: int(b.Index)})
	}
	return fi
}

func WriteFileEntry(w *Writer, e FileEntry) {
	w.String(e.Name)
	w.Uvarint(uint64(e.Type))
	w.Int64(e.Size)
	w.Int32(e.BlockSize)
	w.Int64(e.ModifiedS)
	w.Int32(e.ModifiedNs)
	w.Uvarint(uint64(e.Permissions))
	w.Bool(e.Deleted)
	w.Bool(e.Invalid)
	w.Uvarint(e.Sequence)
	w.String(e.SymlinkTarget)

	w.Uvarint(uint64(len(e.Version)))
	for _, v := range e.Version {
		w.Uvarint(v.Device)
		w.Uvarint(v.Value)
	}

	w.Uvarint(uint64(len(e.Blocks)))
	for _, b := range e.Blocks {
		w.RawBytes(b.Hash[:])
		w.Int32(b.Index)
		w.Int32(b.Size)
	}
}

func ReadFileEntry(r *Reader) (FileEntry, error) {
	var e FileEntry
	var err error
	if e.Name, err = r.String(); err != nil {
		return e, err
	}
	t, err := r.Uvarint()
	if err != nil {
		return e, err
	}
	e.Type = model.FileType(t)
	if e.Size, err = r.Int64(); err != nil {
		return e, err
	}
	if e.BlockSize, err = r.Int32(); err != nil {
		return e, err
	}
	if e.ModifiedS, err = r.Int64(); err != nil {
		return e, err
	}
	if e.ModifiedNs, err = r.Int32(); err != nil {
		return e, err
	}
	perm, err := r.Uvarint()
	if err != nil {
		return e, err
	}
	e.Permissions = uint32(perm)
	if e.Deleted, err = r.Bool(); err != nil {
		return e, err
	}
	if e.Invalid, err = r.Bool(); err != nil {
		return e, err
	}
	if e.Sequence, err = r.Uvarint(); err != nil {
		return e, err
	}
	if e.SymlinkTarget, err = r.String(); err != nil {
		return e, err
	}

	nv, err := r.Uvarint()
	if err != nil {
		return e, err
	}
	for i := uint64(0); i < nv; i++ {
		dev, err := r.Uvarint()
		if err != nil {
			return e, err
		}
		val, err := r.Uvarint()
		if err != nil {
			return e, err
		}
		e.Version = append(e.Version, VersionEntry{Device: dev, Value: val})
	}

	nb, err := r.Uvarint()
	if err != nil {
		return e, err
	}
	for i := uint64(0); i < nb; i++ {
		raw, err := r.RawBytes()
		if err != nil {
			return e, err
		}
		var h model.Hash
		copy(h[:], raw)
		idx, err := r.Int32()
		if err != nil {
			return e, err
		}
		size, err := r.Int32()
		if err != nil {
			return e, err
		}
		e.Blocks = append(e.Blocks, BlockEntry{Hash: h, Index: idx, Size: size})
	}
	return e, nil
}
