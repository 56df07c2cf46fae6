package diff

import (
	"github.com/svmk2808/syncspirit/internal/errs"
	"github.com/svmk2808/syncspirit/internal/model"
)

// LocalUpdate is emitted by the scanner for every on-disk change it detects
// against the local FolderInfo (spec.md §4.7): a new file, a changed file
// once its content hash is known, or a tombstone for a file that vanished
// from disk. It assigns a fresh sequence number and bumps the local
// device's vector-clock entry, per spec.md §3 invariant 2 (FinishFile does
// the same for a completed pull).
type LocalUpdate struct {
	NoForceCommit

	FolderID    string
	LocalDevice string

	Name          string
	Type          model.FileType
	Size          int64
	BlockSize     int32
	ModifiedS     int64
	ModifiedNs    int32
	Permissions   uint32
	Deleted       bool
	SymlinkTarget string
	Blocks        []model.BlockRef

	// Result is filled in by Apply with the FileInfo actually written,
	// sequence and version included, so observers (persistence) can persist
	// the authoritative row without recomputing it themselves.
	Result *model.FileInfo
}

func (d *LocalUpdate) Apply(cluster *model.Cluster) error {
	fi, ok := cluster.FolderInfo(d.FolderID, d.LocalDevice)
	if !ok {
		return errs.New(errs.KindUnknownFolder, "local_update: "+d.FolderID, nil)
	}
	local := fi.Device

	var prevVersion model.Version
	if existing, ok := fi.FileByName(d.Name); ok {
		prevVersion = existing.Version
	}

	f := &model.FileInfo{
		Name:          d.Name,
		Type:          d.Type,
		Size:          d.Size,
		BlockSize:     d.BlockSize,
		ModifiedS:     d.ModifiedS,
		ModifiedNs:    d.ModifiedNs,
		Permissions:   d.Permissions,
		Deleted:       d.Deleted,
		SymlinkTarget: d.SymlinkTarget,
		Blocks:        d.Blocks,
		Sequence:      fi.MaxSequence + 1,
		Version:       prevVersion.Update(local.ShortID()),
	}
	cluster.PutFile(fi, f)
	for _, b := range f.Blocks {
		cluster.MarkBlockAvailable(b.Hash)
	}
	d.Result = f
	return nil
}

func (d *LocalUpdate) Visit(v Visitor) error { return v.VisitLocalUpdate(d) }
