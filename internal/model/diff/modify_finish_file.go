package diff

import (
	"github.com/svmk2808/syncspirit/internal/errs"
	"github.com/svmk2808/syncspirit/internal/model"
)

// FinishFile is applied when the last block of a file has been written and
// committed to disk (spec.md §4.5 "Backpressure and ordering" /
// spec.md §4.6 flush_file): it bumps the local FolderInfo's max-sequence
// and the file's own sequence, records a fresh local version, and is the
// trigger the peer actors use to emit an outbound IndexUpdate.
type FinishFile struct {
	NoForceCommit

	FolderID    string
	LocalDevice string
	Name        string

	// Result is filled in by Apply with the FileInfo actually installed.
	Result *model.FileInfo
}

func (d *FinishFile) Apply(cluster *model.Cluster) error {
	fi, ok := cluster.FolderInfo(d.FolderID, d.LocalDevice)
	if !ok {
		return errs.New(errs.KindUnknownFolder, "finish_file: "+d.FolderID, nil)
	}
	f, ok := fi.FileByName(d.Name)
	if !ok {
		return errs.New(errs.KindProtocolViolation, "finish_file: unknown file: "+d.Name, nil)
	}
	next := f.Clone()
	next.Sequence = fi.MaxSequence + 1
	next.Version = f.Version.Update(fi.Device.ShortID())
	next.Invalid = false
	cluster.PutFile(fi, next)
	for _, b := range next.Blocks {
		cluster.MarkBlockAvailable(b.Hash)
	}
	d.Result = next
	return nil
}

func (d *FinishFile) Visit(v Visitor) error { return v.VisitFinishFile(d) }
