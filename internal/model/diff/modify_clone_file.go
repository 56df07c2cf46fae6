package diff

import (
	"github.com/svmk2808/syncspirit/internal/errs"
	"github.com/svmk2808/syncspirit/internal/model"
)

// CloneFile registers the local tracking entry for a file the controller is
// about to start pulling from a peer (spec.md §4.1 lists "clone file" among
// the cluster diffs). It copies the peer's metadata and block list so the
// controller's block_iterator has something to walk, but does not touch
// the local FolderInfo's sequence: that happens only once the content is
// actually on disk (FinishFile).
type CloneFile struct {
	NoForceCommit

	FolderID    string
	LocalDevice string
	Source      *model.FileInfo // the peer-side FileInfo being pulled

	// Result is filled in by Apply with the FileInfo actually installed.
	Result *model.FileInfo
}

func (d *CloneFile) Apply(cluster *model.Cluster) error {
	fi, ok := cluster.FolderInfo(d.FolderID, d.LocalDevice)
	if !ok {
		return errs.New(errs.KindUnknownFolder, "clone_file: "+d.FolderID, nil)
	}
	if d.Source == nil {
		return errs.New(errs.KindProtocolViolation, "clone_file: missing source", nil)
	}
	f := &model.FileInfo{
		Name:          d.Source.Name,
		Type:          d.Source.Type,
		Size:          d.Source.Size,
		BlockSize:     d.Source.BlockSize,
		ModifiedS:     d.Source.ModifiedS,
		ModifiedNs:    d.Source.ModifiedNs,
		Permissions:   d.Source.Permissions,
		Deleted:       d.Source.Deleted,
		SymlinkTarget: d.Source.SymlinkTarget,
		Blocks:        append([]model.BlockRef(nil), d.Source.Blocks...),
		Version:       d.Source.Version.Clone(),
	}
	cluster.PutFile(fi, f)
	d.Result = f
	return nil
}

func (d *CloneFile) Visit(v Visitor) error { return v.VisitCloneFile(d) }
