package diff

import (
	"github.com/svmk2808/syncspirit/internal/errs"
	"github.com/svmk2808/syncspirit/internal/model"
)

// CreateFolder creates a Folder and the local device's FolderInfo for it
// (spec.md §8 scenario 2: a fresh FolderInfo always starts at max-sequence
// 0 with a non-zero index-id).
type CreateFolder struct {
	DoForceCommit

	Folder      *model.Folder
	LocalDevice string
	IndexID     uint64
}

func (d *CreateFolder) Apply(cluster *model.Cluster) error {
	if d.Folder == nil || d.Folder.ID == "" {
		return errs.New(errs.KindProtocolViolation, "create_folder: missing folder id", nil)
	}
	if _, exists := cluster.Folder(d.Folder.ID); exists {
		return errs.New(errs.KindProtocolViolation, "create_folder: folder already exists: "+d.Folder.ID, nil)
	}
	local, ok := cluster.Device(d.LocalDevice)
	if !ok {
		return errs.New(errs.KindProtocolViolation, "create_folder: unknown local device: "+d.LocalDevice, nil)
	}
	cluster.PutFolder(d.Folder)
	fi := model.NewFolderInfo(d.Folder, local, d.IndexID)
	cluster.PutFolderInfo(fi)
	return nil
}

func (d *CreateFolder) Visit(v Visitor) error { return v.VisitCreateFolder(d) }
