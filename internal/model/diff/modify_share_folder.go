package diff

import (
	"github.com/svmk2808/syncspirit/internal/errs"
	"github.com/svmk2808/syncspirit/internal/model"
)

// ShareFolder shares an already-created folder with a peer device, creating
// that peer's FolderInfo (spec.md §8 scenario 2: max-sequence=0, non-zero
// index-id for the new FolderInfo).
type ShareFolder struct {
	DoForceCommit

	FolderID string
	DeviceID string
	IndexID  uint64
}

func (d *ShareFolder) Apply(cluster *model.Cluster) error {
	folder, ok := cluster.Folder(d.FolderID)
	if !ok {
		return errs.New(errs.KindUnknownFolder, "share_folder: "+d.FolderID, nil)
	}
	device, ok := cluster.Device(d.DeviceID)
	if !ok {
		return errs.New(errs.KindProtocolViolation, "share_folder: unknown device: "+d.DeviceID, nil)
	}
	if _, exists := cluster.FolderInfo(d.FolderID, d.DeviceID); exists {
		return errs.New(errs.KindProtocolViolation, "share_folder: already shared", nil)
	}
	fi := model.NewFolderInfo(folder, device, d.IndexID)
	cluster.PutFolderInfo(fi)
	return nil
}

func (d *ShareFolder) Visit(v Visitor) error { return v.VisitShareFolder(d) }
