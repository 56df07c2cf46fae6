package diff

import "github.com/svmk2808/syncspirit/internal/model"

// UnshareFolder destroys the FolderInfo for (FolderID, DeviceID), and with
// it every FileInfo the device had advertised for that folder (spec.md §3
// lifecycle: "created the first time a device shares the folder; destroyed
// on unshare").
type UnshareFolder struct {
	DoForceCommit

	FolderID string
	DeviceID string
}

func (d *UnshareFolder) Apply(cluster *model.Cluster) error {
	cluster.RemoveFolderInfo(d.FolderID, d.DeviceID)
	return nil
}

func (d *UnshareFolder) Visit(v Visitor) error { return v.VisitUnshareFolder(d) }
