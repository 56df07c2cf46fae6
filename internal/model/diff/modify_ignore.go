package diff

import "github.com/svmk2808/syncspirit/internal/model"

// IgnoreDevice records a device id whose connection attempts and
// ClusterConfig advertisements are refused from now on.
type IgnoreDevice struct {
	DoForceCommit

	DeviceID string
}

func (d *IgnoreDevice) Apply(cluster *model.Cluster) error {
	cluster.IgnoreDevice(d.DeviceID)
	return nil
}

func (d *IgnoreDevice) Visit(v Visitor) error { return v.VisitIgnoreDevice(d) }

// IgnoreFolder declines a folder a peer offered, so it stops appearing in
// the unknown-folders set on every reconnect.
type IgnoreFolder struct {
	DoForceCommit

	FolderID string
}

func (d *IgnoreFolder) Apply(cluster *model.Cluster) error {
	cluster.IgnoreFolder(d.FolderID)
	return nil
}

func (d *IgnoreFolder) Visit(v Visitor) error { return v.VisitIgnoreFolder(d) }
