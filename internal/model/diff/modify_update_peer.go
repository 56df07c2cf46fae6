package diff

import "github.com/svmk2808/syncspirit/internal/model"

// UpdatePeer creates or replaces a Device record, e.g. when the user adds a
// new known peer or edits an existing one's display name, static addresses,
// or pause state.
type UpdatePeer struct {
	DoForceCommit

	Device *model.Device
}

func (d *UpdatePeer) Apply(cluster *model.Cluster) error {
	cluster.PutDevice(d.Device)
	return nil
}

func (d *UpdatePeer) Visit(v Visitor) error { return v.VisitUpdatePeer(d) }
