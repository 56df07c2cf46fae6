package diff

import "github.com/svmk2808/syncspirit/internal/model"

// ClusterConfigFolder is one (folder, our-view-of-it) entry out of a peer's
// incoming ClusterConfig message (spec.md §4.4 "ClusterConfig
// reconciliation").
type ClusterConfigFolder struct {
	FolderID string
	Label    string
}

// PeerClusterUpdate applies a just-received ClusterConfig from a connected
// peer: folders the peer shares that we don't know about yet are recorded
// as unknown (surfaced to UI/auto-accept); folders we know but don't share
// with this peer are ignored; folders we do share are left to the owning
// peer actor to decide whether a full re-index is needed (that decision
// depends on the peer's per-connection index-id bookkeeping, not on
// anything the Cluster itself needs to store).
type PeerClusterUpdate struct {
	DoForceCommit

	PeerDevice string
	Folders    []ClusterConfigFolder

	// NewlyUnknown and NewlyDropped record what Apply actually decided for
	// each folder, so observers (persistence) can mirror the exact outcome
	// instead of re-deriving it against their own, possibly stale, view of
	// the cluster.
	NewlyUnknown []*model.UnknownFolder
	NewlyDropped []model.FolderInfoKey
}

func (d *PeerClusterUpdate) Apply(cluster *model.Cluster) error {
	for _, f := range d.Folders {
		if _, known := cluster.Folder(f.FolderID); !known {
			u := &model.UnknownFolder{
				FolderID: f.FolderID,
				Label:    f.Label,
				DeviceID: d.PeerDevice,
			}
			cluster.PutUnknownFolder(u)
			d.NewlyUnknown = append(d.NewlyUnknown, u)
			continue
		}
		if _, shared := cluster.FolderInfo(f.FolderID, d.PeerDevice); shared {
			cluster.DropUnknownFolder(f.FolderID, d.PeerDevice)
			d.NewlyDropped = append(d.NewlyDropped, model.FolderInfoKey{FolderID: f.FolderID, DeviceID: d.PeerDevice})
		}
		// Known but not shared with this peer: no action (spec.md §4.4).
	}
	return nil
}

func (d *PeerClusterUpdate) Visit(v Visitor) error { return v.VisitPeerClusterUpdate(d) }
