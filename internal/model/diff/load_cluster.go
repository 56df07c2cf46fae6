package diff

import "github.com/svmk2808/syncspirit/internal/model"

// LoadDevices installs every device record read from persistence at
// startup (spec.md §4.1, §4.3 "Load protocol").
type LoadDevices struct {
	NoForceCommit

	Devices []*model.Device
}

func (d *LoadDevices) Apply(cluster *model.Cluster) error {
	for _, dev := range d.Devices {
		cluster.PutDevice(dev)
	}
	return nil
}

func (d *LoadDevices) Visit(v Visitor) error { return v.VisitLoadDevices(d) }

// LoadFolders installs every locally-known folder record.
type LoadFolders struct {
	NoForceCommit

	Folders []*model.Folder
}

func (d *LoadFolders) Apply(cluster *model.Cluster) error {
	for _, f := range d.Folders {
		cluster.PutFolder(f)
	}
	return nil
}

func (d *LoadFolders) Visit(v Visitor) error { return v.VisitLoadFolders(d) }

// LoadFolderInfoEntry is one persisted (folder, device) pairing, resolved
// against the folders/devices already loaded earlier in the same
// LoadCluster aggregate.
type LoadFolderInfoEntry struct {
	FolderID    string
	DeviceID    string
	IndexID     uint64
	MaxSequence uint64
}

// LoadFolderInfos recreates the FolderInfo shells (without their files,
// which arrive separately via LoadFileInfos) for every persisted
// (folder, device) pairing.
type LoadFolderInfos struct {
	NoForceCommit

	Entries []*LoadFolderInfoEntry
}

func (d *LoadFolderInfos) Apply(cluster *model.Cluster) error {
	for _, e := range d.Entries {
		folder, ok := cluster.Folder(e.FolderID)
		if !ok {
			continue
		}
		device, ok := cluster.Device(e.DeviceID)
		if !ok {
			continue
		}
		fi := model.NewFolderInfo(folder, device, e.IndexID)
		cluster.PutFolderInfo(fi)
	}
	return nil
}

func (d *LoadFolderInfos) Visit(v Visitor) error { return v.VisitLoadFolderInfos(d) }

// LoadFileInfoEntry binds one persisted FileInfo to the (folder, device)
// FolderInfo it belongs to.
type LoadFileInfoEntry struct {
	FolderID string
	DeviceID string
	File     *model.FileInfo
}

// LoadFileInfos installs every persisted FileInfo into its owning
// FolderInfo, going through Cluster.PutFile so block refcounts come back
// up exactly as they were before the last close (spec.md §4.1 invariant:
// "the reconstructed cluster is bit-for-bit equivalent, as judged by its
// externally observable state, to the cluster immediately before close").
type LoadFileInfos struct {
	NoForceCommit

	Entries []*LoadFileInfoEntry
}

func (d *LoadFileInfos) Apply(cluster *model.Cluster) error {
	for _, e := range d.Entries {
		fi, ok := cluster.FolderInfo(e.FolderID, e.DeviceID)
		if !ok {
			continue
		}
		cluster.PutFile(fi, e.File)
	}
	return nil
}

func (d *LoadFileInfos) Visit(v Visitor) error { return v.VisitLoadFileInfos(d) }

// LoadBlocks installs block metadata (size, weak hash) ahead of the
// FileInfos that reference it, so LoadFileInfos never has to fabricate a
// BlockInfo on the fly.
type LoadBlocks struct {
	NoForceCommit

	Blocks []*model.BlockInfo
}

func (d *LoadBlocks) Apply(cluster *model.Cluster) error {
	for _, b := range d.Blocks {
		cluster.PutBlock(b)
	}
	return nil
}

func (d *LoadBlocks) Visit(v Visitor) error { return v.VisitLoadBlocks(d) }

// LoadIgnoredDevices restores the set of device IDs this device refuses to
// exchange indexes with.
type LoadIgnoredDevices struct {
	NoForceCommit

	IDs []string
}

func (d *LoadIgnoredDevices) Apply(cluster *model.Cluster) error {
	for _, id := range d.IDs {
		cluster.IgnoreDevice(id)
	}
	return nil
}

func (d *LoadIgnoredDevices) Visit(v Visitor) error { return v.VisitLoadIgnoredDevices(d) }

// LoadIgnoredFolders restores the set of folder IDs declined when offered
// by a peer.
type LoadIgnoredFolders struct {
	NoForceCommit

	IDs []string
}

func (d *LoadIgnoredFolders) Apply(cluster *model.Cluster) error {
	for _, id := range d.IDs {
		cluster.IgnoreFolder(id)
	}
	return nil
}

func (d *LoadIgnoredFolders) Visit(v Visitor) error { return v.VisitLoadIgnoredFolders(d) }

// LoadUnknownFolders restores folders a peer has advertised that we have
// neither accepted nor ignored yet (spec.md §4.4).
type LoadUnknownFolders struct {
	NoForceCommit

	Folders []*model.UnknownFolder
}

func (d *LoadUnknownFolders) Apply(cluster *model.Cluster) error {
	for _, u := range d.Folders {
		cluster.PutUnknownFolder(u)
	}
	return nil
}

func (d *LoadUnknownFolders) Visit(v Visitor) error { return v.VisitLoadUnknownFolders(d) }

// CloseTransaction is the sentinel diff that closes the load-cluster
// aggregate (spec.md §4.3 "Load protocol"). It mutates nothing; it is
// visited after the load diffs to mark the end of the load, regardless of
// which entity kinds actually had rows to emit. The store's read-only
// transaction is already closed by then, and the persistence actor does
// not act on it.
type CloseTransaction struct {
	NoForceCommit
}

func (d *CloseTransaction) Apply(*model.Cluster) error { return nil }

func (d *CloseTransaction) Visit(v Visitor) error { return v.VisitCloseTransaction(d) }

// LoadCluster is the aggregate diff produced in response to a
// load-cluster-request: one load diff per entity kind, in dependency
// order (devices and folders before the folder-infos that reference them,
// blocks before the file-infos that reference them), terminated by a
// CloseTransaction sentinel (spec.md §4.1, §4.3).
//
// Unlike a generic Aggregate, LoadCluster forces a commit when applied:
// reconstructing the cluster at startup is always a durability boundary.
type LoadCluster struct {
	DoForceCommit

	Devices        *LoadDevices
	Folders        *LoadFolders
	Blocks         *LoadBlocks
	FolderInfos    *LoadFolderInfos
	FileInfos      *LoadFileInfos
	IgnoredDevices *LoadIgnoredDevices
	IgnoredFolders *LoadIgnoredFolders
	UnknownFolders *LoadUnknownFolders
}

// NewLoadCluster returns a LoadCluster with an empty load diff for every
// entity kind, for the loader to fill in, so callers never have to
// nil-check.
func NewLoadCluster() *LoadCluster {
	return &LoadCluster{
		Devices:        &LoadDevices{},
		Folders:        &LoadFolders{},
		Blocks:         &LoadBlocks{},
		FolderInfos:    &LoadFolderInfos{},
		FileInfos:      &LoadFileInfos{},
		IgnoredDevices: &LoadIgnoredDevices{},
		IgnoredFolders: &LoadIgnoredFolders{},
		UnknownFolders: &LoadUnknownFolders{},
	}
}

func (d *LoadCluster) ordered() []Diff {
	return []Diff{
		d.Devices,
		d.Folders,
		d.Blocks,
		d.FolderInfos,
		d.FileInfos,
		d.IgnoredDevices,
		d.IgnoredFolders,
		d.UnknownFolders,
		&CloseTransaction{},
	}
}

func (d *LoadCluster) Apply(cluster *model.Cluster) error {
	for _, sub := range d.ordered() {
		if err := sub.Apply(cluster); err != nil {
			return err
		}
	}
	return nil
}

// Visit fans out to each sub-diff's own Visit (so a persistence observer
// sees VisitLoadFileInfos etc. as usual) before calling VisitLoadCluster
// once for the whole aggregate, mirroring Aggregate.Visit.
func (d *LoadCluster) Visit(v Visitor) error {
	for _, sub := range d.ordered() {
		if err := sub.Visit(v); err != nil {
			return err
		}
	}
	return v.VisitLoadCluster(d)
}
