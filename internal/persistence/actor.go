package persistence

import (
	"github.com/svmk2808/syncspirit/internal/model"
	"github.com/svmk2808/syncspirit/internal/model/diff"
	"github.com/svmk2808/syncspirit/internal/slog"
)

// Actor is the diff.Visitor the coordinator fans every applied diff out
// to for durability. It embeds diff.Base so it only has to override the
// handful of diff kinds that change something worth persisting; pure
// in-memory bookkeeping diffs (e.g. the load diffs themselves, which only
// ever flow the other direction) fall through to Base's no-ops.
type Actor struct {
	diff.Base

	store *Store
	log   slog.Log
}

func NewActor(store *Store, log slog.Log) *Actor {
	return &Actor{store: store, log: log}
}

// Commit flushes the store's open transaction if d requires a forced
// commit or the uncommitted-write threshold has been crossed. The
// coordinator calls this once per applied diff, after Visit.
func (a *Actor) Commit(d diff.ForceCommit) error {
	return a.store.maybeCommit(d.ForceCommit())
}

func (a *Actor) VisitCreateFolder(d *diff.CreateFolder) error {
	if err := a.store.put(folderKey(d.Folder.ID), encodeFolder(d.Folder)); err != nil {
		return err
	}
	return a.putFolderInfo(d.Folder.ID, d.LocalDevice, d.IndexID)
}

func (a *Actor) VisitShareFolder(d *diff.ShareFolder) error {
	return a.putFolderInfo(d.FolderID, d.DeviceID, d.IndexID)
}

func (a *Actor) VisitUnshareFolder(d *diff.UnshareFolder) error {
	if err := a.store.deleteFolderInfo(d.FolderID, d.DeviceID); err != nil {
		return err
	}
	return a.store.deleteFileInfosFor(d.FolderID, d.DeviceID)
}

func (a *Actor) VisitUpdatePeer(d *diff.UpdatePeer) error {
	return a.store.put(deviceKey(d.Device.ID), encodeDevice(d.Device))
}

func (a *Actor) VisitIntroduceDevice(d *diff.IntroduceDevice) error {
	if !d.Installed {
		return nil
	}
	return a.store.put(deviceKey(d.Device.ID), encodeDevice(d.Device))
}

func (a *Actor) VisitLocalUpdate(d *diff.LocalUpdate) error {
	if d.Result == nil {
		return nil
	}
	return a.putFile(d.FolderID, d.LocalDevice, d.Result)
}

func (a *Actor) VisitCloneFile(d *diff.CloneFile) error {
	if d.Result == nil {
		return nil
	}
	return a.putFile(d.FolderID, d.LocalDevice, d.Result)
}

func (a *Actor) VisitFinishFile(d *diff.FinishFile) error {
	if d.Result == nil {
		return nil
	}
	return a.putFile(d.FolderID, d.LocalDevice, d.Result)
}

func (a *Actor) VisitIgnoreDevice(d *diff.IgnoreDevice) error {
	return a.store.put(ignoredDeviceKey(d.DeviceID), nil)
}

func (a *Actor) VisitIgnoreFolder(d *diff.IgnoreFolder) error {
	return a.store.put(ignoredFolderKey(d.FolderID), nil)
}

func (a *Actor) VisitPeerUpdateFolder(d *diff.PeerUpdateFolder) error {
	for _, f := range d.Results {
		if err := a.putFile(d.FolderID, d.PeerDevice, f); err != nil {
			return err
		}
	}
	return nil
}

func (a *Actor) VisitPeerClusterUpdate(d *diff.PeerClusterUpdate) error {
	for _, u := range d.NewlyUnknown {
		if err := a.store.put(unknownFolderKey(u.FolderID, u.DeviceID), encodeUnknownFolder(u)); err != nil {
			return err
		}
	}
	for _, k := range d.NewlyDropped {
		if err := a.store.delete(unknownFolderKey(k.FolderID, k.DeviceID)); err != nil {
			return err
		}
	}
	return nil
}

func (a *Actor) VisitAppendBlock(d *diff.AppendBlock) error {
	return a.store.put(blockInfoKey(d.Hash), encodeBlockInfo(&model.BlockInfo{Hash: d.Hash, Size: d.Size}))
}

func (a *Actor) VisitCloneBlock(d *diff.CloneBlock) error {
	return a.store.put(blockInfoKey(d.Hash), encodeBlockInfo(&model.BlockInfo{Hash: d.Hash}))
}

// putFolderInfo writes a fresh (folder, device) meta row under its
// store-allocated key sequence (spec.md §4.3).
func (a *Actor) putFolderInfo(folderID, deviceID string, indexID uint64) error {
	key, err := a.store.folderInfoKeyFor(folderID, deviceID)
	if err != nil {
		return err
	}
	return a.store.put(key, encodeFolderInfoMetaRaw(folderID, deviceID, indexID, 0))
}

// putFile writes f's row unconditionally, including tombstones: a
// deletion is a version bump, not an erasure, so a Deleted FileInfo is
// persisted like any other and never removed from the keyspace here.
func (a *Actor) putFile(folderID, deviceID string, f *model.FileInfo) error {
	key, err := a.store.fileInfoKeyFor(folderID, deviceID, f.Name)
	if err != nil {
		return err
	}
	return a.store.put(key, encodeFileInfoRow(folderID, deviceID, f))
}
