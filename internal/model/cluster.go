// Package model is the in-memory representation of devices, folders,
// folder-infos, file-infos, and blocks (spec.md §3, §4.2). It holds no
// mutation logic of its own beyond the handful of low-level operations the
// diff layer (internal/model/diff) composes into changes; application code
// never mutates a Cluster except through a Diff.
package model

import "sync"

// FolderInfoKey identifies a FolderInfo by its owning (folder, device) pair.
type FolderInfoKey struct {
	FolderID string
	DeviceID string
}

// UnknownFolder is a folder a peer has advertised via ClusterConfig that we
// have not locally accepted yet (spec.md §4.4 "ClusterConfig reconciliation").
type UnknownFolder struct {
	FolderID string
	Label    string
	DeviceID string
}

// Cluster owns devices, folders, the global block map, and the set of
// unknown folders (spec.md §4.2). It is accessed only from the Coordinator
// goroutine (spec.md §5), so its own locking exists solely to let read-only
// status queries (CLI, tests) run concurrently with that goroutine; it is
// not meant to let two mutators race.
type Cluster struct {
	mu sync.RWMutex

	devices map[string]*Device // by device id (sha256 string encoding)
	folders map[string]*Folder
	blocks  map[Hash]*BlockInfo
	refs    map[Hash]int // refcount: number of (non-deleted) FileInfo block refs

	folderInfos map[FolderInfoKey]*FolderInfo

	ignoredDevices map[string]struct{}
	ignoredFolders map[string]struct{}
	unknownFolders map[FolderInfoKey]*UnknownFolder

	// deletedBlocks accumulates hashes whose last reference was just
	// removed, for diff visitors (persistence GC, tests) to drain. It is
	// never implicitly cleared by Cluster itself.
	deletedBlocks map[Hash]struct{}

	// available is the set of block hashes whose bytes this device already
	// holds locally, distinct from blocks (every hash referenced by any
	// known FileInfo, local or remote). A FileInfo is complete (spec.md §3
	// invariant 3) iff every one of its block hashes is in available.
	available map[Hash]struct{}

	// tainted is set by Taint once a diff fails with a
	// non-recoverable error; future persistence diffs then short-circuit to
	// success without writing (spec.md §4.2).
	tainted bool
}

// NewCluster returns an empty cluster.
func NewCluster() *Cluster {
	return &Cluster{
		devices:        make(map[string]*Device),
		folders:        make(map[string]*Folder),
		blocks:         make(map[Hash]*BlockInfo),
		refs:           make(map[Hash]int),
		folderInfos:    make(map[FolderInfoKey]*FolderInfo),
		ignoredDevices: make(map[string]struct{}),
		ignoredFolders: make(map[string]struct{}),
		unknownFolders: make(map[FolderInfoKey]*UnknownFolder),
		deletedBlocks:  make(map[Hash]struct{}),
		available:      make(map[Hash]struct{}),
	}
}

// --- devices ---

func (c *Cluster) PutDevice(d *Device) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.devices[d.ID] = d
}

func (c *Cluster) Device(id string) (*Device, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.devices[id]
	return d, ok
}

func (c *Cluster) Devices() []*Device {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Device, 0, len(c.devices))
	for _, d := range c.devices {
		out = append(out, d)
	}
	return out
}

// --- folders ---

func (c *Cluster) PutFolder(f *Folder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.folders[f.ID] = f
}

func (c *Cluster) Folder(id string) (*Folder, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.folders[id]
	return f, ok
}

func (c *Cluster) Folders() []*Folder {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Folder, 0, len(c.folders))
	for _, f := range c.folders {
		out = append(out, f)
	}
	return out
}

// --- folder-infos ---

func (c *Cluster) PutFolderInfo(fi *FolderInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.folderInfos[FolderInfoKey{FolderID: fi.Folder.ID, DeviceID: fi.Device.ID}] = fi
}

func (c *Cluster) FolderInfo(folderID, deviceID string) (*FolderInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fi, ok := c.folderInfos[FolderInfoKey{FolderID: folderID, DeviceID: deviceID}]
	return fi, ok
}

// FolderInfosFor returns every FolderInfo sharing the given folder, one per
// device that has it.
func (c *Cluster) FolderInfosFor(folderID string) []*FolderInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*FolderInfo, 0)
	for k, fi := range c.folderInfos {
		if k.FolderID == folderID {
			out = append(out, fi)
		}
	}
	return out
}

// RemoveFolderInfo deletes a FolderInfo, e.g. on unshare. Its FileInfos go
// with it; any blocks they referenced are unlinked.
func (c *Cluster) RemoveFolderInfo(folderID, deviceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := FolderInfoKey{FolderID: folderID, DeviceID: deviceID}
	fi, ok := c.folderInfos[key]
	if !ok {
		return
	}
	for _, f := range fi.files {
		c.unlinkLocked(f)
	}
	delete(c.folderInfos, key)
}

// --- file-infos: the single mutation point for file content ---

// PutFile installs or replaces a FileInfo within its FolderInfo, updating
// block refcounts for the old and new block sets. Callers (the diff layer)
// must have already decided this write should happen (vector-clock
// dominance, sequence bookkeeping); PutFile itself performs no conflict
// checking.
func (c *Cluster) PutFile(fi *FolderInfo, f *FileInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := fi.files[f.Name]; ok {
		c.unlinkLocked(old)
	}
	for _, b := range f.Blocks {
		c.linkLocked(b.Hash)
	}
	fi.put(f)
}

func (c *Cluster) linkLocked(h Hash) {
	if h.IsZero() {
		return
	}
	c.refs[h]++
	if _, ok := c.blocks[h]; !ok {
		c.blocks[h] = &BlockInfo{Hash: h}
	}
	delete(c.deletedBlocks, h)
}

func (c *Cluster) unlinkLocked(f *FileInfo) {
	for _, b := range f.Blocks {
		if b.Hash.IsZero() {
			continue
		}
		c.refs[b.Hash]--
		if c.refs[b.Hash] <= 0 {
			delete(c.refs, b.Hash)
			delete(c.blocks, b.Hash)
			delete(c.available, b.Hash)
			c.deletedBlocks[b.Hash] = struct{}{}
		}
	}
}

// --- blocks ---

// PutBlock inserts or updates the metadata (size, weak hash) for a
// content-addressed block without changing its refcount; used by load and
// by index application when a new version references a hash we have never
// seen before.
func (c *Cluster) PutBlock(b *BlockInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocks[b.Hash] = b
}

func (c *Cluster) Block(h Hash) (*BlockInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.blocks[h]
	return b, ok
}

// BlockCount returns the number of distinct blocks currently referenced by
// at least one FileInfo (spec.md §8 testable property).
func (c *Cluster) BlockCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.blocks)
}

// DrainDeletedBlocks returns and clears the set of block hashes whose last
// reference was removed since the last drain.
func (c *Cluster) DrainDeletedBlocks() []Hash {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Hash, 0, len(c.deletedBlocks))
	for h := range c.deletedBlocks {
		out = append(out, h)
	}
	c.deletedBlocks = make(map[Hash]struct{})
	return out
}

// MarkBlockAvailable records that this device now holds h's bytes locally
// (spec.md §4.6's append_block/clone_block eventually call this indirectly
// via their diffs).
func (c *Cluster) MarkBlockAvailable(h Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.available[h] = struct{}{}
}

// HasBlockAvailable reports whether this device holds h's bytes locally.
func (c *Cluster) HasBlockAvailable(h Hash) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.available[h]
	return ok
}

// --- ignored / unknown ---

func (c *Cluster) IgnoreDevice(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ignoredDevices[id] = struct{}{}
}

func (c *Cluster) IsIgnoredDevice(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.ignoredDevices[id]
	return ok
}

func (c *Cluster) IgnoredDevices() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.ignoredDevices))
	for id := range c.ignoredDevices {
		out = append(out, id)
	}
	return out
}

func (c *Cluster) IgnoreFolder(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ignoredFolders[id] = struct{}{}
}

func (c *Cluster) IsIgnoredFolder(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.ignoredFolders[id]
	return ok
}

func (c *Cluster) PutUnknownFolder(u *UnknownFolder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unknownFolders[FolderInfoKey{FolderID: u.FolderID, DeviceID: u.DeviceID}] = u
}

func (c *Cluster) UnknownFolders() []*UnknownFolder {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*UnknownFolder, 0, len(c.unknownFolders))
	for _, u := range c.unknownFolders {
		out = append(out, u)
	}
	return out
}

func (c *Cluster) DropUnknownFolder(folderID, deviceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.unknownFolders, FolderInfoKey{FolderID: folderID, DeviceID: deviceID})
}

// --- taint ---

// Taint marks the cluster as having suffered a non-recoverable consistency
// error (spec.md §4.2). Once tainted, it never un-taints; the owning
// supervisor is expected to tear down.
func (c *Cluster) Taint() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tainted = true
}

func (c *Cluster) Tainted() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tainted
}
