// Package controller drives what to pull next from one connected peer
// (spec.md §4.5): a file iterator selects remote files newer than or
// incomparable to ours, a block iterator decides per block between
// immediate application, a local clone, and a network request, and a
// bounded window keeps pipelined requests in flight while writes land
// strictly in offset order.
package controller

import (
	"context"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/svmk2808/syncspirit/internal/config"
	"github.com/svmk2808/syncspirit/internal/coordinator"
	"github.com/svmk2808/syncspirit/internal/errs"
	"github.com/svmk2808/syncspirit/internal/fileio"
	"github.com/svmk2808/syncspirit/internal/hasher"
	"github.com/svmk2808/syncspirit/internal/model"
	"github.com/svmk2808/syncspirit/internal/model/diff"
	"github.com/svmk2808/syncspirit/internal/slog"
)

// Requester is the slice of the peer actor the controller consumes; tests
// substitute an in-memory fake.
type Requester interface {
	DeviceID() string
	RequestBlock(ctx context.Context, folderID, name string, offset int64, size int32, hash model.Hash) ([]byte, error)
	Kick() <-chan struct{}
}

const idlePollInterval = 30 * time.Second

// Controller owns the pull loop for one peer.
type Controller struct {
	cfg   config.Config
	coord *coordinator.Coordinator
	files *fileio.Actor
	peer  Requester
	log   slog.Log

	window int
}

func New(cfg config.Config, coord *coordinator.Coordinator, files *fileio.Actor, peer Requester, log slog.Log) *Controller {
	window := cfg.HasherThreads * 2
	if window < 1 {
		window = 1
	}
	return &Controller{
		cfg:    cfg,
		coord:  coord,
		files:  files,
		peer:   peer,
		log:    log,
		window: window,
	}
}

// Run pulls until ctx is cancelled: one pass over everything currently
// out of date, then sleep until the peer actor kicks (new index data) or
// the idle poll fires.
func (c *Controller) Run(ctx context.Context) {
	for {
		if err := c.PullPass(ctx); err != nil {
			if errs.KindOf(err) == errs.KindCancelled {
				return
			}
			c.log.Warn("pull pass failed", slog.Err(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-c.peer.Kick():
		case <-time.After(idlePollInterval):
		}
	}
}

// PullPass walks every folder shared with the peer once and syncs each
// out-of-date file. Exported so tests (and the supervisor's initial sync)
// can run a single deterministic pass.
func (c *Controller) PullPass(ctx context.Context) error {
	cluster := c.coord.Cluster()
	peerID := c.peer.DeviceID()

	// Each pass gets its own correlation id so interleaved log lines from
	// concurrent per-peer controllers can be told apart.
	passLog := c.log.With(slog.String("pass", uuid.NewString()[:8]))

	if d, ok := cluster.Device(peerID); ok && d.Paused {
		return nil
	}

	for _, folder := range cluster.Folders() {
		if !folder.PullCapable() {
			continue
		}
		peerFI, shared := cluster.FolderInfo(folder.ID, peerID)
		localFI, local := cluster.FolderInfo(folder.ID, c.cfg.DeviceID)
		if !shared || !local {
			continue
		}
		for _, remote := range c.selectFiles(peerFI, localFI, folder.PullOrder) {
			if err := c.syncFile(ctx, folder, remote); err != nil {
				if errs.KindOf(err) == errs.KindCancelled {
					return err
				}
				passLog.Warn("file sync failed",
					slog.String("folder", folder.ID),
					slog.String("name", remote.Name),
					slog.Err(err))
			}
		}
	}
	return nil
}

// selectFiles is the file iterator (spec.md §4.5): remote files whose
// version is newer than or incomparable to the local one, ordered by the
// folder's pull order.
func (c *Controller) selectFiles(peerFI, localFI *model.FolderInfo, order model.PullOrder) []*model.FileInfo {
	var out []*model.FileInfo
	for name, remote := range peerFI.Files() {
		if remote.Invalid {
			continue
		}
		local, ok := localFI.FileByName(name)
		if ok {
			switch remote.Version.Compare(local.Version) {
			case model.RelGreater, model.RelConflict:
			default:
				continue
			}
		}
		out = append(out, remote)
	}
	sortByPullOrder(out, order)
	return out
}

func sortByPullOrder(files []*model.FileInfo, order model.PullOrder) {
	switch order {
	case model.PullAlphabetic:
		sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	case model.PullSmallestFirst:
		sort.Slice(files, func(i, j int) bool { return files[i].Size < files[j].Size })
	case model.PullLargestFirst:
		sort.Slice(files, func(i, j int) bool { return files[i].Size > files[j].Size })
	case model.PullOldestFirst:
		sort.Slice(files, func(i, j int) bool { return files[i].ModifiedS < files[j].ModifiedS })
	case model.PullRandom:
		// Map iteration order already randomized the slice.
	}
}

// syncFile applies one remote file locally: immediate kinds directly,
// block kinds through the clone-or-request block iterator, then the
// finish-file commit.
func (c *Controller) syncFile(ctx context.Context, folder *model.Folder, remote *model.FileInfo) error {
	clone := &diff.CloneFile{
		FolderID:    folder.ID,
		LocalDevice: c.cfg.DeviceID,
		Source:      remote,
	}
	if err := c.coord.Apply(ctx, clone); err != nil {
		return err
	}

	switch {
	case remote.Deleted:
		if err := c.files.ApplyDelete(folder.Path, remote.Name); err != nil {
			return err
		}
	case remote.Type == model.FileDirectory:
		if err := c.files.ApplyDirectory(folder.Path, remote.Name, remote.Permissions, folder.IgnorePermissions); err != nil {
			return err
		}
	case remote.Type == model.FileSymlink:
		if err := c.files.ApplySymlink(folder.Path, remote.Name, remote.SymlinkTarget); err != nil {
			return err
		}
	case remote.IsZeroLength():
		modTime := time.Unix(remote.ModifiedS, int64(remote.ModifiedNs))
		if err := c.files.ApplyZeroLength(folder.Path, remote.Name, modTime, remote.Permissions, folder.IgnorePermissions); err != nil {
			return err
		}
	default:
		if err := c.pullBlocks(ctx, folder, remote); err != nil {
			return err
		}
		modTime := time.Unix(remote.ModifiedS, int64(remote.ModifiedNs))
		if err := c.files.FlushFile(folder.Path, remote.Name, modTime, remote.Permissions, folder.IgnorePermissions); err != nil {
			return err
		}
	}

	finish := &diff.FinishFile{
		FolderID:    folder.ID,
		LocalDevice: c.cfg.DeviceID,
		Name:        remote.Name,
	}
	return c.coord.Apply(ctx, finish)
}

type blockAction int

const (
	actionHave blockAction = iota // already on disk from a resumed temp file
	actionClone
	actionRequest
)

type blockPlan struct {
	ref    model.BlockRef
	offset int64
	size   int32
	action blockAction

	srcRoot   string // clone source folder root
	srcName   string // clone source, folder-relative
	srcOffset int64
}

type fetchResult struct {
	data []byte
	err  error
}

// pullBlocks is the block iterator plus the bounded request window: plan
// each block's action, launch network fetches up to the window, and apply
// results strictly in offset order (spec.md §4.5).
func (c *Controller) pullBlocks(ctx context.Context, folder *model.Folder, remote *model.FileInfo) error {
	plan := c.planBlocks(folder, remote)

	if err := c.files.CloneFile(folder.Path, remote.Name, remote.Size); err != nil {
		return err
	}

	sem := make(chan struct{}, c.window)
	fetches := make(map[int]chan fetchResult, len(plan))
	fetchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	for i, p := range plan {
		if p.action != actionRequest {
			continue
		}
		p := p
		result := make(chan fetchResult, 1)
		fetches[i] = result
		select {
		case sem <- struct{}{}:
		case <-fetchCtx.Done():
			return errs.New(errs.KindCancelled, "controller.pullBlocks", fetchCtx.Err())
		}
		go func() {
			defer func() { <-sem }()
			data, err := c.peer.RequestBlock(fetchCtx, folder.ID, remote.Name, p.offset, p.size, p.ref.Hash)
			result <- fetchResult{data: data, err: err}
		}()
	}

	for i, p := range plan {
		switch p.action {
		case actionHave:
			continue
		case actionClone:
			if err := c.files.CloneBlock(p.srcRoot, p.srcName, p.srcOffset, folder.Path, remote.Name, p.offset, int(p.size)); err != nil {
				return err
			}
			if err := c.coord.Apply(ctx, &diff.CloneBlock{
				FolderID:   folder.ID,
				SourceName: p.srcName,
				TargetName: remote.Name,
				Index:      p.ref.Index,
				Hash:       p.ref.Hash,
			}); err != nil {
				return err
			}
		case actionRequest:
			var res fetchResult
			select {
			case res = <-fetches[i]:
			case <-ctx.Done():
				return errs.New(errs.KindCancelled, "controller.pullBlocks", ctx.Err())
			}
			if res.err != nil {
				return res.err
			}
			if err := hasher.Validate(res.data, p.ref.Hash); err != nil {
				// The file stays incomplete; its temp survives for the
				// next attempt (spec.md §7 "Digest mismatches taint the
				// file ... the peer is not necessarily disconnected").
				return err
			}
			if err := c.files.AppendBlock(folder.Path, remote.Name, p.offset, res.data); err != nil {
				return err
			}
			if err := c.coord.Apply(ctx, &diff.AppendBlock{
				FolderID: folder.ID,
				Name:     remote.Name,
				Index:    p.ref.Index,
				Hash:     p.ref.Hash,
				Size:     p.size,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

// planBlocks decides each block's action: reuse resumable temp content,
// clone a locally available hash, or request over the network.
func (c *Controller) planBlocks(folder *model.Folder, remote *model.FileInfo) []blockPlan {
	cluster := c.coord.Cluster()
	blockSize := int64(remote.BlockSize)
	resumable := tempMatches(folder.Path, remote.Name, remote.Size)

	plan := make([]blockPlan, 0, len(remote.Blocks))
	for _, ref := range remote.Blocks {
		offset := int64(ref.Index) * blockSize
		size := blockSize
		if offset+size > remote.Size {
			size = remote.Size - offset
		}
		p := blockPlan{ref: ref, offset: offset, size: int32(size), action: actionRequest}

		if resumable && c.blockOnDiskValid(folder.Path, remote.Name+fileio.TempSuffix, offset, int(size), ref.Hash) {
			p.action = actionHave
		} else if cluster.HasBlockAvailable(ref.Hash) {
			// The candidate's bytes are re-verified on disk before the
			// network request is skipped; a stale index entry falls back
			// to a plain request.
			if srcRoot, srcName, srcOffset, ok := c.findLocalBlock(ref.Hash, folder.ID, remote.Name); ok &&
				c.blockOnDiskValid(srcRoot, srcName, srcOffset, int(size), ref.Hash) {
				p.action = actionClone
				p.srcRoot = srcRoot
				p.srcName = srcName
				p.srcOffset = srcOffset
			}
		}
		plan = append(plan, p)
	}
	return plan
}

// tempMatches reports whether a resumable temp file of exactly the target
// size is already on disk (spec.md §4.5 "Resume semantics").
func tempMatches(root, name string, size int64) bool {
	st, err := os.Stat(fileio.TempPath(root, name))
	return err == nil && st.Size() == size
}

// blockOnDiskValid re-hashes one block range of an on-disk file and
// compares it against the expected content hash; resumed temps and clone
// sources are only trusted when their bytes actually match.
func (c *Controller) blockOnDiskValid(root, name string, offset int64, size int, expected model.Hash) bool {
	data, err := c.files.ReadBlock(root, name, offset, size)
	if err != nil || len(data) != size {
		return false
	}
	return hasher.Validate(data, expected) == nil
}

// findLocalBlock locates some complete local file containing the hash, for
// use as a clone source. The file currently being pulled is excluded — its
// index entry exists the moment clone-file applies, long before its bytes
// do. Linear in the local index; block reuse is rare enough per pass that
// an inverted index has not earned its keep.
func (c *Controller) findLocalBlock(h model.Hash, targetFolderID, targetName string) (root, name string, offset int64, ok bool) {
	cluster := c.coord.Cluster()
	for _, folder := range cluster.Folders() {
		fi, exists := cluster.FolderInfo(folder.ID, c.cfg.DeviceID)
		if !exists {
			continue
		}
		for _, f := range fi.Files() {
			if f.Deleted || f.Invalid || f.Type != model.FileRegular {
				continue
			}
			if folder.ID == targetFolderID && f.Name == targetName {
				continue
			}
			for _, b := range f.Blocks {
				if b.Hash == h {
					return folder.Path, f.Name, int64(b.Index) * int64(f.BlockSize), true
				}
			}
		}
	}
	return "", "", 0, false
}
