// Package scan walks folder roots and reconciles on-disk state with the
// model (spec.md §4.7): unchanged files are skipped by size+mtime, changed
// or new files are hashed on the hasher pool and turned into local-update
// diffs, vanished files become tombstones, and orphaned temp files are
// removed.
package scan

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/svmk2808/syncspirit/internal/coordinator"
	"github.com/svmk2808/syncspirit/internal/errs"
	"github.com/svmk2808/syncspirit/internal/fileio"
	"github.com/svmk2808/syncspirit/internal/hasher"
	"github.com/svmk2808/syncspirit/internal/model"
	"github.com/svmk2808/syncspirit/internal/model/diff"
	"github.com/svmk2808/syncspirit/internal/slog"
)

// Result summarizes one folder scan.
type Result struct {
	// Unchanged counts entries whose size and mtime matched the model.
	Unchanged int

	// ChangedMeta lists names whose size or mtime differed from the model
	// and were therefore re-hashed (spec.md §8 scenario 4).
	ChangedMeta []string

	// New lists names that were not in the model at all.
	New []string

	// Deleted lists names present in the model but absent on disk, for
	// which tombstone diffs were emitted.
	Deleted []string

	// Resumable lists temp files whose size matched the recorded file
	// size; the controller will reuse their content (spec.md §4.5).
	Resumable []string

	// RemovedTemps lists temp files removed for not matching any record
	// (spec.md §8 scenario 5).
	RemovedTemps []string
}

// Scanner scans one folder at a time. It only ever reads the filesystem;
// writing is the file actor's monopoly (spec.md §5).
type Scanner struct {
	coord       *coordinator.Coordinator
	pool        *hasher.Pool
	localDevice string
	log         slog.Log
}

func New(coord *coordinator.Coordinator, pool *hasher.Pool, localDevice string, log slog.Log) *Scanner {
	return &Scanner{coord: coord, pool: pool, localDevice: localDevice, log: log}
}

// ScanFolder walks folder's root once and emits a local-update diff per
// detected change.
func (s *Scanner) ScanFolder(ctx context.Context, folder *model.Folder) (*Result, error) {
	fi, ok := s.coord.Cluster().FolderInfo(folder.ID, s.localDevice)
	if !ok {
		return nil, errs.New(errs.KindUnknownFolder, "scan: "+folder.ID, nil)
	}

	res := &Result{}
	seen := make(map[string]struct{})

	err := filepath.WalkDir(folder.Path, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return errs.New(errs.KindCancelled, "scan", ctx.Err())
		}
		name, relErr := filepath.Rel(folder.Path, path)
		if relErr != nil || name == "." {
			return nil
		}

		if strings.HasSuffix(name, fileio.TempSuffix) {
			s.handleTemp(folder, fi, name, seen, res)
			return nil
		}

		seen[name] = struct{}{}
		switch {
		case entry.Type()&fs.ModeSymlink != 0:
			return s.scanSymlink(ctx, folder, fi, path, name, res)
		case entry.IsDir():
			return s.scanDir(ctx, folder, fi, path, name, res)
		default:
			return s.scanFile(ctx, folder, fi, path, name, res)
		}
	})
	if err != nil {
		return res, err
	}

	if err := s.emitTombstones(ctx, folder, fi, seen, res); err != nil {
		return res, err
	}
	return res, nil
}

// handleTemp applies the temp-file rules (spec.md §4.7): a temp whose size
// matches the recorded file size is resumable — and shields its base name
// from tombstoning, the pull is merely unfinished — anything else is
// removed.
func (s *Scanner) handleTemp(folder *model.Folder, fi *model.FolderInfo, name string, seen map[string]struct{}, res *Result) {
	base := strings.TrimSuffix(name, fileio.TempSuffix)
	st, err := os.Stat(filepath.Join(folder.Path, name))
	if err != nil {
		return
	}
	if rec, ok := fi.FileByName(base); ok && rec.Size == st.Size() {
		seen[base] = struct{}{}
		res.Resumable = append(res.Resumable, base)
		return
	}
	if err := os.Remove(filepath.Join(folder.Path, name)); err != nil {
		s.log.Warn("removing stale temp failed", slog.String("name", name), slog.Err(err))
		return
	}
	res.RemovedTemps = append(res.RemovedTemps, name)
}

func (s *Scanner) scanDir(ctx context.Context, folder *model.Folder, fi *model.FolderInfo, path, name string, res *Result) error {
	st, err := os.Stat(path)
	if err != nil {
		return nil
	}
	if rec, ok := fi.FileByName(name); ok && !rec.Deleted && rec.Type == model.FileDirectory {
		res.Unchanged++
		return nil
	}
	res.New = append(res.New, name)
	return s.coord.Apply(ctx, &diff.LocalUpdate{
		FolderID:    folder.ID,
		LocalDevice: s.localDevice,
		Name:        name,
		Type:        model.FileDirectory,
		ModifiedS:   st.ModTime().Unix(),
		ModifiedNs:  int32(st.ModTime().Nanosecond()),
		Permissions: permOf(st, folder),
	})
}

func (s *Scanner) scanSymlink(ctx context.Context, folder *model.Folder, fi *model.FolderInfo, path, name string, res *Result) error {
	target, err := os.Readlink(path)
	if err != nil {
		return nil
	}
	if rec, ok := fi.FileByName(name); ok && !rec.Deleted && rec.Type == model.FileSymlink && rec.SymlinkTarget == target {
		res.Unchanged++
		return nil
	}
	res.New = append(res.New, name)
	return s.coord.Apply(ctx, &diff.LocalUpdate{
		FolderID:      folder.ID,
		LocalDevice:   s.localDevice,
		Name:          name,
		Type:          model.FileSymlink,
		SymlinkTarget: target,
	})
}

func (s *Scanner) scanFile(ctx context.Context, folder *model.Folder, fi *model.FolderInfo, path, name string, res *Result) error {
	st, err := os.Stat(path)
	if err != nil {
		return nil
	}
	rec, known := fi.FileByName(name)
	if known && !rec.Deleted && rec.Type == model.FileRegular &&
		rec.Size == st.Size() && rec.ModifiedS == st.ModTime().Unix() {
		res.Unchanged++
		return nil
	}
	if known && !rec.Deleted {
		res.ChangedMeta = append(res.ChangedMeta, name)
	} else {
		res.New = append(res.New, name)
	}
	return s.hashAndUpdate(ctx, folder, path, name, st, res)
}

// hashAndUpdate reads the file, hashes its blocks on the pool, and emits
// the local-update diff carrying the fresh block list.
func (s *Scanner) hashAndUpdate(ctx context.Context, folder *model.Folder, path, name string, st os.FileInfo, _ *Result) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errs.New(errs.KindIOError, "scan.read "+name, err)
	}
	blockSize := hasher.BlockSizeFor(int64(len(data)))
	digests, err := s.pool.HashBlocks(ctx, data, blockSize)
	if err != nil {
		return err
	}
	blocks := make([]model.BlockRef, 0, len(digests))
	for i, d := range digests {
		blocks = append(blocks, model.BlockRef{Hash: d.Hash, Index: i})
	}
	return s.coord.Apply(ctx, &diff.LocalUpdate{
		FolderID:    folder.ID,
		LocalDevice: s.localDevice,
		Name:        name,
		Type:        model.FileRegular,
		Size:        st.Size(),
		BlockSize:   blockSize,
		ModifiedS:   st.ModTime().Unix(),
		ModifiedNs:  int32(st.ModTime().Nanosecond()),
		Permissions: permOf(st, folder),
		Blocks:      blocks,
	})
}

// emitTombstones produces a deleted-flag local-update for every model file
// that no longer exists on disk (spec.md §4.7).
func (s *Scanner) emitTombstones(ctx context.Context, folder *model.Folder, fi *model.FolderInfo, seen map[string]struct{}, res *Result) error {
	var missing []*model.FileInfo
	for name, rec := range fi.Files() {
		if rec.Deleted {
			continue
		}
		if _, onDisk := seen[name]; !onDisk {
			missing = append(missing, rec)
		}
	}
	for _, rec := range missing {
		res.Deleted = append(res.Deleted, rec.Name)
		if err := s.coord.Apply(ctx, &diff.LocalUpdate{
			FolderID:    folder.ID,
			LocalDevice: s.localDevice,
			Name:        rec.Name,
			Type:        rec.Type,
			Deleted:     true,
		}); err != nil {
			return err
		}
	}
	return nil
}

func permOf(st os.FileInfo, folder *model.Folder) uint32 {
	if folder.IgnorePermissions {
		return 0
	}
	return uint32(st.Mode().Perm())
}
