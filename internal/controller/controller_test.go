package controller_test

import (
	"context"
	"crypto/sha256"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/svmk2808/syncspirit/internal/config"
	"github.com/svmk2808/syncspirit/internal/controller"
	"github.com/svmk2808/syncspirit/internal/coordinator"
	"github.com/svmk2808/syncspirit/internal/errs"
	"github.com/svmk2808/syncspirit/internal/fileio"
	"github.com/svmk2808/syncspirit/internal/model"
	"github.com/svmk2808/syncspirit/internal/model/diff"
	"github.com/svmk2808/syncspirit/internal/slog"
)

const (
	localID = "LOCAL-DEVICE"
	peerID  = "PEER-DEVICE"
)

// fakePeer serves blocks from an in-memory map keyed by content hash.
type fakePeer struct {
	blocks   map[model.Hash][]byte
	requests int
	kick     chan struct{}
}

func newFakePeer() *fakePeer {
	return &fakePeer{blocks: make(map[model.Hash][]byte), kick: make(chan struct{}, 1)}
}

func (p *fakePeer) DeviceID() string       { return peerID }
func (p *fakePeer) Kick() <-chan struct{} { return p.kick }

func (p *fakePeer) RequestBlock(_ context.Context, _, _ string, _ int64, _ int32, hash model.Hash) ([]byte, error) {
	p.requests++
	data, ok := p.blocks[hash]
	if !ok {
		return nil, errs.New(errs.KindUnknownFolder, "no such block", nil)
	}
	return data, nil
}

type fixture struct {
	ctx   context.Context
	coord *coordinator.Coordinator
	files *fileio.Actor
	peer  *fakePeer
	ctl   *controller.Controller
	root  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	root := t.TempDir()
	cluster := model.NewCluster()
	cluster.PutDevice(&model.Device{ID: localID})
	cluster.PutDevice(&model.Device{ID: peerID})
	coord := coordinator.New(cluster, slog.Nop())
	go coord.Run(ctx)

	require.NoError(t, coord.Apply(ctx, &diff.CreateFolder{
		Folder:      &model.Folder{ID: "f1", Label: "f1", Path: root, PullOrder: model.PullAlphabetic},
		LocalDevice: localID,
		IndexID:     model.NewIndexID(),
	}))
	require.NoError(t, coord.Apply(ctx, &diff.ShareFolder{
		FolderID: "f1", DeviceID: peerID, IndexID: model.NewIndexID(),
	}))

	cfg := config.Default()
	cfg.DeviceID = localID
	files := fileio.NewActor(cfg.MappingCacheSize, slog.Nop())
	t.Cleanup(files.Close)
	peer := newFakePeer()
	return &fixture{
		ctx:   ctx,
		coord: coord,
		files: files,
		peer:  peer,
		ctl:   controller.New(cfg, coord, files, peer, slog.Nop()),
		root:  root,
	}
}

// advertise installs a file in the peer's folder-info, as an Index message
// would have.
func (f *fixture) advertise(t *testing.T, file *model.FileInfo) {
	t.Helper()
	require.NoError(t, f.coord.Apply(f.ctx, &diff.PeerUpdateFolder{
		FolderID:   "f1",
		PeerDevice: peerID,
		Files:      []*model.FileInfo{file},
	}))
}

// Scenario: the peer advertises q.txt, size 5, one block of
// sha256("12345"); after a pull pass the final file exists with that
// content and the temp file is gone.
func TestSingleBlockFilePull(t *testing.T) {
	f := newFixture(t)

	content := []byte("12345")
	h := model.Hash(sha256.Sum256(content))
	f.peer.blocks[h] = content
	f.advertise(t, &model.FileInfo{
		Name:      "q.txt",
		Type:      model.FileRegular,
		Size:      5,
		BlockSize: 5,
		Sequence:  1,
		Version:   model.Version{{Device: 77, Value: 1}},
		Blocks:    []model.BlockRef{{Hash: h, Index: 0}},
	})

	require.NoError(t, f.ctl.PullPass(f.ctx))

	data, err := os.ReadFile(filepath.Join(f.root, "q.txt"))
	require.NoError(t, err)
	require.Equal(t, "12345", string(data))
	st, _ := os.Stat(filepath.Join(f.root, "q.txt"))
	require.Equal(t, int64(5), st.Size())
	_, err = os.Stat(filepath.Join(f.root, "q.txt"+fileio.TempSuffix))
	require.True(t, os.IsNotExist(err))

	// The finish bumped our sequence and made the local version dominate.
	fi, _ := f.coord.Cluster().FolderInfo("f1", localID)
	local, ok := fi.FileByName("q.txt")
	require.True(t, ok)
	require.Equal(t, fi.MaxSequence, local.Sequence)
	require.Equal(t, model.RelGreater, local.Version.Compare(model.Version{{Device: 77, Value: 1}}))
	require.True(t, f.coord.Cluster().HasBlockAvailable(h))

	// A second pass has nothing left to do.
	requests := f.peer.requests
	require.NoError(t, f.ctl.PullPass(f.ctx))
	require.Equal(t, requests, f.peer.requests)
}

func TestMultiBlockOrderedWrite(t *testing.T) {
	f := newFixture(t)

	b0, b1, b2 := []byte("AAAA"), []byte("BBBB"), []byte("CC")
	h0, h1, h2 := model.Hash(sha256.Sum256(b0)), model.Hash(sha256.Sum256(b1)), model.Hash(sha256.Sum256(b2))
	f.peer.blocks[h0], f.peer.blocks[h1], f.peer.blocks[h2] = b0, b1, b2
	f.advertise(t, &model.FileInfo{
		Name:      "multi.bin",
		Type:      model.FileRegular,
		Size:      10,
		BlockSize: 4,
		Sequence:  1,
		Version:   model.Version{{Device: 77, Value: 1}},
		Blocks: []model.BlockRef{
			{Hash: h0, Index: 0}, {Hash: h1, Index: 1}, {Hash: h2, Index: 2},
		},
	})

	require.NoError(t, f.ctl.PullPass(f.ctx))

	data, err := os.ReadFile(filepath.Join(f.root, "multi.bin"))
	require.NoError(t, err)
	require.Equal(t, "AAAABBBBCC", string(data))
	require.Equal(t, 3, f.peer.requests)
}

// A block whose hash already exists in a complete local file is cloned,
// not requested.
func TestBlockClonedFromLocalFile(t *testing.T) {
	f := newFixture(t)

	shared := []byte("same!")
	h := model.Hash(sha256.Sum256(shared))

	// Local file "have.txt" already contains the block.
	require.NoError(t, os.WriteFile(filepath.Join(f.root, "have.txt"), shared, 0o644))
	require.NoError(t, f.coord.Apply(f.ctx, &diff.LocalUpdate{
		FolderID:    "f1",
		LocalDevice: localID,
		Name:        "have.txt",
		Type:        model.FileRegular,
		Size:        5,
		BlockSize:   5,
		Blocks:      []model.BlockRef{{Hash: h, Index: 0}},
	}))

	f.advertise(t, &model.FileInfo{
		Name:      "copy.txt",
		Type:      model.FileRegular,
		Size:      5,
		BlockSize: 5,
		Sequence:  2,
		Version:   model.Version{{Device: 77, Value: 1}},
		Blocks:    []model.BlockRef{{Hash: h, Index: 0}},
	})

	require.NoError(t, f.ctl.PullPass(f.ctx))

	data, err := os.ReadFile(filepath.Join(f.root, "copy.txt"))
	require.NoError(t, err)
	require.Equal(t, "same!", string(data))
	require.Zero(t, f.peer.requests, "block should be cloned, not requested")
}

func TestDeletionAppliedImmediately(t *testing.T) {
	f := newFixture(t)

	path := filepath.Join(f.root, "doomed.txt")
	require.NoError(t, os.WriteFile(path, []byte("bye"), 0o644))
	require.NoError(t, f.coord.Apply(f.ctx, &diff.LocalUpdate{
		FolderID:    "f1",
		LocalDevice: localID,
		Name:        "doomed.txt",
		Type:        model.FileRegular,
		Size:        3,
		BlockSize:   3,
		Blocks:      []model.BlockRef{{Hash: sha256.Sum256([]byte("bye")), Index: 0}},
	}))

	fi, _ := f.coord.Cluster().FolderInfo("f1", localID)
	local, _ := fi.FileByName("doomed.txt")

	f.advertise(t, &model.FileInfo{
		Name:     "doomed.txt",
		Type:     model.FileRegular,
		Deleted:  true,
		Sequence: 1,
		Version:  local.Version.Update(9999),
	})

	require.NoError(t, f.ctl.PullPass(f.ctx))

	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err))
	rec, _ := fi.FileByName("doomed.txt")
	require.True(t, rec.Deleted)
	require.Zero(t, f.peer.requests)
}

func TestDirectoryAndSymlinkAppliedImmediately(t *testing.T) {
	f := newFixture(t)

	f.advertise(t, &model.FileInfo{
		Name: "newdir", Type: model.FileDirectory, Sequence: 1,
		Version: model.Version{{Device: 77, Value: 1}}, Permissions: 0o755,
	})
	f.advertise(t, &model.FileInfo{
		Name: "newlink", Type: model.FileSymlink, Sequence: 2,
		Version: model.Version{{Device: 77, Value: 1}}, SymlinkTarget: "newdir",
	})

	require.NoError(t, f.ctl.PullPass(f.ctx))

	st, err := os.Stat(filepath.Join(f.root, "newdir"))
	require.NoError(t, err)
	require.True(t, st.IsDir())
	target, err := os.Readlink(filepath.Join(f.root, "newlink"))
	require.NoError(t, err)
	require.Equal(t, "newdir", target)
	require.Zero(t, f.peer.requests)
}

func TestResumeSkipsValidTempBlocks(t *testing.T) {
	f := newFixture(t)

	b0, b1 := []byte("AAAA"), []byte("BBBB")
	h0, h1 := model.Hash(sha256.Sum256(b0)), model.Hash(sha256.Sum256(b1))
	f.peer.blocks[h0], f.peer.blocks[h1] = b0, b1

	// A temp file with a valid first block and garbage second block, as a
	// crashed previous run would leave behind.
	tmp := filepath.Join(f.root, "part.bin"+fileio.TempSuffix)
	require.NoError(t, os.WriteFile(tmp, []byte("AAAAxxxx"), 0o644))

	f.advertise(t, &model.FileInfo{
		Name:      "part.bin",
		Type:      model.FileRegular,
		Size:      8,
		BlockSize: 4,
		Sequence:  1,
		Version:   model.Version{{Device: 77, Value: 1}},
		Blocks:    []model.BlockRef{{Hash: h0, Index: 0}, {Hash: h1, Index: 1}},
	})

	require.NoError(t, f.ctl.PullPass(f.ctx))

	data, err := os.ReadFile(filepath.Join(f.root, "part.bin"))
	require.NoError(t, err)
	require.Equal(t, "AAAABBBB", string(data))
	require.Equal(t, 1, f.peer.requests, "only the invalid block is re-requested")
}

func TestSendOnlyFolderNeverPulls(t *testing.T) {
	f := newFixture(t)
	folder, _ := f.coord.Cluster().Folder("f1")
	folder.Type = model.FolderSendOnly

	h := model.Hash(sha256.Sum256([]byte("nope!")))
	f.peer.blocks[h] = []byte("nope!")
	f.advertise(t, &model.FileInfo{
		Name: "nope.txt", Type: model.FileRegular, Size: 5, BlockSize: 5,
		Sequence: 1, Version: model.Version{{Device: 77, Value: 1}},
		Blocks: []model.BlockRef{{Hash: h, Index: 0}},
	})

	require.NoError(t, f.ctl.PullPass(f.ctx))
	require.Zero(t, f.peer.requests)
	_, err := os.Stat(filepath.Join(f.root, "nope.txt"))
	require.True(t, os.IsNotExist(err))
}

func TestPausedPeerSkipped(t *testing.T) {
	f := newFixture(t)
	dev, _ := f.coord.Cluster().Device(peerID)
	dev.Paused = true

	h := model.Hash(sha256.Sum256([]byte("later")))
	f.peer.blocks[h] = []byte("later")
	f.advertise(t, &model.FileInfo{
		Name: "later.txt", Type: model.FileRegular, Size: 5, BlockSize: 5,
		Sequence: 1, Version: model.Version{{Device: 77, Value: 1}},
		Blocks: []model.BlockRef{{Hash: h, Index: 0}},
	})

	require.NoError(t, f.ctl.PullPass(f.ctx))
	require.Zero(t, f.peer.requests)
}
