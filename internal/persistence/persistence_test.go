package persistence_test

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/svmk2808/syncspirit/internal/model"
	"github.com/svmk2808/syncspirit/internal/model/diff"
	"github.com/svmk2808/syncspirit/internal/persistence"
	"github.com/svmk2808/syncspirit/internal/slog"
)

const (
	localID = "LOCAL-DEVICE"
	peerID  = "PEER-DEVICE"
)

func openStore(t *testing.T, dir string) *persistence.Store {
	t.Helper()
	store, err := persistence.Open(dir, 10, slog.Nop())
	require.NoError(t, err)
	return store
}

// applyAndPersist routes a diff the way the coordinator does: apply to the
// cluster, then visit the persistence actor and let it decide on commit.
func applyAndPersist(t *testing.T, c *model.Cluster, actor *persistence.Actor, d diff.Diff) {
	t.Helper()
	require.NoError(t, d.Apply(c))
	require.NoError(t, d.Visit(actor))
	if fc, ok := d.(diff.ForceCommit); ok {
		require.NoError(t, actor.Commit(fc))
	}
}

func TestClusterRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := openStore(t, dir)
	actor := persistence.NewActor(store, slog.Nop())

	c := model.NewCluster()
	c.PutDevice(&model.Device{ID: localID, Name: "local"})

	applyAndPersist(t, c, actor, &diff.UpdatePeer{Device: &model.Device{ID: localID, Name: "local"}})
	applyAndPersist(t, c, actor, &diff.UpdatePeer{Device: &model.Device{
		ID:          peerID,
		Name:        "peer",
		Compression: model.CompressionAlways,
		Introducer:  true,
		StaticAddrs: []string{"tcp://10.1.2.3:22000"},
	}})

	indexID := model.NewIndexID()
	applyAndPersist(t, c, actor, &diff.CreateFolder{
		Folder:      &model.Folder{ID: "1234-5678", Label: "my-label", Path: "/tmp/x", PullOrder: model.PullLargestFirst},
		LocalDevice: localID,
		IndexID:     indexID,
	})
	applyAndPersist(t, c, actor, &diff.ShareFolder{FolderID: "1234-5678", DeviceID: peerID, IndexID: model.NewIndexID()})

	h := model.Hash(sha256.Sum256([]byte("12345")))
	applyAndPersist(t, c, actor, &diff.LocalUpdate{
		FolderID:    "1234-5678",
		LocalDevice: localID,
		Name:        "q.txt",
		Type:        model.FileRegular,
		Size:        5,
		BlockSize:   5,
		ModifiedS:   1700000000,
		Blocks:      []model.BlockRef{{Hash: h, Index: 0}},
	})
	applyAndPersist(t, c, actor, &diff.IgnoreDevice{DeviceID: "O4LHPKG-IGNORED"})
	applyAndPersist(t, c, actor, &diff.PeerClusterUpdate{
		PeerDevice: peerID,
		Folders:    []diff.ClusterConfigFolder{{FolderID: "offered", Label: "offered-label"}},
	})

	require.NoError(t, store.Close())

	// Reopen and reconstruct.
	store2 := openStore(t, dir)
	defer store2.Close()
	load, err := store2.LoadCluster()
	require.NoError(t, err)

	c2 := model.NewCluster()
	require.NoError(t, load.Apply(c2))

	dev, ok := c2.Device(peerID)
	require.True(t, ok)
	require.Equal(t, "peer", dev.Name)
	require.Equal(t, model.CompressionAlways, dev.Compression)
	require.True(t, dev.Introducer)
	require.Equal(t, []string{"tcp://10.1.2.3:22000"}, dev.StaticAddrs)

	folder, ok := c2.Folder("1234-5678")
	require.True(t, ok)
	require.Equal(t, "my-label", folder.Label)
	require.Equal(t, model.PullLargestFirst, folder.PullOrder)

	localFI, ok := c2.FolderInfo("1234-5678", localID)
	require.True(t, ok)
	require.Equal(t, indexID, localFI.IndexID)
	require.Equal(t, uint64(1), localFI.MaxSequence)

	f, ok := localFI.FileByName("q.txt")
	require.True(t, ok)
	require.Equal(t, int64(5), f.Size)
	require.Equal(t, uint64(1), f.Sequence)
	require.Equal(t, h, f.Blocks[0].Hash)
	require.Len(t, f.Version, 1)

	peerFI, ok := c2.FolderInfo("1234-5678", peerID)
	require.True(t, ok)
	require.Equal(t, uint64(0), peerFI.MaxSequence)

	require.True(t, c2.IsIgnoredDevice("O4LHPKG-IGNORED"))
	require.Len(t, c2.UnknownFolders(), 1)

	// Invariant: sequence never exceeds max-sequence anywhere in the
	// reconstruction.
	for _, fi := range []*model.FolderInfo{localFI, peerFI} {
		for _, f := range fi.Files() {
			require.LessOrEqual(t, f.Sequence, fi.MaxSequence)
		}
	}
}

func TestUnshareRemovesPersistedRows(t *testing.T) {
	dir := t.TempDir()
	store := openStore(t, dir)
	actor := persistence.NewActor(store, slog.Nop())

	c := model.NewCluster()
	c.PutDevice(&model.Device{ID: localID})
	c.PutDevice(&model.Device{ID: peerID})
	applyAndPersist(t, c, actor, &diff.CreateFolder{
		Folder: &model.Folder{ID: "f", Path: "/tmp/f"}, LocalDevice: localID, IndexID: 1,
	})
	applyAndPersist(t, c, actor, &diff.ShareFolder{FolderID: "f", DeviceID: peerID, IndexID: 2})

	h := model.Hash(sha256.Sum256([]byte("x")))
	applyAndPersist(t, c, actor, &diff.PeerUpdateFolder{
		FolderID:   "f",
		PeerDevice: peerID,
		Files: []*model.FileInfo{{
			Name: "x", Type: model.FileRegular, Size: 1, BlockSize: 1,
			Sequence: 1, Version: model.Version{{Device: 9, Value: 1}},
			Blocks: []model.BlockRef{{Hash: h, Index: 0}},
		}},
	})
	applyAndPersist(t, c, actor, &diff.UnshareFolder{FolderID: "f", DeviceID: peerID})
	require.NoError(t, store.Close())

	store2 := openStore(t, dir)
	defer store2.Close()
	load, err := store2.LoadCluster()
	require.NoError(t, err)
	c2 := model.NewCluster()
	require.NoError(t, load.Apply(c2))

	_, shared := c2.FolderInfo("f", peerID)
	require.False(t, shared)
}

// Rewriting the same file must land on the key sequence allocated at
// first write, not accrete a new row per version.
func TestFileRewriteKeepsSingleRow(t *testing.T) {
	dir := t.TempDir()
	store := openStore(t, dir)
	actor := persistence.NewActor(store, slog.Nop())

	c := model.NewCluster()
	c.PutDevice(&model.Device{ID: localID})
	applyAndPersist(t, c, actor, &diff.CreateFolder{
		Folder: &model.Folder{ID: "f", Path: "/tmp/f"}, LocalDevice: localID, IndexID: 1,
	})
	for _, content := range []string{"one", "two!"} {
		applyAndPersist(t, c, actor, &diff.LocalUpdate{
			FolderID:    "f",
			LocalDevice: localID,
			Name:        "a.txt",
			Type:        model.FileRegular,
			Size:        int64(len(content)),
			BlockSize:   4,
			Blocks:      []model.BlockRef{{Hash: sha256.Sum256([]byte(content)), Index: 0}},
		})
	}
	require.NoError(t, store.Close())

	store2 := openStore(t, dir)
	defer store2.Close()
	load, err := store2.LoadCluster()
	require.NoError(t, err)
	require.Len(t, load.FileInfos.Entries, 1)
	require.Equal(t, int64(4), load.FileInfos.Entries[0].File.Size)
	require.Equal(t, uint64(2), load.FileInfos.Entries[0].File.Sequence)
}

func TestNextSequenceIsMonotoneAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	store := openStore(t, dir)

	a, err := store.NextSequence()
	require.NoError(t, err)
	b, err := store.NextSequence()
	require.NoError(t, err)
	require.Greater(t, b, a)
	require.NoError(t, store.Close())

	store2 := openStore(t, dir)
	defer store2.Close()
	c, err := store2.NextSequence()
	require.NoError(t, err)
	require.Greater(t, c, b)
}
