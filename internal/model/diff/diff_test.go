package diff_test

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/svmk2808/syncspirit/internal/errs"
	"github.com/svmk2808/syncspirit/internal/model"
	"github.com/svmk2808/syncspirit/internal/model/diff"
)

const (
	localID = "KHQNO2S-5QSILRK-YX4JZZ4-7L77APM-QNVGZJT-EKU7IFI-PNEPBMH-4MXFMQD"
	peerID  = "VUV42CZ-IQD3A45-UXTYFHK-C7F4SBA-V5NPX4J-GAB77YB-9XTUWQ6-ENC6WAZ"
)

func newCluster(t *testing.T) *model.Cluster {
	t.Helper()
	c := model.NewCluster()
	c.PutDevice(&model.Device{ID: localID, Name: "local"})
	c.PutDevice(&model.Device{ID: peerID, Name: "peer"})
	return c
}

// Scenario: create folder {id:"1234-5678", label:"my-label", path:"/tmp/x"}
// on the local device, then share it with the peer; the peer's FolderInfo
// starts at max-sequence 0 with a non-zero index-id.
func TestCreateAndShareFolder(t *testing.T) {
	c := newCluster(t)

	create := &diff.CreateFolder{
		Folder:      &model.Folder{ID: "1234-5678", Label: "my-label", Path: "/tmp/x"},
		LocalDevice: localID,
		IndexID:     model.NewIndexID(),
	}
	require.NoError(t, create.Apply(c))

	peerIndexID := model.NewIndexID()
	share := &diff.ShareFolder{FolderID: "1234-5678", DeviceID: peerID, IndexID: peerIndexID}
	require.NoError(t, share.Apply(c))

	fi, ok := c.FolderInfo("1234-5678", peerID)
	require.True(t, ok)
	require.Equal(t, uint64(0), fi.MaxSequence)
	require.NotZero(t, fi.IndexID)

	// Sharing twice is a protocol violation, not a silent overwrite.
	err := (&diff.ShareFolder{FolderID: "1234-5678", DeviceID: peerID, IndexID: 1}).Apply(c)
	require.Equal(t, errs.KindProtocolViolation, errs.KindOf(err))
}

func TestCreateFolderUnknownDevice(t *testing.T) {
	c := model.NewCluster()
	err := (&diff.CreateFolder{
		Folder:      &model.Folder{ID: "f", Path: "/tmp/f"},
		LocalDevice: "nobody",
		IndexID:     1,
	}).Apply(c)
	require.Error(t, err)
}

func setupSharedFolder(t *testing.T, c *model.Cluster) {
	t.Helper()
	require.NoError(t, (&diff.CreateFolder{
		Folder:      &model.Folder{ID: "f1", Label: "f1", Path: "/tmp/f1"},
		LocalDevice: localID,
		IndexID:     model.NewIndexID(),
	}).Apply(c))
	require.NoError(t, (&diff.ShareFolder{
		FolderID: "f1", DeviceID: peerID, IndexID: model.NewIndexID(),
	}).Apply(c))
}

func TestLocalUpdateAssignsSequenceAndVersion(t *testing.T) {
	c := newCluster(t)
	setupSharedFolder(t, c)

	h := model.Hash(sha256.Sum256([]byte("12345")))
	up := &diff.LocalUpdate{
		FolderID:    "f1",
		LocalDevice: localID,
		Name:        "a.txt",
		Type:        model.FileRegular,
		Size:        5,
		BlockSize:   5,
		Blocks:      []model.BlockRef{{Hash: h, Index: 0}},
	}
	require.NoError(t, up.Apply(c))
	require.NotNil(t, up.Result)
	require.Equal(t, uint64(1), up.Result.Sequence)
	require.Len(t, up.Result.Version, 1)

	fi, _ := c.FolderInfo("f1", localID)
	require.Equal(t, uint64(1), fi.MaxSequence)
	require.True(t, c.HasBlockAvailable(h))

	// Updating again bumps both sequence and the same device's counter.
	up2 := &diff.LocalUpdate{
		FolderID: "f1", LocalDevice: localID, Name: "a.txt",
		Type: model.FileRegular, Size: 5, BlockSize: 5,
		Blocks: []model.BlockRef{{Hash: h, Index: 0}},
	}
	require.NoError(t, up2.Apply(c))
	require.Equal(t, uint64(2), up2.Result.Sequence)
	require.Equal(t, uint64(2), up2.Result.Version[0].Value)
	require.LessOrEqual(t, up2.Result.Sequence, fi.MaxSequence)
}

func peerFile(name string, seq uint64, version model.Version, hashes ...model.Hash) *model.FileInfo {
	f := &model.FileInfo{
		Name:      name,
		Type:      model.FileRegular,
		Size:      int64(len(hashes) * 5),
		BlockSize: 5,
		Sequence:  seq,
		Version:   version,
	}
	for i, h := range hashes {
		f.Blocks = append(f.Blocks, model.BlockRef{Hash: h, Index: i})
	}
	return f
}

func TestPeerUpdateFolderIsIdempotent(t *testing.T) {
	c := newCluster(t)
	setupSharedFolder(t, c)

	h := model.Hash(sha256.Sum256([]byte("content")))
	files := []*model.FileInfo{peerFile("q.txt", 1, model.Version{{Device: 7, Value: 1}}, h)}

	first := &diff.PeerUpdateFolder{FolderID: "f1", PeerDevice: peerID, Files: files}
	require.NoError(t, first.Apply(c))
	require.Len(t, first.Results, 1)

	fi, _ := c.FolderInfo("f1", peerID)
	seqAfterFirst := fi.MaxSequence
	blocksAfterFirst := c.BlockCount()

	second := &diff.PeerUpdateFolder{FolderID: "f1", PeerDevice: peerID, Files: files}
	require.NoError(t, second.Apply(c))
	require.Empty(t, second.Results, "re-applying an identical update must be a no-op")
	require.Equal(t, seqAfterFirst, fi.MaxSequence)
	require.Equal(t, blocksAfterFirst, c.BlockCount())
}

func TestPeerUpdateFolderConflictKeepsBoth(t *testing.T) {
	c := newCluster(t)
	setupSharedFolder(t, c)

	h1 := model.Hash(sha256.Sum256([]byte("ours")))
	h2 := model.Hash(sha256.Sum256([]byte("theirs")))

	base := &diff.PeerUpdateFolder{FolderID: "f1", PeerDevice: peerID,
		Files: []*model.FileInfo{peerFile("doc", 1, model.Version{{Device: 1, Value: 2}}, h1)}}
	require.NoError(t, base.Apply(c))

	conflicting := &diff.PeerUpdateFolder{FolderID: "f1", PeerDevice: peerID,
		Files: []*model.FileInfo{peerFile("doc", 2, model.Version{{Device: 2, Value: 2}}, h2)}}
	require.NoError(t, conflicting.Apply(c))
	require.Len(t, conflicting.Results, 1)

	installed := conflicting.Results[0]
	require.True(t, installed.Invalid)
	require.NotEqual(t, "doc", installed.Name)

	fi, _ := c.FolderInfo("f1", peerID)
	_, originalKept := fi.FileByName("doc")
	require.True(t, originalKept)
}

// Scenario: the peer's file my-file.txt has one block (refcount 1); the peer
// sends an IndexUpdate deleting the file. The active block map shrinks by
// one and the deleted set contains the hash.
func TestPeerIndexUpdateRemovesBlocks(t *testing.T) {
	c := newCluster(t)
	setupSharedFolder(t, c)

	h1 := model.Hash(sha256.Sum256([]byte("hash-1")))
	add := &diff.PeerUpdateFolder{FolderID: "f1", PeerDevice: peerID,
		Files: []*model.FileInfo{peerFile("my-file.txt", 1, model.Version{{Device: 7, Value: 1}}, h1)}}
	require.NoError(t, add.Apply(c))
	before := c.BlockCount()

	tomb := peerFile("my-file.txt", 2, model.Version{{Device: 7, Value: 2}})
	tomb.Deleted = true
	del := &diff.PeerUpdateFolder{FolderID: "f1", PeerDevice: peerID,
		Files: []*model.FileInfo{tomb}}
	require.NoError(t, del.Apply(c))

	require.Equal(t, before-1, c.BlockCount())
	deleted := c.DrainDeletedBlocks()
	require.Contains(t, deleted, h1)
}

func TestFinishFileBumpsSequence(t *testing.T) {
	c := newCluster(t)
	setupSharedFolder(t, c)

	h := model.Hash(sha256.Sum256([]byte("12345")))
	src := peerFile("q.txt", 3, model.Version{{Device: 9, Value: 3}}, h)
	require.NoError(t, (&diff.CloneFile{FolderID: "f1", LocalDevice: localID, Source: src}).Apply(c))

	finish := &diff.FinishFile{FolderID: "f1", LocalDevice: localID, Name: "q.txt"}
	require.NoError(t, finish.Apply(c))
	require.NotNil(t, finish.Result)

	fi, _ := c.FolderInfo("f1", localID)
	require.Equal(t, finish.Result.Sequence, fi.MaxSequence)
	require.Equal(t, model.RelGreater, finish.Result.Version.Compare(src.Version))
	require.True(t, c.HasBlockAvailable(h))
}

func TestUnshareFolderDropsFiles(t *testing.T) {
	c := newCluster(t)
	setupSharedFolder(t, c)

	h := model.Hash(sha256.Sum256([]byte("bye")))
	require.NoError(t, (&diff.PeerUpdateFolder{FolderID: "f1", PeerDevice: peerID,
		Files: []*model.FileInfo{peerFile("z", 1, model.Version{{Device: 7, Value: 1}}, h)}}).Apply(c))

	require.NoError(t, (&diff.UnshareFolder{FolderID: "f1", DeviceID: peerID}).Apply(c))

	_, ok := c.FolderInfo("f1", peerID)
	require.False(t, ok)
	require.Equal(t, 0, c.BlockCount())
}

func TestPeerClusterUpdateRecordsUnknownFolder(t *testing.T) {
	c := newCluster(t)
	setupSharedFolder(t, c)

	d := &diff.PeerClusterUpdate{
		PeerDevice: peerID,
		Folders: []diff.ClusterConfigFolder{
			{FolderID: "f1", Label: "f1"},       // shared: no-op
			{FolderID: "mystery", Label: "???"}, // unknown locally
		},
	}
	require.NoError(t, d.Apply(c))
	require.Len(t, d.NewlyUnknown, 1)
	require.Equal(t, "mystery", d.NewlyUnknown[0].FolderID)
	require.Len(t, c.UnknownFolders(), 1)
}

func TestAggregateStopsAtFirstFailure(t *testing.T) {
	c := newCluster(t)
	agg := diff.NewAggregate(
		&diff.CreateFolder{Folder: &model.Folder{ID: "ok", Path: "/tmp/ok"}, LocalDevice: localID, IndexID: 1},
		&diff.ShareFolder{FolderID: "missing", DeviceID: peerID, IndexID: 1},
		&diff.CreateFolder{Folder: &model.Folder{ID: "never", Path: "/tmp/never"}, LocalDevice: localID, IndexID: 1},
	)
	err := agg.Apply(c)
	require.Equal(t, errs.KindUnknownFolder, errs.KindOf(err))

	_, first := c.Folder("ok")
	_, third := c.Folder("never")
	require.True(t, first)
	require.False(t, third)
}

func TestIntroduceDeviceGuard(t *testing.T) {
	c := newCluster(t)

	d := &diff.IntroduceDevice{
		Device:          &model.Device{ID: "NEWDEV"},
		IntroducedBy:    peerID,
		IntroducedSoFar: diff.MaxIntroducedDevices,
	}
	require.NoError(t, d.Apply(c))
	require.False(t, d.Installed)
	_, known := c.Device("NEWDEV")
	require.False(t, known)

	d2 := &diff.IntroduceDevice{Device: &model.Device{ID: "NEWDEV"}, IntroducedBy: peerID}
	require.NoError(t, d2.Apply(c))
	require.True(t, d2.Installed)
}
