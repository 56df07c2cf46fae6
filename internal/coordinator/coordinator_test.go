package coordinator_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/svmk2808/syncspirit/internal/coordinator"
	"github.com/svmk2808/syncspirit/internal/errs"
	"github.com/svmk2808/syncspirit/internal/model"
	"github.com/svmk2808/syncspirit/internal/model/diff"
	"github.com/svmk2808/syncspirit/internal/slog"
)

type recordingObserver struct {
	diff.Base
	folders []string
}

func (r *recordingObserver) VisitCreateFolder(d *diff.CreateFolder) error {
	r.folders = append(r.folders, d.Folder.ID)
	return nil
}

type failingObserver struct {
	diff.Base
}

func (failingObserver) VisitCreateFolder(*diff.CreateFolder) error {
	return errs.New(errs.KindDBError, "disk on fire", nil)
}

func start(t *testing.T) (*coordinator.Coordinator, context.Context) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	cluster := model.NewCluster()
	cluster.PutDevice(&model.Device{ID: "local"})
	coord := coordinator.New(cluster, slog.Nop())
	go coord.Run(ctx)
	return coord, ctx
}

func TestApplyFansOutInOrder(t *testing.T) {
	coord, ctx := start(t)

	obs := &recordingObserver{}
	coord.AddObserver(ctx, obs)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, coord.Apply(ctx, &diff.CreateFolder{
			Folder:      &model.Folder{ID: id, Path: "/tmp/" + id},
			LocalDevice: "local",
			IndexID:     1,
		}))
	}
	require.Equal(t, []string{"a", "b", "c"}, obs.folders)
}

func TestRemoveObserverStopsDelivery(t *testing.T) {
	coord, ctx := start(t)

	obs := &recordingObserver{}
	coord.AddObserver(ctx, obs)
	require.NoError(t, coord.Apply(ctx, &diff.CreateFolder{
		Folder: &model.Folder{ID: "one", Path: "/tmp/one"}, LocalDevice: "local", IndexID: 1,
	}))
	coord.RemoveObserver(ctx, obs)
	require.NoError(t, coord.Apply(ctx, &diff.CreateFolder{
		Folder: &model.Folder{ID: "two", Path: "/tmp/two"}, LocalDevice: "local", IndexID: 1,
	}))
	require.Equal(t, []string{"one"}, obs.folders)
}

func TestDBErrorFromObserverTaints(t *testing.T) {
	coord, ctx := start(t)
	coord.AddObserver(ctx, failingObserver{})

	err := coord.Apply(ctx, &diff.CreateFolder{
		Folder: &model.Folder{ID: "f", Path: "/tmp/f"}, LocalDevice: "local", IndexID: 1,
	})
	require.Error(t, err)
	require.True(t, coord.Cluster().Tainted())
}

func TestTaintedClusterSkipsObservers(t *testing.T) {
	coord, ctx := start(t)
	obs := &recordingObserver{}
	coord.AddObserver(ctx, obs)

	coord.Cluster().Taint()
	require.NoError(t, coord.Apply(ctx, &diff.CreateFolder{
		Folder: &model.Folder{ID: "f", Path: "/tmp/f"}, LocalDevice: "local", IndexID: 1,
	}))
	require.Empty(t, obs.folders)
}

func TestApplyErrorDoesNotTaintOnProtocolViolation(t *testing.T) {
	coord, ctx := start(t)

	err := coord.Apply(ctx, &diff.ShareFolder{FolderID: "missing", DeviceID: "x", IndexID: 1})
	require.Equal(t, errs.KindUnknownFolder, errs.KindOf(err))
	require.False(t, coord.Cluster().Tainted())
}
