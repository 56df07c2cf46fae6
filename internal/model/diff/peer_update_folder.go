package diff

import (
	"fmt"

	"github.com/svmk2808/syncspirit/internal/errs"
	"github.com/svmk2808/syncspirit/internal/model"
)

// PeerUpdateFolder merges incoming FileInfos (from an Index or IndexUpdate
// message) into a peer's FolderInfo (spec.md §4.4 "Index / IndexUpdate
// application"). Each incoming file is compared against the stored version
// by vector-clock dominance: a dominating version replaces the stored one,
// a dominated one is discarded, and a conflict (neither dominates) is kept
// under a synthetic conflict name with the Invalid flag set, per spec.md §3
// invariant 4 ("the file is marked invalid and retained under both
// identities").
type PeerUpdateFolder struct {
	NoForceCommit

	FolderID   string
	PeerDevice string
	Files      []*model.FileInfo

	// Results is filled in by Apply with every FileInfo actually written
	// (new, dominating, or a synthesized conflict copy); files that were
	// stale or identical to what was already stored are omitted.
	Results []*model.FileInfo
}

func (d *PeerUpdateFolder) Apply(cluster *model.Cluster) error {
	fi, ok := cluster.FolderInfo(d.FolderID, d.PeerDevice)
	if !ok {
		return errs.New(errs.KindUnknownFolder, "peer_update_folder: "+d.FolderID, nil)
	}

	for _, incoming := range d.Files {
		existing, has := fi.FileByName(incoming.Name)
		if !has {
			installed := incoming.Clone()
			cluster.PutFile(fi, installed)
			d.Results = append(d.Results, installed)
			continue
		}
		switch incoming.Version.Compare(existing.Version) {
		case model.RelGreater:
			installed := incoming.Clone()
			cluster.PutFile(fi, installed)
			d.Results = append(d.Results, installed)
		case model.RelLesser, model.RelEqual:
			// Stale or identical: nothing to do. This is also what makes
			// re-applying the same IndexUpdate idempotent (spec.md §8).
		case model.RelConflict:
			conflict := incoming.Clone()
			conflict.Name = fmt.Sprintf("%s.sync-conflict-%x", incoming.Name, fi.Device.ShortID())
			conflict.Invalid = true
			cluster.PutFile(fi, conflict)
			d.Results = append(d.Results, conflict)
		}
	}
	return nil
}

func (d *PeerUpdateFolder) Visit(v Visitor) error { return v.VisitPeerUpdateFolder(d) }
