package diff

import "github.com/svmk2808/syncspirit/internal/model"

// BlockAvailable is the generic "we now have this block's bytes locally"
// signal. The scanner does not emit it: LocalUpdate marks the blocks of a
// scanned file available itself.
type BlockAvailable struct {
	NoForceCommit

	Hash model.Hash
}

func (d *BlockAvailable) Apply(cluster *model.Cluster) error {
	cluster.MarkBlockAvailable(d.Hash)
	return nil
}

func (d *BlockAvailable) Visit(v Visitor) error { return v.VisitBlockAvailable(d) }
