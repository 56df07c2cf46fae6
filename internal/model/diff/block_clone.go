package diff

import "github.com/svmk2808/syncspirit/internal/model"

// CloneBlock records that the File Actor satisfied a block by copying bytes
// from another local file that already had it, rather than requesting it
// over the network (spec.md §4.5 "Clone", §4.6 clone_block).
type CloneBlock struct {
	NoForceCommit

	FolderID   string
	SourceName string
	TargetName string
	Index      int
	Hash       model.Hash
}

func (d *CloneBlock) Apply(cluster *model.Cluster) error {
	cluster.MarkBlockAvailable(d.Hash)
	return nil
}

func (d *CloneBlock) Visit(v Visitor) error { return v.VisitCloneBlock(d) }
