package diff

import "github.com/svmk2808/syncspirit/internal/model"

// AppendBlock records that the File Actor has just written one block's
// bytes to the target temp file (spec.md §4.6 append_block). At the model
// layer this only marks the hash locally available; the actual seek+write
// is the File Actor's job and happens before this diff is produced.
type AppendBlock struct {
	NoForceCommit

	FolderID string
	Name     string
	Index    int
	Hash     model.Hash
	Size     int32
}

func (d *AppendBlock) Apply(cluster *model.Cluster) error {
	if b, ok := cluster.Block(d.Hash); ok && b.Size == 0 {
		b.Size = d.Size
	}
	cluster.MarkBlockAvailable(d.Hash)
	return nil
}

func (d *AppendBlock) Visit(v Visitor) error { return v.VisitAppendBlock(d) }
