package diff

import "github.com/svmk2808/syncspirit/internal/model"

// Aggregate applies a sequence of diffs in order and visits them within a
// single visitor pass (spec.md §4.1). It is not atomic: if a member fails,
// the members applied before it stay applied (see Apply).
type Aggregate struct {
	NoForceCommit
	Diffs []Diff
}

// NewAggregate builds an Aggregate from an ordered list of member diffs.
func NewAggregate(diffs ...Diff) *Aggregate {
	return &Aggregate{Diffs: diffs}
}

// Apply applies every member diff in order, stopping at the first failure.
// Partial application on failure is intentional: the caller (Coordinator)
// is expected to taint the cluster on any non-recoverable error, at which
// point "partially applied" and "fully applied" are equally moot.
func (a *Aggregate) Apply(cluster *model.Cluster) error {
	for _, d := range a.Diffs {
		if err := d.Apply(cluster); err != nil {
			return err
		}
	}
	return nil
}

// Visit fans out to every member diff using the caller's own Visitor (so
// overridden methods are honored), then gives the visitor a chance to react
// to the aggregate boundary itself.
func (a *Aggregate) Visit(v Visitor) error {
	for _, d := range a.Diffs {
		if err := d.Visit(v); err != nil {
			return err
		}
	}
	return v.VisitAggregate(a)
}
