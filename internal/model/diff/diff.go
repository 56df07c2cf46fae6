// Package diff is the sole means of mutating a model.Cluster (spec.md
// §4.1). Every state change — structural (create a folder, share it with a
// peer) or block-granularity (a block just got written to local storage) —
// is expressed as an immutable Diff applied once at the cluster's single
// apply point and then fanned out to a Visitor so persistence, peers, and
// the file actor can react without re-decoding the change themselves.
package diff

import "github.com/svmk2808/syncspirit/internal/model"

// Diff is an immutable description of a single state change.
type Diff interface {
	// Apply performs the mutation against cluster. It is total if the
	// diff's preconditions are met; otherwise it returns an error whose
	// errs.Kind decides the propagation policy (spec.md §7).
	Apply(cluster *model.Cluster) error

	// Visit dispatches to the one Visitor method that corresponds to this
	// diff's concrete type, so observers can react without a type switch
	// of their own.
	Visit(v Visitor) error
}

// ForceCommit reports whether applying this diff should force the
// persistence actor to commit its currently open transaction rather than
// merely counting toward the uncommitted threshold (spec.md §4.3). Diffs
// that don't care return false via the embeddable NoForceCommit.
type ForceCommit interface {
	ForceCommit() bool
}

// NoForceCommit is embedded by diffs that never force a commit.
type NoForceCommit struct{}

func (NoForceCommit) ForceCommit() bool { return false }

// DoForceCommit is embedded by diffs that always force a commit (e.g.
// share-folder, create-folder, update-peer, per spec.md §4.3).
type DoForceCommit struct{}

func (DoForceCommit) ForceCommit() bool { return true }
