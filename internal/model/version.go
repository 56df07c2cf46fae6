package model

import "sort"

// VersionEntry is one (device, counter) pair in a vector clock (spec.md
// GLOSSARY "Version"). Device is the short uint64 derived from the device's
// id, matching BEP's wire Vector representation.
type VersionEntry struct {
	Device uint64
	Value  uint64
}

// Version is an ordered-by-Device vector clock. The ordering is an
// invariant maintained by every constructor below, so Compare can be a
// simple merge-walk instead of a nested search.
type Version []VersionEntry

// Relation is the four-way result of comparing two vector clocks: a simple
// boolean "is newer" cannot express the conflict case (spec.md §3 invariant
// 4), so Compare returns one of these instead.
type Relation int

const (
	RelEqual Relation = iota
	RelGreater
	RelLesser
	RelConflict
)

// Compare returns how v relates to other: Greater if v dominates other,
// Lesser if other dominates v, Equal if identical, Conflict if neither
// dominates (concurrent edits by different devices).
func (v Version) Compare(other Version) Relation {
	greater, lesser := false, false
	i, j := 0, 0
	for i < len(v) || j < len(other) {
		switch {
		case j >= len(other) || (i < len(v) && v[i].Device < other[j].Device):
			if v[i].Value > 0 {
				greater = true
			}
			i++
		case i >= len(v) || other[j].Device < v[i].Device:
			if other[j].Value > 0 {
				lesser = true
			}
			j++
		default:
			if v[i].Value > other[j].Value {
				greater = true
			} else if v[i].Value < other[j].Value {
				lesser = true
			}
			i++
			j++
		}
	}
	switch {
	case greater && lesser:
		return RelConflict
	case greater:
		return RelGreater
	case lesser:
		return RelLesser
	default:
		return RelEqual
	}
}

// Update returns a new Version with device's counter bumped to one past the
// highest counter it has ever recorded for that device, preserving sorted
// order. Used whenever the local device assigns a new version to a file it
// just modified.
func (v Version) Update(device uint64) Version {
	out := make(Version, len(v))
	copy(out, v)
	for i := range out {
		if out[i].Device == device {
			out[i].Value++
			return out
		}
	}
	out = append(out, VersionEntry{Device: device, Value: 1})
	sort.Slice(out, func(a, b int) bool { return out[a].Device < out[b].Device })
	return out
}

// Clone returns an independent copy, since Version is a slice and diffs
// must never let two FileInfos alias the same backing array.
func (v Version) Clone() Version {
	if v == nil {
		return nil
	}
	out := make(Version, len(v))
	copy(out, v)
	return out
}

// Equal reports whether two versions carry exactly the same entries.
func (v Version) Equal(other Version) bool {
	return v.Compare(other) == RelEqual
}
