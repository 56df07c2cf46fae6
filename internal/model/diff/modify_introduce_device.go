package diff

import "github.com/svmk2808/syncspirit/internal/model"

// MaxIntroducedDevices bounds how many devices a single introducer can add,
// counted by the caller in IntroducedSoFar (the peer actor counts per
// connection), so a misbehaving or compromised introducer cannot grow the
// known-device set without limit on one connection (SPEC_FULL.md §9).
const MaxIntroducedDevices = 100

// IntroduceDevice auto-creates a device we learned about indirectly: an
// Introducer device (spec.md GLOSSARY doesn't define this, SPEC_FULL.md §9
// does) shared its view of who else shares a mutual folder, and we trust it
// enough to add that device as known without the user doing so by hand.
type IntroduceDevice struct {
	NoForceCommit

	Device          *model.Device
	IntroducedBy    string
	IntroducedSoFar int // caller-maintained count of prior introductions by IntroducedBy

	// Installed reports whether Apply actually added Device, as opposed to
	// silently refusing it past the guard or because it was already known.
	Installed bool
}

func (d *IntroduceDevice) Apply(cluster *model.Cluster) error {
	if d.IntroducedSoFar >= MaxIntroducedDevices {
		// Not an error: silently refusing further introductions is the
		// guard's whole point, not a consistency failure.
		return nil
	}
	if _, exists := cluster.Device(d.Device.ID); exists {
		return nil
	}
	cluster.PutDevice(d.Device)
	d.Installed = true
	return nil
}

func (d *IntroduceDevice) Visit(v Visitor) error { return v.VisitIntroduceDevice(d) }
