package diff

// Visitor is implemented by every observer that wants to react to diffs as
// they are applied: the persistence actor, peer actors, the file actor.
// Each method corresponds to exactly one concrete Diff type; an observer
// that only cares about a handful embeds Base and overrides those.
type Visitor interface {
	VisitCreateFolder(*CreateFolder) error
	VisitShareFolder(*ShareFolder) error
	VisitUnshareFolder(*UnshareFolder) error
	VisitUpdatePeer(*UpdatePeer) error
	VisitIntroduceDevice(*IntroduceDevice) error
	VisitLocalUpdate(*LocalUpdate) error
	VisitCloneFile(*CloneFile) error
	VisitFinishFile(*FinishFile) error
	VisitIgnoreDevice(*IgnoreDevice) error
	VisitIgnoreFolder(*IgnoreFolder) error

	VisitPeerClusterUpdate(*PeerClusterUpdate) error
	VisitPeerUpdateFolder(*PeerUpdateFolder) error

	VisitLoadCluster(*LoadCluster) error
	VisitLoadDevices(*LoadDevices) error
	VisitLoadFolders(*LoadFolders) error
	VisitLoadFolderInfos(*LoadFolderInfos) error
	VisitLoadFileInfos(*LoadFileInfos) error
	VisitLoadBlocks(*LoadBlocks) error
	VisitLoadIgnoredDevices(*LoadIgnoredDevices) error
	VisitLoadIgnoredFolders(*LoadIgnoredFolders) error
	VisitLoadUnknownFolders(*LoadUnknownFolders) error
	VisitCloseTransaction(*CloseTransaction) error

	VisitAppendBlock(*AppendBlock) error
	VisitCloneBlock(*CloneBlock) error
	VisitBlockAvailable(*BlockAvailable) error

	VisitAggregate(*Aggregate) error
}

// Base is a no-op implementation of Visitor; concrete observers embed it and
// override only the methods they care about (spec.md §9 "Design Notes:
// Observer fan-out").
type Base struct{}

func (Base) VisitCreateFolder(*CreateFolder) error       { return nil }
func (Base) VisitShareFolder(*ShareFolder) error         { return nil }
func (Base) VisitUnshareFolder(*UnshareFolder) error     { return nil }
func (Base) VisitUpdatePeer(*UpdatePeer) error           { return nil }
func (Base) VisitIntroduceDevice(*IntroduceDevice) error { return nil }
func (Base) VisitLocalUpdate(*LocalUpdate) error         { return nil }
func (Base) VisitCloneFile(*CloneFile) error             { return nil }
func (Base) VisitFinishFile(*FinishFile) error           { return nil }
func (Base) VisitIgnoreDevice(*IgnoreDevice) error       { return nil }
func (Base) VisitIgnoreFolder(*IgnoreFolder) error       { return nil }

func (Base) VisitPeerClusterUpdate(*PeerClusterUpdate) error { return nil }
func (Base) VisitPeerUpdateFolder(*PeerUpdateFolder) error   { return nil }

func (Base) VisitLoadCluster(*LoadCluster) error               { return nil }
func (Base) VisitLoadDevices(*LoadDevices) error               { return nil }
func (Base) VisitLoadFolders(*LoadFolders) error                { return nil }
func (Base) VisitLoadFolderInfos(*LoadFolderInfos) error        { return nil }
func (Base) VisitLoadFileInfos(*LoadFileInfos) error            { return nil }
func (Base) VisitLoadBlocks(*LoadBlocks) error                  { return nil }
func (Base) VisitLoadIgnoredDevices(*LoadIgnoredDevices) error  { return nil }
func (Base) VisitLoadIgnoredFolders(*LoadIgnoredFolders) error  { return nil }
func (Base) VisitLoadUnknownFolders(*LoadUnknownFolders) error  { return nil }
func (Base) VisitCloseTransaction(*CloseTransaction) error      { return nil }

func (Base) VisitAppendBlock(*AppendBlock) error       { return nil }
func (Base) VisitCloneBlock(*CloneBlock) error         { return nil }
func (Base) VisitBlockAvailable(*BlockAvailable) error { return nil }

// VisitAggregate is a no-op by default; Aggregate.Visit already fans each
// child diff out to the real visitor before calling this, so overriding it
// is only useful to observers that care about aggregate boundaries (e.g.
// persistence committing one transaction per aggregate).
func (Base) VisitAggregate(*Aggregate) error { return nil }
