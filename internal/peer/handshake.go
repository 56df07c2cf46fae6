package peer

import (
	"context"

	"github.com/svmk2808/syncspirit/internal/errs"
	"github.com/svmk2808/syncspirit/internal/model"
	"github.com/svmk2808/syncspirit/internal/model/diff"
	"github.com/svmk2808/syncspirit/internal/slog"
	"github.com/svmk2808/syncspirit/internal/wire"
)

// handshake walks the connection from HANDSHAKING to CLUSTER_EXCHANGED
// (spec.md §4.4): magic + Hello both ways, then ClusterConfig both ways,
// then a full Index per mutually shared folder.
func (a *Actor) handshake(ctx context.Context) error {
	if err := writeMagic(a.rwc); err != nil {
		return err
	}
	hello := wire.Hello{
		DeviceName:    a.cfg.DeviceID,
		ClientName:    ClientName,
		ClientVersion: ClientVersion,
	}
	if err := a.send(hello); err != nil {
		return err
	}

	if err := readMagic(a.rwc); err != nil {
		return err
	}
	header, payload, err := a.conn.Recv()
	if err != nil {
		return err
	}
	if header.Type != wire.MsgHello {
		return errs.New(errs.KindProtocolViolation, "expected hello, got another message", nil)
	}
	peerHello, err := wire.UnmarshalHello(payload)
	if err != nil {
		return err
	}
	a.setState(StateHelloExchanged)
	a.log.Debug("hello exchanged",
		slog.String("client", peerHello.ClientName),
		slog.String("version", peerHello.ClientVersion))

	if err := a.send(a.buildClusterConfig()); err != nil {
		return err
	}
	header, payload, err = a.conn.Recv()
	if err != nil {
		return err
	}
	if header.Type != wire.MsgClusterConfig {
		return errs.New(errs.KindProtocolViolation, "expected cluster config", nil)
	}
	peerCC, err := wire.UnmarshalClusterConfig(payload)
	if err != nil {
		return err
	}
	if err := a.applyClusterConfig(ctx, peerCC); err != nil {
		return err
	}
	a.setState(StateClusterExchanged)

	return a.sendFullIndexes()
}

// buildClusterConfig lists every folder shared with this peer, each entry
// carrying both sides' index-id and max-sequence from their FolderInfos
// (spec.md §4.4 HELLO_EXCHANGED).
func (a *Actor) buildClusterConfig() wire.ClusterConfig {
	cluster := a.coord.Cluster()
	var cc wire.ClusterConfig
	for _, folder := range cluster.Folders() {
		if _, shared := cluster.FolderInfo(folder.ID, a.deviceID); !shared {
			continue
		}
		entry := wire.ClusterConfigFolder{
			ID:                folder.ID,
			Label:             folder.Label,
			ReadOnly:          folder.Type == model.FolderSendOnly,
			IgnorePermissions: folder.IgnorePermissions,
		}
		for _, fi := range cluster.FolderInfosFor(folder.ID) {
			d := fi.Device
			entry.Devices = append(entry.Devices, wire.ClusterConfigDevice{
				ID:          d.ID,
				Name:        d.Name,
				Addresses:   d.StaticAddrs,
				Compression: int32(d.Compression),
				CertName:    d.CertName,
				MaxSequence: fi.MaxSequence,
				IndexID:     fi.IndexID,
				Introducer:  d.Introducer,
			})
		}
		cc.Folders = append(cc.Folders, entry)
	}
	return cc
}

// applyClusterConfig reconciles an incoming ClusterConfig (spec.md §4.4):
// unknown folders are recorded for UI/auto-accept, known-but-unshared
// folders are ignored, and a changed index-id for our own FolderInfo means
// the peer considers our sequence reset, so the full Index goes out again.
func (a *Actor) applyClusterConfig(ctx context.Context, cc wire.ClusterConfig) error {
	cluster := a.coord.Cluster()

	if cluster.IsIgnoredDevice(a.deviceID) {
		return errs.New(errs.KindAuthFailure, "device is ignored", nil)
	}

	d := &diff.PeerClusterUpdate{PeerDevice: a.deviceID}
	var resend []string
	for _, f := range cc.Folders {
		if cluster.IsIgnoredFolder(f.ID) {
			continue
		}
		d.Folders = append(d.Folders, diff.ClusterConfigFolder{FolderID: f.ID, Label: f.Label})

		localFI, ok := cluster.FolderInfo(f.ID, a.cfg.DeviceID)
		if !ok {
			continue
		}
		for _, dev := range f.Devices {
			if dev.ID == a.cfg.DeviceID && dev.IndexID != 0 && dev.IndexID != localFI.IndexID {
				resend = append(resend, f.ID)
			}
			if dev.ID != a.cfg.DeviceID && dev.ID != a.deviceID {
				a.maybeIntroduce(ctx, f.ID, dev)
			}
		}
	}
	if err := a.coord.Apply(ctx, d); err != nil {
		return err
	}
	for _, folderID := range resend {
		a.log.Info("index id changed, re-sending full index", slog.String("folder", folderID))
		if err := a.sendIndexFor(folderID); err != nil {
			return err
		}
	}
	a.kickController()
	return nil
}

// maybeIntroduce auto-creates a device learned from an introducer's
// ClusterConfig (SPEC_FULL.md §9 "Introducer propagation").
func (a *Actor) maybeIntroduce(ctx context.Context, folderID string, dev wire.ClusterConfigDevice) {
	cluster := a.coord.Cluster()
	introducer, ok := cluster.Device(a.deviceID)
	if !ok || !introducer.Introducer {
		return
	}
	if cluster.IsIgnoredDevice(dev.ID) {
		return
	}
	if _, known := cluster.Device(dev.ID); known {
		return
	}
	d := &diff.IntroduceDevice{
		Device: &model.Device{
			ID:          dev.ID,
			Name:        dev.Name,
			CertName:    dev.CertName,
			Compression: model.Compression(dev.Compression),
			StaticAddrs: dev.Addresses,
		},
		IntroducedBy:    a.deviceID,
		IntroducedSoFar: a.introduced,
	}
	if err := a.coord.Apply(ctx, d); err != nil {
		a.log.Warn("device introduction failed", slog.Err(err))
		return
	}
	if d.Installed {
		a.introduced++
		a.log.Info("introduced device",
			slog.String("device", dev.ID), slog.String("folder", folderID))
	}
}

// sendFullIndexes snapshots every mutually shared folder's local FileInfos
// into one Index message each (spec.md §4.4 CLUSTER_EXCHANGED → ONLINE).
func (a *Actor) sendFullIndexes() error {
	cluster := a.coord.Cluster()
	for _, folder := range cluster.Folders() {
		if _, shared := cluster.FolderInfo(folder.ID, a.deviceID); !shared {
			continue
		}
		if err := a.sendIndexFor(folder.ID); err != nil {
			return err
		}
	}
	return nil
}

func (a *Actor) sendIndexFor(folderID string) error {
	cluster := a.coord.Cluster()
	fi, ok := cluster.FolderInfo(folderID, a.cfg.DeviceID)
	if !ok {
		return nil
	}
	msg := wire.Index{Folder: folderID}
	for _, f := range fi.Files() {
		msg.Files = append(msg.Files, wire.FromFileInfo(f))
	}
	return a.send(msg)
}
