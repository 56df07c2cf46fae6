// Package peer implements the per-connection BEP actor: framing and
// handshake state machine, index exchange, request/response traffic, and
// cluster-config reconciliation (spec.md §4.4). One Actor per connected
// peer; the socket is owned by its Actor and never touched by anyone else
// (spec.md §5).
package peer

import (
	"context"
	"encoding/binary"
	"io"
	"sync"
	"time"

	"github.com/svmk2808/syncspirit/internal/config"
	"github.com/svmk2808/syncspirit/internal/coordinator"
	"github.com/svmk2808/syncspirit/internal/deviceid"
	"github.com/svmk2808/syncspirit/internal/errs"
	"github.com/svmk2808/syncspirit/internal/fileio"
	"github.com/svmk2808/syncspirit/internal/hasher"
	"github.com/svmk2808/syncspirit/internal/model"
	"github.com/svmk2808/syncspirit/internal/model/diff"
	"github.com/svmk2808/syncspirit/internal/slog"
	"github.com/svmk2808/syncspirit/internal/wire"
)

// Magic is the per-connection constant exchanged before the Hello frame
// (spec.md §6 "Per-connection magic: a 4-byte constant").
const Magic uint32 = 0x2EA7D90B

// ClientName and ClientVersion identify this implementation in Hello.
const (
	ClientName    = "syncspirit"
	ClientVersion = "v0.4.0"
)

// State is the handshake/connection state machine (spec.md §4.4).
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateHandshaking
	StateHelloExchanged
	StateClusterExchanged
	StateOnline
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateHelloExchanged:
		return "hello-exchanged"
	case StateClusterExchanged:
		return "cluster-exchanged"
	case StateOnline:
		return "online"
	case StateClosing:
		return "closing"
	default:
		return "disconnected"
	}
}

const pingInterval = 90 * time.Second

// Actor drives one authenticated peer connection. It is also a
// diff.Visitor: registered with the coordinator while online, it watches
// local mutations (LocalUpdate, FinishFile) and forwards them to the peer
// as IndexUpdate messages.
type Actor struct {
	diff.Base

	cfg   config.Config
	coord *coordinator.Coordinator
	files *fileio.Actor
	log   slog.Log

	// DeviceID is the authenticated remote device identity.
	deviceID string

	rwc  io.ReadWriteCloser
	conn *wire.Conn

	sendMu sync.Mutex // per-peer send order is preserved (spec.md §5)

	stateMu sync.Mutex
	state   State

	pendMu  sync.Mutex
	nextID  int32
	pending map[int32]chan wire.Response

	// outbox carries visitor-originated messages (IndexUpdates) off the
	// coordinator strand; the writer goroutine drains it.
	outbox chan wire.Message

	// kick wakes the controller when new remote index data arrived.
	kick chan struct{}

	// introduced counts devices auto-created on this introducer's word,
	// bounding diff.MaxIntroducedDevices per connection lifetime.
	introduced int

	closeOnce sync.Once
}

// NewActor wraps an already-authenticated connection. rwc is a *tls.Conn
// in production and an in-memory pipe in tests; either way the device id
// has been verified before the Actor exists.
func NewActor(cfg config.Config, coord *coordinator.Coordinator, files *fileio.Actor, rwc io.ReadWriteCloser, remoteID string, log slog.Log) *Actor {
	compression := model.CompressionMetadata
	if d, ok := coord.Cluster().Device(remoteID); ok {
		compression = d.Compression
	}
	return &Actor{
		cfg:      cfg,
		coord:    coord,
		files:    files,
		log:      log.With(slog.String("peer", deviceid.Short(remoteID))),
		deviceID: remoteID,
		rwc:      rwc,
		conn:     wire.NewConn(rwc, compression),
		pending:  make(map[int32]chan wire.Response),
		outbox:   make(chan wire.Message, 64),
		kick:     make(chan struct{}, 1),
	}
}

// DeviceID returns the authenticated remote identity.
func (a *Actor) DeviceID() string { return a.deviceID }

// State returns the current connection state.
func (a *Actor) State() State {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.state
}

func (a *Actor) setState(s State) {
	a.stateMu.Lock()
	a.state = s
	a.stateMu.Unlock()
}

// Kick returns the channel the controller selects on to learn that new
// remote index data is available.
func (a *Actor) Kick() <-chan struct{} { return a.kick }

func (a *Actor) kickController() {
	select {
	case a.kick <- struct{}{}:
	default:
	}
}

// Run performs the handshake and then serves the connection until ctx is
// cancelled or the peer goes away. On return the connection is closed, all
// in-flight requests are cancelled, and the actor is unregistered.
func (a *Actor) Run(ctx context.Context) error {
	defer a.shutdown()

	// The read loop blocks in Recv with no context of its own; closing
	// the socket is what unwinds it on shutdown (spec.md §5
	// "Cancellation ... releases its held resources").
	go func() {
		<-ctx.Done()
		a.closeOnce.Do(func() {
			a.setState(StateClosing)
			_ = a.rwc.Close()
		})
	}()

	// Observe local diffs from before the handshake completes: an update
	// landing between the index snapshot and observer registration would
	// otherwise never reach this peer. The outbox buffers until the writer
	// starts; a redundant IndexUpdate for a file already in the snapshot
	// is idempotent on the receiving side.
	a.coord.AddObserver(ctx, a)
	defer a.coord.RemoveObserver(context.Background(), a)

	a.setState(StateHandshaking)
	hsCtx, cancel := context.WithTimeout(ctx, a.cfg.HandshakeTimeout)
	err := a.handshake(hsCtx)
	cancel()
	if err != nil {
		a.closeWith(err)
		return err
	}

	writerDone := make(chan struct{})
	go a.writer(ctx, writerDone)
	defer func() { <-writerDone }()

	a.setState(StateOnline)
	a.log.Info("peer online")
	a.kickController()

	for {
		header, payload, err := a.conn.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			a.closeWith(err)
			return err
		}
		if err := a.dispatch(ctx, header, payload); err != nil {
			a.closeWith(err)
			return err
		}
	}
}

// writer drains the outbox and emits keepalive pings, serializing with
// direct sends through sendMu.
func (a *Actor) writer(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-a.outbox:
			if err := a.send(msg); err != nil {
				a.log.Warn("outbox send failed", slog.Err(err))
				return
			}
		case <-ticker.C:
			if err := a.send(wire.Ping{}); err != nil {
				return
			}
		}
	}
}

func (a *Actor) send(msg wire.Message) error {
	a.sendMu.Lock()
	defer a.sendMu.Unlock()
	return a.conn.Send(msg)
}

func (a *Actor) dispatch(ctx context.Context, header wire.Header, payload []byte) error {
	switch header.Type {
	case wire.MsgIndex:
		msg, err := wire.UnmarshalIndex(payload)
		if err != nil {
			return err
		}
		return a.applyIndex(ctx, msg.Folder, msg.Files)
	case wire.MsgIndexUpdate:
		msg, err := wire.UnmarshalIndexUpdate(payload)
		if err != nil {
			return err
		}
		return a.applyIndex(ctx, msg.Folder, msg.Files)
	case wire.MsgRequest:
		msg, err := wire.UnmarshalRequest(payload)
		if err != nil {
			return err
		}
		return a.serveRequest(msg)
	case wire.MsgResponse:
		msg, err := wire.UnmarshalResponse(payload)
		if err != nil {
			return err
		}
		a.routeResponse(msg)
		return nil
	case wire.MsgClusterConfig:
		msg, err := wire.UnmarshalClusterConfig(payload)
		if err != nil {
			return err
		}
		return a.applyClusterConfig(ctx, msg)
	case wire.MsgDownloadProgress:
		msg, err := wire.UnmarshalDownloadProgress(payload)
		if err != nil {
			return err
		}
		a.log.Debug("download progress",
			slog.String("folder", msg.Folder), slog.Int("files", len(msg.Updates)))
		return nil
	case wire.MsgPing:
		return nil
	case wire.MsgClose:
		msg, err := wire.UnmarshalClose(payload)
		if err != nil {
			return err
		}
		a.log.Info("peer closed connection", slog.String("reason", msg.Reason))
		return errs.New(errs.KindCancelled, "peer closed: "+msg.Reason, nil)
	default:
		return errs.New(errs.KindProtocolViolation, "unexpected message type", nil)
	}
}

// applyIndex merges incoming FileInfos into the peer's FolderInfo
// (spec.md §4.4 "Index / IndexUpdate application").
func (a *Actor) applyIndex(ctx context.Context, folder string, files []wire.FileEntry) error {
	infos := make([]*model.FileInfo, 0, len(files))
	for _, e := range files {
		infos = append(infos, e.ToFileInfo())
	}
	d := &diff.PeerUpdateFolder{FolderID: folder, PeerDevice: a.deviceID, Files: infos}
	if err := a.coord.Apply(ctx, d); err != nil {
		if errs.KindOf(err) == errs.KindUnknownFolder {
			// The peer indexed a folder we don't share with it; BEP calls
			// for ignoring rather than disconnecting.
			a.log.Warn("index for unshared folder", slog.String("folder", folder))
			return nil
		}
		return err
	}
	a.kickController()
	return nil
}

// RequestBlock issues a Request to the peer and waits for the matching
// Response (correlated by id, spec.md §5 "responses match requests by
// request id"). The controller is the only caller.
func (a *Actor) RequestBlock(ctx context.Context, folderID, name string, offset int64, size int32, hash model.Hash) ([]byte, error) {
	if a.State() != StateOnline {
		return nil, errs.New(errs.KindTransportUnavailable, "peer not online", nil)
	}
	a.pendMu.Lock()
	id := a.nextID
	a.nextID++ // wraps at 2^31 like the wire field; ids live briefly
	reply := make(chan wire.Response, 1)
	a.pending[id] = reply
	a.pendMu.Unlock()

	defer func() {
		a.pendMu.Lock()
		delete(a.pending, id)
		a.pendMu.Unlock()
	}()

	req := wire.Request{
		ID:     id,
		Folder: folderID,
		Name:   name,
		Offset: offset,
		Size:   size,
		Hash:   hash[:],
	}
	if err := a.send(req); err != nil {
		return nil, err
	}

	timer := time.NewTimer(a.cfg.RequestTimeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, errs.New(errs.KindCancelled, "peer.RequestBlock", ctx.Err())
	case <-timer.C:
		return nil, errs.New(errs.KindTimeout, "peer.RequestBlock", nil)
	case resp, ok := <-reply:
		if !ok {
			return nil, errs.New(errs.KindTransportUnavailable, "peer disconnected", nil)
		}
		switch resp.Code {
		case wire.CodeNoError:
			return resp.Data, nil
		case wire.CodeNoSuchFile:
			return nil, errs.New(errs.KindUnknownFolder, "peer: no such file: "+name, nil)
		case wire.CodeInvalidFile:
			return nil, errs.New(errs.KindVersionMismatch, "peer: invalid file: "+name, nil)
		default:
			return nil, errs.New(errs.KindProtocolViolation, "peer: generic request failure", nil)
		}
	}
}

func (a *Actor) routeResponse(resp wire.Response) {
	a.pendMu.Lock()
	reply, ok := a.pending[resp.ID]
	a.pendMu.Unlock()
	if !ok {
		// Late response to a timed-out or cancelled request; drop it.
		return
	}
	reply <- resp
}

// serveRequest answers an inbound Request (spec.md §4.4 "Request handling").
func (a *Actor) serveRequest(req wire.Request) error {
	resp := wire.Response{ID: req.ID}

	folder, known := a.coord.Cluster().Folder(req.Folder)
	_, shared := a.coord.Cluster().FolderInfo(req.Folder, a.deviceID)
	if !known || !shared {
		resp.Code = wire.CodeNoSuchFile
		return a.send(resp)
	}

	name := req.Name
	if req.FromTemporary {
		name += fileio.TempSuffix
	}
	data, err := a.files.ReadBlock(folder.Path, name, req.Offset, int(req.Size))
	switch {
	case err == nil:
	case errs.KindOf(err) == errs.KindUnknownFolder:
		resp.Code = wire.CodeNoSuchFile
		return a.send(resp)
	default:
		resp.Code = wire.CodeInvalid
		return a.send(resp)
	}

	if len(req.Hash) == 32 {
		var expected model.Hash
		copy(expected[:], req.Hash)
		if err := hasher.Validate(data, expected); err != nil {
			resp.Code = wire.CodeInvalidFile
			return a.send(resp)
		}
	}
	resp.Data = data
	return a.send(resp)
}

// VisitLocalUpdate forwards a locally scanned change to the peer as an
// IndexUpdate if the folder is shared with it. Runs on the coordinator
// strand, so it only enqueues.
func (a *Actor) VisitLocalUpdate(d *diff.LocalUpdate) error {
	if d.Result == nil || d.LocalDevice == a.deviceID {
		return nil
	}
	a.enqueueIndexUpdate(d.FolderID, d.Result)
	return nil
}

// VisitFinishFile forwards a just-completed pull to the peer (spec.md
// §4.5: finish-file "triggers an outbound IndexUpdate").
func (a *Actor) VisitFinishFile(d *diff.FinishFile) error {
	if d.Result == nil {
		return nil
	}
	a.enqueueIndexUpdate(d.FolderID, d.Result)
	return nil
}

func (a *Actor) enqueueIndexUpdate(folderID string, f *model.FileInfo) {
	switch a.State() {
	case StateClosing, StateDisconnected:
		return
	}
	if _, shared := a.coord.Cluster().FolderInfo(folderID, a.deviceID); !shared {
		return
	}
	msg := wire.IndexUpdate{Folder: folderID, Files: []wire.FileEntry{wire.FromFileInfo(f)}}
	select {
	case a.outbox <- msg:
	default:
		a.log.Warn("outbox full, dropping index update", slog.String("folder", folderID))
	}
}

// closeWith sends a Close frame naming the reason, once, then closes the
// socket (spec.md §4.4: any violation, decode failure, or auth failure →
// CLOSING with a reason).
func (a *Actor) closeWith(err error) {
	a.closeOnce.Do(func() {
		a.setState(StateClosing)
		reason := "closing"
		if err != nil {
			reason = err.Error()
			a.log.Warn("closing connection", slog.Err(err))
		}
		_ = a.send(wire.Close{Reason: reason})
		_ = a.rwc.Close()
	})
}

// shutdown cancels every in-flight request and releases the socket.
func (a *Actor) shutdown() {
	a.closeOnce.Do(func() {
		a.setState(StateClosing)
		_ = a.rwc.Close()
	})
	a.pendMu.Lock()
	for id, reply := range a.pending {
		close(reply)
		delete(a.pending, id)
	}
	a.pendMu.Unlock()
	a.setState(StateDisconnected)
}

func writeMagic(w io.Writer) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], Magic)
	if _, err := w.Write(buf[:]); err != nil {
		return errs.New(errs.KindIOError, "peer: write magic", err)
	}
	return nil
}

func readMagic(r io.Reader) error {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return errs.New(errs.KindIOError, "peer: read magic", err)
	}
	if binary.BigEndian.Uint32(buf[:]) != Magic {
		return errs.New(errs.KindAuthFailure, "peer: magic mismatch", nil)
	}
	return nil
}
