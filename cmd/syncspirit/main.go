// Command syncspirit runs the synchronization core as a daemon: it loads
// the persisted cluster, scans the configured folders, listens for peer
// connections, and dials known peers' static addresses. Configuration
// file parsing, discovery, and the management UI live outside this
// repository; this binary wires the core together with a minimal flag
// surface.
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"net"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/svmk2808/syncspirit/internal/config"
	"github.com/svmk2808/syncspirit/internal/controller"
	"github.com/svmk2808/syncspirit/internal/coordinator"
	"github.com/svmk2808/syncspirit/internal/deviceid"
	"github.com/svmk2808/syncspirit/internal/fileio"
	"github.com/svmk2808/syncspirit/internal/hasher"
	"github.com/svmk2808/syncspirit/internal/model"
	"github.com/svmk2808/syncspirit/internal/model/diff"
	"github.com/svmk2808/syncspirit/internal/peer"
	"github.com/svmk2808/syncspirit/internal/persistence"
	"github.com/svmk2808/syncspirit/internal/scan"
	"github.com/svmk2808/syncspirit/internal/slog"
)

func main() {
	var (
		certFile = flag.String("cert", "cert.pem", "device certificate")
		keyFile  = flag.String("key", "key.pem", "device key")
		dbPath   = flag.String("db", "syncspirit.db", "database directory")
		listen   = flag.String("listen", ":22000", "listen address")
		folders  = flag.String("folders", "", "folder specs: id=label=path[,...]")
	)
	flag.Parse()

	log := slog.New("main")

	cert, err := tls.LoadX509KeyPair(*certFile, *keyFile)
	if err != nil {
		log.Error("loading certificate", slog.Err(err))
		os.Exit(1)
	}
	localID := deviceid.FromCert(cert.Certificate[0])
	log.Info("device id", slog.String("id", localID))

	cfg := config.Default()
	cfg.DeviceID = localID
	cfg.ListenAddr = *listen
	cfg.DBPath = *dbPath
	for _, spec := range strings.Split(*folders, ",") {
		parts := strings.SplitN(spec, "=", 3)
		if len(parts) != 3 {
			continue
		}
		cfg.Folders = append(cfg.Folders, config.FolderConfig{
			ID:             parts[0],
			Label:          parts[1],
			Path:           parts[2],
			RescanInterval: time.Minute,
		})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, cert, log); err != nil {
		log.Error("fatal", slog.Err(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, cert tls.Certificate, log slog.Log) error {
	store, err := persistence.Open(cfg.DBPath, cfg.UncommittedThreshold, slog.New("persistence"))
	if err != nil {
		return err
	}
	defer store.Close()

	cluster := model.NewCluster()
	coord := coordinator.New(cluster, slog.New("coordinator"))
	go coord.Run(ctx)

	// Replay the persisted model before anything else observes diffs.
	load, err := store.LoadCluster()
	if err != nil {
		return err
	}
	if err := coord.Apply(ctx, load); err != nil {
		return err
	}

	coord.AddObserver(ctx, persistence.NewActor(store, slog.New("persistence")))

	if err := bootstrap(ctx, cfg, coord); err != nil {
		return err
	}

	pool := hasher.NewPool(ctx, cfg.HasherThreads, slog.New("hasher"))
	files := fileio.NewActor(cfg.MappingCacheSize, slog.New("fileio"))
	defer files.Close()
	scanner := scan.New(coord, pool, cfg.DeviceID, slog.New("scanner"))

	for _, folder := range cluster.Folders() {
		res, err := scanner.ScanFolder(ctx, folder)
		if err != nil {
			return err
		}
		logFolderStatus(cfg, coord, folder, res)
	}
	go rescanLoop(ctx, cfg, scanner, coord)

	tlsCfg := peer.TLSConfig(cert)
	go acceptLoop(ctx, cfg, coord, files, tlsCfg)
	go dialLoop(ctx, cfg, coord, files, tlsCfg)

	<-ctx.Done()
	return nil
}

// bootstrap installs the local device and any folders configured on the
// command line that the database does not know yet.
func bootstrap(ctx context.Context, cfg config.Config, coord *coordinator.Coordinator) error {
	cluster := coord.Cluster()
	if _, ok := cluster.Device(cfg.DeviceID); !ok {
		d := &model.Device{ID: cfg.DeviceID, Name: "local"}
		if err := coord.Apply(ctx, &diff.UpdatePeer{Device: d}); err != nil {
			return err
		}
	}
	for _, fc := range cfg.Folders {
		if _, exists := cluster.Folder(fc.ID); exists {
			continue
		}
		if err := coord.Apply(ctx, &diff.CreateFolder{
			Folder:      fc.ToFolder(),
			LocalDevice: cfg.DeviceID,
			IndexID:     model.NewIndexID(),
		}); err != nil {
			return err
		}
	}
	return nil
}

func rescanLoop(ctx context.Context, cfg config.Config, scanner *scan.Scanner, coord *coordinator.Coordinator) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, folder := range coord.Cluster().Folders() {
				if folder.RescanInterval <= 0 {
					continue
				}
				if res, err := scanner.ScanFolder(ctx, folder); err == nil {
					logFolderStatus(cfg, coord, folder, res)
				}
			}
		}
	}
}

func acceptLoop(ctx context.Context, cfg config.Config, coord *coordinator.Coordinator, files *fileio.Actor, tlsCfg *tls.Config) {
	log := slog.New("listener")
	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		log.Error("listen failed", slog.Err(err))
		return
	}
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	for {
		raw, err := ln.Accept()
		if err != nil {
			return
		}
		go func() {
			hsCtx, cancel := context.WithTimeout(ctx, cfg.HandshakeTimeout)
			conn, remoteID, err := peer.Accept(hsCtx, raw, tlsCfg)
			cancel()
			if err != nil {
				log.Warn("inbound handshake failed", slog.Err(err))
				return
			}
			cluster := coord.Cluster()
			d, known := cluster.Device(remoteID)
			if !known || cluster.IsIgnoredDevice(remoteID) || d.Paused {
				log.Info("rejecting unknown or paused device",
					slog.String("device", deviceid.Short(remoteID)))
				_ = conn.Close()
				return
			}
			servePeer(ctx, cfg, coord, files, conn, remoteID)
		}()
	}
}

// dialLoop periodically tries to connect every known, unpaused device with
// static addresses that is not already connected.
func dialLoop(ctx context.Context, cfg config.Config, coord *coordinator.Coordinator, files *fileio.Actor, tlsCfg *tls.Config) {
	log := slog.New("dialer")
	var mu sync.Mutex
	connected := make(map[string]bool)
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		for _, d := range coord.Cluster().Devices() {
			if d.ID == cfg.DeviceID || d.Paused || len(d.StaticAddrs) == 0 {
				continue
			}
			mu.Lock()
			busy := connected[d.ID]
			connected[d.ID] = true
			mu.Unlock()
			if busy {
				continue
			}
			d := d
			go func() {
				defer func() {
					mu.Lock()
					connected[d.ID] = false
					mu.Unlock()
				}()
				dialCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
				conn, err := peer.Dial(dialCtx, d.StaticAddrs[0], tlsCfg, d.ID)
				cancel()
				if err != nil {
					log.Debug("dial failed", slog.String("device", deviceid.Short(d.ID)), slog.Err(err))
					return
				}
				servePeer(ctx, cfg, coord, files, conn, d.ID)
			}()
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// servePeer runs one authenticated connection's actor and controller until
// either side goes away.
func servePeer(ctx context.Context, cfg config.Config, coord *coordinator.Coordinator, files *fileio.Actor, conn net.Conn, remoteID string) {
	short := deviceid.Short(remoteID)
	actor := peer.NewActor(cfg, coord, files, conn, remoteID, slog.New("peer."+short))
	ctl := controller.New(cfg, coord, files, actor, slog.New("controller."+short))

	peerCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go ctl.Run(peerCtx)
	_ = actor.Run(peerCtx)
}

func logFolderStatus(cfg config.Config, coord *coordinator.Coordinator, folder *model.Folder, res *scan.Result) {
	var total uint64
	if lfi, ok := coord.Cluster().FolderInfo(folder.ID, cfg.DeviceID); ok {
		for _, f := range lfi.Files() {
			if !f.Deleted {
				total += uint64(f.Size)
			}
		}
	}
	slog.New("scanner").Info("folder scanned",
		slog.String("folder", folder.ID),
		slog.Int("unchanged", res.Unchanged),
		slog.Int("new", len(res.New)),
		slog.Int("changed", len(res.ChangedMeta)),
		slog.Int("deleted", len(res.Deleted)),
		slog.String("size", humanize.Bytes(total)))
}
