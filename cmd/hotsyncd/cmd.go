package main

import (
	"fmt"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/palmsync/go-hotsync/pkg/dlp"
	"github.com/palmsync/go-hotsync/pkg/handshake"
	"github.com/palmsync/go-hotsync/pkg/netsync"
	"github.com/palmsync/go-hotsync/pkg/padp"
	"github.com/palmsync/go-hotsync/pkg/storage"
	"github.com/palmsync/go-hotsync/pkg/storage/file"
	"github.com/palmsync/go-hotsync/pkg/syncsrv"
	netsynctransport "github.com/palmsync/go-hotsync/pkg/transport/network"
	serialtransport "github.com/palmsync/go-hotsync/pkg/transport/serial"
	"github.com/palmsync/go-hotsync/pkg/transport/usb"
)

// context carries the dependencies every subcommand's Run needs, built
// once in main() the same way cmd/sedlockctl's context carries its
// already-opened locking session.
type context struct {
	logger *log.Logger
	store  storage.Store
}

// serveCmd runs the discovery → sync → wait-disconnect loop (spec.md
// §4.5) against one transport at a time; a production deployment runs
// one hotsyncd per cradle/listener.
type serveCmd struct {
	Transport    string        `enum:"usb,serial,network" default:"usb" help:"Which transport to service."`
	Device       string        `optional:"" type:"device" help:"Serial device path (serial transport only)."`
	Addr         string        `optional:"" default:":14238" help:"Listen address (network transport only)."`
	StorageDir   string        `required:"" short:"s" help:"Directory root for synced per-user databases."`
	PollInterval time.Duration `default:"200ms" help:"USB discovery poll interval (spec.md §4.3)."`
	Metrics      bool          `optional:"" help:"Export session/conduit counters to the default Prometheus registry."`
}

// listDevicesCmd prints every HotSync-capable USB device node currently
// attached, cross-referenced against the built-in vendor/product table.
type listDevicesCmd struct{}

var cli struct {
	Serve       serveCmd       `cmd:"" help:"Run the HotSync discovery/sync daemon against one transport."`
	ListDevices listDevicesCmd `cmd:"" help:"List attached USB devices known to speak HotSync."`
}

func (l *listDevicesCmd) Run(ctx *context) error {
	candidates, err := usb.Discover("")
	if err != nil {
		return fmt.Errorf("list-devices: %w", err)
	}
	if len(candidates) == 0 {
		fmt.Println("no USB devices found under /dev/bus/usb")
		return nil
	}
	for _, c := range candidates {
		if c.Known {
			fmt.Printf("%s  vid=%#04x pid=%#04x  %s (stack=%v)\n", c.Path, c.VendorID, c.ProductID, c.Info.Name, c.Info.Stack)
		} else {
			fmt.Printf("%s  vid=%#04x pid=%#04x  (not in the built-in table)\n", c.Path, c.VendorID, c.ProductID)
		}
	}
	return nil
}

func (s *serveCmd) Run(ctx *context) error {
	store, err := file.New(s.StorageDir)
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	ctx.store = store

	var metrics syncsrv.Metrics = syncsrv.NopMetrics{}
	if s.Metrics {
		metrics = syncsrv.NewPrometheusMetrics(prometheus.DefaultRegisterer)
	}

	server := syncsrv.NewServer(
		[]syncsrv.Conduit{syncsrv.BackupConduit{}, syncsrv.InstallConduit{}},
		store, ctx.logger, metrics,
	)

	switch s.Transport {
	case "usb":
		return s.serveUSB(ctx, server)
	case "serial":
		return s.serveSerial(ctx, server)
	case "network":
		return s.serveNetwork(ctx, server)
	default:
		return fmt.Errorf("serve: unknown transport %q", s.Transport)
	}
}

// sessionDevice adapts one opened transport connection to syncsrv.Device:
// a DLP duplex plus teardown, whichever protocol stack (PADP or NetSync)
// the device's table entry names.
type sessionDevice struct {
	dlp.Duplex
	closer func() error
}

func (d sessionDevice) Close() error { return d.closer() }

func (s *serveCmd) serveUSB(ctx *context, server *syncsrv.Server) error {
	for {
		candidates, err := usb.Discover("")
		if err != nil {
			ctx.logger.Printf("usb: discover: %v", err)
			time.Sleep(s.PollInterval)
			continue
		}
		var match *usb.Candidate
		for i := range candidates {
			if candidates[i].Known {
				match = &candidates[i]
				break
			}
		}
		if match == nil {
			time.Sleep(s.PollInterval)
			continue
		}

		if err := s.runOneUSB(ctx, server, *match); err != nil {
			ctx.logger.Printf("usb: session with %s: %v", match.Path, err)
		}
		if err := usb.WaitForDisconnect(match.Path, s.PollInterval); err != nil {
			ctx.logger.Printf("usb: wait for disconnect: %v", err)
		}
	}
}

func (s *serveCmd) runOneUSB(ctx *context, server *syncsrv.Server, c usb.Candidate) error {
	dev, err := usb.Open(c, ctx.logger)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}

	var info handshake.SessionInfo
	var sdev sessionDevice

	switch c.Info.Stack {
	case usb.StackNetSync:
		codec := netsync.NewCodec(dev)
		info, err = handshake.RunNetSync(codec, dev)
		sdev = sessionDevice{Duplex: dlp.NetsyncDuplex{Codec: codec}, closer: dev.Close}
	default: // StackPADP
		conn := padp.NewSLPConn(dev, ctx.logger)
		info, err = handshake.RunSerial(conn, conn)
		sdev = sessionDevice{Duplex: conn, closer: dev.Close}
	}
	if err != nil {
		dev.Close()
		return fmt.Errorf("handshake: %w", err)
	}

	_, runErr := server.RunOne(sdev, fmt.Sprintf("user-%08x", info.UserInfo.LastSyncPC))
	return runErr
}

func (s *serveCmd) serveSerial(ctx *context, server *syncsrv.Server) error {
	device := s.Device
	if device == "" {
		ports, err := serialtransport.ListPorts()
		if err != nil {
			return fmt.Errorf("serial: %w", err)
		}
		if len(ports) != 1 {
			return fmt.Errorf("serial: pass --device explicitly (found %d candidate ports)", len(ports))
		}
		device = ports[0]
	}
	port, err := serialtransport.Open(device, serialtransport.DefaultBaudRate)
	if err != nil {
		return fmt.Errorf("serial: %w", err)
	}
	conn := padp.NewSLPConn(port, ctx.logger)
	info, err := handshake.RunSerial(conn, conn)
	if err != nil {
		port.Close()
		return fmt.Errorf("serial: handshake: %w", err)
	}
	sdev := sessionDevice{Duplex: conn, closer: port.Close}
	_, err = server.RunOne(sdev, fmt.Sprintf("user-%08x", info.UserInfo.LastSyncPC))
	return err
}

func (s *serveCmd) serveNetwork(ctx *context, server *syncsrv.Server) error {
	ln, err := netsynctransport.Listen(s.Addr)
	if err != nil {
		return fmt.Errorf("network: %w", err)
	}
	defer ln.Close()
	for {
		conn, err := ln.Accept()
		if err != nil {
			ctx.logger.Printf("network: accept: %v", err)
			continue
		}
		codec := netsync.NewCodec(conn)
		info, err := handshake.RunNetSync(codec, conn)
		if err != nil {
			ctx.logger.Printf("network: handshake: %v", err)
			conn.Close()
			continue
		}
		sdev := sessionDevice{Duplex: dlp.NetsyncDuplex{Codec: codec}, closer: conn.Close}
		if _, err := server.RunOne(sdev, fmt.Sprintf("user-%08x", info.UserInfo.LastSyncPC)); err != nil {
			ctx.logger.Printf("network: session: %v", err)
		}
	}
}
