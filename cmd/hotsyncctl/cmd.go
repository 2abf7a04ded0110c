package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/davecgh/go-spew/spew"

	"github.com/palmsync/go-hotsync/pkg/dlp"
	"github.com/palmsync/go-hotsync/pkg/handshake"
	"github.com/palmsync/go-hotsync/pkg/netsync"
	"github.com/palmsync/go-hotsync/pkg/padp"
	"github.com/palmsync/go-hotsync/pkg/recorder"
	"github.com/palmsync/go-hotsync/pkg/storage/memory"
	"github.com/palmsync/go-hotsync/pkg/syncsrv"
	"github.com/palmsync/go-hotsync/pkg/transport/serial"
	"github.com/palmsync/go-hotsync/pkg/transport/usb"
)

// context carries the logger every subcommand's Run shares, mirroring
// cmd/hotsyncd's context.
type context struct {
	logger *log.Logger
}

// dumpCmd opens the first known HotSync USB device, runs the handshake
// (but not a full sync), and dumps the resulting session info with
// go-spew, exactly as cmd/tcgsdiag dumps TPerProperties/Level0Discovery.
type dumpCmd struct {
	Transport  string `enum:"usb,serial" default:"usb" help:"Which transport to dump a handshake from."`
	Device     string `optional:"" type:"device" help:"Serial device path (serial transport only)."`
	Candidates bool   `optional:"" help:"Dump the raw USB discovery candidate list instead of performing a handshake (usb transport only)."`
}

// replayCmd feeds a recording captured by recorder.Writer back through the
// real framing/DLP/conduit stack, against an in-memory store, so conduits
// can be retested offline without a handheld attached (SPEC_FULL.md's
// "Recorder replay tool" supplement).
type replayCmd struct {
	File  string `arg:"" type:"accessiblefile" help:"Path to a recorder.Writer capture file."`
	Stack string `enum:"padp,netsync" default:"padp" help:"Which framing stack the capture was recorded under."`
	User  string `default:"replay-user" help:"User name to run the conduit pipeline as."`
}

var cli struct {
	Dump   dumpCmd   `cmd:"" help:"Dump discovery/handshake info for an attached HotSync device."`
	Replay replayCmd `cmd:"" help:"Replay a recorded session capture through the framing and conduit stack."`
}

func (d *dumpCmd) Run(ctx *context) error {
	if d.Transport == "serial" {
		return d.dumpSerial(ctx)
	}

	candidates, err := usb.Discover("")
	if err != nil {
		return fmt.Errorf("dump: %w", err)
	}
	if d.Candidates || len(candidates) == 0 {
		spew.Dump(candidates)
		return nil
	}

	var chosen *usb.Candidate
	for i := range candidates {
		if candidates[i].Known {
			chosen = &candidates[i]
			break
		}
	}
	if chosen == nil {
		fmt.Println("no known device attached; dumping raw candidates instead")
		spew.Dump(candidates)
		return nil
	}

	dev, err := usb.Open(*chosen, ctx.logger)
	if err != nil {
		return fmt.Errorf("dump: open %s: %w", chosen.Path, err)
	}
	defer dev.Close()

	var info handshake.SessionInfo
	if chosen.Info.Stack == usb.StackNetSync {
		info, err = handshake.RunNetSync(netsync.NewCodec(dev), dev)
	} else {
		conn := padp.NewSLPConn(dev, ctx.logger)
		info, err = handshake.RunSerial(conn, conn)
	}
	if err != nil {
		return fmt.Errorf("dump: handshake: %w", err)
	}
	spew.Dump(chosen, info)
	return nil
}

// dumpSerial dumps a handshake taken over a serial cradle, given a device
// path on --device. cmdutil.ResolveDevice (wired into kong.Parse in
// main.go) is the same resolver a `device`-typed required flag elsewhere
// in this tool would use to prompt interactively instead.
func (d *dumpCmd) dumpSerial(ctx *context) error {
	if d.Device == "" {
		return fmt.Errorf("dump: no serial device selected (pass --device)")
	}
	port, err := serial.Open(d.Device, serial.DefaultBaudRate)
	if err != nil {
		return fmt.Errorf("dump: %w", err)
	}
	defer port.Close()

	conn := padp.NewSLPConn(port, ctx.logger)
	info, err := handshake.RunSerial(conn, conn)
	if err != nil {
		return fmt.Errorf("dump: handshake: %w", err)
	}
	spew.Dump(info)
	return nil
}

// replayReadWriter plays back the "in" direction of a capture as Read
// results; writes from the caller (the host's outbound requests) are
// absorbed silently, since a replay has nothing live to send them to.
type replayReadWriter struct {
	pending []byte
	records []recorder.Record
	idx     int
}

func newReplayReadWriter(records []recorder.Record) *replayReadWriter {
	in := make([]recorder.Record, 0, len(records))
	for _, r := range records {
		if r.Direction == recorder.DirectionIn {
			in = append(in, r)
		}
	}
	return &replayReadWriter{records: in}
}

func (r *replayReadWriter) Read(p []byte) (int, error) {
	for len(r.pending) == 0 {
		if r.idx >= len(r.records) {
			return 0, io.EOF
		}
		r.pending = r.records[r.idx].Bytes
		r.idx++
	}
	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}

func (r *replayReadWriter) Write(p []byte) (int, error) { return len(p), nil }

func (rp *replayCmd) Run(ctx *context) error {
	f, err := os.Open(rp.File)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	defer f.Close()

	rdr := recorder.NewReader(f)
	var records []recorder.Record
	for {
		rec, err := rdr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("replay: read capture: %w", err)
		}
		records = append(records, rec)
	}
	ctx.logger.Printf("replay: loaded %d records from %s", len(records), rp.File)

	rw := newReplayReadWriter(records)

	var info handshake.SessionInfo
	var conn dlp.Duplex
	if rp.Stack == "netsync" {
		codec := netsync.NewCodec(rw)
		info, err = handshake.RunNetSync(codec, rw)
		conn = dlp.NetsyncDuplex{Codec: codec}
	} else {
		padpConn := padp.NewSLPConn(rw, ctx.logger)
		info, err = handshake.RunSerial(padpConn, padpConn)
		conn = padpConn
	}
	if err != nil {
		return fmt.Errorf("replay: handshake: %w", err)
	}

	store := memory.New()
	if err := store.EnsureUserArea(rp.User); err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	server := syncsrv.NewServer(
		[]syncsrv.Conduit{syncsrv.BackupConduit{}, syncsrv.InstallConduit{}},
		store, ctx.logger, syncsrv.NopMetrics{},
	)
	sdev := replayDevice{Duplex: conn}

	start := time.Now()
	state, runErr := server.RunOne(sdev, rp.User)
	ctx.logger.Printf("replay: reached state %v in %s", state, time.Since(start))
	spew.Dump(info)
	return runErr
}

// replayDevice satisfies syncsrv.Device; a replay has no real transport to
// release, so Close is a no-op.
type replayDevice struct {
	dlp.Duplex
}

func (replayDevice) Close() error { return nil }
