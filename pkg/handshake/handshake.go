// Package handshake drives the session-start exchange that precedes the
// DLP conversation proper: a CMP wakeup/init round for serial-flavored
// links, a NetSync preamble exchange for NetSync-flavored links, then the
// two DLP calls (ReadSysInfo, ReadUserInfo) every sync needs before it can
// classify itself (spec.md §4.4).
package handshake

import (
	"fmt"

	"github.com/palmsync/go-hotsync/pkg/cmp"
	"github.com/palmsync/go-hotsync/pkg/dlp"
	"github.com/palmsync/go-hotsync/pkg/netsync"
)

// SessionInfo is populated by RunSerial or RunNetSync and carried forward into the sync
// orchestrator's classification step (spec.md §4.5).
type SessionInfo struct {
	SysInfo  dlp.ReadSysInfoResponse
	UserInfo dlp.ReadUserInfoResponse
}

// CMPExchanger carries the CMP exchange of the serial handshake phase. The
// callers pass the same *padp.Conn they then use as the DLP duplex, so CMP
// rides over PADP/SLP on socket 3<->3.
type CMPExchanger interface {
	cmp.MessageExchanger
}

// RunSerial performs the CMP wakeup/init exchange on x, then issues
// ReadSysInfo and ReadUserInfo over conn (the PADP-backed DLP duplex that
// becomes active once the handshake completes).
func RunSerial(x CMPExchanger, conn dlp.Duplex) (SessionInfo, error) {
	if _, err := cmp.Handshake(x); err != nil {
		return SessionInfo{}, fmt.Errorf("handshake: cmp exchange: %w", err)
	}
	return readInitialInfo(conn)
}

// RunNetSync exchanges the fixed NetSync preamble over preambleRW, then issues
// ReadSysInfo and ReadUserInfo over a dlp.NetsyncDuplex built on codec.
func RunNetSync(codec *netsync.Codec, preambleRW netsyncPreambleRW) (SessionInfo, error) {
	if err := netsync.ExchangePreamble(preambleRW, netsync.DefaultPreamble); err != nil {
		return SessionInfo{}, fmt.Errorf("handshake: netsync preamble: %w", err)
	}
	conn := dlp.NetsyncDuplex{Codec: codec}
	return readInitialInfo(conn)
}

// netsyncPreambleRW is the minimal contract ExchangePreamble needs; kept
// as a named interface here so RunNetSync's signature documents intent
// without importing io directly into this file's exported surface.
type netsyncPreambleRW interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
}

func readInitialInfo(conn dlp.Duplex) (SessionInfo, error) {
	var info SessionInfo

	sysResp, err := dlp.Execute(conn, dlp.ReadSysInfoRequest{})
	if err != nil {
		return info, fmt.Errorf("handshake: ReadSysInfo: %w", err)
	}
	info.SysInfo = *sysResp.(*dlp.ReadSysInfoResponse)

	userResp, err := dlp.Execute(conn, &dlp.ReadUserInfoRequest{})
	if err != nil {
		return info, fmt.Errorf("handshake: ReadUserInfo: %w", err)
	}
	info.UserInfo = *userResp.(*dlp.ReadUserInfoResponse)

	return info, nil
}
