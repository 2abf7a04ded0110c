// Package syncsrv implements the sync server / session orchestrator: the
// state machine that drives one handheld from discovery through a
// completed (or aborted) sync and back to waiting for the next device,
// plus the conduit pipeline and sync-type classification described in
// spec.md §4.5.
package syncsrv

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/palmsync/go-hotsync/pkg/dlp"
	"github.com/palmsync/go-hotsync/pkg/handshake"
	"github.com/palmsync/go-hotsync/pkg/storage"
)

// State is one point in the per-device session state machine (spec.md
// §4.5).
type State uint8

const (
	StateDiscovered State = iota
	StateOpened
	StateClaimed
	StateConfigured
	StateHandshaking
	StateSyncing
	StateEnding
	StateClosed
	StateWaitDisconnect
)

func (s State) String() string {
	switch s {
	case StateDiscovered:
		return "DISCOVERED"
	case StateOpened:
		return "OPENED"
	case StateClaimed:
		return "CLAIMED"
	case StateConfigured:
		return "CONFIGURED"
	case StateHandshaking:
		return "HANDSHAKING"
	case StateSyncing:
		return "SYNCING"
	case StateEnding:
		return "ENDING"
	case StateClosed:
		return "CLOSED"
	case StateWaitDisconnect:
		return "WAIT-DISCONNECT"
	default:
		return "UNKNOWN"
	}
}

// SyncType classifies a session per spec.md §4.5.
type SyncType uint8

const (
	SyncFirst SyncType = iota
	SyncFast
	SyncSlow
)

func (t SyncType) String() string {
	switch t {
	case SyncFirst:
		return "first"
	case SyncFast:
		return "fast"
	case SyncSlow:
		return "slow"
	default:
		return "unknown"
	}
}

// Classify compares the handheld's reported last-sync PC and the local
// computer ID/sync records to decide the sync type.
//
//   - first: the local store has no user area for this handheld's user yet.
//   - fast:  the handheld's last-sync PC matches localID and the anchors
//     (success/last sync timestamps) agree with what the last fast/slow
//     sync recorded.
//   - slow:  a known device whose anchors disagree with the last recorded
//     sync, so records must be compared one by one.
func Classify(userInfo dlp.ReadUserInfoResponse, localID uint32, hasUserArea bool, lastKnownSyncAt uint32) SyncType {
	if !hasUserArea {
		return SyncFirst
	}
	if userInfo.LastSyncPC == localID && userInfo.LastSyncAt == lastKnownSyncAt {
		return SyncFast
	}
	return SyncSlow
}

// SessionContext is threaded through every conduit invocation: everything
// a conduit might need to decide what to sync and how (spec.md §6).
type SessionContext struct {
	UserInfo dlp.ReadUserInfoResponse
	SysInfo  dlp.ReadSysInfoResponse
	DBList   []dlp.DBInfo
	SyncType SyncType
	UserName string
}

// Conduit is any unit of sync work; the pipeline contract named in spec.md
// §6. A conduit may fail without aborting the rest of the pipeline.
type Conduit interface {
	Name() string
	Execute(conn dlp.Duplex, ctx *SessionContext, store storage.Store) error
}

// Device is the minimal contract the orchestrator needs from a claimed
// transport: a DLP duplex to run the protocol over, plus teardown.
type Device interface {
	dlp.Duplex
	Close() error
}

// Metrics is the small set of counters the orchestrator updates; an
// interface so callers can wire it to prometheus or leave it a no-op in
// tests.
type Metrics interface {
	ObserveSession(syncType SyncType, state State, duration time.Duration)
	ObserveConduitError(conduitName string)
}

// NopMetrics discards every observation.
type NopMetrics struct{}

func (NopMetrics) ObserveSession(SyncType, State, time.Duration) {}
func (NopMetrics) ObserveConduitError(string)                    {}

// Server services one device per RunOne call. The discovery and
// wait-disconnect loop around it lives in the caller (cmd/hotsyncd), which
// runs RunOne for one device at a time.
type Server struct {
	Conduits []Conduit
	Store    storage.Store
	Logger   *log.Logger
	Metrics  Metrics

	mu      sync.Mutex
	stopped bool
}

// NewServer builds a Server with the given conduits and storage; a nil
// Logger or Metrics is replaced with a safe default.
func NewServer(conduits []Conduit, store storage.Store, logger *log.Logger, metrics Metrics) *Server {
	if logger == nil {
		logger = log.Default()
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Server{Conduits: conduits, Store: store, Logger: logger, Metrics: metrics}
}

// Stop sets the shutdown flag; calling it more than once is harmless. It
// does not cancel an in-flight session, RunOne does not check the flag,
// and the discovery loops in cmd/hotsyncd do not consult it, so Stop does
// not end discovery.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
}

func (s *Server) stoppedNow() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// RunOne drives a single already-opened device, whose CMP or NetSync
// preamble exchange is done, from CONFIGURED to CLOSED: in HANDSHAKING it
// issues ReadSysInfo and ReadUserInfo itself, then runs the conduits, sends
// EndOfSync and closes the device. Discovery/open/claim happen in the
// transport-specific caller (pkg/transport/usb, pkg/transport/serial,
// pkg/transport/network), which is why RunOne starts at CONFIGURED rather
// than DISCOVERED; waiting for the device to disconnect is likewise left
// to the caller (cmd/hotsyncd calls usb.WaitForDisconnect).
func (s *Server) RunOne(dev Device, userName string) (state State, err error) {
	start := time.Now()
	state = StateConfigured

	state = StateHandshaking
	info, err := readInitialInfo(dev)
	if err != nil {
		s.Logger.Printf("handshake: %v", err)
		state = StateClosed
		s.closeAndWait(dev, SyncFirst, state, start)
		return state, fmt.Errorf("syncsrv: handshake: %w", err)
	}

	hasUserArea, err := s.Store.HasUserArea(userName)
	if err != nil {
		s.Logger.Printf("check user area: %v", err)
	}
	localID, err := s.Store.LocalComputerID()
	if err != nil {
		s.Logger.Printf("local computer id: %v", err)
	}
	// The store keeps no per-user sync anchor, so the handheld's own
	// SuccessSyncAt is passed as lastKnownSyncAt: the fast/slow decision
	// compares the handheld's two timestamps with each other, not with a
	// locally recorded value.
	syncType := Classify(info.UserInfo, localID, hasUserArea, info.UserInfo.SuccessSyncAt)

	if err := s.Store.EnsureUserArea(userName); err != nil {
		s.Logger.Printf("ensure user area: %v", err)
	}

	ctx := &SessionContext{
		UserInfo: info.UserInfo,
		SysInfo:  info.SysInfo,
		SyncType: syncType,
		UserName: userName,
	}

	state = StateSyncing
	for _, c := range s.Conduits {
		if err := c.Execute(dev, ctx, s.Store); err != nil {
			s.Logger.Printf("conduit %s failed: %v", c.Name(), err)
			s.Metrics.ObserveConduitError(c.Name())
			// Per spec.md §4.5, a conduit failure does not abort the
			// pipeline or skip ENDING.
		}
	}

	state = StateEnding
	endReq := &dlp.EndOfSyncRequest{Status: 0}
	if _, err := dlp.Execute(dev, endReq); err != nil {
		s.Logger.Printf("end of sync: %v", err)
	}

	state = StateClosed
	s.closeAndWait(dev, syncType, state, start)
	return state, nil
}

func (s *Server) closeAndWait(dev Device, syncType SyncType, state State, start time.Time) {
	if err := dev.Close(); err != nil {
		s.Logger.Printf("close device: %v (ignoring, known-unreliable on some drivers)", err)
	}
	s.Metrics.ObserveSession(syncType, state, time.Since(start))
}

func readInitialInfo(dev Device) (handshake.SessionInfo, error) {
	var info handshake.SessionInfo
	sysResp, err := dlp.Execute(dev, dlp.ReadSysInfoRequest{})
	if err != nil {
		return info, fmt.Errorf("ReadSysInfo: %w", err)
	}
	info.SysInfo = *sysResp.(*dlp.ReadSysInfoResponse)

	userResp, err := dlp.Execute(dev, &dlp.ReadUserInfoRequest{})
	if err != nil {
		return info, fmt.Errorf("ReadUserInfo: %w", err)
	}
	info.UserInfo = *userResp.(*dlp.ReadUserInfoResponse)
	return info, nil
}
