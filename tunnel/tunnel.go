// Package tunnel drives one session's bidirectional relay between a
// WebSocket client and a TCP connection to guacd: the handshake to
// reach the "relaying" steady state, then two coupled read/write
// pipelines with shutdown, timeout, and disconnect semantics.
package tunnel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/guacgw/gateway/gatewayerr"
	"github.com/guacgw/gateway/handshake"
	"github.com/guacgw/gateway/protocol"
)

// watchdogInterval bounds how stale the inactivity check can be; it is
// polling granularity, not the timeout itself. A var, not a const, so
// tests can shrink it instead of waiting out the production interval.
var watchdogInterval = 5 * time.Second

// Phase is a session's position in its lifecycle. It only ever moves
// forward.
type Phase int32

const (
	PhaseHandshaking Phase = iota
	PhaseRelaying
	PhaseClosing
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseHandshaking:
		return "handshaking"
	case PhaseRelaying:
		return "relaying"
	case PhaseClosing:
		return "closing"
	case PhaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Recorder optionally captures the daemon->client instruction stream.
type Recorder interface {
	Record(connID string, data []byte)
	Close(connID string)
}

// Session owns one tunnel's state: the two sockets, the handshake
// result, and the lifecycle bookkeeping (phase, lastActivity,
// closeOnce).
type Session struct {
	ID int64

	client       ClientSocket
	daemon       net.Conn
	clientReader *protocol.Reader
	daemonReader *protocol.Reader

	maxInactivity time.Duration
	recorder      Recorder

	phase        atomic.Int32
	lastActivity atomic.Int64 // unix nanos

	closeOnce           sync.Once
	closeErr            error
	done                chan struct{}
	disconnectForwarded atomic.Bool

	connID string
}

// NewSession creates a session in the handshaking phase. maxInactivity
// of zero disables the inactivity watchdog.
func NewSession(id int64, client ClientSocket, daemon net.Conn, maxInactivity time.Duration, recorder Recorder) *Session {
	s := &Session{
		ID:            id,
		client:        client,
		daemon:        daemon,
		maxInactivity: maxInactivity,
		recorder:      recorder,
		done:          make(chan struct{}),
	}
	s.clientReader = protocol.NewReader(&clientByteReader{client: client})
	s.daemonReader = protocol.NewReader(daemon)
	s.touch()
	return s
}

func (s *Session) Phase() Phase         { return Phase(s.phase.Load()) }
func (s *Session) ConnectionID() string { return s.connID }
func (s *Session) touch()               { s.lastActivity.Store(time.Now().UnixNano()) }

func (s *Session) lastActivityTime() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

func (s *Session) advancePhase(p Phase) {
	for {
		cur := Phase(s.phase.Load())
		if cur >= p {
			return
		}
		if s.phase.CompareAndSwap(int32(cur), int32(p)) {
			return
		}
	}
}

// Handshake drives the select/args/size/audio/video/image/connect/ready
// exchange with guacd (handshake.Do), then forwards the "ready"
// instruction verbatim to the client. timeout of zero means no deadline
// is applied on the daemon socket.
func (s *Session) Handshake(cfg *handshake.Config, timeout time.Duration) error {
	if timeout > 0 {
		_ = s.daemon.SetDeadline(time.Now().Add(timeout))
	}
	result, err := handshake.Do(s.daemon, s.daemonReader, cfg)
	if timeout > 0 {
		_ = s.daemon.SetDeadline(time.Time{})
	}
	if err != nil {
		gerr := asGatewayErr(err, gatewayerr.Handshake)
		s.closeWith(gerr)
		return gerr
	}
	s.connID = result.ConnectionID
	if err := s.client.SendText(string(result.Ready)); err != nil {
		gerr := gatewayerr.New(gatewayerr.Internal, fmt.Errorf("forwarding ready instruction: %w", err))
		s.closeWith(gerr)
		return gerr
	}
	s.touch()
	return nil
}

// Relay runs the two relay pipelines plus the inactivity watchdog until
// one of them triggers a close, or ctx is cancelled. It blocks until the
// session is fully closed and returns the terminal error, if any.
func (s *Session) Relay(ctx context.Context) error {
	s.advancePhase(PhaseRelaying)

	relayCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.clientToDaemon()
	}()
	go func() {
		defer wg.Done()
		s.daemonToClient()
	}()
	go s.watchdog(relayCtx)

	select {
	case <-relayCtx.Done():
		s.closeWith(gatewayerr.New(gatewayerr.Cancelled, relayCtx.Err()))
	case <-s.done:
	}
	wg.Wait()
	return s.closeErr
}

// clientToDaemon reads framed instructions from the client and forwards
// each to guacd verbatim. A "disconnect" instruction is forwarded, then
// triggers a graceful close.
func (s *Session) clientToDaemon() {
	for {
		instr, err := s.clientReader.ReadInstruction()
		if err != nil {
			s.closeWith(classifyReadErr(err))
			return
		}
		s.touch()
		if _, err := s.daemon.Write(instr.Bytes()); err != nil {
			s.closeWith(gatewayerr.New(gatewayerr.Internal, fmt.Errorf("writing to daemon: %w", err)))
			return
		}
		if instr.Opcode().Value() == "disconnect" {
			s.disconnectForwarded.Store(true)
			s.closeWith(gatewayerr.New(gatewayerr.PeerClosed, nil))
			return
		}
	}
}

// daemonToClient reads framed instructions from guacd and delivers each
// as one text message to the client, optionally mirroring it to the
// recorder.
func (s *Session) daemonToClient() {
	for {
		instr, err := s.daemonReader.ReadInstruction()
		if err != nil {
			s.closeWith(classifyReadErr(err))
			return
		}
		s.touch()
		if s.recorder != nil {
			s.recorder.Record(s.connID, instr.Bytes())
		}
		if err := s.client.SendText(string(instr)); err != nil {
			s.closeWith(gatewayerr.New(gatewayerr.Internal, fmt.Errorf("writing to client: %w", err)))
			return
		}
	}
}

func (s *Session) watchdog(ctx context.Context) {
	if s.maxInactivity <= 0 {
		return
	}
	ticker := time.NewTicker(watchdogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			if time.Since(s.lastActivityTime()) > s.maxInactivity {
				s.closeWith(gatewayerr.New(gatewayerr.Timeout, fmt.Errorf("no activity for over %s", s.maxInactivity)))
				return
			}
		}
	}
}

// closeWith is the one-shot teardown: close both sockets, record the
// first terminal error, and resolve s.done exactly once. Subsequent
// calls are no-ops, per the closeOnce invariant.
func (s *Session) closeWith(gerr *gatewayerr.Error) {
	s.closeOnce.Do(func() {
		s.closeErr = gerr
		s.advancePhase(PhaseClosing)

		if !s.disconnectForwarded.Load() {
			_, _ = s.daemon.Write(protocol.Disconnect.Bytes())
		}
		_ = s.daemon.Close()

		code, reason := closeCodeFor(gerr.Kind)
		_ = s.client.Close(code, reason)

		if s.recorder != nil {
			s.recorder.Close(s.connID)
		}

		s.advancePhase(PhaseClosed)
		close(s.done)
	})
}

func closeCodeFor(kind gatewayerr.Kind) (int, string) {
	switch kind {
	case gatewayerr.Framing, gatewayerr.Timeout, gatewayerr.PeerClosed:
		return CloseNormal, string(kind)
	case gatewayerr.Cancelled:
		return CloseGoingAway, string(kind)
	default:
		return CloseInternalServerErr, string(kind)
	}
}

func asGatewayErr(err error, fallback gatewayerr.Kind) *gatewayerr.Error {
	var ge *gatewayerr.Error
	if errors.As(err, &ge) {
		return ge
	}
	return gatewayerr.New(fallback, err)
}

func classifyReadErr(err error) *gatewayerr.Error {
	var fe *protocol.FramingError
	if errors.As(err, &fe) {
		return gatewayerr.New(gatewayerr.Framing, err)
	}
	return gatewayerr.New(gatewayerr.PeerClosed, err)
}
