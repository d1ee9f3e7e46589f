// Package session drives one client connection from accept to disconnect and
// runs the acceptor above the sessions.
//
// Each session is a small state machine (awaiting-enter → active → closing)
// fed by the wire codec. Two goroutines per session: run receives and
// dispatches frames, writeLoop drains the outbound queue. Only writeLoop
// writes to the socket; fan-out from other sessions enqueues onto the queue,
// which preserves the single-writer-per-socket invariant.
package session

import (
	"context"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/chatwire/chatserver/internal/v1/logging"
	"github.com/chatwire/chatserver/internal/v1/metrics"
	"github.com/chatwire/chatserver/internal/v1/registry"
	"github.com/chatwire/chatserver/internal/v1/wire"
)

type sessionState int

const (
	stateAwaitingEnter sessionState = iota
	stateActive
	stateClosing
)

// outboundBuffer bounds the per-session outbound queue. A recipient that
// cannot drain this many frames is considered dead and is dropped.
const outboundBuffer = 32

type frame struct {
	msgType wire.MsgType
	payload []byte
}

// Session is the per-connection worker.
type Session struct {
	id     registry.SocketID
	conn   net.Conn
	addr   string
	server *Server
	state  sessionState

	outbound   chan frame
	done       chan struct{}
	writerDone chan struct{}

	closeOnce sync.Once
}

func newSession(id registry.SocketID, conn net.Conn, server *Server) *Session {
	return &Session{
		id:       id,
		conn:     conn,
		addr:     peerAddr(conn),
		server:   server,
		state:    stateAwaitingEnter,
		outbound:   make(chan frame, outboundBuffer),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
	}
}

// peerAddr extracts the textual peer IP, informational only.
func peerAddr(conn net.Conn) string {
	remote := conn.RemoteAddr()
	if remote == nil {
		return "Unknown IP"
	}
	host, _, err := net.SplitHostPort(remote.String())
	if err != nil || host == "" {
		return "Unknown IP"
	}
	return host
}

// run drives the session until it reaches the closing state, then removes
// the user and emits leave notifications. It is the session goroutine.
func (s *Session) run(ctx context.Context) {
	ctx = context.WithValue(ctx, logging.SocketIDKey, string(s.id))

	go s.writeLoop()

	defer func() {
		s.leave(ctx)
		close(s.done)
		// let the writer flush any queued replies before the close
		<-s.writerDone
		s.closeConn()
		s.server.release(s)
		metrics.DecConnection()
	}()

	for s.state != stateClosing {
		msg, res := wire.Receive(s.conn)
		switch res {
		case wire.TryAgain:
			// signal interrupt on a blocking read; retry
			continue
		case wire.Failed:
			s.state = stateClosing
		case wire.Success:
			if !s.dispatch(ctx, msg) {
				s.state = stateClosing
			}
		}
	}
}

// writeLoop is the only writer on the socket. It exits when the session is
// done or when a write fails, whichever comes first. On shutdown it drains
// whatever the read loop already queued so a final reply is not lost.
func (s *Session) writeLoop() {
	defer close(s.writerDone)
	for {
		select {
		case <-s.done:
			for {
				select {
				case f := <-s.outbound:
					if wire.Send(s.conn, f.msgType, f.payload) != wire.Success {
						s.closeConn()
						return
					}
				default:
					return
				}
			}
		case f := <-s.outbound:
			if wire.Send(s.conn, f.msgType, f.payload) != wire.Success {
				s.closeConn()
				return
			}
		}
	}
}

// enqueue hands a frame to the session's writer without blocking. A full
// queue means the recipient stopped draining; its connection is dropped and
// the fan-out that called us carries on.
func (s *Session) enqueue(msgType wire.MsgType, payload []byte) {
	select {
	case s.outbound <- frame{msgType: msgType, payload: payload}:
	default:
		logging.Warn(context.Background(), "outbound queue full, dropping peer",
			zap.String("socket_id", string(s.id)))
		s.closeConn()
	}
}

// closeConn closes the underlying connection once. Safe from any goroutine;
// the read loop observes the close as a failed receive.
func (s *Session) closeConn() {
	s.closeOnce.Do(func() {
		_ = s.conn.Close()
	})
}

// leave removes the user from the registry and notifies the remaining
// members of every room the user was in.
func (s *Session) leave(ctx context.Context) {
	info, affected, ok := s.server.reg.RemoveUser(s.id)
	if !ok {
		return // never identified; nothing to announce
	}

	logging.Info(ctx, "user left",
		zap.String("username", info.Username),
		zap.Strings("rooms", affected))

	body := wire.UserAt(info.Username, info.Addr)
	for _, room := range affected {
		s.server.fanout(room, wire.MsgNotifyUserLeft, wire.NotifyBody(room, body), s.id)
		s.server.publishEvent(ctx, room, "user_left", info)
	}
	s.server.publishDeparture(ctx, info)
}
