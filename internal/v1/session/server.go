package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chatwire/chatserver/internal/v1/bus"
	"github.com/chatwire/chatserver/internal/v1/config"
	"github.com/chatwire/chatserver/internal/v1/logging"
	"github.com/chatwire/chatserver/internal/v1/metrics"
	"github.com/chatwire/chatserver/internal/v1/registry"
	"github.com/chatwire/chatserver/internal/v1/wire"
)

// Server accepts connections, enforces the connection cap, and routes
// fan-out between live sessions. One Server per process.
type Server struct {
	cfg *config.Config
	reg *registry.Registry
	bus *bus.Service

	// generalMu serializes the connection counter and the session table.
	generalMu   sync.Mutex
	connections uint32
	sessions    map[registry.SocketID]*Session

	wg sync.WaitGroup
}

// NewServer wires the acceptor with its collaborators. bus may be nil
// (single-instance mode).
func NewServer(cfg *config.Config, reg *registry.Registry, eventBus *bus.Service) *Server {
	return &Server{
		cfg:      cfg,
		reg:      reg,
		bus:      eventBus,
		sessions: make(map[registry.SocketID]*Session),
	}
}

// Serve is the single entry point of the core: it listens on the configured
// port and runs until ctx is canceled. Each accepted connection gets its own
// session; connections over the cap are closed and logged.
func (srv *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp4", fmt.Sprintf(":%d", srv.cfg.Port))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", srv.cfg.Port, err)
	}
	return srv.serveListener(ctx, ln)
}

// serveListener runs the accept loop on an existing listener. Split from
// Serve so tests can bind an ephemeral port.
func (srv *Server) serveListener(ctx context.Context, ln net.Listener) error {
	logging.Info(ctx, "chat server listening",
		zap.String("addr", ln.Addr().String()),
		zap.Uint32("max_connections", srv.cfg.MaxConnections),
		zap.Uint32("max_chatrooms", srv.cfg.MaxChatrooms))

	// Operator announcements arrive over the bus and leave as
	// server-originated broadcasts.
	var busWg sync.WaitGroup
	srv.bus.SubscribeAnnouncements(ctx, &busWg, func(ann bus.Announcement) {
		srv.Announce(ann.Room, ann.Text)
	})

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			logging.Error(ctx, "accept failed", zap.Error(err))
			continue
		}
		srv.admit(ctx, conn)
	}

	srv.closeAllSessions()
	srv.wg.Wait()
	busWg.Wait()
	logging.Info(ctx, "chat server stopped")
	return nil
}

// admit applies the connection cap and hands the connection to a new
// session. The counter moves under generalMu only.
func (srv *Server) admit(ctx context.Context, conn net.Conn) {
	id := registry.SocketID(uuid.NewString())
	s := newSession(id, conn, srv)

	srv.generalMu.Lock()
	if srv.connections >= srv.cfg.MaxConnections {
		srv.generalMu.Unlock()
		logging.Info(ctx, "max connection limit reached, connection refused",
			zap.String("peer", s.addr))
		metrics.ConnectionsRejected.WithLabelValues("max_connections").Inc()
		_ = conn.Close()
		return
	}
	srv.connections++
	srv.sessions[id] = s
	srv.generalMu.Unlock()

	metrics.IncConnection()
	logging.Info(ctx, "connection established",
		zap.String("socket_id", string(id)), zap.String("peer", s.addr))

	srv.wg.Add(1)
	go func() {
		defer srv.wg.Done()
		s.run(ctx)
	}()
}

// release removes a terminated session and frees its connection slot.
func (srv *Server) release(s *Session) {
	srv.generalMu.Lock()
	if _, ok := srv.sessions[s.id]; ok {
		delete(srv.sessions, s.id)
		srv.connections--
	}
	srv.generalMu.Unlock()
}

// closeAllSessions force-closes every live connection during shutdown; each
// session observes the close as a failed receive and unwinds normally.
func (srv *Server) closeAllSessions() {
	srv.generalMu.Lock()
	live := make([]*Session, 0, len(srv.sessions))
	for _, s := range srv.sessions {
		live = append(live, s)
	}
	srv.generalMu.Unlock()

	for _, s := range live {
		s.closeConn()
	}
}

// fanout sends one frame to every member of a room except the excluded
// socket. Membership is one atomic snapshot; delivery happens after the
// registry lock is released.
func (srv *Server) fanout(room string, msgType wire.MsgType, payload []byte, except registry.SocketID) {
	srv.deliver(srv.reg.RoomMembersSnapshot(room), msgType, payload, except)
}

// deliver enqueues a frame onto each recipient's outbound queue. A dead
// recipient is dropped by its own session; the fan-out never aborts.
func (srv *Server) deliver(ids []registry.SocketID, msgType wire.MsgType, payload []byte, except registry.SocketID) {
	if len(ids) == 0 {
		return
	}

	srv.generalMu.Lock()
	recipients := make([]*Session, 0, len(ids))
	for _, id := range ids {
		if id == except {
			continue
		}
		if s, ok := srv.sessions[id]; ok {
			recipients = append(recipients, s)
		}
	}
	srv.generalMu.Unlock()

	for _, s := range recipients {
		s.enqueue(msgType, payload)
	}
	metrics.FanoutRecipients.WithLabelValues(msgType.Label()).Add(float64(len(recipients)))
}

// Announce broadcasts a server-originated message to every member of a room.
func (srv *Server) Announce(room, text string) {
	srv.fanout(room, wire.MsgServerChatroomMsg, wire.Field(text), "")
}

// --- bus egress (no-ops when the bus is nil) ---

func (srv *Server) publishEvent(ctx context.Context, room, kind string, info registry.UserInfo) {
	_ = srv.bus.Publish(ctx, bus.Event{
		Room:     room,
		Kind:     kind,
		Username: info.Username,
		Addr:     info.Addr,
	})
}

func (srv *Server) publishChat(ctx context.Context, room string, info registry.UserInfo, text string) {
	_ = srv.bus.Publish(ctx, bus.Event{
		Room:     room,
		Kind:     "chat",
		Username: info.Username,
		Addr:     info.Addr,
		Text:     text,
	})
}

func (srv *Server) publishArrival(ctx context.Context, info registry.UserInfo) {
	_ = srv.bus.Publish(ctx, bus.Event{
		Kind:     "user_entered",
		Username: info.Username,
		Addr:     info.Addr,
	})
}

func (srv *Server) publishDeparture(ctx context.Context, info registry.UserInfo) {
	_ = srv.bus.Publish(ctx, bus.Event{
		Kind:     "user_departed",
		Username: info.Username,
		Addr:     info.Addr,
	})
}
