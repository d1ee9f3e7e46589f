package session

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/chatwire/chatserver/internal/v1/logging"
	"github.com/chatwire/chatserver/internal/v1/metrics"
	"github.com/chatwire/chatserver/internal/v1/registry"
	"github.com/chatwire/chatserver/internal/v1/wire"
)

// dispatch routes one received frame according to the session state.
// Returning false transitions the session to closing.
func (s *Session) dispatch(ctx context.Context, msg wire.Message) bool {
	start := time.Now()
	defer func() {
		metrics.MessageProcessingDuration.WithLabelValues(msg.Type.Label()).Observe(time.Since(start).Seconds())
	}()

	if s.state == stateAwaitingEnter {
		// The only legal first message is USER_ENTER; anything else is a
		// protocol violation and the connection is dropped without a reply.
		if msg.Type != wire.MsgUserEnter {
			logging.Warn(ctx, "protocol violation before user enter",
				zap.String("type", msg.Type.String()))
			return false
		}
		return s.handleUserEnter(ctx, msg)
	}

	switch msg.Type {
	case wire.MsgUserEnter:
		// A second USER_ENTER on a live session duplicates either the name
		// or the socket; the registry rejects it and the session closes.
		return s.handleUserEnter(ctx, msg)
	case wire.MsgUserLeave:
		return false
	case wire.MsgChatroomList:
		return s.handleChatroomList(ctx)
	case wire.MsgUserList:
		return s.handleUserList(ctx, msg)
	case wire.MsgEnterChatroom:
		return s.handleEnterChatroom(ctx, msg)
	case wire.MsgLeaveChatroom:
		return s.handleLeaveChatroom(ctx, msg)
	case wire.MsgSendChatroomMessage:
		return s.handleSendChatroomMessage(ctx, msg)
	default:
		// Unknown types (including the reserved SEND_USER_MESSAGE) are
		// ignored to preserve forward compatibility.
		logging.Info(ctx, "ignoring unknown message type",
			zap.String("type", msg.Type.String()))
		return true
	}
}

func (s *Session) handleUserEnter(ctx context.Context, msg wire.Message) bool {
	username, ok := wire.CutField(msg.Payload)
	if !ok {
		logging.Info(ctx, "user supplied no username, disconnecting")
		return false
	}

	if err := s.server.reg.AddUser(s.id, username, s.addr); err != nil {
		// Silent close: no error frame is defined for an application-level
		// rejection.
		logging.Info(ctx, "user enter rejected",
			zap.String("username", username), zap.Error(err))
		return false
	}

	s.state = stateActive
	logging.Info(ctx, "user entered",
		zap.String("username", username), zap.String("addr", s.addr))
	s.server.publishArrival(ctx, registry.UserInfo{Username: username, Addr: s.addr})
	return true
}

func (s *Session) handleChatroomList(ctx context.Context) bool {
	names := s.server.reg.ListRoomNames()
	s.enqueue(wire.MsgChatroomList, wire.JoinList(names))
	return true
}

func (s *Session) handleUserList(ctx context.Context, msg wire.Message) bool {
	roomName, ok := wire.CutField(msg.Payload)
	if !ok {
		s.enqueue(wire.MsgUserList, nil)
		return true
	}

	members, err := s.server.reg.ListRoomMembers(roomName)
	if err != nil {
		// Unknown room replies with an empty payload, not an error.
		s.enqueue(wire.MsgUserList, nil)
		return true
	}

	entries := make([]string, 0, len(members))
	for _, m := range members {
		entries = append(entries, wire.UserAt(m.Username, m.Addr))
	}
	s.enqueue(wire.MsgUserList, wire.JoinList(entries))
	return true
}

func (s *Session) handleEnterChatroom(ctx context.Context, msg wire.Message) bool {
	roomName, ok := wire.CutField(msg.Payload)
	if !ok {
		return false
	}

	info, found := s.server.reg.UserBySocket(s.id)
	if !found {
		return false
	}

	if err := s.server.reg.EnterRoom(s.id, roomName); err != nil {
		logging.Error(ctx, "enter room failed",
			zap.String("room", roomName), zap.Error(err))
		return false
	}

	// The join notification goes out strictly after the registry insert and
	// excludes the joiner, from one atomic membership snapshot.
	body := wire.NotifyBody(roomName, wire.UserAt(info.Username, info.Addr))
	s.server.fanout(roomName, wire.MsgNotifyUserJoined, body, s.id)
	s.server.publishEvent(ctx, roomName, "user_joined", info)

	logging.Info(ctx, "user joined room",
		zap.String("username", info.Username), zap.String("room", roomName))
	return true
}

func (s *Session) handleLeaveChatroom(ctx context.Context, msg wire.Message) bool {
	roomName, ok := wire.CutField(msg.Payload)
	if !ok {
		return false
	}

	info, found := s.server.reg.UserBySocket(s.id)
	if !found {
		return false
	}

	members := s.server.reg.RoomMembersSnapshot(roomName)
	isMember := false
	for _, id := range members {
		if id == s.id {
			isMember = true
			break
		}
	}
	if !isMember {
		// A leave for a room the user is not in must be a client error, so
		// we will forgive it.
		logging.Info(ctx, "leave room ignored", zap.String("room", roomName))
		return true
	}

	// Notify the remaining members before the user is removed, so a message
	// racing the leave reaches either the pre-leave or post-leave set.
	s.server.deliver(members, wire.MsgNotifyUserLeft,
		wire.NotifyBody(roomName, wire.UserAt(info.Username, info.Addr)), s.id)

	if err := s.server.reg.LeaveRoom(s.id, roomName); err != nil {
		logging.Info(ctx, "leave room ignored",
			zap.String("room", roomName), zap.Error(err))
		return true
	}

	s.server.publishEvent(ctx, roomName, "user_left", info)
	logging.Info(ctx, "user left room",
		zap.String("username", info.Username), zap.String("room", roomName))
	return true
}

func (s *Session) handleSendChatroomMessage(ctx context.Context, msg wire.Message) bool {
	roomName, text, ok := wire.CutPair(msg.Payload)
	if !ok {
		return false
	}

	info, found := s.server.reg.UserBySocket(s.id)
	if !found {
		return false
	}

	// Broadcast to every member including the sender, whose echo confirms
	// delivery. A message to a dead room is forgiven silently.
	payload := wire.Fields(info.Username, roomName, text)
	s.server.fanout(roomName, wire.MsgSendChatroomMessage, payload, "")

	s.server.publishChat(ctx, roomName, info, text)
	return true
}
