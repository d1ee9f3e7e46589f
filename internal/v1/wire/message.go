// Package wire implements the framed binary protocol spoken between chat
// clients and the server.
//
// Every frame is a fixed 8-byte header followed by an optional payload:
//
//	marker  uint16  fixed 0xFFEF, big-endian
//	type    uint16  message type code, big-endian
//	size    uint32  payload byte length, big-endian
//	payload [size]byte
//
// The codec treats payloads as opaque bytes; the per-type grammars live in
// payload.go.
package wire

import "fmt"

// Marker is the fixed constant opening every frame.
const Marker uint16 = 0xFFEF

// HeaderSize is the packed size of the frame header in bytes.
const HeaderSize = 8

// MaxPayloadSize bounds the payload length the codec will accept on receive.
// A hostile size field otherwise turns into an arbitrary allocation.
const MaxPayloadSize = 1 << 20

// MsgType is a 16-bit message type code.
type MsgType uint16

const (
	MsgNoMessage           MsgType = 0x0000
	MsgUserEnter           MsgType = 0x0001 // C→S: username\0
	MsgUserLeave           MsgType = 0x0002 // C→S: payload ignored
	MsgChatroomList        MsgType = 0x0003 // C: empty; S: r1\nr2\n…\0 or empty
	MsgUserList            MsgType = 0x0004 // C: room\0; S: u1@ip1\nu2@ip2\n…\0 or empty
	MsgEnterChatroom       MsgType = 0x0005 // C→S: room\0
	MsgLeaveChatroom       MsgType = 0x0006 // C→S: room\0
	MsgSendChatroomMessage MsgType = 0x0007 // C: room\0text\0; S: sender\0room\0text\0
	MsgServerChatroomMsg   MsgType = 0x0008 // S→C: text\0
	MsgSendUserMessage     MsgType = 0x0009 // reserved, not implemented
	MsgNotifyError         MsgType = 0x000A // S→C: text\0
	MsgNotifyUserJoined    MsgType = 0x000B // S→C: room\nusername@ip
	MsgNotifyUserLeft      MsgType = 0x000C // S→C: room\nusername@ip
)

// String returns a stable label for logging and metrics.
func (t MsgType) String() string {
	switch t {
	case MsgNoMessage:
		return "no_message"
	case MsgUserEnter:
		return "user_enter"
	case MsgUserLeave:
		return "user_leave"
	case MsgChatroomList:
		return "chatroom_list"
	case MsgUserList:
		return "user_list"
	case MsgEnterChatroom:
		return "enter_chatroom"
	case MsgLeaveChatroom:
		return "leave_chatroom"
	case MsgSendChatroomMessage:
		return "send_chatroom_message"
	case MsgServerChatroomMsg:
		return "server_chatroom_message"
	case MsgSendUserMessage:
		return "send_user_message"
	case MsgNotifyError:
		return "notify_error"
	case MsgNotifyUserJoined:
		return "notify_user_joined"
	case MsgNotifyUserLeft:
		return "notify_user_left"
	default:
		return fmt.Sprintf("unknown_0x%04x", uint16(t))
	}
}

// Label is the metrics label for the type. Unlike String it collapses all
// unknown codes into one value to keep label cardinality bounded.
func (t MsgType) Label() string {
	if t > MsgNotifyUserLeft {
		return "unknown"
	}
	return t.String()
}

// Message is one decoded frame.
type Message struct {
	Type    MsgType
	Payload []byte
}

// Result is the tri-state outcome of a codec operation.
type Result int

const (
	Failed Result = iota
	TryAgain
	Success
)

func (r Result) String() string {
	switch r {
	case Failed:
		return "failed"
	case TryAgain:
		return "tryagain"
	case Success:
		return "success"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}
