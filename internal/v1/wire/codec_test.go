package wire

import (
	"bytes"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip_AllTypes(t *testing.T) {
	payloads := [][]byte{
		nil,
		[]byte("x"),
		Field("alice"),
		Fields("lobby", "hello world"),
		bytes.Repeat([]byte{0xAB}, 64<<10),
	}

	for code := uint16(0x0001); code <= 0x000C; code++ {
		for _, payload := range payloads {
			var buf bytes.Buffer
			res := Send(&buf, MsgType(code), payload)
			require.Equal(t, Success, res)

			msg, res := Receive(&buf)
			require.Equal(t, Success, res)
			assert.Equal(t, MsgType(code), msg.Type)
			if len(payload) == 0 {
				assert.Empty(t, msg.Payload)
			} else {
				assert.Equal(t, payload, msg.Payload)
			}
		}
	}
}

func TestSend_WireLayout(t *testing.T) {
	var buf bytes.Buffer
	res := Send(&buf, MsgUserEnter, Field("alice"))
	require.Equal(t, Success, res)

	raw := buf.Bytes()
	require.GreaterOrEqual(t, len(raw), HeaderSize)

	// The first two bytes on the wire are 0xFF 0xEF regardless of host order
	assert.Equal(t, byte(0xFF), raw[0])
	assert.Equal(t, byte(0xEF), raw[1])

	assert.Equal(t, uint16(MsgUserEnter), binary.BigEndian.Uint16(raw[2:4]))
	assert.Equal(t, uint32(len("alice")+1), binary.BigEndian.Uint32(raw[4:8]))
	assert.Equal(t, append([]byte("alice"), 0), raw[HeaderSize:])
}

func TestReceive_BadMarker(t *testing.T) {
	raw := []byte{0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00}

	_, res := Receive(bytes.NewReader(raw))
	assert.Equal(t, Failed, res)
}

func TestReceive_EOFBeforeHeader(t *testing.T) {
	_, res := Receive(bytes.NewReader(nil))
	assert.Equal(t, Failed, res)
}

func TestReceive_EOFMidHeader(t *testing.T) {
	_, res := Receive(bytes.NewReader([]byte{0xFF, 0xEF, 0x00}))
	assert.Equal(t, Failed, res)
}

func TestReceive_EOFMidPayload(t *testing.T) {
	var buf bytes.Buffer
	require.Equal(t, Success, Send(&buf, MsgEnterChatroom, Field("lobby")))

	truncated := buf.Bytes()[:HeaderSize+2]
	_, res := Receive(bytes.NewReader(truncated))
	assert.Equal(t, Failed, res)
}

func TestReceive_OversizedPayload(t *testing.T) {
	var header [HeaderSize]byte
	binary.BigEndian.PutUint16(header[0:2], Marker)
	binary.BigEndian.PutUint16(header[2:4], uint16(MsgUserEnter))
	binary.BigEndian.PutUint32(header[4:8], MaxPayloadSize+1)

	_, res := Receive(bytes.NewReader(header[:]))
	assert.Equal(t, Failed, res)
}

func TestReceive_ShortReadsAreLooped(t *testing.T) {
	// A TCP stream may deliver a frame one byte at a time; the codec must
	// loop until the full frame is read.
	var buf bytes.Buffer
	require.Equal(t, Success, Send(&buf, MsgSendChatroomMessage, Fields("lobby", "hello")))

	msg, res := Receive(oneByteReader{r: &buf})
	require.Equal(t, Success, res)
	assert.Equal(t, MsgSendChatroomMessage, msg.Type)
	assert.Equal(t, Fields("lobby", "hello"), msg.Payload)
}

// oneByteReader delivers at most one byte per Read call.
type oneByteReader struct{ r io.Reader }

func (o oneByteReader) Read(p []byte) (int, error) {
	if len(p) > 1 {
		p = p[:1]
	}
	return o.r.Read(p)
}

func TestRoundTrip_OverTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	done := make(chan Message, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			close(done)
			return
		}
		defer conn.Close()
		msg, res := Receive(conn)
		if res == Success {
			done <- msg
		}
		close(done)
	}()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	payload := Fields("alice", "lobby", "hello")
	require.Equal(t, Success, Send(conn, MsgSendChatroomMessage, payload))

	select {
	case msg, ok := <-done:
		require.True(t, ok, "receive failed")
		assert.Equal(t, MsgSendChatroomMessage, msg.Type)
		assert.Equal(t, payload, msg.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
	}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, Success, classify(nil))
	assert.Equal(t, Failed, classify(io.EOF))
	assert.Equal(t, Failed, classify(io.ErrUnexpectedEOF))
	assert.Equal(t, TryAgain, classify(timeoutErr{}))
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestMsgTypeString(t *testing.T) {
	assert.Equal(t, "user_enter", MsgUserEnter.String())
	assert.Equal(t, "notify_user_left", MsgNotifyUserLeft.String())
	assert.Equal(t, "unknown_0x00ff", MsgType(0x00FF).String())
}

func TestMsgTypeLabel(t *testing.T) {
	assert.Equal(t, "user_enter", MsgUserEnter.Label())
	assert.Equal(t, "unknown", MsgType(0x00FF).Label())
	assert.Equal(t, "unknown", MsgType(0xBEEF).Label())
}
