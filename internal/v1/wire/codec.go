package wire

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"syscall"

	"go.uber.org/zap"

	"github.com/chatwire/chatserver/internal/v1/logging"
	"github.com/chatwire/chatserver/internal/v1/metrics"
)

// Send writes one full frame to conn. Partial writes are retried until all
// bytes are flushed or a non-retryable error occurs. The header fields are
// encoded in network byte order.
func Send(conn io.Writer, msgType MsgType, payload []byte) Result {
	buf := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint16(buf[0:2], Marker)
	binary.BigEndian.PutUint16(buf[2:4], uint16(msgType))
	binary.BigEndian.PutUint32(buf[4:8], uint32(len(payload)))
	copy(buf[HeaderSize:], payload)

	for written := 0; written < len(buf); {
		n, err := conn.Write(buf[written:])
		written += n
		if err != nil {
			if res := classify(err); res != TryAgain {
				return res
			}
			// transient: retry the remainder
		}
	}

	metrics.FramesTotal.WithLabelValues("sent", msgType.Label()).Inc()
	return Success
}

// Receive reads exactly one frame from conn. A marker mismatch, an EOF
// mid-frame, or an oversized payload yields Failed and the caller must drop
// the connection.
func Receive(conn io.Reader) (Message, Result) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(conn, header[:]); err != nil {
		return Message{}, classify(err)
	}

	marker := binary.BigEndian.Uint16(header[0:2])
	msgType := MsgType(binary.BigEndian.Uint16(header[2:4]))
	size := binary.BigEndian.Uint32(header[4:8])

	if marker != Marker {
		logging.Warn(context.Background(), "marker mismatch on received frame, dropping peer",
			zap.Uint16("marker", marker))
		return Message{}, Failed
	}
	if size > MaxPayloadSize {
		logging.Warn(context.Background(), "oversized frame rejected",
			zap.Uint32("size", size), zap.String("type", msgType.String()))
		return Message{}, Failed
	}

	msg := Message{Type: msgType}
	if size > 0 {
		msg.Payload = make([]byte, size)
		if _, err := io.ReadFull(conn, msg.Payload); err != nil {
			// EOF mid-frame is a torn message, never transient
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return Message{}, Failed
			}
			return Message{}, classify(err)
		}
	}

	metrics.FramesTotal.WithLabelValues("received", msgType.Label()).Inc()
	return msg, Success
}

// classify maps a transport error onto the tri-state Result. Interrupted or
// would-block conditions are transient; conditions that indicate misuse of
// the socket are programming faults and abort under the debug build tag.
func classify(err error) Result {
	if err == nil {
		return Success
	}

	if errors.Is(err, syscall.EINTR) || errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EWOULDBLOCK) {
		return TryAgain
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return TryAgain
	}

	if errors.Is(err, syscall.EBADF) || errors.Is(err, syscall.EINVAL) ||
		errors.Is(err, syscall.ENOTCONN) || errors.Is(err, syscall.ENOTSOCK) ||
		errors.Is(err, syscall.EFAULT) {
		fault("socket misuse: " + err.Error())
		return Failed
	}

	return Failed
}
