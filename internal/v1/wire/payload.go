package wire

import (
	"bytes"
	"strings"
)

// Payload grammar helpers. Payloads are ASCII-oriented with '\n' or '\0' as
// field separators; '\0' terminators are counted in the frame size.

// Field encodes a single NUL-terminated field: "<s>\0".
func Field(s string) []byte {
	b := make([]byte, len(s)+1)
	copy(b, s)
	return b
}

// Fields encodes consecutive NUL-terminated fields: "f1\0f2\0…".
func Fields(ss ...string) []byte {
	n := 0
	for _, s := range ss {
		n += len(s) + 1
	}
	b := make([]byte, 0, n)
	for _, s := range ss {
		b = append(b, s...)
		b = append(b, 0)
	}
	return b
}

// JoinList encodes a name list: "a\nb\nc\0". The trailing '\n' of the last
// entry is stripped and a single '\0' is appended. An empty list encodes as
// an empty payload with no terminator.
func JoinList(items []string) []byte {
	if len(items) == 0 {
		return nil
	}
	joined := strings.Join(items, "\n")
	b := make([]byte, len(joined)+1)
	copy(b, joined)
	return b
}

// NotifyBody encodes the join/leave notification body: "room\nuser@ip" with
// no terminator.
func NotifyBody(room, userAtAddr string) []byte {
	return []byte(room + "\n" + userAtAddr)
}

// UserAt formats the "username@ip" pair used in USER_LIST entries and
// join/leave notifications.
func UserAt(username, addr string) string {
	return username + "@" + addr
}

// CutField returns the bytes of payload up to the first NUL as a string.
// A payload without a NUL yields the whole payload; ok is false when the
// payload is empty or begins with a NUL (an empty field).
func CutField(payload []byte) (string, bool) {
	if len(payload) == 0 {
		return "", false
	}
	if i := bytes.IndexByte(payload, 0); i >= 0 {
		if i == 0 {
			return "", false
		}
		return string(payload[:i]), true
	}
	return string(payload), true
}

// CutPair splits "f1\0f2\0" into its two fields. The second field may be
// empty; a payload with no leading field yields ok false.
func CutPair(payload []byte) (first, second string, ok bool) {
	i := bytes.IndexByte(payload, 0)
	if i <= 0 {
		return "", "", false
	}
	first = string(payload[:i])

	rest := payload[i+1:]
	if j := bytes.IndexByte(rest, 0); j >= 0 {
		rest = rest[:j]
	}
	return first, string(rest), true
}
