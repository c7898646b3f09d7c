package probe

import (
	"bytes"
	"encoding/binary"

	"github.com/google/uuid"
	"golang.org/x/net/icmp"
)

// Echo payload: 16-byte run tracker, 4-byte sequence index, zero padding up
// to the classic 56-byte ping payload. The kernel rewrites the echo ID on
// datagram sockets, so the tracker is what ties a reply to this run.
const (
	trackerLength = len(uuid.UUID{})
	indexLength   = 4
	payloadLength = 56
)

func marshalEcho(ep endpoint, id, index int, tracker uuid.UUID) ([]byte, error) {
	data := make([]byte, payloadLength)
	copy(data, tracker[:])
	binary.BigEndian.PutUint32(data[trackerLength:], uint32(index))
	msg := icmp.Message{
		Type: ep.echoType,
		Code: 0,
		Body: &icmp.Echo{
			ID:   id,
			Seq:  index & 0xffff,
			Data: data,
		},
	}
	return msg.Marshal(nil)
}

// parseEchoReply returns the sequence index carried by an echo reply that
// belongs to tracker.
func parseEchoReply(ep endpoint, b []byte, tracker uuid.UUID) (int, bool) {
	parsed, err := icmp.ParseMessage(ep.proto, b)
	if err != nil {
		return 0, false
	}
	if parsed.Type != ep.replyType {
		return 0, false
	}
	echo, ok := parsed.Body.(*icmp.Echo)
	if !ok || len(echo.Data) < trackerLength+indexLength {
		return 0, false
	}
	if !bytes.Equal(echo.Data[:trackerLength], tracker[:]) {
		return 0, false
	}
	return int(binary.BigEndian.Uint32(echo.Data[trackerLength:])), true
}
