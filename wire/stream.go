package wire

import (
	"encoding/binary"
	"io"
)

// ReadFrame reads exactly one frame from r: the 8-byte fixed header,
// then msg_len bytes of options, then decodes it with Decode. It
// blocks until a full frame is available or r returns an error.
func ReadFrame(r io.Reader, maxLen int) (*Message, error) {
	var hdr [8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	msgLen := binary.BigEndian.Uint32(hdr[4:8])
	if maxLen <= 0 {
		maxLen = MaxMessageLen
	}
	if int(msgLen) > maxLen {
		return nil, ErrTooLarge
	}
	buf := make([]byte, 8+int(msgLen))
	copy(buf, hdr[:])
	if _, err := io.ReadFull(r, buf[8:]); err != nil {
		return nil, err
	}
	m, _, err := Decode(buf, maxLen)
	return m, err
}
