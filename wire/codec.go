package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// MaxMessageLen is the default negotiated ceiling on msg_len. Encode
// always enforces it; Decode and ReadFrame enforce the limit they are
// given.
const MaxMessageLen = 64 * 1024

var (
	// ErrMalformed covers any structural violation of the frame: a
	// msg_len that overruns the buffer, an opt_len that overruns the
	// message, or a message shorter than the fixed header.
	ErrMalformed = errors.New("wire: malformed message")
	// ErrTooLarge is returned when msg_len exceeds the negotiated maximum.
	ErrTooLarge = errors.New("wire: message exceeds negotiated maximum")
	// ErrUnsupportedOption is returned by Decode callers (via
	// RejectUnknownMandatory) when a mandatory option tag isn't
	// recognized by the caller's option set.
	ErrUnsupportedOption = errors.New("wire: unsupported mandatory option")
)

// packer accumulates bytes for a single message, refusing further
// writes once an error has occurred. Adapted from the teacher's
// utils/wrappers.Packer, extended with length-prefixed option writes
// and a matching unpacker below.
type packer struct {
	bytes []byte
	err   error
}

func newPacker(sizeHint int) *packer {
	return &packer{bytes: make([]byte, 0, sizeHint)}
}

func (p *packer) byte(b byte) {
	if p.err != nil {
		return
	}
	p.bytes = append(p.bytes, b)
}

func (p *packer) raw(b []byte) {
	if p.err != nil {
		return
	}
	p.bytes = append(p.bytes, b...)
}

func (p *packer) u16(v uint16) {
	if p.err != nil {
		return
	}
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	p.bytes = append(p.bytes, b[:]...)
}

func (p *packer) u32(v uint32) {
	if p.err != nil {
		return
	}
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	p.bytes = append(p.bytes, b[:]...)
}

// unpacker reads bytes off the front of a buffer, refusing further
// reads once an error (typically a truncation) has occurred.
type unpacker struct {
	bytes []byte
	off   int
	err   error
}

func newUnpacker(b []byte) *unpacker { return &unpacker{bytes: b} }

func (u *unpacker) need(n int) bool {
	if u.err != nil {
		return false
	}
	if u.off+n > len(u.bytes) {
		u.err = ErrMalformed
		return false
	}
	return true
}

func (u *unpacker) byte() byte {
	if !u.need(1) {
		return 0
	}
	b := u.bytes[u.off]
	u.off++
	return b
}

func (u *unpacker) raw(n int) []byte {
	if !u.need(n) {
		return nil
	}
	b := u.bytes[u.off : u.off+n]
	u.off += n
	return b
}

func (u *unpacker) u16() uint16 {
	if !u.need(2) {
		return 0
	}
	v := binary.BigEndian.Uint16(u.bytes[u.off:])
	u.off += 2
	return v
}

func (u *unpacker) u32() uint32 {
	if !u.need(4) {
		return 0
	}
	v := binary.BigEndian.Uint32(u.bytes[u.off:])
	u.off += 4
	return v
}

func (u *unpacker) remaining() int { return len(u.bytes) - u.off }

// Encode serializes a message as:
//
//	msg_type(u8) reserved(u8) option_count(u16 BE, advisory)
//	msg_len(u32 BE, covers options only) options...
//
// where each option is opt_type(u16 BE) opt_len(u16 BE) data.
func Encode(m *Message) ([]byte, error) {
	opts := newPacker(64)
	opts.u16(uint16(OptSeqNum.AsMandatory()))
	opts.u16(4)
	opts.u32(m.SeqNum)
	for _, o := range m.Options {
		if len(o.Data) > 0xFFFF {
			return nil, fmt.Errorf("wire: option %d too large (%d bytes)", o.Type, len(o.Data))
		}
		opts.u16(uint16(o.Type))
		opts.u16(uint16(len(o.Data)))
		opts.raw(o.Data)
	}
	if opts.err != nil {
		return nil, opts.err
	}
	if len(opts.bytes) > MaxMessageLen {
		return nil, ErrTooLarge
	}

	frame := newPacker(8 + len(opts.bytes))
	frame.byte(byte(m.Type))
	frame.byte(0) // reserved
	count := len(m.Options)
	if count > 0xFFFF {
		count = 0xFFFF
	}
	frame.u16(uint16(count + 1)) // +1 for the leading seq-num option
	frame.u32(uint32(len(opts.bytes)))
	frame.raw(opts.bytes)
	// SeqNum travels as a mandatory leading TLV option (OptSeqNum)
	// rather than a separate fixed-header field, so it round-trips
	// through the same decode path as every other value.
	return frame.bytes, frame.err
}

// Decode parses a single frame previously produced by Encode, honoring
// the maxLen ceiling (use MaxMessageLen if the caller hasn't negotiated
// a different value). msg_len is authoritative; option_count is
// advisory and never consulted.
func Decode(b []byte, maxLen int) (*Message, int, error) {
	if maxLen <= 0 {
		maxLen = MaxMessageLen
	}
	u := newUnpacker(b)
	if len(b) < 8 {
		return nil, 0, ErrMalformed
	}
	msgType := u.byte()
	_ = u.byte() // reserved
	_ = u.u16()  // option_count, advisory only
	msgLen := u.u32()
	if u.err != nil {
		return nil, 0, u.err
	}
	if int(msgLen) > maxLen {
		return nil, 0, ErrTooLarge
	}
	if u.remaining() < int(msgLen) {
		return nil, 0, ErrMalformed
	}
	body := newUnpacker(u.raw(int(msgLen)))

	m := &Message{Type: MsgType(msgType)}
	for body.remaining() > 0 {
		if body.remaining() < 4 {
			return nil, 0, ErrMalformed
		}
		optType := body.u16()
		optLen := body.u16()
		if body.err != nil {
			return nil, 0, ErrMalformed
		}
		data := body.raw(int(optLen))
		if body.err != nil {
			return nil, 0, ErrMalformed
		}
		cp := make([]byte, len(data))
		copy(cp, data)
		opt := Option{Type: OptType(optType), Data: cp}
		if opt.Type.Tag() == OptSeqNum {
			m.SeqNum = opt.Uint32()
			continue
		}
		m.Options = append(m.Options, opt)
	}
	return m, 8 + int(msgLen), nil
}

// RejectUnknownMandatory closes the caller's decode path with
// ErrUnsupportedOption if any option carries the mandatory bit and its
// tag isn't in known. Unknown non-mandatory options are left in place
// to be ignored by callers that don't look them up.
func RejectUnknownMandatory(m *Message, known map[OptType]bool) error {
	for _, o := range m.Options {
		if o.Type.Mandatory() && !known[o.Type.Tag()] {
			return ErrUnsupportedOption
		}
	}
	return nil
}
