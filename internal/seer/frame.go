// Package seer implements the vendor binary TCP protocol spoken by the AGVs:
// the length-prefixed frame codec, the per-port session state machine, the
// action registry, and the translators between VDA 5050 payloads and vendor
// command/state messages.
package seer

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
)

// -------------------------------------------------------------------------
// Wire Constants
// -------------------------------------------------------------------------

// SyncByte is the first byte of every frame header.
const SyncByte byte = 0x5A

// ProtocolVersion is the frame header version byte.
const ProtocolVersion byte = 0x01

// HeaderSize is the fixed frame header size in bytes:
// sync (1) + version (1) + sequence (2) + body length (4) + message type (2)
// + reserved (6). All multi-byte fields are big-endian.
const HeaderSize = 16

// MinBodyLen and MaxBodyLen bound the body length field of a framed message.
// A header announcing a length outside this range is treated as garbage and
// resynchronized over.
const (
	MinBodyLen = 1
	MaxBodyLen = 100_000
)

// -------------------------------------------------------------------------
// Message Types
// -------------------------------------------------------------------------

// MessageType is the 16-bit frame type code. Command codes live in
// 2000-6999; 9300 is the periodic state push; 9xxx others are auxiliary
// uplink types.
type MessageType uint16

const (
	// TypeReloc starts a relocation (manual or auto).
	TypeReloc MessageType = 2002

	// TypeCancelReloc aborts a running relocation.
	TypeCancelReloc MessageType = 2004

	// TypePause suspends order execution.
	TypePause MessageType = 3001

	// TypeResume continues a suspended order.
	TypeResume MessageType = 3002

	// TypeCancel aborts the current order.
	TypeCancel MessageType = 3003

	// TypeTranslate commands a straight-line open-loop move.
	TypeTranslate MessageType = 3055

	// TypeTurn commands an in-place rotation.
	TypeTurn MessageType = 3056

	// TypeRotateLoad commands a load (jack) rotation.
	TypeRotateLoad MessageType = 3057

	// TypeMoveTaskList submits an ordered move-task list.
	TypeMoveTaskList MessageType = 3066

	// TypeGrabAuthority claims exclusive control of the AGV.
	TypeGrabAuthority MessageType = 4005

	// TypeReleaseAuthority releases exclusive control.
	TypeReleaseAuthority MessageType = 4006

	// TypeClearErrors acknowledges error codes on the AGV.
	TypeClearErrors MessageType = 4009

	// TypeSoftEMC raises or clears the software emergency stop.
	TypeSoftEMC MessageType = 6004

	// TypeRobotIdent is the identification blob some AGVs push on connect.
	TypeRobotIdent MessageType = 9001

	// TypeAck is the generic command acknowledgement pushed on command ports.
	TypeAck MessageType = 9200

	// TypeStatePush is the periodic state report pushed on the state port.
	TypeStatePush MessageType = 9300
)

// messageTypeNames maps known type codes to human-readable names.
var messageTypeNames = map[MessageType]string{
	TypeReloc:            "Reloc",
	TypeCancelReloc:      "CancelReloc",
	TypePause:            "Pause",
	TypeResume:           "Resume",
	TypeCancel:           "Cancel",
	TypeTranslate:        "Translate",
	TypeTurn:             "Turn",
	TypeRotateLoad:       "RotateLoad",
	TypeMoveTaskList:     "MoveTaskList",
	TypeGrabAuthority:    "GrabAuthority",
	TypeReleaseAuthority: "ReleaseAuthority",
	TypeClearErrors:      "ClearErrors",
	TypeSoftEMC:          "SoftEMC",
	TypeRobotIdent:       "RobotIdent",
	TypeAck:              "Ack",
	TypeStatePush:        "StatePush",
}

// String returns the human-readable name of the message type.
func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", uint16(t))
}

// -------------------------------------------------------------------------
// Codec Errors
// -------------------------------------------------------------------------

// Sentinel errors for frame encoding and decoding.
var (
	// ErrShortHeader indicates the buffer holds fewer than HeaderSize bytes.
	ErrShortHeader = errors.New("buffer shorter than frame header")

	// ErrBadSync indicates the buffer does not start with SyncByte.
	ErrBadSync = errors.New("frame does not start with sync byte")

	// ErrBodyLength indicates the announced body length exceeds MaxBodyLen.
	ErrBodyLength = errors.New("frame body length out of range")

	// ErrTruncatedBody indicates the buffer ends before the announced body.
	ErrTruncatedBody = errors.New("frame body truncated")

	// ErrBodyDecode indicates the frame body is not valid JSON.
	ErrBodyDecode = errors.New("frame body is not valid JSON")

	// ErrEmptyBody indicates a zero-length body on a message that carries one.
	ErrEmptyBody = errors.New("frame body is empty")

	// ErrBodyTooLarge indicates an encode request whose body exceeds MaxBodyLen.
	ErrBodyTooLarge = errors.New("frame body exceeds maximum length")
)

// -------------------------------------------------------------------------
// Frame
// -------------------------------------------------------------------------

// Frame is a single decoded message: the sequence number and type from the
// header plus the raw body bytes. Body is always an owned copy; it stays
// valid after the reframer buffer advances.
type Frame struct {
	// Sequence is the sender-assigned 16-bit counter value.
	Sequence uint16

	// Type is the message type code.
	Type MessageType

	// Body holds the UTF-8 JSON body. Empty only for empty-shape messages.
	Body []byte
}

// DecodeJSON unmarshals the frame body into v. A zero-length body and
// malformed JSON both return an error wrapping the respective sentinel.
func (f *Frame) DecodeJSON(v any) error {
	if len(f.Body) == 0 {
		return fmt.Errorf("decode %s body: %w", f.Type, ErrEmptyBody)
	}
	if err := json.Unmarshal(f.Body, v); err != nil {
		return fmt.Errorf("decode %s body: %w: %w", f.Type, ErrBodyDecode, err)
	}
	return nil
}

// EncodeFrame assembles the wire bytes for one frame: the 16-byte header
// followed by body. The sequence number is supplied by the caller (sessions
// own their counters). An empty body is legal on the wire; callers sending
// empty-shape commands put "{}" in body instead.
func EncodeFrame(seq uint16, msgType MessageType, body []byte) ([]byte, error) {
	if len(body) > MaxBodyLen {
		return nil, fmt.Errorf("encode %s frame (%d bytes): %w", msgType, len(body), ErrBodyTooLarge)
	}

	buf := make([]byte, HeaderSize+len(body))
	buf[0] = SyncByte
	buf[1] = ProtocolVersion
	binary.BigEndian.PutUint16(buf[2:4], seq)
	binary.BigEndian.PutUint32(buf[4:8], uint32(len(body)))
	binary.BigEndian.PutUint16(buf[8:10], uint16(msgType))
	// buf[10:16] reserved, zero-filled by make.
	copy(buf[HeaderSize:], body)

	return buf, nil
}

// DecodeFrame parses exactly one frame from the start of buf. Unlike the
// reframer it accepts a zero-length body, so command frames sent without a
// body still decode on the receiving side. Trailing bytes after the frame
// are ignored.
func DecodeFrame(buf []byte) (*Frame, error) {
	if len(buf) < HeaderSize {
		return nil, fmt.Errorf("decode frame (%d bytes): %w", len(buf), ErrShortHeader)
	}
	if buf[0] != SyncByte {
		return nil, fmt.Errorf("decode frame (first byte 0x%02X): %w", buf[0], ErrBadSync)
	}

	bodyLen := binary.BigEndian.Uint32(buf[4:8])
	if bodyLen > MaxBodyLen {
		return nil, fmt.Errorf("decode frame (body length %d): %w", bodyLen, ErrBodyLength)
	}
	if uint32(len(buf)-HeaderSize) < bodyLen {
		return nil, fmt.Errorf(
			"decode frame (%d of %d body bytes): %w",
			len(buf)-HeaderSize, bodyLen, ErrTruncatedBody,
		)
	}

	body := make([]byte, bodyLen)
	copy(body, buf[HeaderSize:HeaderSize+int(bodyLen)])

	return &Frame{
		Sequence: binary.BigEndian.Uint16(buf[2:4]),
		Type:     MessageType(binary.BigEndian.Uint16(buf[8:10])),
		Body:     body,
	}, nil
}

// -------------------------------------------------------------------------
// Reframer — streaming frame extraction
// -------------------------------------------------------------------------

// Reframer turns an arbitrary byte stream into a sequence of frames. It
// buffers partial reads, skips leading garbage by scanning for the sync
// byte, and resynchronizes over corrupt headers by discarding one byte at
// a time.
//
// Every frame a Reframer emits satisfies: sync byte present, body length in
// [MinBodyLen, MaxBodyLen], len(Body) == announced length.
//
// A Reframer is owned by a single receive loop and is not safe for
// concurrent use.
type Reframer struct {
	buf []byte

	// discarded counts garbage bytes skipped during resynchronization.
	discarded uint64
}

// Feed appends chunk to the internal buffer and returns all complete frames
// that can be extracted. A nil return means more bytes are needed.
func (r *Reframer) Feed(chunk []byte) []*Frame {
	r.buf = append(r.buf, chunk...)

	var frames []*Frame
	off := 0

	for len(r.buf)-off >= HeaderSize {
		// Align to the next sync byte, dropping anything before it.
		if r.buf[off] != SyncByte {
			idx := bytes.IndexByte(r.buf[off:], SyncByte)
			if idx < 0 {
				r.discarded += uint64(len(r.buf) - off)
				off = len(r.buf)
				break
			}
			r.discarded += uint64(idx)
			off += idx
			continue
		}

		bodyLen := binary.BigEndian.Uint32(r.buf[off+4 : off+8])
		if bodyLen < MinBodyLen || bodyLen > MaxBodyLen {
			// Corrupt header: the sync byte was a body byte of some other
			// stream position. Skip it and rescan.
			r.discarded++
			off++
			continue
		}

		total := HeaderSize + int(bodyLen)
		if len(r.buf)-off < total {
			break
		}

		body := make([]byte, bodyLen)
		copy(body, r.buf[off+HeaderSize:off+total])

		frames = append(frames, &Frame{
			Sequence: binary.BigEndian.Uint16(r.buf[off+2 : off+4]),
			Type:     MessageType(binary.BigEndian.Uint16(r.buf[off+8 : off+10])),
			Body:     body,
		})
		off += total
	}

	// Compact: keep only the unconsumed tail.
	r.buf = append(r.buf[:0], r.buf[off:]...)

	return frames
}

// Pending returns the number of buffered bytes awaiting more input.
func (r *Reframer) Pending() int {
	return len(r.buf)
}

// Discarded returns the total garbage bytes skipped since creation.
func (r *Reframer) Discarded() uint64 {
	return r.discarded
}

// Reset drops all buffered bytes. Called when a session reconnects so stale
// partial frames from the previous socket cannot bleed into the new stream.
func (r *Reframer) Reset() {
	r.buf = r.buf[:0]
}
