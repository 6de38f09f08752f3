package seer_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/dantte-lp/vdabridge/internal/seer"
)

// mustEncode builds a frame or fails the test.
func mustEncode(t *testing.T, seq uint16, msgType seer.MessageType, body []byte) []byte {
	t.Helper()

	buf, err := seer.EncodeFrame(seq, msgType, body)
	if err != nil {
		t.Fatalf("EncodeFrame(%d, %v, %d bytes): %v", seq, msgType, len(body), err)
	}
	return buf
}

func TestEncodeFrameHeaderLayout(t *testing.T) {
	t.Parallel()

	body := []byte(`{"x":1}`)
	buf := mustEncode(t, 0x0102, seer.TypeMoveTaskList, body)

	if len(buf) != seer.HeaderSize+len(body) {
		t.Fatalf("frame length = %d, want %d", len(buf), seer.HeaderSize+len(body))
	}
	if buf[0] != seer.SyncByte {
		t.Errorf("sync byte = 0x%02X", buf[0])
	}
	if buf[1] != seer.ProtocolVersion {
		t.Errorf("version byte = 0x%02X", buf[1])
	}
	if got := binary.BigEndian.Uint16(buf[2:4]); got != 0x0102 {
		t.Errorf("sequence = 0x%04X", got)
	}
	if got := binary.BigEndian.Uint32(buf[4:8]); got != uint32(len(body)) {
		t.Errorf("body length = %d, want %d", got, len(body))
	}
	if got := binary.BigEndian.Uint16(buf[8:10]); got != uint16(seer.TypeMoveTaskList) {
		t.Errorf("message type = %d", got)
	}
	for i := 10; i < 16; i++ {
		if buf[i] != 0 {
			t.Errorf("reserved byte %d = 0x%02X, want 0x00", i, buf[i])
		}
	}
	if !bytes.Equal(buf[16:], body) {
		t.Errorf("body = %q, want %q", buf[16:], body)
	}
}

func TestFrameRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		seq     uint16
		msgType seer.MessageType
		body    []byte
	}{
		{"small json", 1, seer.TypePause, []byte(`{}`)},
		{"state push", 42, seer.TypeStatePush, []byte(`{"vehicle_id":"A","x":1.5}`)},
		{"min body", 65535, seer.TypeAck, []byte(`0`)},
		{"max body", 7, seer.TypeMoveTaskList, bytes.Repeat([]byte{'a'}, seer.MaxBodyLen)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			buf := mustEncode(t, tt.seq, tt.msgType, tt.body)

			f, err := seer.DecodeFrame(buf)
			if err != nil {
				t.Fatalf("DecodeFrame: %v", err)
			}
			if f.Sequence != tt.seq || f.Type != tt.msgType {
				t.Errorf("decoded (seq=%d type=%v), want (seq=%d type=%v)",
					f.Sequence, f.Type, tt.seq, tt.msgType)
			}
			if !bytes.Equal(f.Body, tt.body) {
				t.Errorf("decoded body %d bytes, want %d", len(f.Body), len(tt.body))
			}
		})
	}
}

func TestEncodeFrameBodyTooLarge(t *testing.T) {
	t.Parallel()

	_, err := seer.EncodeFrame(1, seer.TypeMoveTaskList, make([]byte, seer.MaxBodyLen+1))
	if !errors.Is(err, seer.ErrBodyTooLarge) {
		t.Errorf("EncodeFrame oversized body error = %v, want ErrBodyTooLarge", err)
	}
}

func TestDecodeFrameErrors(t *testing.T) {
	t.Parallel()

	valid := mustEncode(t, 1, seer.TypePause, []byte(`{}`))

	tests := []struct {
		name    string
		buf     []byte
		wantErr error
	}{
		{"short header", valid[:10], seer.ErrShortHeader},
		{"bad sync", append([]byte{0xFF}, valid[1:]...), seer.ErrBadSync},
		{"truncated body", valid[:seer.HeaderSize+1], seer.ErrTruncatedBody},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if _, err := seer.DecodeFrame(tt.buf); !errors.Is(err, tt.wantErr) {
				t.Errorf("DecodeFrame error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDecodeFrameEmptyBody(t *testing.T) {
	t.Parallel()

	// Zero-length bodies occur for empty-shape commands; DecodeFrame accepts
	// them, DecodeJSON refuses them.
	buf := mustEncode(t, 3, seer.TypeCancel, nil)

	f, err := seer.DecodeFrame(buf)
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if len(f.Body) != 0 {
		t.Errorf("body length = %d, want 0", len(f.Body))
	}

	var v map[string]any
	if err := f.DecodeJSON(&v); !errors.Is(err, seer.ErrEmptyBody) {
		t.Errorf("DecodeJSON on empty body = %v, want ErrEmptyBody", err)
	}
}

func TestFrameDecodeJSON(t *testing.T) {
	t.Parallel()

	f := &seer.Frame{Type: seer.TypeStatePush, Body: []byte(`{"x": 2.5}`)}

	var v map[string]any
	if err := f.DecodeJSON(&v); err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
	if v["x"] != 2.5 {
		t.Errorf("x = %v", v["x"])
	}

	bad := &seer.Frame{Type: seer.TypeStatePush, Body: []byte(`{"x":`)}
	if err := bad.DecodeJSON(&v); !errors.Is(err, seer.ErrBodyDecode) {
		t.Errorf("DecodeJSON on bad JSON = %v, want ErrBodyDecode", err)
	}
}

func TestReframerLeadingGarbage(t *testing.T) {
	t.Parallel()

	// Garbage prefix, then a valid frame of body "{}" and type 5.
	stream := []byte{
		0xFF, 0xFF,
		0x5A, 0x01, 0x00, 0x01, 0x00, 0x00, 0x00, 0x02,
		0x00, 0x05, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x7B, 0x7D,
	}

	var r seer.Reframer
	frames := r.Feed(stream)

	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if frames[0].Type != 5 {
		t.Errorf("type = %d, want 5", frames[0].Type)
	}
	if string(frames[0].Body) != "{}" {
		t.Errorf("body = %q, want {}", frames[0].Body)
	}
	if r.Discarded() != 2 {
		t.Errorf("discarded = %d, want 2", r.Discarded())
	}
}

func TestReframerByteAtATime(t *testing.T) {
	t.Parallel()

	body := []byte(`{"vehicle_id":"A"}`)
	buf := mustEncode(t, 9, seer.TypeStatePush, body)

	var r seer.Reframer
	var frames []*seer.Frame
	for _, b := range buf {
		frames = append(frames, r.Feed([]byte{b})...)
	}

	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if frames[0].Sequence != 9 || !bytes.Equal(frames[0].Body, body) {
		t.Errorf("frame = %+v", frames[0])
	}
	if r.Pending() != 0 {
		t.Errorf("pending = %d after full frame", r.Pending())
	}
}

func TestReframerInterleavedFrames(t *testing.T) {
	t.Parallel()

	f1 := mustEncode(t, 1, seer.TypeStatePush, []byte(`{"n":1}`))
	f2 := mustEncode(t, 2, seer.TypeAck, []byte(`{"n":2}`))

	stream := append([]byte{0x00, 0x13, 0x37}, f1...)
	stream = append(stream, f2...)

	// Split the stream at an awkward point inside the second header.
	cut := len(f1) + 3 + 5

	var r seer.Reframer
	frames := r.Feed(stream[:cut])
	frames = append(frames, r.Feed(stream[cut:])...)

	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	if frames[0].Sequence != 1 || frames[1].Sequence != 2 {
		t.Errorf("sequence order = %d, %d", frames[0].Sequence, frames[1].Sequence)
	}
}

func TestReframerCorruptLengthResync(t *testing.T) {
	t.Parallel()

	// A sync byte followed by an absurd length must be skipped one byte at
	// a time until the embedded real frame decodes.
	real := mustEncode(t, 5, seer.TypePause, []byte(`{}`))

	corrupt := make([]byte, seer.HeaderSize)
	corrupt[0] = seer.SyncByte
	corrupt[1] = seer.ProtocolVersion
	binary.BigEndian.PutUint32(corrupt[4:8], seer.MaxBodyLen+1)

	var r seer.Reframer
	frames := r.Feed(append(corrupt[:8], real...))

	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if frames[0].Sequence != 5 || frames[0].Type != seer.TypePause {
		t.Errorf("frame = %+v", frames[0])
	}
}

func TestReframerDoubleSyncByte(t *testing.T) {
	t.Parallel()

	// 0x5A 0x5A ... where only the second sync starts a valid frame: the
	// first candidate header announces an out-of-range body length, so the
	// reframer discards exactly one byte and re-locks on the second sync.
	real := mustEncode(t, 11, seer.TypeTurn, []byte(`{"angle":1.57,"vw":0.5}`))
	stream := append([]byte{seer.SyncByte}, real...)

	var r seer.Reframer
	frames := r.Feed(stream)

	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if frames[0].Type != seer.TypeTurn {
		t.Errorf("type = %v", frames[0].Type)
	}
}

func TestReframerGarbageOnly(t *testing.T) {
	t.Parallel()

	var r seer.Reframer
	frames := r.Feed(bytes.Repeat([]byte{0xAB}, 64))

	if frames != nil {
		t.Fatalf("got %d frames from garbage", len(frames))
	}
	if r.Pending() != 0 {
		t.Errorf("pending = %d, want 0 (garbage without sync is dropped)", r.Pending())
	}
	if r.Discarded() != 64 {
		t.Errorf("discarded = %d, want 64", r.Discarded())
	}
}

func TestReframerEmittedInvariants(t *testing.T) {
	t.Parallel()

	// Mix of garbage, corrupt headers and valid frames; every emitted frame
	// must satisfy the body length invariant.
	var stream []byte
	stream = append(stream, 0xDE, 0xAD)
	stream = append(stream, mustEncode(t, 1, seer.TypeStatePush, []byte(`{"a":1}`))...)
	corrupt := make([]byte, 12)
	corrupt[0] = seer.SyncByte
	binary.BigEndian.PutUint32(corrupt[4:8], 0)
	stream = append(stream, corrupt...)
	stream = append(stream, mustEncode(t, 2, seer.TypeAck, bytes.Repeat([]byte{'x'}, 100))...)

	var r seer.Reframer
	frames := r.Feed(stream)

	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	for i, f := range frames {
		if len(f.Body) < seer.MinBodyLen || len(f.Body) > seer.MaxBodyLen {
			t.Errorf("frame %d body length %d out of range", i, len(f.Body))
		}
	}
}

func TestReframerReset(t *testing.T) {
	t.Parallel()

	var r seer.Reframer
	r.Feed([]byte{seer.SyncByte, 0x01, 0x00})
	if r.Pending() == 0 {
		t.Fatal("expected pending bytes before reset")
	}

	r.Reset()
	if r.Pending() != 0 {
		t.Errorf("pending = %d after reset", r.Pending())
	}
}

func BenchmarkReframerFeed(b *testing.B) {
	body := bytes.Repeat([]byte{'s'}, 512)
	frame, err := seer.EncodeFrame(1, seer.TypeStatePush, body)
	if err != nil {
		b.Fatal(err)
	}

	var r seer.Reframer
	b.ResetTimer()
	for range b.N {
		if frames := r.Feed(frame); len(frames) != 1 {
			b.Fatalf("got %d frames", len(frames))
		}
	}
}

func BenchmarkEncodeFrame(b *testing.B) {
	body := bytes.Repeat([]byte{'s'}, 512)
	b.ResetTimer()
	for range b.N {
		if _, err := seer.EncodeFrame(1, seer.TypeStatePush, body); err != nil {
			b.Fatal(err)
		}
	}
}
