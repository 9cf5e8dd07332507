// SPDX-LICENSE-IDENTIFIER: GPL-2.0-Only
// (C) 2024 Author: <kisfg@hotmail.com>
package protocol

import (
	"bytes"
	"errors"
	"testing"

	defErr "fivegate/defErr"
)

var allDialects = []Dialect{DialectDC, DialectPC, DialectPatch, DialectGC, DialectBB}

func TestFrameRoundTripEveryDialect(t *testing.T) {
	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x01, 0x02, 0x03}
	for _, d := range allDialects {
		t.Run(d.String(), func(t *testing.T) {
			raw, err := BuildFrame(d, 0x19, 2, payload)
			if err != nil {
				t.Fatal(err)
			}
			if uint32(len(raw))%d.Align() != 0 {
				t.Error(`frame not padded to the dialect alignment`)
			}
			reader := NewFrameReader(d)
			if err = reader.Feed(raw); err != nil {
				t.Fatal(err)
			}
			frame, err := reader.ReadOne()
			if err != nil {
				t.Fatal(err)
			}
			if frame.Opcode != 0x19 || frame.Flag != 2 {
				t.Error(`header fields did not roundtrip`, frame.Opcode, frame.Flag)
			}
			if !bytes.Equal(frame.Payload, payload) {
				t.Error(`payload did not roundtrip`)
			}
			if _, err = reader.ReadOne(); !errors.Is(err, defErr.ErrShortRead) {
				t.Error(`padding was not consumed with the frame`)
			}
		})
	}
}

func TestShortReadThenCompletion(t *testing.T) {
	raw, _ := BuildFrame(DialectPC, 0x9D, 0, make([]byte, 36))
	reader := NewFrameReader(DialectPC)
	reader.Feed(raw[:5])
	if _, err := reader.ReadOne(); !errors.Is(err, defErr.ErrShortRead) {
		t.Fatal(`partial header must report a short read`)
	}
	reader.Feed(raw[5:11])
	if _, err := reader.ReadOne(); !errors.Is(err, defErr.ErrShortRead) {
		t.Fatal(`partial body must report a short read`)
	}
	reader.Feed(raw[11:])
	frame, err := reader.ReadOne()
	if err != nil || frame.Opcode != 0x9D {
		t.Fatal(`completed frame did not parse`, err)
	}
}

func TestFramingErrorOnImpossibleSize(t *testing.T) {
	// declared size below the header length can never be valid.
	head := []byte{0x60, 0x00, 0x00, 0x01} // big endian size = 1
	reader := NewFrameReader(DialectGC)
	reader.Feed(head)
	if _, err := reader.ReadOne(); !errors.Is(err, defErr.ErrFraming) {
		t.Error(`undersized declaration must be a framing error, got`, err)
	}
}

func TestTwoFramesInOneFeed(t *testing.T) {
	a, _ := BuildFrame(DialectBB, 0x93, 0, make([]byte, 0xB4-12))
	b, _ := BuildFrame(DialectBB, 0x19, 0, []byte{1, 2, 3, 4, 5, 6})
	reader := NewFrameReader(DialectBB)
	reader.Feed(append(append([]byte{}, a...), b...))
	first, err := reader.ReadOne()
	if err != nil || first.Opcode != 0x93 {
		t.Fatal(`first frame lost`, err)
	}
	second, err := reader.ReadOne()
	if err != nil || second.Opcode != 0x19 {
		t.Fatal(`second frame lost`, err)
	}
}

func TestPaddedLen(t *testing.T) {
	if PaddedLen(DialectBB, 0x2C) != 0x30 {
		t.Error(`later-console frames align to 8`)
	}
	if PaddedLen(DialectGC, 7) != 8 || PaddedLen(DialectGC, 8) != 8 {
		t.Error(`console frames align to 4`)
	}
}

func TestHeaderEndianness(t *testing.T) {
	raw, _ := BuildFrame(DialectGC, 0x04, 1, []byte{0xAA, 0xBB})
	// {u8 opcode, u8 flag, u16 size big endian}
	if raw[0] != 0x04 || raw[1] != 0x01 || raw[2] != 0x00 || raw[3] != 0x06 {
		t.Error(`console header layout broken:`, raw[:4])
	}
	raw, _ = BuildFrame(DialectPC, 0x9D, 0x01020304, []byte{0xAA})
	// {u16 opcode, u16 size, u32 flag little endian}
	if raw[0] != 0x9D || raw[1] != 0x00 || raw[2] != 0x09 || raw[3] != 0x00 {
		t.Error(`desktop header layout broken:`, raw[:4])
	}
	if raw[4] != 0x04 || raw[7] != 0x01 {
		t.Error(`desktop flag byte order broken:`, raw[4:8])
	}
	raw, _ = BuildFrame(DialectBB, 0x93, 0x0005, []byte{})
	// {u16 opcode, u16 flag, u32 size} + 4 byte gap
	if raw[0] != 0x93 || raw[2] != 0x05 || raw[4] != 0x0C {
		t.Error(`later-console header layout broken:`, raw[:8])
	}
	if len(raw) != 16 { // 12 rounded up to 8-alignment
		t.Error(`later-console gap or padding broken, len`, len(raw))
	}
}
