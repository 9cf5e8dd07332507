// SPDX-LICENSE-IDENTIFIER: GPL-2.0-Only
// (C) 2024 Author: <kisfg@hotmail.com>
package protocol

import (
	"errors"

	cryptoprotect "fivegate/cryptoProtect"
	defErr "fivegate/defErr"
)

/*
Inbound half of the framing layer.

	Bytes from the transport are fed in whatever slices they arrive;
	frames come out whole. A nil cipher passes plaintext through, which
	is the state every session starts in until its handshake frame arms
	the real cipher. A detector cipher additionally withholds decryption
	until enough ciphertext arrived to try the key palette.
*/
type FrameReader struct {
	dialect Dialect
	cipher  cryptoprotect.StreamCipher
	det     *cryptoprotect.Detector
	raw     []byte // ciphertext parked while the detector is unlocked
	plain   []byte // decrypted, not yet consumed
}

func NewFrameReader(d Dialect) *FrameReader {
	return &FrameReader{dialect: d}
}

func (fr *FrameReader) Dialect() Dialect { return fr.dialect }

// ArmCipher installs the inbound cipher. Bytes already decrypted stay
// valid; only bytes fed afterwards run through the cipher.
func (fr *FrameReader) ArmCipher(c cryptoprotect.StreamCipher) {
	fr.cipher = c
	if det, ok := c.(*cryptoprotect.Detector); ok {
		fr.det = det
	} else {
		fr.det = nil
	}
}

func (fr *FrameReader) Feed(b []byte) error {
	if fr.cipher == nil {
		fr.plain = append(fr.plain, b...)
		return nil
	}
	if fr.det != nil && !fr.det.Locked() {
		fr.raw = append(fr.raw, b...)
		err := fr.det.TryLock(fr.raw)
		if errors.Is(err, defErr.ErrShortRead) {
			return nil
		}
		if err != nil {
			return err
		}
		b, fr.raw = fr.raw, nil
	}
	dec, err := fr.cipher.DecryptFlow(b)
	if err != nil {
		return err
	}
	fr.plain = append(fr.plain, dec...)
	return nil
}

/*
	Pop exactly one whole frame. ErrShortRead means feed more bytes and
	retry; ErrFraming means the stream is beyond recovery and the session
	should be torn down.
*/
func (fr *FrameReader) ReadOne() (*Frame, error) {
	hl := fr.dialect.HeaderLen()
	if uint32(len(fr.plain)) < hl {
		return nil, defErr.ErrShortRead
	}
	opcode, flag, size, err := parseHead(fr.dialect, fr.plain[:hl])
	if err != nil {
		return nil, err
	}
	padded := PaddedLen(fr.dialect, size)
	if uint32(len(fr.plain)) < padded {
		return nil, defErr.ErrShortRead
	}
	payload := make([]byte, size-hl)
	copy(payload, fr.plain[hl:size])
	fr.plain = fr.plain[padded:]
	return &Frame{Opcode: opcode, Flag: flag, Payload: payload}, nil
}

// EncodeFrame is the outbound half: assemble, pad, encrypt. A nil
// cipher yields the padded plaintext, used for pre-handshake frames.
func EncodeFrame(d Dialect, c cryptoprotect.StreamCipher, opcode uint16, flag uint32, payload []byte) ([]byte, error) {
	plain, err := BuildFrame(d, opcode, flag, payload)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return plain, nil
	}
	return c.EncryptFlow(plain)
}
