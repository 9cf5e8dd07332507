// SPDX-LICENSE-IDENTIFIER: GPL-2.0-Only
// (C) 2024 Author: <kisfg@hotmail.com>
package streamciphers

import "golang.org/x/crypto/salsa20/salsa"

const (
	salsa20KeyLen   = 32
	salsa20NonceLen = 8
	salsa20BlockLen = 64
)

/*
Position-tracking salsa20 keystream.

	x/crypto's salsa.XORKeyStream never writes the advanced counter back,
	so we pull the keystream one 64-byte block at a time and keep the
	partial-block remainder for the next call. That lets a caller feed the
	flow in arbitrary slices (header first, payload later) and still stay
	aligned with the peer.
*/
type salsaStream struct {
	key     *[salsa20KeyLen]byte
	nonce   [salsa20NonceLen]byte
	blkIdx  uint64
	residue []byte
}

func (ss *salsaStream) nextBlock() []byte {
	var ctr [16]byte
	copy(ctr[:8], ss.nonce[:])
	for i := 0; i < 8; i++ {
		ctr[8+i] = byte(ss.blkIdx >> (i << 3))
	}
	zero := make([]byte, salsa20BlockLen)
	oup := make([]byte, salsa20BlockLen)
	salsa.XORKeyStream(oup, zero, &ctr, ss.key)
	ss.blkIdx++
	return oup
}

func (ss *salsaStream) xor(msg []byte) []byte {
	oup := make([]byte, len(msg))
	for i := range msg {
		if len(ss.residue) == 0 {
			ss.residue = ss.nextBlock()
		}
		oup[i] = msg[i] ^ ss.residue[0]
		ss.residue = ss.residue[1:]
	}
	return oup
}

type Salsa20 struct {
	Key       [salsa20KeyLen]byte
	Iv        [salsa20NonceLen]byte
	enc, drop *salsaStream
}

func (s *Salsa20) stream(which **salsaStream) *salsaStream {
	if *which == nil {
		*which = &salsaStream{key: &s.Key, nonce: s.Iv}
	}
	return *which
}

func (s *Salsa20) EncryptFlow(msg []byte) ([]byte, error) {
	return s.stream(&s.enc).xor(msg), nil
}

func (s *Salsa20) DecryptFlow(msg []byte) ([]byte, error) {
	return s.stream(&s.drop).xor(msg), nil
}

func (s *Salsa20) SetKey(key []byte) {
	s.Key = [salsa20KeyLen]byte(key)
	s.enc, s.drop = nil, nil
}

func (s *Salsa20) SetIv(iv []byte) {
	s.Iv = [salsa20NonceLen]byte(iv)
	s.enc, s.drop = nil, nil
}

func (s *Salsa20) GetKey() []byte    { return s.Key[:] }
func (s *Salsa20) GetKeyLen() uint64 { return salsa20KeyLen }
func (s *Salsa20) GetIvLen() uint64  { return salsa20NonceLen }
