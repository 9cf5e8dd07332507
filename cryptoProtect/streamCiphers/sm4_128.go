// SPDX-LICENSE-IDENTIFIER: GPL-2.0-Only
// (C) 2024 Author: <kisfg@hotmail.com>
package streamciphers

import (
	"crypto/cipher"

	"github.com/emmansun/gmsm/sm4"
)

const (
	sm4KeySize = 16
	sm4IvSize  = sm4KeySize
)

/*
SM4 in counter mode.

	The CTR stream from crypto/cipher keeps its own position across calls,
	which is what the frame layer relies on when it decrypts a header
	before the rest of the frame has even arrived.
*/
type SM4_CTR struct {
	Key       [sm4KeySize]byte
	Iv        [sm4IvSize]byte
	encStream cipher.Stream
	decStream cipher.Stream
}

func (s *SM4_CTR) generateStream(steam *cipher.Stream) error {
	if *steam != nil {
		return nil
	}
	block, err := sm4.NewCipher(s.Key[:])
	if err != nil {
		return err
	}
	*steam = cipher.NewCTR(block, s.Iv[:])
	return nil
}

func (s *SM4_CTR) EncryptFlow(msg []byte) ([]byte, error) {
	err := s.generateStream(&s.encStream)
	if err != nil {
		return nil, err
	}
	xor_res := make([]byte, len(msg))
	s.encStream.XORKeyStream(xor_res, msg)
	return xor_res, nil
}

func (s *SM4_CTR) DecryptFlow(msg []byte) ([]byte, error) {
	err := s.generateStream(&s.decStream)
	if err != nil {
		return nil, err
	}
	xor_res := make([]byte, len(msg))
	s.decStream.XORKeyStream(xor_res, msg)
	return xor_res, nil
}

func (s *SM4_CTR) SetKey(key []byte) {
	s.Key = [sm4KeySize]byte(key)
	s.encStream, s.decStream = nil, nil
}

func (s *SM4_CTR) SetIv(iv []byte) {
	s.Iv = [sm4IvSize]byte(iv)
	s.encStream, s.decStream = nil, nil
}

func (s *SM4_CTR) GetKey() []byte    { return s.Key[:] }
func (s *SM4_CTR) GetKeyLen() uint64 { return sm4KeySize }
func (s *SM4_CTR) GetIvLen() uint64  { return sm4IvSize }
