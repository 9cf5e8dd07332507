// SPDX-LICENSE-IDENTIFIER: GPL-2.0-Only
// (C) 2024 Author: <kisfg@hotmail.com>
package cryptoprotect

import (
	"crypto/rand"

	streamciphers "fivegate/cryptoProtect/streamCiphers"
)

/*
	Every wire cipher is keyed by a seed exchanged in the clear during the
	server-init frame. The legacy and desktop families carry a 4-byte seed,
	the later-console family a 48-byte one picked against a key palette.
	The expansions below are part of the wire contract: client and proxy
	must derive byte-identical keystreams from the same seed.
*/

const (
	LegacySeedLen = 4
	OnlineSeedLen = 48
	OnlineKeyLen  = 48
)

// repeat a 4-byte seed in little endian order until n bytes are filled.
func ExpandSeed(seed uint32, n int) []byte {
	res := make([]byte, n)
	for i := 0; i < n; i++ {
		res[i] = byte(seed >> ((i % 4) << 3))
	}
	return res
}

// fold a 48-byte blob into 16 bytes by xoring its thirds together.
func Fold48(inp []byte) [16]byte {
	var res [16]byte
	for i := 0; i < 16; i++ {
		res[i] = inp[i] ^ inp[16+i] ^ inp[32+i]
	}
	return res
}

// streaming xor cipher of the legacy, desktop and patcher families.
func NewLegacyStream(seed uint32) StreamCipher {
	s := &streamciphers.Salsa20{}
	s.SetKey(ExpandSeed(seed, 32))
	s.SetIv(ExpandSeed(seed, 8))
	return s
}

// block-based keyed mixer of the console family.
func NewBlockMixer(seed uint32) StreamCipher {
	s := &streamciphers.SM4_CTR{}
	s.SetKey(ExpandSeed(seed, 16))
	s.SetIv(ExpandSeed(^seed, 16))
	return s
}

// later-console mixer: palette key and wire seed both take part.
func NewOnlineMixer(paletteKey, seed []byte) StreamCipher {
	kf, sf := Fold48(paletteKey), Fold48(seed)
	key, iv := make([]byte, 16), make([]byte, 16)
	for i := 0; i < 16; i++ {
		key[i] = kf[i] ^ sf[i]
		iv[i] = sf[15-i]
	}
	s := &streamciphers.SM4_CTR{}
	s.SetKey(key)
	s.SetIv(iv)
	return s
}

func GenerateSeedPair() (uint32, uint32, error) {
	raw := make([]byte, 8)
	if _, err := rand.Read(raw); err != nil {
		return 0, 0, err
	}
	functor := func(b []byte) uint32 {
		return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	}
	return functor(raw[:4]), functor(raw[4:]), nil
}

func GenerateOnlineSeedPair() ([]byte, []byte, error) {
	raw := make([]byte, OnlineSeedLen*2)
	if _, err := rand.Read(raw); err != nil {
		return nil, nil, err
	}
	return raw[:OnlineSeedLen], raw[OnlineSeedLen:], nil
}
