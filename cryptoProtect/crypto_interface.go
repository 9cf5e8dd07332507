// SPDX-LICENSE-IDENTIFIER: GPL-2.0-Only
// (C) 2024 Author: <kisfg@hotmail.com>
package cryptoprotect

type StreamCipher interface {
	// SetKey from bytes
	SetKey(key []byte)

	// SetIV from bytes
	SetIv(iv []byte)

	// return the key in the representation of bytes
	GetKey() []byte

	GetKeyLen() uint64
	GetIvLen() uint64

	/*
		Encrypt message and output without IV. A cipher keeps its own
		keystream position, so the flow may arrive sliced arbitrarily;
		seek or reset is not supported. One instance serves exactly one
		direction of one session.
	*/
	EncryptFlow(msg []byte) ([]byte, error)

	// decrypt message. There is no IV in the payload.
	DecryptFlow(msg []byte) ([]byte, error)
}

type CompOption interface {
	// initiation of compresser.
	InitCompresser() error

	// initiation of decompresser.
	InitDecompresser() error

	// compress message.
	CompressMsg(msg []byte) ([]byte, error)

	// decompress message.
	DecompressMsg(msg []byte) ([]byte, error)
}
