// SPDX-LICENSE-IDENTIFIER: GPL-2.0-ONLY
// (C) 2024 Author: <kisfg@hotmail.com>
package defErr

import "errors"

/*
Error kinds shared by the framing layer and the session engine.

	ErrShortRead is a resumable condition rather than a failure: the caller
	should wait for more bytes and retry. Every other kind listed here is
	surfaced to the session owner, which decides between dropping one frame
	and tearing the whole session down.
*/
var (
	ErrShortRead           = errors.New(`short read: need more bytes`)
	ErrFraming             = errors.New(`framing: malformed header`)
	ErrCipherMismatch      = errors.New(`cipher mismatch: no candidate key locks`)
	ErrHandshakeUnexpected = errors.New(`handshake: illegal opcode for current state`)
	ErrUnimplemented       = errors.New(`unimplemented handler`)
	ErrUpstreamUnavailable = errors.New(`upstream unavailable`)
	ErrPeerAbsent          = errors.New(`peer absent`)
)
