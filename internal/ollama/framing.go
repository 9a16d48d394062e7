// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import "bytes"

// Framer reassembles newline-delimited lines from arbitrarily chunked
// reads. Chunk boundaries carry no meaning; a line is only released once
// its terminating newline has arrived.
//
// A Framer is not safe for concurrent use.
type Framer struct {
	buf []byte
}

// Write appends a chunk to the accumulation buffer.
func (f *Framer) Write(chunk []byte) {
	f.buf = append(f.buf, chunk...)
}

// Next removes and returns the oldest complete line without its newline.
// It returns false when no newline remains in the buffer.
func (f *Framer) Next() ([]byte, bool) {
	i := bytes.IndexByte(f.buf, '\n')
	if i < 0 {
		return nil, false
	}
	line := make([]byte, i)
	copy(line, f.buf[:i])
	f.buf = f.buf[i+1:]
	if len(f.buf) == 0 {
		f.buf = nil
	}
	return line, true
}

// Flush returns the unterminated remainder and empties the buffer. It is
// only meaningful once the source has ended.
func (f *Framer) Flush() []byte {
	rest := f.buf
	f.buf = nil
	return rest
}
