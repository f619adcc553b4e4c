// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package rand

import (
	"bufio"
	"crypto/rand"
	"encoding/binary"
	"io"
	"sync"
)

// cryptoSource feeds math/rand from crypto/rand through a buffer. Reads
// are serialized since the buffer is shared.
type cryptoSource struct {
	mut sync.Mutex
	rd  *bufio.Reader
	buf [8]byte
}

func newSecureSource() *cryptoSource {
	return &cryptoSource{rd: bufio.NewReaderSize(rand.Reader, 256)}
}

func (*cryptoSource) Seed(int64) {
	panic("rand: crypto source cannot be seeded")
}

func (s *cryptoSource) Int63() int64 {
	return int64(s.Uint64() >> 1)
}

func (s *cryptoSource) Uint64() uint64 {
	s.mut.Lock()
	defer s.mut.Unlock()
	if _, err := io.ReadFull(s.rd, s.buf[:]); err != nil {
		panic("rand: reading crypto source: " + err.Error())
	}
	return binary.BigEndian.Uint64(s.buf[:])
}
