// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package rand implements the random helpers the SSDP engine needs on top
// of a secure random number generator. Response scheduling must not be
// predictable by other hosts on the segment.
package rand

import (
	mathRand "math/rand"
	"time"
)

// defaultSecureRand is a math/rand.Rand over a concurrency safe source
// with a cryptographically sound base.
var defaultSecureRand = mathRand.New(newSecureSource())

// Duration returns a random duration in [0,max) with millisecond
// granularity. A max below one millisecond yields zero.
func Duration(max time.Duration) time.Duration {
	ms := max.Milliseconds()
	if ms <= 0 {
		return 0
	}
	return time.Duration(defaultSecureRand.Int63n(ms)) * time.Millisecond
}
