// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package rand

import (
	"testing"
	"time"
)

func TestDurationRange(t *testing.T) {
	const max = 3 * time.Second
	seen := make(map[time.Duration]struct{})
	for i := 0; i < 1000; i++ {
		d := Duration(max)
		if d < 0 || d >= max {
			t.Fatalf("duration %v outside [0, %v)", d, max)
		}
		if d%time.Millisecond != 0 {
			t.Fatalf("duration %v not whole milliseconds", d)
		}
		seen[d] = struct{}{}
	}
	if len(seen) < 100 {
		t.Errorf("only %d distinct durations in 1000 draws", len(seen))
	}
}

func TestDurationDegenerate(t *testing.T) {
	for _, max := range []time.Duration{0, -time.Second, 500 * time.Microsecond} {
		if d := Duration(max); d != 0 {
			t.Errorf("Duration(%v) = %v, expected zero", max, d)
		}
	}
}
