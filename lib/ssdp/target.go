// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package ssdp

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

var ErrInvalidTarget = errors.New("invalid search target")

// A Target is a parsed ST/NT value. Targets of the form urn:...:N carry a
// version; a resource at version M satisfies a search for version N when
// M >= N. All other targets match by exact string comparison, except
// ssdp:all which matches everything.
type Target struct {
	raw       string
	base      string
	version   int
	versioned bool
}

func ParseTarget(s string) (Target, error) {
	if s == "" {
		return Target{}, fmt.Errorf("%w: empty", ErrInvalidTarget)
	}
	if i := strings.IndexFunc(s, func(r rune) bool { return unicode.IsSpace(r) || unicode.IsControl(r) }); i >= 0 {
		return Target{}, fmt.Errorf("%w: %q contains whitespace or control characters", ErrInvalidTarget, s)
	}

	t := Target{raw: s}
	if !strings.HasPrefix(s, "urn:") {
		return t, nil
	}
	i := strings.LastIndexByte(s, ':')
	suffix := s[i+1:]
	if suffix == "" || strings.IndexFunc(suffix, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
		return t, nil
	}
	v, err := strconv.Atoi(suffix)
	if err != nil {
		return Target{}, fmt.Errorf("%w: version of %q: %w", ErrInvalidTarget, s, err)
	}
	t.base = s[:i+1]
	t.version = v
	t.versioned = true
	return t, nil
}

func (t Target) String() string {
	return t.raw
}

func (t Target) IsAll() bool {
	return t.raw == AllTarget
}

// Version returns the trailing version number of a urn: target.
func (t Target) Version() (int, bool) {
	return t.version, t.versioned
}

// Covers returns whether a resource advertised as adv satisfies a search for
// t.
func (t Target) Covers(adv string) bool {
	if t.IsAll() {
		return true
	}
	a, err := ParseTarget(adv)
	if err != nil {
		return false
	}
	if t.versioned {
		return a.versioned && a.base == t.base && a.version >= t.version
	}
	return a.raw == t.raw
}

// Answers returns whether a resource of type t satisfies a search for
// requested.
func (t Target) Answers(requested string) bool {
	r, err := ParseTarget(requested)
	if err != nil {
		return false
	}
	return r.Covers(t.raw)
}
