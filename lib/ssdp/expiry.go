// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package ssdp

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var (
	ErrNoExpiry      = errors.New("no Cache-Control max-age or Expires header")
	ErrInvalidExpiry = errors.New("unparseable or expired lifetime")
)

// MaxAge returns the max-age directive of the Cache-Control header.
func MaxAge(h http.Header) (time.Duration, error) {
	values := h.Values("Cache-Control")
	if len(values) == 0 {
		return 0, ErrNoExpiry
	}
	for _, v := range values {
		for _, directive := range strings.Split(v, ",") {
			name, arg, ok := strings.Cut(strings.TrimSpace(directive), "=")
			if !ok || !strings.EqualFold(strings.TrimSpace(name), "max-age") {
				continue
			}
			secs, err := strconv.Atoi(strings.Trim(strings.TrimSpace(arg), `"`))
			if err != nil || secs < 0 {
				return 0, ErrInvalidExpiry
			}
			return time.Duration(secs) * time.Second, nil
		}
	}
	return 0, ErrInvalidExpiry
}

// Lifetime returns how long an announced resource stays valid: the
// Cache-Control max-age if it parses, else the time left until Expires.
func Lifetime(h http.Header, now time.Time) (time.Duration, error) {
	d, maxAgeErr := MaxAge(h)
	if maxAgeErr == nil {
		return d, nil
	}

	exp := h.Get("Expires")
	if exp == "" {
		return 0, maxAgeErr
	}
	t, err := http.ParseTime(exp)
	if err != nil {
		return 0, ErrInvalidExpiry
	}
	if d := t.Sub(now); d > 0 {
		return d, nil
	}
	return 0, ErrInvalidExpiry
}
