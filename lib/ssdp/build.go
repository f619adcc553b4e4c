// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package ssdp

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// The builders below return the message up to and including the last
// header line. The sender appends its extra headers and the terminating
// blank line.

// A Resource is what an announcement or a discovery response describes.
// Locations[0] is the primary location; the rest go in the AL header.
type Resource struct {
	Target    string
	USN       string
	Locations []string
}

// Search returns an M-SEARCH request for target.
func Search(target string, mx int, userAgent string) string {
	return fmt.Sprintf("M-SEARCH * HTTP/1.1\r\n"+
		"Host: %s\r\n"+
		"Man: \"ssdp:discover\"\r\n"+
		"ST: %s\r\n"+
		"MX: %d\r\n"+
		"User-Agent: %s\r\n",
		hostValue, target, mx, userAgent)
}

// AliveNotify returns the ssdp:alive announcement of r.
func AliveNotify(r Resource, maxAge int, server string) string {
	return fmt.Sprintf("NOTIFY * HTTP/1.1\r\n"+
		"Host: %s\r\n"+
		"Cache-Control: max-age=%d\r\n"+
		"Location: %s\r\n"+
		"%s"+
		"Server: %s\r\n"+
		"NTS: %s\r\n"+
		"NT: %s\r\n"+
		"USN: %s\r\n",
		hostValue, maxAge, r.primary(), r.alLine(), server, Alive, r.Target, r.USN)
}

// ByeByeNotify returns the ssdp:byebye announcement of r.
func ByeByeNotify(r Resource) string {
	return fmt.Sprintf("NOTIFY * HTTP/1.1\r\n"+
		"Host: %s\r\n"+
		"NTS: %s\r\n"+
		"NT: %s\r\n"+
		"USN: %s\r\n",
		hostValue, ByeBye, r.Target, r.USN)
}

// Response returns the answer to a discovery request for st, dated now.
func Response(r Resource, st string, maxAge int, server string, now time.Time) string {
	return fmt.Sprintf("HTTP/1.1 200 OK\r\n"+
		"Location: %s\r\n"+
		"%s"+
		"Ext:\r\n"+
		"USN: %s\r\n"+
		"Server: %s\r\n"+
		"Cache-Control: max-age=%d\r\n"+
		"ST: %s\r\n"+
		"Date: %s\r\n"+
		"Content-Length: 0\r\n",
		r.primary(), r.alLine(), r.USN, server, maxAge, st, FormatDate(now))
}

func (r Resource) primary() string {
	if len(r.Locations) == 0 {
		return ""
	}
	return r.Locations[0]
}

func (r Resource) alLine() string {
	if len(r.Locations) < 2 {
		return ""
	}
	return "AL: " + FormatAL(r.Locations[1:]) + "\r\n"
}

// FormatAL returns the locations each wrapped in angle brackets, without
// separators.
func FormatAL(locations []string) string {
	var sb strings.Builder
	for _, loc := range locations {
		sb.WriteByte('<')
		sb.WriteString(loc)
		sb.WriteByte('>')
	}
	return sb.String()
}

// ParseAL returns the bracketed URIs in an AL header value. Text outside
// brackets and unterminated brackets are ignored.
func ParseAL(v string) []string {
	var locs []string
	for {
		start := strings.IndexByte(v, '<')
		if start < 0 {
			return locs
		}
		end := strings.IndexByte(v[start+1:], '>')
		if end < 0 {
			return locs
		}
		if loc := strings.TrimSpace(v[start+1 : start+1+end]); loc != "" {
			locs = append(locs, loc)
		}
		v = v[start+1+end+1:]
	}
}

// Locations returns the Location header followed by every AL entry.
func Locations(h http.Header) []string {
	var locs []string
	if loc := strings.TrimSpace(h.Get("Location")); loc != "" {
		locs = append(locs, loc)
	}
	for _, al := range h.Values("AL") {
		locs = append(locs, ParseAL(al)...)
	}
	return locs
}

func FormatDate(t time.Time) string {
	return t.UTC().Format(http.TimeFormat)
}
