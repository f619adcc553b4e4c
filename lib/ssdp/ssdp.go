// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package ssdp contains the SSDP wire format: message classification,
// header parsing and the message templates used for searching, responding
// and announcing.
package ssdp

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
)

const (
	MulticastGroup = "239.255.255.250"
	Port           = 1900
	DefaultTTL     = 4
	DefaultMaxAge  = 1800
	DefaultMX      = 3
	// MaxDatagram is the largest datagram accepted; anything longer is
	// dropped.
	MaxDatagram = 8192

	AllTarget = "ssdp:all"
	Alive     = "ssdp:alive"
	ByeBye    = "ssdp:byebye"

	Version = "1.6"
)

var (
	MulticastAddr = &net.UDPAddr{IP: net.IPv4(239, 255, 255, 250), Port: Port}
	hostValue     = fmt.Sprintf("%s:%d", MulticastGroup, Port)
)

var (
	ErrTruncated     = errors.New("datagram has no header terminator")
	ErrUnknownMethod = errors.New("not an SSDP message")
	ErrBadStatus     = errors.New("unexpected response status")
)

type Kind int

const (
	DiscoveryRequest Kind = iota
	DiscoveryResponse
	Announcement
)

func (k Kind) String() string {
	switch k {
	case DiscoveryRequest:
		return "discovery-request"
	case DiscoveryResponse:
		return "discovery-response"
	case Announcement:
		return "announcement"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// A Message is one classified datagram. Header keys are case insensitive;
// use Header.Get and Header.Values.
type Message struct {
	Kind   Kind
	Header http.Header
	From   *net.UDPAddr
}

// A Handler receives dispatched messages. The message is only valid for the
// duration of the call.
type Handler func(msg *Message)

// Parse classifies a datagram. Everything after the first blank line is
// ignored.
func Parse(data []byte, from *net.UDPAddr) (*Message, error) {
	end := bytes.Index(data, []byte("\r\n\r\n"))
	if end < 0 {
		return nil, ErrTruncated
	}
	data = data[:end+4]
	br := bufio.NewReader(bytes.NewReader(data))

	if bytes.HasPrefix(data, []byte("HTTP/")) {
		resp, err := http.ReadResponse(br, nil)
		if err != nil {
			return nil, fmt.Errorf("parsing response: %w", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("%w: %s", ErrBadStatus, resp.Status)
		}
		return &Message{Kind: DiscoveryResponse, Header: resp.Header, From: from}, nil
	}

	req, err := http.ReadRequest(br)
	if err != nil {
		return nil, fmt.Errorf("parsing request: %w", err)
	}
	req.Body.Close()

	switch req.Method {
	case "M-SEARCH":
		if req.RequestURI != "*" || req.Proto != "HTTP/1.1" {
			return nil, fmt.Errorf("%w: M-SEARCH %s %s", ErrUnknownMethod, req.RequestURI, req.Proto)
		}
		return &Message{Kind: DiscoveryRequest, Header: req.Header, From: from}, nil
	case "NOTIFY":
		return &Message{Kind: Announcement, Header: req.Header, From: from}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, req.Method)
	}
}

// DefaultUserAgent returns the User-Agent value used when none is
// configured.
func DefaultUserAgent() string {
	return fmt.Sprintf("%s GSSDP/%s", filepath.Base(os.Args[0]), Version)
}

// DefaultServerID returns the Server value used when none is configured.
func DefaultServerID() string {
	return fmt.Sprintf("%s/%s UPnP/1.0 GSSDP/%s", runtime.GOOS, runtime.GOARCH, Version)
}
