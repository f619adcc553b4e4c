// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

//go:build !android

package netutil

import "net"

type systemLister struct{}

func (systemLister) Interfaces() ([]net.Interface, error) {
	return net.Interfaces()
}

func (systemLister) Addrs(intf *net.Interface) ([]net.Addr, error) {
	return intf.Addrs()
}
