// Copyright (C) 2019 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

//go:build unix && !solaris

package socket

import (
	"golang.org/x/sys/unix"
)

const bindMulticastToInterface = false

func setSockopts(fd uintptr, broadcast bool) error {
	if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return err
	}
	err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
	switch {
	case err == unix.ENOPROTOOPT || err == unix.EINVAL:
		l.Debugln("SO_REUSEPORT not supported")
	case err != nil:
		return err
	}
	if broadcast {
		return unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
	}
	return nil
}
