//go:build darwin

// Termios ioctls for macOS
//
// Copyright (C) 2025 Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package serial

import "golang.org/x/sys/unix"

const (
	ioctlGetTermios = unix.TIOCGETA
	ioctlSetTermios = unix.TIOCSETA
)

// Darwin termios speeds are 64-bit.
func setSpeed(t *unix.Termios, speed uint32) {
	t.Ispeed = uint64(speed)
	t.Ospeed = uint64(speed)
}

// TIOCFLUSH takes a pointer to FREAD|FWRITE.
func flush(fd int) error {
	return unix.IoctlSetPointerInt(fd, unix.TIOCFLUSH, 3)
}
