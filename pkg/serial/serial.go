// Package serial opens the UART the MMU is wired to and drives its modem
// control lines, which double as the MMU hardware reset.
//
// Copyright (C) 2025 Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.
package serial

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// DefaultBaud is the rate the MMU firmware talks at.
const DefaultBaud = 115200

// ErrClosed is returned by operations on a closed Port.
var ErrClosed = errors.New("serial: port closed")

var speeds = map[int]uint32{
	9600:   unix.B9600,
	19200:  unix.B19200,
	38400:  unix.B38400,
	57600:  unix.B57600,
	115200: unix.B115200,
	230400: unix.B230400,
}

// Config describes the link to the MMU.
type Config struct {
	Device   string
	BaudRate int // DefaultBaud when zero
}

// Port is an open tty in raw 8N1 mode. The byte stream belongs to the
// protocol layer; the host uses the port for its modem control lines.
type Port struct {
	cfg   Config
	fd    int
	saved unix.Termios

	mu     sync.Mutex
	closed bool
}

// Open configures the device for the MMU link. The original line settings
// are restored by Close.
func Open(cfg Config) (*Port, error) {
	if cfg.Device == "" {
		return nil, errors.New("serial: no device given")
	}
	if cfg.BaudRate == 0 {
		cfg.BaudRate = DefaultBaud
	}
	speed, ok := speeds[cfg.BaudRate]
	if !ok {
		return nil, fmt.Errorf("serial: unsupported baud rate %d", cfg.BaudRate)
	}

	fd, err := unix.Open(cfg.Device, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("serial: open %s: %w", cfg.Device, err)
	}
	p := &Port{cfg: cfg, fd: fd}
	if err := p.configure(speed); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return p, nil
}

func (p *Port) configure(speed uint32) error {
	cur, err := unix.IoctlGetTermios(p.fd, ioctlGetTermios)
	if err != nil {
		return fmt.Errorf("serial: %s is not a tty: %w", p.cfg.Device, err)
	}
	p.saved = *cur

	raw := *cur
	makeRaw(&raw)
	setSpeed(&raw, speed)
	if err := unix.IoctlSetTermios(p.fd, ioctlSetTermios, &raw); err != nil {
		return fmt.Errorf("serial: configure %s: %w", p.cfg.Device, err)
	}
	// Opened non-blocking so a missing carrier cannot hang open(2).
	if err := unix.SetNonblock(p.fd, false); err != nil {
		return fmt.Errorf("serial: configure %s: %w", p.cfg.Device, err)
	}
	return flush(p.fd)
}

// makeRaw is cfmakeraw(3) plus CLOCAL so the link ignores carrier detect.
func makeRaw(t *unix.Termios) {
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON | unix.IXOFF | unix.IXANY
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB | unix.PARODD | unix.CSTOPB
	t.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL
	t.Cc[unix.VMIN] = 0
	t.Cc[unix.VTIME] = 0
}

// Device is the path the port was opened on.
func (p *Port) Device() string { return p.cfg.Device }

func (p *Port) live() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return -1, ErrClosed
	}
	return p.fd, nil
}

// Flush discards anything buffered in either direction.
func (p *Port) Flush() error {
	fd, err := p.live()
	if err != nil {
		return err
	}
	return flush(fd)
}

// Close puts the line settings back and releases the device. It is safe
// to call more than once.
func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	_ = unix.IoctlSetTermios(p.fd, ioctlSetTermios, &p.saved)
	return unix.Close(p.fd)
}

// SetDTR drives the DTR line.
func (p *Port) SetDTR(on bool) error { return p.modem(unix.TIOCM_DTR, on) }

// SetRTS drives the RTS line.
func (p *Port) SetRTS(on bool) error { return p.modem(unix.TIOCM_RTS, on) }

// modem uses TIOCMBIS/TIOCMBIC so the other control lines are untouched.
func (p *Port) modem(bit int, on bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	req := uint(unix.TIOCMBIC)
	if on {
		req = unix.TIOCMBIS
	}
	if err := unix.IoctlSetPointerInt(p.fd, req, bit); err != nil {
		return fmt.Errorf("serial: modem line 0x%x: %w", bit, err)
	}
	return nil
}
