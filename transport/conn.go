//go:build unix

// Package transport adapts a socket to the non-blocking Transport the
// authenticator drives, and provides a small readiness loop for tools that
// have no event loop of their own.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Conn is a net.Conn read and written with raw non-blocking syscalls.
// Go sockets are already in non-blocking mode; Conn never parks on the
// runtime poller, so a call that cannot progress returns (0, nil).
type Conn struct {
	conn          net.Conn
	raw           syscall.RawConn
	writeInterest bool
}

// New wraps a connection backed by a file descriptor
func New(conn net.Conn) (*Conn, error) {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return nil, fmt.Errorf("connection %T does not expose a file descriptor", conn)
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return nil, fmt.Errorf("failed to access raw connection: %w", err)
	}
	return &Conn{conn: conn, raw: raw}, nil
}

// Read reads what is available without waiting
func (c *Conn) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	var n int
	var opErr error
	err := c.raw.Read(func(fd uintptr) bool {
		n, opErr = unix.Read(int(fd), p)
		return true
	})
	if err != nil {
		return 0, err
	}
	if opErr != nil {
		if wouldBlock(opErr) {
			return 0, nil
		}
		return 0, opErr
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// Write writes what the socket buffer accepts without waiting
func (c *Conn) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	var n int
	var opErr error
	err := c.raw.Write(func(fd uintptr) bool {
		n, opErr = unix.Write(int(fd), p)
		return true
	})
	if err != nil {
		return 0, err
	}
	if opErr != nil {
		if wouldBlock(opErr) {
			return 0, nil
		}
		return 0, opErr
	}
	if n < 0 {
		n = 0
	}
	return n, nil
}

func wouldBlock(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EINTR)
}

// AddWriteInterest makes Poll wake on writability
func (c *Conn) AddWriteInterest() {
	c.writeInterest = true
}

// RemoveWriteInterest makes Poll wake on readability only
func (c *Conn) RemoveWriteInterest() {
	c.writeInterest = false
}

// WriteInterest reports whether writability is being watched
func (c *Conn) WriteInterest() bool {
	return c.writeInterest
}

// Poll waits up to timeout for the socket to become readable or, while
// write interest is set, writable. Hang-ups and socket errors count as
// readable so the next Read surfaces them.
func (c *Conn) Poll(timeout time.Duration) (readable, writable bool, err error) {
	events := int16(unix.POLLIN)
	if c.writeInterest {
		events |= unix.POLLOUT
	}

	var revents int16
	var opErr error
	err = c.raw.Control(func(fd uintptr) {
		fds := []unix.PollFd{{Fd: int32(fd), Events: events}}
		_, opErr = unix.Poll(fds, int(timeout/time.Millisecond))
		revents = fds[0].Revents
	})
	if err != nil {
		return false, false, err
	}
	if opErr != nil {
		if errors.Is(opErr, unix.EINTR) {
			return false, false, nil
		}
		return false, false, fmt.Errorf("poll failed: %w", opErr)
	}

	readable = revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0
	writable = revents&unix.POLLOUT != 0
	return readable, writable, nil
}

// RemoteAddr returns the peer address
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Close closes the underlying connection
func (c *Conn) Close() error {
	return c.conn.Close()
}

// Session is the part of an authenticator the loop drives
type Session interface {
	Authenticate() error
	Complete() bool
}

// Run invokes the session once per readiness event until it completes,
// fails, or ctx ends. interval bounds each wait so cancellation is noticed.
func Run(ctx context.Context, session Session, conn *Conn, interval time.Duration) error {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}

	for {
		if err := session.Authenticate(); err != nil {
			return err
		}
		if session.Complete() {
			return nil
		}

		if err := ctx.Err(); err != nil {
			return err
		}
		wait := interval
		if deadline, ok := ctx.Deadline(); ok {
			if remaining := time.Until(deadline); remaining < wait {
				wait = remaining
			}
		}
		if wait <= 0 {
			return context.DeadlineExceeded
		}
		if _, _, err := conn.Poll(wait); err != nil {
			return err
		}
	}
}
