//go:build linux || darwin

package sockpoll

import (
	"errors"
	"syscall"

	"golang.org/x/sys/unix"
)

func pollIn(fd uintptr) (bool, error) {
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	ready, err := unix.Poll(fds, 0)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return false, nil
		}
		return false, err
	}
	return ready > 0 && fds[0].Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0, nil
}

// Pending reports how many bytes can be read from c without blocking. A
// socket that polls readable with nothing queued (end of stream, or a pending
// socket error) reports 1 so that the following read surfaces the condition.
func Pending(c syscall.Conn) (int, error) {
	raw, err := c.SyscallConn()
	if err != nil {
		return 0, err
	}
	var n int
	var opErr error
	err = raw.Control(func(fd uintptr) {
		var ok bool
		if ok, opErr = pollIn(fd); !ok || opErr != nil {
			return
		}
		n, opErr = unix.IoctlGetInt(int(fd), fionread)
		if opErr == nil && n == 0 {
			n = 1
		}
	})
	if err != nil {
		return 0, err
	}
	return n, opErr
}

// Readable reports whether a read or accept on c would not block. Unlike
// Pending it works on listening sockets.
func Readable(c syscall.Conn) (bool, error) {
	raw, err := c.SyscallConn()
	if err != nil {
		return false, err
	}
	var ok bool
	var opErr error
	if err = raw.Control(func(fd uintptr) { ok, opErr = pollIn(fd) }); err != nil {
		return false, err
	}
	return ok, opErr
}
