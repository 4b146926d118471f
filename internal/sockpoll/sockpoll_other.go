//go:build !linux && !darwin

package sockpoll

import "syscall"

func Pending(c syscall.Conn) (int, error) {
	return 0, ErrUnsupported
}

func Readable(c syscall.Conn) (bool, error) {
	return false, ErrUnsupported
}
