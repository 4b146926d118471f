//go:build linux

package sockpoll

import "golang.org/x/sys/unix"

// fionread is FIONREAD; x/sys/unix exposes it on Linux as SIOCINQ.
const fionread = unix.SIOCINQ
