//go:build darwin

package sockpoll

// fionread is FIONREAD, _IOR('f', 127, int); x/sys/unix does not export it
// on Darwin.
const fionread = 0x4004667f
