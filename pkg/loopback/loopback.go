// Package loopback simulates the local network inside one process: datagram
// transports bound to a port register here so that peers in the same process
// can reach them without touching a socket.
//
// A Network is an explicit, shared object. Every transport that should take
// part in in-process delivery is handed the same Network at construction.
package loopback

import (
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
)

const maxPort = 65535

var ErrPortInUse = errors.New("loopback: port already bound")

// Endpoint receives datagrams delivered in-process. DeliverLoopback must not
// retain data after returning unless it copies it; senders hand over a copy
// they no longer use, so queuing it as is is fine.
type Endpoint interface {
	DeliverLoopback(data []byte, from *net.UDPAddr)
}

// Network maps local ports to endpoints. It is safe for concurrent use.
type Network struct {
	mu        sync.RWMutex
	endpoints map[int]Endpoint
	bound     [(maxPort + 1) / 64]uint64
}

func NewNetwork() *Network {
	return &Network{endpoints: make(map[int]Endpoint)}
}

func validPort(port int) error {
	if port <= 0 || port > maxPort {
		return fmt.Errorf("loopback: invalid port %d", port)
	}
	return nil
}

// Bind registers ep on port.
func (n *Network) Bind(port int, ep Endpoint) error {
	if err := validPort(port); err != nil {
		return err
	}
	if ep == nil {
		return errors.New("loopback: nil endpoint")
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.endpoints[port]; ok {
		return fmt.Errorf("%w: %d", ErrPortInUse, port)
	}
	n.endpoints[port] = ep
	n.bound[port/64] |= 1 << (port % 64)
	return nil
}

// Unbind removes ep from port. It does nothing when another endpoint owns
// the port.
func (n *Network) Unbind(port int, ep Endpoint) {
	if validPort(port) != nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if cur, ok := n.endpoints[port]; !ok || cur != ep {
		return
	}
	delete(n.endpoints, port)
	n.bound[port/64] &^= 1 << (port % 64)
}

// Lookup returns the endpoint bound to port.
func (n *Network) Lookup(port int) (Endpoint, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	ep, ok := n.endpoints[port]
	return ep, ok
}

// IsBound reports whether a port is taken.
func (n *Network) IsBound(port int) bool {
	if validPort(port) != nil {
		return false
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.bound[port/64]&(1<<(port%64)) != 0
}

// Ports lists bound ports in ascending order.
func (n *Network) Ports() []int {
	n.mu.RLock()
	ports := make([]int, 0, len(n.endpoints))
	for p := range n.endpoints {
		ports = append(ports, p)
	}
	n.mu.RUnlock()
	sort.Ints(ports)
	return ports
}

// Route returns the endpoint a datagram for addr should be handed to, if addr
// is a loopback address with a bound port.
func (n *Network) Route(addr *net.UDPAddr) (Endpoint, bool) {
	if n == nil || !IsLoopback(addr) {
		return nil, false
	}
	return n.Lookup(addr.Port)
}

// IsLoopback reports whether addr targets this machine's loopback interface.
func IsLoopback(addr *net.UDPAddr) bool {
	return addr != nil && addr.IP.IsLoopback()
}

// Addr is the loopback address of port.
func Addr(port int) *net.UDPAddr {
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port}
}
