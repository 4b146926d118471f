// Package protocol multiplexes logical protocols over one datagram channel.
//
// Each protocol owns a Filter: a fixed header prepended to every outgoing
// payload and stripped from matching incoming datagrams. A Mux routes
// incoming datagrams to the handler whose filter matches.
package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"spacenet/pkg/datagram"
	"spacenet/pkg/log"
	"spacenet/pkg/packet"
)

var (
	ErrEmptyHeader     = errors.New("protocol: empty filter header")
	ErrAmbiguousFilter = errors.New("protocol: filter header overlaps a registered one")
)

// Filter tags the datagrams of one protocol.
type Filter struct {
	Name   string
	Header []byte
}

func NewFilter(name string, header []byte) Filter {
	return Filter{Name: name, Header: append([]byte(nil), header...)}
}

// Wrap returns header followed by payload in a new slice.
func (f Filter) Wrap(payload []byte) []byte {
	out := make([]byte, 0, len(f.Header)+len(payload))
	out = append(out, f.Header...)
	return append(out, payload...)
}

// WrapPacket wraps the bytes of p, refusing a packet with a write error.
func (f Filter) WrapPacket(p *packet.Packet) ([]byte, error) {
	if err := p.Err(); err != nil {
		return nil, fmt.Errorf("protocol %s: %w", f.Name, err)
	}
	return f.Wrap(p.Bytes()), nil
}

// Match strips the header from datagram. The payload aliases datagram.
func (f Filter) Match(datagram []byte) ([]byte, bool) {
	if len(f.Header) == 0 || !bytes.HasPrefix(datagram, f.Header) {
		return nil, false
	}
	return datagram[len(f.Header):], true
}

func (f Filter) String() string {
	return fmt.Sprintf("%s(%x)", f.Name, f.Header)
}

// Handler receives the payload of a matched datagram; it is only valid
// during the call.
type Handler func(payload []byte, from *net.UDPAddr)

type route struct {
	filter  Filter
	handler Handler
	hits    atomic.Uint64
}

// Mux dispatches datagrams by filter. Registration may happen concurrently
// with dispatch.
type Mux struct {
	mu        sync.RWMutex
	routes    []*route
	unmatched atomic.Uint64
}

func NewMux() *Mux {
	return &Mux{}
}

// Handle routes datagrams matching f to h. Headers must not be prefixes of
// one another, so that at most one filter matches any datagram.
func (m *Mux) Handle(f Filter, h Handler) error {
	if len(f.Header) == 0 {
		return fmt.Errorf("%w: %s", ErrEmptyHeader, f.Name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.routes {
		if bytes.HasPrefix(r.filter.Header, f.Header) || bytes.HasPrefix(f.Header, r.filter.Header) {
			return fmt.Errorf("%w: %s and %s", ErrAmbiguousFilter, f, r.filter)
		}
	}
	m.routes = append(m.routes, &route{filter: f, handler: h})
	return nil
}

// Dispatch hands data to the matching handler and reports whether one
// matched. Unmatched datagrams are counted and dropped.
func (m *Mux) Dispatch(data []byte, from *net.UDPAddr) bool {
	m.mu.RLock()
	var matched *route
	var payload []byte
	for _, r := range m.routes {
		var ok bool
		if payload, ok = r.filter.Match(data); ok {
			matched = r
			break
		}
	}
	m.mu.RUnlock()

	if matched != nil {
		matched.hits.Add(1)
		matched.handler(payload, from)
		return true
	}
	m.unmatched.Add(1)
	log.Debug().Str("component", "protocol").Stringer("from", from).Int("size", len(data)).Msg("dropping unmatched datagram")
	return false
}

// Handler adapts the mux to a datagram transport.
func (m *Mux) Handler() datagram.Handler {
	return func(data []byte, from *net.UDPAddr) { m.Dispatch(data, from) }
}

// Unmatched is the number of datagrams no filter claimed.
func (m *Mux) Unmatched() uint64 { return m.unmatched.Load() }

// Hits returns the matched datagram count per filter name.
func (m *Mux) Hits() map[string]uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]uint64, len(m.routes))
	for _, r := range m.routes {
		out[r.filter.Name] = r.hits.Load()
	}
	return out
}
