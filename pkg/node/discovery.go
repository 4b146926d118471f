package node

import (
	"context"
	"errors"
	"math/rand/v2"
	"net"
	"sort"
	"time"

	"spacenet/pkg/datagram"
	"spacenet/pkg/log"
	"spacenet/pkg/loopback"
	"spacenet/pkg/protocol"

	"github.com/google/uuid"
)

// Server is a host found by Discover.
type Server struct {
	protocol.Announce
	// Addr is the game address: the announcing IP with the announced port.
	Addr *net.TCPAddr
}

// Discover queries every target and collects announcements until ctx is
// done. It returns the servers found, sorted by name; an expired ctx is the
// normal way to end the search and is not reported as an error. network may
// be nil.
func Discover(ctx context.Context, network *loopback.Network, targets []*net.UDPAddr) ([]Server, error) {
	if len(targets) == 0 {
		return nil, errors.New("discovery: no target address")
	}
	nonce := rand.Uint32()
	found := make(map[uuid.UUID]Server)

	mux := protocol.NewMux()
	err := mux.Handle(protocol.DiscoveryAnnounce, func(payload []byte, from *net.UDPAddr) {
		var a protocol.Announce
		if err := protocol.Decode(payload, &a); err != nil {
			log.Debug().Str("component", "discovery").Stringer("from", from).Err(err).Msg("bad announce")
			return
		}
		if a.Nonce != nonce || a.Version != protocol.Version {
			return
		}
		found[a.ServerID] = Server{Announce: a, Addr: &net.TCPAddr{IP: from.IP, Port: int(a.GamePort)}}
	})
	if err != nil {
		return nil, err
	}

	t, err := datagram.NewSender(network, mux.Handler())
	if err != nil {
		return nil, err
	}
	defer t.Close()

	query, err := protocol.Encode(protocol.DiscoveryQuery, &protocol.Query{Nonce: nonce, Version: protocol.Version})
	if err != nil {
		return nil, err
	}
	var sendErrs []error
	for _, target := range targets {
		if err := t.Send(query, target); err != nil {
			sendErrs = append(sendErrs, err)
		}
	}
	if len(sendErrs) == len(targets) {
		return nil, errors.Join(sendErrs...)
	}

	ticker := time.NewTicker(clientPollInterval)
	defer ticker.Stop()
	for {
		t.Receive()
		select {
		case <-ctx.Done():
			out := make([]Server, 0, len(found))
			for _, a := range found {
				out = append(out, a)
			}
			sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
			return out, nil
		case <-ticker.C:
		}
	}
}
