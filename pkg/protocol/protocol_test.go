package protocol

import (
	"bytes"
	"errors"
	"net"
	"testing"

	"spacenet/pkg/datagram"
	"spacenet/pkg/loopback"

	"github.com/google/uuid"
)

func TestFilterWrapMatch(t *testing.T) {
	f := NewFilter("game", []byte{0xCA, 0xFE})
	wire := f.Wrap([]byte("payload"))
	if !bytes.Equal(wire, []byte("\xCA\xFEpayload")) {
		t.Fatalf("Unexpected wire %x", wire)
	}
	got, ok := f.Match(wire)
	if !ok || string(got) != "payload" {
		t.Errorf("Expected payload, got %q %v", got, ok)
	}
	if _, ok := f.Match([]byte{0xCA}); ok {
		t.Errorf("Short datagram must not match")
	}
	if _, ok := f.Match([]byte("\xCA\xFD.")); ok {
		t.Errorf("Wrong header must not match")
	}
	if got, ok := f.Match([]byte{0xCA, 0xFE}); !ok || len(got) != 0 {
		t.Errorf("Header-only datagram must match with an empty payload")
	}
}

func TestMuxDispatch(t *testing.T) {
	m := NewMux()
	game := NewFilter("game", []byte("G1"))
	chat := NewFilter("chat", []byte("C1"))

	var gotGame, gotChat []string
	if err := m.Handle(game, func(p []byte, _ *net.UDPAddr) { gotGame = append(gotGame, string(p)) }); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if err := m.Handle(chat, func(p []byte, _ *net.UDPAddr) { gotChat = append(gotChat, string(p)) }); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	from := loopback.Addr(1000)
	m.Dispatch(game.Wrap([]byte("move")), from)
	m.Dispatch(chat.Wrap([]byte("hi")), from)
	if m.Dispatch([]byte("XXjunk"), from) {
		t.Errorf("Junk must not match")
	}

	if len(gotGame) != 1 || gotGame[0] != "move" || len(gotChat) != 1 || gotChat[0] != "hi" {
		t.Errorf("Unexpected routing game=%v chat=%v", gotGame, gotChat)
	}
	if m.Unmatched() != 1 {
		t.Errorf("Expected 1 unmatched, got %d", m.Unmatched())
	}
	if h := m.Hits(); h["game"] != 1 || h["chat"] != 1 {
		t.Errorf("Unexpected hits %v", h)
	}
}

func TestMuxRejectsAmbiguousFilters(t *testing.T) {
	m := NewMux()
	noop := func([]byte, *net.UDPAddr) {}
	if err := m.Handle(NewFilter("a", []byte("AB")), noop); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if err := m.Handle(NewFilter("b", []byte("ABC")), noop); !errors.Is(err, ErrAmbiguousFilter) {
		t.Errorf("Expected ErrAmbiguousFilter, got %v", err)
	}
	if err := m.Handle(NewFilter("c", []byte("A")), noop); !errors.Is(err, ErrAmbiguousFilter) {
		t.Errorf("Expected ErrAmbiguousFilter, got %v", err)
	}
	if err := m.Handle(NewFilter("d", nil), noop); !errors.Is(err, ErrEmptyHeader) {
		t.Errorf("Expected ErrEmptyHeader, got %v", err)
	}
}

func TestDiscoveryOverLoopback(t *testing.T) {
	network := loopback.NewNetwork()
	serverID := uuid.New()

	serverMux := NewMux()
	server, err := datagram.Listen(datagram.Config{Address: "127.0.0.1:1000", Offline: true}, network, serverMux.Handler())
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	defer server.Close()

	serverMux.Handle(DiscoveryQuery, func(payload []byte, from *net.UDPAddr) {
		var q Query
		if err := Decode(payload, &q); err != nil {
			t.Errorf("Decode query failed: %v", err)
			return
		}
		wire, err := Encode(DiscoveryAnnounce, &Announce{
			Nonce: q.Nonce, ServerID: serverID, Name: "Alpha Centauri",
			GamePort: 7777, Players: 3, MaxPlayers: 8, Version: Version,
		})
		if err != nil {
			t.Errorf("Encode announce failed: %v", err)
			return
		}
		server.Send(wire, from)
	})

	var found []Announce
	clientMux := NewMux()
	clientMux.Handle(DiscoveryAnnounce, func(payload []byte, _ *net.UDPAddr) {
		var a Announce
		if err := Decode(payload, &a); err != nil {
			t.Errorf("Decode announce failed: %v", err)
			return
		}
		found = append(found, a)
	})
	client, err := datagram.Listen(datagram.Config{Address: "127.0.0.1:1001", Offline: true}, network, clientMux.Handler())
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	defer client.Close()

	query, err := Encode(DiscoveryQuery, &Query{Nonce: 77, Version: Version})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if err := client.Send(query, server.LoopbackAddr()); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	server.Receive()
	client.Receive()

	if len(found) != 1 {
		t.Fatalf("Expected one announcement, got %d", len(found))
	}
	a := found[0]
	if a.Nonce != 77 || a.ServerID != serverID || a.Name != "Alpha Centauri" || a.GamePort != 7777 || a.MaxPlayers != 8 {
		t.Errorf("Unexpected announcement %+v", a)
	}
}

func TestDecodeRejectsTrailingBytes(t *testing.T) {
	wire, _ := Encode(DiscoveryQuery, &Query{Nonce: 1, Version: Version})
	payload, _ := DiscoveryQuery.Match(append(wire, 0))
	var q Query
	if err := Decode(payload, &q); err == nil {
		t.Errorf("Expected trailing bytes error")
	}
}
