package datagram

import (
	"errors"
	"net"
	"os"
	"testing"
	"time"

	"spacenet/pkg/loopback"
)

type received struct {
	data string
	from *net.UDPAddr
}

type sink struct {
	got []received
}

func (s *sink) handle(data []byte, from *net.UDPAddr) {
	s.got = append(s.got, received{data: string(data), from: from})
}

func TestLoopbackDeliveryWithoutSockets(t *testing.T) {
	network := loopback.NewNetwork()
	var sa, sb sink

	a, err := Listen(Config{Address: "127.0.0.1:1000", Offline: true}, network, sa.handle)
	if err != nil {
		t.Fatalf("Listen A failed: %v", err)
	}
	defer a.Close()
	b, err := Listen(Config{Address: "127.0.0.1:1001", Offline: true}, network, sb.handle)
	if err != nil {
		t.Fatalf("Listen B failed: %v", err)
	}
	defer b.Close()

	if !network.IsBound(1000) || !network.IsBound(1001) {
		t.Fatalf("Expected both ports bound, got %v", network.Ports())
	}

	payload := []byte("hello from B")
	if err := b.Send(payload, a.LoopbackAddr()); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	payload[0] = 'X' // the sender's buffer is free once Send returns

	if n := a.Receive(); n != 1 {
		t.Fatalf("Expected 1 datagram, got %d", n)
	}
	if len(sa.got) != 1 || sa.got[0].data != "hello from B" {
		t.Fatalf("Unexpected delivery %+v", sa.got)
	}
	if sa.got[0].from.Port != 1001 || !sa.got[0].from.IP.IsLoopback() {
		t.Errorf("Expected sender 127.0.0.1:1001, got %v", sa.got[0].from)
	}
	if n := a.Receive(); n != 0 {
		t.Errorf("Expected an empty second receive, got %d", n)
	}

	// Reply to the reported sender address.
	if err := a.Send([]byte("ack"), sa.got[0].from); err != nil {
		t.Fatalf("Reply failed: %v", err)
	}
	b.Receive()
	if len(sb.got) != 1 || sb.got[0].data != "ack" {
		t.Errorf("Expected ack, got %+v", sb.got)
	}

	st := a.Stats()
	if st.LoopbackIn != 1 || st.LoopbackOut != 1 || st.Received != 0 || st.Sent != 0 {
		t.Errorf("Unexpected stats %+v", st)
	}
}

func TestOfflineUnreachable(t *testing.T) {
	network := loopback.NewNetwork()
	a, err := Listen(Config{Address: "127.0.0.1:1000", Offline: true}, network, nil)
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	defer a.Close()

	if err := a.Send([]byte("x"), loopback.Addr(1002)); !errors.Is(err, ErrOffline) {
		t.Errorf("Expected ErrOffline for an unbound port, got %v", err)
	}
	if _, err := Listen(Config{Address: "127.0.0.1:1000", Offline: true}, nil, nil); !errors.Is(err, ErrOffline) {
		t.Errorf("Expected ErrOffline without a network, got %v", err)
	}
	if _, err := Listen(Config{Address: "127.0.0.1:1000", Offline: true}, network, nil); !errors.Is(err, loopback.ErrPortInUse) {
		t.Errorf("Expected ErrPortInUse, got %v", err)
	}
}

func TestOfflineEphemeralPort(t *testing.T) {
	network := loopback.NewNetwork()
	a, err := Listen(Config{Address: "127.0.0.1:0", Offline: true}, network, nil)
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	defer a.Close()
	b, err := Listen(Config{Address: "127.0.0.1:0", Offline: true}, network, nil)
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	defer b.Close()
	if a.Port() == 0 || a.Port() == b.Port() {
		t.Errorf("Expected distinct ports, got %d and %d", a.Port(), b.Port())
	}
}

func TestCloseUnbinds(t *testing.T) {
	network := loopback.NewNetwork()
	var sa sink
	a, _ := Listen(Config{Address: "127.0.0.1:1000", Offline: true}, network, sa.handle)
	b, _ := Listen(Config{Address: "127.0.0.1:1001", Offline: true}, network, nil)
	defer b.Close()

	b.Send([]byte("pending"), a.LoopbackAddr())
	if err := a.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if network.IsBound(1000) {
		t.Errorf("Expected port 1000 released")
	}
	if n := a.Receive(); n != 0 || len(sa.got) != 0 {
		t.Errorf("Closed transport must not deliver, got %d", n)
	}
	if err := a.Send([]byte("x"), b.LoopbackAddr()); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
	if err := b.Send([]byte("x"), a.LoopbackAddr()); !errors.Is(err, ErrOffline) {
		t.Errorf("Expected ErrOffline once A is gone, got %v", err)
	}
}

func TestInboxBound(t *testing.T) {
	network := loopback.NewNetwork()
	a, _ := Listen(Config{Address: "127.0.0.1:1000", Offline: true, InboxSize: 2}, network, func([]byte, *net.UDPAddr) {})
	defer a.Close()
	b, _ := Listen(Config{Address: "127.0.0.1:1001", Offline: true}, network, nil)
	defer b.Close()

	for i := 0; i < 3; i++ {
		b.Send([]byte{byte(i)}, a.LoopbackAddr())
	}
	if n := a.Receive(); n != 2 {
		t.Errorf("Expected 2 datagrams, got %d", n)
	}
	if d := a.Stats().Dropped; d != 1 {
		t.Errorf("Expected 1 dropped, got %d", d)
	}
}

func receiveUntil(t *testing.T, tr *Transport, s *sink, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for len(s.got) < want {
		if time.Now().After(deadline) {
			t.Fatalf("Expected %d datagrams, got %d", want, len(s.got))
		}
		tr.Receive()
		time.Sleep(2 * time.Millisecond)
	}
}

func TestSocketPath(t *testing.T) {
	var sa, sb sink
	// No loopback network: everything goes through real sockets.
	a, err := Listen(Config{Address: "127.0.0.1:0"}, nil, sa.handle)
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	defer a.Close()
	b, err := NewSender(nil, sb.handle)
	if err != nil {
		t.Fatalf("NewSender failed: %v", err)
	}
	defer b.Close()

	if n := a.Receive(); n != 0 {
		t.Fatalf("Expected nothing queued, got %d", n)
	}
	if err := b.Send([]byte("over the wire"), a.LoopbackAddr()); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	receiveUntil(t, a, &sa, 1)
	if sa.got[0].data != "over the wire" {
		t.Errorf("Unexpected payload %q", sa.got[0].data)
	}
	if sa.got[0].from.Port != b.Port() {
		t.Errorf("Expected sender port %d, got %d", b.Port(), sa.got[0].from.Port)
	}
	if st := a.Stats(); st.Received != 1 || st.LoopbackIn != 0 {
		t.Errorf("Unexpected stats %+v", st)
	}
}

type readResult struct {
	data string
	err  error
}

// scriptedConn replays reads in order and then reports an expired deadline.
type scriptedConn struct {
	reads []readResult
	from  *net.UDPAddr
}

func (c *scriptedConn) ReadFromUDP(b []byte) (int, *net.UDPAddr, error) {
	if len(c.reads) == 0 {
		return 0, nil, os.ErrDeadlineExceeded
	}
	r := c.reads[0]
	c.reads = c.reads[1:]
	if r.err != nil {
		return 0, nil, r.err
	}
	return copy(b, r.data), c.from, nil
}

func (c *scriptedConn) WriteToUDP(b []byte, _ *net.UDPAddr) (int, error) { return len(b), nil }
func (c *scriptedConn) SetReadDeadline(time.Time) error                  { return nil }
func (c *scriptedConn) Close() error                                     { return nil }

func TestReceiveSkipsFailedRead(t *testing.T) {
	var sa sink
	from := &net.UDPAddr{IP: net.IPv4(192, 0, 2, 7), Port: 5000}
	conn := &scriptedConn{
		from: from,
		reads: []readResult{
			{data: "first"},
			{err: errors.New("connection refused")},
			{data: "second"},
		},
	}
	tr := &Transport{
		conn:      conn,
		handler:   sa.handle,
		local:     loopback.Addr(4000),
		port:      4000,
		maxDrain:  DefaultMaxDrain,
		inboxSize: DefaultInboxSize,
		buf:       make([]byte, 2048),
	}

	if n := tr.Receive(); n != 2 {
		t.Fatalf("Expected both datagrams delivered, got %d", n)
	}
	if len(sa.got) != 2 || sa.got[0].data != "first" || sa.got[1].data != "second" {
		t.Fatalf("Unexpected deliveries %+v", sa.got)
	}
	if sa.got[1].from != from {
		t.Errorf("Expected sender %v, got %v", from, sa.got[1].from)
	}
	if st := tr.Stats(); st.Errors != 1 || st.Received != 2 {
		t.Errorf("Expected 1 error and 2 received, got %+v", st)
	}
}

func TestMaxDrain(t *testing.T) {
	var sa sink
	a, err := Listen(Config{Address: "127.0.0.1:0", MaxDrain: 2}, nil, sa.handle)
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	defer a.Close()
	b, err := NewSender(nil, nil)
	if err != nil {
		t.Fatalf("NewSender failed: %v", err)
	}
	defer b.Close()

	for i := 0; i < 5; i++ {
		if err := b.Send([]byte{byte(i)}, a.LoopbackAddr()); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
	}
	deadline := time.Now().Add(2 * time.Second)
	for len(sa.got) < 5 {
		if time.Now().After(deadline) {
			t.Fatalf("Expected 5 datagrams, got %d", len(sa.got))
		}
		if n := a.Receive(); n > 2 {
			t.Fatalf("Receive exceeded MaxDrain: %d", n)
		}
	}
	for i, r := range sa.got {
		if r.data != string([]byte{byte(i)}) {
			t.Errorf("Datagram %d out of order: %x", i, r.data)
		}
	}
}

func TestSharedNetworkShortCircuitsSockets(t *testing.T) {
	network := loopback.NewNetwork()
	var sa sink
	a, err := Listen(Config{Address: "127.0.0.1:0"}, network, sa.handle)
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	defer a.Close()
	b, err := NewSender(network, nil)
	if err != nil {
		t.Fatalf("NewSender failed: %v", err)
	}
	defer b.Close()

	if err := b.Send([]byte("fast path"), a.LoopbackAddr()); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if n := a.Receive(); n != 1 {
		t.Fatalf("Expected immediate in-process delivery, got %d", n)
	}
	if st := b.Stats(); st.LoopbackOut != 1 || st.Sent != 0 {
		t.Errorf("Expected no socket send, got %+v", st)
	}
}
