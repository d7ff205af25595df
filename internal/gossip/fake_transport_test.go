package gossip

import (
	"fmt"
	"net"
	"sync"
	"time"
)

// fakeTransport is an in-memory Transport double: Send appends to an
// outbox instead of touching a socket, and Recv blocks on a channel with
// the same recvTimeout behavior a real UDP connection has. It lets
// handler-level tests exercise dispatch without binding real ports.
type fakeTransport struct {
	mu        sync.Mutex
	outbox    []sentDatagram
	inbox     chan datagram
	localAddr *net.UDPAddr
	closed    bool
	network   *fakeNetwork // non-nil also routes each recorded Send to a peer's inbox
}

type sentDatagram struct {
	to   *net.UDPAddr
	data string
}

type datagram struct {
	data []byte
	from *net.UDPAddr
}

func newFakeTransport(port int) *fakeTransport {
	return &fakeTransport{
		inbox:     make(chan datagram, 64),
		localAddr: &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: port},
	}
}

func (f *fakeTransport) Send(addr *net.UDPAddr, data []byte) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return fmt.Errorf("fake transport closed")
	}
	f.outbox = append(f.outbox, sentDatagram{to: addr, data: string(data)})
	network := f.network
	f.mu.Unlock()

	if network != nil {
		network.route(f, addr, data)
	}
	return nil
}

func (f *fakeTransport) Recv() ([]byte, *net.UDPAddr, error) {
	select {
	case d, ok := <-f.inbox:
		if !ok {
			return nil, nil, fmt.Errorf("fake transport closed")
		}
		return d.data, d.from, nil
	case <-time.After(recvTimeout):
		return nil, nil, fakeTimeout{}
	}
}

func (f *fakeTransport) LocalAddr() *net.UDPAddr { return f.localAddr }

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.inbox)
	}
	return nil
}

func (f *fakeTransport) deliver(data []byte, from *net.UDPAddr) {
	f.inbox <- datagram{data: data, from: from}
}

func (f *fakeTransport) sent() []sentDatagram {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentDatagram, len(f.outbox))
	copy(out, f.outbox)
	return out
}

// fakeNetwork wires several fakeTransports together by address so Send on
// one delivers into another's inbox, letting tests exercise multi-node
// scenarios without real sockets.
type fakeNetwork struct {
	mu    sync.Mutex
	peers map[string]*fakeTransport
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{peers: make(map[string]*fakeTransport)}
}

func (fn *fakeNetwork) join(t *fakeTransport) {
	fn.mu.Lock()
	defer fn.mu.Unlock()
	t.network = fn
	fn.peers[t.localAddr.String()] = t
}

func (fn *fakeNetwork) route(from *fakeTransport, to *net.UDPAddr, data []byte) {
	fn.mu.Lock()
	dst, ok := fn.peers[to.String()]
	fn.mu.Unlock()
	if !ok {
		return // no such peer: datagram silently lost, as with real UDP
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	dst.deliver(cp, from.localAddr)
}

type fakeTimeout struct{}

func (fakeTimeout) Error() string   { return "fake transport: i/o timeout" }
func (fakeTimeout) Timeout() bool   { return true }
func (fakeTimeout) Temporary() bool { return true }
