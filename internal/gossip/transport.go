package gossip

import (
	"net"
	"time"

	"gossipnode/internal/envelope"
)

// recvTimeout bounds how long the receiver duty blocks in a single Recv
// call, so it can observe context cancellation promptly (spec.md §5).
const recvTimeout = 500 * time.Millisecond

// Transport is the datagram socket collaborator spec.md §1 treats as
// external: send(addr, bytes) / recv(timeout) -> (bytes, addr).
type Transport interface {
	Send(addr *net.UDPAddr, data []byte) error
	Recv() ([]byte, *net.UDPAddr, error)
	LocalAddr() *net.UDPAddr
	Close() error
}

// UDPTransport is the production Transport, a plain net.UDPConn.
type UDPTransport struct {
	conn *net.UDPConn
}

// NewUDPTransport binds a UDP socket on the given port across all
// interfaces. A bind failure is a FatalInit error (spec.md §7).
func NewUDPTransport(port int) (*UDPTransport, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: port})
	if err != nil {
		return nil, err
	}
	return &UDPTransport{conn: conn}, nil
}

func (t *UDPTransport) Send(addr *net.UDPAddr, data []byte) error {
	_, err := t.conn.WriteToUDP(data, addr)
	return err
}

func (t *UDPTransport) Recv() ([]byte, *net.UDPAddr, error) {
	buf := make([]byte, envelope.MaxSerializedLen)
	if err := t.conn.SetReadDeadline(time.Now().Add(recvTimeout)); err != nil {
		return nil, nil, err
	}
	n, addr, err := t.conn.ReadFromUDP(buf)
	if err != nil {
		return nil, nil, err
	}
	return buf[:n], addr, nil
}

func (t *UDPTransport) LocalAddr() *net.UDPAddr {
	return t.conn.LocalAddr().(*net.UDPAddr)
}

func (t *UDPTransport) Close() error {
	return t.conn.Close()
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}
