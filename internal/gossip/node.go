// Package gossip implements the dissemination engine: process-wide node
// state, the UDP transport, the 8-way message dispatcher, the push
// flooder, the pull reconciler, the failure detector, and join admission.
// It is the composition root for every leaf package (envelope, membership,
// dedup, pow, clusterauth, clock, eventlog), grounded on the teacher's
// Protocol/Transport duty-goroutine shape in spirit, generalized from its
// HTTP topology-sync to the datagram handshake this spec requires.
package gossip

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"gossipnode/internal/clock"
	"gossipnode/internal/clusterauth"
	"gossipnode/internal/dedup"
	"gossipnode/internal/envelope"
	"gossipnode/internal/eventlog"
	"gossipnode/internal/logging"
	"gossipnode/internal/membership"
	"gossipnode/internal/pow"
)

// Config is the node's frozen-at-init configuration (spec.md §3).
type Config struct {
	Port          int
	Fanout        int
	TTL           int
	PeerLimit     int
	PingIntervalS int
	PeerTimeoutS  int
	PullIntervalS int // 0 disables pull
	MaxIHaveIDs   int
	PowDifficulty int // 0 disables PoW
	Seed          int64
	Bootstrap     string // "ip:port", empty disables
	LogDir        string // directory for node_<port>.log, default "."

	// ClusterSecret, when non-empty, enables the supplemental HMAC
	// admission gate (internal/clusterauth) alongside PoW.
	ClusterSecret string
	ClusterSalt   string

	// AdvertiseAddr overrides the host portion of the address this node
	// advertises to peers. Defaults to 127.0.0.1: this design has no NAT
	// traversal (spec.md Non-goals), so there is no general way to learn
	// a routable address.
	AdvertiseAddr string
}

func (c Config) withDefaults() Config {
	if c.Fanout <= 0 {
		c.Fanout = 3
	}
	if c.TTL <= 0 {
		c.TTL = 5
	}
	if c.PeerLimit <= 0 {
		c.PeerLimit = 20
	}
	if c.PingIntervalS <= 0 {
		c.PingIntervalS = 2
	}
	if c.PeerTimeoutS <= 0 {
		c.PeerTimeoutS = 6
	}
	if c.MaxIHaveIDs <= 0 {
		c.MaxIHaveIDs = 32
	}
	if c.Seed == 0 {
		c.Seed = 42
	}
	if c.LogDir == "" {
		c.LogDir = "."
	}
	if c.AdvertiseAddr == "" {
		c.AdvertiseAddr = "127.0.0.1"
	}
	return c
}

// Node is the single, explicit, process-wide node object (spec.md §9:
// "replace the process-wide node structure with a single explicit object
// passed to every duty; no singletons").
type Node struct {
	cfg      Config
	nodeID   string
	selfAddr string

	transport Transport
	view      *membership.View
	tracker   *dedup.Tracker
	sink      *eventlog.Sink

	authKey []byte // nil if ClusterSecret is unset

	idCounter        uint64
	relayCount       uint64 // relay() calls with ttl > 0 that had at least one peer to send to
	powRejectedCount uint64 // HELLO admissions rejected for invalid PoW or cluster hmac

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New performs init: generates the node identity, binds the UDP socket,
// and opens the event log. Any failure here is FatalInit (spec.md §7).
func New(cfg Config) (*Node, error) {
	cfg = cfg.withDefaults()

	if cfg.Port <= 0 {
		return nil, fmt.Errorf("gossip: port is required")
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("gossip: generate node id: %w", err)
	}

	transport, err := NewUDPTransport(cfg.Port)
	if err != nil {
		return nil, fmt.Errorf("gossip: bind udp port %d: %w", cfg.Port, err)
	}

	sink, err := eventlog.Open(fmt.Sprintf("%s/node_%d.log", cfg.LogDir, cfg.Port))
	if err != nil {
		transport.Close()
		return nil, fmt.Errorf("gossip: open event log: %w", err)
	}

	n := &Node{
		cfg:       cfg,
		nodeID:    id.String(),
		selfAddr:  fmt.Sprintf("%s:%d", cfg.AdvertiseAddr, cfg.Port),
		transport: transport,
		view:      membership.New(cfg.PeerLimit, cfg.Seed),
		tracker:   dedup.NewTracker(),
		sink:      sink,
	}

	if cfg.ClusterSecret != "" {
		salt := cfg.ClusterSalt
		if salt == "" {
			salt = "gossipnode-default-salt"
		}
		n.authKey = clusterauth.DeriveKey(cfg.ClusterSecret, []byte(salt))
	}

	logging.Info("node %s listening on %s (fanout=%d ttl=%d pow=%d)",
		n.nodeID, n.selfAddr, cfg.Fanout, cfg.TTL, cfg.PowDifficulty)
	return n, nil
}

// NodeID returns this node's stable UUID.
func (n *Node) NodeID() string { return n.nodeID }

// SelfAddr returns the address this node advertises to peers.
func (n *Node) SelfAddr() string { return n.selfAddr }

// ViewSize returns the current membership view size.
func (n *Node) ViewSize() int { return n.view.Count() }

// SentCount returns the total number of envelopes sent.
func (n *Node) SentCount() uint64 { return n.tracker.SentCount() }

// SeenCount returns the current seen-set size.
func (n *Node) SeenCount() int { return n.tracker.SeenCount() }

// RecentEvents returns the sink's in-memory tail, for observability.
func (n *Node) RecentEvents() []eventlog.Record { return n.sink.Recent() }

// RelayCount returns the number of relay rounds that produced at least
// one outbound send (ttl was not already exhausted).
func (n *Node) RelayCount() uint64 { return atomic.LoadUint64(&n.relayCount) }

// PowRejectedCount returns the number of HELLO admissions rejected for an
// invalid proof-of-work credential or cluster hmac.
func (n *Node) PowRejectedCount() uint64 { return atomic.LoadUint64(&n.powRejectedCount) }

// Start launches the concurrent duties (receiver, failure detector, and,
// when PullIntervalS > 0, the pull reconciler) and returns immediately; it
// does not block. Each duty
// runs until ctx is canceled or Shutdown closes the transport.
func (n *Node) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	n.cancel = cancel

	n.wg.Add(2)
	go n.receiveLoop(runCtx)
	go n.failureDetectorLoop(runCtx)

	if n.cfg.PullIntervalS > 0 {
		n.wg.Add(1)
		go n.pullReconcilerLoop(runCtx)
	}
}

// Shutdown stops all duties: cancels the running context, closes the
// socket (unblocking recv), joins the duties, then flushes the sink.
func (n *Node) Shutdown() error {
	if n.cancel != nil {
		n.cancel()
	}
	closeErr := n.transport.Close()
	n.wg.Wait()
	if err := n.sink.Close(); err != nil && closeErr == nil {
		closeErr = err
	}
	return closeErr
}

func (n *Node) receiveLoop(ctx context.Context) {
	defer n.wg.Done()
	for {
		if ctx.Err() != nil {
			return
		}
		data, from, err := n.transport.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if isTimeout(err) {
				continue
			}
			// Socket closed out from under us or another fatal recv
			// error: stop receiving, Shutdown is already in progress.
			return
		}
		env, err := envelope.Decode(string(data))
		if err != nil {
			continue // TransientDecode: drop silently, no event
		}
		n.dispatch(string(data), env, from)
	}
}

func (n *Node) failureDetectorLoop(ctx context.Context) {
	defer n.wg.Done()
	ticker := time.NewTicker(time.Duration(n.cfg.PingIntervalS) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.runFailureDetectorRound()
		}
	}
}

func (n *Node) runFailureDetectorRound() {
	for _, addr := range n.view.Sample(n.cfg.Fanout, nil) {
		n.sendPing(addr)
	}
	n.view.Expire(clock.NowMs(), n.cfg.PeerTimeoutS)
}

func (n *Node) pullReconcilerLoop(ctx context.Context) {
	defer n.wg.Done()
	ticker := time.NewTicker(time.Duration(n.cfg.PullIntervalS) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.runPullRound()
		}
	}
}

func (n *Node) runPullRound() {
	ids := n.tracker.RecentIDs(n.cfg.MaxIHaveIDs)
	if len(ids) == 0 {
		return
	}
	payload := buildIHavePayload(ids, n.cfg.MaxIHaveIDs)
	for _, addr := range n.view.Sample(n.cfg.Fanout, nil) {
		n.send(envelope.KindIHave, payload, addr)
	}
}

// Bootstrap sends HELLO then GET_PEERS to the configured bootstrap
// address, per spec.md §4.7, pre-inserting it into the view first so the
// handshake always has somewhere to send even if the reply is lost.
func (n *Node) Bootstrap() error {
	if n.cfg.Bootstrap == "" {
		return nil
	}
	addr, err := net.ResolveUDPAddr("udp", n.cfg.Bootstrap)
	if err != nil {
		return fmt.Errorf("gossip: resolve bootstrap address %q: %w", n.cfg.Bootstrap, err)
	}

	n.view.TouchOrAdd(addr, clock.NowMs())

	msgID := n.nextMsgID()
	n.sendEnvelope(envelope.KindHello, msgID, n.helloPayload(msgID), addr)
	n.send(envelope.KindGetPeers, buildGetPeersPayload(membership.MaxPeers), addr)
	return nil
}

func (n *Node) helloPayload(msgID string) string {
	var cred *powCredential
	if n.cfg.PowDifficulty > 0 {
		nonce, digest, _ := pow.Mine(n.nodeID, n.cfg.PowDifficulty)
		cred = &powCredential{difficulty: n.cfg.PowDifficulty, nonce: nonce, digest: digest}
	}
	if n.authKey != nil {
		if cred == nil {
			cred = &powCredential{}
		}
		cred.hmac = clusterauth.Sign(n.authKey, clusterauth.JoinBody(n.nodeID, msgID))
	}
	return buildHelloPayload([]string{"udp", "json"}, cred)
}

// InjectGossip originates a new GOSSIP message carrying appPayload: it
// marks the message seen and stored locally (so this node answers IWANT
// for its own messages) and relays it, mirroring the reference REPL's
// "msg <text>" command.
func (n *Node) InjectGossip(appPayload string) (string, error) {
	msgID := n.nextMsgID()
	env := &envelope.Envelope{
		Version:     envelope.ProtocolVersion,
		MsgID:       msgID,
		MsgType:     envelope.KindGossip,
		SenderID:    n.nodeID,
		SenderAddr:  n.selfAddr,
		TimestampMs: uint64(clock.NowMs()),
		TTL:         n.cfg.TTL,
		Payload:     appPayload,
	}
	wire, err := envelope.Encode(env)
	if err != nil {
		return "", fmt.Errorf("gossip: encode injected message: %w", err)
	}
	n.tracker.RecordAndStore(msgID, wire)
	n.relay(env, nil)
	return msgID, nil
}

// relay re-serializes env with ttl decremented and sends it to a fresh
// fanout-bounded sample, excluding the peer it arrived from.
func (n *Node) relay(env *envelope.Envelope, exclude *net.UDPAddr) {
	if env.TTL <= 0 {
		return
	}
	cp := *env
	cp.TTL--
	wire, err := envelope.Encode(&cp)
	if err != nil {
		logging.Error("relay: re-encode failed for %s: %v", cp.MsgID, err)
		return
	}
	targets := n.view.Sample(n.cfg.Fanout, exclude)
	if len(targets) > 0 {
		atomic.AddUint64(&n.relayCount, 1)
	}
	for _, addr := range targets {
		n.sendRaw(wire, envelope.KindGossip, cp.MsgID, addr)
	}
}

func (n *Node) sendPing(to *net.UDPAddr) {
	msgID := n.nextMsgID()
	n.sendEnvelope(envelope.KindPing, msgID, buildPingPayload(msgID), to)
}

// send builds a fresh envelope of the given kind with a new msg_id.
func (n *Node) send(kind envelope.Kind, payload string, to *net.UDPAddr) {
	n.sendEnvelope(kind, n.nextMsgID(), payload, to)
}

func (n *Node) sendEnvelope(kind envelope.Kind, msgID, payload string, to *net.UDPAddr) {
	env := &envelope.Envelope{
		Version:     envelope.ProtocolVersion,
		MsgID:       msgID,
		MsgType:     kind,
		SenderID:    n.nodeID,
		SenderAddr:  n.selfAddr,
		TimestampMs: uint64(clock.NowMs()),
		TTL:         n.cfg.TTL,
		Payload:     payload,
	}
	wire, err := envelope.Encode(env)
	if err != nil {
		logging.Error("encode failed for %s: %v", kind, err)
		return
	}
	n.sendRaw(wire, kind, msgID, to)
}

// sendRaw transmits an already-serialized envelope verbatim: the shared
// path for freshly built messages, relayed copies, and byte-identical IWANT
// replays (spec.md §4.5, §4.4).
func (n *Node) sendRaw(wire string, kind envelope.Kind, msgID string, to *net.UDPAddr) {
	if err := n.transport.Send(to, []byte(wire)); err != nil {
		logging.Warn("send %s to %s failed: %v", kind, to, err) // SendFailed: best-effort, no retry
		return
	}
	n.tracker.IncrSent(1)
	n.emit(eventlog.Send, kind, msgID)
}

func (n *Node) emit(event eventlog.Event, kind envelope.Kind, msgID string) {
	n.sink.Emit(eventlog.Record{
		TimestampMs: uint64(clock.NowMs()),
		Event:       event,
		MsgType:     kind,
		MsgID:       msgID,
	})
}

func (n *Node) nextMsgID() string {
	seq := atomic.AddUint64(&n.idCounter, 1)
	return fmt.Sprintf("%d_%d_%d", n.cfg.Port, clock.NowMs(), seq)
}
