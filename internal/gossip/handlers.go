package gossip

import (
	"net"
	"sync/atomic"

	"gossipnode/internal/clock"
	"gossipnode/internal/clusterauth"
	"gossipnode/internal/envelope"
	"gossipnode/internal/eventlog"
	"gossipnode/internal/logging"
	"gossipnode/internal/pow"
)

// dispatch routes a decoded envelope by msg_type (spec.md §4.3's 8-way
// table). Handlers are synchronous and short; none may block on I/O other
// than send. raw is the exact bytes received, needed only by handleGossip
// to preserve byte-identical IWANT replies.
func (n *Node) dispatch(raw string, env *envelope.Envelope, from *net.UDPAddr) {
	switch env.MsgType {
	case envelope.KindHello:
		n.handleHello(env, from)
	case envelope.KindGetPeers:
		n.handleGetPeers(from)
	case envelope.KindPeersList:
		n.handlePeersList(env)
	case envelope.KindGossip:
		n.handleGossip(raw, env, from)
	case envelope.KindPing:
		n.handlePing(env, from)
	case envelope.KindPong:
		n.handlePong(from)
	case envelope.KindIHave:
		n.handleIHave(env, from)
	case envelope.KindIWant:
		n.handleIWant(env, from)
	default:
		// UnknownKind: drop silently.
	}
}

// handleHello verifies admission (PoW and, if configured, the cluster
// HMAC) before adding sender to the view. A failed check is
// AdmissionRejected: drop, log to stderr, do not touch membership
// (spec.md §4.7, §7).
func (n *Node) handleHello(env *envelope.Envelope, from *net.UDPAddr) {
	nonce, _, hmacHex, hasPow := parseHelloPayload(env.Payload)

	if n.cfg.PowDifficulty > 0 {
		if !hasPow || !pow.Verify(env.SenderID, nonce, n.cfg.PowDifficulty) {
			atomic.AddUint64(&n.powRejectedCount, 1)
			logging.Warn("admission rejected: invalid PoW from %s (%s)", env.SenderID, from)
			return
		}
	}
	if n.authKey != nil {
		body := clusterauth.JoinBody(env.SenderID, env.MsgID)
		if hmacHex == "" || !clusterauth.Verify(n.authKey, body, hmacHex) {
			atomic.AddUint64(&n.powRejectedCount, 1)
			logging.Warn("admission rejected: invalid cluster hmac from %s (%s)", env.SenderID, from)
			return
		}
	}

	n.view.TouchOrAdd(from, clock.NowMs())
	n.replyPeersList(from)
}

func (n *Node) handleGetPeers(from *net.UDPAddr) {
	n.replyPeersList(from)
}

func (n *Node) replyPeersList(to *net.UDPAddr) {
	snapshot := n.view.Snapshot()
	addrs := make([]string, 0, len(snapshot))
	for _, p := range snapshot {
		addrs = append(addrs, p.Addr.String())
	}
	n.send(envelope.KindPeersList, buildPeersListPayload(addrs), to)
}

func (n *Node) handlePeersList(env *envelope.Envelope) {
	for _, a := range parsePeersListPayload(env.Payload) {
		addr, err := net.ResolveUDPAddr("udp", a)
		if err != nil {
			continue
		}
		n.view.TouchOrAdd(addr, clock.NowMs())
	}
}

// handleGossip implements the push flooder's dedup step and relay trigger
// (spec.md §4.4): mark-seen-and-store happen under one lock acquisition
// (dedup.Tracker.RecordAndStore), then relay runs lock-free.
func (n *Node) handleGossip(raw string, env *envelope.Envelope, from *net.UDPAddr) {
	isNew := n.tracker.RecordAndStore(env.MsgID, raw)
	if !isNew {
		return // Dedup invariant: at most one "new" branch per msg_id
	}
	n.emit(eventlog.Receive, env.MsgType, env.MsgID)
	n.relay(env, from)
}

func (n *Node) handlePing(env *envelope.Envelope, from *net.UDPAddr) {
	n.view.TouchOrAdd(from, clock.NowMs())
	pingID, _ := scanQuoted(env.Payload, `"ping_id":"`)
	n.send(envelope.KindPong, buildPongPayload(pingID), from)
}

func (n *Node) handlePong(from *net.UDPAddr) {
	n.view.TouchOrAdd(from, clock.NowMs())
}

// handleIHave computes the set difference against the seen-set and
// replies with a single IWANT naming exactly what's missing (spec.md
// §4.5). A fully-covered advertisement draws no reply.
func (n *Node) handleIHave(env *envelope.Envelope, from *net.UDPAddr) {
	advertised := parseIDsPayload(env.Payload)
	missing := n.tracker.Missing(advertised)
	if len(missing) == 0 {
		return
	}
	n.send(envelope.KindIWant, buildIWantPayload(missing), from)
}

// handleIWant replays the exact stored bytes for each requested id found
// in the gossip store; ids not found are silently skipped. This is
// store-and-forward, not a new GOSSIP creation, and does not re-mark the
// sender's own seen-set (spec.md §4.5, §9 open question).
func (n *Node) handleIWant(env *envelope.Envelope, from *net.UDPAddr) {
	for _, id := range parseIDsPayload(env.Payload) {
		wire, ok := n.tracker.Lookup(id)
		if !ok {
			continue
		}
		n.sendRaw(wire, envelope.KindGossip, id, from)
	}
}
