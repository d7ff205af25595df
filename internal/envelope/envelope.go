// Package envelope implements the wire-level message format shared by every
// gossip node: a single JSON object per UDP datagram, written with a fixed
// key order so the decoder can tolerate the encoder's exact output without
// pulling in a full JSON parser.
package envelope

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind is the enumerated msg_type carried on the wire.
type Kind string

const (
	KindHello     Kind = "HELLO"
	KindGetPeers  Kind = "GET_PEERS"
	KindPeersList Kind = "PEERS_LIST"
	KindGossip    Kind = "GOSSIP"
	KindPing      Kind = "PING"
	KindPong      Kind = "PONG"
	KindIHave     Kind = "IHAVE"
	KindIWant     Kind = "IWANT"
)

const (
	// MaxMsgIDLen is the maximum length of msg_id.
	MaxMsgIDLen = 127
	// MaxSenderIDLen is the maximum length of sender_id.
	MaxSenderIDLen = 63
	// MaxSenderAddrLen is the maximum length of sender_addr.
	MaxSenderAddrLen = 63
	// MaxPayloadLen bounds the payload JSON value. The original C headers
	// disagree between 1024 and 8192 for MSG_BUF_SIZE; 8192 is authoritative.
	MaxPayloadLen = 8192
	// MaxSerializedLen bounds the fully serialized envelope so it fits one
	// UDP datagram, matching MAX_SERIALIZED_LEN in the reference headers.
	MaxSerializedLen = 10240

	// ProtocolVersion is the only version this node speaks.
	ProtocolVersion = 1
)

// Envelope is one network message.
type Envelope struct {
	Version      int
	MsgID        string
	MsgType      Kind
	SenderID     string
	SenderAddr   string
	TimestampMs  uint64
	TTL          int
	Payload      string // already-well-formed JSON value, not string-escaped
}

// Encode serializes e as a single-line JSON object with the field order
// fixed by the wire format: version, msg_id, msg_type, sender_id,
// sender_addr, timestamp_ms, ttl, payload. payload is inlined verbatim.
func Encode(e *Envelope) (string, error) {
	if len(e.MsgID) > MaxMsgIDLen {
		return "", fmt.Errorf("envelope: msg_id exceeds %d bytes", MaxMsgIDLen)
	}
	if len(e.SenderID) > MaxSenderIDLen {
		return "", fmt.Errorf("envelope: sender_id exceeds %d bytes", MaxSenderIDLen)
	}
	if len(e.SenderAddr) > MaxSenderAddrLen {
		return "", fmt.Errorf("envelope: sender_addr exceeds %d bytes", MaxSenderAddrLen)
	}
	if len(e.Payload) > MaxPayloadLen {
		return "", fmt.Errorf("envelope: payload exceeds %d bytes", MaxPayloadLen)
	}
	payload := e.Payload
	if payload == "" {
		payload = "{}"
	}

	var b strings.Builder
	b.WriteByte('{')
	b.WriteString(`"version":`)
	b.WriteString(strconv.Itoa(e.Version))
	b.WriteString(`,"msg_id":"`)
	b.WriteString(e.MsgID)
	b.WriteString(`","msg_type":"`)
	b.WriteString(string(e.MsgType))
	b.WriteString(`","sender_id":"`)
	b.WriteString(e.SenderID)
	b.WriteString(`","sender_addr":"`)
	b.WriteString(e.SenderAddr)
	b.WriteString(`","timestamp_ms":`)
	b.WriteString(strconv.FormatUint(e.TimestampMs, 10))
	b.WriteString(`,"ttl":`)
	b.WriteString(strconv.Itoa(e.TTL))
	b.WriteString(`,"payload":`)
	b.WriteString(payload)
	b.WriteByte('}')

	out := b.String()
	if len(out) > MaxSerializedLen {
		return "", fmt.Errorf("envelope: serialized length %d exceeds %d", len(out), MaxSerializedLen)
	}
	return out, nil
}

// Decode parses buf, produced by Encode, back into an Envelope. It tolerates
// exactly the shape Encode emits and nothing more general. Decode fails if
// any of version, msg_id, msg_type, sender_id, sender_addr, timestamp_ms,
// or ttl is missing.
func Decode(buf string) (*Envelope, error) {
	buf = strings.TrimSpace(buf)
	if !strings.HasPrefix(buf, "{") || !strings.HasSuffix(buf, "}") {
		return nil, fmt.Errorf("envelope: not a JSON object")
	}

	e := &Envelope{}
	var ok bool

	e.Version, ok = scanInt(buf, `"version":`)
	if !ok {
		return nil, fmt.Errorf("envelope: missing version")
	}
	e.MsgID, ok = scanString(buf, `"msg_id":"`)
	if !ok {
		return nil, fmt.Errorf("envelope: missing msg_id")
	}
	msgType, ok := scanString(buf, `"msg_type":"`)
	if !ok {
		return nil, fmt.Errorf("envelope: missing msg_type")
	}
	e.MsgType = Kind(msgType)
	e.SenderID, ok = scanString(buf, `"sender_id":"`)
	if !ok {
		return nil, fmt.Errorf("envelope: missing sender_id")
	}
	e.SenderAddr, ok = scanString(buf, `"sender_addr":"`)
	if !ok {
		return nil, fmt.Errorf("envelope: missing sender_addr")
	}
	ts, ok := scanUint(buf, `"timestamp_ms":`)
	if !ok {
		return nil, fmt.Errorf("envelope: missing timestamp_ms")
	}
	e.TimestampMs = ts
	e.TTL, ok = scanInt(buf, `"ttl":`)
	if !ok {
		return nil, fmt.Errorf("envelope: missing ttl")
	}

	payload, ok := extractPayload(buf)
	if !ok {
		return nil, fmt.Errorf("envelope: missing payload")
	}
	e.Payload = payload

	return e, nil
}

// extractPayload finds the "payload": key and copies everything up to the
// outer object's final closing brace, trimmed of trailing whitespace. This
// mirrors the two-pass approach of the original C deserializer: scalar
// fields are scanned individually, then payload is taken as a raw substring
// so arbitrarily nested JSON survives without a general parser.
func extractPayload(buf string) (string, bool) {
	const key = `"payload":`
	idx := strings.Index(buf, key)
	if idx < 0 {
		return "", false
	}
	start := idx + len(key)

	// buf is already trimmed and verified to end in '}' (the outer
	// object's closing brace); everything up to but excluding that
	// final brace is the payload value.
	end := len(buf) - 1
	if end <= start {
		return "", false
	}
	payload := strings.TrimRight(buf[start:end], " \t\r\n")
	if payload == "" {
		return "", false
	}
	return payload, true
}

func scanString(buf, key string) (string, bool) {
	idx := strings.Index(buf, key)
	if idx < 0 {
		return "", false
	}
	start := idx + len(key)
	end := strings.IndexByte(buf[start:], '"')
	if end < 0 {
		return "", false
	}
	return buf[start : start+end], true
}

func scanInt(buf, key string) (int, bool) {
	raw, ok := scanScalar(buf, key)
	if !ok {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

func scanUint(buf, key string) (uint64, bool) {
	raw, ok := scanScalar(buf, key)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// scanScalar extracts a bare (unquoted) numeric value following key, up to
// the next comma or closing brace.
func scanScalar(buf, key string) (string, bool) {
	idx := strings.Index(buf, key)
	if idx < 0 {
		return "", false
	}
	start := idx + len(key)
	end := start
	for end < len(buf) && buf[end] != ',' && buf[end] != '}' {
		end++
	}
	if end == start {
		return "", false
	}
	return strings.TrimSpace(buf[start:end]), true
}
