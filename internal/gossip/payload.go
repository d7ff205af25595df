package gossip

import (
	"fmt"
	"strconv"
	"strings"
)

// Hand-rolled payload construction and parsing, in the same fixed-shape
// style as internal/envelope: every payload schema in spec.md §6 is small
// and regular enough that a general JSON library buys nothing but weight.

func buildHelloPayload(capabilities []string, cred *powCredential) string {
	var b strings.Builder
	b.WriteString(`{"capabilities":[`)
	for i, c := range capabilities {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(c)
		b.WriteByte('"')
	}
	b.WriteByte(']')
	if cred != nil {
		b.WriteString(`,"pow":{"hash_alg":"sha256","difficulty_k":`)
		b.WriteString(strconv.Itoa(cred.difficulty))
		b.WriteString(`,"nonce":`)
		b.WriteString(strconv.FormatUint(cred.nonce, 10))
		b.WriteString(`,"digest_hex":"`)
		b.WriteString(cred.digest)
		b.WriteString(`"}`)
	}
	if cred != nil && cred.hmac != "" {
		b.WriteString(`,"hmac":"`)
		b.WriteString(cred.hmac)
		b.WriteByte('"')
	}
	b.WriteByte('}')
	return b.String()
}

type powCredential struct {
	difficulty int
	nonce      uint64
	digest     string
	hmac       string
}

// parseHelloPayload extracts the PoW fields and the optional hmac field
// from a HELLO payload, tolerating their absence (PoW and clusterauth are
// both optional per-deployment features).
func parseHelloPayload(payload string) (nonce uint64, difficulty int, hmacHex string, hasPow bool) {
	if idx := strings.Index(payload, `"nonce":`); idx >= 0 {
		if v, ok := scanUint(payload, `"nonce":`); ok {
			nonce = v
			hasPow = true
		}
	}
	if v, ok := scanInt(payload, `"difficulty_k":`); ok {
		difficulty = v
	}
	if v, ok := scanQuoted(payload, `"hmac":"`); ok {
		hmacHex = v
	}
	return nonce, difficulty, hmacHex, hasPow
}

func buildGetPeersPayload(maxPeers int) string {
	return fmt.Sprintf(`{"max_peers":%d}`, maxPeers)
}

func buildPeersListPayload(addrs []string) string {
	var b strings.Builder
	b.WriteString(`{"peers":[`)
	for i, a := range addrs {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(`{"addr":"`)
		b.WriteString(a)
		b.WriteString(`"}`)
	}
	b.WriteString(`]}`)
	return b.String()
}

// parsePeersListPayload extracts each "addr":"ip:port" occurrence, tolerant
// of the exact shape buildPeersListPayload emits (mirrors the original's
// strstr/sscanf scan of repeated "addr":" occurrences).
func parsePeersListPayload(payload string) []string {
	var out []string
	rest := payload
	const key = `"addr":"`
	for {
		idx := strings.Index(rest, key)
		if idx < 0 {
			break
		}
		rest = rest[idx+len(key):]
		end := strings.IndexByte(rest, '"')
		if end < 0 {
			break
		}
		out = append(out, rest[:end])
		rest = rest[end:]
	}
	return out
}

func buildPingPayload(pingID string) string {
	return fmt.Sprintf(`{"ping_id":"%s"}`, pingID)
}

func buildPongPayload(replyTo string) string {
	return fmt.Sprintf(`{"reply_to":"%s"}`, replyTo)
}

func buildIHavePayload(ids []string, maxIDs int) string {
	var b strings.Builder
	b.WriteString(`{"ids":[`)
	for i, id := range ids {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(id)
		b.WriteByte('"')
	}
	b.WriteString(`],"max_ids":`)
	b.WriteString(strconv.Itoa(maxIDs))
	b.WriteByte('}')
	return b.String()
}

func buildIWantPayload(ids []string) string {
	var b strings.Builder
	b.WriteString(`{"ids":[`)
	for i, id := range ids {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(id)
		b.WriteByte('"')
	}
	b.WriteString(`]}`)
	return b.String()
}

// parseIDsPayload extracts the "ids" string array shared by IHAVE and IWANT.
func parseIDsPayload(payload string) []string {
	const key = `"ids":[`
	idx := strings.Index(payload, key)
	if idx < 0 {
		return nil
	}
	rest := payload[idx+len(key):]
	end := strings.IndexByte(rest, ']')
	if end < 0 {
		return nil
	}
	body := rest[:end]
	if strings.TrimSpace(body) == "" {
		return nil
	}
	var out []string
	for _, tok := range strings.Split(body, ",") {
		tok = strings.TrimSpace(tok)
		tok = strings.Trim(tok, `"`)
		if tok != "" {
			out = append(out, tok)
		}
	}
	return out
}

func scanQuoted(buf, key string) (string, bool) {
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

func scanScalar(buf, key string) (string, bool) {
	idx := strings.Index(buf, key)
	if idx < 0 {
		return "", false
	}
	start := idx + len(key)
	end := start
	for end < len(buf) && buf[end] != ',' && buf[end] != '}' && buf[end] != ']' {
		end++
	}
	if end == start {
		return "", false
	}
	return strings.TrimSpace(buf[start:end]), true
}
