// Package clusterauth implements an optional supplemental admission gate:
// a PBKDF2-derived HMAC-SHA256 signature carried on HELLO alongside PoW.
// It is grounded on the teacher's HTTP body-signing helpers (SignBody /
// VerifyBody) and its at-rest encryption key derivation, repurposed here
// to sign the join handshake instead of an HTTP request body or a stored
// blob. Like PoW, this only gates admission — it never authenticates
// GOSSIP payload contents (spec.md's Non-goals).
package clusterauth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/crypto/pbkdf2"
)

const (
	keySize    = 32
	iterations = 100000
)

// DeriveKey derives a signing key from a cluster passphrase and a
// deployment-wide salt using PBKDF2-SHA256.
func DeriveKey(passphrase string, salt []byte) []byte {
	return pbkdf2.Key([]byte(passphrase), salt, iterations, keySize, sha256.New)
}

// Sign computes the hex HMAC-SHA256 of body under key.
func Sign(key []byte, body []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature is a valid HMAC-SHA256 of body under key.
func Verify(key []byte, body []byte, signature string) bool {
	expected := Sign(key, body)
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	want, err := hex.DecodeString(expected)
	if err != nil {
		return false
	}
	return hmac.Equal(got, want)
}

// JoinBody returns the canonical bytes signed for a HELLO: sender_id and
// msg_id joined with a separator that cannot appear in either (both are
// length-bounded, separator-free identifiers per spec.md §3).
func JoinBody(senderID, msgID string) []byte {
	return []byte(senderID + "|" + msgID)
}
