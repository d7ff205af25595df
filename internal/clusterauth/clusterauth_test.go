package clusterauth

import "testing"

func TestSignVerifyRoundTrip(t *testing.T) {
	key := DeriveKey("correct horse battery staple", []byte("fixed-salt"))
	body := JoinBody("node-1", "HELLO_node-1")

	sig := Sign(key, body)
	if !Verify(key, body, sig) {
		t.Fatal("expected signature to verify")
	}
}

func TestVerifyRejectsWrongKeyOrBody(t *testing.T) {
	key := DeriveKey("passphrase-a", []byte("salt"))
	other := DeriveKey("passphrase-b", []byte("salt"))
	body := JoinBody("node-1", "HELLO_node-1")

	sig := Sign(key, body)
	if Verify(other, body, sig) {
		t.Fatal("expected verify to fail under a different key")
	}
	if Verify(key, JoinBody("node-2", "HELLO_node-1"), sig) {
		t.Fatal("expected verify to fail for a different sender_id")
	}
}

func TestDeriveKeyIsDeterministic(t *testing.T) {
	a := DeriveKey("secret", []byte("salt"))
	b := DeriveKey("secret", []byte("salt"))
	if string(a) != string(b) {
		t.Fatal("expected deterministic key derivation for the same inputs")
	}
}
