package envelope

import "testing"

func TestRoundTrip(t *testing.T) {
	e := &Envelope{
		Version:     ProtocolVersion,
		MsgID:       "abc-123",
		MsgType:     KindGossip,
		SenderID:    "node-1",
		SenderAddr:  "127.0.0.1:9001",
		TimestampMs: 1700000000000,
		TTL:         5,
		Payload:     `{"topic":"news","data":"hi"}`,
	}

	wire, err := Encode(e)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := Decode(wire)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if *got != *e {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, e)
	}
}

func TestDecodeToleratesNestedPayload(t *testing.T) {
	wire := `{"version":1,"msg_id":"x","msg_type":"GOSSIP","sender_id":"n1","sender_addr":"127.0.0.1:1","timestamp_ms":5,"ttl":2,"payload":{"a":{"b":[1,2,3]},"c":"}"}}`
	e, err := Decode(wire)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := `{"a":{"b":[1,2,3]},"c":"}"}`
	if e.Payload != want {
		t.Fatalf("payload = %q, want %q", e.Payload, want)
	}
}

func TestDecodeMissingFieldFails(t *testing.T) {
	cases := []string{
		`{"msg_id":"x","msg_type":"GOSSIP","sender_id":"n1","sender_addr":"a","timestamp_ms":1,"ttl":1,"payload":{}}`,
		`{"version":1,"msg_type":"GOSSIP","sender_id":"n1","sender_addr":"a","timestamp_ms":1,"ttl":1,"payload":{}}`,
		`{"version":1,"msg_id":"x","sender_id":"n1","sender_addr":"a","timestamp_ms":1,"ttl":1,"payload":{}}`,
		`{"version":1,"msg_id":"x","msg_type":"GOSSIP","sender_addr":"a","timestamp_ms":1,"ttl":1,"payload":{}}`,
		`{"version":1,"msg_id":"x","msg_type":"GOSSIP","sender_id":"n1","timestamp_ms":1,"ttl":1,"payload":{}}`,
		`{"version":1,"msg_id":"x","msg_type":"GOSSIP","sender_id":"n1","sender_addr":"a","ttl":1,"payload":{}}`,
		`{"version":1,"msg_id":"x","msg_type":"GOSSIP","sender_id":"n1","sender_addr":"a","timestamp_ms":1,"payload":{}}`,
		`not json at all`,
	}
	for i, c := range cases {
		if _, err := Decode(c); err == nil {
			t.Errorf("case %d: expected error, got none", i)
		}
	}
}

func TestEncodeRejectsOversizedFields(t *testing.T) {
	long := make([]byte, MaxMsgIDLen+1)
	for i := range long {
		long[i] = 'a'
	}
	e := &Envelope{MsgID: string(long), MsgType: KindPing, SenderID: "n", SenderAddr: "a:1"}
	if _, err := Encode(e); err == nil {
		t.Fatal("expected error for oversized msg_id")
	}
}
