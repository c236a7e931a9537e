package ws

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/Slick-Silver/toehubfinalplj/internal/store"

	"github.com/google/uuid"
)

// newTestClient builds a client without a real transport; frames land in the
// buffered send channel where tests can inspect them.
func newTestClient() *Client {
	return &Client{
		id:   uuid.NewString(),
		send: make(chan []byte, 256),
		done: make(chan struct{}),
	}
}

func newTestHub() (*store.MemStore, *Registry, *Hub) {
	st := store.NewSeededMemStore()
	reg := NewRegistry()
	return st, reg, NewHub(reg, st)
}

func frame(t *testing.T, typ string, payload interface{}) []byte {
	t.Helper()
	data, err := encodeEnvelope(typ, payload)
	if err != nil {
		t.Fatalf("encode %s frame: %v", typ, err)
	}
	return data
}

// recv pops the next outbound frame for the client, failing the test if none
// arrives promptly.
func recv(t *testing.T, c *Client) Envelope {
	t.Helper()
	select {
	case data := <-c.send:
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("unmarshal envelope: %v", err)
		}
		return env
	case <-time.After(100 * time.Millisecond):
		t.Fatal("expected a frame, got none")
	}
	return Envelope{}
}

// recvNone asserts that no frame is pending for the client.
func recvNone(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.send:
		t.Fatalf("expected no frame, got %s", data)
	default:
	}
}

func decodePayload(t *testing.T, env Envelope, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(env.Payload, out); err != nil {
		t.Fatalf("unmarshal %s payload: %v", env.Type, err)
	}
}

// expectError asserts the next frame is an ERROR envelope with the given message.
func expectError(t *testing.T, c *Client, message string) {
	t.Helper()
	env := recv(t, c)
	if env.Type != TypeError {
		t.Fatalf("frame type = %s, want ERROR", env.Type)
	}
	var p ErrorPayload
	decodePayload(t, env, &p)
	if p.Message != message {
		t.Errorf("error message = %q, want %q", p.Message, message)
	}
}
