package backend

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"synchrotron/internal/config"
	"synchrotron/internal/logging"
	"synchrotron/internal/resp"
)

func testOptions() config.PoolOptionsConfig {
	return config.PoolOptionsConfig{
		ConnectionsPerBackend: 2,
		TimeoutMs:             200,
		CooloffTimeoutMs:      50,
		FailureThreshold:      2,
		FailureWindowMs:       1000,
		NoKeyPolicy:           "first_backend",
	}
}

func newTestBackend(t *testing.T) (*Backend, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	return New(mr.Addr(), testOptions(), logging.Nop()), mr
}

func TestBackendSubmitSingleGet(t *testing.T) {
	be, mr := newTestBackend(t)
	defer be.Close()
	mr.Set("foo", "bar")

	replies := be.Submit(context.Background(), []resp.Message{
		{Args: [][]byte{[]byte("GET"), []byte("foo")}},
	})
	if len(replies) != 1 {
		t.Fatalf("got %d replies, want 1", len(replies))
	}
	if replies[0].Kind != resp.KindBulkString || string(replies[0].Bulk) != "bar" {
		t.Errorf("got %+v, want bulk \"bar\"", replies[0])
	}
}

func TestBackendSubmitMissingKeyIsNil(t *testing.T) {
	be, _ := newTestBackend(t)
	defer be.Close()

	replies := be.Submit(context.Background(), []resp.Message{
		{Args: [][]byte{[]byte("GET"), []byte("nope")}},
	})
	if !replies[0].Null {
		t.Errorf("expected null bulk reply for missing key, got %+v", replies[0])
	}
}

func TestBackendSubmitPipelinePreservesOrder(t *testing.T) {
	be, _ := newTestBackend(t)
	defer be.Close()

	batch := []resp.Message{
		{Args: [][]byte{[]byte("SET"), []byte("a"), []byte("1")}},
		{Args: [][]byte{[]byte("SET"), []byte("b"), []byte("2")}},
		{Args: [][]byte{[]byte("GET"), []byte("a")}},
		{Args: [][]byte{[]byte("GET"), []byte("b")}},
	}
	replies := be.Submit(context.Background(), batch)
	if len(replies) != 4 {
		t.Fatalf("got %d replies, want 4", len(replies))
	}
	if string(replies[2].Bulk) != "1" || string(replies[3].Bulk) != "2" {
		t.Errorf("replies out of order: %+v", replies)
	}
}

func TestBackendSubmitTTL(t *testing.T) {
	be, mr := newTestBackend(t)
	defer be.Close()
	mr.Set("foo", "bar")
	mr.SetTTL("foo", 30*time.Second)

	replies := be.Submit(context.Background(), []resp.Message{
		{Args: [][]byte{[]byte("TTL"), []byte("foo")}},
	})
	if replies[0].Kind != resp.KindInteger || replies[0].Int != 30 {
		t.Errorf("got %+v, want integer 30", replies[0])
	}
}

func TestBackendSubmitTTLNoExpiry(t *testing.T) {
	be, mr := newTestBackend(t)
	defer be.Close()
	mr.Set("foo", "bar")

	replies := be.Submit(context.Background(), []resp.Message{
		{Args: [][]byte{[]byte("TTL"), []byte("foo")}},
	})
	if replies[0].Kind != resp.KindInteger || replies[0].Int != -1 {
		t.Errorf("got %+v, want integer -1 (no expiry)", replies[0])
	}
}

func TestBackendSubmitHGetAll(t *testing.T) {
	be, mr := newTestBackend(t)
	defer be.Close()
	mr.HSet("h", "f1", "v1", "f2", "v2")

	replies := be.Submit(context.Background(), []resp.Message{
		{Args: [][]byte{[]byte("HGETALL"), []byte("h")}},
	})
	if replies[0].Kind != resp.KindArray || len(replies[0].Array) != 4 {
		t.Fatalf("got %+v, want a 4-element array", replies[0])
	}
	got := map[string]string{}
	for i := 0; i+1 < len(replies[0].Array); i += 2 {
		got[string(replies[0].Array[i].Bulk)] = string(replies[0].Array[i+1].Bulk)
	}
	if got["f1"] != "v1" || got["f2"] != "v2" {
		t.Errorf("got %+v, want f1=v1 f2=v2", got)
	}
}

func TestBackendSubmitIOFailureNormalizesToBackendUnavailable(t *testing.T) {
	be, mr := newTestBackend(t)
	defer be.Close()
	mr.Close()

	replies := be.Submit(context.Background(), []resp.Message{
		{Args: [][]byte{[]byte("GET"), []byte("foo")}},
	})
	if replies[0].Kind != resp.KindError || replies[0].Str != "ERR backend unavailable" {
		t.Errorf("got %+v, want the canonical backend-unavailable reply", replies[0])
	}
}

func TestBackendCoolsOffAfterThreshold(t *testing.T) {
	be, mr := newTestBackend(t)
	mr.Close()
	defer be.Close()

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		be.Submit(ctx, []resp.Message{{Args: [][]byte{[]byte("GET"), []byte("x")}}})
	}

	if be.State() != StateCoolingOff {
		t.Fatalf("state = %v, want cooling_off", be.State())
	}
	if be.Available() {
		t.Errorf("backend should not be available while cooling off")
	}
}

func TestBackendProbeRecoversAfterCooloff(t *testing.T) {
	be, _ := newTestBackend(t)
	defer be.Close()

	// Drive the state machine directly into cool-off, the way repeated
	// backend failures would, without depending on actually severing the
	// connection (which would also leave no live server to probe).
	be.recordFailure()
	be.recordFailure()
	if be.State() != StateCoolingOff {
		t.Fatalf("state = %v, want cooling_off", be.State())
	}

	// Force the cool-off window to have already elapsed.
	be.mu.Lock()
	be.coolingOffUntil = time.Now().Add(-time.Millisecond)
	be.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	be.tryProbe(ctx)

	if !be.Available() {
		t.Errorf("expected backend available after successful probe")
	}
}
