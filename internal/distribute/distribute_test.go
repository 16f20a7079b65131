package distribute

import (
	"testing"

	"synchrotron/internal/hash"
)

func TestModuloStableForSameKey(t *testing.T) {
	backends := []string{"a:1", "b:1", "c:1"}
	d, err := New("modulo", hash.MD5{}, backends)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	first := d.Choose([]byte("user:42"))
	for i := 0; i < 10; i++ {
		if got := d.Choose([]byte("user:42")); got != first {
			t.Fatalf("Choose not stable: got %d, want %d", got, first)
		}
	}
	if first < 0 || first >= len(backends) {
		t.Fatalf("Choose out of range: %d", first)
	}
}

func TestModuloSpreadsKeys(t *testing.T) {
	backends := []string{"a:1", "b:1", "c:1", "d:1"}
	d, _ := New("modulo", hash.MD5{}, backends)

	seen := map[int]bool{}
	for i := 0; i < 200; i++ {
		key := []byte{byte(i), byte(i >> 8)}
		seen[d.Choose(key)] = true
	}
	if len(seen) < 2 {
		t.Errorf("expected keys to spread across multiple backends, got %d distinct", len(seen))
	}
}

func TestRandomStaysInRange(t *testing.T) {
	backends := []string{"a:1", "b:1", "c:1"}
	d, err := New("random", hash.MD5{}, backends)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := 0; i < 50; i++ {
		got := d.Choose([]byte("anything"))
		if got < 0 || got >= len(backends) {
			t.Fatalf("Choose out of range: %d", got)
		}
	}
}

func TestRendezvousStableForSameKey(t *testing.T) {
	backends := []string{"a:1", "b:1", "c:1"}
	d, err := New("rendezvous", hash.MD5{}, backends)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	first := d.Choose([]byte("user:42"))
	for i := 0; i < 10; i++ {
		if got := d.Choose([]byte("user:42")); got != first {
			t.Fatalf("Choose not stable: got %d, want %d", got, first)
		}
	}
}

func TestNewRejectsEmptyBackends(t *testing.T) {
	if _, err := New("modulo", hash.MD5{}, nil); err == nil {
		t.Errorf("expected error for empty backend list")
	}
}

func TestNewUnknownKind(t *testing.T) {
	if _, err := New("bogus", hash.MD5{}, []string{"a:1"}); err == nil {
		t.Errorf("expected error for unknown distribution kind")
	}
}
