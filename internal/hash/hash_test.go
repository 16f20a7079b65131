package hash

import "testing"

func TestMD5Stable(t *testing.T) {
	h := MD5{}
	a := h.Hash([]byte("user:1234"))
	b := h.Hash([]byte("user:1234"))
	if a != b {
		t.Errorf("MD5 hash not stable across calls: %d != %d", a, b)
	}
}

func TestMD5Distributes(t *testing.T) {
	h := MD5{}
	if h.Hash([]byte("a")) == h.Hash([]byte("b")) {
		t.Errorf("distinct keys hashed to the same point (could happen, but not for this pair)")
	}
}

func TestXXHashStable(t *testing.T) {
	h := XXHash{}
	a := h.Hash([]byte("user:1234"))
	b := h.Hash([]byte("user:1234"))
	if a != b {
		t.Errorf("xxhash not stable across calls: %d != %d", a, b)
	}
}

func TestNewUnknownKind(t *testing.T) {
	if _, err := New("sha256"); err == nil {
		t.Errorf("expected error for unknown hash kind")
	}
}

func TestNewDefaultsToMD5(t *testing.T) {
	h, err := New("")
	if err != nil {
		t.Fatalf("New(\"\"): %v", err)
	}
	if _, ok := h.(MD5); !ok {
		t.Errorf("New(\"\") = %T, want MD5", h)
	}
}
