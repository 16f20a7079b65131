package resp

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

func TestReaderMultiBulk(t *testing.T) {
	raw := "*3\r\n$3\r\nSET\r\n$3\r\nfoo\r\n$3\r\nbar\r\n"
	r := NewReader(bytes.NewBufferString(raw))

	msg, err := r.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	want := Message{Args: [][]byte{[]byte("SET"), []byte("foo"), []byte("bar")}}
	if !msg.Equal(want) {
		t.Errorf("got %+v, want %+v", msg, want)
	}
	if msg.Command() != "SET" {
		t.Errorf("Command() = %q, want SET", msg.Command())
	}
}

func TestReaderInline(t *testing.T) {
	r := NewReader(bytes.NewBufferString("PING\r\n"))
	msg, err := r.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if !msg.IsInline() {
		t.Errorf("expected inline message")
	}
	if msg.Command() != "PING" {
		t.Errorf("Command() = %q, want PING", msg.Command())
	}
}

func TestReaderEmptyOnCleanClose(t *testing.T) {
	r := NewReader(bytes.NewBufferString(""))
	_, err := r.ReadMessage()
	if !errors.Is(err, ErrEmpty) {
		t.Fatalf("got %v, want ErrEmpty", err)
	}
}

func TestReaderProtocolErrorMidRequest(t *testing.T) {
	r := NewReader(bytes.NewBufferString("*2\r\n$3\r\nGET\r\n"))
	_, err := r.ReadMessage()
	var protoErr *ProtocolError
	if !errors.As(err, &protoErr) {
		t.Fatalf("got %v, want *ProtocolError", err)
	}
}

func TestReadBatchDrainsBuffered(t *testing.T) {
	raw := "*1\r\n$4\r\nPING\r\n*1\r\n$4\r\nPING\r\n*1\r\n$4\r\nPING\r\n"
	r := NewReader(bytes.NewBufferString(raw))

	batch, err := r.ReadBatch(128)
	if err != nil {
		t.Fatalf("ReadBatch: %v", err)
	}
	if len(batch) != 3 {
		t.Fatalf("got %d messages, want 3", len(batch))
	}
}

func TestReadBatchRespectsMax(t *testing.T) {
	raw := "*1\r\n$4\r\nPING\r\n*1\r\n$4\r\nPING\r\n*1\r\n$4\r\nPING\r\n"
	r := NewReader(bytes.NewBufferString(raw))

	batch, err := r.ReadBatch(2)
	if err != nil {
		t.Fatalf("ReadBatch: %v", err)
	}
	if len(batch) != 2 {
		t.Fatalf("got %d messages, want 2", len(batch))
	}
}

func TestRoutingKeysSingleAndMulti(t *testing.T) {
	get := Message{Args: [][]byte{[]byte("GET"), []byte("k1")}}
	if keys := get.RoutingKeys(); len(keys) != 1 || string(keys[0]) != "k1" {
		t.Errorf("GET routing keys = %v", keys)
	}

	mget := Message{Args: [][]byte{[]byte("MGET"), []byte("k1"), []byte("k2"), []byte("k3")}}
	keys := mget.RoutingKeys()
	if len(keys) != 3 {
		t.Fatalf("MGET routing keys = %v, want 3", keys)
	}

	mset := Message{Args: [][]byte{[]byte("MSET"), []byte("k1"), []byte("v1"), []byte("k2"), []byte("v2")}}
	keys = mset.RoutingKeys()
	if len(keys) != 2 || string(keys[0]) != "k1" || string(keys[1]) != "k2" {
		t.Errorf("MSET routing keys = %v", keys)
	}

	ping := Message{Args: [][]byte{[]byte("PING")}}
	if !ping.IsLocal() {
		t.Errorf("PING should be local")
	}
}

func TestIsWrite(t *testing.T) {
	set := Message{Args: [][]byte{[]byte("SET"), []byte("k"), []byte("v")}}
	if !set.IsWrite() {
		t.Errorf("SET should be a write command")
	}
	get := Message{Args: [][]byte{[]byte("GET"), []byte("k")}}
	if get.IsWrite() {
		t.Errorf("GET should not be a write command")
	}
}

func TestSecondsFromDuration(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want int64
	}{
		{30 * time.Second, 30},
		{time.Duration(-1), -1}, // no expiry sentinel
		{time.Duration(-2), -2}, // missing key sentinel
	}
	for _, c := range cases {
		if got := secondsFromDuration(c.in); got != c.want {
			t.Errorf("secondsFromDuration(%v) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestArrayFromMap(t *testing.T) {
	r := arrayFromMap(map[string]string{"f1": "v1"})
	if r.Kind != KindArray || len(r.Array) != 2 {
		t.Fatalf("got %+v, want a 2-element array", r)
	}
	if string(r.Array[0].Bulk) != "f1" || string(r.Array[1].Bulk) != "v1" {
		t.Errorf("got %+v, want [f1 v1]", r.Array)
	}
}

func TestWriterEncodesReplies(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	if err := w.Write(OK); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Write(Reply{Kind: KindInteger, Int: 42}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Write(NilBulk); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	want := "+OK\r\n:42\r\n$-1\r\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestWriterEncodesArray(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	arr := Reply{Kind: KindArray, Array: []Reply{
		{Kind: KindBulkString, Bulk: []byte("a")},
		{Kind: KindBulkString, Null: true},
	}}
	if err := w.Write(arr); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	want := "*2\r\n$1\r\na\r\n$-1\r\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}
