package resp

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReplyKind distinguishes the five RESP2 reply shapes.
type ReplyKind int

const (
	KindSimpleString ReplyKind = iota
	KindError
	KindInteger
	KindBulkString
	KindArray
)

// Reply is one RESP2-encodable value. Nil is a distinct bulk-string/array
// state (RESP2's "$-1\r\n" / "*-1\r\n"), tracked via Null rather than a nil
// Go slice so a zero-length bulk string can't be confused with a missing
// key.
type Reply struct {
	Kind  ReplyKind
	Str   string
	Int   int64
	Bulk  []byte
	Null  bool
	Array []Reply
}

// OK is the canonical "+OK\r\n" reply most write commands return.
var OK = Reply{Kind: KindSimpleString, Str: "OK"}

// NilBulk is a RESP2 null bulk string, returned for a missing key.
var NilBulk = Reply{Kind: KindBulkString, Null: true}

// BackendUnavailable is the canonical reply for a request that could not
// reach its backend: an I/O failure, a timeout, a malformed backend reply,
// or a backend that is currently cooling off. The wire text is fixed so
// clients can match on it regardless of the underlying cause.
var BackendUnavailable = Reply{Kind: KindError, Str: "ERR backend unavailable"}

// NoBackendAvailable is returned in place of BackendUnavailable when a
// pool has no healthy backend left to route to at all.
var NoBackendAvailable = Reply{Kind: KindError, Str: "ERR no backend available"}

// ErrorReply builds an error reply from a pre-formatted message. Callers
// are responsible for supplying a complete Redis-style error string
// (e.g. "ERR ..."); unlike real Redis, this does not inject an error-code
// word of its own.
func ErrorReply(format string, args ...interface{}) Reply {
	return Reply{Kind: KindError, Str: fmt.Sprintf(format, args...)}
}

// FromCmd converts a go-redis Cmder's result into a Reply, translating
// redis.Nil into a null bulk/array and any other error — an I/O failure,
// a timeout, or a malformed backend reply alike — into the canonical
// BackendUnavailable reply rather than leaking the underlying Go error
// text to the client.
func FromCmd(cmd redis.Cmder) Reply {
	if err := cmd.Err(); err != nil {
		if err == redis.Nil {
			return NilBulk
		}
		return BackendUnavailable
	}

	switch c := cmd.(type) {
	case *redis.StringCmd:
		return Reply{Kind: KindBulkString, Bulk: []byte(c.Val())}
	case *redis.IntCmd:
		return Reply{Kind: KindInteger, Int: c.Val()}
	case *redis.StatusCmd:
		return Reply{Kind: KindSimpleString, Str: c.Val()}
	case *redis.SliceCmd:
		return arrayFromSlice(c.Val())
	case *redis.StringSliceCmd:
		vals := c.Val()
		arr := make([]Reply, len(vals))
		for i, v := range vals {
			arr[i] = Reply{Kind: KindBulkString, Bulk: []byte(v)}
		}
		return Reply{Kind: KindArray, Array: arr}
	case *redis.FloatCmd:
		return Reply{Kind: KindBulkString, Bulk: []byte(strconv.FormatFloat(c.Val(), 'g', -1, 64))}
	case *redis.BoolCmd:
		if c.Val() {
			return Reply{Kind: KindInteger, Int: 1}
		}
		return Reply{Kind: KindInteger, Int: 0}
	case *redis.DurationCmd:
		return Reply{Kind: KindInteger, Int: secondsFromDuration(c.Val())}
	case *redis.MapStringStringCmd:
		return arrayFromMap(c.Val())
	default:
		// Fallback for command types without a dedicated case above: render
		// via the generic Cmd result.
		if g, ok := cmd.(*redis.Cmd); ok {
			return fromGeneric(g.Val())
		}
		return ErrorReply("ERR unsupported reply type %T", cmd)
	}
}

func fromGeneric(v interface{}) Reply {
	switch val := v.(type) {
	case nil:
		return NilBulk
	case string:
		return Reply{Kind: KindBulkString, Bulk: []byte(val)}
	case int64:
		return Reply{Kind: KindInteger, Int: val}
	case []interface{}:
		return arrayFromSlice(val)
	default:
		return Reply{Kind: KindBulkString, Bulk: []byte(fmt.Sprintf("%v", val))}
	}
}

func arrayFromSlice(vals []interface{}) Reply {
	arr := make([]Reply, len(vals))
	for i, v := range vals {
		arr[i] = fromGeneric(v)
	}
	return Reply{Kind: KindArray, Array: arr}
}

// arrayFromMap flattens a hash's field/value pairs into the RESP array
// HGETALL's reply shape requires; map iteration order is arbitrary but
// Redis itself makes no field-ordering guarantee either.
func arrayFromMap(m map[string]string) Reply {
	arr := make([]Reply, 0, len(m)*2)
	for field, val := range m {
		arr = append(arr, Reply{Kind: KindBulkString, Bulk: []byte(field)})
		arr = append(arr, Reply{Kind: KindBulkString, Bulk: []byte(val)})
	}
	return Reply{Kind: KindArray, Array: arr}
}

// secondsFromDuration recovers the integer-seconds TTL reply from a
// DurationCmd's value. go-redis multiplies a positive raw reply by
// precision (time.Second for TTL) but leaves the -1/-2 sentinels
// (no expiry / key missing) as a literal, unmultiplied value.
func secondsFromDuration(d time.Duration) int64 {
	if d < 0 {
		return int64(d)
	}
	return int64(d / time.Second)
}

// Writer encodes ordered replies back to a client connection, buffering
// writes for a batch and flushing once — the proxy calls Flush only after
// the whole ready prefix of a pipeline has been written, not per reply.
type Writer struct {
	bw *bufio.Writer
}

// NewWriter wraps w for reply encoding.
func NewWriter(w io.Writer) *Writer {
	return &Writer{bw: bufio.NewWriter(w)}
}

// Write encodes and buffers one reply.
func (w *Writer) Write(r Reply) error {
	switch r.Kind {
	case KindSimpleString:
		_, err := fmt.Fprintf(w.bw, "+%s\r\n", r.Str)
		return err
	case KindError:
		_, err := fmt.Fprintf(w.bw, "-%s\r\n", r.Str)
		return err
	case KindInteger:
		_, err := fmt.Fprintf(w.bw, ":%d\r\n", r.Int)
		return err
	case KindBulkString:
		if r.Null {
			_, err := w.bw.WriteString("$-1\r\n")
			return err
		}
		if _, err := fmt.Fprintf(w.bw, "$%d\r\n", len(r.Bulk)); err != nil {
			return err
		}
		if _, err := w.bw.Write(r.Bulk); err != nil {
			return err
		}
		_, err := w.bw.WriteString("\r\n")
		return err
	case KindArray:
		if r.Null {
			_, err := w.bw.WriteString("*-1\r\n")
			return err
		}
		if _, err := fmt.Fprintf(w.bw, "*%d\r\n", len(r.Array)); err != nil {
			return err
		}
		for _, elem := range r.Array {
			if err := w.Write(elem); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("resp: unknown reply kind %d", r.Kind)
	}
}

// Flush pushes any buffered replies out to the connection.
func (w *Writer) Flush() error {
	return w.bw.Flush()
}
