// Package resp reads pipelined Redis requests off a client connection,
// extracts routing keys per a command's key schema, and writes ordered
// replies back.
package resp

import "bytes"

// Message is one client request: a command name plus its arguments, as read
// off the wire. Args[0] is always the command name. Immutable after
// construction.
type Message struct {
	Args   [][]byte
	Inline bool
}

// Command returns the upper-cased command name, or "" for an empty inline
// line (which callers should skip).
func (m Message) Command() string {
	if len(m.Args) == 0 {
		return ""
	}
	return upper(m.Args[0])
}

// IsInline reports whether this request arrived as an inline command rather
// than a RESP multi-bulk array.
func (m Message) IsInline() bool {
	return m.Inline
}

// RoutingKeys returns the keys this command touches, per the static
// key-schema table in commands.go. A no-key command (PING, INFO, ...)
// returns nil. A single-key command returns one element; a multi-key
// command (MGET, MSET, DEL, ...) returns one per key, in command order.
func (m Message) RoutingKeys() [][]byte {
	return keysFor(m)
}

// IsWrite reports whether this command mutates backend state, per the
// static write-command table.
func (m Message) IsWrite() bool {
	return writeCommands[m.Command()]
}

func upper(b []byte) string {
	out := make([]byte, len(b))
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}

// Equal reports whether two messages carry the same command and arguments;
// used in tests.
func (m Message) Equal(other Message) bool {
	if len(m.Args) != len(other.Args) {
		return false
	}
	for i := range m.Args {
		if !bytes.Equal(m.Args[i], other.Args[i]) {
			return false
		}
	}
	return true
}
