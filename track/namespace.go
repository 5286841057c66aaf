package track

import (
	"bytes"
	"encoding/binary"
	"strings"
)

// Namespace is an immutable hierarchical track name.
type Namespace struct {
	parts [][]byte
}

// NewNamespace builds a namespace from text parts.
func NewNamespace(parts ...string) Namespace {
	ns := Namespace{parts: make([][]byte, len(parts))}
	for i, p := range parts {
		ns.parts[i] = []byte(p)
	}
	return ns
}

// NamespaceFromBytes builds a namespace from raw parts. The parts are copied.
func NamespaceFromBytes(parts ...[]byte) Namespace {
	ns := Namespace{parts: make([][]byte, len(parts))}
	for i, p := range parts {
		ns.parts[i] = bytes.Clone(p)
		if ns.parts[i] == nil {
			ns.parts[i] = []byte{}
		}
	}
	return ns
}

// ParseNamespace splits s on '/'.
func ParseNamespace(s string) Namespace {
	if s == "" {
		return Namespace{}
	}
	return NewNamespace(strings.Split(s, "/")...)
}

// Len returns the number of parts.
func (n Namespace) Len() int {
	return len(n.parts)
}

// Part returns a copy of the i-th part.
func (n Namespace) Part(i int) []byte {
	return bytes.Clone(n.parts[i])
}

// Parts returns copies of all parts.
func (n Namespace) Parts() [][]byte {
	out := make([][]byte, len(n.parts))
	for i, p := range n.parts {
		out[i] = bytes.Clone(p)
	}
	return out
}

// Equal reports element-wise equality.
func (n Namespace) Equal(o Namespace) bool {
	if len(n.parts) != len(o.parts) {
		return false
	}
	for i := range n.parts {
		if !bytes.Equal(n.parts[i], o.parts[i]) {
			return false
		}
	}
	return true
}

// HasPrefix reports whether prefix matches the leading parts of n.
func (n Namespace) HasPrefix(prefix Namespace) bool {
	if len(prefix.parts) > len(n.parts) {
		return false
	}
	for i := range prefix.parts {
		if !bytes.Equal(n.parts[i], prefix.parts[i]) {
			return false
		}
	}
	return true
}

func (n Namespace) String() string {
	var b strings.Builder
	for i, p := range n.parts {
		if i > 0 {
			b.WriteByte('/')
		}
		b.Write(p)
	}
	return b.String()
}

// Encode returns the boundary form: a u32 part count followed by
// length-prefixed parts, little endian.
func (n Namespace) Encode() []byte {
	size := 4
	for _, p := range n.parts {
		size += 4 + len(p)
	}
	buf := make([]byte, 0, size)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(n.parts)))
	for _, p := range n.parts {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(p)))
		buf = append(buf, p...)
	}
	return buf
}
