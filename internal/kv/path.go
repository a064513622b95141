package kv

import (
	"bytes"
	"fmt"
	"strings"
)

const (
	segTerm   = 0x00
	segEscape = 0x01
)

// Path addresses a node in a Tree. Each element is one level.
type Path []string

// P builds a Path from its segments.
func P(segments ...string) Path {
	return Path(segments)
}

// Child returns a new path extended by segments. The receiver is not modified.
func (p Path) Child(segments ...string) Path {
	out := make(Path, 0, len(p)+len(segments))
	out = append(out, p...)
	return append(out, segments...)
}

// String renders the path dotted, for logs.
func (p Path) String() string {
	return strings.Join(p, ".")
}

// encodePath returns the backend key for p.
func encodePath(p Path) []byte {
	var buf bytes.Buffer
	for _, seg := range p {
		for i := 0; i < len(seg); i++ {
			switch c := seg[i]; c {
			case segTerm:
				buf.WriteByte(segEscape)
				buf.WriteByte(0x01)
			case segEscape:
				buf.WriteByte(segEscape)
				buf.WriteByte(0x02)
			default:
				buf.WriteByte(c)
			}
		}
		buf.WriteByte(segTerm)
	}
	return buf.Bytes()
}

// decodeSegments splits an encoded key (or key suffix) into segments.
func decodeSegments(key []byte) (Path, error) {
	var (
		out Path
		seg []byte
	)
	for i := 0; i < len(key); i++ {
		switch c := key[i]; c {
		case segTerm:
			out = append(out, string(seg))
			seg = seg[:0]
		case segEscape:
			if i+1 >= len(key) {
				return nil, fmt.Errorf("truncated escape in key %q", key)
			}
			i++
			switch key[i] {
			case 0x01:
				seg = append(seg, segTerm)
			case 0x02:
				seg = append(seg, segEscape)
			default:
				return nil, fmt.Errorf("invalid escape 0x%02x in key %q", key[i], key)
			}
		default:
			seg = append(seg, c)
		}
	}
	if len(seg) > 0 {
		return nil, fmt.Errorf("unterminated segment in key %q", key)
	}
	return out, nil
}
