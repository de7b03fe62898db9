// Package triematch implements a compact double-array trie for byte-string
// prefix matching. Each node is a packed (base, check) unit and transitions are
// computed by XOR-ing the current position with the input byte, so lookups are
// a handful of array reads per input byte.
//
// A trie is built once (from key/id pairs or from a serialized blob) and is
// read-only and safe for concurrent use afterwards.
package triematch

import (
	"encoding/binary"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var (
	// ErrCorrupt indicates the unit array references a position outside the
	// trie, which can only happen with a damaged or truncated blob.
	ErrCorrupt = errors.New("corrupt trie: traversal position out of bounds")

	// ErrBadBlob indicates a serialized trie blob failed verification.
	ErrBadBlob = errors.New("malformed trie blob")
)

// Unit layout, low to high bits: 8-bit transition label, 1 leaf flag,
// 23 bits of offset (XOR delta to the child base, or the leaf id when the
// unit is a value cell).
const (
	labelBits   = 8
	leafBit     = 1 << labelBits
	offsetShift = labelBits + 1

	// MaxValue is the largest id or offset a unit can carry.
	MaxValue = 1<<(32-offsetShift) - 1
)

// Match is a single prefix hit: the id stored for the key and the length of
// the consumed prefix.
type Match struct {
	ID     int
	Length int
}

// Trie is an immutable double-array trie.
type Trie struct {
	units  []uint32
	logger *zap.Logger
}

// Option configures a Trie.
type Option func(*Trie)

// WithLogger sets the logger used for diagnostics. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(t *Trie) { t.logger = logger }
}

// New wraps a raw unit array. The array is not copied; callers must not
// mutate it afterwards.
func New(units []uint32, opts ...Option) *Trie {
	t := &Trie{units: units, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Trie) label(pos uint32) byte   { return byte(t.units[pos]) }
func (t *Trie) hasLeaf(pos uint32) bool { return t.units[pos]&leafBit != 0 }
func (t *Trie) offset(pos uint32) uint32 {
	return t.units[pos] >> offsetShift
}

// Len returns the number of units.
func (t *Trie) Len() int { return len(t.units) }

// gatherPrefixMatches walks the trie over input, invoking fn for every prefix
// of input that is a stored key, in increasing length order.
func (t *Trie) gatherPrefixMatches(input string, fn func(Match)) error {
	if len(t.units) == 0 {
		t.logger.Warn("prefix match on empty trie, skipping")
		return nil
	}
	pos := t.offset(0)
	for i := 0; i < len(input); i++ {
		c := input[i]
		if c == 0 {
			// NUL is the string terminator, never a transition.
			break
		}
		pos ^= uint32(c)
		if pos >= uint32(len(t.units)) {
			// No such child; the trie is exhausted.
			break
		}
		if t.label(pos) != c {
			break
		}
		leaf := t.hasLeaf(pos)
		pos ^= t.offset(pos)
		if pos >= uint32(len(t.units)) {
			return fmt.Errorf("%w: position %d of %d", ErrCorrupt, pos, len(t.units))
		}
		if leaf {
			fn(Match{ID: int(t.offset(pos)), Length: i + 1})
		}
	}
	return nil
}

// FindAllPrefixMatches returns a match for every stored key that is a prefix
// of input, ordered by increasing prefix length. An empty trie yields an empty
// result.
func (t *Trie) FindAllPrefixMatches(input string) ([]Match, error) {
	var matches []Match
	if err := t.gatherPrefixMatches(input, func(m Match) {
		matches = append(matches, m)
	}); err != nil {
		return nil, err
	}
	return matches, nil
}

// LongestPrefixMatch returns the longest stored key that is a prefix of input.
// found is false when no stored key matches. Relies on gatherPrefixMatches
// discovering matches in increasing length order, so the last one wins.
func (t *Trie) LongestPrefixMatch(input string) (match Match, found bool, err error) {
	if err := t.gatherPrefixMatches(input, func(m Match) {
		match = m
		found = true
	}); err != nil {
		return Match{}, false, err
	}
	return match, found, nil
}

const blobMagic = "DAT1"

// Bytes serializes the trie to a little-endian blob suitable for embedding in
// a model file.
func (t *Trie) Bytes() []byte {
	buf := make([]byte, 0, len(blobMagic)+4+4*len(t.units))
	buf = append(buf, blobMagic...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(t.units)))
	for _, unit := range t.units {
		buf = binary.LittleEndian.AppendUint32(buf, unit)
	}
	return buf
}

// FromBytes deserializes a blob written by Bytes, verifying structure before
// any unit is read.
func FromBytes(blob []byte, opts ...Option) (*Trie, error) {
	if len(blob) < len(blobMagic)+4 {
		return nil, fmt.Errorf("%w: truncated header", ErrBadBlob)
	}
	if string(blob[:len(blobMagic)]) != blobMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrBadBlob)
	}
	count := binary.LittleEndian.Uint32(blob[len(blobMagic):])
	body := blob[len(blobMagic)+4:]
	if uint32(len(body)) != count*4 {
		return nil, fmt.Errorf("%w: want %d units, have %d bytes", ErrBadBlob, count, len(body))
	}
	units := make([]uint32, count)
	for i := range units {
		units[i] = binary.LittleEndian.Uint32(body[i*4:])
	}
	return New(units, opts...), nil
}
