package triematch

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrBadEntry indicates a key/id pair that cannot be stored: empty key,
	// NUL byte in the key, id out of range, or a duplicate key.
	ErrBadEntry = errors.New("invalid trie entry")

	// ErrTooLarge indicates the key set does not fit the unit encoding.
	ErrTooLarge = errors.New("trie too large for unit encoding")
)

// Entry is a key with its associated id.
type Entry struct {
	Key string
	ID  int
}

type buildNode struct {
	children map[byte]*buildNode
	id       int
	hasValue bool
	base     uint32
}

// Build constructs a trie from key/id pairs. Keys must be non-empty and free
// of NUL bytes; ids must fit in [0, MaxValue]; duplicate keys are rejected.
func Build(entries []Entry, opts ...Option) (*Trie, error) {
	root := &buildNode{}
	for _, entry := range entries {
		if entry.Key == "" {
			return nil, fmt.Errorf("%w: empty key", ErrBadEntry)
		}
		if entry.ID < 0 || entry.ID > MaxValue {
			return nil, fmt.Errorf("%w: id %d out of range for key %q", ErrBadEntry, entry.ID, entry.Key)
		}
		node := root
		for i := 0; i < len(entry.Key); i++ {
			c := entry.Key[i]
			if c == 0 {
				return nil, fmt.Errorf("%w: NUL byte in key %q", ErrBadEntry, entry.Key)
			}
			if node.children == nil {
				node.children = make(map[byte]*buildNode)
			}
			child, ok := node.children[c]
			if !ok {
				child = &buildNode{}
				node.children[c] = child
			}
			node = child
		}
		if node.hasValue {
			return nil, fmt.Errorf("%w: duplicate key %q", ErrBadEntry, entry.Key)
		}
		node.hasValue = true
		node.id = entry.ID
	}
	if len(root.children) == 0 {
		return New(nil, opts...), nil
	}

	units, err := assignUnits(root)
	if err != nil {
		return nil, err
	}
	return New(units, opts...), nil
}

// assignUnits places every node at an XOR-consistent base and packs the unit
// array. Child slots live at base^label; a node's value cell lives at its own
// base, which is where a leaf transition lands.
func assignUnits(root *buildNode) ([]uint32, error) {
	used := map[uint32]bool{0: true} // unit 0 is the root header
	var maxPos uint32

	reserve := func(pos uint32) {
		used[pos] = true
		if pos > maxPos {
			maxPos = pos
		}
	}

	// Breadth-first so parents get low bases and the array stays compact.
	queue := []*buildNode{root}
	var order []*buildNode
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)

		labels := sortedLabels(node)
	search:
		for base := uint32(1); ; base++ {
			if base > MaxValue {
				return nil, ErrTooLarge
			}
			if node.hasValue && used[base] {
				continue
			}
			for _, c := range labels {
				if used[base^uint32(c)] {
					continue search
				}
			}
			node.base = base
			if node.hasValue {
				reserve(base)
			}
			if base > maxPos {
				maxPos = base
			}
			for _, c := range labels {
				reserve(base ^ uint32(c))
			}
			break
		}
		for _, c := range labels {
			queue = append(queue, node.children[c])
		}
	}

	units := make([]uint32, maxPos+1)
	units[0] = root.base << offsetShift
	for _, node := range order {
		if node.hasValue {
			units[node.base] = uint32(node.id) << offsetShift
		}
		for _, c := range sortedLabels(node) {
			child := node.children[c]
			slot := node.base ^ uint32(c)
			delta := slot ^ child.base
			if delta > MaxValue {
				return nil, ErrTooLarge
			}
			unit := uint32(c) | delta<<offsetShift
			if child.hasValue {
				unit |= leafBit
			}
			units[slot] = unit
		}
	}
	return units, nil
}

func sortedLabels(node *buildNode) []byte {
	labels := make([]byte, 0, len(node.children))
	for c := range node.children {
		labels = append(labels, c)
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i] < labels[j] })
	return labels
}
