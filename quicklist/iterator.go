package quicklist

import (
	"strconv"

	"github.com/hupe1980/storecore/internal/listpack"
)

// Entry is a borrowed view of one element inside a node. It stays valid
// until the next mutation of the list or release of the iterator that
// produced it. Byte values alias node storage; callers that need the
// bytes past the borrow must copy them.
type Entry struct {
	// Node is the segment holding the element.
	Node *Node
	// Value holds the element's bytes; nil when the element is an
	// integer.
	Value []byte
	// LongVal holds the element's value when IsInt is set.
	LongVal int64
	// IsInt reports an integer element.
	IsInt bool
	// Offset is the element's position within Node, negative when the
	// element was reached from the tail.
	Offset int

	list *List
}

// Equal compares the entry's element against data, matching integer
// elements by numeric value.
func (e *Entry) Equal(data []byte) bool {
	if e.IsInt {
		iv, ok := listpack.AsInt(data)
		return ok && iv == e.LongVal
	}
	return string(e.Value) == string(data)
}

func formatInt(v int64) string {
	return strconv.FormatInt(v, 10)
}

// Iterator is a directional cursor over a List. It holds at most one
// transiently-decompressed node and must be released to restore that
// node's compression; mutating the list through anything but the
// iterator's own DelEntry/Insert/Replace operations invalidates it.
type Iterator struct {
	list      *List
	current   *Node
	offset    int
	direction int

	// primed is set once the current offset has produced an element;
	// Next advances past it first. A cleared flag makes Next re-seek
	// the same offset, which is how deletions hand the cursor its
	// follower.
	primed bool
}

// GetIterator returns a cursor positioned before the first element
// (direction Head) or after the last (direction Tail).
func (l *List) GetIterator(direction int) *Iterator {
	it := &Iterator{list: l, direction: direction}
	if direction == Head {
		it.current = l.head
		it.offset = 0
	} else {
		it.current = l.tail
		it.offset = -1
	}
	return it
}

// GetIteratorAtIdx returns a cursor whose first Next yields the element
// at the global index idx, iterating in the given direction afterward.
// Negative indices count from the tail. Out-of-range indices return
// nil.
func (l *List) GetIteratorAtIdx(direction int, idx int) *Iterator {
	forward := idx >= 0
	index := idx
	if !forward {
		index = -idx - 1
	}
	if index >= l.count {
		return nil
	}

	// Walk whole nodes from the end idx counts from, using their counts.
	n := l.head
	if !forward {
		n = l.tail
	}
	accum := 0
	for n != nil {
		if accum+n.count > index {
			break
		}
		accum += n.count
		if forward {
			n = n.next
		} else {
			n = n.prev
		}
	}
	if n == nil {
		return nil
	}

	it := l.GetIterator(direction)
	it.current = n
	// Position within n counted from the node's head, then expressed in
	// the frame of the iteration direction (negative from the tail).
	pos := index - accum
	if !forward {
		pos = n.count - 1 - pos
	}
	if direction == Head {
		it.offset = pos
	} else {
		it.offset = pos - n.count
	}
	return it
}

// GetIteratorEntryAtIdx seeks idx and fills entry with the element
// there, returning the iterator (or nil when idx is out of range). The
// iterator continues toward the tail.
func (l *List) GetIteratorEntryAtIdx(idx int, entry *Entry) *Iterator {
	it := l.GetIteratorAtIdx(Head, idx)
	if it == nil {
		return nil
	}
	if !it.Next(entry) {
		it.Release()
		return nil
	}
	return it
}

// Next advances one element, filling entry. It returns false once the
// traversal is exhausted. Crossing a node boundary restores the vacated
// node's compression and decompresses the entered one.
func (it *Iterator) Next(entry *Entry) bool {
	*entry = Entry{list: it.list}

	for it.current != nil {
		n := it.current
		it.list.decompressNodeForUse(n)

		if !it.primed {
			it.primed = true
		} else if it.direction == Head {
			it.offset++
		} else {
			it.offset--
		}

		off := it.offset
		if off < 0 {
			off += n.count
		}
		if off >= 0 && off < n.count {
			entry.Node = n
			entry.Offset = it.offset
			if n.container == containerPlain {
				entry.Value = n.payload
			} else {
				data, iv, isInt, _ := listpack.Get(n.payload, off)
				if isInt {
					entry.LongVal = iv
					entry.IsInt = true
				} else {
					entry.Value = data
				}
			}
			return true
		}

		// Node exhausted: restore its compression and enter the next
		// one.
		it.list.compressTransition(n)
		if it.direction == Head {
			it.current = n.next
			it.offset = 0
		} else {
			it.current = n.prev
			it.offset = -1
		}
		it.primed = false
	}
	return false
}

// SetDirection reverses the cursor without repositioning: the next Next
// moves the opposite way from the current element.
func (it *Iterator) SetDirection(direction int) {
	if it.direction == direction {
		return
	}
	it.direction = direction
	// Flip the offset's frame of reference so the current position
	// keeps addressing the same element.
	if it.current != nil && it.primed {
		if it.offset < 0 {
			it.offset += it.current.count
		} else {
			it.offset -= it.current.count
		}
	}
}

// Release ends the borrow, restoring the current node's compression
// when the traversal left it transiently decompressed.
func (it *Iterator) Release() {
	if it.current != nil {
		it.list.compressTransition(it.current)
	}
	it.current = nil
	it.list = nil
}
