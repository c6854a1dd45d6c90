// Package quicklist implements a doubly-linked list of packed-array
// segments with transparent compression of cold interior segments.
//
// Small items are packed many-per-node into a compact byte encoding;
// items above a size threshold get a node of their own. Nodes beyond a
// configurable distance from both ends are kept compressed, trading CPU
// on rare mid-list access for memory on long lists.
//
// Lists are single-writer structures: the host must serialize all calls
// to one instance. Distinct instances are fully independent.
package quicklist

import (
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/hupe1980/storecore/internal/blockpack"
	"github.com/hupe1980/storecore/internal/listpack"
)

// Ends of the list, used both as push/pop targets and as iteration
// starting points.
const (
	Head = 0
	Tail = -1
)

// Codec selects the node compression algorithm.
type Codec = blockpack.Codec

// Node compression codecs.
const (
	CodecLZ4  = blockpack.CodecLZ4
	CodecZSTD = blockpack.CodecZSTD
)

const (
	fillMin = -5
	fillMax = 1 << 15

	compressMax = (1 << 16) - 1

	// defaultPackedThreshold is the size past which an item gets a
	// plain node of its own.
	defaultPackedThreshold = 1 << 10
)

var (
	// ErrBookmarkExists is returned when creating a bookmark under a
	// taken name.
	ErrBookmarkExists = errors.New("quicklist: bookmark already exists")
	// ErrNoSuchBookmark is returned when deleting an unknown bookmark.
	ErrNoSuchBookmark = errors.New("quicklist: no such bookmark")
	// ErrTooManyBookmarks is returned once the bookmark table is full.
	ErrTooManyBookmarks = errors.New("quicklist: too many bookmarks")
	// ErrThresholdTooLarge is returned by SetPackedThreshold for
	// unreasonable sizes.
	ErrThresholdTooLarge = errors.New("quicklist: packed threshold too large")
)

// packedThreshold is the process-wide default plain-item threshold,
// overridable per list with WithPackedThreshold.
var packedThreshold atomic.Int64

func init() {
	packedThreshold.Store(defaultPackedThreshold)
}

// SetPackedThreshold changes the process-wide plain-item threshold.
// Zero restores the default. Thresholds of 1 GiB or more are rejected.
func SetPackedThreshold(sz int) error {
	if sz >= 1<<30 {
		return ErrThresholdTooLarge
	}
	if sz == 0 {
		sz = defaultPackedThreshold
	}
	packedThreshold.Store(int64(sz))
	return nil
}

type options struct {
	logger          *slog.Logger
	codec           Codec
	packedThreshold int
}

// Option configures a List at construction time.
type Option func(*options)

// WithLogger configures structured logging for node lifecycle events.
// Pass nil to disable logging.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithCodec selects the node compression codec. The default is LZ4.
func WithCodec(codec Codec) Option {
	return func(o *options) {
		o.codec = codec
	}
}

// WithPackedThreshold overrides the process-wide plain-item threshold
// for this list.
func WithPackedThreshold(sz int) Option {
	return func(o *options) {
		if sz > 0 {
			o.packedThreshold = sz
		}
	}
}

// List is a quicklist: a doubly-linked chain of packed-array nodes.
type List struct {
	head, tail *Node
	count      int // total elements across all nodes
	nodes      int // number of nodes

	fill            int
	compress        int
	codec           Codec
	packedThreshold int
	logger          *slog.Logger

	bookmarks []bookmark
}

// Create returns an empty list with the default fill (-2, an 8 KiB
// per-node byte budget) and compression disabled.
func Create(optFns ...Option) *List {
	return New(-2, 0, optFns...)
}

// New returns an empty list. fill >= 0 caps each node's element count;
// fill < 0 selects a per-node byte budget (-1 is 4 KiB through -5 at
// 64 KiB). compress is the number of nodes at each end left
// uncompressed; 0 disables compression.
func New(fill, compress int, optFns ...Option) *List {
	o := options{
		logger:          slog.New(slog.DiscardHandler),
		codec:           CodecLZ4,
		packedThreshold: int(packedThreshold.Load()),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}

	l := &List{
		codec:           o.codec,
		packedThreshold: o.packedThreshold,
		logger:          o.logger,
	}
	l.SetFill(fill)
	l.SetCompressDepth(compress)
	return l
}

// Count returns the total number of elements.
func (l *List) Count() int { return l.count }

// Len returns the number of nodes.
func (l *List) Len() int { return l.nodes }

// HeadNode returns the first node, or nil when the list is empty.
func (l *List) HeadNode() *Node { return l.head }

// TailNode returns the last node, or nil when the list is empty.
func (l *List) TailNode() *Node { return l.tail }

// SetFill changes the fill policy applied to subsequent inserts;
// existing nodes are not repacked. Values are clamped to the supported
// range.
func (l *List) SetFill(fill int) {
	if fill > fillMax {
		fill = fillMax
	} else if fill < fillMin {
		fill = fillMin
	}
	l.fill = fill
}

// SetCompressDepth changes the compression depth and immediately
// re-establishes the compression windows across the whole list.
func (l *List) SetCompressDepth(depth int) {
	if depth > compressMax {
		depth = compressMax
	} else if depth < 0 {
		depth = 0
	}
	l.compress = depth

	if depth == 0 {
		for n := l.head; n != nil; n = n.next {
			l.decompressNode(n)
		}
		return
	}
	i := 0
	for n := l.head; n != nil; n = n.next {
		if i < depth || i >= l.nodes-depth {
			l.decompressNode(n)
		} else {
			l.compressNode(n)
		}
		i++
	}
}

// SetOptions sets fill and compression depth together.
func (l *List) SetOptions(fill, depth int) {
	l.SetFill(fill)
	l.SetCompressDepth(depth)
}

// PushHead prepends value, reporting whether a new head node was
// created.
func (l *List) PushHead(value []byte) bool {
	origHead := l.head
	if l.isLargeElement(len(value)) {
		l.insertPlainNode(l.head, value, false)
		return true
	}

	if l.allowInsert(l.head, len(value)) {
		l.head.payload = listpack.AppendHead(l.head.payload, value)
		l.head.count++
		l.head.updateSz()
	} else {
		n := newNode()
		n.payload = listpack.AppendHead(listpack.New(), value)
		n.count = 1
		n.updateSz()
		l.insertNode(l.head, n, false)
	}
	l.count++
	return l.head != origHead
}

// PushTail appends value, reporting whether a new tail node was
// created.
func (l *List) PushTail(value []byte) bool {
	origTail := l.tail
	if l.isLargeElement(len(value)) {
		l.insertPlainNode(l.tail, value, true)
		return true
	}

	if l.allowInsert(l.tail, len(value)) {
		l.tail.payload = listpack.AppendTail(l.tail.payload, value)
		l.tail.count++
		l.tail.updateSz()
	} else {
		n := newNode()
		n.payload = listpack.AppendTail(listpack.New(), value)
		n.count = 1
		n.updateSz()
		l.insertNode(l.tail, n, true)
	}
	l.count++
	return l.tail != origTail
}

// Push adds value at the given end.
func (l *List) Push(value []byte, where int) {
	if where == Head {
		l.PushHead(value)
	} else {
		l.PushTail(value)
	}
}

// insertPlainNode wedges a plain node holding value next to old.
func (l *List) insertPlainNode(old *Node, value []byte, after bool) {
	n := newPlainNode(value)
	l.insertNode(old, n, after)
	l.count++
}

// AppendListpack takes ownership of an externally built listpack as a
// new tail node.
func (l *List) AppendListpack(lp []byte) {
	n := newNode()
	n.payload = lp
	n.count = listpack.Count(lp)
	n.updateSz()

	l.insertNode(l.tail, n, true)
	l.count += n.count
}

// AppendPlainNode takes ownership of a single large item as a new tail
// node.
func (l *List) AppendPlainNode(data []byte) {
	l.insertPlainNode(l.tail, data, true)
}

// InsertBefore places value immediately before the entry's position.
func (l *List) InsertBefore(it *Iterator, entry *Entry, value []byte) {
	l.insert(it, entry, value, false)
}

// InsertAfter places value immediately after the entry's position.
func (l *List) InsertAfter(it *Iterator, entry *Entry, value []byte) {
	l.insert(it, entry, value, true)
}

// insert is the shared path of InsertBefore and InsertAfter.
func (l *List) insert(it *Iterator, entry *Entry, value []byte, after bool) {
	sz := len(value)
	node := entry.Node

	if node == nil {
		// No anchor: the list is empty.
		if l.isLargeElement(sz) {
			l.insertPlainNode(l.tail, value, after)
			return
		}
		n := newNode()
		n.payload = listpack.AppendTail(listpack.New(), value)
		n.count = 1
		n.updateSz()
		l.insertNode(nil, n, after)
		l.count++
		return
	}

	full := !l.allowInsert(node, sz)
	off := entry.Offset
	if off < 0 {
		off += node.count
	}

	atTail := after && off == node.count-1
	atHead := !after && off == 0
	fullNext := atTail && !l.allowInsert(node.next, sz)
	fullPrev := atHead && !l.allowInsert(node.prev, sz)

	if l.isLargeElement(sz) {
		if node.container == containerPlain || atTail || atHead {
			l.insertPlainNode(node, value, after)
			return
		}
		// Split the packed node and wedge the plain node between the
		// halves.
		l.decompressNodeForUse(node)
		split := l.splitNode(node, off, after)
		pn := newPlainNode(value)
		l.insertNode(node, pn, after)
		l.insertNode(pn, split, after)
		l.count++
		return
	}

	switch {
	case !full && after:
		l.decompressNodeForUse(node)
		node.payload = listpack.Insert(node.payload, off+1, value)
		node.count++
		node.updateSz()
		l.compressTransition(node)

	case !full && !after:
		l.decompressNodeForUse(node)
		node.payload = listpack.Insert(node.payload, off, value)
		node.count++
		node.updateSz()
		l.compressTransition(node)

	case atTail && node.next != nil && !fullNext:
		// The anchor node is full but the next one has room at its
		// head.
		next := node.next
		l.decompressNodeForUse(next)
		next.payload = listpack.AppendHead(next.payload, value)
		next.count++
		next.updateSz()
		l.compressTransition(next)
		l.compressTransition(node)

	case atHead && node.prev != nil && !fullPrev:
		prev := node.prev
		l.decompressNodeForUse(prev)
		prev.payload = listpack.AppendTail(prev.payload, value)
		prev.count++
		prev.updateSz()
		l.compressTransition(prev)
		l.compressTransition(node)

	case atTail || atHead:
		// Full node, inserting at one of its ends, and no neighbor on
		// that side has room: new node.
		n := newNode()
		if after {
			n.payload = listpack.AppendTail(listpack.New(), value)
		} else {
			n.payload = listpack.AppendHead(listpack.New(), value)
		}
		n.count = 1
		n.updateSz()
		l.insertNode(node, n, after)

	default:
		// Full node, interior position: split and re-merge.
		l.decompressNodeForUse(node)
		split := l.splitNode(node, off, after)
		if after {
			split.payload = listpack.AppendHead(split.payload, value)
		} else {
			split.payload = listpack.AppendTail(split.payload, value)
		}
		split.count++
		split.updateSz()
		l.insertNode(node, split, after)
		l.mergeNodes(node)
	}
	l.count++
}

// DelEntry removes the entry's element and advances the iterator so the
// next call to Next returns the element that followed in the iteration
// direction.
func (l *List) DelEntry(it *Iterator, entry *Entry) {
	prev, next := entry.Node.prev, entry.Node.next
	deletedNode := l.delIndex(entry.Node, entry.Offset)

	if it == nil {
		return
	}
	// Re-seek on the next call: with the element gone the same offset
	// already points at the follower (forward) or the predecessor
	// shifted into place (reverse).
	it.primed = false
	if deletedNode {
		if it.direction == Head {
			it.current = next
			it.offset = 0
		} else {
			it.current = prev
			it.offset = -1
		}
	}
}

// DelRange removes the half-open index range [start, stop), clamping
// both ends, and returns the number of elements removed. A negative
// start counts from the tail.
func (l *List) DelRange(start, stop int) int {
	if l.count == 0 {
		return 0
	}
	extent := stop - start
	if extent <= 0 {
		return 0
	}
	if start >= 0 && extent > l.count-start {
		extent = l.count - start
	} else if start < 0 && extent > -start {
		extent = -start
	}
	if extent <= 0 {
		return 0
	}

	var entry Entry
	it := l.GetIteratorEntryAtIdx(start, &entry)
	if it == nil {
		return 0
	}
	it.Release()

	node := entry.Node
	offset := entry.Offset
	if offset < 0 {
		offset += node.count
	}

	removed := 0
	for extent > 0 && node != nil {
		next := node.next

		var del int
		wholeNode := false
		switch {
		case offset == 0 && extent >= node.count:
			wholeNode = true
			del = node.count
		case offset+extent >= node.count:
			del = node.count - offset
		default:
			del = extent
		}

		if wholeNode || node.container == containerPlain {
			del = node.count
			l.delNode(node)
		} else {
			l.decompressNodeForUse(node)
			node.payload = listpack.DeleteRange(node.payload, offset, del)
			node.count -= del
			node.updateSz()
			l.count -= del
			if node.count == 0 {
				l.delNode(node)
			} else {
				l.recompressOnly(node)
			}
		}

		removed += del
		extent -= del
		node = next
		offset = 0
	}
	return removed
}

// ReplaceEntry swaps the entry's element for value, preserving its
// position.
func (l *List) ReplaceEntry(it *Iterator, entry *Entry, value []byte) {
	node := entry.Node
	sz := len(value)

	switch {
	case node.container != containerPlain && !l.isLargeElement(sz):
		// In-place within the packed array.
		off := entry.Offset
		if off < 0 {
			off += node.count
		}
		node.payload = listpack.Delete(node.payload, off)
		node.payload = listpack.Insert(node.payload, off, value)
		node.updateSz()
		l.compressTransition(node)

	case node.container == containerPlain && l.isLargeElement(sz):
		// Plain for plain: swap the payload.
		payload := make([]byte, sz)
		copy(payload, value)
		node.payload = payload
		node.updateSz()
		l.compressTransition(node)

	default:
		// Size class changed: delete and re-insert at the same global
		// position.
		idx := l.entryIndex(entry)
		l.delIndex(node, entry.Offset)
		l.insertAt(idx, value)
	}

	if it != nil {
		it.primed = false
	}
}

// ReplaceAtIndex swaps the element at the global index for value,
// reporting whether the index existed.
func (l *List) ReplaceAtIndex(idx int, value []byte) bool {
	var entry Entry
	it := l.GetIteratorEntryAtIdx(idx, &entry)
	if it == nil {
		return false
	}
	l.ReplaceEntry(it, &entry, value)
	it.Release()
	return true
}

// entryIndex computes the global index of an entry view.
func (l *List) entryIndex(entry *Entry) int {
	idx := 0
	for n := l.head; n != nil && n != entry.Node; n = n.next {
		idx += n.count
	}
	off := entry.Offset
	if off < 0 {
		off += entry.Node.count
	}
	return idx + off
}

// insertAt places value so it lands at the global index.
func (l *List) insertAt(idx int, value []byte) {
	if idx >= l.count {
		l.PushTail(value)
		return
	}
	var entry Entry
	it := l.GetIteratorEntryAtIdx(idx, &entry)
	if it == nil {
		l.PushTail(value)
		return
	}
	l.InsertBefore(it, &entry, value)
	it.Release()
}

// PopCustom removes one element from the given end, passing its bytes
// through saver before deletion so the caller controls the copy.
// Integer elements come back via sval with a nil data slice.
func (l *List) PopCustom(where int, saver func(data []byte) []byte) (data []byte, sval int64, ok bool) {
	if l.count == 0 {
		return nil, 0, false
	}

	node := l.head
	offset := 0
	if where == Tail {
		node = l.tail
		offset = -1
	}

	if node.container == containerPlain {
		data = saver(node.payload)
		l.delIndex(node, 0)
		return data, 0, true
	}

	l.decompressNodeForUse(node)
	elem, iv, isInt, got := listpack.Get(node.payload, offset)
	if !got {
		return nil, 0, false
	}
	if isInt {
		sval = iv
	} else {
		data = saver(elem)
	}
	l.delIndex(node, offset)
	return data, sval, true
}

// Pop removes one element from the given end, returning a private copy
// of its bytes or, for integer elements, the value via sval.
func (l *List) Pop(where int) (data []byte, sval int64, ok bool) {
	return l.PopCustom(where, func(d []byte) []byte {
		out := make([]byte, len(d))
		copy(out, d)
		return out
	})
}

// Rotate moves the tail element to the head in one step.
func (l *List) Rotate() {
	if l.count <= 1 {
		return
	}

	tail := l.tail
	l.decompressNodeForUse(tail)

	var value []byte
	if tail.container == containerPlain {
		value = tail.payload
	} else {
		elem, iv, isInt, _ := listpack.Get(tail.payload, -1)
		if isInt {
			value = []byte(formatInt(iv))
		} else {
			value = elem
		}
	}

	// The push below may grow the head listpack; with a single node the
	// tail aliases it, so work on a private copy of the value.
	tmp := make([]byte, len(value))
	copy(tmp, value)
	l.PushHead(tmp)

	l.delIndex(l.tail, -1)
}

// Dup deep-copies the list, preserving each node's compression state.
// Bookmarks are not duplicated.
func (l *List) Dup() *List {
	out := &List{
		fill:            l.fill,
		compress:        l.compress,
		codec:           l.codec,
		packedThreshold: l.packedThreshold,
		logger:          l.logger,
	}

	for n := l.head; n != nil; n = n.next {
		cp := &Node{
			payload:           append([]byte(nil), n.payload...),
			sz:                n.sz,
			count:             n.count,
			encoding:          n.encoding,
			container:         n.container,
			recompress:        n.recompress,
			attemptedCompress: n.attemptedCompress,
		}
		cp.prev = out.tail
		if out.tail != nil {
			out.tail.next = cp
		} else {
			out.head = cp
		}
		out.tail = cp
		out.nodes++
		out.count += cp.count
	}
	return out
}

// Release drops every node and bookmark, returning the list to its
// initial empty state.
func (l *List) Release() {
	n := l.head
	for n != nil {
		next := n.next
		n.payload = nil
		n.prev = nil
		n.next = nil
		n = next
	}
	l.head = nil
	l.tail = nil
	l.count = 0
	l.nodes = 0
	l.bookmarks = nil
}
