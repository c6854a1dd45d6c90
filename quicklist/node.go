package quicklist

import (
	"github.com/hupe1980/storecore/internal/blockpack"
	"github.com/hupe1980/storecore/internal/listpack"
)

// Node encodings. A node's payload is either the raw listpack/plain
// bytes or a compressed blob whose uncompressed size is kept in sz.
const (
	encodingRaw        uint8 = 1
	encodingCompressed uint8 = 2
)

// Node containers. A plain node holds one large item verbatim; a packed
// node holds a listpack of small items.
const (
	containerPlain  uint8 = 1
	containerPacked uint8 = 2
)

// minCompressBytes is the smallest payload worth handing to the codec;
// anything below it cannot win back the codec's own overhead.
const minCompressBytes = 48

// sizeSafetyLimit bounds a node's byte size when the fill policy only
// caps the element count.
const sizeSafetyLimit = 8192

// sizeEstimateOverhead approximates the per-element encoding overhead
// used when checking an insert against the byte budget.
const sizeEstimateOverhead = 11

// optimizationLevel maps negative fill values to per-node byte budgets:
// fill -1 selects 4 KiB, -5 selects 64 KiB.
var optimizationLevel = [...]int{4096, 8192, 16384, 32768, 65536}

// Node is one segment of a List: a doubly-linked cell holding either a
// packed array of small items or a single large plain item, optionally
// compressed while it sits outside the list's end windows.
type Node struct {
	prev, next *Node
	payload    []byte
	sz         int // uncompressed payload size in bytes
	count      int // items held (always 1 for plain nodes)
	encoding   uint8
	container  uint8

	// recompress marks a node that was transiently decompressed for a
	// borrower and must return to its compressed form at release.
	recompress bool

	// attemptedCompress records a compression attempt the codec judged
	// not beneficial.
	attemptedCompress bool
}

func newNode() *Node {
	return &Node{encoding: encodingRaw, container: containerPacked}
}

func newPlainNode(value []byte) *Node {
	payload := make([]byte, len(value))
	copy(payload, value)
	return &Node{
		payload:   payload,
		sz:        len(payload),
		count:     1,
		encoding:  encodingRaw,
		container: containerPlain,
	}
}

// Next returns the node's successor, or nil at the tail.
func (n *Node) Next() *Node { return n.next }

// Prev returns the node's predecessor, or nil at the head.
func (n *Node) Prev() *Node { return n.prev }

// Count returns the number of items held by the node.
func (n *Node) Count() int { return n.count }

// Size returns the node's uncompressed payload size in bytes.
func (n *Node) Size() int { return n.sz }

// Plain reports whether the node holds a single large item verbatim.
func (n *Node) Plain() bool { return n.container == containerPlain }

// Compressed reports whether the node's payload is compressed at the
// moment of the call.
func (n *Node) Compressed() bool { return n.encoding == encodingCompressed }

// CompressedPayload returns the compressed blob, or nil when the node
// is raw. The slice aliases node state and must not be modified.
func (n *Node) CompressedPayload() []byte {
	if n.encoding != encodingCompressed {
		return nil
	}
	return n.payload
}

func (n *Node) updateSz() {
	n.sz = len(n.payload)
}

// nodeLimit translates a fill value into a byte budget or an element
// cap; exactly one of the two returns is nonzero.
func nodeLimit(fill int) (szLimit, countLimit int) {
	if fill >= 0 {
		return 0, fill
	}
	idx := -fill - 1
	if idx >= len(optimizationLevel) {
		idx = len(optimizationLevel) - 1
	}
	return optimizationLevel[idx], 0
}

// nodeExceedsLimit reports whether a node of the given byte size and
// element count violates the fill policy.
func nodeExceedsLimit(fill, sz, count int) bool {
	szLimit, countLimit := nodeLimit(fill)
	if szLimit > 0 {
		return sz > szLimit
	}
	if count > countLimit {
		return true
	}
	// Count-capped nodes still respect an absolute byte ceiling.
	return sz > sizeSafetyLimit
}

// isLargeElement reports whether a value must live in its own plain
// node instead of a packed array.
func (l *List) isLargeElement(sz int) bool {
	return sz > l.packedThreshold
}

// allowInsert reports whether node can absorb one more element of the
// given size under the fill policy.
func (l *List) allowInsert(n *Node, sz int) bool {
	if n == nil {
		return false
	}
	if n.container == containerPlain || l.isLargeElement(sz) {
		return false
	}
	return !nodeExceedsLimit(l.fill, n.sz+sz+sizeEstimateOverhead, n.count+1)
}

// allowMerge reports whether two adjacent packed nodes fit in one under
// the fill policy.
func (l *List) allowMerge(a, b *Node) bool {
	if a == nil || b == nil {
		return false
	}
	if a.container == containerPlain || b.container == containerPlain {
		return false
	}
	// Approximate merged size: one listpack header goes away.
	mergedSz := a.sz + b.sz - sizeEstimateOverhead
	return !nodeExceedsLimit(l.fill, mergedSz, a.count+b.count)
}

// compressNode compresses a node's payload (packed or plain) in place. Payloads
// the codec cannot shrink stay raw with attemptedCompress recorded.
func (l *List) compressNode(n *Node) {
	if n == nil || n.encoding != encodingRaw || n.recompress {
		return
	}
	if n.sz < minCompressBytes {
		return
	}

	compressed := blockpack.Compress(l.codec, n.payload)
	if compressed == nil {
		n.attemptedCompress = true
		return
	}
	n.payload = compressed
	n.encoding = encodingCompressed
	n.attemptedCompress = false
}

// decompressNode restores a node's raw payload. Corrupt compressed
// state is unrecoverable and panics.
func (l *List) decompressNode(n *Node) {
	if n == nil || n.encoding != encodingCompressed {
		return
	}
	raw, err := blockpack.Decompress(l.codec, n.payload, n.sz)
	if err != nil {
		panic("quicklist: corrupt compressed node payload: " + err.Error())
	}
	n.payload = raw
	n.encoding = encodingRaw
	n.recompress = false
}

// decompressNodeForUse is decompressNode for transient borrowers: the
// node remembers it must be recompressed once the borrow ends.
func (l *List) decompressNodeForUse(n *Node) {
	if n == nil || n.encoding != encodingCompressed {
		return
	}
	l.decompressNode(n)
	n.recompress = true
}

// recompressOnly re-establishes the compressed form of a node borrowed
// via decompressNodeForUse, ignoring the depth window.
func (l *List) recompressOnly(n *Node) {
	if n == nil || !n.recompress {
		return
	}
	n.recompress = false
	l.compressNode(n)
}

// allowsCompression reports whether the list compresses interior nodes
// at all.
func (l *List) allowsCompression() bool {
	return l.compress != 0
}

// compressPolicy re-establishes the compression invariant around node:
// every node within the depth window from either end is raw, and node
// itself is compressed when it sits outside the window. node may be
// nil, in which case only the window boundaries are re-compressed.
func (l *List) compressPolicy(node *Node) {
	if l.nodes == 0 {
		return
	}
	if !l.allowsCompression() || l.nodes < l.compress*2 {
		return
	}

	forward, reverse := l.head, l.tail
	inDepth := false
	for depth := 0; depth < l.compress; depth++ {
		l.decompressNode(forward)
		l.decompressNode(reverse)
		if forward == node || reverse == node {
			inDepth = true
		}
		if forward == reverse || forward.next == reverse {
			return
		}
		forward = forward.next
		reverse = reverse.prev
	}
	if !inDepth {
		l.compressNode(node)
	}
	// forward and reverse now sit one node beyond the windows.
	l.compressNode(forward)
	l.compressNode(reverse)
}

// compressTransition applies the right re-compression for node: a transient
// borrow is undone directly, anything else goes through the depth
// window policy.
func (l *List) compressTransition(n *Node) {
	if n != nil && n.recompress {
		l.recompressOnly(n)
		return
	}
	l.compressPolicy(n)
}

// insertNode links newNode after (or before) oldNode, re-applying the
// compression policy to both. A nil oldNode links into an empty list.
func (l *List) insertNode(oldNode, newNode *Node, after bool) {
	if after {
		newNode.prev = oldNode
		if oldNode != nil {
			newNode.next = oldNode.next
			if oldNode.next != nil {
				oldNode.next.prev = newNode
			}
			oldNode.next = newNode
		}
		if l.tail == oldNode {
			l.tail = newNode
		}
	} else {
		newNode.next = oldNode
		if oldNode != nil {
			newNode.prev = oldNode.prev
			if oldNode.prev != nil {
				oldNode.prev.next = newNode
			}
			oldNode.prev = newNode
		}
		if l.head == oldNode {
			l.head = newNode
		}
	}
	if l.nodes == 0 {
		l.head = newNode
		l.tail = newNode
	}
	l.nodes++

	if oldNode != nil {
		l.compressTransition(oldNode)
	}
	l.compressTransition(newNode)
}

// delNode unlinks and discards node, repointing any bookmark to the
// node's successor and re-applying the compression policy to the
// shifted window.
func (l *List) delNode(n *Node) {
	l.bookmarkMoveOff(n)

	if n.next != nil {
		n.next.prev = n.prev
	}
	if n.prev != nil {
		n.prev.next = n.next
	}
	if n == l.tail {
		l.tail = n.prev
	}
	if n == l.head {
		l.head = n.next
	}
	l.nodes--
	l.count -= n.count

	n.prev = nil
	n.next = nil
	n.payload = nil

	// Node positions shifted; re-establish the depth windows.
	l.compressPolicy(nil)
}

// delIndex removes the element at offset inside node, dropping the node
// once it empties. It reports whether the node was deleted. Plain nodes
// are removed wholesale.
func (l *List) delIndex(n *Node, offset int) bool {
	if n.container == containerPlain {
		l.delNode(n)
		return true
	}

	n.payload = listpack.Delete(n.payload, offset)
	n.count--
	n.updateSz()
	l.count--
	if n.count == 0 {
		l.delNode(n)
		return true
	}
	return false
}

// splitNode divides a packed node at offset. With after set, node keeps
// [0..offset] and the returned node takes the rest; otherwise the
// returned node takes [0..offset-1] and node keeps the tail half. The
// caller links the returned node.
func (l *List) splitNode(n *Node, offset int, after bool) *Node {
	out := newNode()
	if after {
		n.payload, out.payload = listpack.Split(n.payload, offset+1)
	} else {
		out.payload, n.payload = listpack.Split(n.payload, offset)
	}
	n.count = listpack.Count(n.payload)
	n.updateSz()
	out.count = listpack.Count(out.payload)
	out.updateSz()

	l.logger.Debug("node split",
		"kept", n.count,
		"moved", out.count,
	)
	return out
}

// listpackMerge folds b's elements into a and drops b, returning the
// surviving node.
func (l *List) listpackMerge(a, b *Node) *Node {
	l.decompressNode(a)
	l.decompressNode(b)

	a.payload = listpack.Merge(a.payload, b.payload)
	a.count += b.count
	a.updateSz()

	b.count = 0 // already accounted for in a
	l.delNode(b)
	l.compressTransition(a)

	l.logger.Debug("nodes merged", "count", a.count, "bytes", a.sz)
	return a
}

// mergeNodes tries to fold the nodes around center into fewer, fuller
// nodes: (prev-prev, prev), (next, next-next), (prev, center), and
// finally (center, next), in that order, wherever the fill policy
// allows.
func (l *List) mergeNodes(center *Node) {
	var prev, prevPrev, next, nextNext *Node
	if center.prev != nil {
		prev = center.prev
		prevPrev = center.prev.prev
	}
	if center.next != nil {
		next = center.next
		nextNext = center.next.next
	}

	if l.allowMerge(prev, prevPrev) {
		l.listpackMerge(prevPrev, prev)
		prev, prevPrev = nil, nil
	}
	if l.allowMerge(next, nextNext) {
		l.listpackMerge(next, nextNext)
		next, nextNext = nil, nil
	}

	target := center
	if l.allowMerge(center, center.prev) {
		target = l.listpackMerge(center.prev, center)
	}
	if l.allowMerge(target, target.next) {
		l.listpackMerge(target, target.next)
	}
}
