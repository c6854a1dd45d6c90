// Package listpack implements a compact byte-encoded sequence of small
// elements with head/tail append and offset-addressed insert, delete,
// split and merge.
//
// Elements are stored either as raw bytes or, when the input is the
// canonical decimal form of a 64-bit signed integer, as a varint. The
// encoding is internal to this module and carries no compatibility
// promise.
//
// Layout:
//
//	[count uint32 LE] [element]*
//	element: [tag byte] [uvarint len][bytes]  (tagBytes)
//	         [tag byte] [varint value]        (tagInt)
package listpack

import (
	"encoding/binary"
	"strconv"
)

const headerSize = 4

const (
	tagBytes byte = 0
	tagInt   byte = 1
)

// New returns an empty listpack.
func New() []byte {
	return make([]byte, headerSize)
}

// Count returns the number of elements.
func Count(lp []byte) int {
	return int(binary.LittleEndian.Uint32(lp))
}

func setCount(lp []byte, n int) {
	binary.LittleEndian.PutUint32(lp, uint32(n))
}

// appendElement encodes elem onto buf. Canonical decimal integers are
// stored as varints, everything else as length-prefixed bytes.
func appendElement(buf []byte, elem []byte) []byte {
	if iv, ok := asInt(elem); ok {
		buf = append(buf, tagInt)
		return binary.AppendVarint(buf, iv)
	}
	buf = append(buf, tagBytes)
	buf = binary.AppendUvarint(buf, uint64(len(elem)))
	return append(buf, elem...)
}

// AsInt reports whether elem is the canonical decimal form of an int64,
// i.e. whether it would be stored as an integer element.
func AsInt(elem []byte) (int64, bool) {
	return asInt(elem)
}

// asInt reports whether elem is the canonical decimal form of an int64.
func asInt(elem []byte) (int64, bool) {
	if len(elem) == 0 || len(elem) > 20 {
		return 0, false
	}
	iv, err := strconv.ParseInt(string(elem), 10, 64)
	if err != nil {
		return 0, false
	}
	// Reject non-canonical forms like "007" or "+1" so that a round trip
	// through Get returns the exact input.
	if strconv.FormatInt(iv, 10) != string(elem) {
		return 0, false
	}
	return iv, true
}

// elementEnd returns the byte position just past the element at pos.
func elementEnd(lp []byte, pos int) int {
	switch lp[pos] {
	case tagInt:
		_, n := binary.Varint(lp[pos+1:])
		return pos + 1 + n
	default:
		l, n := binary.Uvarint(lp[pos+1:])
		return pos + 1 + n + int(l)
	}
}

// Seek returns the byte position of the element at the given offset.
// Negative offsets count from the tail (-1 is the last element). The
// second return is false when the offset is out of range.
func Seek(lp []byte, offset int) (int, bool) {
	count := Count(lp)
	if offset < 0 {
		offset += count
	}
	if offset < 0 || offset >= count {
		return 0, false
	}
	pos := headerSize
	for i := 0; i < offset; i++ {
		pos = elementEnd(lp, pos)
	}
	return pos, true
}

// Get returns the element at offset. Integer elements are returned via
// iv with isInt set and a nil data slice; byte elements alias the
// listpack's backing array.
func Get(lp []byte, offset int) (data []byte, iv int64, isInt, ok bool) {
	pos, ok := Seek(lp, offset)
	if !ok {
		return nil, 0, false, false
	}
	if lp[pos] == tagInt {
		v, _ := binary.Varint(lp[pos+1:])
		return nil, v, true, true
	}
	l, n := binary.Uvarint(lp[pos+1:])
	start := pos + 1 + n
	return lp[start : start+int(l)], 0, false, true
}

// AppendTail appends elem as the last element.
func AppendTail(lp []byte, elem []byte) []byte {
	lp = appendElement(lp, elem)
	setCount(lp, Count(lp)+1)
	return lp
}

// AppendHead prepends elem as the first element.
func AppendHead(lp []byte, elem []byte) []byte {
	return Insert(lp, 0, elem)
}

// Insert places elem so that it becomes the element at the given offset,
// shifting the current element at that offset (and everything after it)
// one position toward the tail. offset == Count(lp) appends.
func Insert(lp []byte, offset int, elem []byte) []byte {
	count := Count(lp)
	if offset < 0 {
		offset += count
	}
	if offset < 0 || offset > count {
		return lp
	}
	if offset == count {
		return AppendTail(lp, elem)
	}
	pos, _ := Seek(lp, offset)

	out := make([]byte, 0, len(lp)+len(elem)+11)
	out = append(out, lp[:pos]...)
	out = appendElement(out, elem)
	out = append(out, lp[pos:]...)
	setCount(out, count+1)
	return out
}

// Delete removes the element at offset. Out-of-range offsets are a
// no-op.
func Delete(lp []byte, offset int) []byte {
	pos, ok := Seek(lp, offset)
	if !ok {
		return lp
	}
	end := elementEnd(lp, pos)
	lp = append(lp[:pos], lp[end:]...)
	setCount(lp, Count(lp)-1)
	return lp
}

// DeleteRange removes up to count elements starting at offset.
// Out-of-range portions are clamped.
func DeleteRange(lp []byte, offset, count int) []byte {
	total := Count(lp)
	if offset < 0 {
		offset += total
	}
	if offset < 0 || offset >= total || count <= 0 {
		return lp
	}
	if count > total-offset {
		count = total - offset
	}

	start, _ := Seek(lp, offset)
	end := start
	for i := 0; i < count; i++ {
		end = elementEnd(lp, end)
	}
	lp = append(lp[:start], lp[end:]...)
	setCount(lp, total-count)
	return lp
}

// Split divides lp into two listpacks: left holds elements [0, offset),
// right holds [offset, count).
func Split(lp []byte, offset int) (left, right []byte) {
	count := Count(lp)
	if offset <= 0 {
		return New(), lp
	}
	if offset >= count {
		return lp, New()
	}
	pos, _ := Seek(lp, offset)

	left = make([]byte, 0, pos)
	left = append(left, lp[:pos]...)
	setCount(left, offset)

	right = make([]byte, 0, headerSize+len(lp)-pos)
	right = append(right, 0, 0, 0, 0)
	right = append(right, lp[pos:]...)
	setCount(right, count-offset)
	return left, right
}

// Merge concatenates b's elements after a's, returning the combined
// listpack.
func Merge(a, b []byte) []byte {
	out := make([]byte, 0, len(a)+len(b)-headerSize)
	out = append(out, a...)
	out = append(out, b[headerSize:]...)
	setCount(out, Count(a)+Count(b))
	return out
}
