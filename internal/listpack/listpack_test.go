package listpack

import (
	"fmt"
	"testing"
)

func elems(lp []byte) []string {
	out := make([]string, 0, Count(lp))
	for i := 0; i < Count(lp); i++ {
		data, iv, isInt, ok := Get(lp, i)
		if !ok {
			out = append(out, "<missing>")
			continue
		}
		if isInt {
			out = append(out, fmt.Sprintf("#%d", iv))
		} else {
			out = append(out, string(data))
		}
	}
	return out
}

func expect(t *testing.T, lp []byte, want ...string) {
	t.Helper()
	got := elems(lp)
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("element %d: got %q, want %q (full: %v)", i, got[i], want[i], got)
		}
	}
}

func TestNew(t *testing.T) {
	lp := New()
	if Count(lp) != 0 {
		t.Fatalf("new listpack count = %d", Count(lp))
	}
}

func TestAppendAndGet(t *testing.T) {
	lp := New()
	lp = AppendTail(lp, []byte("alpha"))
	lp = AppendTail(lp, []byte("beta"))
	lp = AppendHead(lp, []byte("first"))

	expect(t, lp, "first", "alpha", "beta")
}

func TestIntegerEncoding(t *testing.T) {
	lp := New()
	lp = AppendTail(lp, []byte("123"))
	lp = AppendTail(lp, []byte("-456"))
	lp = AppendTail(lp, []byte("0"))
	lp = AppendTail(lp, []byte("007"))  // non-canonical: stays bytes
	lp = AppendTail(lp, []byte("+1"))   // non-canonical
	lp = AppendTail(lp, []byte("12a3")) // not a number

	expect(t, lp, "#123", "#-456", "#0", "007", "+1", "12a3")

	if _, ok := AsInt([]byte("9223372036854775807")); !ok {
		t.Error("max int64 should encode as integer")
	}
	if _, ok := AsInt([]byte("9223372036854775808")); ok {
		t.Error("int64 overflow should stay bytes")
	}
}

func TestInsert(t *testing.T) {
	lp := New()
	lp = AppendTail(lp, []byte("a"))
	lp = AppendTail(lp, []byte("c"))

	lp = Insert(lp, 1, []byte("b"))
	expect(t, lp, "a", "b", "c")

	lp = Insert(lp, 0, []byte("start"))
	expect(t, lp, "start", "a", "b", "c")

	lp = Insert(lp, 4, []byte("end"))
	expect(t, lp, "start", "a", "b", "c", "end")

	// Out of range is a no-op.
	lp = Insert(lp, 42, []byte("nope"))
	expect(t, lp, "start", "a", "b", "c", "end")
}

func TestDelete(t *testing.T) {
	lp := New()
	for _, s := range []string{"a", "b", "c", "d"} {
		lp = AppendTail(lp, []byte(s))
	}

	lp = Delete(lp, 1)
	expect(t, lp, "a", "c", "d")

	lp = Delete(lp, -1)
	expect(t, lp, "a", "c")

	lp = Delete(lp, 5)
	expect(t, lp, "a", "c")
}

func TestDeleteRange(t *testing.T) {
	build := func() []byte {
		lp := New()
		for i := 0; i < 6; i++ {
			lp = AppendTail(lp, []byte(fmt.Sprintf("e%d", i)))
		}
		return lp
	}

	lp := DeleteRange(build(), 1, 3)
	expect(t, lp, "e0", "e4", "e5")

	lp = DeleteRange(build(), 4, 100)
	expect(t, lp, "e0", "e1", "e2", "e3")

	lp = DeleteRange(build(), -2, 2)
	expect(t, lp, "e0", "e1", "e2", "e3")

	lp = DeleteRange(build(), 0, 6)
	expect(t, lp)
}

func TestSeekNegative(t *testing.T) {
	lp := New()
	for _, s := range []string{"x", "y", "z"} {
		lp = AppendTail(lp, []byte(s))
	}

	data, _, _, ok := Get(lp, -1)
	if !ok || string(data) != "z" {
		t.Fatalf("Get(-1) = %q, %v", data, ok)
	}
	data, _, _, ok = Get(lp, -3)
	if !ok || string(data) != "x" {
		t.Fatalf("Get(-3) = %q, %v", data, ok)
	}
	if _, _, _, ok := Get(lp, -4); ok {
		t.Fatal("Get(-4) should be out of range")
	}
	if _, _, _, ok := Get(lp, 3); ok {
		t.Fatal("Get(3) should be out of range")
	}
}

func TestSplit(t *testing.T) {
	lp := New()
	for i := 0; i < 5; i++ {
		lp = AppendTail(lp, []byte(fmt.Sprintf("e%d", i)))
	}

	left, right := Split(lp, 2)
	expect(t, left, "e0", "e1")
	expect(t, right, "e2", "e3", "e4")

	left, right = Split(lp, 0)
	expect(t, left)
	expect(t, right, "e0", "e1", "e2", "e3", "e4")

	left, right = Split(lp, 5)
	expect(t, left, "e0", "e1", "e2", "e3", "e4")
	expect(t, right)
}

func TestMerge(t *testing.T) {
	a := New()
	a = AppendTail(a, []byte("1"))
	a = AppendTail(a, []byte("two"))

	b := New()
	b = AppendTail(b, []byte("three"))
	b = AppendTail(b, []byte("4"))

	merged := Merge(a, b)
	expect(t, merged, "#1", "two", "three", "#4")
}

func TestSplitMergeRoundTrip(t *testing.T) {
	lp := New()
	for i := 0; i < 20; i++ {
		lp = AppendTail(lp, []byte(fmt.Sprintf("%d", i)))
	}
	for at := 0; at <= 20; at++ {
		left, right := Split(lp, at)
		merged := Merge(left, right)
		if Count(merged) != 20 {
			t.Fatalf("split at %d: merged count = %d", at, Count(merged))
		}
		for i := 0; i < 20; i++ {
			_, iv, isInt, ok := Get(merged, i)
			if !ok || !isInt || iv != int64(i) {
				t.Fatalf("split at %d: element %d = %d (int=%v ok=%v)", at, i, iv, isInt, ok)
			}
		}
	}
}

func TestBinaryValues(t *testing.T) {
	raw := []byte{0, 1, 2, 255, 254, 0, 42}
	lp := New()
	lp = AppendTail(lp, raw)

	data, _, isInt, ok := Get(lp, 0)
	if !ok || isInt {
		t.Fatal("binary element mis-typed")
	}
	if string(data) != string(raw) {
		t.Fatalf("binary round trip: got %v", data)
	}
}

func TestEmptyElement(t *testing.T) {
	lp := New()
	lp = AppendTail(lp, nil)
	lp = AppendTail(lp, []byte("x"))

	data, _, isInt, ok := Get(lp, 0)
	if !ok || isInt || len(data) != 0 {
		t.Fatalf("empty element: data=%v int=%v ok=%v", data, isInt, ok)
	}
}
