package dict

// Kind identifies which variant of an entry's value slot is live.
type Kind uint8

const (
	// KindNone marks an entry whose value was never set.
	KindNone Kind = iota
	// KindPointer marks an owned opaque value set via SetVal.
	KindPointer
	// KindUint marks an unsigned 64-bit integer value.
	KindUint
	// KindInt marks a signed 64-bit integer value.
	KindInt
	// KindFloat marks a 64-bit float value.
	KindFloat
)

// Entry is a single key/value cell. Entries are owned by their Dict and
// remain valid until the key is deleted or the Dict is released; a safe
// iterator extends that guarantee across mutations made during
// traversal.
//
// The value slot holds exactly one of the four variants. Destructor
// hooks apply only to the pointer variant. Callers are expected to know
// which accessor matches the entry's key class; a mismatched accessor
// returns the zero value.
type Entry struct {
	key  any
	vp   any
	vu   uint64
	vi   int64
	vf   float64
	kind Kind
	next *Entry
	meta []byte
}

// Key returns the entry's key.
func (e *Entry) Key() any { return e.key }

// Kind returns which value variant is live.
func (e *Entry) Kind() Kind { return e.kind }

// Val returns the pointer value, or nil when another variant is live.
func (e *Entry) Val() any {
	if e.kind != KindPointer {
		return nil
	}
	return e.vp
}

// Uint returns the unsigned integer value.
func (e *Entry) Uint() uint64 {
	if e.kind != KindUint {
		return 0
	}
	return e.vu
}

// Int returns the signed integer value.
func (e *Entry) Int() int64 {
	if e.kind != KindInt {
		return 0
	}
	return e.vi
}

// Float returns the float value.
func (e *Entry) Float() float64 {
	if e.kind != KindFloat {
		return 0
	}
	return e.vf
}

// SetUint stores an unsigned integer value. No destructor applies to
// integer values.
func (e *Entry) SetUint(v uint64) {
	e.vp = nil
	e.vu = v
	e.kind = KindUint
}

// SetInt stores a signed integer value.
func (e *Entry) SetInt(v int64) {
	e.vp = nil
	e.vi = v
	e.kind = KindInt
}

// SetFloat stores a float value.
func (e *Entry) SetFloat(v float64) {
	e.vp = nil
	e.vf = v
	e.kind = KindFloat
}

// Metadata returns the entry's metadata region. Its size is fixed by
// the Dict's Type and its content is zero-initialized at entry
// creation. The returned slice is nil when the Type declares no
// metadata.
func (e *Entry) Metadata() []byte { return e.meta }
