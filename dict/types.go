package dict

import (
	"log/slog"
	"sync/atomic"
)

// Type is the hook table that customizes a Dict's behavior. A Type must
// stay unchanged for the lifetime of every Dict created with it and may
// be shared by many Dicts.
//
// Hash is the only mandatory hook. Absent hooks fall back to: Go
// equality for key comparison, storing keys/values without copying, no
// destruction on removal, growth always allowed, and zero metadata
// bytes per entry.
type Type struct {
	// Hash computes the 64-bit hash of a key.
	Hash func(key any) uint64

	// KeyDup, when set, copies a key before it is stored.
	KeyDup func(d *Dict, key any) any

	// ValDup, when set, copies a pointer value before it is stored.
	ValDup func(d *Dict, val any) any

	// KeyCompare, when set, replaces Go equality for key lookup. Keys
	// must be comparable when KeyCompare is nil.
	KeyCompare func(d *Dict, key1, key2 any) bool

	// KeyDestructor, when set, runs for each removed key. Its presence
	// means the Dict owns its keys.
	KeyDestructor func(d *Dict, key any)

	// ValDestructor, when set, runs for each removed pointer value. It
	// never runs for integer or float values.
	ValDestructor func(d *Dict, val any)

	// ExpandAllowed, when set, can veto an automatic growth step.
	// moreMem is the approximate extra allocation in bytes, usedRatio
	// the current load factor.
	ExpandAllowed func(moreMem uintptr, usedRatio float64) bool

	// EntryMetadataBytes, when set, sizes the zero-initialized metadata
	// region carried by every entry of the Dict.
	EntryMetadataBytes func(d *Dict) int
}

func (t *Type) compare(d *Dict, key1, key2 any) bool {
	if t.KeyCompare != nil {
		return t.KeyCompare(d, key1, key2)
	}
	return key1 == key2
}

func (t *Type) metadataBytes(d *Dict) int {
	if t.EntryMetadataBytes == nil {
		return 0
	}
	return t.EntryMetadataBytes(d)
}

// canResize gates automatic growth and explicit shrink for all Dicts
// that do not override it per instance. Hosts disable it while a forked
// child is alive to keep copy-on-write pages intact.
var canResize atomic.Bool

func init() {
	canResize.Store(true)
}

// EnableResize re-enables automatic resizing process-wide.
func EnableResize() { canResize.Store(true) }

// DisableResize suppresses automatic resizing process-wide. Growth is
// still forced once the load factor reaches forceResizeRatio, and
// explicit Expand calls are unaffected.
func DisableResize() { canResize.Store(false) }

type options struct {
	logger        *slog.Logger
	resizeAllowed *bool
	randomSeed    int64
}

// Option configures a Dict at construction time.
type Option func(*options)

// WithLogger configures structured logging for table lifecycle events.
// Pass nil to disable logging.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithResizeEnabled overrides the process-wide resize flag for this
// instance.
func WithResizeEnabled(enabled bool) Option {
	return func(o *options) {
		o.resizeAllowed = &enabled
	}
}

// WithRandomSeed seeds the instance's sampling PRNG, making RandomEntry
// and friends deterministic. Intended for tests.
func WithRandomSeed(seed int64) Option {
	return func(o *options) {
		o.randomSeed = seed
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		logger: slog.New(slog.DiscardHandler),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	return o
}
