package item

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrReleased is returned when an operation targets an item whose handle has
// already been released.
var ErrReleased = errors.New("item released")

// ID identifies an item for the lifetime of a registry.
type ID uint64

// Decoder is the per-item decode capability supplied by the owning playlist.
// Implementations must be safe for concurrent use: pool workers, the
// interactive loader and the controller's eviction pass may call into the same
// item at once (never for the same frame).
type Decoder interface {
	Name() string
	// Frames returns the valid frame-index range.
	Frames() Range
	// LoadFrame decodes and retains one frame. It blocks for the duration of
	// the decode; ctx is only cancelled on shutdown.
	LoadFrame(ctx context.Context, index int) error
	IsFrameCached(index int) bool
	EstimateFrameBytes(index int) int64
	// EvictFrame drops a previously decoded frame.
	EvictFrame(index int)
}

type ref struct {
	id       ID
	decoder  Decoder
	mu       sync.RWMutex
	released atomic.Bool
}

// Handle is a weak, validity-checked reference to a Decoder. The zero Handle
// refers to nothing and is never valid.
type Handle struct {
	r *ref
}

// ID returns the item identifier, or zero for the zero Handle.
func (h Handle) ID() ID {
	if h.r == nil {
		return 0
	}
	return h.r.id
}

// Valid reports whether the item has not been released.
func (h Handle) Valid() bool {
	return h.r != nil && !h.r.released.Load()
}

// Name returns the decoder name while the handle is valid.
func (h Handle) Name() string {
	dec, ok := h.Get()
	if !ok {
		return ""
	}
	return dec.Name()
}

// Get returns the decoder when the handle is still valid. Callers that go on
// to block inside the decoder should prefer Use.
func (h Handle) Get() (Decoder, bool) {
	if !h.Valid() {
		return nil, false
	}
	return h.r.decoder, true
}

// Use runs fn with the decoder while holding a read guard that keeps Release
// from completing. It returns ErrReleased without calling fn if the item is gone.
func (h Handle) Use(fn func(Decoder) error) error {
	if h.r == nil {
		return ErrReleased
	}
	h.r.mu.RLock()
	defer h.r.mu.RUnlock()
	if h.r.released.Load() {
		return ErrReleased
	}
	return fn(h.r.decoder)
}

// Release invalidates the handle, waiting for any in-progress Use to return.
// It reports false if the handle had already been released.
func (h Handle) Release() bool {
	if h.r == nil {
		return false
	}
	h.r.mu.Lock()
	defer h.r.mu.Unlock()
	return h.r.released.CompareAndSwap(false, true)
}

// Registry hands out handles with unique, increasing identifiers.
type Registry struct {
	next atomic.Uint64
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register wraps dec in a new Handle.
func (r *Registry) Register(dec Decoder) Handle {
	id := ID(r.next.Add(1))
	return Handle{r: &ref{id: id, decoder: dec}}
}
