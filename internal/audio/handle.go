package audio

import (
	"sync"

	"github.com/google/uuid"
)

// Handle is a transient audio resource owned by exactly one queued segment.
type Handle struct {
	id     string
	format Format
	data   []byte

	once     sync.Once
	mu       sync.Mutex
	released bool
	store    *HandleStore
}

func (h *Handle) ID() string     { return h.id }
func (h *Handle) Format() Format { return h.format }

// Bytes returns the encoded audio until the handle is released.
func (h *Handle) Bytes() ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return nil, ErrHandleReleased
	}
	return h.data, nil
}

// Released reports whether Release has been called.
func (h *Handle) Released() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released
}

// Release frees the resource. Only the first call has an effect; it reports
// whether this call was the one that released it.
func (h *Handle) Release() bool {
	first := false
	h.once.Do(func() {
		first = true
		h.mu.Lock()
		h.released = true
		h.data = nil
		h.mu.Unlock()
		if h.store != nil {
			h.store.forget(h.id)
		}
	})
	return first
}

// HandleStore issues transient handles and tracks the ones still live.
type HandleStore struct {
	mu   sync.Mutex
	live map[string]*Handle
}

func NewHandleStore() *HandleStore {
	return &HandleStore{live: make(map[string]*Handle)}
}

// Acquire wraps data in a new live handle.
func (s *HandleStore) Acquire(data []byte, format Format) *Handle {
	h := &Handle{
		id:     uuid.NewString(),
		format: format,
		data:   data,
		store:  s,
	}
	s.mu.Lock()
	s.live[h.id] = h
	s.mu.Unlock()
	return h
}

// Live returns the number of handles not yet released.
func (s *HandleStore) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

func (s *HandleStore) forget(id string) {
	s.mu.Lock()
	delete(s.live, id)
	s.mu.Unlock()
}
