package identity

import (
	"sync"

	"github.com/sakif/cinemax-club/internal/model"
)

// hub fans authentication events out to subscribers.
// Handlers run on the emitting goroutine, outside the hub lock.
type hub struct {
	mu       sync.Mutex
	nextID   uint64
	handlers map[uint64]Handler
}

func newHub() *hub {
	return &hub{handlers: make(map[uint64]Handler)}
}

func (h *hub) subscribe(fn Handler) Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID
	h.handlers[id] = fn

	return &subscription{release: func() {
		h.mu.Lock()
		delete(h.handlers, id)
		h.mu.Unlock()
	}}
}

func (h *hub) emit(event model.Event, session *model.Session) {
	h.mu.Lock()
	fns := make([]Handler, 0, len(h.handlers))
	for _, fn := range h.handlers {
		fns = append(fns, fn)
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(event, session)
	}
}

func (h *hub) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.handlers)
}

type subscription struct {
	once    sync.Once
	release func()
}

// Unsubscribe releases the handler. Only the first call has an effect.
func (s *subscription) Unsubscribe() {
	s.once.Do(s.release)
}

type noopSubscription struct{}

func (noopSubscription) Unsubscribe() {}
