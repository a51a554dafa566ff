package shell

import "sync"

// ToastKind is the visual style of a toast.
type ToastKind string

const (
	ToastSuccess ToastKind = "success"
	ToastError   ToastKind = "error"
)

// Toast is a transient notification shown on the next page view.
type Toast struct {
	Kind    ToastKind
	Message string
}

const maxToasts = 8

// Toaster queues toasts until they are drained by a render. Only the most
// recent maxToasts are kept.
type Toaster struct {
	mu    sync.Mutex
	queue []Toast
}

func (t *Toaster) Success(msg string) { t.push(Toast{Kind: ToastSuccess, Message: msg}) }
func (t *Toaster) Error(msg string)   { t.push(Toast{Kind: ToastError, Message: msg}) }

func (t *Toaster) push(toast Toast) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.queue = append(t.queue, toast)
	if n := len(t.queue); n > maxToasts {
		t.queue = append([]Toast(nil), t.queue[n-maxToasts:]...)
	}
}

// Drain returns the queued toasts and empties the queue.
func (t *Toaster) Drain() []Toast {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.queue
	t.queue = nil
	return out
}
