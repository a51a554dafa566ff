package shell

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sakif/cinemax-club/internal/identity"
)

// Observer is told when shells are mounted and unmounted.
type Observer interface {
	ShellMounted()
	ShellUnmounted()
}

type nopObserver struct{}

func (nopObserver) ShellMounted()   {}
func (nopObserver) ShellUnmounted() {}

// Registry maps visitor IDs to mounted shells and unmounts shells that have
// been idle for longer than the idle TTL.
type Registry struct {
	provider identity.Provider
	opts     Options
	idleTTL  time.Duration
	logger   *slog.Logger
	observer Observer

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	shells map[string]*Shell
	closed bool

	done      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewRegistry creates an empty registry. observer may be nil.
func NewRegistry(provider identity.Provider, opts Options, idleTTL time.Duration, observer Observer, logger *slog.Logger) *Registry {
	if observer == nil {
		observer = nopObserver{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		provider: provider,
		opts:     opts.withDefaults(),
		idleTTL:  idleTTL,
		logger:   logger,
		observer: observer,
		ctx:      ctx,
		cancel:   cancel,
		shells:   make(map[string]*Shell),
		done:     make(chan struct{}),
	}
}

// Start runs the idle janitor in the background.
func (r *Registry) Start() {
	if r.idleTTL <= 0 {
		return
	}
	r.startOnce.Do(func() {
		r.logger.Info("starting visitor shell janitor", slog.Duration("idleTTL", r.idleTTL))
		r.wg.Add(1)
		go r.janitor()
	})
}

func (r *Registry) janitor() {
	defer r.wg.Done()

	interval := r.idleTTL / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			if n := r.Sweep(r.opts.Now()); n > 0 {
				r.logger.Debug("unmounted idle shells", slog.Int("count", n))
			}
		}
	}
}

// Get returns the visitor's shell, creating and mounting it on first use.
// It returns nil once the registry is closed.
//
// The shell is touched under the registry lock, so a concurrent Sweep
// either removes it before Get sees it or finds it fresh.
func (r *Registry) Get(visitorID string) *Shell {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	s, ok := r.shells[visitorID]
	if !ok {
		s = New(r.provider.ForVisitor(visitorID), r.opts, r.logger.With(slog.String("visitorID", visitorID)))
		r.shells[visitorID] = s
	}
	s.touch()
	r.mu.Unlock()

	if !ok {
		s.Mount(r.ctx)
		r.observer.ShellMounted()
	}
	return s
}

// Len returns the number of live shells.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.shells)
}

// Sweep unmounts every shell idle since before now minus the idle TTL and
// returns how many it removed.
func (r *Registry) Sweep(now time.Time) int {
	cutoff := now.Add(-r.idleTTL)

	r.mu.Lock()
	var idle []*Shell
	for id, s := range r.shells {
		if s.idleSince().Before(cutoff) {
			idle = append(idle, s)
			delete(r.shells, id)
		}
	}
	r.mu.Unlock()

	for _, s := range idle {
		s.Unmount()
		r.observer.ShellUnmounted()
	}
	return len(idle)
}

// Close stops the janitor and unmounts every shell.
func (r *Registry) Close() {
	r.stopOnce.Do(func() {
		r.logger.Info("shutting down visitor shells")
		close(r.done)
		r.wg.Wait()

		r.mu.Lock()
		r.closed = true
		shells := r.shells
		r.shells = make(map[string]*Shell)
		r.mu.Unlock()

		r.cancel()
		for _, s := range shells {
			s.Unmount()
			r.observer.ShellUnmounted()
		}
	})
}
