// Package shell holds each visitor's application state between requests.
//
// A Shell owns the visitor's current session, their auth modal, their toast
// queue and their demo ticket. It is mounted once, when the visitor is first
// seen, and unmounted when idle or on shutdown. The Registry maps visitor
// IDs to shells.
package shell

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/sakif/cinemax-club/internal/identity"
	"github.com/sakif/cinemax-club/internal/modal"
	"github.com/sakif/cinemax-club/internal/model"
	"github.com/sakif/cinemax-club/internal/ticket"
)

// MsgSignedOut is the toast shown after sign-out.
const MsgSignedOut = "Signed out"

// Options configures new shells.
type Options struct {
	// SubmitTimeout bounds one auth submit.
	SubmitTimeout time.Duration
	// SubmitRate and SubmitBurst limit auth submissions per visitor.
	SubmitRate  rate.Limit
	SubmitBurst int
	// NewSurface returns the surface the demo ticket is drawn on.
	// Defaults to an in-memory PNG surface.
	NewSurface func() ticket.Surface
	// Now defaults to time.Now.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.SubmitRate == 0 {
		o.SubmitRate = rate.Every(2 * time.Second)
	}
	if o.SubmitBurst <= 0 {
		o.SubmitBurst = 5
	}
	if o.NewSurface == nil {
		o.NewSurface = func() ticket.Surface { return ticket.NewPNGSurface() }
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Shell is one visitor's application state. It is safe for concurrent use.
type Shell struct {
	client  identity.Client
	logger  *slog.Logger
	now     func() time.Time
	modal   *modal.Modal
	toasts  *Toaster
	limiter *rate.Limiter

	ticket  string
	surface ticket.Surface
	preview *ticket.Preview

	mu       sync.Mutex
	session  *model.Session
	mounted  bool
	disposed bool
	gen      uint64 // bumped on every session write
	sub      identity.Subscription
	cancel   context.CancelFunc
	ready    chan struct{}
	lastSeen time.Time

	readyOnce sync.Once

	fetches sync.WaitGroup
}

// New builds an unmounted shell and draws its demo ticket.
func New(client identity.Client, opts Options, logger *slog.Logger) *Shell {
	opts = opts.withDefaults()

	s := &Shell{
		client:   client,
		logger:   logger,
		now:      opts.Now,
		toasts:   &Toaster{},
		limiter:  rate.NewLimiter(opts.SubmitRate, opts.SubmitBurst),
		ticket:   ticket.DemoPayload(opts.Now()),
		surface:  opts.NewSurface(),
		ready:    make(chan struct{}),
		lastSeen: opts.Now(),
	}
	s.modal = modal.New(client, s.toasts, modal.Options{
		Timeout:  opts.SubmitTimeout,
		OnAuthed: s.onAuthed,
	})
	s.preview = ticket.NewPreview(s.surface, logger)
	s.preview.Render(s.ticket)
	return s
}

// Mount subscribes to session changes and starts the initial session fetch.
// The fetch result is dropped if the shell has been unmounted or a change
// notification arrived first. Mount on a mounted or disposed shell does
// nothing.
func (s *Shell) Mount(ctx context.Context) {
	s.mu.Lock()
	if s.mounted || s.disposed {
		s.mu.Unlock()
		return
	}
	s.mounted = true
	ctx, s.cancel = context.WithCancel(ctx)
	gen := s.gen
	s.mu.Unlock()

	sub := s.client.Subscribe(s.onChange)

	s.mu.Lock()
	if !s.mounted {
		// unmounted while subscribing
		s.mu.Unlock()
		sub.Unsubscribe()
		s.markReady()
		return
	}
	s.sub = sub
	s.fetches.Add(1)
	s.mu.Unlock()

	go s.fetch(ctx, gen)
}

func (s *Shell) fetch(ctx context.Context, gen uint64) {
	defer s.fetches.Done()
	defer s.markReady()

	session, err := s.client.CurrentSession(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn("initial session fetch failed", slog.String("error", err.Error()))
		}
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.mounted || s.gen != gen {
		return
	}
	s.session = session
	s.gen++
}

// Ready is closed once the initial session fetch has finished, whether or
// not its result was applied.
func (s *Shell) Ready() <-chan struct{} {
	return s.ready
}

func (s *Shell) markReady() {
	s.readyOnce.Do(func() { close(s.ready) })
}

// Unmount cancels a pending fetch and releases the subscription. Only the
// first call has an effect; the shell cannot be mounted again.
func (s *Shell) Unmount() {
	s.mu.Lock()
	if !s.mounted {
		s.disposed = true
		s.mu.Unlock()
		s.markReady()
		return
	}
	s.mounted = false
	s.disposed = true
	cancel, sub := s.cancel, s.sub
	s.cancel, s.sub = nil, nil
	s.mu.Unlock()

	cancel()
	if sub != nil {
		sub.Unsubscribe()
	}
	s.fetches.Wait()
}

// Mounted reports whether the shell is live.
func (s *Shell) Mounted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mounted
}

func (s *Shell) onChange(event model.Event, session *model.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.mounted {
		return
	}
	s.session = session
	s.gen++
	s.logger.Debug("session changed", slog.String("event", string(event)))
}

// onAuthed applies the session returned by a successful submit. A nil
// session (sign-up awaiting verification) leaves the current one alone.
func (s *Shell) onAuthed(session *model.Session) {
	if session == nil {
		return
	}
	s.setSession(session)
}

func (s *Shell) setSession(session *model.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = session
	s.gen++
}

// Session returns the visitor's current session, nil when signed out.
func (s *Shell) Session() *model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// Profile projects the current session.
func (s *Shell) Profile() *model.Profile {
	return identity.ProjectProfile(s.Session())
}

// Modal returns the visitor's auth modal.
func (s *Shell) Modal() *modal.Modal { return s.modal }

// Toasts returns the visitor's toast queue.
func (s *Shell) Toasts() *Toaster { return s.toasts }

// ShowAuth opens the auth modal.
func (s *Shell) ShowAuth() { s.modal.Open() }

// AllowSubmit reports whether the visitor may submit the auth form now.
func (s *Shell) AllowSubmit() bool { return s.limiter.Allow() }

// SignOut signs the visitor out and queues the sign-out toast.
func (s *Shell) SignOut(ctx context.Context) {
	if err := s.client.SignOut(ctx); err != nil {
		s.logger.Warn("sign-out failed", slog.String("error", err.Error()))
	}
	s.setSession(nil)
	s.toasts.Success(MsgSignedOut)
}

// Ticket returns the demo ticket payload, fixed for the shell's lifetime.
func (s *Shell) Ticket() string { return s.ticket }

// QRCode returns the rendered demo ticket, if the surface keeps an image.
func (s *Shell) QRCode() ([]byte, bool) {
	b, ok := s.surface.(interface{ Bytes() []byte })
	if !ok {
		return nil, false
	}
	img := b.Bytes()
	return img, len(img) > 0
}

// touch records activity for idle expiry.
func (s *Shell) touch() {
	s.mu.Lock()
	s.lastSeen = s.now()
	s.mu.Unlock()
}

func (s *Shell) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// View is everything a page render needs from the shell.
type View struct {
	Session *model.Session
	Profile *model.Profile
	Modal   modal.State
	Toasts  []Toast
	Ticket  string
}

// SignedIn reports whether the view has a session.
func (v View) SignedIn() bool { return v.Session != nil }

// View snapshots the shell and drains its toasts.
func (s *Shell) View() View {
	session := s.Session()
	return View{
		Session: session,
		Profile: identity.ProjectProfile(session),
		Modal:   s.modal.Snapshot(),
		Toasts:  s.toasts.Drain(),
		Ticket:  s.ticket,
	}
}
