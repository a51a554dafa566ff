// Package modal implements the login/register dialog as a state machine.
//
// The modal is closed, open in login mode, or open in register mode. While a
// submit is in flight it refuses a second submit and refuses to close.
package modal

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/sakif/cinemax-club/internal/apperror"
	"github.com/sakif/cinemax-club/internal/model"
)

// Mode selects which form the modal shows.
type Mode string

const (
	ModeLogin    Mode = "login"
	ModeRegister Mode = "register"
)

// ParseMode accepts "login" or "register".
func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case ModeLogin, ModeRegister:
		return Mode(s), true
	}
	return "", false
}

// Toast texts.
const (
	MsgSignedIn   = "Welcome back!"
	MsgRegistered = "Registration successful. Please verify your email."
	MsgFailed     = "Authentication failed"
	MsgTimedOut   = "The sign-in service did not respond in time. Please try again."
)

// ErrClosed is returned by Submit when the modal is not open.
var ErrClosed = errors.New("modal: not open")

// Fields is the form state kept between requests. The password is not part
// of it: it is passed to Submit and dropped when the call returns.
type Fields struct {
	Email    string
	SIC      string
	FullName string
	Branch   string
	Year     string
}

func (f Fields) profile() model.RegistrationProfile {
	return model.RegistrationProfile{SIC: f.SIC, FullName: f.FullName, Branch: f.Branch, Year: f.Year}
}

// Authenticator is the part of the identity client the modal calls.
type Authenticator interface {
	SignIn(ctx context.Context, email, password string) (*model.Session, error)
	SignUp(ctx context.Context, email, password string, profile model.RegistrationProfile) (*model.Session, error)
}

// Notifier receives the modal's toasts.
type Notifier interface {
	Success(msg string)
	Error(msg string)
}

// Options configures a Modal.
type Options struct {
	// Timeout bounds one submit. Zero means no bound beyond ctx.
	Timeout time.Duration
	// OnAuthed is called once per successful submit, outside the modal lock.
	OnAuthed func(*model.Session)
}

// Modal is safe for concurrent use.
type Modal struct {
	auth   Authenticator
	notify Notifier
	opts   Options

	mu         sync.Mutex
	open       bool
	mode       Mode
	fields     Fields
	submitting bool
}

// New returns a closed modal.
func New(auth Authenticator, notify Notifier, opts Options) *Modal {
	return &Modal{auth: auth, notify: notify, opts: opts, mode: ModeLogin}
}

// Open shows the modal in login mode with empty fields. Opening an open
// modal leaves it as it is.
func (m *Modal) Open() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.open {
		return
	}
	m.open = true
	m.mode = ModeLogin
	m.fields = Fields{}
}

// Close hides the modal and discards the form. It is refused while a submit
// is in flight and reports whether the modal is now closed.
func (m *Modal) Close() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.submitting {
		return false
	}
	m.reset()
	return true
}

// SetMode switches between login and register and is ignored during a
// submit. Email survives the switch; the registration fields are dropped
// when leaving register.
func (m *Modal) SetMode(mode Mode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open || m.submitting || m.mode == mode {
		return
	}
	if m.mode == ModeRegister {
		m.fields = Fields{Email: m.fields.Email}
	}
	m.mode = mode
}

// Update stores typed values. Registration fields are ignored in login mode.
func (m *Modal) Update(f Fields) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open || m.submitting {
		return
	}
	m.fields.Email = f.Email
	if m.mode == ModeRegister {
		m.fields.SIC = strings.ToUpper(f.SIC)
		m.fields.FullName = f.FullName
		m.fields.Branch = f.Branch
		m.fields.Year = f.Year
	}
}

// Submit sends the form and password to the identity backend.
//
// A submit while another is in flight returns apperror.ErrBusy without
// calling the backend. On success the modal closes and OnAuthed runs; on
// failure the modal stays open with its fields and the error is returned
// after an error toast.
func (m *Modal) Submit(ctx context.Context, password string) error {
	m.mu.Lock()
	if !m.open {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.submitting {
		m.mu.Unlock()
		return apperror.Busy()
	}
	m.submitting = true
	mode, fields := m.mode, m.fields
	m.mu.Unlock()

	if m.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.opts.Timeout)
		defer cancel()
	}

	var (
		session *model.Session
		err     error
		success string
	)
	switch mode {
	case ModeRegister:
		session, err = m.auth.SignUp(ctx, fields.Email, password, fields.profile())
		success = MsgRegistered
	default:
		session, err = m.auth.SignIn(ctx, fields.Email, password)
		success = MsgSignedIn
	}

	m.mu.Lock()
	m.submitting = false
	if err == nil {
		m.reset()
	}
	m.mu.Unlock()

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = apperror.Wrap(apperror.Authentication(MsgTimedOut, 0), err)
		}
		m.notify.Error(apperror.MessageOf(err, MsgFailed))
		return err
	}

	m.notify.Success(success)
	if m.opts.OnAuthed != nil {
		m.opts.OnAuthed(session)
	}
	return nil
}

func (m *Modal) reset() {
	m.open = false
	m.mode = ModeLogin
	m.fields = Fields{}
}

// State is a point-in-time copy of the modal for rendering.
type State struct {
	Open       bool
	Mode       Mode
	Submitting bool
	// Fields echoes typed values back into the form.
	Fields Fields
}

// Register reports whether the register form is showing.
func (s State) Register() bool { return s.Mode == ModeRegister }

// Snapshot returns the current state.
func (m *Modal) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return State{Open: m.open, Mode: m.mode, Submitting: m.submitting, Fields: m.fields}
}
