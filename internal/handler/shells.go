package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sakif/cinemax-club/internal/apperror"
	"github.com/sakif/cinemax-club/internal/auth"
	"github.com/sakif/cinemax-club/internal/shell"
)

// Shells resolves a visitor ID to that visitor's mounted shell.
// *shell.Registry implements it.
type Shells interface {
	Get(visitorID string) *shell.Shell
}

// errShuttingDown is returned once the registry has been closed.
var errShuttingDown = errors.New("handler: server is shutting down")

// readyWait bounds how long a render waits for a new shell's first session
// fetch, so a slow backend degrades to a signed-out page instead of a hang.
const readyWait = 2 * time.Second

// shellFor returns the calling visitor's shell. The auth.Visitor middleware
// must run first.
func shellFor(shells Shells, r *http.Request) (*shell.Shell, error) {
	id, ok := auth.VisitorIDFromContext(r.Context())
	if !ok {
		return nil, apperror.Unauthorized("missing visitor identity")
	}
	s := shells.Get(id)
	if s == nil {
		return nil, errShuttingDown
	}
	return s, nil
}

// awaitReady waits for the shell's initial session fetch, giving up after
// readyWait or when ctx ends.
func awaitReady(ctx context.Context, s *shell.Shell) {
	timer := time.NewTimer(readyWait)
	defer timer.Stop()
	select {
	case <-s.Ready():
	case <-timer.C:
	case <-ctx.Done():
	}
}

// redirectHome ends a form post with Post/Redirect/Get.
func redirectHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
