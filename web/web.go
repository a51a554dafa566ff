// Package web embeds the page templates and static assets.
package web

import (
	"embed"
	"html/template"
	"io/fs"
	"strings"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Templates parses every template; the page entry point is "base".
func Templates() (*template.Template, error) {
	return template.New("").Funcs(template.FuncMap{
		"initial": initial,
	}).ParseFS(templateFS, "templates/*.html")
}

// Static returns the asset tree rooted at static/.
func Static() fs.FS {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		// the directory is embedded above, so this cannot happen
		panic(err)
	}
	return sub
}

// initial returns the first letter of name for the avatar badge.
func initial(name string) string {
	for _, r := range strings.TrimSpace(name) {
		return strings.ToUpper(string(r))
	}
	return "?"
}

// Show is one upcoming screening.
type Show struct {
	ID    int
	Title string
	Time  string
	Hall  string
}

// Shows is the fixed screening list.
var Shows = []Show{
	{ID: 1, Title: "Interstellar", Time: "7:00 PM", Hall: "A1"},
	{ID: 2, Title: "Oppenheimer", Time: "9:30 PM", Hall: "A1"},
}

// Feature is one marketing card.
type Feature struct {
	Icon        string
	Title       string
	Description string
}

// Features are placeholders for things the club plans to offer. None of
// them is implemented; the ticket QR in particular is only base64.
var Features = []Feature{
	{Icon: "🎟", Title: "3D Holographic Tickets", Description: "QR tickets with animated confirmations. The demo code is encoded, not encrypted."},
	{Icon: "📅", Title: "Smart Seat Selection", Description: "Hold seats for 5 minutes while you pay. Coming soon."},
	{Icon: "📷", Title: "Realtime Check-ins", Description: "Admins scan QR and mark attendance. Coming soon."},
}
