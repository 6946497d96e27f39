// ABOUTME: Embedded admin page served at the gateway root
// ABOUTME: A single static HTML file; the page talks to the JSON API and /ws

package assets

import (
	_ "embed"
	"net/http"
)

//go:embed admin.html
var adminHTML []byte

// AdminPage serves the embedded admin page. Any path other than the
// root is a 404; real routes are registered ahead of this handler.
func AdminPage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(adminHTML)
}
