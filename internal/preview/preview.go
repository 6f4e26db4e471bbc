// Package preview serves the build directory for local development with a
// live-reload script injected into every HTML page.
package preview

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/weaving/internal/apperr"
)

// SocketPath is where the live-reload websocket is mounted.
const SocketPath = "/ws"

// NotFoundRoute is the route of the site's custom not-found page.
const NotFoundRoute = "/404/"

//go:embed assets/livereload.js
var reloadScript string

// Site locates the directories the preview serves from.
type Site struct {
	BuildDir   string
	PublicDir  string
	ContentDir string
}

// Handler serves build output.
type Handler struct {
	site       Site
	publicRoot string
	logger     *slog.Logger
}

// NewHandler returns a catch-all handler for site.
func NewHandler(site Site, logger *slog.Logger) *Handler {
	return &Handler{
		site:       site,
		publicRoot: filepath.Base(site.PublicDir),
		logger:     logger,
	}
}

// SanitizePath drops empty, "." and ".." components from a request path
// and returns the remainder joined with "/", without a leading slash.
func SanitizePath(p string) string {
	var parts []string
	for _, seg := range strings.Split(p, "/") {
		switch seg {
		case "", ".", "..":
			continue
		}
		parts = append(parts, seg)
	}
	return strings.Join(parts, "/")
}

// resolve maps a request path to a file under the build directory.
func (h *Handler) resolve(reqPath string) string {
	clean := SanitizePath(reqPath)
	file := filepath.Join(h.site.BuildDir, filepath.FromSlash(clean))

	switch {
	case clean == "" || strings.HasSuffix(reqPath, "/"):
		return filepath.Join(file, "index.html")
	case clean == h.publicRoot || strings.HasPrefix(clean, h.publicRoot+"/"):
		return file
	}
	if info, err := os.Stat(file); err != nil || info.IsDir() {
		return filepath.Join(file, "index.html")
	}
	return file
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r.URL.Path, http.StatusOK)
}

func (h *Handler) serve(w http.ResponseWriter, reqPath string, status int) {
	file := h.resolve(reqPath)
	data, err := os.ReadFile(file)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if h.hasCustomNotFound() && !strings.HasPrefix(SanitizePath(reqPath)+"/", "404/") {
				h.serve(w, NotFoundRoute, http.StatusNotFound)
				return
			}
			err = fmt.Errorf("%s: %w", reqPath, apperr.ErrNotFound)
			h.logger.Debug("preview: not found", slog.String("path", reqPath))
			http.Error(w, "Error: "+err.Error(), http.StatusNotFound)
			return
		}
		h.logger.Error("preview: read failed", slog.String("path", file), slog.String("error", err.Error()))
		http.Error(w, "Error: "+err.Error(), http.StatusInternalServerError)
		return
	}

	ctype := mime.TypeByExtension(filepath.Ext(file))
	if ctype == "" {
		ctype = http.DetectContentType(data)
	}
	w.Header().Set("Content-Type", ctype)

	if isText(ctype) {
		data = InjectScript(data)
	}
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func (h *Handler) hasCustomNotFound() bool {
	_, err := os.Stat(filepath.Join(h.site.ContentDir, "404.md"))
	return err == nil
}

// InjectScript inserts the live-reload client right before the last
// closing body tag. Documents without one are returned unchanged.
func InjectScript(html []byte) []byte {
	s := string(html)
	i := strings.LastIndex(s, "</body>")
	if i < 0 {
		return html
	}
	return []byte(s[:i] + "<script>" + reloadScript + "</script>" + s[i:])
}

func isText(ctype string) bool {
	mt, _, err := mime.ParseMediaType(ctype)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mt, "text/") || mt == "application/xhtml+xml"
}
