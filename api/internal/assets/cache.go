// Package assets serves the web client from a versioned in-memory cache that
// is filled from the embedded static files.
package assets

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"net/http"
	"net/url"
	"path"
	"slices"
	"strings"
	"sync"
	"time"
)

//go:embed static
var static embed.FS

// Static is the embedded web client rooted at its own directory.
func Static() fs.FS {
	sub, err := fs.Sub(static, "static")
	if err != nil {
		panic(err)
	}
	return sub
}

const DefaultVersion = "solver-cache-v1"

// Paths are pre-cached on Install.
var Paths = []string{"/", "/index.html", "/styles.css", "/app.js", "/manifest.webmanifest"}

var ErrNotInstalled = errors.New("cache version not installed")

type entry struct {
	body        []byte
	contentType string
}

// Cache keeps named snapshots of the asset list. Exactly one is active at a
// time; requests are answered from it.
type Cache struct {
	fsys   fs.FS
	origin *url.URL
	loaded time.Time

	mu     sync.RWMutex
	caches map[string]map[string]entry
	active string
}

// NewCache reads assets from fsys. origin, when set, is the public origin the
// handler treats as its own; otherwise every request is same-origin.
func NewCache(fsys fs.FS, origin string) (*Cache, error) {
	c := &Cache{fsys: fsys, caches: make(map[string]map[string]entry), loaded: time.Now()}
	if origin = strings.TrimSpace(origin); origin != "" {
		u, err := url.Parse(origin)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("public origin %q: not an absolute url", origin)
		}
		c.origin = u
	}
	return c, nil
}

func fileFor(p string) string {
	if p == "/" {
		return "index.html"
	}
	return strings.TrimPrefix(p, "/")
}

func contentType(name string) string {
	if path.Ext(name) == ".webmanifest" {
		return "application/manifest+json"
	}
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// Install stores every path under version. Nothing is stored if any file is
// missing.
func (c *Cache) Install(version string) error {
	entries := make(map[string]entry, len(Paths))
	for _, p := range Paths {
		name := fileFor(p)
		body, err := fs.ReadFile(c.fsys, name)
		if err != nil {
			return fmt.Errorf("install %s: %s: %w", version, p, err)
		}
		entries[p] = entry{body: body, contentType: contentType(name)}
	}
	c.mu.Lock()
	c.caches[version] = entries
	c.mu.Unlock()
	return nil
}

// Activate makes version current and purges every other version. It returns
// the purged names.
func (c *Cache) Activate(version string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.caches[version]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotInstalled, version)
	}
	var purged []string
	for name := range c.caches {
		if name != version {
			delete(c.caches, name)
			purged = append(purged, name)
		}
	}
	slices.Sort(purged)
	c.active = version
	return purged, nil
}

func (c *Cache) Active() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

func (c *Cache) Versions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.caches))
	for name := range c.caches {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

func (c *Cache) match(p string) (entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.caches[c.active][p]
	return e, ok
}

func (c *Cache) sameOrigin(r *http.Request) bool {
	if c.origin == nil {
		return true
	}
	if !strings.EqualFold(r.Host, c.origin.Host) {
		return false
	}
	if o := r.Header.Get("Origin"); o != "" {
		u, err := url.Parse(o)
		if err != nil || !strings.EqualFold(u.Host, c.origin.Host) || u.Scheme != c.origin.Scheme {
			return false
		}
	}
	return true
}

// Handler answers same-origin GET and HEAD requests for cached paths and
// hands everything else to next.
func (c *Cache) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if (r.Method != http.MethodGet && r.Method != http.MethodHead) || !c.sameOrigin(r) {
			next.ServeHTTP(w, r)
			return
		}
		e, ok := c.match(r.URL.Path)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Content-Type", e.contentType)
		w.Header().Set("X-Cache-Version", c.Active())
		http.ServeContent(w, r, fileFor(r.URL.Path), c.loaded, bytes.NewReader(e.body))
	})
}
