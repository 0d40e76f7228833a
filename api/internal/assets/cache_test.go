package assets

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func network(t *testing.T) (http.Handler, *int) {
	hits := 0
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_, _ = io.WriteString(w, "network")
	}), &hits
}

func get(t *testing.T, h http.Handler, target string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestEmbeddedInstall(t *testing.T) {
	c, err := NewCache(Static(), "")
	require.NoError(t, err)
	require.NoError(t, c.Install(DefaultVersion))
	_, err = c.Activate(DefaultVersion)
	require.NoError(t, err)

	next, hits := network(t)
	h := c.Handler(next)

	for _, p := range Paths {
		rec := get(t, h, p, nil)
		assert.Equal(t, http.StatusOK, rec.Code, p)
		assert.Equal(t, DefaultVersion, rec.Header().Get("X-Cache-Version"), p)
	}
	assert.Zero(t, *hits)

	rec := get(t, h, "/", nil)
	assert.Contains(t, rec.Body.String(), "<title>Snap Solver</title>")
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Equal(t, "application/manifest+json", get(t, h, "/manifest.webmanifest", nil).Header().Get("Content-Type"))
}

func TestHandler_FallsBackToNetwork(t *testing.T) {
	c, err := NewCache(Static(), "https://solver.example.org")
	require.NoError(t, err)
	require.NoError(t, c.Install(DefaultVersion))
	_, err = c.Activate(DefaultVersion)
	require.NoError(t, err)

	next, hits := network(t)
	h := c.Handler(next)

	// miss
	rec := get(t, h, "https://solver.example.org/v1/history", nil)
	assert.Equal(t, "network", rec.Body.String())

	// cross-origin host
	rec = get(t, h, "https://other.example.org/styles.css", nil)
	assert.Equal(t, "network", rec.Body.String())

	// cross-origin Origin header
	rec = get(t, h, "https://solver.example.org/styles.css", map[string]string{"Origin": "https://evil.example.com"})
	assert.Equal(t, "network", rec.Body.String())

	// same origin
	rec = get(t, h, "https://solver.example.org/styles.css", nil)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/css")
	assert.Equal(t, 3, *hits)

	// non-GET
	req := httptest.NewRequest(http.MethodPost, "https://solver.example.org/", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, 4, *hits)
}

func TestActivate_PurgesOldVersions(t *testing.T) {
	fsys := fstest.MapFS{
		"index.html":           {Data: []byte("v1")},
		"styles.css":           {Data: []byte("body{}")},
		"app.js":               {Data: []byte("")},
		"manifest.webmanifest": {Data: []byte("{}")},
	}
	c, err := NewCache(fsys, "")
	require.NoError(t, err)

	require.NoError(t, c.Install("solver-cache-v1"))
	_, err = c.Activate("solver-cache-v1")
	require.NoError(t, err)

	fsys["index.html"] = &fstest.MapFile{Data: []byte("v2")}
	require.NoError(t, c.Install("solver-cache-v2"))
	assert.Equal(t, []string{"solver-cache-v1", "solver-cache-v2"}, c.Versions())

	next, _ := network(t)
	assert.Equal(t, "v1", get(t, c.Handler(next), "/", nil).Body.String())

	purged, err := c.Activate("solver-cache-v2")
	require.NoError(t, err)
	assert.Equal(t, []string{"solver-cache-v1"}, purged)
	assert.Equal(t, []string{"solver-cache-v2"}, c.Versions())
	assert.Equal(t, "v2", get(t, c.Handler(next), "/index.html", nil).Body.String())

	_, err = c.Activate("solver-cache-v1")
	assert.ErrorIs(t, err, ErrNotInstalled)
}

func TestInstall_MissingFile(t *testing.T) {
	c, err := NewCache(fstest.MapFS{"index.html": {Data: []byte("x")}}, "")
	require.NoError(t, err)
	assert.Error(t, c.Install("v1"))
	assert.Empty(t, c.Versions())
}

func TestNewCache_BadOrigin(t *testing.T) {
	_, err := NewCache(Static(), "solver.example.org")
	assert.Error(t, err)
}
