package tabsync

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeStaticFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile %s: %v", name, err)
	}
}

func newStaticApp(t *testing.T, static StaticConfig) *App {
	t.Helper()
	app := New(Config{Static: static})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = app.Shutdown(ctx)
	})
	return app
}

func TestStaticServing_PrefixHandling(t *testing.T) {
	publicDir := filepath.Join(t.TempDir(), "public")
	writeStaticFile(t, publicDir, "app.js", "ok")

	app := newStaticApp(t, StaticConfig{Dir: publicDir, Prefix: "/static"})

	req := httptest.NewRequest(http.MethodGet, "http://example.com/static/app.js", nil)
	rr := httptest.NewRecorder()
	app.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("GET /static/app.js status = %d, want %d", rr.Code, http.StatusOK)
	}
	if got := rr.Body.String(); got != "ok" {
		t.Fatalf("GET /static/app.js body = %q, want %q", got, "ok")
	}

	req = httptest.NewRequest(http.MethodGet, "http://example.com/app.js", nil)
	rr = httptest.NewRecorder()
	app.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("GET /app.js status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestStaticServing_MethodAndHeadHandling(t *testing.T) {
	publicDir := filepath.Join(t.TempDir(), "public")
	writeStaticFile(t, publicDir, "app.js", "ok")

	app := newStaticApp(t, StaticConfig{Dir: publicDir, Prefix: "/"})

	req := httptest.NewRequest(http.MethodPost, "http://example.com/app.js", nil)
	rr := httptest.NewRecorder()
	app.ServeHTTP(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /app.js status = %d, want %d", rr.Code, http.StatusMethodNotAllowed)
	}

	req = httptest.NewRequest(http.MethodHead, "http://example.com/app.js", nil)
	rr = httptest.NewRecorder()
	app.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("HEAD /app.js status = %d, want %d", rr.Code, http.StatusOK)
	}
	if rr.Body.Len() != 0 {
		t.Fatalf("HEAD /app.js body = %q, want empty", rr.Body.String())
	}
}

func TestStaticServing_CacheProfiles(t *testing.T) {
	publicDir := filepath.Join(t.TempDir(), "public")
	writeStaticFile(t, publicDir, "app.a1b2c3d4.css", "fingerprinted")
	writeStaticFile(t, publicDir, "app.css", "plain")

	app := newStaticApp(t, StaticConfig{
		Dir:          publicDir,
		Prefix:       "/",
		CacheProfile: CacheProduction,
	})

	req := httptest.NewRequest(http.MethodGet, "http://example.com/app.a1b2c3d4.css", nil)
	rr := httptest.NewRecorder()
	app.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("GET /app.a1b2c3d4.css status = %d, want %d", rr.Code, http.StatusOK)
	}
	if got := rr.Header().Get("Cache-Control"); got != "public, max-age=31536000, immutable" {
		t.Fatalf("Cache-Control = %q, want %q", got, "public, max-age=31536000, immutable")
	}

	req = httptest.NewRequest(http.MethodGet, "http://example.com/app.css", nil)
	rr = httptest.NewRecorder()
	app.ServeHTTP(rr, req)

	if got := rr.Header().Get("Cache-Control"); got != "public, max-age=3600, must-revalidate" {
		t.Fatalf("Cache-Control = %q, want %q", got, "public, max-age=3600, must-revalidate")
	}

	app = newStaticApp(t, StaticConfig{
		Dir:          publicDir,
		Prefix:       "/",
		CacheProfile: CacheNone,
	})
	req = httptest.NewRequest(http.MethodGet, "http://example.com/app.css", nil)
	rr = httptest.NewRecorder()
	app.ServeHTTP(rr, req)

	if got := rr.Header().Get("Cache-Control"); got != "no-store, no-cache, must-revalidate" {
		t.Fatalf("Cache-Control = %q, want %q", got, "no-store, no-cache, must-revalidate")
	}
}

func TestStaticServing_CustomHeaders(t *testing.T) {
	publicDir := filepath.Join(t.TempDir(), "public")
	writeStaticFile(t, publicDir, "app.js", "ok")

	app := newStaticApp(t, StaticConfig{
		Dir:     publicDir,
		Prefix:  "/",
		Headers: map[string]string{"X-Frame-Options": "DENY"},
	})

	req := httptest.NewRequest(http.MethodGet, "http://example.com/app.js", nil)
	rr := httptest.NewRecorder()
	app.ServeHTTP(rr, req)

	if got := rr.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("X-Frame-Options = %q, want %q", got, "DENY")
	}
}

func TestStaticServing_BlocksDirectoryTraversal(t *testing.T) {
	tmpDir := t.TempDir()
	publicDir := filepath.Join(tmpDir, "public")
	writeStaticFile(t, publicDir, "ok.txt", "ok")
	if err := os.WriteFile(filepath.Join(tmpDir, "secret.txt"), []byte("secret"), 0o644); err != nil {
		t.Fatalf("WriteFile secret.txt: %v", err)
	}

	app := newStaticApp(t, StaticConfig{Dir: publicDir, Prefix: "/"})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "http://example.com/ok.txt", nil)
	app.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("GET /ok.txt status = %d, want %d", rr.Code, http.StatusOK)
	}

	cases := []string{
		"/../secret.txt",
		"/%2e%2e/secret.txt",
		"/..//secret.txt",
	}
	for _, p := range cases {
		rr = httptest.NewRecorder()
		req = httptest.NewRequest(http.MethodGet, "http://example.com"+p, nil)
		app.ServeHTTP(rr, req)

		if rr.Code == http.StatusOK && strings.Contains(rr.Body.String(), "secret") {
			t.Fatalf("GET %s unexpectedly served secret content", p)
		}
		if rr.Code != http.StatusNotFound {
			t.Fatalf("GET %s status = %d, want %d", p, rr.Code, http.StatusNotFound)
		}
	}
}

func TestStaticRelPath_RejectsUnsafePaths(t *testing.T) {
	publicDir := filepath.Join(t.TempDir(), "public")
	writeStaticFile(t, publicDir, "ok.txt", "ok")

	app := newStaticApp(t, StaticConfig{Dir: publicDir, Prefix: "/"})

	cases := []string{
		"/../x",
		"/a/../../x",
		"/a\\..\\x",
		"/a/./x",
		"//etc/passwd",
		"/a\x00.txt",
	}
	for _, p := range cases {
		if rel, ok := app.staticRelPath(p); ok {
			t.Fatalf("staticRelPath(%q) = %q, true; want rejection", p, rel)
		}
	}

	if rel, ok := app.staticRelPath("/ok.txt"); !ok || rel != "ok.txt" {
		t.Fatalf("staticRelPath(/ok.txt) = %q, %v; want ok.txt, true", rel, ok)
	}
}

func TestIsFingerprinted(t *testing.T) {
	cases := []struct {
		path string
		want bool
	}{
		{path: "app.a1b2c3d4.css", want: true},
		{path: "app.A1B2C3D4.css", want: true},
		{path: "app.12345678.css", want: true},
		{path: "app.1234567.css", want: false},
		{path: "app.zzzzzzzz.css", want: false},
		{path: "app.css", want: false},
	}

	for _, tc := range cases {
		if got := isFingerprinted(tc.path); got != tc.want {
			t.Fatalf("isFingerprinted(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}
