package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/cachebolt/cachebolt/pkg/cacheentry"
	"github.com/cachebolt/cachebolt/pkg/fingerprint"
	"github.com/cachebolt/cachebolt/pkg/memcache"
	"github.com/cachebolt/cachebolt/pkg/objectstore"
)

func newTestHandler() (*Handler, *memcache.Manager, *objectstore.Memory) {
	memory := memcache.NewManager(1<<20, zerolog.Nop())
	backend := objectstore.NewMemory()
	h := New("testapp", memory, backend, func() bool { return true }, zerolog.Nop())
	return h, memory, backend
}

func TestHandler_StatusMemory(t *testing.T) {
	h, memory, _ := newTestHandler()
	fp := fingerprint.Derive("GET", "/x", nil, nil)
	memory.Put(fp, cacheentry.NewMemoryEntry("/x", cacheentry.CachedResponse{StatusCode: 200}, time.Now(), time.Minute))

	req := httptest.NewRequest(http.MethodGet, "/admin/status-memory", nil)
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)

	if rr.Code != 200 {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	var body map[string]statusEntry
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	entry, ok := body[fp.Hex()]
	if !ok {
		t.Fatalf("expected entry keyed by %s, got %v", fp.Hex(), body)
	}
	if entry.Path != "/x" {
		t.Errorf("Path = %q, want /x", entry.Path)
	}
}

func TestHandler_StatusMemory_WrongMethod(t *testing.T) {
	h, _, _ := newTestHandler()
	req := httptest.NewRequest(http.MethodPost, "/admin/status-memory", nil)
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rr.Code)
	}
}

func TestHandler_Purge_MemoryOnly(t *testing.T) {
	h, memory, backend := newTestHandler()
	fp := fingerprint.Derive("GET", "/x", nil, nil)
	memory.Put(fp, cacheentry.NewMemoryEntry("/x", cacheentry.CachedResponse{}, time.Now(), time.Minute))
	backend.Put(context.Background(), fingerprint.ObjectKey("testapp", fp), []byte("body"))

	req := httptest.NewRequest(http.MethodDelete, "/admin/cache", nil)
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)

	if rr.Code != 200 {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if memory.Len() != 0 {
		t.Error("expected memory cache to be drained")
	}
	if backend.Len() != 1 {
		t.Error("expected object store to be untouched when backend=false")
	}
}

func TestHandler_Purge_IncludesBackend(t *testing.T) {
	h, memory, backend := newTestHandler()
	fp := fingerprint.Derive("GET", "/x", nil, nil)
	memory.Put(fp, cacheentry.NewMemoryEntry("/x", cacheentry.CachedResponse{}, time.Now(), time.Minute))
	backend.Put(context.Background(), fingerprint.ObjectKey("testapp", fp), []byte("body"))

	req := httptest.NewRequest(http.MethodDelete, "/admin/cache?backend=true", nil)
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)

	if rr.Code != 200 {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if backend.Len() != 0 {
		t.Error("expected object store to be purged when backend=true")
	}
}

func TestHandler_Healthz(t *testing.T) {
	h, _, _ := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/admin/healthz", nil)
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)

	if rr.Code != 200 {
		t.Errorf("status = %d, want 200", rr.Code)
	}
}

func TestHandler_Readyz_NotReady(t *testing.T) {
	memory := memcache.NewManager(1<<20, zerolog.Nop())
	backend := objectstore.NewMemory()
	h := New("testapp", memory, backend, func() bool { return false }, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/admin/readyz", nil)
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rr.Code)
	}
}

func TestHandler_Metrics(t *testing.T) {
	h, _, _ := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)

	if rr.Code != 200 {
		t.Errorf("status = %d, want 200", rr.Code)
	}
}
