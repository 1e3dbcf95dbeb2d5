package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/mantra/internal/auth"
	"github.com/danmuck/mantra/internal/core"
	"github.com/danmuck/mantra/internal/pool"
	"github.com/danmuck/mantra/internal/rules"
	"github.com/danmuck/mantra/internal/term"
	"github.com/danmuck/mantra/internal/testutil/testlog"
	"github.com/danmuck/mantra/internal/wire"
	"github.com/gin-gonic/gin"
)

func newTestServer(t *testing.T) (*Server, *pool.Pool) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rs := rules.NewRuleSet()
	p, err := pool.New(rs, pool.Config{Workers: 2})
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	if err := rs.Register(core.NewModule(p, rs, nil), true); err != nil {
		t.Fatalf("register core: %v", err)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return New("mantra-test", ":0", nil, p, rs, nil), p
}

func do(t *testing.T, s *Server, method, path, contentType string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	s.HTTPRouter().ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), out); err != nil {
		t.Fatalf("decode body %q: %v", rr.Body.String(), err)
	}
}

func quiesce(t *testing.T, p *pool.Pool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.Quiesce(ctx); err != nil {
		t.Fatalf("quiesce: %v", err)
	}
}

func TestHealth(t *testing.T) {
	testlog.Start(t)
	s, _ := newTestServer(t)
	rr := do(t, s, http.MethodGet, "/health", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body map[string]any
	decode(t, rr, &body)
	if body["status"] != "ok" || body["service"] != "mantra-test" || body["workers"] != float64(2) {
		t.Fatalf("unexpected health body %#v", body)
	}
}

func TestPostTextMessageAndReadFiber(t *testing.T) {
	testlog.Start(t)
	s, p := newTestServer(t)
	rr := do(t, s, http.MethodPost, "/fibers/calc/messages", "text/plain", []byte("+ 1 * 2 3"))
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d body=%s", rr.Code, rr.Body.String())
	}
	quiesce(t, p)

	rr = do(t, s, http.MethodGet, "/fibers/calc", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var view FiberView
	decode(t, rr, &view)
	if view.Name != "calc" || view.Tape != "7" {
		t.Fatalf("unexpected fiber view %+v", view)
	}

	rr = do(t, s, http.MethodGet, "/fibers", "", nil)
	var list struct {
		Fibers []FiberView `json:"fibers"`
	}
	decode(t, rr, &list)
	if len(list.Fibers) != 1 || list.Fibers[0].Name != "calc" {
		t.Fatalf("unexpected fiber list %+v", list)
	}
}

func TestTLVMessageAndSnapshot(t *testing.T) {
	testlog.Start(t)
	s, p := newTestServer(t)
	payload, err := wire.EncodeTerms([]term.Term{term.Lit("cons"), term.Int(1), term.List(term.Int(2))})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	rr := do(t, s, http.MethodPost, "/fibers/bin/messages", wire.ContentType, payload)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d body=%s", rr.Code, rr.Body.String())
	}
	quiesce(t, p)

	rr = do(t, s, http.MethodGet, "/fibers/bin?format=tlv", "", nil)
	if rr.Code != http.StatusOK || !strings.HasPrefix(rr.Header().Get("Content-Type"), wire.ContentType) {
		t.Fatalf("unexpected response %d %q", rr.Code, rr.Header().Get("Content-Type"))
	}
	got, err := wire.DecodeTerms(rr.Body.Bytes())
	if err != nil {
		t.Fatalf("decode tlv: %v", err)
	}
	if !term.EqualAll(got, []term.Term{term.List(term.Int(1), term.Int(2))}) {
		t.Fatalf("unexpected tape %s", term.Format(got))
	}
}

func TestBadRequests(t *testing.T) {
	testlog.Start(t)
	s, _ := newTestServer(t)
	if rr := do(t, s, http.MethodGet, "/fibers/nobody", "", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if rr := do(t, s, http.MethodPost, "/fibers/x/messages", "text/plain", []byte("[open")); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for parse error, got %d", rr.Code)
	}
	if rr := do(t, s, http.MethodPost, "/fibers/x/messages", wire.ContentType, []byte{1, 2}); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad tlv, got %d", rr.Code)
	}
}

func TestModulesAndStats(t *testing.T) {
	testlog.Start(t)
	s, _ := newTestServer(t)
	rr := do(t, s, http.MethodGet, "/modules", "", nil)
	var mods struct {
		Modules []rules.ModuleInfo `json:"modules"`
	}
	decode(t, rr, &mods)
	if len(mods.Modules) != 1 || mods.Modules[0].Name != core.ModuleName || !mods.Modules[0].Active {
		t.Fatalf("unexpected modules %+v", mods)
	}

	rr = do(t, s, http.MethodPost, "/modules/active", "application/json", []byte(`{"name":"core","active":false}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	rr = do(t, s, http.MethodPost, "/modules/active", "application/json", []byte(`{"name":"nope","active":true}`))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	rr = do(t, s, http.MethodPost, "/modules/active", "application/json", []byte(`{"name":"core"}`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}

	rr = do(t, s, http.MethodGet, "/rules/stats", "", nil)
	var stats rules.CacheStats
	decode(t, rr, &stats)
	if stats.Reloads != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestMetricsAndExtensions(t *testing.T) {
	testlog.Start(t)
	s, _ := newTestServer(t)
	do(t, s, http.MethodGet, "/health", "", nil)
	rr := do(t, s, http.MethodGet, "/metrics", "", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "mantra_") {
		t.Fatalf("unexpected metrics response %d", rr.Code)
	}
	rr = do(t, s, http.MethodGet, "/extensions", "", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"extensions":[]`) {
		t.Fatalf("unexpected extensions response %s", rr.Body.String())
	}
}

func TestMutatingRoutesRequireToken(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	rs := rules.NewRuleSet()
	p, err := pool.New(rs, pool.Config{Workers: 1})
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	s := New("mantra-test", ":0", nil, p, rs, nil, WithValidator(auth.StaticToken{Token: "secret"}))

	if rr := do(t, s, http.MethodPost, "/fibers/guarded/messages", "text/plain", []byte("1")); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}
	if rr := do(t, s, http.MethodGet, "/fibers", "", nil); rr.Code != http.StatusOK {
		t.Fatalf("reads stay open, got %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/fibers/guarded/messages", strings.NewReader("1"))
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("Authorization", "Bearer secret")
	rr := httptest.NewRecorder()
	s.HTTPRouter().ServeHTTP(rr, req)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202 with token, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestOversizeMessageRejected(t *testing.T) {
	testlog.Start(t)
	s, p := newTestServer(t)
	body := "+ 1" + strings.Repeat(" ", maxMessageBytes) + "22222"
	rr := do(t, s, http.MethodPost, "/fibers/oversize/messages", "text/plain", []byte(body))
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d body=%s", rr.Code, rr.Body.String())
	}
	quiesce(t, p)
	if _, ok := p.Fiber(term.Intern("oversize")); ok {
		t.Fatalf("a rejected message must not create the fiber")
	}

	exact := "+ 1 2" + strings.Repeat(" ", maxMessageBytes-5)
	if rr := do(t, s, http.MethodPost, "/fibers/oversize/messages", "text/plain", []byte(exact)); rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202 at the limit, got %d", rr.Code)
	}
}

func TestReadingUnknownFiberDoesNotInternName(t *testing.T) {
	testlog.Start(t)
	s, _ := newTestServer(t)
	const name = "admin-test-never-sent"
	rr := do(t, s, http.MethodGet, "/fibers/"+name, "", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if _, ok := term.Lookup(name); ok {
		t.Fatalf("GET of an unknown fiber interned its name")
	}
}
