package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/resume-render-api/internal/assistant"
	"github.com/jonathan/resume-render-api/internal/config"
	"github.com/jonathan/resume-render-api/internal/pipeline"
	"github.com/jonathan/resume-render-api/internal/server/ratelimit"
	"github.com/jonathan/resume-render-api/internal/typeset"
)

const testExtensionSecret = "extension-secret"

// fakeRenderer records pipeline requests and answers with a fixed result.
type fakeRenderer struct {
	mu       sync.Mutex
	requests []pipeline.Request
	result   *pipeline.Result
	err      error
}

func newFakeRenderer() *fakeRenderer {
	return &fakeRenderer{result: &pipeline.Result{
		JobID:    "job-1",
		Filename: "resume.pdf",
		Artifact: &typeset.Artifact{
			Data:        []byte("%PDF-1.4 fake"),
			ContentType: typeset.ContentTypePDF,
			Size:        13,
			Pages:       1,
		},
	}}
}

func (f *fakeRenderer) Run(_ context.Context, req pipeline.Request) (*pipeline.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

// fakeAssistant returns canned answers and records what it was asked.
type fakeAssistant struct {
	mu  sync.Mutex
	err error

	parsed   *assistant.ParsedResume
	query    string
	analysis *assistant.JobAnalysis
	letter   string
	tailored json.RawMessage

	creds        []assistant.Credentials
	resumeText   string
	private      bool
	queryJSON    string
	analysisReq  assistant.JobAnalysisRequest
	coverReq     assistant.CoverLetterRequest
	tailorReq    assistant.TailorRequest
	tailorCalled bool
}

func newFakeAssistant() *fakeAssistant {
	return &fakeAssistant{
		parsed: &assistant.ParsedResume{
			SearchQuery: `"Go Engineer" AND Kubernetes`,
			ResumeData:  json.RawMessage(`{"personal":{"name":"Jane Doe"}}`),
		},
		query: `"Go Engineer"`,
		analysis: &assistant.JobAnalysis{
			JobID:       "Backend Engineer @ Acme",
			CompanyName: "Acme",
			Analysis:    "<h2>Fit</h2>",
		},
		letter:   "Dear Acme team,",
		tailored: json.RawMessage(`{"personal":{"name":"Jane Doe"},"summary":["Go engineer"]}`),
	}
}

func (f *fakeAssistant) record(creds assistant.Credentials) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creds = append(f.creds, creds)
}

func (f *fakeAssistant) ParseResume(_ context.Context, creds assistant.Credentials, text string, private bool) (*assistant.ParsedResume, error) {
	f.record(creds)
	f.resumeText, f.private = text, private
	return f.parsed, f.err
}

func (f *fakeAssistant) SearchQuery(_ context.Context, creds assistant.Credentials, resumeJSON string) (string, error) {
	f.record(creds)
	f.queryJSON = resumeJSON
	return f.query, f.err
}

func (f *fakeAssistant) AnalyzeJob(_ context.Context, creds assistant.Credentials, req assistant.JobAnalysisRequest) (*assistant.JobAnalysis, error) {
	f.record(creds)
	f.analysisReq = req
	return f.analysis, f.err
}

func (f *fakeAssistant) CoverLetter(_ context.Context, creds assistant.Credentials, req assistant.CoverLetterRequest) (string, error) {
	f.record(creds)
	f.coverReq = req
	return f.letter, f.err
}

func (f *fakeAssistant) Tailor(_ context.Context, creds assistant.Credentials, req assistant.TailorRequest) (json.RawMessage, error) {
	f.record(creds)
	f.tailorReq, f.tailorCalled = req, true
	if f.err != nil {
		return nil, f.err
	}
	return f.tailored, nil
}

type testServer struct {
	*Server
	handler   http.Handler
	renderer  *fakeRenderer
	assistant *fakeAssistant
	logs      *bytes.Buffer
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Auth.ExtensionSecret = testExtensionSecret
	cfg.Auth.JWT.Secret = testJWTSecret
	return &cfg
}

// newTestServer builds a server over fakes. Rate limiting is off unless a limiter is given.
func newTestServer(t *testing.T, limiter *ratelimit.Limiter) *testServer {
	t.Helper()
	if limiter == nil {
		limiter = ratelimit.NewLimiter(&ratelimit.Config{Enabled: false})
	}
	t.Cleanup(limiter.Stop)

	logs := &bytes.Buffer{}
	renderer := newFakeRenderer()
	fa := newFakeAssistant()
	s, err := New(testConfig(), Deps{
		Renderer:  renderer,
		Assistant: fa,
		Logger:    slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
		Limiter:   limiter,
	})
	require.NoError(t, err)

	return &testServer{Server: s, handler: s.Handler(), renderer: renderer, assistant: fa, logs: logs}
}

func (ts *testServer) token(t *testing.T) string {
	t.Helper()
	token, err := ts.jwtService.GenerateToken(ExtensionSubject)
	require.NoError(t, err)
	return token
}

// do sends a request through the full middleware chain.
func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "192.0.2.10:5555"
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), "body: %s", w.Body.String())
	return body
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, Deps{})
	assert.Error(t, err)

	_, err = New(testConfig(), Deps{Assistant: newFakeAssistant()})
	assert.Error(t, err, "renderer is required")

	cfg := testConfig()
	cfg.Auth.ExtensionSecret = ""
	_, err = New(cfg, Deps{Renderer: newFakeRenderer(), Assistant: newFakeAssistant()})
	assert.Error(t, err, "an extension secret is required")

	cfg = testConfig()
	cfg.Auth.JWT.Secret = ""
	_, err = New(cfg, Deps{Renderer: newFakeRenderer(), Assistant: newFakeAssistant()})
	assert.Error(t, err, "a JWT secret is required")
}

func TestNew_HTTPServerSettings(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Port = 9090
	limiter := ratelimit.NewLimiter(&ratelimit.Config{Enabled: false})
	defer limiter.Stop()

	s, err := New(cfg, Deps{Renderer: newFakeRenderer(), Assistant: newFakeAssistant(), Limiter: limiter})
	require.NoError(t, err)
	assert.Equal(t, ":9090", s.httpServer.Addr)
	assert.Equal(t, 30*time.Second, s.httpServer.ReadTimeout)
	assert.Equal(t, 120*time.Second, s.httpServer.WriteTimeout)
	assert.Equal(t, 60*time.Second, s.httpServer.IdleTimeout)
}

func TestHomeEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(t, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "<h1>CV Generator is running!</h1>", w.Body.String())

	w = ts.do(t, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "ok", decodeBody(t, w)["status"])
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	ts := newTestServer(t, nil)

	for _, path := range []string{
		"/get-resume-json",
		"/generate-search-query",
		"/analyze-job-posting",
		"/generate-cover-letter",
		"/tailor-resume",
		"/render-resume",
	} {
		t.Run(path, func(t *testing.T) {
			w := ts.do(t, http.MethodPost, path, "", map[string]string{})
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, "Authorization token is missing or invalid.", decodeBody(t, w)["error"])

			w = ts.do(t, http.MethodPost, path, "not-a-token", map[string]string{})
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, "Invalid token.", decodeBody(t, w)["error"])
		})
	}
}

func TestExpiredToken(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.jwtService.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token := ts.token(t)
	ts.jwtService.now = time.Now

	w := ts.do(t, http.MethodPost, "/generate-search-query", token, map[string]any{"resume_json_data": map[string]any{"a": 1}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Token has expired.", decodeBody(t, w)["error"])
}

func TestCORSMiddleware(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Authorization")
	assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), "X-Render-Pages")
}

func TestCORSMiddleware_OPTIONS(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(t, http.MethodOptions, "/tailor-resume", "", nil)
	assert.Equal(t, http.StatusOK, w.Code, "preflight needs no token")
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestCORSMiddleware_AllowList(t *testing.T) {
	s := &Server{origins: []string{"chrome-extension://abc"}, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	handler := s.withCORS(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "chrome-extension://abc")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, "chrome-extension://abc", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Origin", w.Header().Get("Vary"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestLoggingMiddleware(t *testing.T) {
	ts := newTestServer(t, nil)

	ts.do(t, http.MethodGet, "/health", "", nil)
	logs := ts.logs.String()
	assert.Contains(t, logs, "path=/health")
	assert.Contains(t, logs, "status=200")
}

func TestRateLimit_AuthenticateByIP(t *testing.T) {
	limiter := ratelimit.NewLimiter(&ratelimit.Config{
		Enabled:         true,
		EndpointConfigs: ratelimit.DefaultEndpointConfigs(ratelimit.DefaultAIRates(), ratelimit.DefaultAuthRates()),
	})
	ts := newTestServer(t, limiter)

	body := map[string]string{"client_secret": testExtensionSecret}
	for i := 0; i < 2; i++ {
		w := ts.do(t, http.MethodPost, "/authenticate", "", body)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	}

	w := ts.do(t, http.MethodPost, "/authenticate", "", body)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "Rate limit exceeded. Please try again later.", decodeBody(t, w)["error"])
	assert.Equal(t, "30", w.Header().Get("Retry-After"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
}

func TestRateLimit_AIEndpointsBySubject(t *testing.T) {
	limiter := ratelimit.NewLimiter(&ratelimit.Config{
		Enabled:         true,
		EndpointConfigs: ratelimit.DefaultEndpointConfigs(ratelimit.DefaultAIRates(), ratelimit.DefaultAuthRates()),
	})
	ts := newTestServer(t, limiter)
	token := ts.token(t)
	body := map[string]any{"resume_json_data": map[string]any{"summary": []string{"Go"}}}

	for i := 0; i < 2; i++ {
		w := ts.do(t, http.MethodPost, "/generate-search-query", token, body)
		require.Equal(t, http.StatusOK, w.Code)
	}
	w := ts.do(t, http.MethodPost, "/generate-search-query", token, body)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	w = ts.do(t, http.MethodPost, "/generate-cover-letter", "", body)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "authentication runs before the limiter")
}

func TestJSONResponse(t *testing.T) {
	ts := newTestServer(t, nil)
	w := httptest.NewRecorder()

	ts.jsonResponse(w, http.StatusCreated, map[string]int{"n": 1})
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"n":1}`, w.Body.String())
}

func TestErrorResponse(t *testing.T) {
	ts := newTestServer(t, nil)
	w := httptest.NewRecorder()

	ts.errorResponse(w, http.StatusBadRequest, "bad")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"bad"}`, w.Body.String())
}

func TestDecodeJSON_TooLarge(t *testing.T) {
	ts := newTestServer(t, nil)
	token := ts.token(t)

	huge := `{"resume_content":"` + strings.Repeat("a", maxBodyBytes) + `"}`
	w := ts.do(t, http.MethodPost, "/get-resume-json", token, huge)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Request body is too large", decodeBody(t, w)["error"])
}

func TestStart_ShutsDownOnCancel(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Port = 0
	limiter := ratelimit.NewLimiter(&ratelimit.Config{Enabled: true, CleanupInterval: time.Minute})
	s, err := New(cfg, Deps{
		Renderer:  newFakeRenderer(),
		Assistant: newFakeAssistant(),
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Limiter:   limiter,
	})
	require.NoError(t, err)
	s.httpServer.Addr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
