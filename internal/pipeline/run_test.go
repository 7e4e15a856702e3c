package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/resume-render-api/internal/rendering"
	"github.com/jonathan/resume-render-api/internal/schemas"
	"github.com/jonathan/resume-render-api/internal/typeset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validResume = `{
	"personal": {"name": "Ada Lovelace", "email": "ada@example.com"},
	"experience": [{"position": "Engineer", "company": "Analytical Engines", "highlights": ["Wrote the first program"]}]
}`

// typesetterFunc adapts a function to typeset.Typesetter.
type typesetterFunc func(ctx context.Context, doc *rendering.MarkupDocument, dir string) (*typeset.Artifact, error)

func (f typesetterFunc) Typeset(ctx context.Context, doc *rendering.MarkupDocument, dir string) (*typeset.Artifact, error) {
	return f(ctx, doc, dir)
}

// copyTypesetter writes the markup into dir and returns it as the artifact.
func copyTypesetter(calls *atomic.Int32) typeset.Typesetter {
	return typesetterFunc(func(_ context.Context, doc *rendering.MarkupDocument, dir string) (*typeset.Artifact, error) {
		if calls != nil {
			calls.Add(1)
		}
		if err := os.WriteFile(filepath.Join(dir, doc.InputName), []byte(doc.Content), 0600); err != nil {
			return nil, err
		}
		return &typeset.Artifact{Data: []byte(doc.Content), ContentType: typeset.ContentTypePDF, Size: len(doc.Content)}, nil
	})
}

func newTestOrchestrator(t *testing.T, cfg Config, ts typeset.Typesetter, opts ...Option) *Orchestrator {
	t.Helper()
	renderer, err := rendering.NewRenderer("")
	require.NoError(t, err)
	if cfg.WorkRoot == "" {
		cfg.WorkRoot = t.TempDir()
	}
	return New(cfg, renderer, ts, nil, opts...)
}

func requireShell(t *testing.T) string {
	t.Helper()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available, skipping subprocess test")
	}
	return sh
}

func requireKind(t *testing.T, err error, kind Kind) *Error {
	t.Helper()
	var pipelineErr *Error
	require.ErrorAs(t, err, &pipelineErr)
	assert.Equal(t, kind, pipelineErr.Kind)
	return pipelineErr
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "scoped directories should be removed")
}

func TestRun_Success(t *testing.T) {
	var events []State
	root := t.TempDir()
	o := newTestOrchestrator(t, Config{WorkRoot: root}, copyTypesetter(nil), WithProgress(func(e ProgressEvent) {
		events = append(events, e.State)
	}))

	result, err := o.Run(context.Background(), Request{
		Resume: json.RawMessage(validResume),
		Style:  &rendering.StyleOptions{Filename: "Ada CV"},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, result.JobID)
	assert.Equal(t, "Ada_CV.pdf", result.Filename)
	assert.Contains(t, string(result.Artifact.Data), "Analytical Engines")
	assert.Equal(t, []State{StateReceived, StateRendering, StateTypesetting, StateComplete}, events)
	assertEmptyDir(t, root)
}

func TestRun_InvalidRequest(t *testing.T) {
	var calls atomic.Int32
	o := newTestOrchestrator(t, Config{}, copyTypesetter(&calls))

	tests := []struct {
		name string
		req  Request
	}{
		{name: "missing resume", req: Request{Style: &rendering.StyleOptions{}}},
		{name: "null resume", req: Request{Resume: json.RawMessage(" null "), Style: &rendering.StyleOptions{}}},
		{name: "missing style", req: Request{Resume: json.RawMessage(validResume)}},
		{name: "unsupported style", req: Request{Resume: json.RawMessage(validResume), Style: &rendering.StyleOptions{Paper: "legal"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := o.Run(context.Background(), tt.req)
			assert.Nil(t, result)
			requireKind(t, err, KindInvalidRequest)
		})
	}
	assert.Equal(t, int32(0), calls.Load())
}

func TestRun_InvalidResumeSchemaNeverInvokesToolchain(t *testing.T) {
	var calls atomic.Int32
	root := t.TempDir()
	var events []ProgressEvent
	o := newTestOrchestrator(t, Config{WorkRoot: root}, copyTypesetter(&calls), WithProgress(func(e ProgressEvent) {
		events = append(events, e)
	}))

	docs := []string{
		`{}`,
		`{"hobbies": ["chess"]}`,
		`{"experience": [], "education": []}`,
		`{"experience": "ten years"}`,
		`not json`,
	}

	for _, doc := range docs {
		t.Run(doc, func(t *testing.T) {
			events = nil
			_, err := o.Run(context.Background(), Request{Resume: json.RawMessage(doc), Style: &rendering.StyleOptions{}})
			requireKind(t, err, KindInvalidResumeSchema)

			require.NotEmpty(t, events)
			last := events[len(events)-1]
			assert.Equal(t, StateFailed, last.State)
			assert.Equal(t, KindInvalidResumeSchema, last.Kind)
		})
	}

	assert.Equal(t, int32(0), calls.Load())
	assertEmptyDir(t, root)
}

func TestRun_SchemaErrorIsDescriptive(t *testing.T) {
	o := newTestOrchestrator(t, Config{}, copyTypesetter(nil))

	_, err := o.Run(context.Background(), Request{Resume: json.RawMessage(`{"skills": "Go"}`), Style: &rendering.StyleOptions{}})
	pipelineErr := requireKind(t, err, KindInvalidResumeSchema)
	assert.Contains(t, pipelineErr.Message, "skills")
}

func TestRun_UnknownNestedShapesAreIgnored(t *testing.T) {
	o := newTestOrchestrator(t, Config{}, copyTypesetter(nil))

	docs := []string{
		`{"personal": {"name": "Ada", "tags": [["x"]]}}`,
		`{"skills": [["Go", "Rust"]], "experience": [{"company": "Acme"}]}`,
	}
	for _, doc := range docs {
		t.Run(doc, func(t *testing.T) {
			result, err := o.Run(context.Background(), Request{Resume: json.RawMessage(doc), Style: &rendering.StyleOptions{}})
			require.NoError(t, err)
			assert.NotEmpty(t, result.Artifact.Data)
		})
	}
}

func TestRun_ToolchainTimeoutRemovesDirectory(t *testing.T) {
	sh := requireShell(t)
	root := t.TempDir()

	var seenDir string
	slow := &typeset.Command{
		Toolchain: "sh",
		Path:      sh,
		Args:      []string{"-c", "sleep 30"},
		Timeout:   200 * time.Millisecond,
	}
	ts := typesetterFunc(func(ctx context.Context, doc *rendering.MarkupDocument, dir string) (*typeset.Artifact, error) {
		seenDir = dir
		return slow.Typeset(ctx, doc, dir)
	})

	o := newTestOrchestrator(t, Config{WorkRoot: root}, ts)
	result, err := o.Run(context.Background(), Request{Resume: json.RawMessage(validResume), Style: &rendering.StyleOptions{}})
	assert.Nil(t, result)
	pipelineErr := requireKind(t, err, KindToolchainTimeout)
	assert.Equal(t, msgTimeout, pipelineErr.Message)

	require.NotEmpty(t, seenDir)
	_, statErr := os.Stat(seenDir)
	assert.True(t, errors.Is(statErr, os.ErrNotExist), "scoped directory should be gone")
	assertEmptyDir(t, root)
}

func TestRun_ToolchainCrashCapturesDiagnostics(t *testing.T) {
	sh := requireShell(t)
	root := t.TempDir()

	crashing := &typeset.Command{
		Toolchain: "sh",
		Path:      sh,
		Args:      []string{"-c", "cp {input} {output}; echo '! LaTeX Error: File missing.sty not found.' >&2; exit 1"},
		Timeout:   10 * time.Second,
	}

	o := newTestOrchestrator(t, Config{WorkRoot: root}, crashing)
	result, err := o.Run(context.Background(), Request{Resume: json.RawMessage(validResume), Style: &rendering.StyleOptions{}})

	assert.Nil(t, result, "no partial artifact may be returned")
	pipelineErr := requireKind(t, err, KindToolchainCrash)
	assert.Contains(t, pipelineErr.Diagnostics, "missing.sty")
	assert.NotContains(t, pipelineErr.Message, "missing.sty")
	assert.NotContains(t, pipelineErr.Message, root)
	assertEmptyDir(t, root)
}

func TestRun_ArtifactMissing(t *testing.T) {
	sh := requireShell(t)
	root := t.TempDir()

	silent := &typeset.Command{Toolchain: "sh", Path: sh, Args: []string{"-c", "exit 0"}, Timeout: 10 * time.Second}

	o := newTestOrchestrator(t, Config{WorkRoot: root}, silent)
	_, err := o.Run(context.Background(), Request{Resume: json.RawMessage(validResume), Style: &rendering.StyleOptions{}})

	requireKind(t, err, KindArtifactMissing)
	assertEmptyDir(t, root)
}

func TestRun_ConcurrentRequestsAreIsolated(t *testing.T) {
	root := t.TempDir()

	// Both requests write the same file name into their directory; each must
	// only ever see its own.
	var (
		mu   sync.Mutex
		dirs = map[string]bool{}
	)
	ready := make(chan struct{})
	var arrived atomic.Int32
	ts := typesetterFunc(func(_ context.Context, doc *rendering.MarkupDocument, dir string) (*typeset.Artifact, error) {
		mu.Lock()
		dirs[dir] = true
		mu.Unlock()

		path := filepath.Join(dir, doc.InputName)
		if err := os.WriteFile(path, []byte(doc.Content), 0600); err != nil {
			return nil, err
		}
		if arrived.Add(1) == 2 {
			close(ready)
		}
		select {
		case <-ready:
		case <-time.After(5 * time.Second):
			return nil, fmt.Errorf("other request never arrived")
		}

		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, err
		}
		if len(entries) != 1 {
			return nil, fmt.Errorf("directory shared: %d entries", len(entries))
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return &typeset.Artifact{Data: data, ContentType: typeset.ContentTypePDF, Size: len(data)}, nil
	})

	o := newTestOrchestrator(t, Config{Workers: 2, WorkRoot: root}, ts)

	resumes := []string{
		`{"experience": [{"company": "First Corp", "position": "Alpha"}]}`,
		`{"experience": [{"company": "Second Corp", "position": "Beta"}]}`,
	}
	results := make([]*Result, len(resumes))
	errs := make([]error, len(resumes))

	var wg sync.WaitGroup
	for i, resume := range resumes {
		wg.Add(1)
		go func(i int, resume string) {
			defer wg.Done()
			results[i], errs[i] = o.Run(context.Background(), Request{Resume: json.RawMessage(resume), Style: &rendering.StyleOptions{}})
		}(i, resume)
	}
	wg.Wait()

	for i := range resumes {
		require.NoError(t, errs[i])
	}
	assert.Contains(t, string(results[0].Artifact.Data), "First Corp")
	assert.NotContains(t, string(results[0].Artifact.Data), "Second Corp")
	assert.Contains(t, string(results[1].Artifact.Data), "Second Corp")
	assert.NotContains(t, string(results[1].Artifact.Data), "First Corp")
	assert.Len(t, dirs, 2)
	assert.NotEqual(t, results[0].JobID, results[1].JobID)
	assertEmptyDir(t, root)
}

func TestRun_Idempotent(t *testing.T) {
	o := newTestOrchestrator(t, Config{}, copyTypesetter(nil))
	req := Request{Resume: json.RawMessage(validResume), Style: &rendering.StyleOptions{Format: rendering.FormatMarkdown}}

	first, err := o.Run(context.Background(), req)
	require.NoError(t, err)
	second, err := o.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.Artifact.Data, second.Artifact.Data)
}

func TestRun_IdempotentWithSubprocess(t *testing.T) {
	sh := requireShell(t)
	cat := &typeset.Command{Toolchain: "sh", Path: sh, Args: []string{"-c", "cat {input} {input} > {output}"}, Timeout: 10 * time.Second}
	o := newTestOrchestrator(t, Config{}, cat)
	req := Request{Resume: json.RawMessage(validResume), Style: &rendering.StyleOptions{}}

	first, err := o.Run(context.Background(), req)
	require.NoError(t, err)
	second, err := o.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.Artifact.Data, second.Artifact.Data)
}

func TestRun_QueueTimeout(t *testing.T) {
	started := make(chan struct{})
	unblock := make(chan struct{})
	blocking := typesetterFunc(func(_ context.Context, doc *rendering.MarkupDocument, _ string) (*typeset.Artifact, error) {
		close(started)
		<-unblock
		return &typeset.Artifact{Data: []byte(doc.Content)}, nil
	})

	o := newTestOrchestrator(t, Config{Workers: 1, QueueTimeout: 50 * time.Millisecond}, blocking)
	req := Request{Resume: json.RawMessage(validResume), Style: &rendering.StyleOptions{}}

	done := make(chan error, 1)
	go func() {
		_, err := o.Run(context.Background(), req)
		done <- err
	}()
	<-started

	_, err := o.Run(context.Background(), req)
	pipelineErr := requireKind(t, err, KindToolchainTimeout)
	assert.True(t, strings.Contains(pipelineErr.Message, "worker"))

	close(unblock)
	require.NoError(t, <-done)
}

func TestResolveWorkers(t *testing.T) {
	assert.Equal(t, 5, ResolveWorkers(5))

	auto := ResolveWorkers(0)
	assert.GreaterOrEqual(t, auto, MinWorkers)
	assert.LessOrEqual(t, auto, MaxWorkers)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "schema violation", err: &schemas.ValidationError{Errors: []schemas.FieldError{{Field: "a", Message: "b"}}}, want: KindInvalidResumeSchema},
		{name: "empty record", err: &rendering.SchemaError{Message: "empty"}, want: KindInvalidResumeSchema},
		{name: "bad style", err: &rendering.StyleError{Option: "paper", Value: "x"}, want: KindInvalidRequest},
		{name: "timeout", err: &typeset.TimeoutError{Toolchain: "xelatex"}, want: KindToolchainTimeout},
		{name: "crash", err: fmt.Errorf("wrapped: %w", &typeset.CrashError{Toolchain: "pandoc"}), want: KindToolchainCrash},
		{name: "missing", err: &typeset.MissingArtifactError{Toolchain: "chrome"}, want: KindArtifactMissing},
		{name: "unknown", err: errors.New("disk on fire"), want: KindToolchainCrash},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)
			assert.Equal(t, tt.want, got.Kind)
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

func TestKind_IsClientError(t *testing.T) {
	assert.True(t, KindInvalidRequest.IsClientError())
	assert.True(t, KindInvalidResumeSchema.IsClientError())
	assert.False(t, KindToolchainTimeout.IsClientError())
	assert.False(t, KindToolchainCrash.IsClientError())
	assert.False(t, KindArtifactMissing.IsClientError())
}

func TestScopedDir_Unique(t *testing.T) {
	root := t.TempDir()
	a, err := newScopedDir(root, uuid.New())
	require.NoError(t, err)
	b, err := newScopedDir(root, uuid.New())
	require.NoError(t, err)

	assert.NotEqual(t, a.Path, b.Path)
	require.NoError(t, a.Release())
	require.NoError(t, b.Release())
	assertEmptyDir(t, root)
}
