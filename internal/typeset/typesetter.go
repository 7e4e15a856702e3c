package typeset

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jonathan/resume-render-api/internal/rendering"
)

const (
	// ContentTypePDF is the content type of every artifact produced here.
	ContentTypePDF = "application/pdf"

	// DefaultTimeout bounds a single toolchain invocation.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxArtifactBytes caps the size of an accepted PDF.
	DefaultMaxArtifactBytes int64 = 10 << 20

	outputName = "resume.pdf"
)

// Typesetter converts a markup document into a PDF. All files it creates must
// live inside dir, which the caller owns and removes.
type Typesetter interface {
	Typeset(ctx context.Context, doc *rendering.MarkupDocument, dir string) (*Artifact, error)
}

// Artifact is a rendered document handed back to the caller.
type Artifact struct {
	Data        []byte
	ContentType string
	Size        int
	Pages       int // 0 when the page count could not be determined
}

// Router dispatches documents to a typesetter by markup format.
type Router struct {
	byFormat map[rendering.Format]Typesetter
}

// NewRouter creates an empty router. Use Handle to register typesetters.
func NewRouter() *Router {
	return &Router{byFormat: make(map[rendering.Format]Typesetter)}
}

// Handle registers t for documents of the given format.
func (r *Router) Handle(format rendering.Format, t Typesetter) {
	r.byFormat[format] = t
}

// Typeset implements Typesetter.
func (r *Router) Typeset(ctx context.Context, doc *rendering.MarkupDocument, dir string) (*Artifact, error) {
	if doc == nil {
		return nil, &Error{Message: "no document to typeset"}
	}
	t, ok := r.byFormat[doc.Format]
	if !ok {
		return nil, &Error{Message: fmt.Sprintf("no typesetter configured for format %q", doc.Format)}
	}
	return t.Typeset(ctx, doc, dir)
}

// Config configures the toolchains built by New.
type Config struct {
	XelatexPath     string
	PandocPath       string
	GhostscriptPath  string
	ChromePath       string
	Timeout          time.Duration
	MaxArtifactBytes int64
	Compress         bool
}

// New builds a router over the standard toolchains: xelatex for LaTeX, pandoc
// for Markdown and headless Chrome for HTML, each optionally followed by a
// Ghostscript compression pass.
func New(cfg Config, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxArtifactBytes <= 0 {
		cfg.MaxArtifactBytes = DefaultMaxArtifactBytes
	}

	wrap := func(t Typesetter) Typesetter {
		if !cfg.Compress {
			return t
		}
		return NewCompressor(t, cfg.GhostscriptPath, cfg.Timeout, logger)
	}

	r := NewRouter()
	r.Handle(rendering.FormatLaTeX, wrap(NewLaTeX(cfg.XelatexPath, cfg.Timeout, cfg.MaxArtifactBytes, logger)))
	r.Handle(rendering.FormatMarkdown, wrap(NewPandoc(cfg.PandocPath, cfg.XelatexPath, cfg.Timeout, cfg.MaxArtifactBytes, logger)))
	r.Handle(rendering.FormatHTML, wrap(NewChrome(cfg.ChromePath, cfg.Timeout, cfg.MaxArtifactBytes, logger)))
	return r
}

// writeInput writes the markup document into dir under its input name.
func writeInput(doc *rendering.MarkupDocument, dir string) (string, error) {
	if doc == nil || doc.InputName == "" {
		return "", &Error{Message: "document has no input name"}
	}
	path := filepath.Join(dir, filepath.Base(doc.InputName))
	if err := os.WriteFile(path, []byte(doc.Content), 0600); err != nil {
		return "", &Error{
			Message: "failed to write markup document",
			Cause:   err,
		}
	}
	return path, nil
}

// collectArtifact reads the toolchain output from dir. A missing or empty file
// is a MissingArtifactError; a file over maxBytes is rejected as a crash.
func collectArtifact(ctx context.Context, toolchain, dir, name string, maxBytes int64, diagnostics string) (*Artifact, error) {
	path := filepath.Join(dir, name)

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && info.Size() == 0) {
		return nil, &MissingArtifactError{
			Toolchain:   toolchain,
			Artifact:    name,
			Diagnostics: diagnostics,
		}
	}
	if err != nil {
		return nil, &Error{Message: "failed to stat artifact", Cause: err}
	}
	if maxBytes > 0 && info.Size() > maxBytes {
		return nil, &CrashError{
			Toolchain:   toolchain,
			Message:     fmt.Sprintf("artifact is %d bytes, limit is %d", info.Size(), maxBytes),
			Diagnostics: diagnostics,
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Message: "failed to read artifact", Cause: err}
	}

	pages, _ := CountPDFPages(ctx, data, path)

	return &Artifact{
		Data:        data,
		ContentType: ContentTypePDF,
		Size:        len(data),
		Pages:       pages,
	}, nil
}
