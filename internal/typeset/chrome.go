package typeset

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/jonathan/resume-render-api/internal/rendering"
)

// Chrome prints HTML documents to PDF with a headless Chrome instance started
// for each document. The browser profile lives inside the scoped directory.
type Chrome struct {
	ExecPath         string
	Timeout          time.Duration
	MaxArtifactBytes int64
	Logger           *slog.Logger
}

// NewChrome returns an HTML typesetter. An empty execPath lets chromedp find Chrome on PATH.
func NewChrome(execPath string, timeout time.Duration, maxArtifactBytes int64, logger *slog.Logger) *Chrome {
	return &Chrome{
		ExecPath:         execPath,
		Timeout:          timeout,
		MaxArtifactBytes: maxArtifactBytes,
		Logger:           logger,
	}
}

// Typeset implements Typesetter.
func (c *Chrome) Typeset(ctx context.Context, doc *rendering.MarkupDocument, dir string) (*Artifact, error) {
	inputPath, err := writeInput(doc, dir)
	if err != nil {
		return nil, err
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("blink-settings", "scriptEnabled=false"),
		chromedp.UserDataDir(filepath.Join(dir, "chrome-profile")),
	)
	if c.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(c.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(runCtx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	fileURL := url.URL{Scheme: "file", Path: inputPath}

	start := time.Now()
	var pdf []byte
	err = chromedp.Run(browserCtx,
		chromedp.Navigate(fileURL.String()),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			pdf, _, err = page.PrintToPDF().
				WithPrintBackground(true).
				WithPreferCSSPageSize(true).
				Do(ctx)
			return err
		}),
	)
	// Shut the browser down before touching the directory again.
	cancelBrowser()
	cancelAlloc()

	c.logger().Debug("toolchain finished",
		"toolchain", "chrome",
		"duration", time.Since(start),
		"error", err,
	)

	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return nil, &TimeoutError{Toolchain: "chrome", Timeout: timeout}
		}
		return nil, &CrashError{
			Toolchain:   "chrome",
			ExitCode:    -1,
			Message:     "print to PDF failed",
			Diagnostics: summarizeDiagnostics(err.Error()),
			Cause:       err,
		}
	}

	if len(pdf) > 0 {
		if err := os.WriteFile(filepath.Join(dir, outputName), pdf, 0600); err != nil {
			return nil, &Error{Message: "failed to write artifact", Cause: err}
		}
	}

	return collectArtifact(ctx, "chrome", dir, outputName, c.MaxArtifactBytes, "")
}

func (c *Chrome) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}
