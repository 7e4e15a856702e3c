package typeset

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jonathan/resume-render-api/internal/rendering"
)

const (
	compressInput  = "uncompressed.pdf"
	compressOutput = "compressed.pdf"
)

// Compressor runs a Ghostscript pdfwrite pass over the artifact of another
// typesetter and keeps whichever file is smaller. Compression is best-effort:
// any Ghostscript failure returns the original artifact.
type Compressor struct {
	next    Typesetter
	gsPath  string
	timeout time.Duration
	logger  *slog.Logger
}

// NewCompressor wraps next with a Ghostscript pass.
func NewCompressor(next Typesetter, gsPath string, timeout time.Duration, logger *slog.Logger) *Compressor {
	if gsPath == "" {
		gsPath = "gs"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Compressor{next: next, gsPath: gsPath, timeout: timeout, logger: logger}
}

// Typeset implements Typesetter.
func (c *Compressor) Typeset(ctx context.Context, doc *rendering.MarkupDocument, dir string) (*Artifact, error) {
	artifact, err := c.next.Typeset(ctx, doc, dir)
	if err != nil {
		return nil, err
	}

	if err := os.WriteFile(filepath.Join(dir, compressInput), artifact.Data, 0600); err != nil {
		c.logger.Warn("skipping compression", "error", err)
		return artifact, nil
	}

	args := []string{
		"-dSAFER", "-dBATCH", "-dNOPAUSE", "-dQUIET",
		"-sDEVICE=pdfwrite",
		"-dCompatibilityLevel=1.5",
		"-dPDFSETTINGS=/printer",
		"-sOutputFile=" + compressOutput,
		compressInput,
	}
	if _, err := runCommand(ctx, "ghostscript", c.gsPath, args, dir, reproducibleEnv, c.timeout); err != nil {
		c.logger.Warn("ghostscript compression failed, keeping original", "error", err)
		return artifact, nil
	}

	data, err := os.ReadFile(filepath.Join(dir, compressOutput))
	if err != nil || len(data) == 0 || len(data) >= len(artifact.Data) {
		return artifact, nil
	}

	c.logger.Debug("compressed artifact", "before", len(artifact.Data), "after", len(data))
	return &Artifact{
		Data:        data,
		ContentType: artifact.ContentType,
		Size:        len(data),
		Pages:       artifact.Pages,
	}, nil
}
