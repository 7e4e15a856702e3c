package typeset

import (
	"log/slog"
	"os/exec"
	"time"
)

// reproducibleEnv pins the timestamps the TeX engine embeds so identical input yields identical bytes.
var reproducibleEnv = []string{
	"SOURCE_DATE_EPOCH=0",
	"FORCE_SOURCE_DATE=1",
}

// NewLaTeX returns a typesetter that compiles resume.tex with xelatex.
// Shell escape is disabled and the run halts on the first error instead of prompting.
func NewLaTeX(xelatexPath string, timeout time.Duration, maxArtifactBytes int64, logger *slog.Logger) *Command {
	if xelatexPath == "" {
		xelatexPath = "xelatex"
	}
	return &Command{
		Toolchain: "xelatex",
		Path:      xelatexPath,
		Args: []string{
			"-interaction=nonstopmode",
			"-halt-on-error",
			"-no-shell-escape",
			"-output-directory", "{dir}",
			"-jobname", "resume",
			"{input}",
		},
		Env:              reproducibleEnv,
		Output:           outputName,
		Timeout:          timeout,
		MaxArtifactBytes: maxArtifactBytes,
		Logger:           logger,
	}
}

// NewPandoc returns a typesetter that converts resume.md with pandoc, using
// xelatex as the PDF engine. Raw TeX, raw HTML and raw attributes are disabled
// so escaped Markdown can never reach the engine as code.
func NewPandoc(pandocPath, xelatexPath string, timeout time.Duration, maxArtifactBytes int64, logger *slog.Logger) *Command {
	if pandocPath == "" {
		pandocPath = "pandoc"
	}
	if xelatexPath == "" {
		xelatexPath = "xelatex"
	}
	return &Command{
		Toolchain: "pandoc",
		Path:      pandocPath,
		Args: []string{
			"{input}",
			"-f", "markdown-raw_tex-raw_html-raw_attribute",
			"--pdf-engine=" + xelatexPath,
			"--pdf-engine-opt=-no-shell-escape",
			"-o", "{output}",
		},
		Env:              reproducibleEnv,
		Output:           outputName,
		Timeout:          timeout,
		MaxArtifactBytes: maxArtifactBytes,
		Logger:           logger,
	}
}

// chromeCandidates mirrors the executable names chromedp searches on PATH.
var chromeCandidates = []string{"headless_shell", "headless-shell", "chromium", "chromium-browser", "google-chrome", "google-chrome-stable"}

// ToolchainStatus reports whether one external binary is available.
type ToolchainStatus struct {
	Name     string
	Purpose  string
	Path     string
	Found    bool
	Required bool
}

// Probe looks up every binary the typesetters may run. Required binaries are
// needed by at least one format; the others only enable optional steps.
func Probe(cfg Config) []ToolchainStatus {
	lookup := func(name, purpose string, required bool, candidates ...string) ToolchainStatus {
		st := ToolchainStatus{Name: name, Purpose: purpose, Required: required}
		for _, c := range candidates {
			if c == "" {
				continue
			}
			if path, err := exec.LookPath(c); err == nil {
				st.Path, st.Found = path, true
				break
			}
		}
		return st
	}

	chrome := chromeCandidates
	if cfg.ChromePath != "" {
		chrome = []string{cfg.ChromePath}
	}

	return []ToolchainStatus{
		lookup("xelatex", "latex and markdown output", true, orDefault(cfg.XelatexPath, "xelatex")),
		lookup("pandoc", "markdown output", true, orDefault(cfg.PandocPath, "pandoc")),
		lookup("chrome", "html output", true, chrome...),
		lookup("gs", "compression and page counting", false, orDefault(cfg.GhostscriptPath, "gs")),
		lookup("pdfinfo", "page counting", false, "pdfinfo"),
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
