package server

import (
	"encoding/base64"
	"encoding/json"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/jonathan/resume-render-api/internal/assistant"
	"github.com/jonathan/resume-render-api/internal/pipeline"
	"github.com/jonathan/resume-render-api/internal/rendering"
	"github.com/jonathan/resume-render-api/internal/types"
)

const (
	msgMissingTailorFields = "Missing 'job_posting_text', 'resume_json_data', or 'filename'"

	// defaultTailorTheme is what the extension sends when no theme is chosen.
	defaultTailorTheme = "engineeringclassic"
)

// decodeStyle decodes optional style options. An absent or null style is the zero value.
func decodeStyle(raw json.RawMessage) (rendering.StyleOptions, error) {
	var style rendering.StyleOptions
	if isMissing(raw) {
		return style, nil
	}
	if err := json.Unmarshal(raw, &style); err != nil {
		return style, &pipeline.Error{Kind: pipeline.KindInvalidRequest, Message: "style must be an object of style options", Cause: err}
	}
	return style, nil
}

// handleRenderResume runs the document pipeline and streams the PDF back.
func (s *Server) handleRenderResume(w http.ResponseWriter, r *http.Request) {
	var req types.RenderRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.failResponse(w, r, &pipeline.Error{Kind: pipeline.KindInvalidRequest, Message: ErrorMessage(err), Cause: err})
		return
	}
	if err := req.Validate(); err != nil {
		s.failResponse(w, r, &pipeline.Error{Kind: pipeline.KindInvalidRequest, Message: "resume is required", Cause: err})
		return
	}
	style, err := decodeStyle(req.Style)
	if err != nil {
		s.failResponse(w, r, err)
		return
	}

	result, err := s.renderer.Run(r.Context(), pipeline.Request{Resume: req.Resume, Style: &style})
	if err != nil {
		s.failResponse(w, r, err)
		return
	}

	artifact := result.Artifact
	w.Header().Set("Content-Type", artifact.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(artifact.Data)))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": result.Filename}))
	w.Header().Set("X-Render-Job", result.JobID)
	if artifact.Pages > 0 {
		w.Header().Set("X-Render-Pages", strconv.Itoa(artifact.Pages))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(artifact.Data); err != nil {
		s.logger.Warn("failed to write artifact", "job_id", result.JobID, "error", err)
	}
}

// tailorStyle resolves the style of a tailored resume. Explicit style options
// win over the legacy theme field; the requested filename always applies.
func tailorStyle(req *types.TailorRequest) (rendering.StyleOptions, error) {
	style, err := decodeStyle(req.Style)
	if err != nil {
		return style, err
	}
	if style.Theme == "" {
		style.Theme = strings.TrimSpace(req.Theme)
	}
	if style.Theme == "" {
		style.Theme = defaultTailorTheme
	}
	style.Filename = req.Filename

	if _, err := style.Normalize(); err != nil {
		return style, &pipeline.Error{Kind: pipeline.KindInvalidRequest, Message: "invalid style: " + err.Error(), Cause: err}
	}
	return style, nil
}

// handleTailorResume tailors the resume to a posting and renders it.
func (s *Server) handleTailorResume(w http.ResponseWriter, r *http.Request) {
	var req types.TailorRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.failResponse(w, r, err)
		return
	}
	if req.Validate() != nil || strings.TrimSpace(req.JobPostingText) == "" ||
		strings.TrimSpace(req.Filename) == "" || isMissing(req.ResumeJSONData) {
		s.failResponse(w, r, &ErrValidation{Field: "job_posting_text", Message: msgMissingTailorFields})
		return
	}

	// Style problems are caught before spending an LLM call.
	style, err := tailorStyle(&req)
	if err != nil {
		s.failResponse(w, r, err)
		return
	}

	current := ""
	if !isMissing(req.CurrentResumeData) {
		current = jsonText(req.CurrentResumeData)
	}
	tailored, err := s.assistant.Tailor(r.Context(), credentials(req.Credentials), assistant.TailorRequest{
		JobPosting:    req.JobPostingText,
		ResumeJSON:    jsonText(req.ResumeJSONData),
		CurrentResume: current,
		RetryFeedback: req.RetryFeedback,
		Private:       req.PrivateDataLogging,
	})
	if err != nil {
		s.failResponse(w, r, err)
		return
	}

	result, err := s.renderer.Run(r.Context(), pipeline.Request{Resume: tailored, Style: &style})
	if err != nil {
		s.failResponse(w, r, err)
		return
	}

	s.jsonResponse(w, http.StatusOK, types.TailorResponse{
		TailoredResumeJSON: tailored,
		PDFBase64:          base64.StdEncoding.EncodeToString(result.Artifact.Data),
	})
}
