package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/jonathan/resume-render-api/internal/assistant"
	"github.com/jonathan/resume-render-api/internal/ingestion"
	"github.com/jonathan/resume-render-api/internal/types"
)

const (
	msgMissingResumeContent = "Missing 'resume_content'"
	msgMissingPostingResume = "Missing 'job_posting_text' or 'resume_json_data'"
	msgMissingResumeJSON    = "Missing 'resume_json_data'"
)

func credentials(c types.Credentials) assistant.Credentials {
	return assistant.Credentials{
		APIKey: strings.TrimSpace(c.GeminiAPIKey),
		Model:  strings.TrimSpace(c.ModelName),
	}
}

// jsonText renders a JSON value for a prompt. A JSON string is unwrapped so
// callers may send the resume either as an object or as serialized text.
func jsonText(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var text string
		if err := json.Unmarshal(trimmed, &text); err == nil {
			return text
		}
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err == nil {
		return buf.String()
	}
	return string(trimmed)
}

// handleGetResumeJSON parses pasted resume text or an uploaded PDF into a
// ResumeRecord and a search query.
func (s *Server) handleGetResumeJSON(w http.ResponseWriter, r *http.Request) {
	var req types.ResumeJSONRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.failResponse(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		s.failResponse(w, r, &ErrValidation{Field: "resume_content", Message: msgMissingResumeContent})
		return
	}

	text, meta, err := ingestion.ResumeText(r.Context(), req.ResumeContent, req.ResumePDFBase64)
	if err != nil {
		s.failResponse(w, r, err)
		return
	}
	s.logger.Info("resume received", meta.LogAttrs()...)

	parsed, err := s.assistant.ParseResume(r.Context(), credentials(req.Credentials), text, req.PrivateDataLogging)
	if err != nil {
		s.failResponse(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, types.ResumeJSONResponse{
		SearchQuery: parsed.SearchQuery,
		ResumeData:  parsed.ResumeData,
	})
}

// handleGenerateSearchQuery builds a LinkedIn search query from a parsed resume.
func (s *Server) handleGenerateSearchQuery(w http.ResponseWriter, r *http.Request) {
	var req types.SearchQueryRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.failResponse(w, r, err)
		return
	}
	if req.Validate() != nil || isMissing(req.ResumeJSONData) {
		s.failResponse(w, r, &ErrValidation{Field: "resume_json_data", Message: msgMissingResumeJSON})
		return
	}

	query, err := s.assistant.SearchQuery(r.Context(), credentials(req.Credentials), jsonText(req.ResumeJSONData))
	if err != nil {
		s.failResponse(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, types.SearchQueryResponse{SearchQuery: query})
}

// handleAnalyzeJobPosting returns an HTML fit analysis of a posting.
func (s *Server) handleAnalyzeJobPosting(w http.ResponseWriter, r *http.Request) {
	var req types.JobAnalysisRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.failResponse(w, r, err)
		return
	}
	if req.Validate() != nil || strings.TrimSpace(req.JobPostingText) == "" || isMissing(req.ResumeJSONData) {
		s.failResponse(w, r, &ErrValidation{Field: "job_posting_text", Message: msgMissingPostingResume})
		return
	}

	analysis, err := s.assistant.AnalyzeJob(r.Context(), credentials(req.Credentials), assistant.JobAnalysisRequest{
		JobPosting:       req.JobPostingText,
		ResumeJSON:       jsonText(req.ResumeJSONData),
		PreviousAnalysis: req.PreviousAnalysis,
		JobContext:       req.JobSpecificContext,
		Private:          req.PrivateDataLogging,
	})
	if err != nil {
		s.failResponse(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, types.JobAnalysisResponse{
		JobID:       analysis.JobID,
		CompanyName: analysis.CompanyName,
		JobAnalysis: analysis.Analysis,
	})
}

// handleGenerateCoverLetter writes a cover letter for a posting.
func (s *Server) handleGenerateCoverLetter(w http.ResponseWriter, r *http.Request) {
	var req types.CoverLetterRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.failResponse(w, r, err)
		return
	}
	if req.Validate() != nil || strings.TrimSpace(req.JobPostingText) == "" || isMissing(req.ResumeJSONData) {
		s.failResponse(w, r, &ErrValidation{Field: "job_posting_text", Message: msgMissingPostingResume})
		return
	}

	letter, err := s.assistant.CoverLetter(r.Context(), credentials(req.Credentials), assistant.CoverLetterRequest{
		JobPosting:     req.JobPostingText,
		ResumeJSON:     jsonText(req.ResumeJSONData),
		JobContext:     req.JobSpecificContext,
		CurrentContent: req.CurrentContent,
		RetryFeedback:  req.RetryFeedback,
	})
	if err != nil {
		s.failResponse(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, types.CoverLetterResponse{Content: letter})
}
