package types

import (
	"encoding/json"
)

// Credentials carries the optional per-request Gemini settings.
type Credentials struct {
	GeminiAPIKey string `json:"gemini_api_key,omitempty"`
	ModelName    string `json:"model_name,omitempty"`
}

// ResumeJSONRequest asks for a resume to be parsed into a ResumeRecord.
// Either pasted text or a base64 PDF must be supplied.
type ResumeJSONRequest struct {
	Credentials
	ResumeContent      string `json:"resume_content" validate:"required_without=ResumePDFBase64"`
	ResumePDFBase64    string `json:"resume_pdf_base64" validate:"required_without=ResumeContent"`
	PrivateDataLogging bool   `json:"private_data_logging"`
}

// ResumeJSONResponse is the parsed resume plus a job search query.
type ResumeJSONResponse struct {
	SearchQuery string          `json:"search_query"`
	ResumeData  json.RawMessage `json:"resume_data"`
}

// SearchQueryRequest asks for a search query built from a parsed resume.
type SearchQueryRequest struct {
	Credentials
	ResumeJSONData json.RawMessage `json:"resume_json_data" validate:"required"`
}

// SearchQueryResponse carries a LinkedIn boolean search query.
type SearchQueryResponse struct {
	SearchQuery string `json:"search_query"`
}

// JobAnalysisRequest asks for a fit analysis of a job posting.
type JobAnalysisRequest struct {
	Credentials
	JobPostingText     string          `json:"job_posting_text" validate:"required"`
	ResumeJSONData     json.RawMessage `json:"resume_json_data" validate:"required"`
	PreviousAnalysis   string          `json:"previous_analysis,omitempty"`
	JobSpecificContext string          `json:"job_specific_context,omitempty"`
	PrivateDataLogging bool            `json:"private_data_logging"`
}

// JobAnalysisResponse is the HTML analysis of one posting.
type JobAnalysisResponse struct {
	JobID       string `json:"job_id"`
	CompanyName string `json:"company_name"`
	JobAnalysis string `json:"job_analysis"`
}

// CoverLetterRequest asks for a cover letter.
type CoverLetterRequest struct {
	Credentials
	JobPostingText     string          `json:"job_posting_text" validate:"required"`
	ResumeJSONData     json.RawMessage `json:"resume_json_data" validate:"required"`
	JobSpecificContext string          `json:"job_specific_context,omitempty"`
	CurrentContent     string          `json:"current_content,omitempty"`
	RetryFeedback      string          `json:"retry_feedback,omitempty"`
	PrivateDataLogging bool            `json:"private_data_logging"`
}

// CoverLetterResponse carries the cover letter text.
type CoverLetterResponse struct {
	Content string `json:"content"`
}

// TailorRequest asks for a resume tailored to a posting and rendered to PDF.
// Style, when present, takes precedence over Theme.
type TailorRequest struct {
	Credentials
	JobPostingText     string          `json:"job_posting_text" validate:"required"`
	ResumeJSONData     json.RawMessage `json:"resume_json_data" validate:"required"`
	Filename           string          `json:"filename" validate:"required"`
	Theme              string          `json:"theme,omitempty"`
	Style              json.RawMessage `json:"style,omitempty"`
	CurrentResumeData  json.RawMessage `json:"current_resume_data,omitempty"`
	RetryFeedback      string          `json:"retry_feedback,omitempty"`
	PrivateDataLogging bool            `json:"private_data_logging"`
}

// TailorResponse is the tailored resume and its rendered PDF.
type TailorResponse struct {
	TailoredResumeJSON json.RawMessage `json:"tailored_resume_json"`
	PDFBase64          string          `json:"pdf_base64_string"`
}

// RenderRequest runs the document pipeline alone. Style is decoded by the
// caller so an absent style can be told apart from an empty one.
type RenderRequest struct {
	Resume json.RawMessage `json:"resume" validate:"required"`
	Style  json.RawMessage `json:"style,omitempty"`
}

// Validate validates the ResumeJSONRequest using the validator.
func (r *ResumeJSONRequest) Validate() error {
	return validate.Struct(r)
}

// Validate validates the SearchQueryRequest using the validator.
func (r *SearchQueryRequest) Validate() error {
	return validate.Struct(r)
}

// Validate validates the JobAnalysisRequest using the validator.
func (r *JobAnalysisRequest) Validate() error {
	return validate.Struct(r)
}

// Validate validates the CoverLetterRequest using the validator.
func (r *CoverLetterRequest) Validate() error {
	return validate.Struct(r)
}

// Validate validates the TailorRequest using the validator.
func (r *TailorRequest) Validate() error {
	return validate.Struct(r)
}

// Validate validates the RenderRequest using the validator.
func (r *RenderRequest) Validate() error {
	return validate.Struct(r)
}
