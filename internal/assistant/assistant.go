package assistant

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jonathan/resume-render-api/internal/llm"
	"github.com/jonathan/resume-render-api/internal/prompts"
	"github.com/jonathan/resume-render-api/internal/types"
)

// Credentials are the caller's optional Gemini overrides.
type Credentials struct {
	APIKey string
	Model  string
}

// Service runs the assistant operations. It is stateless and safe for concurrent use.
type Service struct {
	factory llm.Factory
	retry   llm.RetryPolicy
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a Service.
func New(factory llm.Factory, retry llm.RetryPolicy, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{factory: factory, retry: retry, logger: logger, now: time.Now}
}

// generate runs one prompt through the retry loop. parse validates the raw
// output; returning an error from it triggers another attempt.
func (s *Service) generate(ctx context.Context, op string, creds Credentials, system, prompt string, tier llm.ModelTier, jsonMode bool, parse func(raw string) error) error {
	client, err := s.factory.NewClient(ctx, creds.APIKey, creds.Model)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	return llm.Retry(ctx, s.retry, s.logger, op, func(ctx context.Context) error {
		var raw string
		var err error
		if jsonMode {
			raw, err = client.GenerateJSON(ctx, system, prompt, tier)
		} else {
			raw, err = client.GenerateContent(ctx, system, prompt, tier)
		}
		if err != nil {
			return err
		}
		return parse(raw)
	})
}

func (s *Service) year() string {
	return strconv.Itoa(s.now().Year())
}

func optional(label, value string) string {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	return label + value
}

// rawIfPrivate returns raw only when the caller opted into private data logging.
func rawIfPrivate(raw string, private bool) string {
	if private {
		return raw
	}
	return ""
}

// ParsedResume is the result of ParseResume.
type ParsedResume struct {
	SearchQuery string          `json:"search_query"`
	ResumeData  json.RawMessage `json:"resume_data"`
}

// ParseResume extracts a structured resume and a LinkedIn search query from resume text.
func (s *Service) ParseResume(ctx context.Context, creds Credentials, resumeText string, private bool) (*ParsedResume, error) {
	prompt := prompts.Format(prompts.MustGet(prompts.AssistantFile, "resume-and-search-query"), map[string]string{
		"ResumeContent": resumeText,
	})

	var result ParsedResume
	err := s.generate(ctx, "parse-resume", creds, prompts.MustGet(prompts.AssistantFile, "system-resume-parse"), prompt, llm.TierStandard, true, func(raw string) error {
		var out ParsedResume
		if err := json.Unmarshal([]byte(llm.CleanJSONBlock(raw)), &out); err != nil {
			return &OutputError{Message: "Response is not valid JSON.", Raw: rawIfPrivate(raw, private), Cause: err}
		}
		if strings.TrimSpace(out.SearchQuery) == "" || !isJSONObject(out.ResumeData) {
			return &OutputError{Message: "Response is missing search_query or resume_data.", Raw: rawIfPrivate(raw, private)}
		}
		out.SearchQuery = strings.TrimSpace(out.SearchQuery)
		result = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// SearchQuery builds a LinkedIn boolean search query from resume JSON.
func (s *Service) SearchQuery(ctx context.Context, creds Credentials, resumeJSON string) (string, error) {
	prompt := prompts.Format(prompts.MustGet(prompts.AssistantFile, "search-query-only"), map[string]string{
		"ResumeJSON": resumeJSON,
	})

	var query string
	err := s.generate(ctx, "search-query", creds, prompts.MustGet(prompts.AssistantFile, "system-resume-parse"), prompt, llm.TierLite, false, func(raw string) error {
		cleaned, _ := llm.CleanCodeBlock(raw, "")
		if cleaned == "" {
			return &OutputError{Message: "LLM output is empty."}
		}
		query = cleaned
		return nil
	})
	return query, err
}

// JobAnalysisRequest is the input of AnalyzeJob.
type JobAnalysisRequest struct {
	JobPosting       string
	ResumeJSON       string
	PreviousAnalysis string
	JobContext       string
	Private          bool
}

// JobAnalysis is a sanitized HTML fit analysis. JobID is "[title] @ [company]".
type JobAnalysis struct {
	JobID       string `json:"job_id"`
	CompanyName string `json:"company_name"`
	Analysis    string `json:"job_analysis"`
}

// AnalyzeJob compares a resume with a job posting.
func (s *Service) AnalyzeJob(ctx context.Context, creds Credentials, req JobAnalysisRequest) (*JobAnalysis, error) {
	format, err := prompts.Document(prompts.JobAnalysisFormat)
	if err != nil {
		return nil, err
	}
	addressPrevious := ""
	if req.PreviousAnalysis != "" || req.JobContext != "" {
		addressPrevious = "- Address the previous analysis and context provided above to improve the output."
	}
	prompt := prompts.Format(prompts.MustGet(prompts.AssistantFile, "job-analysis"), map[string]string{
		"Year":             s.year(),
		"JobPosting":       req.JobPosting,
		"ResumeJSON":       req.ResumeJSON,
		"Format":           format,
		"PreviousAnalysis": optional("Previous analysis to improve upon: ", req.PreviousAnalysis),
		"JobContext":       optional("Job-specific context to consider: ", req.JobContext),
		"AddressPrevious":  addressPrevious,
	})

	var result *JobAnalysis
	err = s.generate(ctx, "analyze-job", creds, prompts.MustGet(prompts.AssistantFile, "system-job-analysis"), prompt, llm.TierAdvanced, false, func(raw string) error {
		analysis, err := s.parseJobAnalysis(raw, req.Private)
		if err != nil {
			return err
		}
		result = analysis
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// parseJobAnalysis splits the model output into the identifying first line and the body.
func (s *Service) parseJobAnalysis(raw string, private bool) (*JobAnalysis, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, &OutputError{Message: "LLM output is empty."}
	}

	cleaned, fenced := llm.CleanCodeBlock(raw, "html")
	if !fenced {
		attrs := []any{"op", "analyze-job"}
		if private {
			attrs = append(attrs, "response", raw)
		}
		s.logger.Warn("response does not start with an html code block", attrs...)
	}

	firstLine, body, _ := strings.Cut(cleaned, "\n")
	jobID := strings.TrimSpace(htmlText(firstLine))
	jobID = strings.TrimSpace(strings.TrimLeft(jobID, "#"))
	if !strings.Contains(jobID, "@") {
		return nil, &OutputError{Message: "Job analysis does not start with [job title] @ [company name].", Raw: rawIfPrivate(raw, private)}
	}

	parts := strings.Split(jobID, " @ ")
	company := strings.TrimSpace(parts[len(parts)-1])

	analysis, err := SanitizeHTML(strings.TrimSpace(body))
	if err != nil {
		return nil, &OutputError{Message: "Job analysis is not valid HTML.", Cause: err}
	}

	return &JobAnalysis{JobID: jobID, CompanyName: company, Analysis: analysis}, nil
}

// CoverLetterRequest is the input of CoverLetter.
type CoverLetterRequest struct {
	JobPosting     string
	ResumeJSON     string
	JobContext     string
	CurrentContent string
	RetryFeedback  string
}

// CoverLetter writes a cover letter in the language of the job posting.
func (s *Service) CoverLetter(ctx context.Context, creds Credentials, req CoverLetterRequest) (string, error) {
	prompt := prompts.Format(prompts.MustGet(prompts.AssistantFile, "cover-letter"), map[string]string{
		"Year":            s.year(),
		"JobPosting":      req.JobPosting,
		"ResumeJSON":      req.ResumeJSON,
		"JobContext":      optional("Job-specific context: ", req.JobContext),
		"CurrentContent":  optional("Current cover letter content to improve: ", req.CurrentContent),
		"RetryFeedback":   optional("Feedback to address: ", req.RetryFeedback),
		"AddressFeedback": feedbackInstruction(req.RetryFeedback, "cover letter"),
	})

	var letter string
	err := s.generate(ctx, "cover-letter", creds, prompts.MustGet(prompts.AssistantFile, "system-cover-letter"), prompt, llm.TierStandard, false, func(raw string) error {
		letter = strings.TrimSpace(raw)
		if letter == "" {
			return &OutputError{Message: "LLM output is empty."}
		}
		return nil
	})
	return letter, err
}

func feedbackInstruction(feedback, subject string) string {
	if strings.TrimSpace(feedback) == "" {
		return ""
	}
	return "- Address the feedback provided above to improve the " + subject + "."
}

// TailorRequest is the input of Tailor.
type TailorRequest struct {
	JobPosting    string
	ResumeJSON    string
	CurrentResume string
	RetryFeedback string
	Private       bool
}

// Tailor rewrites the resume for the job posting. The returned JSON passes
// resume schema validation and keeps the model's key order.
func (s *Service) Tailor(ctx context.Context, creds Credentials, req TailorRequest) (json.RawMessage, error) {
	prompt := prompts.Format(prompts.MustGet(prompts.AssistantFile, "tailor-resume"), map[string]string{
		"Year":            s.year(),
		"JobPosting":      req.JobPosting,
		"ResumeJSON":      req.ResumeJSON,
		"CurrentResume":   optional("Current resume data to improve: ", req.CurrentResume),
		"RetryFeedback":   optional("Feedback to address: ", req.RetryFeedback),
		"AddressFeedback": feedbackInstruction(req.RetryFeedback, "resume data"),
	})

	var tailored json.RawMessage
	err := s.generate(ctx, "tailor-resume", creds, prompts.MustGet(prompts.AssistantFile, "system-tailor"), prompt, llm.TierAdvanced, true, func(raw string) error {
		cleaned := llm.CleanJSONBlock(raw)
		if cleaned == "" {
			return &OutputError{Message: "LLM output is empty."}
		}
		if _, err := types.ParseResumeRecord([]byte(cleaned)); err != nil {
			return &OutputError{Message: "Invalid JSON response from LLM.", Raw: rawIfPrivate(raw, req.Private), Cause: err}
		}
		tailored = json.RawMessage(cleaned)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tailored, nil
}

func isJSONObject(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return strings.HasPrefix(trimmed, "{") && json.Valid([]byte(trimmed))
}
