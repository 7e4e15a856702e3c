package assistant

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/jonathan/resume-render-api/internal/llm"
)

// fakeClient returns scripted responses in order; the last one repeats.
type fakeClient struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	calls     int
	systems   []string
	prompts   []string
	tiers     []llm.ModelTier
	jsonCalls int
	closed    bool
}

func (f *fakeClient) next(system, prompt string, tier llm.ModelTier) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	f.systems = append(f.systems, system)
	f.prompts = append(f.prompts, prompt)
	f.tiers = append(f.tiers, tier)
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if len(f.responses) == 0 {
		return "", nil
	}
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	return f.responses[i], nil
}

func (f *fakeClient) GenerateContent(_ context.Context, system, prompt string, tier llm.ModelTier) (string, error) {
	return f.next(system, prompt, tier)
}

func (f *fakeClient) GenerateJSON(_ context.Context, system, prompt string, tier llm.ModelTier) (string, error) {
	f.mu.Lock()
	f.jsonCalls++
	f.mu.Unlock()
	return f.next(system, prompt, tier)
}

func (f *fakeClient) GetModel(llm.ModelTier) string { return "fake" }

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

func newTestService(client *fakeClient) (*Service, *Credentials) {
	got := &Credentials{}
	factory := llm.FactoryFunc(func(_ context.Context, apiKey, model string) (llm.Client, error) {
		got.APIKey, got.Model = apiKey, model
		return client, nil
	})
	s := New(factory, llm.RetryPolicy{Attempts: 3}, nil)
	s.now = func() time.Time { return time.Date(2031, 5, 1, 0, 0, 0, 0, time.UTC) }
	return s, got
}

const resumeJSON = `{"personal":{"full_name":"Jane Doe"},"experience":[{"position":"Engineer","company":"Acme"}]}`

func TestParseResume(t *testing.T) {
	client := &fakeClient{responses: []string{"```json\n{\"search_query\": \" (\\\"Go Engineer\\\" OR SRE) \", \"resume_data\": " + resumeJSON + "}\n```"}}
	s, creds := newTestService(client)

	result, err := s.ParseResume(context.Background(), Credentials{APIKey: "user-key", Model: "gemini-x"}, "Jane Doe, Engineer at Acme", false)
	require.NoError(t, err)

	assert.Equal(t, `("Go Engineer" OR SRE)`, result.SearchQuery)
	assert.JSONEq(t, resumeJSON, string(result.ResumeData))
	assert.Equal(t, "user-key", creds.APIKey)
	assert.Equal(t, "gemini-x", creds.Model)
	assert.Contains(t, client.prompts[0], "Jane Doe, Engineer at Acme")
	assert.Contains(t, client.systems[0], "professional career assistant")
	assert.Equal(t, 1, client.jsonCalls)
	assert.True(t, client.closed)
}

func TestParseResume_RetriesBadOutput(t *testing.T) {
	client := &fakeClient{responses: []string{
		"not json at all",
		`{"search_query": "", "resume_data": {}}`,
		`{"search_query": "Engineer", "resume_data": {"summary": ["x"]}}`,
	}}
	s, _ := newTestService(client)

	result, err := s.ParseResume(context.Background(), Credentials{}, "text", false)
	require.NoError(t, err)
	assert.Equal(t, "Engineer", result.SearchQuery)
	assert.Equal(t, 3, client.calls)
}

func TestParseResume_ExhaustedAttempts(t *testing.T) {
	client := &fakeClient{responses: []string{"still not json"}}
	s, _ := newTestService(client)

	_, err := s.ParseResume(context.Background(), Credentials{}, "text", false)

	var upstream *llm.UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, http.StatusInternalServerError, upstream.Status)
	assert.NotContains(t, upstream.Message, "still not json", "raw output is private by default")
	assert.Equal(t, 3, client.calls)
}

func TestParseResume_PrivateLoggingIncludesRaw(t *testing.T) {
	client := &fakeClient{responses: []string{"garbage output"}}
	s, _ := newTestService(client)

	_, err := s.ParseResume(context.Background(), Credentials{}, "text", true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "garbage output")
}

func TestParseResume_PrivateOutputMentioningQuotaIsRetried(t *testing.T) {
	client := &fakeClient{responses: []string{
		"Exceeded quota targets by 429%, too many requests handled",
		`{"search_query": "Engineer", "resume_data": {"summary": ["x"]}}`,
	}}
	s, _ := newTestService(client)

	result, err := s.ParseResume(context.Background(), Credentials{}, "text", true)
	require.NoError(t, err)
	assert.Equal(t, "Engineer", result.SearchQuery)
	assert.Equal(t, 2, client.calls)
}

func TestParseResume_RateLimitNotRetried(t *testing.T) {
	client := &fakeClient{errs: []error{&googleapi.Error{Code: http.StatusTooManyRequests}}}
	s, _ := newTestService(client)

	_, err := s.ParseResume(context.Background(), Credentials{}, "text", false)

	var upstream *llm.UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, http.StatusTooManyRequests, upstream.Status)
	assert.Equal(t, 1, client.calls)
}

func TestParseResume_NoAPIKey(t *testing.T) {
	factory := llm.FactoryFunc(func(context.Context, string, string) (llm.Client, error) {
		return nil, llm.ErrNoAPIKey
	})
	s := New(factory, llm.DefaultRetryPolicy(), nil)

	_, err := s.ParseResume(context.Background(), Credentials{}, "text", false)
	assert.ErrorIs(t, err, llm.ErrNoAPIKey)
}

func TestSearchQuery(t *testing.T) {
	client := &fakeClient{responses: []string{"  (\"Backend Engineer\" OR Golang) AND NOT Intern \n"}}
	s, _ := newTestService(client)

	query, err := s.SearchQuery(context.Background(), Credentials{}, resumeJSON)
	require.NoError(t, err)
	assert.Equal(t, `("Backend Engineer" OR Golang) AND NOT Intern`, query)
	assert.Contains(t, client.prompts[0], resumeJSON)
	assert.Equal(t, llm.TierLite, client.tiers[0])
	assert.Equal(t, 0, client.jsonCalls)
}

func TestSearchQuery_EmptyOutput(t *testing.T) {
	client := &fakeClient{responses: []string{"   "}}
	s, _ := newTestService(client)

	_, err := s.SearchQuery(context.Background(), Credentials{}, resumeJSON)
	require.Error(t, err)
	assert.Equal(t, 3, client.calls)
}

func TestAnalyzeJob(t *testing.T) {
	output := "```html\n<h1>Senior Go Engineer @ Acme Corp</h1>\n<section><h2>Overall Fit</h2>" +
		`<p><strong style="color: #2e7d32;">8/10</strong> Strong match</p>` +
		`<script>alert(1)</script><a href="javascript:alert(1)" onclick="steal()">link</a></section>` + "\n```"
	client := &fakeClient{responses: []string{output}}
	s, _ := newTestService(client)

	result, err := s.AnalyzeJob(context.Background(), Credentials{}, JobAnalysisRequest{
		JobPosting:       "We need a Go engineer",
		ResumeJSON:       resumeJSON,
		PreviousAnalysis: "old analysis",
	})
	require.NoError(t, err)

	assert.Equal(t, "Senior Go Engineer @ Acme Corp", result.JobID)
	assert.Equal(t, "Acme Corp", result.CompanyName)
	assert.Contains(t, result.Analysis, "Overall Fit")
	assert.Contains(t, result.Analysis, `style="color: #2e7d32;"`)
	assert.NotContains(t, result.Analysis, "<script")
	assert.NotContains(t, result.Analysis, "javascript:")
	assert.NotContains(t, result.Analysis, "onclick")
	assert.NotContains(t, result.Analysis, "<a ")

	prompt := client.prompts[0]
	assert.Contains(t, prompt, "The year is 2031")
	assert.Contains(t, prompt, "Previous analysis to improve upon: old analysis")
	assert.Contains(t, prompt, "Address the previous analysis")
	assert.NotContains(t, prompt, "Job-specific context to consider")
	assert.Contains(t, prompt, "<h1>[Job Title] @ [Company Name]</h1>")
	assert.NotContains(t, prompt, "{{.")
}

func TestParseJobAnalysis(t *testing.T) {
	s, _ := newTestService(&fakeClient{})

	tests := []struct {
		name        string
		raw         string
		wantID      string
		wantCompany string
		wantBody    string
		wantErr     bool
	}{
		{
			name:        "markdown heading without fence",
			raw:         "# Data Scientist @ Globex\n<p>Body</p>",
			wantID:      "Data Scientist @ Globex",
			wantCompany: "Globex",
			wantBody:    "<p>Body</p>",
		},
		{
			name:        "company after last separator",
			raw:         "Engineer @ Platform @ Initech\n<p>x</p>",
			wantID:      "Engineer @ Platform @ Initech",
			wantCompany: "Initech",
			wantBody:    "<p>x</p>",
		},
		{
			name:        "at sign without spaces",
			raw:         "Engineer@Initech",
			wantID:      "Engineer@Initech",
			wantCompany: "Engineer@Initech",
			wantBody:    "",
		},
		{
			name:    "missing identifier",
			raw:     "<h1>Analysis</h1>\n<p>x</p>",
			wantErr: true,
		},
		{
			name:    "empty",
			raw:     "  ",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := s.parseJobAnalysis(tt.raw, false)
			if tt.wantErr {
				var outputErr *OutputError
				require.ErrorAs(t, err, &outputErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, result.JobID)
			assert.Equal(t, tt.wantCompany, result.CompanyName)
			assert.Equal(t, tt.wantBody, result.Analysis)
		})
	}
}

func TestCoverLetter(t *testing.T) {
	client := &fakeClient{responses: []string{"\nDear Hiring Manager,\n\nI am excited...\n"}}
	s, _ := newTestService(client)

	letter, err := s.CoverLetter(context.Background(), Credentials{}, CoverLetterRequest{
		JobPosting:    "Wir suchen einen Go-Entwickler",
		ResumeJSON:    resumeJSON,
		RetryFeedback: "make it shorter",
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(letter, "Dear Hiring Manager"))
	assert.Contains(t, client.prompts[0], "Feedback to address: make it shorter")
	assert.Contains(t, client.prompts[0], "improve the cover letter")
	assert.NotContains(t, client.prompts[0], "Current cover letter content")
}

func TestTailor(t *testing.T) {
	tailored := `{"personal": {"full_name": "Jane Doe"}, "skills": [{"label": "Languages", "details": "Go"}], "experience": []}`
	client := &fakeClient{responses: []string{"Here you go:\n```json\n" + tailored + "\n```"}}
	s, _ := newTestService(client)

	out, err := s.Tailor(context.Background(), Credentials{}, TailorRequest{JobPosting: "Go role", ResumeJSON: resumeJSON})
	require.NoError(t, err)

	assert.JSONEq(t, tailored, string(out))
	assert.True(t, strings.Index(string(out), "skills") < strings.Index(string(out), "experience"), "key order is kept")
	assert.Equal(t, llm.TierAdvanced, client.tiers[0])
}

func TestTailor_SchemaViolationRetried(t *testing.T) {
	client := &fakeClient{responses: []string{
		`{"experience": "not a list"}`,
		`{"summary": ["Go engineer"]}`,
	}}
	s, _ := newTestService(client)

	out, err := s.Tailor(context.Background(), Credentials{}, TailorRequest{JobPosting: "x", ResumeJSON: resumeJSON})
	require.NoError(t, err)
	assert.JSONEq(t, `{"summary": ["Go engineer"]}`, string(out))
	assert.Equal(t, 2, client.calls)
}

func TestTailor_TransientErrorRetried(t *testing.T) {
	client := &fakeClient{
		errs:      []error{errors.New("connection reset")},
		responses: []string{"", `{"summary": ["ok"]}`},
	}
	s, _ := newTestService(client)

	_, err := s.Tailor(context.Background(), Credentials{}, TailorRequest{JobPosting: "x", ResumeJSON: resumeJSON})
	require.NoError(t, err)
	assert.Equal(t, 2, client.calls)
}
