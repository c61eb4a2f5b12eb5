// Package judge0 is a client for the Judge0 CE execution API: submit source,
// receive a job token, poll until the submission reaches a terminal status.
package judge0

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/codepilot/collab-relay/pkg/errs"
)

const DefaultBaseURL = "https://judge0-ce.p.rapidapi.com"

// Submission statuses as reported by Judge0.
const (
	StatusInQueue          = 1
	StatusProcessing       = 2
	StatusAccepted         = 3
	StatusWrongAnswer      = 4
	StatusTimeLimit        = 5
	StatusCompilationError = 6
)

// languageIDs maps editor language tags to Judge0 language ids.
var languageIDs = map[string]int{
	"javascript": 63,
	"python":     71,
	"java":       62,
	"cpp":        54,
	"c":          50,
	"csharp":     51,
	"php":        68,
	"ruby":       72,
	"go":         60,
	"rust":       73,
	"typescript": 74,
	"swift":      83,
	"kotlin":     78,
}

// LanguageID resolves an editor language tag to a Judge0 language id.
func LanguageID(language string) (int, bool) {
	id, ok := languageIDs[language]
	return id, ok
}

type Config struct {
	BaseURL string
	APIKey  string // X-RapidAPI-Key
	APIHost string // X-RapidAPI-Host

	HTTPClient   *http.Client
	PollInterval time.Duration // initial poll interval, grows exponentially
	MaxWait      time.Duration // cap on total polling time
}

type Client struct {
	httpClient   *http.Client
	baseURL      string
	apiKey       string
	apiHost      string
	pollInterval time.Duration
	maxWait      time.Duration
}

func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 60 * time.Second
	}
	return &Client{
		httpClient:   cfg.HTTPClient,
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		apiHost:      cfg.APIHost,
		pollInterval: cfg.PollInterval,
		maxWait:      cfg.MaxWait,
	}
}

// Result is a decoded terminal (or in-flight) submission state.
type Result struct {
	Token         string
	StatusID      int
	Status        string
	Stdout        string
	Stderr        string
	CompileOutput string
	Time          string
	Memory        float64
}

func (r *Result) Running() bool {
	return r.StatusID == StatusInQueue || r.StatusID == StatusProcessing
}

func (r *Result) Succeeded() bool {
	return r.StatusID == StatusAccepted
}

// RuntimeError reports the 11..13 status band (SIGSEGV, SIGXFSZ, SIGFPE...).
func (r *Result) RuntimeError() bool {
	return r.StatusID >= 11 && r.StatusID <= 13
}

type submitRequest struct {
	LanguageID int    `json:"language_id"`
	SourceCode string `json:"source_code"`
	Stdin      string `json:"stdin"`
}

type statusInfo struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
}

type submissionBody struct {
	Token         string     `json:"token"`
	Status        statusInfo `json:"status"`
	Stdout        *string    `json:"stdout"`
	Stderr        *string    `json:"stderr"`
	CompileOutput *string    `json:"compile_output"`
	Time          *string    `json:"time"`
	Memory        *float64   `json:"memory"`
}

// Submit sends the source for execution and returns the opaque job token.
func (c *Client) Submit(ctx context.Context, source, language, stdin string) (string, error) {
	languageID, ok := LanguageID(language)
	if !ok {
		return "", fmt.Errorf("%w: unsupported language %q", errs.ErrInvalidInput, language)
	}

	body, err := json.Marshal(submitRequest{
		LanguageID: languageID,
		SourceCode: base64.StdEncoding.EncodeToString([]byte(source)),
		Stdin:      base64.StdEncoding.EncodeToString([]byte(stdin)),
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/submissions?base64_encoded=true&fields=*", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: submit: %v", errs.ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: submit returned %d", errs.ErrUpstream, resp.StatusCode)
	}

	var sb submissionBody
	if err := json.NewDecoder(resp.Body).Decode(&sb); err != nil {
		return "", fmt.Errorf("%w: decode submit response: %v", errs.ErrUpstream, err)
	}
	if sb.Token == "" {
		return "", fmt.Errorf("%w: no token in submit response", errs.ErrUpstream)
	}
	return sb.Token, nil
}

// Status fetches the current state of a submission.
func (c *Client) Status(ctx context.Context, token string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/submissions/"+token+"?base64_encoded=true&fields=*", nil)
	if err != nil {
		return nil, err
	}
	c.setAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: status: %v", errs.ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status returned %d", errs.ErrUpstream, resp.StatusCode)
	}

	var sb submissionBody
	if err := json.NewDecoder(resp.Body).Decode(&sb); err != nil {
		return nil, fmt.Errorf("%w: decode status response: %v", errs.ErrUpstream, err)
	}

	res := &Result{
		Token:    token,
		StatusID: sb.Status.ID,
		Status:   sb.Status.Description,
	}
	if res.Stdout, err = decodeB64(sb.Stdout); err != nil {
		return nil, fmt.Errorf("%w: decode stdout: %v", errs.ErrUpstream, err)
	}
	if res.Stderr, err = decodeB64(sb.Stderr); err != nil {
		return nil, fmt.Errorf("%w: decode stderr: %v", errs.ErrUpstream, err)
	}
	if res.CompileOutput, err = decodeB64(sb.CompileOutput); err != nil {
		return nil, fmt.Errorf("%w: decode compile_output: %v", errs.ErrUpstream, err)
	}
	if sb.Time != nil {
		res.Time = *sb.Time
	}
	if sb.Memory != nil {
		res.Memory = *sb.Memory
	}
	return res, nil
}

var errStillRunning = errors.New("submission still running")

// Wait polls until the submission leaves the queue, backing off
// exponentially up to the configured cap. A submission that never turns
// terminal within MaxWait surfaces as an error, not an endless loop.
func (c *Client) Wait(ctx context.Context, token string) (*Result, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.pollInterval
	bo.MaxInterval = 10 * time.Second
	bo.MaxElapsedTime = c.maxWait

	res, err := backoff.RetryWithData(func() (*Result, error) {
		r, err := c.Status(ctx, token)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		if r.Running() {
			return nil, errStillRunning
		}
		return r, nil
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		if errors.Is(err, errStillRunning) {
			return nil, fmt.Errorf("%w: submission %s did not finish within %s", errs.ErrUpstream, token, c.maxWait)
		}
		return nil, err
	}
	return res, nil
}

// Run is submit-then-wait. Every call creates an independent submission.
func (c *Client) Run(ctx context.Context, source, language, stdin string) (*Result, error) {
	token, err := c.Submit(ctx, source, language, stdin)
	if err != nil {
		return nil, err
	}
	return c.Wait(ctx, token)
}

func (c *Client) setAuth(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("X-RapidAPI-Key", c.apiKey)
	}
	if c.apiHost != "" {
		req.Header.Set("X-RapidAPI-Host", c.apiHost)
	}
}

// decodeB64 tolerates the newline-wrapped base64 Judge0 produces.
func decodeB64(v *string) (string, error) {
	if v == nil || *v == "" {
		return "", nil
	}
	cleaned := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' {
			return -1
		}
		return r
	}, *v)
	b, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
