// Package parser calls the remote natural-language availability parser.
// The model turns free-form text into structured availability windows;
// this package owns only the narrow HTTP contract around it.
package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ErrUpstream is returned when the parser service fails or answers with
// something unusable.
var ErrUpstream = errors.New("availability parser is unavailable")

const (
	defaultEndpoint = "https://generativelanguage.googleapis.com/v1beta/models"
	defaultModel    = "gemini-2.0-flash"
	requestTimeout  = 30 * time.Second
)

// Window is one parsed availability range as offset datetimes.
type Window struct {
	Start    string `json:"start"`
	End      string `json:"end"`
	Timezone string `json:"timezone,omitempty"`
}

// Result is the structured parse outcome plus a human reply to show the
// participant.
type Result struct {
	Windows []Window `json:"availabilityWindows"`
	Message string   `json:"message"`
}

// Request carries the participant's message and conversation context.
type Request struct {
	Message          string
	Timezone         string
	PreviousMessages []string
}

// Client calls the Gemini API behind a circuit breaker so a flapping
// upstream fails fast instead of tying up request handlers.
type Client struct {
	httpClient *http.Client
	endpoint   string
	model      string
	apiKey     string
	breaker    *gobreaker.CircuitBreaker[*Result]
	logger     *slog.Logger
}

// NewClient creates the parser client.
func NewClient(apiKey string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	breaker := gobreaker.NewCircuitBreaker[*Result](gobreaker.Settings{
		Name:    "availability-parser",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		endpoint:   defaultEndpoint,
		model:      defaultModel,
		apiKey:     apiKey,
		breaker:    breaker,
		logger:     logger,
	}
}

// WithEndpoint overrides the API endpoint; used by tests.
func (c *Client) WithEndpoint(endpoint string) *Client {
	c.endpoint = endpoint
	return c
}

// Parse sends the message and returns structured availability.
func (c *Client) Parse(ctx context.Context, req Request) (*Result, error) {
	result, err := c.breaker.Execute(func() (*Result, error) {
		return c.call(ctx, req)
	})
	if err != nil {
		c.logger.Warn("availability parse failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return result, nil
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (c *Client) call(ctx context.Context, req Request) (*Result, error) {
	payload := geminiRequest{}
	for _, prev := range req.PreviousMessages {
		payload.Contents = append(payload.Contents, geminiContent{
			Role:  "user",
			Parts: []geminiPart{{Text: prev}},
		})
	}
	payload.Contents = append(payload.Contents, geminiContent{
		Role:  "user",
		Parts: []geminiPart{{Text: buildPrompt(req)}},
	})

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/%s:generateContent?key=%s", c.endpoint, c.model, c.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("parser returned status %d: %s", resp.StatusCode, snippet)
	}

	var gr geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return nil, fmt.Errorf("failed to decode parser response: %w", err)
	}
	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 {
		return nil, errors.New("parser returned no candidates")
	}

	return decodeResult(gr.Candidates[0].Content.Parts[0].Text)
}

func buildPrompt(req Request) string {
	var b strings.Builder
	b.WriteString("Extract the times the user is available for a meeting from the message below.\n")
	b.WriteString("Reply with only a JSON object of the form\n")
	b.WriteString(`{"availabilityWindows":[{"start":"<ISO-8601 offset datetime>","end":"<ISO-8601 offset datetime>","timezone":"<IANA id>"}],"message":"<short confirmation for the user>"}`)
	b.WriteString("\nThe user's timezone is ")
	b.WriteString(req.Timezone)
	b.WriteString(".\nMessage: ")
	b.WriteString(req.Message)
	return b.String()
}

// decodeResult tolerates the model wrapping its JSON in a code fence.
func decodeResult(text string) (*Result, error) {
	text = strings.TrimSpace(text)
	if start := strings.Index(text, "{"); start >= 0 {
		if end := strings.LastIndex(text, "}"); end > start {
			text = text[start : end+1]
		}
	}
	var result Result
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return nil, fmt.Errorf("parser returned malformed JSON: %w", err)
	}
	return &result, nil
}
