// Package ollama implements the generation oracle against a local Ollama
// server. The core treats whatever comes back as fully untrusted text; this
// client only normalizes transport-level concerns.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/guillermoBallester/aqueduct/internal/core/port"
)

var (
	ErrUnavailable   = errors.New("ollama server unreachable")
	ErrModelNotFound = errors.New("model not found")
	ErrEmptyResponse = errors.New("model returned an empty response")
)

// cannotAnswerSentinel is the exact token the system prompt instructs the
// model to emit when the schema cannot answer the question.
const cannotAnswerSentinel = "CANNOT_ANSWER"

const systemPrompt = `You are an expert PostgreSQL query generator for a business intelligence system.

Your ONLY job is to convert natural language questions into valid PostgreSQL SELECT queries.

STRICT RULES:
1. Output ONLY the raw SQL query — no markdown, no backticks, no explanation, no commentary.
2. Only generate SELECT statements. Never use INSERT, UPDATE, DELETE, DROP, ALTER, TRUNCATE, GRANT, REVOKE, or any DDL/DML.
3. Never reference tables not listed in the schema below.
4. Use standard PostgreSQL syntax (e.g., NOW(), INTERVAL, DATE_TRUNC).
5. Always use table aliases for clarity in JOINs.
6. Prefer explicit column names over SELECT *.
7. If the question is ambiguous, make a reasonable business assumption.
8. If the question cannot be answered with the available schema, output exactly: CANNOT_ANSWER

%s`

// Some models wrap output in markdown fences despite the prompt.
var (
	fenceOpen  = regexp.MustCompile("(?i)^```(?:sql)?")
	fenceClose = regexp.MustCompile("```$")
)

type generateRequest struct {
	Model   string          `json:"model"`
	System  string          `json:"system"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	// Temperature 0 keeps generation deterministic, which matters for SQL.
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Client talks to the Ollama /api/generate endpoint.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewClient creates a generation client. Local models can be slow on first
// call while loading, hence the generous request timeout.
func NewClient(baseURL, model string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

// Generate converts a question into SQL text. CanAnswer is false when the
// model reports the schema cannot answer; that is not an error.
func (c *Client) Generate(ctx context.Context, question, schemaContext string) (port.Generation, error) {
	payload := generateRequest{
		Model:  c.model,
		System: fmt.Sprintf(systemPrompt, schemaContext),
		Prompt: question,
		Stream: false,
		Options: generateOptions{
			Temperature: 0,
			NumPredict:  1024,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return port.Generation{}, fmt.Errorf("encoding generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return port.Generation{}, fmt.Errorf("building generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return port.Generation{}, fmt.Errorf("%w at %s (is it running?): %v", ErrUnavailable, c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return port.Generation{}, fmt.Errorf("%w: pull it first with `ollama pull %s`", ErrModelNotFound, c.model)
	}
	if resp.StatusCode != http.StatusOK {
		return port.Generation{}, fmt.Errorf("ollama returned HTTP %d", resp.StatusCode)
	}

	var decoded generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return port.Generation{}, fmt.Errorf("decoding generate response: %w", err)
	}

	raw := cleanOutput(decoded.Response)
	if raw == "" {
		return port.Generation{}, ErrEmptyResponse
	}
	if strings.EqualFold(raw, cannotAnswerSentinel) {
		return port.Generation{CanAnswer: false}, nil
	}

	return port.Generation{SQL: raw, CanAnswer: true}, nil
}

// cleanOutput strips markdown fences and blank lines from model output.
func cleanOutput(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimSpace(fenceOpen.ReplaceAllString(raw, ""))
	raw = strings.TrimSpace(fenceClose.ReplaceAllString(raw, ""))

	var lines []string
	for _, line := range strings.Split(raw, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
