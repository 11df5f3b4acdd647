// Package vision provides the external vision capability used by the scout
// stage: a DeepSeek-compatible chat-completions client that analyzes site
// imagery for construction milestones and Chapter 33 safety violations.
package vision

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

	"github.com/onnwee/sitesentinel/internal/tracing"
)

// Findings is the structured output of one vision analysis.
type Findings struct {
	// Summary is the model's free-text site assessment.
	Summary string `json:"summary" cbor:"1,keyasint"`

	// Milestones are detected construction progress milestones.
	Milestones []string `json:"milestones,omitempty" cbor:"2,keyasint,omitempty"`

	// Violations are detected Chapter 33 safety violations, citation included.
	Violations []string `json:"violations,omitempty" cbor:"3,keyasint,omitempty"`

	// Confidence is the model's self-reported confidence, 0.0 to 1.0.
	Confidence float64 `json:"confidence" cbor:"4,keyasint"`
}

// Analyzer is the capability boundary the scout depends on. The production
// implementation calls a vision model; tests substitute fakes.
type Analyzer interface {
	Analyze(ctx context.Context, evidenceRefs []string) (*Findings, error)
}

// Client configuration errors.
var (
	ErrMissingAPIKey   = errors.New("vision API key is required")
	ErrMissingEndpoint = errors.New("vision endpoint is required")
)

// DefaultTimeout bounds a single vision call.
const DefaultTimeout = 30 * time.Second

// DefaultModel is the default vision-capable chat model.
const DefaultModel = "deepseek-chat"

// ClientConfig holds configuration for the vision client.
type ClientConfig struct {
	APIKey   string
	Endpoint string // e.g. https://api.deepseek.com/v1
	Model    string
	Timeout  time.Duration
	Logger   *slog.Logger
}

// Client calls a DeepSeek-compatible chat-completions API with image inputs.
type Client struct {
	apiKey   string
	endpoint string
	model    string
	http     *http.Client
	logger   *slog.Logger
}

// NewClient creates a vision client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.Endpoint == "" {
		return nil, ErrMissingEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		apiKey:   cfg.APIKey,
		endpoint: strings.TrimSuffix(cfg.Endpoint, "/"),
		model:    cfg.Model,
		http:     &http.Client{Timeout: cfg.Timeout},
		logger:   cfg.Logger,
	}, nil
}

// chat-completions request/response shapes (only the fields we use).
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Analyze sends the evidence images to the vision model and parses the
// structured findings out of its reply. The prompt requests JSON; a reply
// that is not parseable JSON is kept as the summary with zero detections
// rather than treated as a failure.
func (c *Client) Analyze(ctx context.Context, evidenceRefs []string) (findings *Findings, err error) {
	if len(evidenceRefs) == 0 {
		return nil, errors.New("no evidence references")
	}

	ctx, endSpan := tracing.StartSpan(ctx, "vision_analyze")
	defer func() { endSpan(err) }()

	parts := []contentPart{{Type: "text", Text: chapter33Prompt}}
	for _, ref := range evidenceRefs {
		parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageURL{URL: ref}})
	}

	body, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: []chatMessage{{Role: "user", Content: parts}},
		// Low temperature for forensic consistency.
		Temperature: 0.1,
		MaxTokens:   1500,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode vision request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build vision request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vision call failed: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warn("failed to close vision response body", "error", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("vision call returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode vision response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, errors.New("vision response contained no choices")
	}

	return parseFindings(parsed.Choices[0].Message.Content), nil
}

// parseFindings extracts structured findings from the model reply. The prompt
// asks for a JSON object; replies that are not JSON become the summary text.
func parseFindings(content string) *Findings {
	content = strings.TrimSpace(content)

	// Models sometimes fence the JSON block.
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(content, "```")
		content = strings.TrimSpace(content)
	}

	var f Findings
	if err := json.Unmarshal([]byte(content), &f); err != nil {
		return &Findings{Summary: content, Confidence: 0}
	}
	return &f
}

// chapter33Prompt is the NYC Building Code Chapter 33 analysis prompt.
// Chapter 33 covers construction site safety.
const chapter33Prompt = `You are a NYC construction site compliance inspector.
Analyze the attached site imagery and reply with a single JSON object:
{
  "summary": "<free-text site assessment>",
  "milestones": ["<NYC BC 2022 Chapter 33 progress milestones, e.g. Foundation, Superstructure, MEP>"],
  "violations": ["<Chapter 33 safety violations with code citations, e.g. §3314 missing guardrails>"],
  "confidence": <0.0-1.0>
}
Cite §3314 for fall protection, §3314.9 for scaffold safety, and §3308 for
fire safety issues. List only what is visible in the imagery.`
