package vision

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewClient(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ClientConfig
		wantErr error
	}{
		{
			name:    "valid config",
			cfg:     ClientConfig{APIKey: "sk-test", Endpoint: "https://api.deepseek.com/v1"},
			wantErr: nil,
		},
		{
			name:    "missing API key",
			cfg:     ClientConfig{Endpoint: "https://api.deepseek.com/v1"},
			wantErr: ErrMissingAPIKey,
		},
		{
			name:    "missing endpoint",
			cfg:     ClientConfig{APIKey: "sk-test"},
			wantErr: ErrMissingEndpoint,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient(tt.cfg)
			if err != tt.wantErr {
				t.Errorf("NewClient() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// chatReply builds a chat-completions response whose message content is body.
func chatReply(body string) map[string]any {
	return map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": body}},
		},
	}
}

func TestAnalyze(t *testing.T) {
	var gotAuth string
	var gotRequest chatRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotRequest); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if err := json.NewEncoder(w).Encode(chatReply(`{"summary":"Superstructure phase","milestones":["Superstructure"],"violations":["§3314 missing guardrails"],"confidence":0.85}`)); err != nil {
			t.Errorf("failed to encode response: %v", err)
		}
	}))
	defer server.Close()

	client, err := NewClient(ClientConfig{APIKey: "sk-test", Endpoint: server.URL})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	findings, err := client.Analyze(context.Background(), []string{
		"https://cdn.example.com/a.jpg",
		"https://cdn.example.com/b.jpg",
	})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization header = %q", gotAuth)
	}
	if gotRequest.Model != DefaultModel {
		t.Errorf("request model = %s, want %s", gotRequest.Model, DefaultModel)
	}
	// One text part for the prompt plus one image part per evidence ref.
	if len(gotRequest.Messages) != 1 || len(gotRequest.Messages[0].Content) != 3 {
		t.Errorf("request content parts = %d, want 3", len(gotRequest.Messages[0].Content))
	}

	if findings.Summary != "Superstructure phase" {
		t.Errorf("Summary = %s", findings.Summary)
	}
	if len(findings.Violations) != 1 || findings.Violations[0] != "§3314 missing guardrails" {
		t.Errorf("Violations = %v", findings.Violations)
	}
	if findings.Confidence != 0.85 {
		t.Errorf("Confidence = %f, want 0.85", findings.Confidence)
	}
}

func TestAnalyze_Errors(t *testing.T) {
	t.Run("no evidence refs", func(t *testing.T) {
		client, err := NewClient(ClientConfig{APIKey: "sk-test", Endpoint: "https://api.deepseek.com/v1"})
		if err != nil {
			t.Fatalf("NewClient() error = %v", err)
		}
		if _, err := client.Analyze(context.Background(), nil); err == nil {
			t.Error("Analyze() with no refs succeeded, want error")
		}
	})

	t.Run("upstream error status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
		}))
		defer server.Close()

		client, _ := NewClient(ClientConfig{APIKey: "sk-test", Endpoint: server.URL})
		if _, err := client.Analyze(context.Background(), []string{"https://cdn.example.com/a.jpg"}); err == nil {
			t.Error("Analyze() succeeded on upstream 429, want error")
		}
	})

	t.Run("empty choices", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := json.NewEncoder(w).Encode(map[string]any{"choices": []any{}}); err != nil {
				t.Errorf("failed to encode response: %v", err)
			}
		}))
		defer server.Close()

		client, _ := NewClient(ClientConfig{APIKey: "sk-test", Endpoint: server.URL})
		if _, err := client.Analyze(context.Background(), []string{"https://cdn.example.com/a.jpg"}); err == nil {
			t.Error("Analyze() succeeded on empty choices, want error")
		}
	})
}

func TestParseFindings(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		wantSummary string
		wantViol    int
	}{
		{
			name:        "plain JSON",
			content:     `{"summary":"ok","violations":["§3314 x"],"confidence":0.9}`,
			wantSummary: "ok",
			wantViol:    1,
		},
		{
			name:        "fenced JSON",
			content:     "```json\n{\"summary\":\"fenced\",\"confidence\":0.8}\n```",
			wantSummary: "fenced",
			wantViol:    0,
		},
		{
			name:        "fenced JSON without language tag",
			content:     "```\n{\"summary\":\"bare fence\",\"confidence\":0.7}\n```",
			wantSummary: "bare fence",
			wantViol:    0,
		},
		{
			name:        "non-JSON reply becomes the summary",
			content:     "The site looks compliant.",
			wantSummary: "The site looks compliant.",
			wantViol:    0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := parseFindings(tt.content)
			if f.Summary != tt.wantSummary {
				t.Errorf("Summary = %q, want %q", f.Summary, tt.wantSummary)
			}
			if len(f.Violations) != tt.wantViol {
				t.Errorf("Violations = %v, want %d entries", f.Violations, tt.wantViol)
			}
		})
	}
}
