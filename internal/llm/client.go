// Package llm implements the structured risk-assessment and free-text
// narrative calls against a text-in/text-out chat endpoint, with
// retry/backoff and output schema validation.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/openlews/ews/internal/openlewserr"
)

// ChatTransport is the external LLM endpoint interface: chat(system, user,
// max_tokens, temperature) -> text.
type ChatTransport interface {
	Chat(ctx context.Context, system, user string, maxTokens int, temperature, topP float64) (text string, retryableErr bool, err error)
}

// HTTPTransport is a ChatTransport backed by a JSON chat-completion style
// HTTP endpoint, using a timeout-bound, context-aware net/http client.
type HTTPTransport struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewHTTPTransport(endpoint, apiKey string, timeout time.Duration, logger *slog.Logger) *HTTPTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPTransport{
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type chatRequest struct {
	Model       string  `json:"model"`
	System      string  `json:"system"`
	User        string  `json:"user"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
}

type chatResponse struct {
	Text string `json:"text"`
}

func (t *HTTPTransport) Chat(ctx context.Context, system, user string, maxTokens int, temperature, topP float64) (string, bool, error) {
	body, err := json.Marshal(chatRequest{System: system, User: user, MaxTokens: maxTokens, Temperature: temperature, TopP: topP})
	if err != nil {
		return "", false, fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", true, fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", true, fmt.Errorf("throttled: status %d", resp.StatusCode)
	case resp.StatusCode >= 500:
		return "", true, fmt.Errorf("server error: status %d: %s", resp.StatusCode, respBody)
	case resp.StatusCode >= 400:
		return "", false, fmt.Errorf("client error: status %d: %s", resp.StatusCode, respBody)
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", false, fmt.Errorf("decode chat response: %w", err)
	}
	return parsed.Text, false, nil
}

// Client is the LLM client: assess_risk and generate_narrative, each
// retried per RetryPolicy and (for assess_risk) JSON-schema validated with
// bounded parse retries.
type Client struct {
	transport   ChatTransport
	policy      RetryPolicy
	modelID     string
	maxTokens   int
	temperature float64
	topP        float64
	logger      *slog.Logger
}

const maxParseRetries = 2

func NewClient(transport ChatTransport, policy RetryPolicy, modelID string, maxTokens int, temperature, topP float64, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		transport:   transport,
		policy:      policy,
		modelID:     modelID,
		maxTokens:   maxTokens,
		temperature: temperature,
		topP:        topP,
		logger:      logger,
	}
}

// AssessRisk calls the model with the risk-assessment template and
// validates the JSON response against the Assessment schema, retrying up
// to maxParseRetries times with a "return only valid JSON" nudge before
// failing with LLMBadOutput.
func (c *Client) AssessRisk(ctx context.Context, assessmentCtx AssessmentContext) (Assessment, error) {
	userPrompt := buildRiskAssessmentPrompt(assessmentCtx)

	var lastParseErr error
	for parseAttempt := 0; parseAttempt <= maxParseRetries; parseAttempt++ {
		prompt := userPrompt
		if parseAttempt > 0 {
			prompt += "\n\nYour previous response was not valid JSON matching the schema. Return ONLY valid JSON, nothing else."
		}

		text, err := c.policy.Do(ctx, func(ctx context.Context) (string, bool, error) {
			return c.transport.Chat(ctx, systemPrompt, prompt, c.maxTokens, c.temperature, c.topP)
		})
		if err != nil {
			return Assessment{}, classifyTransportError(err)
		}

		assessment, parseErr := parseAssessment(text)
		if parseErr == nil {
			c.logger.Info("llm risk assessment received", "risk_level", assessment.RiskLevel, "confidence", assessment.Confidence)
			return assessment, nil
		}
		lastParseErr = parseErr
		c.logger.Warn("llm response failed schema validation", "attempt", parseAttempt, "error", parseErr)
	}

	return Assessment{}, openlewserr.Wrap(openlewserr.KindLLMBadOutput, "schema validation failed after retries", lastParseErr)
}

// GenerateNarrative calls the model with the narrative template. Callers
// are expected to only invoke this for Orange/Red assessments per the
// orchestrator's rule.
func (c *Client) GenerateNarrative(ctx context.Context, narrativeCtx NarrativeContext) (string, error) {
	prompt := buildNarrativePrompt(narrativeCtx)
	text, err := c.policy.Do(ctx, func(ctx context.Context) (string, bool, error) {
		return c.transport.Chat(ctx, systemPrompt, prompt, c.maxTokens, c.temperature, c.topP)
	})
	if err != nil {
		return "", classifyTransportError(err)
	}
	return text, nil
}

func classifyTransportError(err error) error {
	if err == context.DeadlineExceeded || err == context.Canceled {
		return openlewserr.Wrap(openlewserr.KindDeadline, "llm call cancelled", err)
	}
	return openlewserr.Wrap(openlewserr.KindLLMTransient, "llm call failed after retries", err)
}
