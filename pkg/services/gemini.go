package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"BranchChat/pkg/logger"
)

var (
	ErrGeminiDisabled = errors.New("gemini is disabled via config")
	ErrGeminiNoKey    = errors.New("GEMINI_API_KEY is not set")
)

const (
	geminiBaseURL       = "https://generativelanguage.googleapis.com/v1beta/models"
	geminiFallbackModel = "gemini-2.0-flash"
	summaryInstruction  = "Summarize this conversation briefly."
)

// GeminiSummarizer calls the Gemini generateContent REST endpoint. Each model
// is tried in turn; overload and quota errors get one retry after a pause.
type GeminiSummarizer struct {
	apiKey  string
	enabled bool
	models  []string
	baseURL string
	client  *http.Client
	log     *logger.Logger

	retryDelay time.Duration
}

func NewGeminiSummarizer(apiKey, model string, enabled bool, log *logger.Logger) *GeminiSummarizer {
	models := []string{model}
	if model != geminiFallbackModel {
		models = append(models, geminiFallbackModel)
	}
	return &GeminiSummarizer{
		apiKey:     apiKey,
		enabled:    enabled,
		models:     models,
		baseURL:    geminiBaseURL,
		client:     &http.Client{Timeout: 60 * time.Second},
		log:        log.With("service", "gemini"),
		retryDelay: 2 * time.Second,
	}
}

func (s *GeminiSummarizer) Summarize(ctx context.Context, text string) (string, error) {
	if !s.enabled {
		return "", ErrGeminiDisabled
	}
	if strings.TrimSpace(s.apiKey) == "" {
		return "", ErrGeminiNoKey
	}

	body, err := json.Marshal(map[string]any{
		"systemInstruction": map[string]any{
			"parts": []any{map[string]any{"text": summaryInstruction}},
		},
		"contents": []any{
			map[string]any{
				"role":  "user",
				"parts": []any{map[string]any{"text": text}},
			},
		},
		"generationConfig": map[string]any{
			"temperature":     0.3,
			"maxOutputTokens": 256,
			"topK":            40,
			"topP":            0.9,
		},
	})
	if err != nil {
		return "", err
	}

	var failures []string
	for _, m := range s.models {
		if strings.TrimSpace(m) == "" {
			continue
		}
		out, err := s.generate(ctx, m, body)
		if err != nil && isRetriable(err) {
			sleepWithContext(ctx, s.retryDelay)
			out, err = s.generate(ctx, m, body)
		}
		if err == nil && strings.TrimSpace(out) != "" {
			return strings.TrimSpace(out), nil
		}
		if err == nil {
			err = errors.New("empty response")
		}
		s.log.Warn("gemini model failed", "model", m, "error", err)
		failures = append(failures, fmt.Sprintf("%s -> %v", m, err))
		if ctx.Err() != nil {
			break
		}
	}
	return "", errors.New("all gemini models failed: " + strings.Join(failures, "; "))
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (s *GeminiSummarizer) generate(ctx context.Context, model string, body []byte) (string, error) {
	url := fmt.Sprintf("%s/%s:generateContent", s.baseURL, model)
	s.log.Debug("gemini request", "model", model)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-goog-api-key", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "http error")
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "read error")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBytes)))
	}

	var parsed generateResponse
	if err := json.Unmarshal(respBytes, &parsed); err != nil {
		return "", errors.Wrap(err, "decode response")
	}
	for _, c := range parsed.Candidates {
		for _, p := range c.Content.Parts {
			if strings.TrimSpace(p.Text) != "" {
				return p.Text, nil
			}
		}
	}
	return "", nil
}

func isRetriable(err error) bool {
	if err == nil {
		return false
	}
	e := strings.ToLower(err.Error())
	if strings.Contains(e, "status 503") || strings.Contains(e, "unavailable") {
		return true
	}
	if strings.Contains(e, "status 429") || strings.Contains(e, "resource_exhausted") || strings.Contains(e, "quota") {
		return true
	}
	return false
}

func sleepWithContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
