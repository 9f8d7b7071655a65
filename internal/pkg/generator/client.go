// Package generator is the HTTP client for the AI model that drafts slide
// content from a prompt.
package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/pptmaker/pptmaker-api/internal/pkg/metrics"
)

const defaultTimeout = 60 * time.Second

var (
	ErrNotConfigured = errors.New("generator is not configured")
	ErrEmptyResponse = errors.New("generator returned no slides")
)

// Slide is one generated slide.
type Slide struct {
	Title   string   `json:"title"`
	Bullets []string `json:"bullets"`
	Notes   string   `json:"notes,omitempty"`
}

// Request describes the deck to draft.
type Request struct {
	Title      string
	Prompt     string
	SlideCount int
}

// Client calls a generateContent style model endpoint.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
}

// NewClient creates a generator client.
func NewClient(baseURL, apiKey, model string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		http: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generationConfig struct {
	ResponseMimeType string `json:"responseMimeType"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

type deck struct {
	Slides []Slide `json:"slides"`
}

// Generate asks the model for req.SlideCount slides. The result is trimmed to
// the requested count; fewer slides than asked for is not an error.
func (c *Client) Generate(ctx context.Context, req Request) ([]Slide, error) {
	slides, err := c.generate(ctx, req)
	switch {
	case err == nil:
		metrics.GeneratorRequestsTotal.WithLabelValues("success").Inc()
	case isTimeoutError(ctx, err):
		metrics.GeneratorRequestsTotal.WithLabelValues("timeout").Inc()
	default:
		metrics.GeneratorRequestsTotal.WithLabelValues("error").Inc()
	}
	return slides, err
}

func (c *Client) generate(ctx context.Context, req Request) ([]Slide, error) {
	if c == nil || c.http == nil || c.baseURL == "" || c.apiKey == "" {
		return nil, ErrNotConfigured
	}

	payload, err := json.Marshal(generateRequest{
		Contents: []content{{
			Role:  "user",
			Parts: []part{{Text: buildPrompt(req)}},
		}},
		GenerationConfig: generationConfig{ResponseMimeType: "application/json"},
	})
	if err != nil {
		return nil, fmt.Errorf("generator request error: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, url.PathEscape(c.model))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("generator request error: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, classifyRequestError(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("generator read error: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("generator http error: status=%d body=%s", resp.StatusCode, string(body))
	}

	var out generateResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("generator decode error: %w", err)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return nil, ErrEmptyResponse
	}

	var d deck
	text := stripFence(out.Candidates[0].Content.Parts[0].Text)
	if err := json.Unmarshal([]byte(text), &d); err != nil {
		return nil, fmt.Errorf("generator decode error: %w", err)
	}
	if len(d.Slides) == 0 {
		return nil, ErrEmptyResponse
	}
	if len(d.Slides) > req.SlideCount {
		d.Slides = d.Slides[:req.SlideCount]
	}
	return d.Slides, nil
}

func buildPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Create a presentation titled %q with exactly %d slides.\n", req.Title, req.SlideCount)
	if p := strings.TrimSpace(req.Prompt); p != "" {
		fmt.Fprintf(&b, "Topic and instructions: %s\n", p)
	}
	b.WriteString(`Respond with JSON only: {"slides":[{"title":string,"bullets":[string],"notes":string}]}`)
	return b.String()
}

// stripFence removes a markdown code fence some models wrap JSON in.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func classifyRequestError(ctx context.Context, err error) error {
	if isTimeoutError(ctx, err) {
		return fmt.Errorf("generator timeout: %w", err)
	}
	if isNetworkError(err) {
		return fmt.Errorf("generator network error: %w", err)
	}
	return fmt.Errorf("generator request error: %w", err)
}

func isTimeoutError(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

func isNetworkError(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.EHOSTUNREACH)
}
