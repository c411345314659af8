package generator

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fathomlab/fathom/domain"
)

// Client is an HTTP client for a generation gateway. Section text arrives as
// an SSE stream of data frames terminated by a [DONE] marker.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new generator client.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// planRequest is the request body for plan generation.
type planRequest struct {
	Query string `json:"query"`
}

// summarizeRequest is the request body for record summarization.
type summarizeRequest struct {
	Records  []domain.Record `json:"records"`
	MaxChars int             `json:"max_chars"`
}

type summarizeResponse struct {
	Summary string `json:"summary"`
}

// sectionRequest is the request body for streamed section production.
type sectionRequest struct {
	Job     domain.SectionJob `json:"job"`
	Records []domain.Record   `json:"records"`
}

// streamFrame is a single SSE data frame of a section stream.
type streamFrame struct {
	Text string `json:"text"`
}

// ErrorResponse represents a gateway error response.
type ErrorResponse struct {
	Error *APIError `json:"error"`
}

// APIError represents the error details.
type APIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}

// Plan decomposes a query into a research plan.
func (c *Client) Plan(ctx context.Context, query string) (*domain.Plan, error) {
	var plan domain.Plan
	if err := c.post(ctx, "/v1/plan", planRequest{Query: query}, &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

// Summarize produces a bounded-length summary of a record set.
func (c *Client) Summarize(ctx context.Context, records []domain.Record, maxChars int) (string, error) {
	var resp summarizeResponse
	if err := c.post(ctx, "/v1/summarize", summarizeRequest{Records: records, MaxChars: maxChars}, &resp); err != nil {
		return "", err
	}
	if len(resp.Summary) > maxChars {
		resp.Summary = resp.Summary[:maxChars]
	}
	return resp.Summary, nil
}

// Produce streams a section's text, calling fn for each chunk.
func (c *Client) Produce(ctx context.Context, job domain.SectionJob, records []domain.Record, fn ChunkFunc) error {
	body, err := json.Marshal(sectionRequest{Job: job, Records: records})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/sections/stream", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(httpReq)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.apiError(resp)
	}

	reader := bufio.NewReader(resp.Body)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("failed to read stream: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			return nil
		}

		var frame streamFrame
		if err := json.Unmarshal([]byte(data), &frame); err != nil {
			// Skip malformed frames
			continue
		}

		if err := fn(frame.Text); err != nil {
			return err
		}
	}
}

func (c *Client) post(ctx context.Context, path string, reqBody, out interface{}) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.apiError(resp)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func (c *Client) apiError(resp *http.Response) error {
	respBody, _ := io.ReadAll(resp.Body)
	var errResp ErrorResponse
	if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error != nil {
		return fmt.Errorf("generator API error [%d]: %s (type: %s)", resp.StatusCode, errResp.Error.Message, errResp.Error.Type)
	}
	return fmt.Errorf("generator API error [%d]: %s", resp.StatusCode, string(respBody))
}
