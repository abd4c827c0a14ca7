// Package engine provides the public Go SDK for the Answer Engine API.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client is the public SDK client for the Answer Engine.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// ClientConfig holds client configuration.
type ClientConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// NewClient creates a new Answer Engine client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8086"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// APIError is a non-2xx response from the service.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("answer-engine: %d %s", e.StatusCode, e.Detail)
}

// QueryRequest represents a question for a tenant's knowledge base.
type QueryRequest struct {
	TenantID string `json:"tenantId"`
	UserID   string `json:"userId,omitempty"`
	Channel  string `json:"channel,omitempty"`
	Message  string `json:"message"`
}

// Citation points at one retrieved context backing the answer.
type Citation struct {
	Source    string  `json:"source"`
	Title     string  `json:"title"`
	Relevance float64 `json:"relevance"`
	Snippet   string  `json:"snippet"`
}

// QueryResponse represents an answer.
type QueryResponse struct {
	Response       string     `json:"response"`
	Citations      []Citation `json:"citations"`
	Confidence     float64    `json:"confidence"`
	RequiresHuman  bool       `json:"requiresHuman"`
	ConversationID string     `json:"conversationId"`
	Cached         bool       `json:"cached"`
}

// Query asks a question. Reusing the same UserID continues the conversation.
func (c *Client) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	var resp QueryResponse
	if err := c.post(ctx, "/api/v1/query", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// IngestRequest represents a raw-text ingestion request.
type IngestRequest struct {
	TenantID        string         `json:"tenantId"`
	KnowledgeBaseID string         `json:"knowledgeBaseId,omitempty"`
	Title           string         `json:"title"`
	Content         string         `json:"content"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// IngestResponse represents an ingestion result.
type IngestResponse struct {
	DocumentID string `json:"documentId"`
	ChunkCount int    `json:"chunkCount"`
	Status     string `json:"status"`
}

// Ingest indexes raw text into the tenant's knowledge base.
func (c *Client) Ingest(ctx context.Context, req IngestRequest) (*IngestResponse, error) {
	var resp IngestResponse
	if err := c.post(ctx, "/api/v1/ingest", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Message represents one conversation message.
type Message struct {
	ID         string `json:"id"`
	SenderType string `json:"senderType"`
	Content    string `json:"content"`
	Timestamp  string `json:"timestamp"`
}

// Messages retrieves a conversation's history in order.
func (c *Client) Messages(ctx context.Context, conversationID string) ([]Message, error) {
	var resp struct {
		Messages []Message `json:"messages"`
	}
	if err := c.get(ctx, "/api/v1/conversations/"+conversationID+"/messages", &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// HealthResponse represents a health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// Health checks the service health.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.get(ctx, "/health", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Detail string `json:"detail"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		if json.Unmarshal(raw, &apiErr) != nil || apiErr.Detail == "" {
			apiErr.Detail = string(raw)
		}
		return &APIError{StatusCode: resp.StatusCode, Detail: apiErr.Detail}
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
