package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/chatrelay/chatrelay/pkg/models"
)

// TavilyClient calls the Tavily web search and extraction API.
type TavilyClient struct {
	apiKey  string
	client  *http.Client
	baseURL string
}

// NewTavilyClient creates a client for the public Tavily endpoints.
func NewTavilyClient(apiKey string, client *http.Client) *TavilyClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &TavilyClient{
		apiKey:  apiKey,
		client:  client,
		baseURL: "https://api.tavily.com",
	}
}

// post sends a JSON payload and returns the `results` field of the response,
// or the whole body when the field is absent.
func (c *TavilyClient) post(ctx context.Context, path string, payload any) (string, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var decoded struct {
		Results json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil || decoded.Results == nil {
		return string(body), nil
	}
	return string(decoded.Results), nil
}

// TavilySearchTool searches the web for recent information.
type TavilySearchTool struct {
	tavily *TavilyClient
}

func NewTavilySearchTool(tavily *TavilyClient) *TavilySearchTool {
	return &TavilySearchTool{tavily: tavily}
}

func (t *TavilySearchTool) Name() string {
	return "tavily_search"
}

func (t *TavilySearchTool) Description() string {
	return "Search the web for the latest information using Tavily. For places or restaurants prefer the google_map tool."
}

func (t *TavilySearchTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query":      {"type": "string", "description": "The search query"},
			"time_range": {"type": "string", "enum": ["day", "week", "month", "year"], "description": "The time range of the search, default day"},
			"days":       {"type": "number", "description": "Days back from today to include, news topic only, default 3"},
			"maxResults": {"type": "number", "description": "Maximum number of results, default 5"}
		},
		"required": ["query"],
		"additionalProperties": false
	}`)
}

func (t *TavilySearchTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	var args struct {
		Query      string `json:"query"`
		TimeRange  string `json:"time_range"`
		Days       int    `json:"days"`
		MaxResults int    `json:"maxResults"`
	}
	if err := json.Unmarshal(params, &args); err != nil {
		return nil, err
	}
	if args.TimeRange == "" {
		args.TimeRange = "day"
	}
	if args.MaxResults <= 0 {
		args.MaxResults = 5
	}

	body, err := t.tavily.post(ctx, "/search", map[string]any{
		"query":      args.Query,
		"time_range": args.TimeRange,
		"maxResults": args.MaxResults,
	})
	if err != nil {
		return toolError(err), nil
	}
	return &models.ToolResult{Content: body}, nil
}

// TavilyExtractTool fetches the content of one or more web pages.
type TavilyExtractTool struct {
	tavily *TavilyClient
}

func NewTavilyExtractTool(tavily *TavilyClient) *TavilyExtractTool {
	return &TavilyExtractTool{tavily: tavily}
}

func (t *TavilyExtractTool) Name() string {
	return "tavily_extract"
}

func (t *TavilyExtractTool) Description() string {
	return "Extract the page content of one or more URLs using Tavily. Separate multiple URLs with commas."
}

func (t *TavilyExtractTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"urls": {"type": "string", "description": "URL(s) to extract, comma separated"}
		},
		"required": ["urls"],
		"additionalProperties": false
	}`)
}

func (t *TavilyExtractTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	var args struct {
		URLs string `json:"urls"`
	}
	if err := json.Unmarshal(params, &args); err != nil {
		return nil, err
	}

	urls := make([]string, 0)
	for _, u := range strings.Split(args.URLs, ",") {
		if trimmed := strings.TrimSpace(u); trimmed != "" {
			urls = append(urls, trimmed)
		}
	}
	if len(urls) == 0 {
		return toolError(fmt.Errorf("no urls provided")), nil
	}

	body, err := t.tavily.post(ctx, "/extract", map[string]any{"urls": urls})
	if err != nil {
		return toolError(err), nil
	}
	return &models.ToolResult{Content: body}, nil
}
