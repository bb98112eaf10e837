package line

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const replyTimeout = 3 * time.Second

// Client talks to the LINE Messaging API with a channel access token.
type Client struct {
	token  string
	client *http.Client

	apiURL     string
	contentURL string
}

// NewClient creates a reply/content client. A nil http.Client gets a
// dedicated one with the reply timeout applied.
func NewClient(channelAccessToken string, client *http.Client) *Client {
	if client == nil {
		client = &http.Client{Timeout: replyTimeout}
	}
	return &Client{
		token:      channelAccessToken,
		client:     client,
		apiURL:     "https://api.line.me",
		contentURL: "https://api-data.line.me",
	}
}

type textMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Reply sends one or more text messages against a reply token. Reply tokens
// are single-use and expire quickly, so failures are returned for logging
// rather than retried.
func (c *Client) Reply(ctx context.Context, replyToken string, texts ...string) error {
	if replyToken == "" {
		return fmt.Errorf("missing reply token")
	}
	messages := make([]textMessage, 0, len(texts))
	for _, text := range texts {
		messages = append(messages, textMessage{Type: "text", Text: text})
	}
	payload, err := json.Marshal(map[string]any{
		"replyToken": replyToken,
		"messages":   messages,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/v2/bot/message/reply", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("reply rejected: status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	return nil
}

// MessageContent downloads the binary content of a message (image bytes) from
// the LINE content API and reports its media type.
func (c *Client) MessageContent(ctx context.Context, messageID string) ([]byte, string, error) {
	url := fmt.Sprintf("%s/v2/bot/message/%s/content", c.contentURL, messageID)
	return c.fetch(ctx, url, true)
}

// ExternalContent downloads message content hosted outside LINE, referenced by
// contentProvider.originalContentUrl. No bearer token is attached.
func (c *Client) ExternalContent(ctx context.Context, url string) ([]byte, string, error) {
	return c.fetch(ctx, url, false)
}

func (c *Client) fetch(ctx context.Context, url string, authorized bool) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	if authorized {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch content: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetch content: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	return body, resp.Header.Get("Content-Type"), nil
}
