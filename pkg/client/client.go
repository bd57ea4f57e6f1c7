// Package client is a small Go client for the key-authenticated /api/v1
// surface, including consumption of the SSE chat stream.
package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"

	"archie-backend/pkg/api"
)

type Client struct {
	http   *resty.Client
	apiKey string
}

func New(baseURL, apiKey string) *Client {
	return &Client{
		http:   resty.New().SetBaseURL(baseURL),
		apiKey: apiKey,
	}
}

func (c *Client) request(ctx context.Context) *resty.Request {
	return c.http.R().SetContext(ctx).SetHeader("X-API-Key", c.apiKey)
}

func decodeError(resp *resty.Response) error {
	var errResp api.ErrorResponse
	if err := json.Unmarshal(resp.Body(), &errResp); err == nil && errResp.Error != "" {
		return fmt.Errorf("api error (%d): %s", resp.StatusCode(), errResp.Error)
	}
	return fmt.Errorf("api error (%d): %s", resp.StatusCode(), resp.Status())
}

// Chat sends a message and returns the complete answer.
func (c *Client) Chat(ctx context.Context, message string) (string, error) {
	var result api.ChatResponse
	resp, err := c.request(ctx).
		SetBody(api.ChatRequest{Message: message}).
		SetResult(&result).
		Post("/chat")
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		return "", decodeError(resp)
	}
	return result.Response, nil
}

// Event is one decoded frame from the chat stream. Exactly one field is
// populated per event.
type Event struct {
	Token    string
	ToolCall *api.ToolCallPayload
	Done     bool
	Err      string
}

// ChatStream sends a message and invokes handle for every frame in wire
// order. It returns after the terminal frame or transport failure.
func (c *Client) ChatStream(ctx context.Context, message string, handle func(Event) error) error {
	resp, err := c.request(ctx).
		SetBody(api.ChatRequest{Message: message}).
		SetDoNotParseResponse(true).
		Post("/chat/stream")
	if err != nil {
		return err
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.IsError() {
		return fmt.Errorf("api error (%d): %s", resp.StatusCode(), resp.Status())
	}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")

		var frame struct {
			Token    *string              `json:"token"`
			ToolCall *api.ToolCallPayload `json:"tool_call"`
			Done     *bool                `json:"done"`
			Error    *string              `json:"error"`
		}
		if err := json.Unmarshal([]byte(payload), &frame); err != nil {
			return fmt.Errorf("malformed frame %q: %w", payload, err)
		}

		var event Event
		switch {
		case frame.Token != nil:
			event.Token = *frame.Token
		case frame.ToolCall != nil:
			event.ToolCall = frame.ToolCall
		case frame.Done != nil:
			event.Done = *frame.Done
		case frame.Error != nil:
			event.Err = *frame.Error
		default:
			continue
		}

		if err := handle(event); err != nil {
			return err
		}
		if event.Done || event.Err != "" {
			return nil
		}
	}
	return scanner.Err()
}

// Usage returns usage statistics for the client's API key.
func (c *Client) Usage(ctx context.Context) (*api.UsageResponse, error) {
	var result api.UsageResponse
	resp, err := c.request(ctx).SetResult(&result).Get("/usage")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, decodeError(resp)
	}
	return &result, nil
}

// GenerateKey creates a new API key. The returned secret is shown exactly
// once and cannot be recovered later.
func (c *Client) GenerateKey(ctx context.Context, name, ownerEmail, description string) (*api.GenerateKeyResponse, error) {
	var result api.GenerateKeyResponse
	resp, err := c.http.R().SetContext(ctx).
		SetBody(api.GenerateKeyRequest{Name: name, OwnerEmail: ownerEmail, Description: description}).
		SetResult(&result).
		Post("/keys/generate")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, decodeError(resp)
	}
	return &result, nil
}

// ListKeys returns all key metadata for the owner, digests omitted.
func (c *Client) ListKeys(ctx context.Context, ownerEmail string) ([]api.KeyMetadata, error) {
	var result api.ListKeysResponse
	resp, err := c.http.R().SetContext(ctx).
		SetQueryParam("owner_email", ownerEmail).
		SetResult(&result).
		Get("/keys")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, decodeError(resp)
	}
	return result.Keys, nil
}

// RevokeKey deactivates a key. Revocation is permanent.
func (c *Client) RevokeKey(ctx context.Context, keyID, ownerEmail string) error {
	resp, err := c.http.R().SetContext(ctx).
		SetBody(api.RevokeKeyRequest{OwnerEmail: ownerEmail}).
		Post("/keys/" + keyID + "/revoke")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return decodeError(resp)
	}
	return nil
}
