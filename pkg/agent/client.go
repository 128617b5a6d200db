package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client posts comments and card moves back to a tenant's own REST API
// (the kanban board CRUD surface, out of scope here — treated
// as an external collaborator with a narrow contract).
type Client struct {
	token string
	http  *http.Client
}

// NewClient builds a Client authenticating with the control plane's
// agent-dispatch service token.
func NewClient(serviceToken string) *Client {
	return &Client{token: serviceToken, http: &http.Client{Timeout: 30 * time.Second}}
}

type postCommentRequest struct {
	Text       string `json:"text"`
	AuthorName string `json:"author_name"`
}

// PostComment adds a comment to cardID on the tenant reachable at
// apiBaseURL, tagged with the agent's identity.
func (c *Client) PostComment(ctx context.Context, apiBaseURL, cardID, authorTag, text string) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("%s/cards/%s/comments", strings.TrimSuffix(apiBaseURL, "/"), cardID),
		postCommentRequest{Text: text, AuthorName: authorTag})
}

type moveCardRequest struct {
	Column string `json:"column"`
}

// MoveCard transitions cardID to the named column.
func (c *Client) MoveCard(ctx context.Context, apiBaseURL, cardID, column string) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("%s/cards/%s/move", strings.TrimSuffix(apiBaseURL, "/"), cardID),
		moveCardRequest{Column: column})
}

func (c *Client) do(ctx context.Context, method, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call tenant api: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("tenant api returned %d for %s %s", resp.StatusCode, method, url)
	}
	return nil
}
