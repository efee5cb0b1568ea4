package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// HTTPClient talks to the platform's bot REST API. Only the handful of
// operations the engine needs are implemented.
type HTTPClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *HTTPClient) DeleteMessage(ctx context.Context, chatID int64, messageID string) error {
	q := url.Values{"message_id": {messageID}}
	return c.do(ctx, http.MethodDelete, "/messages", q, nil, nil)
}

func (c *HTTPClient) SendNotice(ctx context.Context, chatID int64, text string) (string, error) {
	q := url.Values{"chat_id": {strconv.FormatInt(chatID, 10)}}
	body := map[string]any{"text": text}
	var resp struct {
		Message struct {
			Body struct {
				MID string `json:"mid"`
			} `json:"body"`
		} `json:"message"`
	}
	if err := c.do(ctx, http.MethodPost, "/messages", q, body, &resp); err != nil {
		return "", err
	}
	return resp.Message.Body.MID, nil
}

func (c *HTTPClient) RemoveMember(ctx context.Context, chatID, userID int64, block bool) error {
	q := url.Values{
		"user_id": {strconv.FormatInt(userID, 10)},
		"block":   {strconv.FormatBool(block)},
	}
	path := fmt.Sprintf("/chats/%d/members/me/kick", chatID)
	return c.do(ctx, http.MethodPost, path, q, nil, nil)
}

func (c *HTTPClient) RemoveMemberDirect(ctx context.Context, chatID, userID int64, block bool) error {
	q := url.Values{
		"user_ids": {strconv.FormatInt(userID, 10)},
		"block":    {strconv.FormatBool(block)},
	}
	path := fmt.Sprintf("/chats/%d/members", chatID)
	return c.do(ctx, http.MethodDelete, path, q, nil, nil)
}

func (c *HTTPClient) AddMember(ctx context.Context, chatID, userID int64) error {
	path := fmt.Sprintf("/chats/%d/members", chatID)
	body := map[string]any{"user_ids": []int64{userID}}
	return c.do(ctx, http.MethodPost, path, nil, body, nil)
}

// PollUpdates long-polls the platform for new message events, returning the
// messages and the marker to resume from.
func (c *HTTPClient) PollUpdates(ctx context.Context, marker int64) ([]Message, int64, error) {
	q := url.Values{"types": {"message_created"}, "timeout": {"30"}}
	if marker > 0 {
		q.Set("marker", strconv.FormatInt(marker, 10))
	}
	var resp struct {
		Updates []struct {
			Message Message `json:"message"`
		} `json:"updates"`
		Marker int64 `json:"marker"`
	}
	if err := c.do(ctx, http.MethodGet, "/updates", q, nil, &resp); err != nil {
		return nil, marker, err
	}
	messages := make([]Message, 0, len(resp.Updates))
	for _, update := range resp.Updates {
		messages = append(messages, update.Message)
	}
	return messages, resp.Marker, nil
}

// IsAdmin lists the chat's admins and looks the user up. Satisfies
// AdminResolver; wrap with NewCachedAdminResolver in production.
func (c *HTTPClient) IsAdmin(ctx context.Context, chatID, userID int64) (bool, error) {
	path := fmt.Sprintf("/chats/%d/members/admins", chatID)
	var resp struct {
		Members []struct {
			UserID int64 `json:"user_id"`
		} `json:"members"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &resp); err != nil {
		return false, err
	}
	for _, member := range resp.Members {
		if member.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if query == nil {
		query = url.Values{}
	}
	query.Set("access_token", c.token)

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path+"?"+query.Encode(), reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusBadRequest:
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: %s", ErrBadRequest, string(payload))
	default:
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("platform: %s %s: status %d: %s", method, path, resp.StatusCode, string(payload))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
