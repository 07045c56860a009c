package line

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

const (
	defaultHTTPTimeout = 10 * time.Second

	// Messaging API limits per request.
	maxMessagesPerCall = 5
	maxTextRunes       = 5000
)

// APIError is a non-2xx response from the Messaging API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("line: API error %d: %s", e.Status, e.Message)
}

// Client sends messages through the LINE Messaging API SDK.
type Client struct {
	channelToken string
	opts         []messaging_api.MessagingApiAPIOption
}

// NewClient creates a Messaging API client. An empty apiBase uses the
// public endpoint.
func NewClient(channelToken, apiBase string) (*Client, error) {
	if strings.TrimSpace(channelToken) == "" {
		return nil, fmt.Errorf("line: channel token cannot be empty")
	}
	opts := []messaging_api.MessagingApiAPIOption{
		messaging_api.WithHTTPClient(&http.Client{Timeout: defaultHTTPTimeout}),
	}
	if apiBase != "" {
		opts = append(opts, messaging_api.WithEndpoint(strings.TrimRight(apiBase, "/")))
	}
	c := &Client{channelToken: channelToken, opts: opts}
	if _, err := c.api(context.Background()); err != nil {
		return nil, err
	}
	return c, nil
}

// api returns a request-scoped SDK client. The SDK stores the context on
// the client itself, so sharing one across goroutines would race.
func (c *Client) api(ctx context.Context) (*messaging_api.MessagingApiAPI, error) {
	api, err := messaging_api.NewMessagingApiAPI(c.channelToken, c.opts...)
	if err != nil {
		return nil, fmt.Errorf("line: build messaging client: %w", err)
	}
	return api.WithContext(ctx), nil
}

// Reply answers a webhook event using its one-shot reply token.
func (c *Client) Reply(ctx context.Context, replyToken string, texts ...string) error {
	msgs := textMessages(texts)
	if len(msgs) == 0 {
		return nil
	}
	api, err := c.api(ctx)
	if err != nil {
		return err
	}
	resp, _, err := api.ReplyMessageWithHttpInfo(&messaging_api.ReplyMessageRequest{ReplyToken: replyToken, Messages: msgs})
	return callError("reply", resp, err)
}

// Push sends messages to a user without a reply token. The retry key makes
// a retried push idempotent on LINE's side.
func (c *Client) Push(ctx context.Context, userID string, texts ...string) error {
	msgs := textMessages(texts)
	if len(msgs) == 0 {
		return nil
	}
	api, err := c.api(ctx)
	if err != nil {
		return err
	}
	resp, _, err := api.PushMessageWithHttpInfo(&messaging_api.PushMessageRequest{To: userID, Messages: msgs}, uuid.NewString())
	return callError("push", resp, err)
}

// Profile fetches the user's display name.
func (c *Client) Profile(ctx context.Context, userID string) (Profile, error) {
	api, err := c.api(ctx)
	if err != nil {
		return Profile{}, err
	}
	resp, p, err := api.GetProfileWithHttpInfo(userID)
	if err := callError("profile", resp, err); err != nil {
		return Profile{}, err
	}
	return Profile{
		UserID:        p.UserId,
		DisplayName:   p.DisplayName,
		PictureURL:    p.PictureUrl,
		StatusMessage: p.StatusMessage,
	}, nil
}

// callError turns an SDK failure into an APIError when LINE answered with
// a status, keeping the API's own message when the body carries one.
func callError(op string, resp *http.Response, err error) error {
	if err == nil {
		return nil
	}
	if resp == nil || resp.StatusCode/100 == 2 {
		return fmt.Errorf("line: %s: %w", op, err)
	}
	msg := err.Error()
	if resp.Body != nil {
		if body, rerr := io.ReadAll(io.LimitReader(resp.Body, 1<<16)); rerr == nil {
			var payload struct {
				Message string `json:"message"`
			}
			if json.Unmarshal(body, &payload) == nil && payload.Message != "" {
				msg = payload.Message
			}
		}
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}

func textMessages(texts []string) []messaging_api.MessageInterface {
	chunks := textChunks(texts)
	msgs := make([]messaging_api.MessageInterface, 0, len(chunks))
	for _, chunk := range chunks {
		msgs = append(msgs, messaging_api.TextMessage{Text: chunk})
	}
	return msgs
}

// textChunks drops empty texts, splits oversized ones, and caps the batch.
func textChunks(texts []string) []string {
	var out []string
	for _, text := range texts {
		text = strings.TrimSpace(text)
		for text != "" && len(out) < maxMessagesPerCall {
			chunk := text
			if utf8.RuneCountInString(text) > maxTextRunes {
				chunk = string([]rune(text)[:maxTextRunes])
			}
			out = append(out, chunk)
			text = strings.TrimSpace(text[len(chunk):])
		}
	}
	return out
}
