// Package gateway talks to the chat transport bridge that owns the
// messaging session. The bot pushes replies and polls through it and asks
// it for contact profile names.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"

	"notulis.app/bot/core/config"
)

// ErrTransport marks any failure to reach the bridge or a non-2xx answer.
var ErrTransport = errors.New("gateway transport failure")

// StatusError carries the bridge's HTTP status and a trimmed body.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: gateway returned %d: %s", e.Op, e.Status, e.Body)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrTransport
}

type Client struct {
	http    *retryablehttp.Client
	baseURL string
	token   string
	session string
}

func New(cfg config.GatewayConfig) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.RetryMax
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 3 * time.Second
	rc.Logger = slog.Default().With("component", "gateway")
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	if cfg.Timeout > 0 {
		rc.HTTPClient.Timeout = cfg.Timeout
	}

	return &Client{
		http:    rc,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		session: cfg.SessionKey,
	}
}

type idempotencyKey struct{}

// WithIdempotencyKey makes the next send under ctx carry key. Callers
// derive it from what is being sent, so a repeated send of the same
// message reaches the bridge with the same key. Without it every call
// gets a fresh key.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idempotencyKey{}, key)
}

// IdempotencyKey reports the key set by WithIdempotencyKey.
func IdempotencyKey(ctx context.Context) (string, bool) {
	key, ok := ctx.Value(idempotencyKey{}).(string)
	return key, ok && key != ""
}

func idempotencyKeyFrom(ctx context.Context) string {
	if key, ok := IdempotencyKey(ctx); ok {
		return key
	}
	return uuid.NewString()
}

type sendTextRequest struct {
	Session string `json:"session"`
	ChatID  string `json:"chatId"`
	Text    string `json:"text"`
	ReplyTo string `json:"reply_to,omitempty"`
}

type pollBody struct {
	Name            string   `json:"name"`
	Options         []string `json:"options"`
	MultipleAnswers bool     `json:"multipleAnswers"`
}

type sendPollRequest struct {
	Session string   `json:"session"`
	ChatID  string   `json:"chatId"`
	Poll    pollBody `json:"poll"`
}

type contactResponse struct {
	Name     string `json:"name"`
	PushName string `json:"pushname"`
}

// SendText posts a text message. replyTo is the external id of the
// message to quote and may be empty.
func (c *Client) SendText(ctx context.Context, chatID, text, replyTo string) error {
	body := sendTextRequest{Session: c.session, ChatID: chatID, Text: text, ReplyTo: replyTo}
	return c.do(ctx, "send text", http.MethodPost, "/api/sendText", body, nil)
}

// SendPoll posts a single-answer poll.
func (c *Client) SendPoll(ctx context.Context, chatID, question string, options []string) error {
	body := sendPollRequest{
		Session: c.session,
		ChatID:  chatID,
		Poll:    pollBody{Name: question, Options: options},
	}
	return c.do(ctx, "send poll", http.MethodPost, "/api/sendPoll", body, nil)
}

// ContactName returns the profile name the transport knows for a sender,
// or "" when it has none.
func (c *Client) ContactName(ctx context.Context, contactID string) (string, error) {
	q := url.Values{}
	q.Set("contactId", contactID)
	q.Set("session", c.session)

	var resp contactResponse
	if err := c.do(ctx, "contact name", http.MethodGet, "/api/contacts?"+q.Encode(), nil, &resp); err != nil {
		return "", err
	}
	if name := strings.TrimSpace(resp.PushName); name != "" {
		return name, nil
	}
	return strings.TrimSpace(resp.Name), nil
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		payload, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encoding request: %w", op, err)
		}
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return fmt.Errorf("%s: building request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
		// Retries reuse the same key so the bridge can drop duplicate sends.
		req.Header.Set("Idempotency-Key", idempotencyKeyFrom(ctx))
	}
	if c.token != "" {
		req.Header.Set("X-Api-Key", c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Op: op, Status: resp.StatusCode, Body: string(bytes.TrimSpace(raw))}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decoding response: %w: %w", op, ErrTransport, err)
	}
	return nil
}
