package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	defaultAPIBaseURL = "https://api.telegram.org"

	// callTimeout bounds ordinary API calls. Long polls get their own
	// deadline derived from the poll timeout.
	callTimeout = 15 * time.Second

	// The Bot API allows roughly 30 messages per second across all chats.
	defaultRatePerSecond = 25
	defaultBurst         = 5
)

// ParseModeMarkdown enables Markdown formatting on outbound text.
const ParseModeMarkdown = "Markdown"

// APIError is a Bot API level failure (ok=false in the response envelope).
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram: %s: api error %d: %s", e.Method, e.Code, e.Description)
}

// Client talks to the Telegram Bot API. Outbound calls share a rate
// limiter so bursts of replies stay under the platform send limits.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient builds a client for the given bot token. An empty baseURL selects
// the hosted Bot API; set it to reach a self-hosted Bot API server.
func NewClient(token, baseURL string) (*Client, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("telegram: bot token is required")
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultAPIBaseURL
	}
	return &Client{
		token:      token,
		baseURL:    baseURL,
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(rate.Limit(defaultRatePerSecond), defaultBurst),
	}, nil
}

type apiEnvelope struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
}

func (c *Client) call(ctx context.Context, method string, payload interface{}, out interface{}) error {
	if c == nil {
		return fmt.Errorf("telegram: client is nil")
	}
	if errWait := c.limiter.Wait(ctx); errWait != nil {
		return fmt.Errorf("telegram: %s: wait for send slot: %w", method, errWait)
	}

	body, errMarshal := json.Marshal(payload)
	if errMarshal != nil {
		return fmt.Errorf("telegram: %s: encode request: %w", method, errMarshal)
	}

	url := c.baseURL + "/bot" + c.token + "/" + method
	req, errRequest := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if errRequest != nil {
		return fmt.Errorf("telegram: %s: build request: %w", method, errRequest)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, errDo := c.httpClient.Do(req)
	if errDo != nil {
		return fmt.Errorf("telegram: %s: send request: %w", method, errDo)
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.WithError(errClose).Warn("telegram: failed to close response body")
		}
	}()

	data, errRead := io.ReadAll(resp.Body)
	if errRead != nil {
		return fmt.Errorf("telegram: %s: read response: %w", method, errRead)
	}

	var envelope apiEnvelope
	if errUnmarshal := json.Unmarshal(data, &envelope); errUnmarshal != nil {
		return fmt.Errorf("telegram: %s: decode response: %w", method, errUnmarshal)
	}
	if !envelope.OK {
		return &APIError{Method: method, Code: envelope.ErrorCode, Description: envelope.Description}
	}
	if out != nil {
		if errUnmarshal := json.Unmarshal(envelope.Result, out); errUnmarshal != nil {
			return fmt.Errorf("telegram: %s: decode result: %w", method, errUnmarshal)
		}
	}
	return nil
}

// GetMe fetches the bot's own account, typically as a startup probe.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	var me User
	if errCall := c.call(callCtx, "getMe", struct{}{}, &me); errCall != nil {
		return nil, errCall
	}
	return &me, nil
}

type sendMessageRequest struct {
	ChatID    int64  `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

// SendMessage posts a text message to a chat. An empty parseMode sends
// plain text.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text, parseMode string) (*Message, error) {
	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	var sent Message
	payload := sendMessageRequest{ChatID: chatID, Text: text, ParseMode: parseMode}
	if errCall := c.call(callCtx, "sendMessage", payload, &sent); errCall != nil {
		return nil, errCall
	}
	return &sent, nil
}

type sendPhotoRequest struct {
	ChatID    int64  `json:"chat_id"`
	Photo     string `json:"photo"`
	Caption   string `json:"caption,omitempty"`
	ParseMode string `json:"parse_mode,omitempty"`
}

// SendPhoto posts a photo by URL with an optional caption.
func (c *Client) SendPhoto(ctx context.Context, chatID int64, photoURL, caption, parseMode string) (*Message, error) {
	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	var sent Message
	payload := sendPhotoRequest{ChatID: chatID, Photo: photoURL, Caption: caption, ParseMode: parseMode}
	if errCall := c.call(callCtx, "sendPhoto", payload, &sent); errCall != nil {
		return nil, errCall
	}
	return &sent, nil
}

type setWebhookRequest struct {
	URL            string   `json:"url"`
	SecretToken    string   `json:"secret_token,omitempty"`
	AllowedUpdates []string `json:"allowed_updates,omitempty"`
}

// SetWebhook registers the public webhook URL. The secret token is echoed
// back by Telegram on every delivery and checked by the verifier.
func (c *Client) SetWebhook(ctx context.Context, url, secretToken string) error {
	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	payload := setWebhookRequest{
		URL:            url,
		SecretToken:    secretToken,
		AllowedUpdates: []string{"message"},
	}
	return c.call(callCtx, "setWebhook", payload, nil)
}

type deleteWebhookRequest struct {
	DropPendingUpdates bool `json:"drop_pending_updates"`
}

// DeleteWebhook unregisters the webhook so long polling can take over.
func (c *Client) DeleteWebhook(ctx context.Context) error {
	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	return c.call(callCtx, "deleteWebhook", deleteWebhookRequest{}, nil)
}

type getUpdatesRequest struct {
	Offset         int64    `json:"offset,omitempty"`
	Timeout        int      `json:"timeout"`
	AllowedUpdates []string `json:"allowed_updates,omitempty"`
}

// GetUpdates long-polls for pending updates. Results stay raw so the
// intake pipeline sees the same opaque payload a webhook delivery carries.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeoutSeconds int) ([]json.RawMessage, error) {
	if timeoutSeconds < 0 {
		timeoutSeconds = 0
	}
	callCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutSeconds)*time.Second+callTimeout)
	defer cancel()

	var updates []json.RawMessage
	payload := getUpdatesRequest{
		Offset:         offset,
		Timeout:        timeoutSeconds,
		AllowedUpdates: []string{"message"},
	}
	if errCall := c.call(callCtx, "getUpdates", payload, &updates); errCall != nil {
		return nil, errCall
	}
	return updates, nil
}
