// Package telegram is a minimal Bot API client for the assistant: long-poll
// update delivery, text messages, and inline keyboard menus. It speaks the
// HTTP API directly with typed request and response structs.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aelkhatib/anatomica/common/retry"
	"github.com/aelkhatib/anatomica/internal/anatomica/menu"
)

// DefaultBaseURL is the production Bot API endpoint.
const DefaultBaseURL = "https://api.telegram.org"

// Config holds the Bot API connection parameters.
type Config struct {
	// BaseURL overrides the API endpoint, mainly for tests. Empty means
	// DefaultBaseURL.
	BaseURL string
	// Token is the bot token from BotFather.
	Token string
	// PollTimeout is the getUpdates long-poll window. Zero means 30s.
	PollTimeout time.Duration
	// HTTPClient overrides the HTTP client. Nil means a client whose
	// timeout accommodates the long-poll window.
	HTTPClient *http.Client
}

// UpdateHandler is called for each update received from the poll loop.
type UpdateHandler func(ctx context.Context, upd Update)

// Client is the bot-side Bot API client.
type Client struct {
	http        *http.Client
	baseURL     string
	token       string
	pollTimeout time.Duration
	stopCh      chan struct{}
}

// New creates a Client but does not start polling yet.
func New(cfg *Config) (*Client, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram: missing bot token")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	pollTimeout := cfg.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = 30 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: pollTimeout + 30*time.Second}
	}
	return &Client{
		http:        httpClient,
		baseURL:     strings.TrimRight(baseURL, "/"),
		token:       cfg.Token,
		pollTimeout: pollTimeout,
		stopCh:      make(chan struct{}),
	}, nil
}

// Start verifies the token with getMe and begins the poll loop, calling
// handler for every update received. The loop reconnects with exponential
// back-off on errors and runs until Stop or context cancellation.
func (c *Client) Start(ctx context.Context, handler UpdateHandler) error {
	var me User
	err := retry.Do(ctx, retry.DefaultConfig, func() error {
		return c.call(ctx, "getMe", nil, &me)
	})
	if err != nil {
		return fmt.Errorf("verify bot token: %w", err)
	}
	slog.Info("connected to telegram", "bot_id", me.ID, "username", me.Username)

	go func() {
		const backoffMax = 5 * time.Minute
		backoff := 2 * time.Second
		var offset int64
		for {
			select {
			case <-c.stopCh:
				return
			case <-ctx.Done():
				return
			default:
			}
			updates, next, err := c.getUpdates(ctx, offset)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Error("telegram poll error; reconnecting", "err", err, "backoff", backoff)
				select {
				case <-c.stopCh:
					return
				case <-ctx.Done():
					return
				case <-time.After(backoff):
				}
				backoff *= 2
				if backoff > backoffMax {
					backoff = backoffMax
				}
				continue
			}
			backoff = 2 * time.Second
			offset = next
			for _, upd := range updates {
				handler(ctx, upd)
			}
		}
	}()
	return nil
}

// Stop halts the poll loop.
func (c *Client) Stop() {
	close(c.stopCh)
}

// SendText sends a plain text message and returns its message id.
func (c *Client) SendText(ctx context.Context, chatID int64, text string) (int64, error) {
	var msg Message
	err := c.call(ctx, "sendMessage", sendMessageRequest{ChatID: chatID, Text: text}, &msg)
	if err != nil {
		return 0, err
	}
	return msg.MessageID, nil
}

// SendMenu sends a new message carrying the menu as an inline keyboard and
// returns its message id.
func (c *Client) SendMenu(ctx context.Context, chatID int64, payload menu.Payload) (int64, error) {
	var msg Message
	err := c.call(ctx, "sendMessage", sendMessageRequest{
		ChatID:      chatID,
		Text:        payload.Text,
		ReplyMarkup: keyboard(payload),
	}, &msg)
	if err != nil {
		return 0, err
	}
	return msg.MessageID, nil
}

// EditMenu replaces the text and keyboard of an existing menu message in
// place, so drilling through levels reuses one message.
func (c *Client) EditMenu(ctx context.Context, chatID, messageID int64, payload menu.Payload) error {
	return c.call(ctx, "editMessageText", editMessageTextRequest{
		ChatID:      chatID,
		MessageID:   messageID,
		Text:        payload.Text,
		ReplyMarkup: keyboard(payload),
	}, nil)
}

// DeleteMessage removes a previously sent message.
func (c *Client) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	return c.call(ctx, "deleteMessage", deleteMessageRequest{ChatID: chatID, MessageID: messageID}, nil)
}

// AnswerCallback acknowledges a button press so the client stops showing a
// progress indicator.
func (c *Client) AnswerCallback(ctx context.Context, callbackID string) error {
	return c.call(ctx, "answerCallbackQuery", answerCallbackQueryRequest{CallbackQueryID: callbackID}, nil)
}

// keyboard translates a menu payload into an inline keyboard, one button
// per row so long French labels stay readable.
func keyboard(payload menu.Payload) *InlineKeyboardMarkup {
	if len(payload.Choices) == 0 {
		return nil
	}
	rows := make([][]InlineKeyboardButton, 0, len(payload.Choices))
	for _, choice := range payload.Choices {
		rows = append(rows, []InlineKeyboardButton{{
			Text:         choice.Label,
			CallbackData: choice.Token,
		}})
	}
	return &InlineKeyboardMarkup{InlineKeyboard: rows}
}

type getUpdatesRequest struct {
	Offset  int64 `json:"offset,omitempty"`
	Timeout int   `json:"timeout"`
}

// getUpdates long-polls for new updates and returns them with the next
// offset to acknowledge.
func (c *Client) getUpdates(ctx context.Context, offset int64) ([]Update, int64, error) {
	secs := int(c.pollTimeout.Seconds())
	if secs < 1 {
		secs = 1
	}
	reqCtx, cancel := context.WithTimeout(ctx, c.pollTimeout+5*time.Second)
	defer cancel()

	var updates []Update
	err := c.call(reqCtx, "getUpdates", getUpdatesRequest{Offset: offset, Timeout: secs}, &updates)
	if err != nil {
		return nil, offset, err
	}
	next := offset
	for _, u := range updates {
		if u.UpdateID >= next {
			next = u.UpdateID + 1
		}
	}
	return updates, next, nil
}

// call performs one Bot API method: POST the JSON body, check the envelope,
// and decode the result into out when out is non-nil.
func (c *Client) call(ctx context.Context, method string, body, out any) error {
	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)

	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("telegram %s: encode request: %w", method, err)
		}
		payload = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, payload)
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram %s: http %d: %s", method, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var envelope apiResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("telegram %s: decode response: %w", method, err)
	}
	if !envelope.OK {
		return fmt.Errorf("telegram %s: %s", method, envelope.Description)
	}
	if out != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("telegram %s: decode result: %w", method, err)
		}
	}
	return nil
}
