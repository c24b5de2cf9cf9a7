package lark

import (
	"context"
	"errors"
	"fmt"
	"time"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"go.uber.org/zap"
)

// Receive id types accepted by the IM API
const (
	ReceiveIDOpenID = "open_id"
	ReceiveIDUserID = "user_id"
	ReceiveIDChatID = "chat_id"
)

// codeRateLimited is the IM API's "request too frequent" code
const codeRateLimited = 99991400

// APIError is a non-success response from the IM API
type APIError struct {
	Code int
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("lark API error: code=%d, msg=%s", e.Code, e.Msg)
}

// Retryable reports whether the same request may succeed later
func (e *APIError) Retryable() bool {
	return e.Code == codeRateLimited
}

type Config struct {
	AppID     string
	AppSecret string
	// AdminChatID receives broadcast notifications
	AdminChatID string
	// ReceiveIDType is how entity notify ids are interpreted. Defaults to open_id.
	ReceiveIDType string
	// Attempts is the number of tries per message. Defaults to 3.
	Attempts int
	// Backoff is the wait before the second attempt; it doubles per retry. Defaults to 500ms.
	Backoff time.Duration
}

func (c Config) withDefaults() Config {
	if c.ReceiveIDType == "" {
		c.ReceiveIDType = ReceiveIDOpenID
	}
	if c.Attempts <= 0 {
		c.Attempts = 3
	}
	if c.Backoff <= 0 {
		c.Backoff = 500 * time.Millisecond
	}
	return c
}

type createFunc func(ctx context.Context, req *larkim.CreateMessageReq) (*larkim.CreateMessageResp, error)

// Client sends IM messages, retrying transport failures and rate limiting. It implements MessageSender.
type Client struct {
	create createFunc
	cfg    Config
	logger *zap.Logger
}

// NewClient builds a client over the Lark SDK with tenant token caching
func NewClient(cfg Config, logger *zap.Logger) *Client {
	sdk := lark.NewClient(cfg.AppID, cfg.AppSecret,
		lark.WithLogLevel(larkcore.LogLevelWarn),
		lark.WithEnableTokenCache(true),
	)
	return newClient(func(ctx context.Context, req *larkim.CreateMessageReq) (*larkim.CreateMessageResp, error) {
		return sdk.Im.Message.Create(ctx, req)
	}, cfg, logger)
}

func newClient(create createFunc, cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{create: create, cfg: cfg.withDefaults(), logger: logger}
}

// Config returns the configuration with defaults applied
func (c *Client) Config() Config {
	return c.cfg
}

// SendMessage creates one message and returns its message id
func (c *Client) SendMessage(ctx context.Context, receiveIDType, receiveID, msgType, content string) (string, error) {
	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(receiveIDType).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(receiveID).
			MsgType(msgType).
			Content(content).
			Build()).
		Build()

	wait := c.cfg.Backoff
	var lastErr error
	for attempt := 1; attempt <= c.cfg.Attempts; attempt++ {
		id, err := c.once(ctx, req)
		if err == nil {
			return id, nil
		}
		lastErr = err

		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Retryable() {
			break
		}
		if attempt == c.cfg.Attempts {
			break
		}
		c.logger.Warn("Lark send failed, retrying",
			zap.String("receive_id", receiveID),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("send to %s: %w", receiveID, ctx.Err())
		case <-time.After(wait):
		}
		wait *= 2
	}

	c.logger.Error("Failed to send message",
		zap.String("receive_id", receiveID),
		zap.Error(lastErr))
	return "", fmt.Errorf("send to %s: %w", receiveID, lastErr)
}

func (c *Client) once(ctx context.Context, req *larkim.CreateMessageReq) (string, error) {
	resp, err := c.create(ctx, req)
	if err != nil {
		return "", err
	}
	if !resp.Success() {
		return "", &APIError{Code: resp.Code, Msg: resp.Msg}
	}
	if resp.Data == nil || resp.Data.MessageId == nil {
		return "", nil
	}
	return *resp.Data.MessageId, nil
}
