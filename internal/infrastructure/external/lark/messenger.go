package lark

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/retail-compliance/internal/domain/entity"
)

// MessageSender sends one IM message and returns its message id
type MessageSender interface {
	SendMessage(ctx context.Context, receiveIDType, receiveID, msgType, content string) (string, error)
}

// ErrNoAdminChat is returned for broadcasts when no admin chat is configured
var ErrNoAdminChat = errors.New("lark admin chat is not configured")

// Messenger delivers notifications as Lark text messages. It implements port.Notifier.
type Messenger struct {
	sender        MessageSender
	receiveIDType string
	adminChatID   string
	logger        *zap.Logger
}

// NewMessenger creates a messenger backed by the Lark IM API
func NewMessenger(client *Client, logger *zap.Logger) *Messenger {
	cfg := client.Config()
	return NewMessengerWithSender(client, cfg.ReceiveIDType, cfg.AdminChatID, logger)
}

// NewMessengerWithSender creates a messenger over an arbitrary sender
func NewMessengerWithSender(sender MessageSender, receiveIDType, adminChatID string, logger *zap.Logger) *Messenger {
	if receiveIDType == "" {
		receiveIDType = ReceiveIDOpenID
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Messenger{
		sender:        sender,
		receiveIDType: receiveIDType,
		adminChatID:   adminChatID,
		logger:        logger,
	}
}

// Send delivers n to its target, or to the admin chat for broadcasts
func (m *Messenger) Send(ctx context.Context, n entity.Notification) error {
	idType, receiveID := m.receiveIDType, n.Target
	if n.IsBroadcast() {
		if m.adminChatID == "" {
			return ErrNoAdminChat
		}
		idType, receiveID = ReceiveIDChatID, m.adminChatID
	}
	if receiveID == "" {
		return fmt.Errorf("notification target cannot be empty")
	}

	content, err := textContent(n)
	if err != nil {
		return err
	}

	if _, err := m.sender.SendMessage(ctx, idType, receiveID, "text", content); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	m.logger.Info("Notification delivered",
		zap.String("receive_id_type", idType),
		zap.String("receive_id", receiveID),
		zap.String("title", n.Title))
	return nil
}

// textContent renders n in the Lark text message format
func textContent(n entity.Notification) (string, error) {
	text := n.Body
	if n.Title != "" {
		text = n.Title + "\n" + n.Body
	}
	b, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return "", fmt.Errorf("failed to marshal message content: %w", err)
	}
	return string(b), nil
}
