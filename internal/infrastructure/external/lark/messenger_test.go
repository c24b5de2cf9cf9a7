package lark

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/retail-compliance/internal/domain/entity"
)

type sentMessage struct {
	idType, receiveID, msgType, content string
}

type mockSender struct {
	sent []sentMessage
	err  error
}

func (m *mockSender) SendMessage(ctx context.Context, receiveIDType, receiveID, msgType, content string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.sent = append(m.sent, sentMessage{receiveIDType, receiveID, msgType, content})
	return "om_1", nil
}

func TestMessenger_SendToEntity(t *testing.T) {
	sender := &mockSender{}
	m := NewMessengerWithSender(sender, "", "oc_admin", nil)

	err := m.Send(context.Background(), entity.Notification{
		Target: "ou_shop1",
		Title:  "Missed obligation",
		Body:   `shift report "morning" was not submitted`,
	})
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)

	msg := sender.sent[0]
	assert.Equal(t, ReceiveIDOpenID, msg.idType)
	assert.Equal(t, "ou_shop1", msg.receiveID)
	assert.Equal(t, "text", msg.msgType)

	var body map[string]string
	require.NoError(t, json.Unmarshal([]byte(msg.content), &body))
	assert.Equal(t, "Missed obligation\nshift report \"morning\" was not submitted", body["text"])
}

func TestMessenger_BroadcastGoesToAdminChat(t *testing.T) {
	sender := &mockSender{}
	m := NewMessengerWithSender(sender, ReceiveIDUserID, "oc_admin", nil)

	require.NoError(t, m.Send(context.Background(), entity.Notification{Target: entity.BroadcastTarget, Body: "x"}))
	assert.Equal(t, ReceiveIDChatID, sender.sent[0].idType)
	assert.Equal(t, "oc_admin", sender.sent[0].receiveID)
}

func TestMessenger_Errors(t *testing.T) {
	t.Run("broadcast without admin chat", func(t *testing.T) {
		m := NewMessengerWithSender(&mockSender{}, "", "", nil)
		err := m.Send(context.Background(), entity.Notification{Target: entity.BroadcastTarget, Body: "x"})
		assert.ErrorIs(t, err, ErrNoAdminChat)
	})

	t.Run("empty target", func(t *testing.T) {
		m := NewMessengerWithSender(&mockSender{}, "", "oc_admin", nil)
		assert.Error(t, m.Send(context.Background(), entity.Notification{Body: "x"}))
	})

	t.Run("api failure", func(t *testing.T) {
		apiErr := errors.New("API error: code=230002")
		m := NewMessengerWithSender(&mockSender{err: apiErr}, "", "oc_admin", nil)
		err := m.Send(context.Background(), entity.Notification{Target: "ou_1", Body: "x"})
		assert.ErrorIs(t, err, apiErr)
	})
}
