package lark

import (
	"context"
	"errors"
	"testing"
	"time"

	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okResp(id string) *larkim.CreateMessageResp {
	return &larkim.CreateMessageResp{Data: &larkim.CreateMessageRespData{MessageId: larkcore.StringPtr(id)}}
}

func codeResp(code int) *larkim.CreateMessageResp {
	return &larkim.CreateMessageResp{CodeError: larkcore.CodeError{Code: code, Msg: "nope"}}
}

type scripted struct {
	resps []*larkim.CreateMessageResp
	errs  []error
	calls int
	last  *larkim.CreateMessageReq
}

func (s *scripted) create(ctx context.Context, req *larkim.CreateMessageReq) (*larkim.CreateMessageResp, error) {
	i := s.calls
	s.calls++
	s.last = req
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	return s.resps[i], nil
}

func TestClient_SendsOnce(t *testing.T) {
	api := &scripted{resps: []*larkim.CreateMessageResp{okResp("om_1")}}
	c := newClient(api.create, Config{}, nil)

	id, err := c.SendMessage(context.Background(), ReceiveIDOpenID, "ou_1", "text", `{"text":"hi"}`)
	require.NoError(t, err)
	assert.Equal(t, "om_1", id)
	assert.Equal(t, 1, api.calls)
	assert.Equal(t, ReceiveIDOpenID, c.Config().ReceiveIDType)
}

func TestClient_RetriesRateLimitAndTransport(t *testing.T) {
	api := &scripted{
		errs:  []error{nil, errors.New("connection reset"), nil},
		resps: []*larkim.CreateMessageResp{codeResp(codeRateLimited), nil, okResp("om_3")},
	}
	c := newClient(api.create, Config{Backoff: time.Millisecond}, nil)

	id, err := c.SendMessage(context.Background(), ReceiveIDChatID, "oc_1", "text", `{}`)
	require.NoError(t, err)
	assert.Equal(t, "om_3", id)
	assert.Equal(t, 3, api.calls)
}

func TestClient_PermanentAPIErrorIsNotRetried(t *testing.T) {
	api := &scripted{resps: []*larkim.CreateMessageResp{codeResp(230001)}}
	c := newClient(api.create, Config{Backoff: time.Millisecond}, nil)

	_, err := c.SendMessage(context.Background(), ReceiveIDOpenID, "ou_1", "text", `{}`)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 230001, apiErr.Code)
	assert.Equal(t, 1, api.calls)
}

func TestClient_GivesUpAfterAttempts(t *testing.T) {
	boom := errors.New("timeout")
	api := &scripted{errs: []error{boom, boom}}
	c := newClient(api.create, Config{Attempts: 2, Backoff: time.Millisecond}, nil)

	_, err := c.SendMessage(context.Background(), ReceiveIDOpenID, "ou_1", "text", `{}`)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, api.calls)
}

func TestClient_StopsWaitingOnCancel(t *testing.T) {
	api := &scripted{errs: []error{errors.New("timeout")}}
	c := newClient(api.create, Config{Backoff: time.Hour}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.SendMessage(ctx, ReceiveIDOpenID, "ou_1", "text", `{}`)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, api.calls)
}
