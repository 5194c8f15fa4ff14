package notification_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shashiranjanraj/kashvi-shop/pkg/mail"
	"github.com/shashiranjanraj/kashvi-shop/pkg/notification"
)

type alert struct {
	via   []string
	hook  string
	title string
}

func (a alert) Via() []string { return a.via }

func (a alert) ToSlack() notification.SlackData {
	return notification.SlackData{
		WebhookURL:  a.hook,
		Text:        "low stock",
		Attachments: []notification.SlackAttachment{{Color: "warning", Title: a.title}},
	}
}

func (a alert) ToMail() notification.MailData {
	return notification.MailData{Subject: a.title, Text: "low stock"}
}

func TestSlackChannel(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := notification.Send(context.Background(), "", alert{via: []string{notification.ChannelSlack}, hook: srv.URL, title: "Cable"})
	require.NoError(t, err)
	assert.Equal(t, "low stock", got["text"])
}

func TestSlackFailureIsReported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := notification.Send(context.Background(), "", alert{via: []string{notification.ChannelSlack}, hook: srv.URL})
	assert.ErrorContains(t, err, "HTTP 502")
}

func TestEveryChannelIsAttempted(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hits++ }))
	defer srv.Close()

	err := notification.Send(context.Background(), "ops@example.com",
		alert{via: []string{notification.ChannelMail, notification.ChannelSlack, "pager"}, hook: srv.URL})
	require.Error(t, err)
	assert.ErrorIs(t, err, mail.ErrNotConfigured)
	assert.ErrorContains(t, err, `unknown channel "pager"`)
	assert.Equal(t, 1, hits)
}
