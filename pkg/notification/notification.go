// Package notification fans staff alerts out to mail and Slack. A
// notification lists its channels in Via and implements the matching
// renderer for each:
//
//	func (a *LowStock) Via() []string                  { return []string{notification.ChannelSlack} }
//	func (a *LowStock) ToSlack() notification.SlackData { ... }
//
//	err := notification.Send(ctx, "ops@example.com", &LowStock{...})
package notification

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	khttp "github.com/shashiranjanraj/kashvi-shop/pkg/http"
	"github.com/shashiranjanraj/kashvi-shop/pkg/logger"
	"github.com/shashiranjanraj/kashvi-shop/pkg/mail"
)

const (
	ChannelMail  = "mail"
	ChannelSlack = "slack"

	slackTimeout  = 5 * time.Second
	slackAttempts = 3
	slackBackoff  = 200 * time.Millisecond
)

type Notification interface {
	Via() []string
}

// MailData is the mail rendering. To overrides the address passed to Send.
type MailData struct {
	To      string
	Subject string
	Text    string
}

type Mailable interface {
	ToMail() MailData
}

// SlackData is an incoming-webhook message. WebhookURL overrides the
// configured default.
type SlackData struct {
	WebhookURL  string
	Text        string
	Attachments []SlackAttachment
}

// SlackAttachment colors are "good", "warning" or "danger".
type SlackAttachment struct {
	Color  string `json:"color,omitempty"`
	Title  string `json:"title,omitempty"`
	Text   string `json:"text,omitempty"`
	Footer string `json:"footer,omitempty"`
}

type Slackable interface {
	ToSlack() SlackData
}

var (
	mu           sync.RWMutex
	slackWebhook string
)

// SetSlackWebhook sets the webhook used when SlackData names none.
func SetSlackWebhook(url string) {
	mu.Lock()
	defer mu.Unlock()
	slackWebhook = url
}

type deliver func(ctx context.Context, address string, n Notification) error

var channels = map[string]deliver{
	ChannelMail:  viaMail,
	ChannelSlack: viaSlack,
}

// Send tries every channel n asks for, even after one fails, and returns
// the failures joined.
func Send(ctx context.Context, address string, n Notification) error {
	var errs []error
	for _, name := range n.Via() {
		fn, ok := channels[name]
		if !ok {
			errs = append(errs, fmt.Errorf("notification: unknown channel %q", name))
			continue
		}
		if err := fn(ctx, address, n); err != nil {
			logger.WithCtx(ctx).Error("notification failed", "channel", name, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func viaMail(ctx context.Context, address string, n Notification) error {
	m, ok := n.(Mailable)
	if !ok {
		return fmt.Errorf("notification: %T cannot render mail", n)
	}
	d := m.ToMail()
	if d.To != "" {
		address = d.To
	}
	if address == "" {
		return errors.New("notification: no mail recipient")
	}
	return mail.To(address).Subject(d.Subject).Text(d.Text).Send(ctx)
}

func viaSlack(ctx context.Context, _ string, n Notification) error {
	s, ok := n.(Slackable)
	if !ok {
		return fmt.Errorf("notification: %T cannot render slack", n)
	}
	d := s.ToSlack()
	url := d.WebhookURL
	if url == "" {
		mu.RLock()
		url = slackWebhook
		mu.RUnlock()
	}
	if url == "" {
		return errors.New("notification: slack webhook not configured")
	}

	resp, err := khttp.Post(url).
		WithContext(ctx).
		Body(struct {
			Text        string            `json:"text,omitempty"`
			Attachments []SlackAttachment `json:"attachments,omitempty"`
		}{d.Text, d.Attachments}).
		Timeout(slackTimeout).
		Retry(slackAttempts, slackBackoff).
		Send()
	if err != nil {
		return fmt.Errorf("notification: slack: %w", err)
	}
	if !resp.OK() {
		return fmt.Errorf("notification: slack returned HTTP %d", resp.StatusCode)
	}
	return nil
}
