package mail

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var relay = SMTP{Host: "localhost", Port: "25", Username: "u", From: "inventory@kshop.local", FromName: "Kashvi Shop"}

func TestMessageHeaders(t *testing.T) {
	m := To("ops@example.com", "lead@example.com").
		Via(relay).
		Subject("Low stock: Cable\r\nBcc: attacker@example.com").
		Text("2 left")
	m.now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }

	head, body, ok := strings.Cut(string(m.bytes()), "\r\n\r\n")
	assert.True(t, ok)
	assert.Equal(t, "2 left", body)
	assert.Contains(t, head, "From: Kashvi Shop <inventory@kshop.local>\r\n")
	assert.Contains(t, head, "To: ops@example.com, lead@example.com\r\n")
	assert.Contains(t, head, "Date: Sun, 01 Mar 2026 09:00:00 +0000\r\n")
	assert.Contains(t, head, "@kshop.local>\r\n")
	assert.Contains(t, head, "Content-Type: text/plain")
	assert.NotContains(t, head, "\r\nBcc:")
}

func TestHTMLBody(t *testing.T) {
	raw := string(To("a@example.com").Via(relay).HTML("<b>hi</b>").bytes())
	assert.Contains(t, raw, "Content-Type: text/html")
}

func TestSendChecksSettingsFirst(t *testing.T) {
	noUser := relay
	noUser.Username = ""
	assert.ErrorIs(t, To("ops@example.com").Via(noUser).Text("x").Send(context.Background()), ErrNotConfigured)
	assert.ErrorIs(t, To().Via(relay).Send(context.Background()), ErrNoRecipients)
}

func TestSendHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := To("ops@example.com").Via(SMTP{Host: "127.0.0.1", Port: "1", Username: "u", From: "x@y.z"}).Text("x").Send(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
