// Package mail delivers staff alerts over SMTP.
//
//	err := mail.To("ops@example.com").
//	    Subject("Low stock: Galaxy S24").
//	    Text("2 units left").
//	    Send(ctx)
//
// Port 465 is implicit TLS. On other ports STARTTLS is used whenever the
// server offers it.
package mail

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/shashiranjanraj/kashvi-shop/config"
)

var (
	ErrNotConfigured = errors.New("mail: MAIL_USERNAME not configured")
	ErrNoRecipients  = errors.New("mail: no recipients")
)

const dialTimeout = 10 * time.Second

// SMTP is the relay a message goes through. The zero value is not usable;
// Settings reads it from MAIL_* config.
type SMTP struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

func Settings() SMTP {
	return SMTP{
		Host:     config.Get("MAIL_HOST", "smtp.mailtrap.io"),
		Port:     config.Get("MAIL_PORT", "587"),
		Username: config.Get("MAIL_USERNAME", ""),
		Password: config.Get("MAIL_PASSWORD", ""),
		From:     config.Get("MAIL_FROM", "inventory@kshop.local"),
		FromName: config.Get("MAIL_FROM_NAME", "Kashvi Shop"),
	}
}

func (s SMTP) sender() string {
	if s.FromName == "" {
		return s.From
	}
	return fmt.Sprintf("%s <%s>", header(s.FromName), s.From)
}

type Message struct {
	relay   SMTP
	to      []string
	subject string
	body    string
	html    bool
	now     func() time.Time
}

func To(addresses ...string) *Message {
	return &Message{relay: Settings(), to: addresses, now: time.Now}
}

func (m *Message) Subject(s string) *Message {
	m.subject = s
	return m
}

func (m *Message) Text(body string) *Message {
	m.body, m.html = body, false
	return m
}

func (m *Message) HTML(body string) *Message {
	m.body, m.html = body, true
	return m
}

// Via sends through relay instead of the configured one.
func (m *Message) Via(relay SMTP) *Message {
	m.relay = relay
	return m
}

// Send delivers the message. ctx bounds the dial and the whole exchange.
func (m *Message) Send(ctx context.Context) error {
	if m.relay.Username == "" {
		return ErrNotConfigured
	}
	if len(m.to) == 0 {
		return ErrNoRecipients
	}

	conn, err := m.dial(ctx)
	if err != nil {
		return fmt.Errorf("mail: dial %s: %w", m.relay.Host, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	client, err := smtp.NewClient(conn, m.relay.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("mail: %w", err)
	}
	defer client.Close()

	if err := m.deliver(client); err != nil {
		return fmt.Errorf("mail: %w", err)
	}
	return client.Quit()
}

func (m *Message) dial(ctx context.Context) (net.Conn, error) {
	addr := net.JoinHostPort(m.relay.Host, m.relay.Port)
	d := &net.Dialer{Timeout: dialTimeout}
	if m.relay.Port == "465" {
		td := &tls.Dialer{NetDialer: d, Config: &tls.Config{ServerName: m.relay.Host}}
		return td.DialContext(ctx, "tcp", addr)
	}
	return d.DialContext(ctx, "tcp", addr)
}

func (m *Message) deliver(c *smtp.Client) error {
	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: m.relay.Host}); err != nil {
			return err
		}
	}
	if err := c.Auth(smtp.PlainAuth("", m.relay.Username, m.relay.Password, m.relay.Host)); err != nil {
		return err
	}
	if err := c.Mail(m.relay.From); err != nil {
		return err
	}
	for _, rcpt := range m.to {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("rcpt %s: %w", rcpt, err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(m.bytes()); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// bytes renders the RFC 5322 message.
func (m *Message) bytes() []byte {
	kind := "plain"
	if m.html {
		kind = "html"
	}
	var b strings.Builder
	for _, h := range [][2]string{
		{"From", m.relay.sender()},
		{"To", strings.Join(m.to, ", ")},
		{"Subject", header(m.subject)},
		{"Date", m.now().Format(time.RFC1123Z)},
		{"Message-ID", messageID(m.relay.From)},
		{"MIME-Version", "1.0"},
		{"Content-Type", "text/" + kind + `; charset="UTF-8"`},
	} {
		b.WriteString(h[0] + ": " + h[1] + "\r\n")
	}
	b.WriteString("\r\n")
	b.WriteString(m.body)
	return []byte(b.String())
}

// header flattens line breaks so product names cannot add headers.
func header(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}

func messageID(from string) string {
	var buf [12]byte
	_, _ = rand.Read(buf[:])
	_, domain, ok := strings.Cut(from, "@")
	if !ok {
		domain = "kshop.local"
	}
	return "<" + hex.EncodeToString(buf[:]) + "@" + domain + ">"
}
