package notify

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strconv"
	"time"

	"idx_portal/identity"
	"idx_portal/models"
)

type SMTPConfig struct {
	Host      string
	Port      int
	User      string
	Password  string
	FromEmail string
	FromName  string
}

// Archiver stores a copy of sent digests
type Archiver interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
}

// SendFunc matches smtp.SendMail
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPNotifier delivers digests and reminders over SMTP
type SMTPNotifier struct {
	cfg           SMTPConfig
	renderer      *Renderer
	archive       Archiver
	archivePrefix string
	send          SendFunc
	now           func() time.Time
}

func NewSMTPNotifier(cfg SMTPConfig, renderer *Renderer) *SMTPNotifier {
	return &SMTPNotifier{cfg: cfg, renderer: renderer, send: smtp.SendMail, now: time.Now}
}

// SetArchive enables archiving client digests under prefix
func (n *SMTPNotifier) SetArchive(a Archiver, prefix string) {
	n.archive = a
	n.archivePrefix = prefix
}

// SetSendFunc replaces the SMTP transport
func (n *SMTPNotifier) SetSendFunc(fn SendFunc) {
	if fn != nil {
		n.send = fn
	}
}

func (n *SMTPNotifier) SendClientDigest(ctx context.Context, client *models.Client, search *models.SavedSearch, listings []models.Listing) error {
	msg, err := n.renderer.ClientDigest(client, search, listings)
	if err != nil {
		return err
	}
	if err := n.deliver(ctx, client.Email, msg); err != nil {
		return err
	}
	slog.Info("sent client digest", "to", client.Email, "search_id", search.ID, "listings", len(listings))

	if n.archive != nil {
		key := identity.ArchiveKey(n.archivePrefix, search.ID, identity.DigestKey(search.ID, models.MLSNumbers(listings)))
		if err := n.archive.Put(ctx, key, []byte(msg.HTML), "text/html; charset=utf-8"); err != nil {
			slog.Warn("archive digest failed", "search_id", search.ID, "key", key, "error", err)
		}
	}
	return nil
}

func (n *SMTPNotifier) SendAdminShadowDigest(ctx context.Context, adminAddress string, client *models.Client, search *models.SavedSearch, listings []models.Listing) error {
	msg, err := n.renderer.ShadowDigest(client, search, listings)
	if err != nil {
		return err
	}
	if err := n.deliver(ctx, adminAddress, msg); err != nil {
		return err
	}
	slog.Info("sent shadow digest", "client", client.Email, "search_id", search.ID)
	return nil
}

func (n *SMTPNotifier) SendExpiryReminder(ctx context.Context, client *models.Client, daysLeft int) error {
	msg, err := n.renderer.ExpiryReminder(client, daysLeft)
	if err != nil {
		return err
	}
	if err := n.deliver(ctx, client.Email, msg); err != nil {
		return err
	}
	slog.Info("sent expiry reminder", "to", client.Email, "days_left", daysLeft)
	return nil
}

func (n *SMTPNotifier) deliver(ctx context.Context, to string, msg *Message) error {
	if to == "" {
		return fmt.Errorf("no recipient address")
	}
	raw, err := n.compose(to, msg)
	if err != nil {
		return err
	}

	var auth smtp.Auth
	if n.cfg.User != "" {
		auth = smtp.PlainAuth("", n.cfg.User, n.cfg.Password, n.cfg.Host)
	}
	addr := n.cfg.Host + ":" + strconv.Itoa(n.cfg.Port)

	// net/smtp has no context support; run it aside so a stuck server cannot hold the caller
	done := make(chan error, 1)
	go func() {
		done <- n.send(addr, auth, n.cfg.FromEmail, []string{to}, raw)
	}()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send to %s: %w", to, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("smtp send to %s: %w", to, ctx.Err())
	}
}

// compose builds a multipart/alternative message with text and HTML parts
func (n *SMTPNotifier) compose(to string, msg *Message) ([]byte, error) {
	var buf bytes.Buffer
	from := mail.Address{Name: n.cfg.FromName, Address: n.cfg.FromEmail}

	mw := multipart.NewWriter(&buf)
	headers := [][2]string{
		{"From", from.String()},
		{"To", to},
		{"Subject", mime.QEncoding.Encode("utf-8", msg.Subject)},
		{"Date", n.now().Format(time.RFC1123Z)},
		{"MIME-Version", "1.0"},
		{"Content-Type", "multipart/alternative; boundary=" + mw.Boundary()},
	}
	for _, h := range headers {
		fmt.Fprintf(&buf, "%s: %s\r\n", h[0], h[1])
	}
	buf.WriteString("\r\n")

	for _, part := range []struct{ ctype, body string }{
		{"text/plain; charset=utf-8", msg.Text},
		{"text/html; charset=utf-8", msg.HTML},
	} {
		w, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {part.ctype},
			"Content-Transfer-Encoding": {"8bit"},
		})
		if err != nil {
			return nil, err
		}
		if _, err := w.Write([]byte(part.body)); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
