// Package notify emails the operators when an instrument goes down or comes back up.
package notify

import (
	"context"
	"dataweb-backend/internal/components/assert"
	"dataweb-backend/internal/components/telemetry"
	"dataweb-backend/internal/snapshot"
	"fmt"
	"net/smtp"
	"strings"
	"sync"
	"time"

	"github.com/jordan-wright/email"
	"golang.org/x/time/rate"
)

const (
	report_notifier_send = "notifier.send"
)

type SmtpConfig struct {
	Server       string   `json:"server"`
	Port         int      `json:"port"`
	EmailAddress string   `json:"email_address"`
	Password     string   `json:"password"`
	Recipients   []string `json:"recipients"`
}

func (c SmtpConfig) Enabled() bool {
	return c.Server != "" && len(c.Recipients) > 0
}

// Message is one transition notification.
type Message struct {
	Subject string
	Body    string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SmtpSender sends messages with github.com/jordan-wright/email.
type SmtpSender struct {
	config SmtpConfig
}

func NewSmtpSender(config SmtpConfig) SmtpSender {
	assert.NotEmptyStr(config.Server)
	return SmtpSender{config: config}
}

func (s SmtpSender) Send(_ context.Context, msg Message) error {
	mail := email.NewEmail()
	mail.From = fmt.Sprintf("Dataweb <%s>", s.config.EmailAddress)
	mail.To = s.config.Recipients
	mail.Subject = msg.Subject
	mail.Text = []byte(msg.Body)

	addr := fmt.Sprintf("%s:%d", s.config.Server, s.config.Port)
	err := mail.Send(addr, smtp.PlainAuth("", s.config.EmailAddress, s.config.Password, s.config.Server))
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = mail.Send(addr, nil)
	}
	return err
}

// Notifier tracks whether each instrument is up and sends a message when that changes. The
// first outcome seen for an instrument only sets its state.
type Notifier struct {
	sender  Sender
	limiter *rate.Limiter
	tel     telemetry.API

	mutex   sync.Mutex
	up      map[string]bool
	closed  bool
	sending sync.WaitGroup
}

// NewNotifier sends at most one message per interval, with bursts of up to burst messages.
// Messages over the limit are dropped.
func NewNotifier(sender Sender, interval time.Duration, burst int, tel telemetry.API) *Notifier {
	assert.NotNil(sender)
	assert.Positive("notification interval", interval)
	assert.NotNil(tel)

	return &Notifier{
		sender:  sender,
		limiter: rate.NewLimiter(rate.Every(interval), burst),
		tel:     telemetry.NewScopedAPI("notify", tel),
		up:      map[string]bool{},
	}
}

func (n *Notifier) Observe(ctx context.Context, name, host string, _ *snapshot.InstrumentSnapshot, err error) {
	up := err == nil

	n.mutex.Lock()
	previous, known := n.up[name]
	n.up[name] = up
	n.mutex.Unlock()

	if !known || previous == up {
		return
	}

	msg := Message{
		Subject: fmt.Sprintf("%s is back up", name),
		Body:    fmt.Sprintf("Dataweb is reading %s at %s again.", name, host),
	}
	if !up {
		msg = Message{
			Subject: fmt.Sprintf("%s has become unavailable", name),
			Body:    fmt.Sprintf("Dataweb could not read %s at %s: %v", name, host, err),
		}
	}

	if !n.limiter.Allow() {
		n.tel.ReportDebug(report_notifier_send, "rate limited", msg.Subject)
		return
	}

	n.mutex.Lock()
	defer n.mutex.Unlock()
	if n.closed {
		n.tel.ReportDebug(report_notifier_send, "closed", msg.Subject)
		return
	}
	n.sending.Add(1)
	go func() {
		defer n.sending.Done()
		err := n.sender.Send(context.WithoutCancel(ctx), msg)
		if err != nil {
			n.tel.ReportWarning(report_notifier_send, msg.Subject, err)
			return
		}
		n.tel.ReportDebug(report_notifier_send, msg.Subject)
	}()
}

// Close stops sending new messages and waits for the ones already being sent.
func (n *Notifier) Close() {
	n.mutex.Lock()
	n.closed = true
	n.mutex.Unlock()
	n.sending.Wait()
}
