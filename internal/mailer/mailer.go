package mailer

import (
	"context"
	"time"

	"golang.org/x/time/rate"
	"gopkg.in/gomail.v2"
)

// Result is the only thing a send can produce. Transport and protocol
// failures never escape this package as errors; the runner records them.
type Result struct {
	Success      bool
	ErrorMessage string
}

// Dialer is satisfied by *gomail.Dialer; tests substitute a fake.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

type Config struct {
	Host        string
	Port        int
	Username    string
	Password    string
	SenderEmail string
	SenderName  string
	// SendPause is the fixed delay enforced between consecutive messages
	// toward the relay, independent of any hourly quota.
	SendPause time.Duration
}

type Mailer struct {
	dialer  Dialer
	from    string
	name    string
	limiter *rate.Limiter
}

func New(cfg Config) *Mailer {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	return NewWithDialer(d, cfg.SenderEmail, cfg.SenderName, cfg.SendPause)
}

func NewWithDialer(d Dialer, senderEmail, senderName string, pause time.Duration) *Mailer {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if pause > 0 {
		limiter = rate.NewLimiter(rate.Every(pause), 1)
	}
	return &Mailer{
		dialer:  d,
		from:    senderEmail,
		name:    senderName,
		limiter: limiter,
	}
}

// Send pushes one message to the relay and classifies the outcome. The
// plain-text body is escaped and wrapped in the fixed HTML shell before
// submission.
func (m *Mailer) Send(ctx context.Context, to, subject, body string) Result {
	if err := m.limiter.Wait(ctx); err != nil {
		return Result{ErrorMessage: err.Error()}
	}

	html, err := RenderBody(m.name, body)
	if err != nil {
		return Result{ErrorMessage: err.Error()}
	}

	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", m.from, m.name)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", html)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return Result{ErrorMessage: err.Error()}
	}
	return Result{Success: true}
}
