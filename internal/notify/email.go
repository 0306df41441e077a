// Package notify delivers OTP codes and redemption notices by email and SMS/Zalo.
package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log"

	"gopkg.in/gomail.v2"

	"github.com/santajump/server/internal/config"
)

// ErrNoProviders is returned when a send is attempted with no provider configured
var ErrNoProviders = errors.New("no delivery providers configured")

// RedemptionNotice is the content of a redemption email
type RedemptionNotice struct {
	Item   string
	Code   string
	Points int
}

type sender interface {
	DialAndSend(m ...*gomail.Message) error
}

type smtpProvider struct {
	name   string
	from   string
	sender sender
}

// Mailer sends email through an ordered chain of SMTP providers, falling back to the
// next provider when one fails.
type Mailer struct {
	providers []smtpProvider
}

// NewMailer creates a mailer from the configured providers
func NewMailer(providers []config.SMTPProvider) *Mailer {
	m := &Mailer{}
	for _, p := range providers {
		name := p.Name
		if name == "" {
			name = p.Host
		}
		m.providers = append(m.providers, smtpProvider{
			name:   name,
			from:   p.From,
			sender: gomail.NewDialer(p.Host, p.Port, p.Username, p.Password),
		})
	}
	return m
}

// Send delivers an HTML email, trying each provider in order
func (m *Mailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	if len(m.providers) == 0 {
		return ErrNoProviders
	}
	var errs []error
	for _, p := range m.providers {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := gomail.NewMessage()
		msg.SetHeader("From", p.from)
		msg.SetHeader("To", to)
		msg.SetHeader("Subject", subject)
		msg.SetBody("text/html", htmlBody)

		err := p.sender.DialAndSend(msg)
		if err == nil {
			return nil
		}
		log.Printf("[notify][email] provider %s failed: %v", p.name, err)
		errs = append(errs, fmt.Errorf("%s: %w", p.name, err))
	}
	return fmt.Errorf("all email providers failed: %w", errors.Join(errs...))
}

// SendOTP emails a sign-in code
func (m *Mailer) SendOTP(ctx context.Context, to, code string) error {
	body := fmt.Sprintf(`
		<h2>Santa Jump</h2>
		<p>Your sign-in code is <strong>%s</strong>.</p>
		<p>The code expires in 5 minutes. If you did not request it, ignore this email.</p>
	`, html.EscapeString(code))
	return m.Send(ctx, to, "Your Santa Jump code", body)
}

// SendRedemption emails the code of a completed redemption
func (m *Mailer) SendRedemption(ctx context.Context, to string, n RedemptionNotice) error {
	body := fmt.Sprintf(`
		<h2>Santa Jump</h2>
		<p>You exchanged %d points for <strong>%s</strong>.</p>
		<p>Your code: <strong>%s</strong></p>
		<p>Keep this email, the code is shown only once.</p>
	`, n.Points, html.EscapeString(n.Item), html.EscapeString(n.Code))
	return m.Send(ctx, to, "Your Santa Jump reward", body)
}
