// Package collab implements the Uploader and Mailer collaborators:
// the daemon's only outward-facing network calls, kept behind the
// interfaces declared in internal/tasks so the task bodies that use them
// never know the concrete transport.
package collab

import (
	"context"
	"fmt"
	"net/smtp"
	"os/user"
	"strings"
)

// SMTPMailer sends mail over SMTP: a plain connect/send/quit per
// message, with an apparent From address derived from the configured
// user (or OS username) and host when none is given.
type SMTPMailer struct {
	Host     string
	Port     int
	Auth     bool
	User     string
	Password string
	FromAddr string
}

// NewSMTPMailer applies the From-address defaulting rule: explicit
// FromAddr wins; otherwise User (if it looks like an email) or the OS
// username, joined to Host.
func NewSMTPMailer(host string, port int, auth bool, smtpUser, password, fromAddr string) *SMTPMailer {
	m := &SMTPMailer{Host: host, Port: port, Auth: auth, User: smtpUser, Password: password, FromAddr: fromAddr}
	if m.Host == "" {
		m.Host = "localhost"
	}
	if m.Port == 0 {
		m.Port = 25
	}
	if m.FromAddr == "" {
		name := smtpUser
		if name == "" {
			if u, err := user.Current(); err == nil {
				name = u.Username
			}
		}
		if strings.Contains(name, "@") {
			m.FromAddr = name
		} else {
			m.FromAddr = name + "@" + m.Host
		}
	}
	return m
}

// Send implements tasks.Mailer.
func (m *SMTPMailer) Send(ctx context.Context, to []string, subject, body string, html bool) error {
	if len(to) == 0 {
		return fmt.Errorf("mailer: no recipients")
	}
	addr := fmt.Sprintf("%s:%d", m.Host, m.Port)

	var auth smtp.Auth
	if m.Auth {
		auth = smtp.PlainAuth("", m.User, m.Password, m.Host)
	}

	contentType := "text/plain; charset=utf-8"
	if html {
		contentType = "text/html; charset=utf-8"
	}
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: %s\r\n\r\n%s",
		m.FromAddr, strings.Join(to, ", "), subject, contentType, body)

	return smtp.SendMail(addr, auth, m.FromAddr, to, []byte(msg))
}

// NoopMailer sends nothing. The CLI selects it when no mailer host or
// credentials are configured, or when mailer.skip is set.
type NoopMailer struct{}

func (NoopMailer) Send(ctx context.Context, to []string, subject, body string, html bool) error {
	return nil
}
