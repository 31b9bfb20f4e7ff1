// Package email envía los mails transaccionales de authd (reset de password)
// vía SMTP. Sin SMTP configurado, el link se loguea en vez de enviarse.
package email

import (
	"fmt"

	"github.com/dropDatabas3/littlejohn/internal/observability/logger"
	gomail "github.com/go-mail/mail"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type Mailer struct {
	cfg       SMTPConfig
	echoLinks bool
}

// New crea el mailer. Con Host vacío queda en modo echo: los links van al log.
func New(cfg SMTPConfig, echoLinks bool) *Mailer {
	return &Mailer{cfg: cfg, echoLinks: echoLinks || cfg.Host == ""}
}

// SendPasswordReset manda el link de reset a la dirección dada.
func (m *Mailer) SendPasswordReset(to, link string) error {
	if m.echoLinks {
		logger.Named("email").Info("password reset link (echo mode)",
			logger.Email(to), logger.Path(link))
		return nil
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", "Reset your password")
	msg.SetBody("text/plain", fmt.Sprintf(
		"Someone (hopefully you) asked to reset the password for this account.\n\n"+
			"Open this link to choose a new password:\n\n  %s\n\n"+
			"If it wasn't you, ignore this email.\n", link))

	d := gomail.NewDialer(m.cfg.Host, m.cfg.Port, m.cfg.Username, m.cfg.Password)
	if err := d.DialAndSend(msg); err != nil {
		return fmt.Errorf("email: send reset to %s: %w", to, err)
	}
	return nil
}
