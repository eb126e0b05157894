package transport

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"
	"time"

	"gopkg.in/gomail.v2"
)

const digestTemplate = `<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; max-width: 640px; margin: 0 auto; color: #222;">
  <h2 style="color: #2c5f8a;">{{.Subject}}</h2>
  <p>Hi {{.Name}},</p>
  <div style="background: #f7f7f7; border-radius: 6px; padding: 16px; white-space: pre-wrap;">{{.Content}}</div>
  <p style="color: #888; font-size: 12px;">Sent {{.Year}} by your mail digest.</p>
</body>
</html>`

// SMTPConfig holds SMTP connection settings.
type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	FromName  string
}

// SMTPSender delivers digests over SMTP wrapped in a small HTML layout.
type SMTPSender struct {
	cfg  SMTPConfig
	tmpl *template.Template
}

func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	tmpl, err := template.New("digest").Parse(digestTemplate)
	if err != nil {
		return nil, fmt.Errorf("error parsing template: %v", err)
	}
	return &SMTPSender{cfg: cfg, tmpl: tmpl}, nil
}

// Send implements Sender
func (s *SMTPSender) Send(ctx context.Context, d Digest) error {
	name := d.ToName
	if name == "" {
		name = strings.Split(d.ToEmail, "@")[0]
	}

	var body bytes.Buffer
	err := s.tmpl.Execute(&body, map[string]interface{}{
		"Subject": d.Subject,
		"Name":    name,
		"Content": d.Content,
		"Year":    time.Now().Year(),
	})
	if err != nil {
		return fmt.Errorf("error executing template: %v", err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", fmt.Sprintf("%s <%s>", s.cfg.FromName, s.cfg.FromEmail))
	m.SetHeader("To", d.ToEmail)
	m.SetHeader("Subject", d.Subject)
	m.SetBody("text/html", body.String())

	dialer := gomail.NewDialer(s.cfg.Host, s.cfg.Port, s.cfg.Username, s.cfg.Password)

	// gomail has no context support; honor cancellation before dialing.
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("error sending digest: %v", err)
	}
	return nil
}
