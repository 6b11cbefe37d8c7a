package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"

	"github.com/longbark/sitewatch/internal/domain"
)

// Email sends plain-text alert mail over SMTP with STARTTLS.
type Email struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	To       []string
	Log      *zap.Logger
}

func NewEmail(log *zap.Logger, host string, port int, user, password, to string) *Email {
	if host == "" || to == "" {
		return nil
	}
	from := user
	if from == "" {
		from = "alerts@" + host
	}
	return &Email{
		Host:     host,
		Port:     port,
		User:     user,
		Password: password,
		From:     from,
		To:       strings.Split(to, ","),
		Log:      log,
	}
}

func (e *Email) Name() string { return "email" }

func (e *Email) Send(ctx context.Context, a *domain.Alert) bool {
	if err := ctx.Err(); err != nil {
		return false
	}

	subject := fmt.Sprintf("[%s] %s", strings.ToUpper(string(a.Severity)), a.Title)
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", e.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(e.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(a.Message)
	fmt.Fprintf(&b, "\r\n\r\nAlert: %s\r\nSite: %s\r\nType: %s\r\nCreated: %s\r\n",
		a.ID, a.SiteID, a.Type, a.CreatedAt.Format("2006-01-02 15:04:05 UTC"))

	var auth smtp.Auth
	if e.User != "" {
		auth = smtp.PlainAuth("", e.User, e.Password, e.Host)
	}
	addr := fmt.Sprintf("%s:%d", e.Host, e.Port)
	if err := smtp.SendMail(addr, auth, e.From, e.To, []byte(b.String())); err != nil {
		e.Log.Warn("email_send_error", zap.String("alert_id", string(a.ID)), zap.Error(err))
		return false
	}
	e.Log.Info("email_sent", zap.String("alert_id", string(a.ID)))
	return true
}
