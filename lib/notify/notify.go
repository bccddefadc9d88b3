// Package notify mails newly crawled deadlines to the user.
package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"sort"
	"strings"
	"time"

	"spoccrawler/lib/chrono"
	"spoccrawler/lib/crawler"
	"spoccrawler/lib/telemetry"

	"github.com/jordan-wright/email"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = telemetry.Tracer("spoccrawler/lib/notify")

type SmtpConfig struct {
	Server       string `json:"server"`
	Port         int    `json:"port"`
	EmailAddress string `json:"email_address"`
	Password     string `json:"password"`
}

type Config struct {
	Smtp SmtpConfig `json:"smtp"`
	// addresses that receive the digest
	To []string `json:"to"`
}

type Mailer struct {
	config Config
	send   func(mail *email.Email) error
}

func NewMailer(config Config) Mailer {
	m := Mailer{config: config}
	m.send = m.sendSmtp
	return m
}

func (m Mailer) sendSmtp(mail *email.Email) error {
	addr := fmt.Sprintf("%s:%d", m.config.Smtp.Server, m.config.Smtp.Port)
	err := mail.Send(
		addr,
		smtp.PlainAuth("", m.config.Smtp.EmailAddress, m.config.Smtp.Password, m.config.Smtp.Server),
	)
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = mail.Send(addr, nil)
	}
	return err
}

func formatDue(ms int64) string {
	return time.UnixMilli(ms).In(chrono.Location()).Format("2006-01-02 15:04")
}

// Digest renders the mail body listing `deadlines`, soonest first.
func Digest(deadlines []crawler.Deadline) string {
	sorted := append([]crawler.Deadline(nil), deadlines...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].DdlTime < sorted[j].DdlTime
	})

	var b strings.Builder
	fmt.Fprintf(&b, "%d new deadline(s):\n\n", len(sorted))
	for _, d := range sorted {
		fmt.Fprintf(&b, "- %s  %s\n  %s\n", formatDue(d.DdlTime), d.Title, d.Content)
	}
	return b.String()
}

// Send mails a digest of `deadlines`, nothing is sent if there are none.
func (m Mailer) Send(ctx context.Context, deadlines []crawler.Deadline) error {
	ctx, span := tracer.Start(ctx, "Mailer:Send", trace.WithAttributes(
		attribute.Int("deadlines", len(deadlines)),
	))
	defer span.End()

	if len(deadlines) == 0 {
		return nil
	}
	if len(m.config.To) == 0 {
		err := fmt.Errorf("no recipients configured")
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	mail := email.NewEmail()
	mail.From = fmt.Sprintf("SPOC Deadlines <%s>", m.config.Smtp.EmailAddress)
	mail.To = m.config.To
	mail.Subject = fmt.Sprintf("%d new SPOC deadline(s)", len(deadlines))
	mail.Text = []byte(Digest(deadlines))

	err := m.send(mail)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send email")
		return err
	}
	return nil
}
