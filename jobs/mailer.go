package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"text/template"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/libris-hub/libris/internal/jobs"
)

// Message is a rendered plain-text e-mail.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers rendered messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSender delivers mail through a plain SMTP relay such as Mailpit.
type SMTPSender struct {
	Host string
	Port int
	From string
	Auth smtp.Auth
}

// Send implements Sender.
func (s SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s",
		s.From, msg.To, msg.Subject, msg.Body)
	addr := net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
	return smtp.SendMail(addr, s.Auth, s.From, []string{msg.To}, buf.Bytes())
}

var welcomeBody = template.Must(template.New("welcome").Parse(`Hi {{.Username}},

Welcome to Libris! Your account is ready.
Browse the catalog, follow other readers and share what you are reading.
`))

// WelcomeMailJob renders and sends the welcome e-mail.
type WelcomeMailJob struct {
	Sender  Sender
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewWelcomeMailJob wires dependencies for the welcome mail handler.
func NewWelcomeMailJob(sender Sender, logger *slog.Logger, metrics *jobmetrics.Metrics) *WelcomeMailJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &WelcomeMailJob{Sender: sender, Logger: logger, Metrics: metrics}
}

// Handle processes TaskTypeWelcomeEmail tasks.
func (j *WelcomeMailJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Sender == nil {
		return errors.New("welcome mail: handler not configured")
	}
	var payload WelcomeEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.To == "" {
		return fmt.Errorf("welcome mail: bad payload: %w", asynq.SkipRetry)
	}

	tracker := j.Metrics.Track(TaskTypeWelcomeEmail)
	defer func() {
		err = tracker.End(err)
	}()

	var body bytes.Buffer
	if err := welcomeBody.Execute(&body, payload); err != nil {
		return fmt.Errorf("welcome mail: render: %w", err)
	}
	msg := Message{To: payload.To, Subject: "Welcome to Libris", Body: body.String()}
	if err := j.Sender.Send(ctx, msg); err != nil {
		j.Logger.Warn("welcome mail send failed", slog.String("username", payload.Username), slog.Any("error", err))
		return fmt.Errorf("welcome mail: send: %w", err)
	}
	j.Logger.Info("welcome mail sent", slog.String("username", payload.Username))
	return nil
}
