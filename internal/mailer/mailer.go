// Package mailer dispatches templated email through SMTP on a background
// worker queue. Delivery is fire-and-forget with bounded retries; callers
// never block on the SMTP conversation.
package mailer

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nautilusdive/ops-api/pkg/jobs"
)

// Renderer turns a template name and its data into a subject and body.
// Swappable so deployments can plug in real HTML templates.
type Renderer func(template string, data map[string]interface{}) (subject, body string)

// Config holds SMTP connection and queue settings.
type Config struct {
	Host        string
	Port        int
	Username    string
	Password    string
	FromAddress string
	FromName    string
	Workers     int
	MaxRetries  int
	SendTimeout time.Duration
}

type message struct {
	To       string
	Template string
	Data     map[string]interface{}
}

// Mailer implements the TemplateMailer contract over a jobs.Queue.
type Mailer struct {
	config   Config
	queue    *jobs.Queue
	renderer Renderer
	logger   *zap.Logger
}

// New constructs a Mailer. Call Start before sending.
func New(config Config, renderer Renderer, logger *zap.Logger) *Mailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if renderer == nil {
		renderer = defaultRenderer
	}
	if config.SendTimeout <= 0 {
		config.SendTimeout = 10 * time.Second
	}
	m := &Mailer{config: config, renderer: renderer, logger: logger}
	m.queue = jobs.NewQueue("mailer", m.handle, jobs.QueueConfig{
		Workers:    config.Workers,
		MaxRetries: config.MaxRetries,
		Logger:     logger,
	})
	return m
}

// Start launches the worker pool.
func (m *Mailer) Start(ctx context.Context) {
	m.queue.Start(ctx)
}

// Stop drains the worker pool.
func (m *Mailer) Stop() {
	m.queue.Stop()
}

// SendTemplate queues a templated email for delivery.
func (m *Mailer) SendTemplate(ctx context.Context, to, template string, data map[string]interface{}) error {
	if to == "" {
		return fmt.Errorf("mailer: empty recipient for template %s", template)
	}
	return m.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    template,
		Payload: message{To: to, Template: template, Data: data},
	})
}

func (m *Mailer) handle(ctx context.Context, job jobs.Job) error {
	msg, ok := job.Payload.(message)
	if !ok {
		return fmt.Errorf("mailer: unexpected payload type %T", job.Payload)
	}
	subject, body := m.renderer(msg.Template, msg.Data)
	if err := m.send(msg.To, subject, body); err != nil {
		return fmt.Errorf("mailer: send %s to %s: %w", msg.Template, msg.To, err)
	}
	m.logger.Info("email sent",
		zap.String("template", msg.Template),
		zap.String("to", msg.To))
	return nil
}

func (m *Mailer) send(to, subject, body string) error {
	addr := fmt.Sprintf("%s:%d", m.config.Host, m.config.Port)
	conn, err := net.DialTimeout("tcp", addr, m.config.SendTimeout)
	if err != nil {
		return err
	}
	if err := conn.SetDeadline(time.Now().Add(m.config.SendTimeout)); err != nil {
		conn.Close()
		return err
	}

	client, err := smtp.NewClient(conn, m.config.Host)
	if err != nil {
		conn.Close()
		return err
	}
	defer client.Close()

	if m.config.Username != "" {
		auth := smtp.PlainAuth("", m.config.Username, m.config.Password, m.config.Host)
		if ok, _ := client.Extension("AUTH"); ok {
			if err := client.Auth(auth); err != nil {
				return err
			}
		}
	}

	if err := client.Mail(m.config.FromAddress); err != nil {
		return err
	}
	if err := client.Rcpt(to); err != nil {
		return err
	}
	wc, err := client.Data()
	if err != nil {
		return err
	}

	from := m.config.FromAddress
	if m.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", m.config.FromName, m.config.FromAddress)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "From: %s\r\n", from)
	fmt.Fprintf(&sb, "To: %s\r\n", to)
	fmt.Fprintf(&sb, "Subject: %s\r\n", subject)
	sb.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	sb.WriteString(body)

	if _, err := wc.Write([]byte(sb.String())); err != nil {
		wc.Close()
		return err
	}
	if err := wc.Close(); err != nil {
		return err
	}
	return client.Quit()
}

// defaultRenderer emits a plain-text summary of the template data. Deployed
// installations replace it with a real template renderer.
func defaultRenderer(template string, data map[string]interface{}) (string, string) {
	subject := strings.ReplaceAll(template, "_", " ")
	if subject != "" {
		subject = strings.ToUpper(subject[:1]) + subject[1:]
	}

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s: %v\n", k, data[k])
	}
	return subject, sb.String()
}
