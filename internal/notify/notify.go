// Package notify hands outbound email to a delivery worker. Sending is
// fire-and-forget: failures are logged and never reach the caller.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	TemplateProUpgraded = "pro_upgraded"
	TemplateWelcome     = "welcome"

	DefaultQueue = "mail:outbox"
	sendTimeout  = 5 * time.Second
)

type Email struct {
	To       string            `json:"to"`
	Template string            `json:"template"`
	Data     map[string]string `json:"data,omitempty"`
	QueuedAt time.Time         `json:"queued_at"`
}

type Mailer interface {
	Send(ctx context.Context, email Email) error
}

// RedisMailer pushes jobs onto a Redis list consumed by the mail worker.
type RedisMailer struct {
	client *redis.Client
	queue  string
}

func NewRedisMailer(client *redis.Client, queue string) *RedisMailer {
	if queue == "" {
		queue = DefaultQueue
	}
	return &RedisMailer{client: client, queue: queue}
}

func (m *RedisMailer) Send(ctx context.Context, email Email) error {
	payload, err := json.Marshal(email)
	if err != nil {
		return fmt.Errorf("encode email job: %w", err)
	}
	if err := m.client.LPush(ctx, m.queue, payload).Err(); err != nil {
		return fmt.Errorf("enqueue email job: %w", err)
	}
	return nil
}

// LogMailer only records what would have been sent.
type LogMailer struct {
	log *zap.SugaredLogger
}

func NewLogMailer(log *zap.SugaredLogger) *LogMailer {
	return &LogMailer{log: log}
}

func (m *LogMailer) Send(_ context.Context, email Email) error {
	m.log.Infow("email not delivered, no mail queue configured", "to", email.To, "template", email.Template)
	return nil
}

// Notifier sends in the background.
type Notifier struct {
	mailer Mailer
	log    *zap.SugaredLogger
	wg     sync.WaitGroup
}

func NewNotifier(mailer Mailer, log *zap.SugaredLogger) *Notifier {
	return &Notifier{mailer: mailer, log: log}
}

func (n *Notifier) Notify(to, template string, data map[string]string) {
	email := Email{To: to, Template: template, Data: data, QueuedAt: time.Now().UTC()}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		if err := n.mailer.Send(ctx, email); err != nil {
			n.log.Errorw("failed to send email", "template", template, "error", err)
		}
	}()
}

// Wait blocks until every pending send has finished.
func (n *Notifier) Wait() {
	n.wg.Wait()
}
