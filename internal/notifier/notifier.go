// Package notifier fans appended events out to NATS subscribers.
package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/julianstephens/flux/internal/constants"
	"github.com/julianstephens/flux/internal/logger"
	"github.com/julianstephens/flux/internal/models"
	"github.com/julianstephens/flux/internal/tasks"
)

// Publisher is the subset of *nats.Conn the notifier needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

type Notifier struct {
	pub    Publisher
	prefix string
	conn   *nats.Conn
}

// Message is the envelope published for every event.
type Message struct {
	UserID string       `json:"userId"`
	Event  models.Event `json:"event"`
}

// TaskMessage is published when a scheduled task fires.
type TaskMessage struct {
	UserID string     `json:"userId"`
	Prompt string     `json:"prompt"`
	Task   tasks.Task `json:"task"`
}

// New wraps an existing publisher. An empty prefix uses the default subject.
func New(pub Publisher, prefix string) *Notifier {
	if prefix == "" {
		prefix = constants.DefaultNATSSubject
	}
	return &Notifier{
		pub:    pub,
		prefix: strings.TrimSuffix(prefix, "."),
	}
}

// Connect dials a NATS server and returns a notifier that owns the connection.
func Connect(url, prefix string) (*Notifier, error) {
	conn, err := nats.Connect(url,
		nats.Name(constants.AppName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", "error", err)
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	n := New(conn, prefix)
	n.conn = conn
	return n, nil
}

// Subject returns the subject events for userID are published on. The user
// id becomes a single subject token; see SubjectToken.
func (n *Notifier) Subject(userID string) string {
	return n.prefix + "." + SubjectToken(userID)
}

// SubjectToken encodes userID as one NATS subject token. Letters, digits,
// '-' and '_' pass through; every other byte is written as %XX, so '.', '*',
// '>' and whitespace cannot change the subject hierarchy and distinct ids
// stay distinct. An empty id encodes as "%".
func SubjectToken(userID string) string {
	if userID == "" {
		return "%"
	}
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(userID))
	for i := 0; i < len(userID); i++ {
		c := userID[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
			b.WriteByte(c)
		default:
			b.WriteByte('%')
			b.WriteByte(hex[c>>4])
			b.WriteByte(hex[c&0x0f])
		}
	}
	return b.String()
}

// Notify publishes each event in order. A nil notifier is a no-op.
func (n *Notifier) Notify(ctx context.Context, userID string, events []models.Event) error {
	if n == nil || n.pub == nil {
		return nil
	}

	subject := n.Subject(userID)
	var errs []error
	for _, e := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := json.Marshal(Message{UserID: userID, Event: e})
		if err != nil {
			errs = append(errs, fmt.Errorf("encode event %s: %w", e.ID, err))
			continue
		}
		if err := n.pub.Publish(subject, data); err != nil {
			errs = append(errs, fmt.Errorf("publish event %s: %w", e.ID, err))
			continue
		}
		logger.Debug("Published event", "subject", subject, "type", e.Type, "id", e.ID)
	}
	return errors.Join(errs...)
}

// TaskSubject returns the subject fired tasks for userID are published on.
func (n *Notifier) TaskSubject(userID string) string {
	return n.Subject(userID) + ".tasks"
}

// RunTask publishes a fired task so a connected agent session can act on
// it. A nil notifier is a no-op.
func (n *Notifier) RunTask(ctx context.Context, t tasks.Task) error {
	if n == nil || n.pub == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(TaskMessage{UserID: t.UserID, Prompt: t.Prompt(), Task: t})
	if err != nil {
		return fmt.Errorf("encode task %s: %w", t.ID, err)
	}
	subject := n.TaskSubject(t.UserID)
	if err := n.pub.Publish(subject, data); err != nil {
		return fmt.Errorf("publish task %s: %w", t.ID, err)
	}
	logger.Debug("Published scheduled task", "subject", subject, "task", t.ID)
	return nil
}

// Close drains the owned connection, if any.
func (n *Notifier) Close() error {
	if n == nil || n.conn == nil {
		return nil
	}
	if err := n.conn.Drain(); err != nil {
		n.conn.Close()
		return err
	}
	return nil
}
