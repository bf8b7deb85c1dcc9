// Package events publishes relationship events to NATS.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/and161185/passby/internal/metrics"
)

// Subjects.
const (
	SubjectMatchCreated      = "passby.match.created"
	SubjectEncounterRepeated = "passby.encounter.repeated"
)

// Event is the JSON payload delivered to one recipient. PushTokens
// lists the recipient's registered devices when a TokenSource is set.
type Event struct {
	UserID     uuid.UUID `json:"user_id"`
	PeerID     uuid.UUID `json:"peer_id"`
	OccurredAt time.Time `json:"occurred_at"`
	PushTokens []string  `json:"push_tokens,omitempty"`
}

// TokenSource returns the push tokens of a user.
type TokenSource interface {
	Tokens(ctx context.Context, user uuid.UUID) ([]string, error)
}

// Publisher emits events about a pair. Implementations must not block
// the caller on delivery.
type Publisher interface {
	MatchCreated(a, b uuid.UUID, at time.Time)
	EncounterRepeated(a, b uuid.UUID, at time.Time)
}

// Conn is the part of *nats.Conn used for publishing.
type Conn interface {
	PublishMsg(m *nats.Msg) error
}

// Config configures the NATS connection.
type Config struct {
	Servers       []string      `mapstructure:"servers"`
	Name          string        `mapstructure:"name"`
	ReconnectWait time.Duration `mapstructure:"reconnect-wait"`
	Timeout       time.Duration `mapstructure:"timeout"`
	// Queue is the group sharing passby.device.invalid deliveries.
	Queue string `mapstructure:"queue"`
}

// Connect dials NATS with unlimited reconnects.
func Connect(cfg Config) (*nats.Conn, error) {
	if len(cfg.Servers) == 0 {
		return nil, fmt.Errorf("nats servers missing")
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 500 * time.Millisecond
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 3 * time.Second
	}
	return nats.Connect(strings.Join(cfg.Servers, ","),
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(cfg.Timeout),
	)
}

// NATS publishes one message per recipient in a background goroutine.
type NATS struct {
	conn    Conn
	tokens  TokenSource
	log     *zap.Logger
	timeout time.Duration
}

// Option configures NATS.
type Option func(*NATS)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(n *NATS) { n.log = l } }

// WithTimeout bounds one background publish round. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(n *NATS) {
		if d > 0 {
			n.timeout = d
		}
	}
}

// WithTokenSource attaches the recipients' push tokens to every event.
func WithTokenSource(src TokenSource) Option { return func(n *NATS) { n.tokens = src } }

// NewNATS wraps an established connection.
func NewNATS(conn Conn, opts ...Option) *NATS {
	n := &NATS{conn: conn, log: zap.NewNop(), timeout: 5 * time.Second}
	for _, o := range opts {
		o(n)
	}
	return n
}

// MatchCreated notifies both users of a new match.
func (n *NATS) MatchCreated(a, b uuid.UUID, at time.Time) {
	n.fanout(SubjectMatchCreated, a, b, at)
}

// EncounterRepeated notifies both users of a repeated encounter.
func (n *NATS) EncounterRepeated(a, b uuid.UUID, at time.Time) {
	n.fanout(SubjectEncounterRepeated, a, b, at)
}

func (n *NATS) fanout(subject string, a, b uuid.UUID, at time.Time) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()
		for _, ev := range []Event{{UserID: a, PeerID: b, OccurredAt: at}, {UserID: b, PeerID: a, OccurredAt: at}} {
			ev.PushTokens = n.pushTokens(ctx, ev.UserID)
			if err := n.Publish(ctx, subject, ev); err != nil {
				n.log.Warn("publish event",
					zap.String("subject", subject),
					zap.Stringer("user_id", ev.UserID),
					zap.Error(err))
			}
		}
	}()
}

// pushTokens looks up the recipient's devices; a failed lookup still
// publishes the event without them.
func (n *NATS) pushTokens(ctx context.Context, user uuid.UUID) []string {
	if n.tokens == nil {
		return nil
	}
	toks, err := n.tokens.Tokens(ctx, user)
	if err != nil {
		n.log.Warn("push tokens lookup", zap.Stringer("user_id", user), zap.Error(err))
		return nil
	}
	return toks
}

// Publish sends a single event synchronously. The Nats-Msg-Id header
// lets a JetStream stream drop duplicates.
func (n *NATS) Publish(ctx context.Context, subject string, ev Event) (err error) {
	defer func() { metrics.Published(subject, err) }()
	if err = ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	msg := nats.NewMsg(subject)
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, MsgID(subject, ev))
	if err = n.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// MsgID is stable for the same subject, recipient, peer and instant.
func MsgID(subject string, ev Event) string {
	return fmt.Sprintf("%s:%s:%s:%d", subject, ev.UserID, ev.PeerID, ev.OccurredAt.UnixNano())
}

// Nop drops every event.
type Nop struct{}

// MatchCreated does nothing.
func (Nop) MatchCreated(uuid.UUID, uuid.UUID, time.Time) {}

// EncounterRepeated does nothing.
func (Nop) EncounterRepeated(uuid.UUID, uuid.UUID, time.Time) {}
