package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// SubjectDeviceInvalid carries push tokens the dispatcher found unregistered.
const SubjectDeviceInvalid = "passby.device.invalid"

// InvalidToken is the payload on SubjectDeviceInvalid.
type InvalidToken struct {
	UserID uuid.UUID `json:"user_id"`
	Token  string    `json:"token"`
}

// TokenRemover drops a push registration.
type TokenRemover interface {
	Remove(ctx context.Context, owner uuid.UUID, token string) error
}

// Subscriber is the part of *nats.Conn used for consuming.
type Subscriber interface {
	QueueSubscribe(subj, queue string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// SubscribeInvalidTokens removes every token reported on SubjectDeviceInvalid.
// Replicas share the queue group so each report is handled once.
func SubscribeInvalidTokens(conn Subscriber, queue string, rm TokenRemover, timeout time.Duration, log *zap.Logger) (*nats.Subscription, error) {
	return conn.QueueSubscribe(SubjectDeviceInvalid, queue, invalidTokenHandler(rm, timeout, log))
}

func invalidTokenHandler(rm TokenRemover, timeout time.Duration, log *zap.Logger) nats.MsgHandler {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return func(m *nats.Msg) {
		var it InvalidToken
		if err := json.Unmarshal(m.Data, &it); err != nil || it.UserID == uuid.Nil || it.Token == "" {
			log.Warn("bad invalid-token report", zap.Int("bytes", len(m.Data)), zap.Error(err))
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := rm.Remove(ctx, it.UserID, it.Token); err != nil {
			log.Warn("remove invalid push token", zap.Stringer("user_id", it.UserID), zap.Error(err))
			return
		}
		log.Debug("invalid push token removed", zap.Stringer("user_id", it.UserID))
	}
}
