package events

import (
	"context"
	"errors"
	"testing"

	"github.com/gofrs/uuid/v5"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type removed struct {
	owner uuid.UUID
	token string
}

type fakeRemover struct {
	calls []removed
	err   error
}

func (f *fakeRemover) Remove(_ context.Context, owner uuid.UUID, token string) error {
	f.calls = append(f.calls, removed{owner, token})
	return f.err
}

type fakeSubscriber struct {
	subject, queue string
	cb             nats.MsgHandler
}

func (f *fakeSubscriber) QueueSubscribe(subj, queue string, cb nats.MsgHandler) (*nats.Subscription, error) {
	f.subject, f.queue, f.cb = subj, queue, cb
	return nil, nil
}

func TestSubscribeInvalidTokens_RemovesReportedToken(t *testing.T) {
	rm := &fakeRemover{}
	sub := &fakeSubscriber{}
	_, err := SubscribeInvalidTokens(sub, "passby", rm, 0, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.Equal(t, SubjectDeviceInvalid, sub.subject)
	require.Equal(t, "passby", sub.queue)

	owner := uuid.Must(uuid.NewV4())
	sub.cb(&nats.Msg{Data: []byte(`{"user_id":"` + owner.String() + `","token":"fcm-dead"}`)})
	require.Equal(t, []removed{{owner, "fcm-dead"}}, rm.calls)
}

func TestInvalidTokenHandler_IgnoresBadPayloads(t *testing.T) {
	rm := &fakeRemover{}
	h := invalidTokenHandler(rm, 0, zaptest.NewLogger(t))

	for _, data := range []string{`not json`, `{"token":"x"}`, `{"user_id":"` + uuid.Must(uuid.NewV4()).String() + `"}`} {
		h(&nats.Msg{Data: []byte(data)})
	}
	require.Empty(t, rm.calls)
}

func TestInvalidTokenHandler_RemoveErrorIsLogged(t *testing.T) {
	rm := &fakeRemover{err: errors.New("db down")}
	h := invalidTokenHandler(rm, 0, zaptest.NewLogger(t))

	h(&nats.Msg{Data: []byte(`{"user_id":"` + uuid.Must(uuid.NewV4()).String() + `","token":"t"}`)})
	require.Len(t, rm.calls, 1)
}
