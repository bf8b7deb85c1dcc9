package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/passby/internal/errs"
	"github.com/and161185/passby/internal/model"
	"github.com/and161185/passby/internal/service"
)

type fakeVerifier map[string]uuid.UUID

func (f fakeVerifier) Verify(tok string) (uuid.UUID, error) {
	if id, ok := f[tok]; ok {
		return id, nil
	}
	return uuid.Nil, errs.ErrUnauthorized
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

type fakeRegistry struct {
	owner uuid.UUID
	token string
	exp   time.Time
	err   error
}

var _ service.RegistryService = (*fakeRegistry)(nil)

func (f *fakeRegistry) Issue(_ context.Context, owner uuid.UUID, token string) (time.Time, error) {
	f.owner, f.token = owner, token
	return f.exp, f.err
}

func (f *fakeRegistry) Resolve(context.Context, string) (uuid.UUID, error) {
	return uuid.Nil, errs.ErrNotFound
}

type fakeObserver struct {
	got model.Observation
	res model.ObservationResult
}

func (f *fakeObserver) Observe(_ context.Context, o model.Observation) model.ObservationResult {
	f.got = o
	return f.res
}

type fakeLedger struct {
	caller, peer uuid.UUID
	matched      bool
	recent       []model.RecentEncounter
	err          error
}

var _ service.LedgerService = (*fakeLedger)(nil)

func (f *fakeLedger) Record(context.Context, uuid.UUID, uuid.UUID) (bool, error) {
	return false, errors.New("not used")
}

func (f *fakeLedger) ReportDirect(_ context.Context, caller, peer uuid.UUID) (bool, error) {
	f.caller, f.peer = caller, peer
	if caller == peer {
		return false, errs.ErrSelf
	}
	return f.matched, f.err
}

func (f *fakeLedger) ListRecent(context.Context, uuid.UUID) ([]model.RecentEncounter, error) {
	return f.recent, f.err
}

func (f *fakeLedger) DeleteBetween(context.Context, uuid.UUID, uuid.UUID) error { return nil }

type fakeGraph struct {
	calls   []string
	matched bool
	err     error
	friends []model.Friend
	blocked []model.BlockedUser
}

var _ service.GraphService = (*fakeGraph)(nil)

func (f *fakeGraph) record(op string, from, to uuid.UUID) error {
	f.calls = append(f.calls, op+":"+from.String()+">"+to.String())
	if from == to {
		return errs.ErrSelf
	}
	return f.err
}

func (f *fakeGraph) Like(_ context.Context, from, to uuid.UUID) (bool, error) {
	if err := f.record("like", from, to); err != nil {
		return false, err
	}
	return f.matched, nil
}

func (f *fakeGraph) Unlike(_ context.Context, from, to uuid.UUID) error {
	return f.record("unlike", from, to)
}

func (f *fakeGraph) Block(_ context.Context, from, to uuid.UUID) error {
	return f.record("block", from, to)
}

func (f *fakeGraph) Unblock(_ context.Context, from, to uuid.UUID) error {
	return f.record("unblock", from, to)
}

func (f *fakeGraph) MatchIfMutual(context.Context, uuid.UUID, uuid.UUID) (bool, error) {
	return false, nil
}

func (f *fakeGraph) IsBlocked(context.Context, uuid.UUID, uuid.UUID) (bool, error) { return false, nil }
func (f *fakeGraph) IsMatched(context.Context, uuid.UUID, uuid.UUID) (bool, error) { return false, nil }

func (f *fakeGraph) ListFriends(context.Context, uuid.UUID) ([]model.Friend, error) {
	return f.friends, f.err
}

func (f *fakeGraph) ListBlocked(context.Context, uuid.UUID) ([]model.BlockedUser, error) {
	return f.blocked, f.err
}

type fakeDevices struct {
	registered []model.Device
	removed    []string
	tokens     []string
	err        error
}

var _ service.DeviceService = (*fakeDevices)(nil)

func (f *fakeDevices) Register(_ context.Context, d model.Device) error {
	if d.PushToken == "" {
		return errs.ErrValidation
	}
	f.registered = append(f.registered, d)
	return f.err
}

func (f *fakeDevices) Tokens(context.Context, uuid.UUID) ([]string, error) { return f.tokens, f.err }

func (f *fakeDevices) Remove(_ context.Context, _ uuid.UUID, token string) error {
	f.removed = append(f.removed, token)
	return f.err
}

type fakeAnnouncements struct {
	items []model.Announcement
	err   error
}

func (f *fakeAnnouncements) Recent(context.Context) ([]model.Announcement, error) {
	return f.items, f.err
}

type fixture struct {
	srv           *Server
	me            uuid.UUID
	registry      *fakeRegistry
	observer      *fakeObserver
	ledger        *fakeLedger
	graph         *fakeGraph
	devices       *fakeDevices
	announcements *fakeAnnouncements
}

const goodToken = "good-token"

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		me:       uuid.Must(uuid.NewV4()),
		registry: &fakeRegistry{},
		observer: &fakeObserver{},
		ledger:   &fakeLedger{},
		graph:    &fakeGraph{},

		devices:       &fakeDevices{},
		announcements: &fakeAnnouncements{},
	}
	svc := Services{
		Registry: f.registry, Observer: f.observer, Ledger: f.ledger, Graph: f.graph,
		Devices: f.devices, Announcements: f.announcements,
	}
	f.srv = New(svc, fakeVerifier{goodToken: f.me}, fakePinger{}, "test", zaptest.NewLogger(t))
	return f
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Authorization", "Bearer "+goodToken)
	w := httptest.NewRecorder()
	f.srv.ServeHTTP(w, req)
	return w
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, want, w.Body.String())
	}
}

var _ http.Handler = (*Server)(nil)
