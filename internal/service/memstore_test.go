package service

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/passby/internal/errs"
	"github.com/and161185/passby/internal/model"
	"github.com/and161185/passby/internal/repository"
)

type edge struct{ from, to uuid.UUID }

// memStore is an in-memory stand-in for all repositories. fail maps a
// method name to the error it returns.
type memStore struct {
	mu         sync.Mutex
	tokens     map[string]model.EphemeralToken
	obs        map[model.Pair]model.ObservationPair
	encounters map[edge]model.Encounter
	likes      map[edge]time.Time
	matches    map[edge]time.Time
	blocks     map[edge]time.Time
	fail       map[string]error
	calls      map[string]int
}

var (
	_ repository.TokenRepository       = (*memStore)(nil)
	_ repository.ObservationRepository = (*memStore)(nil)
	_ repository.EncounterRepository   = (*memStore)(nil)
	_ repository.RelationRepository    = (*memStore)(nil)
)

func newMemStore() *memStore {
	return &memStore{
		tokens:     map[string]model.EphemeralToken{},
		obs:        map[model.Pair]model.ObservationPair{},
		encounters: map[edge]model.Encounter{},
		likes:      map[edge]time.Time{},
		matches:    map[edge]time.Time{},
		blocks:     map[edge]time.Time{},
		fail:       map[string]error{},
		calls:      map[string]int{},
	}
}

// enter locks the store and counts the call; callers unlock.
func (m *memStore) enter(name string) error {
	m.mu.Lock()
	m.calls[name]++
	return m.fail[name]
}

func (m *memStore) blockedLocked(a, b uuid.UUID) bool {
	_, ab := m.blocks[edge{a, b}]
	_, ba := m.blocks[edge{b, a}]
	return ab || ba
}

// tokens

func (m *memStore) Issue(_ context.Context, t model.EphemeralToken) ([][]byte, error) {
	err := m.enter("Issue")
	defer m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	var replaced [][]byte
	for k, v := range m.tokens {
		if v.OwnerID == t.OwnerID && !bytes.Equal(v.Hash, t.Hash) {
			replaced = append(replaced, v.Hash)
			delete(m.tokens, k)
		}
	}
	m.tokens[string(t.Hash)] = t
	return replaced, nil
}

func (m *memStore) Lookup(_ context.Context, hash []byte) (model.EphemeralToken, error) {
	err := m.enter("Lookup")
	defer m.mu.Unlock()
	if err != nil {
		return model.EphemeralToken{}, err
	}
	t, ok := m.tokens[string(hash)]
	if !ok {
		return model.EphemeralToken{}, errs.ErrNotFound
	}
	return t, nil
}

func (m *memStore) DeleteExpired(_ context.Context, now time.Time, limit int) (int64, error) {
	err := m.enter("DeleteExpired")
	defer m.mu.Unlock()
	if err != nil {
		return 0, err
	}
	var n int64
	for k, v := range m.tokens {
		if int(n) == limit {
			break
		}
		if !v.ExpiresAt.After(now) {
			delete(m.tokens, k)
			n++
		}
	}
	return n, nil
}

// observations

func (m *memStore) Touch(_ context.Context, p model.Pair, forward bool, at time.Time) (model.ObservationPair, error) {
	err := m.enter("Touch")
	defer m.mu.Unlock()
	if err != nil {
		return model.ObservationPair{}, err
	}
	row, ok := m.obs[p]
	if !ok {
		row = model.ObservationPair{Pair: p}
	}
	t := at
	if forward {
		row.FirstToSecond = &t
	} else {
		row.SecondToFirst = &t
	}
	m.obs[p] = row
	return row, nil
}

func (m *memStore) Confirm(_ context.Context, p model.Pair, now time.Time, cooldown time.Duration) (bool, error) {
	err := m.enter("Confirm")
	defer m.mu.Unlock()
	if err != nil {
		return false, err
	}
	row, ok := m.obs[p]
	if !ok {
		return false, errs.ErrNotFound
	}
	if !row.Actable(now, cooldown) {
		return false, nil
	}
	t := now
	row.LastConfirmedAt = &t
	m.obs[p] = row
	return true, nil
}

func (m *memStore) Release(_ context.Context, p model.Pair, stampedAt time.Time, previous *time.Time) error {
	err := m.enter("Release")
	defer m.mu.Unlock()
	if err != nil {
		return err
	}
	row, ok := m.obs[p]
	if !ok || row.LastConfirmedAt == nil || !row.LastConfirmedAt.Equal(stampedAt) {
		return nil
	}
	row.LastConfirmedAt = previous
	m.obs[p] = row
	return nil
}

// encounters

func (m *memStore) Record(_ context.Context, a, b uuid.UUID, now time.Time, ttl time.Duration) (int64, bool, error) {
	err := m.enter("Record")
	defer m.mu.Unlock()
	if err != nil {
		return 0, false, err
	}
	if m.blockedLocked(a, b) {
		return 0, false, nil
	}
	next := max(m.encounters[edge{a, b}].OccurrenceCount, m.encounters[edge{b, a}].OccurrenceCount) + 1
	m.encounters[edge{a, b}] = model.Encounter{OwnerID: a, PeerID: b, LastEncounteredAt: now, ExpiresAt: now.Add(ttl), OccurrenceCount: next}
	m.encounters[edge{b, a}] = model.Encounter{OwnerID: b, PeerID: a, LastEncounteredAt: now, ExpiresAt: now.Add(ttl), OccurrenceCount: next}
	return next, true, nil
}

func (m *memStore) Recent(_ context.Context, owner uuid.UUID, limit int) ([]model.Encounter, error) {
	err := m.enter("Recent")
	defer m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	var out []model.Encounter
	for k, v := range m.encounters {
		if k.from == owner {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastEncounteredAt.Equal(out[j].LastEncounteredAt) {
			return out[i].LastEncounteredAt.After(out[j].LastEncounteredAt)
		}
		return bytes.Compare(out[i].PeerID[:], out[j].PeerID[:]) < 0
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) DeleteBetween(_ context.Context, a, b uuid.UUID) error {
	err := m.enter("DeleteBetween")
	defer m.mu.Unlock()
	if err != nil {
		return err
	}
	delete(m.encounters, edge{a, b})
	delete(m.encounters, edge{b, a})
	return nil
}

func (m *memStore) DeleteStale(_ context.Context, cutoff time.Time, limit int, _ time.Duration) (int64, error) {
	err := m.enter("DeleteStale")
	defer m.mu.Unlock()
	if err != nil {
		return 0, err
	}
	var n int64
	for k, v := range m.encounters {
		if int(n) == limit {
			break
		}
		if v.LastEncounteredAt.Before(cutoff) {
			delete(m.encounters, k)
			n++
		}
	}
	return n, nil
}

func (m *memStore) OwnersAfter(_ context.Context, cursor uuid.UUID, limit int) ([]uuid.UUID, error) {
	err := m.enter("OwnersAfter")
	defer m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	seen := map[uuid.UUID]struct{}{}
	var out []uuid.UUID
	for k := range m.encounters {
		if _, ok := seen[k.from]; ok || bytes.Compare(k.from[:], cursor[:]) <= 0 {
			continue
		}
		seen[k.from] = struct{}{}
		out = append(out, k.from)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) DeleteStaleForOwner(_ context.Context, owner uuid.UUID, cutoff time.Time, limit int) (int64, error) {
	err := m.enter("DeleteStaleForOwner")
	defer m.mu.Unlock()
	if err != nil {
		return 0, err
	}
	var n int64
	for k, v := range m.encounters {
		if int(n) == limit {
			break
		}
		if k.from == owner && v.LastEncounteredAt.Before(cutoff) {
			delete(m.encounters, k)
			n++
		}
	}
	return n, nil
}

// relations

func (m *memStore) ensureMatchLocked(a, b uuid.UUID, now time.Time) bool {
	_, ab := m.matches[edge{a, b}]
	_, ba := m.matches[edge{b, a}]
	if !ab {
		m.matches[edge{a, b}] = now
	}
	if !ba {
		m.matches[edge{b, a}] = now
	}
	return !ab || !ba
}

func (m *memStore) Like(_ context.Context, from, to uuid.UUID, now time.Time) (model.LikeOutcome, error) {
	err := m.enter("Like")
	defer m.mu.Unlock()
	if err != nil {
		return model.LikeOutcome{}, err
	}
	if m.blockedLocked(from, to) {
		return model.LikeOutcome{Blocked: true}, nil
	}
	if _, ok := m.likes[edge{from, to}]; !ok {
		m.likes[edge{from, to}] = now
	}
	if _, ok := m.likes[edge{to, from}]; !ok {
		return model.LikeOutcome{}, nil
	}
	return model.LikeOutcome{Mutual: true, MatchCreated: m.ensureMatchLocked(from, to, now)}, nil
}

func (m *memStore) Unlike(_ context.Context, from, to uuid.UUID) error {
	err := m.enter("Unlike")
	defer m.mu.Unlock()
	if err != nil {
		return err
	}
	if _, ok := m.matches[edge{from, to}]; ok {
		return errs.ErrConflict
	}
	delete(m.likes, edge{from, to})
	return nil
}

func (m *memStore) MatchIfMutual(_ context.Context, a, b uuid.UUID, now time.Time) (model.LikeOutcome, error) {
	err := m.enter("MatchIfMutual")
	defer m.mu.Unlock()
	if err != nil {
		return model.LikeOutcome{}, err
	}
	if m.blockedLocked(a, b) {
		return model.LikeOutcome{Blocked: true}, nil
	}
	_, ab := m.likes[edge{a, b}]
	_, ba := m.likes[edge{b, a}]
	if !ab || !ba {
		return model.LikeOutcome{}, nil
	}
	return model.LikeOutcome{Mutual: true, MatchCreated: m.ensureMatchLocked(a, b, now)}, nil
}

func (m *memStore) InsertBlock(_ context.Context, from, to uuid.UUID, now time.Time) error {
	err := m.enter("InsertBlock")
	defer m.mu.Unlock()
	if err != nil {
		return err
	}
	if _, ok := m.blocks[edge{from, to}]; !ok {
		m.blocks[edge{from, to}] = now
	}
	return nil
}

func (m *memStore) DeleteBlock(_ context.Context, from, to uuid.UUID) error {
	err := m.enter("DeleteBlock")
	defer m.mu.Unlock()
	if err != nil {
		return err
	}
	delete(m.blocks, edge{from, to})
	return nil
}

func (m *memStore) DeleteLike(_ context.Context, from, to uuid.UUID) error {
	err := m.enter("DeleteLike")
	defer m.mu.Unlock()
	if err != nil {
		return err
	}
	delete(m.likes, edge{from, to})
	return nil
}

func (m *memStore) DeleteMatch(_ context.Context, a, b uuid.UUID) error {
	err := m.enter("DeleteMatch")
	defer m.mu.Unlock()
	if err != nil {
		return err
	}
	delete(m.matches, edge{a, b})
	delete(m.matches, edge{b, a})
	return nil
}

func (m *memStore) IsBlocked(_ context.Context, a, b uuid.UUID) (bool, error) {
	err := m.enter("IsBlocked")
	defer m.mu.Unlock()
	if err != nil {
		return false, err
	}
	return m.blockedLocked(a, b), nil
}

func (m *memStore) IsMatched(_ context.Context, a, b uuid.UUID) (bool, error) {
	err := m.enter("IsMatched")
	defer m.mu.Unlock()
	if err != nil {
		return false, err
	}
	_, ok := m.matches[edge{a, b}]
	return ok, nil
}

func (m *memStore) BlockedAmong(_ context.Context, owner uuid.UUID, peers []uuid.UUID) (map[uuid.UUID]struct{}, error) {
	err := m.enter("BlockedAmong")
	defer m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	out := map[uuid.UUID]struct{}{}
	for _, p := range peers {
		if m.blockedLocked(owner, p) {
			out[p] = struct{}{}
		}
	}
	return out, nil
}

func (m *memStore) MatchedAmong(_ context.Context, owner uuid.UUID, peers []uuid.UUID) (map[uuid.UUID]struct{}, error) {
	err := m.enter("MatchedAmong")
	defer m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	out := map[uuid.UUID]struct{}{}
	for _, p := range peers {
		if _, ok := m.matches[edge{owner, p}]; ok {
			out[p] = struct{}{}
		}
	}
	return out, nil
}

func (m *memStore) ListFriends(_ context.Context, owner uuid.UUID) ([]model.Friend, error) {
	err := m.enter("ListFriends")
	defer m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	var out []model.Friend
	for k, at := range m.matches {
		if k.from != owner || m.blockedLocked(owner, k.to) {
			continue
		}
		f := model.Friend{PeerID: k.to, MatchedAt: at}
		if e, ok := m.encounters[k]; ok {
			t := e.LastEncounteredAt
			f.LastEncounteredAt, f.OccurrenceCount = &t, e.OccurrenceCount
		}
		out = append(out, f)
	}
	return out, nil
}

func (m *memStore) ListBlocked(_ context.Context, owner uuid.UUID) ([]model.BlockedUser, error) {
	err := m.enter("ListBlocked")
	defer m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	var out []model.BlockedUser
	for k, at := range m.blocks {
		if k.from == owner {
			out = append(out, model.BlockedUser{PeerID: k.to, BlockedAt: at})
		}
	}
	return out, nil
}

// recordingPublisher captures events synchronously.
type recordingPublisher struct {
	mu      sync.Mutex
	matches []edge
	repeats []edge
}

func (p *recordingPublisher) MatchCreated(a, b uuid.UUID, _ time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.matches = append(p.matches, edge{a, b})
}

func (p *recordingPublisher) EncounterRepeated(a, b uuid.UUID, _ time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.repeats = append(p.repeats, edge{a, b})
}
