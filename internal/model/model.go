// Package model defines domain entities used by services and repositories.
package model

import (
	"bytes"
	"time"

	"github.com/gofrs/uuid/v5"
)

// Pair is an unordered identity pair in canonical order (First < Second).
type Pair struct {
	First  uuid.UUID
	Second uuid.UUID
}

// Canonical orders a and b by their 16 raw bytes, matching the
// PostgreSQL uuid ordering. swapped reports whether a became Second.
func Canonical(a, b uuid.UUID) (p Pair, swapped bool) {
	if bytes.Compare(a[:], b[:]) <= 0 {
		return Pair{First: a, Second: b}, false
	}
	return Pair{First: b, Second: a}, true
}

// EphemeralToken binds a broadcast identifier to its owner for a short window.
type EphemeralToken struct {
	Hash      []byte    // keyed digest of the broadcast value
	OwnerID   uuid.UUID // user broadcasting the token
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Valid reports whether the token is still resolvable at now.
func (t EphemeralToken) Valid(now time.Time) bool { return !now.After(t.ExpiresAt) }

// ObservationPair holds the one-sided sightings for an unordered pair.
type ObservationPair struct {
	Pair
	FirstToSecond   *time.Time // First saw Second
	SecondToFirst   *time.Time // Second saw First
	LastConfirmedAt *time.Time
}

// Mutual reports whether both directions were seen within window of each
// other and the newer one is no older than window at now.
func (p ObservationPair) Mutual(now time.Time, window time.Duration) bool {
	if p.FirstToSecond == nil || p.SecondToFirst == nil {
		return false
	}
	d1, d2 := *p.FirstToSecond, *p.SecondToFirst
	diff := d1.Sub(d2)
	if diff < 0 {
		diff = -diff
	}
	if diff > window {
		return false
	}
	latest := d1
	if d2.After(latest) {
		latest = d2
	}
	return now.Sub(latest) <= window
}

// Actable reports whether a confirmation may be recorded at now.
func (p ObservationPair) Actable(now time.Time, cooldown time.Duration) bool {
	return p.LastConfirmedAt == nil || now.Sub(*p.LastConfirmedAt) > cooldown
}

// Observation is a one-sided "I saw token X" report.
type Observation struct {
	Reporter   uuid.UUID
	Token      string
	RSSI       int
	ClientTime *time.Time // informational only
}

// ObservationStatus is the outcome of a single observation report.
type ObservationStatus string

// Observation outcomes.
const (
	StatusThrottled  ObservationStatus = "throttled"
	StatusUnresolved ObservationStatus = "unresolved"
	StatusSelf       ObservationStatus = "self"
	StatusPending    ObservationStatus = "pending"
	StatusCooldown   ObservationStatus = "cooldown"
	StatusConfirmed  ObservationStatus = "confirmed"
)

// ObservationResult is returned to the reporting device.
type ObservationResult struct {
	Status       ObservationStatus
	Resolved     bool
	Mutual       bool
	MatchCreated bool
}

// Encounter is one mirror row of a confirmed encounter.
type Encounter struct {
	OwnerID           uuid.UUID
	PeerID            uuid.UUID
	LastEncounteredAt time.Time
	ExpiresAt         time.Time
	OccurrenceCount   int64
}

// RecentEncounter is a listing entry for the owner's recent encounters.
type RecentEncounter struct {
	PeerID            uuid.UUID
	LastEncounteredAt time.Time
	OccurrenceCount   int64
	IsFriend          bool
}

// Friend is a matched peer annotated with encounter metadata when present.
type Friend struct {
	PeerID            uuid.UUID
	MatchedAt         time.Time
	LastEncounteredAt *time.Time
	OccurrenceCount   int64
}

// BlockedUser is a listing entry of identities blocked by the owner.
type BlockedUser struct {
	PeerID    uuid.UUID
	BlockedAt time.Time
}

// LikeOutcome reports the effect of a like on the pair.
type LikeOutcome struct {
	Blocked      bool // a block exists, nothing written
	MatchCreated bool // match mirrors were inserted by this call
	Mutual       bool // both likes exist after this call
}

// Device is a push registration of one of the owner's installations.
type Device struct {
	OwnerID    uuid.UUID
	PushToken  string
	Platform   string
	DeviceID   string
	AppVersion string
	Locale     string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Announcement importance levels.
const (
	ImportanceNormal    = "normal"
	ImportanceImportant = "important"
)

// Announcement is an operator notice shown to every user.
type Announcement struct {
	ID          uuid.UUID
	Title       string
	Body        string
	PublishedAt time.Time
	LinkURL     *string
	Importance  string
}
