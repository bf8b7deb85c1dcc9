package repository

import (
	"context"

	"github.com/and161185/passby/internal/model"
	"github.com/gofrs/uuid/v5"
)

// DeviceRepository stores push registrations per owner.
type DeviceRepository interface {
	// Upsert inserts d or refreshes its metadata; created_at is kept.
	Upsert(ctx context.Context, d model.Device) error
	// Tokens returns the owner's push tokens, oldest registration first.
	Tokens(ctx context.Context, owner uuid.UUID) ([]string, error)
	// Remove deletes one registration; removing a missing token is a no-op.
	Remove(ctx context.Context, owner uuid.UUID, token string) error
}

// AnnouncementRepository reads the announcement feed.
type AnnouncementRepository interface {
	// Recent returns up to limit announcements, newest first.
	Recent(ctx context.Context, limit int) ([]model.Announcement, error)
}
