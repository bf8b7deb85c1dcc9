package postgres

import (
	"context"

	"github.com/and161185/passby/internal/model"
	"github.com/gofrs/uuid/v5"
)

// DeviceRepo implements DeviceRepository using PostgreSQL.
type DeviceRepo struct{ db *DB }

// NewDeviceRepo constructs a device repository.
func NewDeviceRepo(db *DB) *DeviceRepo { return &DeviceRepo{db: db} }

// Upsert registers d; a known token only refreshes its metadata.
func (r *DeviceRepo) Upsert(ctx context.Context, d model.Device) error {
	const q = `
INSERT INTO devices (owner_id, push_token, platform, device_id, app_version, locale, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$7)
ON CONFLICT (owner_id, push_token)
DO UPDATE SET platform=EXCLUDED.platform,
              device_id=EXCLUDED.device_id,
              app_version=EXCLUDED.app_version,
              locale=EXCLUDED.locale,
              updated_at=EXCLUDED.updated_at`
	_, err := r.db.Pool.Exec(ctx, q, d.OwnerID, d.PushToken, d.Platform, d.DeviceID, d.AppVersion, d.Locale, d.UpdatedAt)
	return err
}

// Tokens lists the owner's push tokens.
func (r *DeviceRepo) Tokens(ctx context.Context, owner uuid.UUID) ([]string, error) {
	const q = `SELECT push_token FROM devices WHERE owner_id=$1 ORDER BY created_at, push_token`
	rows, err := r.db.Pool.Query(ctx, q, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var t string
		if err = rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Remove deletes one registration of owner.
func (r *DeviceRepo) Remove(ctx context.Context, owner uuid.UUID, token string) error {
	const q = `DELETE FROM devices WHERE owner_id=$1 AND push_token=$2`
	_, err := r.db.Pool.Exec(ctx, q, owner, token)
	return err
}
