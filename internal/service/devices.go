package service

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/and161185/passby/internal/errs"
	"github.com/and161185/passby/internal/model"
	"github.com/and161185/passby/internal/repository"
)

const (
	maxPushTokenLen = 4096
	maxDeviceField  = 128
)

// DeviceService keeps the push registrations the notification
// dispatcher delivers to.
type DeviceService interface {
	Register(ctx context.Context, d model.Device) error
	Tokens(ctx context.Context, owner uuid.UUID) ([]string, error)
	// Remove drops a registration, e.g. one the push provider rejected.
	Remove(ctx context.Context, owner uuid.UUID, token string) error
}

type DeviceServiceImpl struct {
	repo  repository.DeviceRepository
	clock clockwork.Clock
	log   *zap.Logger
}

// NewDeviceService constructs DeviceService.
func NewDeviceService(repo repository.DeviceRepository, clock clockwork.Clock, log *zap.Logger) *DeviceServiceImpl {
	return &DeviceServiceImpl{repo: repo, clock: clock, log: log}
}

// Register upserts the device of d.OwnerID, stamping it with the server time.
func (s *DeviceServiceImpl) Register(ctx context.Context, d model.Device) error {
	if d.OwnerID == uuid.Nil {
		return fmt.Errorf("%w: empty owner", errs.ErrValidation)
	}
	if d.PushToken == "" || len(d.PushToken) > maxPushTokenLen {
		return fmt.Errorf("%w: push token must be 1..%d bytes", errs.ErrValidation, maxPushTokenLen)
	}
	for name, v := range map[string]string{
		"platform": d.Platform, "device_id": d.DeviceID, "app_version": d.AppVersion, "locale": d.Locale,
	} {
		if len(v) > maxDeviceField {
			return fmt.Errorf("%w: %s longer than %d bytes", errs.ErrValidation, name, maxDeviceField)
		}
	}
	now := s.clock.Now()
	d.CreatedAt, d.UpdatedAt = now, now
	if err := s.repo.Upsert(ctx, d); err != nil {
		return fmt.Errorf("upsert device: %w", err)
	}
	return nil
}

// Tokens returns the owner's push tokens.
func (s *DeviceServiceImpl) Tokens(ctx context.Context, owner uuid.UUID) ([]string, error) {
	if owner == uuid.Nil {
		return nil, fmt.Errorf("%w: empty owner", errs.ErrValidation)
	}
	return s.repo.Tokens(ctx, owner)
}

// Remove deletes one registration of owner.
func (s *DeviceServiceImpl) Remove(ctx context.Context, owner uuid.UUID, token string) error {
	if owner == uuid.Nil || token == "" {
		return fmt.Errorf("%w: owner and token required", errs.ErrValidation)
	}
	if err := s.repo.Remove(ctx, owner, token); err != nil {
		return fmt.Errorf("remove device: %w", err)
	}
	s.log.Debug("device removed", zap.Stringer("owner", owner))
	return nil
}
