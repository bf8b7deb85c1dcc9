package service

import (
	"context"

	"github.com/and161185/passby/internal/model"
	"github.com/and161185/passby/internal/repository"
)

// DefaultAnnouncementLimit is the size of the announcement feed.
const DefaultAnnouncementLimit = 20

// AnnouncementService serves the operator announcement feed.
type AnnouncementService interface {
	Recent(ctx context.Context) ([]model.Announcement, error)
}

type AnnouncementServiceImpl struct {
	repo  repository.AnnouncementRepository
	limit int
}

// NewAnnouncementService constructs AnnouncementService. limit <= 0 uses the default.
func NewAnnouncementService(repo repository.AnnouncementRepository, limit int) *AnnouncementServiceImpl {
	if limit <= 0 {
		limit = DefaultAnnouncementLimit
	}
	return &AnnouncementServiceImpl{repo: repo, limit: limit}
}

// Recent returns the newest announcements. Rows without an importance read as normal.
func (s *AnnouncementServiceImpl) Recent(ctx context.Context) ([]model.Announcement, error) {
	out, err := s.repo.Recent(ctx, s.limit)
	if err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].Importance == "" {
			out[i].Importance = model.ImportanceNormal
		}
	}
	return out, nil
}
