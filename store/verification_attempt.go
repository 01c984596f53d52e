package store

import (
	"context"

	core "github.com/DomeLiquid/paycore"
)

func (s *Store) CreateVerificationAttempt(ctx context.Context, attempt *core.VerificationAttempt) error {
	return s.db.WithContext(ctx).Create(attempt).Error
}

func (s *Store) CountOwnerAttempts(ctx context.Context, owner string, source core.AttemptSource, since int64) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&core.VerificationAttempt{}).
		Where("owner = ? AND source = ? AND attempted_at >= ?", owner, source, since).
		Count(&count).Error
	return count, err
}

func (s *Store) ListVerificationAttempts(ctx context.Context, requestId string) ([]*core.VerificationAttempt, error) {
	var attempts []*core.VerificationAttempt
	err := s.db.WithContext(ctx).
		Where("request_id = ?", requestId).
		Order("attempted_at ASC").
		Order("id ASC").
		Find(&attempts).Error
	return attempts, err
}
