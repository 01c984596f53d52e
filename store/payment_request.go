package store

import (
	"context"

	core "github.com/DomeLiquid/paycore"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

func (s *Store) CreatePaymentRequest(ctx context.Context, request *core.PaymentRequest) error {
	return s.db.WithContext(ctx).Create(request).Error
}

func (s *Store) GetPaymentRequest(ctx context.Context, id string) (*core.PaymentRequest, error) {
	var request core.PaymentRequest
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&request).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, core.ErrRequestNotFound
		}
		return nil, err
	}
	return &request, nil
}

func (s *Store) ListPendingPaymentRequests(ctx context.Context, limit int) ([]*core.PaymentRequest, error) {
	if limit <= 0 {
		limit = core.DEFAULT_PENDING_SCAN_LIMIT
	}
	var requests []*core.PaymentRequest
	err := s.db.WithContext(ctx).
		Where("status = ?", core.PaymentRequestStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&requests).Error
	return requests, err
}

func (s *Store) IsTxHashClaimed(ctx context.Context, txHash string, excludingId string) (bool, error) {
	return isTxHashClaimed(s.db.WithContext(ctx), txHash, excludingId)
}

func isTxHashClaimed(db *gorm.DB, txHash string, excludingId string) (bool, error) {
	var count int64
	err := db.Model(&core.PaymentRequest{}).
		Where("resolved_tx_hash = ? AND status = ? AND id <> ?", txHash, core.PaymentRequestStatusVerified, excludingId).
		Count(&count).Error
	return count > 0, err
}

// ResolvePaymentRequest applies a compare-and-set on status. The claimed-hash check runs in
// the same transaction, and the partial unique index rejects a racing verified binding.
func (s *Store) ResolvePaymentRequest(ctx context.Context, id string, resolution core.Resolution) error {
	if !resolution.Status.IsTerminal() {
		return errors.Errorf("resolution status %q is not terminal", resolution.Status)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if resolution.Status == core.PaymentRequestStatusVerified && resolution.TxHash != "" {
			claimed, err := isTxHashClaimed(tx, resolution.TxHash, id)
			if err != nil {
				return err
			}
			if claimed {
				return core.ErrTxHashClaimed
			}
		}

		updates := map[string]any{
			"status":      resolution.Status,
			"fraud_flags": resolution.FraudFlags,
			"resolved_at": resolution.ResolvedAt,
			"updated_at":  resolution.ResolvedAt,
		}
		if resolution.TxHash != "" {
			updates["resolved_tx_hash"] = resolution.TxHash
		}
		if resolution.Amount.Valid {
			updates["resolved_amount"] = resolution.Amount
		}

		result := tx.Model(&core.PaymentRequest{}).
			Where("id = ? AND status = ?", id, core.PaymentRequestStatusPending).
			Updates(updates)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
				return core.ErrTxHashClaimed
			}
			return result.Error
		}
		if result.RowsAffected > 0 {
			return nil
		}

		var count int64
		if err := tx.Model(&core.PaymentRequest{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return core.ErrRequestNotFound
		}
		return core.ErrAlreadyResolved
	})
}
