package settlement

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tradedesk-app/tradedesk-backend/pkg/db/models"
	"github.com/tradedesk-app/tradedesk-backend/pkg/enums"
)

// settlementUpdate carries the figures written in the resolve CAS.
type settlementUpdate struct {
	TotalCollected  decimal.Decimal
	FeePercent      int64
	FeeAmount       decimal.Decimal
	PartnerEarnings decimal.Decimal
	CompletionNotes *string
	ResolvedAt      time.Time
}

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindCallout(ctx context.Context, id uuid.UUID) (*models.Callout, error)
	// FindSelectedResponse returns the winning row for the callout, or
	// gorm.ErrRecordNotFound when no selection happened yet.
	FindSelectedResponse(ctx context.Context, calloutID uuid.UUID) (*models.CalloutResponse, error)
	// StartCallout CAS-transitions assigned -> in_progress.
	StartCallout(ctx context.Context, calloutID uuid.UUID) (int64, error)
	// ResolveCallout CAS-transitions assigned|in_progress -> resolved and
	// writes the settlement figures in the same statement.
	ResolveCallout(ctx context.Context, calloutID uuid.UUID, update settlementUpdate) (int64, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) FindCallout(ctx context.Context, id uuid.UUID) (*models.Callout, error) {
	var callout models.Callout
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&callout).Error; err != nil {
		return nil, err
	}
	return &callout, nil
}

func (r *repositoryImpl) FindSelectedResponse(ctx context.Context, calloutID uuid.UUID) (*models.CalloutResponse, error) {
	var response models.CalloutResponse
	err := r.db.WithContext(ctx).
		Where("callout_id = ? AND status = ?", calloutID, enums.ResponseStatusSelected).
		First(&response).Error
	if err != nil {
		return nil, err
	}
	return &response, nil
}

func (r *repositoryImpl) StartCallout(ctx context.Context, calloutID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Callout{}).
		Where("id = ? AND status = ?", calloutID, enums.CalloutStatusAssigned).
		Updates(map[string]any{
			"status":     enums.CalloutStatusInProgress,
			"updated_at": time.Now().UTC(),
		})
	return result.RowsAffected, result.Error
}

func (r *repositoryImpl) ResolveCallout(ctx context.Context, calloutID uuid.UUID, update settlementUpdate) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Callout{}).
		Where("id = ? AND status IN ?", calloutID, []enums.CalloutStatus{
			enums.CalloutStatusAssigned,
			enums.CalloutStatusInProgress,
		}).
		Updates(map[string]any{
			"status":           enums.CalloutStatusResolved,
			"total_collected":  update.TotalCollected,
			"fee_percent":      update.FeePercent,
			"fee_amount":       update.FeeAmount,
			"partner_earnings": update.PartnerEarnings,
			"completion_notes": update.CompletionNotes,
			"resolved_at":      update.ResolvedAt,
			"updated_at":       time.Now().UTC(),
		})
	return result.RowsAffected, result.Error
}
