package responses

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tradedesk-app/tradedesk-backend/pkg/db/models"
	"github.com/tradedesk-app/tradedesk-backend/pkg/enums"
	"github.com/tradedesk-app/tradedesk-backend/pkg/pagination"
)

// Repository defines persistence operations for partner response rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.CalloutResponse, error)
	FindCalloutStatus(ctx context.Context, calloutID uuid.UUID) (enums.CalloutStatus, error)
	// UpdateStatusIfCurrent moves the row to next only while it still holds
	// one of the allowed statuses and its callout is still open. The open
	// check lives inside the same UPDATE so a concurrent cancel or select
	// cannot slip in between a read and the write. RowsAffected reports
	// whether the CAS won.
	UpdateStatusIfCurrent(ctx context.Context, id uuid.UUID, allowed []enums.ResponseStatus, next enums.ResponseStatus, updates map[string]any) (int64, error)
	ListByPartner(ctx context.Context, params listResponsesParams) ([]models.CalloutResponse, *pagination.Cursor, error)
	// ListStalePending and ExpirePending back the staleness sweeper; they
	// take the transaction explicitly so the sweep commits as one unit.
	ListStalePending(ctx context.Context, tx *gorm.DB, cutoff time.Time, limit int) ([]models.CalloutResponse, error)
	ExpirePending(ctx context.Context, tx *gorm.DB, id uuid.UUID, reason string, now time.Time) (int64, error)
}

type listResponsesParams struct {
	PartnerID  uuid.UUID
	Limit      int
	Cursor     *pagination.Cursor
	ActiveOnly bool
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository builds a responses repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*models.CalloutResponse, error) {
	var response models.CalloutResponse
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&response).Error; err != nil {
		return nil, err
	}
	return &response, nil
}

func (r *repositoryImpl) FindCalloutStatus(ctx context.Context, calloutID uuid.UUID) (enums.CalloutStatus, error) {
	var status enums.CalloutStatus
	err := r.db.WithContext(ctx).
		Model(&models.Callout{}).
		Where("id = ?", calloutID).
		Pluck("status", &status).Error
	if err != nil {
		return "", err
	}
	if status == "" {
		return "", gorm.ErrRecordNotFound
	}
	return status, nil
}

func (r *repositoryImpl) UpdateStatusIfCurrent(ctx context.Context, id uuid.UUID, allowed []enums.ResponseStatus, next enums.ResponseStatus, updates map[string]any) (int64, error) {
	if updates == nil {
		updates = map[string]any{}
	}
	updates["status"] = next
	updates["updated_at"] = time.Now().UTC()
	result := r.db.WithContext(ctx).
		Model(&models.CalloutResponse{}).
		Where("id = ? AND status IN ?", id, allowed).
		Where("EXISTS (SELECT 1 FROM callouts WHERE callouts.id = callout_responses.callout_id AND callouts.status = ?)", enums.CalloutStatusOpen).
		Updates(updates)
	return result.RowsAffected, result.Error
}

func (r *repositoryImpl) ListStalePending(ctx context.Context, tx *gorm.DB, cutoff time.Time, limit int) ([]models.CalloutResponse, error) {
	db := r.db
	if tx != nil {
		db = tx
	}
	var rows []models.CalloutResponse
	err := db.WithContext(ctx).
		Model(&models.CalloutResponse{}).
		Joins("JOIN callouts ON callouts.id = callout_responses.callout_id").
		Where("callout_responses.status = ?", enums.ResponseStatusPending).
		Where("callout_responses.created_at < ?", cutoff).
		Where("callouts.status = ?", enums.CalloutStatusOpen).
		Order("callout_responses.created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repositoryImpl) ExpirePending(ctx context.Context, tx *gorm.DB, id uuid.UUID, reason string, now time.Time) (int64, error) {
	db := r.db
	if tx != nil {
		db = tx
	}
	result := db.WithContext(ctx).
		Model(&models.CalloutResponse{}).
		Where("id = ? AND status = ?", id, enums.ResponseStatusPending).
		Updates(map[string]any{
			"status":         enums.ResponseStatusDeclined,
			"decline_reason": reason,
			"declined_at":    now,
			"updated_at":     now,
		})
	return result.RowsAffected, result.Error
}

func (r *repositoryImpl) ListByPartner(ctx context.Context, params listResponsesParams) ([]models.CalloutResponse, *pagination.Cursor, error) {
	limit := pagination.LimitWithBuffer(params.Limit)
	normalized := pagination.NormalizeLimit(params.Limit)

	query := r.db.WithContext(ctx).
		Model(&models.CalloutResponse{}).
		Preload("Callout").
		Where("partner_id = ?", params.PartnerID)
	if params.ActiveOnly {
		query = query.Where("status IN ?", []enums.ResponseStatus{
			enums.ResponseStatusPending,
			enums.ResponseStatusAcknowledged,
			enums.ResponseStatusResponded,
			enums.ResponseStatusSelected,
		})
	}
	if params.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var rows []models.CalloutResponse
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, nil, err
	}

	if len(rows) > normalized {
		next := rows[normalized]
		rows = rows[:normalized]
		return rows, &pagination.Cursor{CreatedAt: next.CreatedAt, ID: next.ID}, nil
	}
	return rows, nil, nil
}
