package callouts

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tradedesk-app/tradedesk-backend/pkg/db/models"
	"github.com/tradedesk-app/tradedesk-backend/pkg/enums"
	"github.com/tradedesk-app/tradedesk-backend/pkg/pagination"
)

// Repository defines persistence operations for callouts and their fan-out.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, callout *models.Callout) (*models.Callout, error)
	CreateResponses(ctx context.Context, responses []models.CalloutResponse) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Callout, error)
	List(ctx context.Context, params listCalloutsParams) ([]CalloutSummary, *pagination.Cursor, error)
	// UpdateStatusIfCurrent is the CAS transition primitive: the update only
	// lands when the row still holds the expected status, and the affected
	// row count tells the caller whether it won.
	UpdateStatusIfCurrent(ctx context.Context, id uuid.UUID, current, next enums.CalloutStatus, updates map[string]any) (int64, error)
}

type listCalloutsParams struct {
	Limit   int
	Cursor  *pagination.Cursor
	Filters ListFilters
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository builds a callouts repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) Create(ctx context.Context, callout *models.Callout) (*models.Callout, error) {
	if err := r.db.WithContext(ctx).Create(callout).Error; err != nil {
		return nil, err
	}
	return callout, nil
}

func (r *repositoryImpl) CreateResponses(ctx context.Context, responses []models.CalloutResponse) error {
	if len(responses) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&responses).Error
}

func (r *repositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*models.Callout, error) {
	var callout models.Callout
	err := r.db.WithContext(ctx).
		Preload("Responses").
		Where("id = ?", id).
		First(&callout).Error
	if err != nil {
		return nil, err
	}
	return &callout, nil
}

func (r *repositoryImpl) List(ctx context.Context, params listCalloutsParams) ([]CalloutSummary, *pagination.Cursor, error) {
	limit := pagination.LimitWithBuffer(params.Limit)
	normalized := pagination.NormalizeLimit(params.Limit)

	query := r.db.WithContext(ctx).
		Model(&models.Callout{}).
		Select(`callouts.id, callouts.client_name, callouts.client_postcode,
			callouts.incident_type, callouts.priority, callouts.status,
			callouts.broadcast_at, callouts.created_at,
			(SELECT count(*) FROM callout_responses cr WHERE cr.callout_id = callouts.id) AS response_count,
			(SELECT count(*) FROM callout_responses cr WHERE cr.callout_id = callouts.id AND cr.status = 'responded') AS responded_count`)

	if params.Filters.Status != nil {
		query = query.Where("callouts.status = ?", *params.Filters.Status)
	}
	if params.Filters.IncidentType != nil {
		query = query.Where("callouts.incident_type = ?", *params.Filters.IncidentType)
	}
	if params.Filters.DateFrom != nil {
		query = query.Where("callouts.created_at >= ?", *params.Filters.DateFrom)
	}
	if params.Filters.DateTo != nil {
		query = query.Where("callouts.created_at <= ?", *params.Filters.DateTo)
	}
	if params.Cursor != nil {
		query = query.Where("(callouts.created_at, callouts.id) < (?, ?)", params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var rows []CalloutSummary
	if err := query.Order("callouts.created_at DESC, callouts.id DESC").Limit(limit).Scan(&rows).Error; err != nil {
		return nil, nil, err
	}

	if len(rows) > normalized {
		next := rows[normalized]
		rows = rows[:normalized]
		return rows, &pagination.Cursor{CreatedAt: next.CreatedAt, ID: next.ID}, nil
	}
	return rows, nil, nil
}

func (r *repositoryImpl) UpdateStatusIfCurrent(ctx context.Context, id uuid.UUID, current, next enums.CalloutStatus, updates map[string]any) (int64, error) {
	if updates == nil {
		updates = map[string]any{}
	}
	updates["status"] = next
	updates["updated_at"] = time.Now().UTC()
	result := r.db.WithContext(ctx).
		Model(&models.Callout{}).
		Where("id = ? AND status = ?", id, current).
		Updates(updates)
	return result.RowsAffected, result.Error
}
