package selection

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tradedesk-app/tradedesk-backend/pkg/db/models"
	"github.com/tradedesk-app/tradedesk-backend/pkg/enums"
)

// Repository exposes the row-level primitives the arbiter composes into one
// transaction.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindCallout(ctx context.Context, id uuid.UUID) (*models.Callout, error)
	FindResponse(ctx context.Context, id uuid.UUID) (*models.CalloutResponse, error)
	// AssignCallout CAS-transitions the callout open -> assigned and links the
	// job in the same statement. Zero rows means another writer won.
	AssignCallout(ctx context.Context, calloutID, jobID uuid.UUID) (int64, error)
	// PromoteResponse CAS-transitions the winner responded -> selected.
	PromoteResponse(ctx context.Context, responseID uuid.UUID) (int64, error)
	// Siblings lists the competing rows DemoteSiblings would touch, with
	// the partner on each so the losers can be notified.
	Siblings(ctx context.Context, calloutID, winnerID uuid.UUID) ([]models.CalloutResponse, error)
	// DemoteSiblings moves every non-declined competing row to not_selected.
	// Declined rows keep their own terminal state.
	DemoteSiblings(ctx context.Context, calloutID, winnerID uuid.UUID) (int64, error)
}

// demotableStatuses are the non-terminal states a losing sibling can still
// hold at selection time.
var demotableStatuses = []enums.ResponseStatus{
	enums.ResponseStatusPending,
	enums.ResponseStatusAcknowledged,
	enums.ResponseStatusResponded,
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository builds a selection repository bound to the provided DB.
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

func (r *repositoryImpl) FindResponse(ctx context.Context, id uuid.UUID) (*models.CalloutResponse, error) {
	var response models.CalloutResponse
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&response).Error; err != nil {
		return nil, err
	}
	return &response, nil
}

func (r *repositoryImpl) AssignCallout(ctx context.Context, calloutID, jobID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Callout{}).
		Where("id = ? AND status = ?", calloutID, enums.CalloutStatusOpen).
		Updates(map[string]any{
			"status":        enums.CalloutStatusAssigned,
			"linked_job_id": jobID,
			"updated_at":    time.Now().UTC(),
		})
	return result.RowsAffected, result.Error
}

func (r *repositoryImpl) PromoteResponse(ctx context.Context, responseID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.CalloutResponse{}).
		Where("id = ? AND status = ?", responseID, enums.ResponseStatusResponded).
		Updates(map[string]any{
			"status":     enums.ResponseStatusSelected,
			"updated_at": time.Now().UTC(),
		})
	return result.RowsAffected, result.Error
}

func (r *repositoryImpl) Siblings(ctx context.Context, calloutID, winnerID uuid.UUID) ([]models.CalloutResponse, error) {
	var rows []models.CalloutResponse
	err := r.db.WithContext(ctx).
		Model(&models.CalloutResponse{}).
		Select("id", "partner_id").
		Where("callout_id = ? AND id <> ? AND status IN ?", calloutID, winnerID, demotableStatuses).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repositoryImpl) DemoteSiblings(ctx context.Context, calloutID, winnerID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.CalloutResponse{}).
		Where("callout_id = ? AND id <> ? AND status IN ?", calloutID, winnerID, demotableStatuses).
		Updates(map[string]any{
			"status":     enums.ResponseStatusNotSelected,
			"updated_at": time.Now().UTC(),
		})
	return result.RowsAffected, result.Error
}
