package jobs

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tradedesk-app/tradedesk-backend/pkg/db/models"
	"github.com/tradedesk-app/tradedesk-backend/pkg/enums"
	pkgerrors "github.com/tradedesk-app/tradedesk-backend/pkg/errors"
)

// JobSource marks dispatch-created jobs so the wider jobs module can tell
// them apart from manually raised work.
const JobSourceEmergencyCallout = "emergency_callout"

// CreateJobInput carries the client and incident fields copied from a callout.
type CreateJobInput struct {
	PartnerID      uuid.UUID
	ClientName     string
	ClientPhone    string
	ClientAddress  string
	ClientPostcode string
	IncidentType   enums.IncidentType
	Description    *string
}

// Creator is the narrow surface the selection arbiter consumes. The create
// runs inside the arbiter's transaction so the job and the callout link
// commit together.
type Creator interface {
	CreateJob(ctx context.Context, tx *gorm.DB, input CreateJobInput) (*models.Job, error)
}

type creator struct {
	repo Repository
}

// NewCreator wires the default job creator.
func NewCreator(repo Repository) (Creator, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "jobs repository required")
	}
	return &creator{repo: repo}, nil
}

func (c *creator) CreateJob(ctx context.Context, tx *gorm.DB, input CreateJobInput) (*models.Job, error) {
	if input.PartnerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "partner id required")
	}
	if input.ClientName == "" || input.ClientPhone == "" || input.ClientAddress == "" || input.ClientPostcode == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "client contact details required")
	}
	if !input.IncidentType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid incident type")
	}

	job := &models.Job{
		PartnerID:      input.PartnerID,
		ClientName:     input.ClientName,
		ClientPhone:    input.ClientPhone,
		ClientAddress:  input.ClientAddress,
		ClientPostcode: input.ClientPostcode,
		IncidentType:   input.IncidentType,
		Description:    input.Description,
		Source:         JobSourceEmergencyCallout,
	}
	created, err := c.repo.WithTx(tx).Create(ctx, job)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create job")
	}
	return created, nil
}
